package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"phishbox/internal/assignment"
	"phishbox/internal/model"
	"phishbox/internal/team"
)

// TeamService is implemented by assignment.Service.
type TeamService interface {
	Suggest(ctx context.Context, emailID int64) (team.Suggestion, error)
	Assign(ctx context.Context, emailID int64, teamKey, operator string) (*assignment.Result, error)
	WorkflowStatus(ctx context.Context, emailID int64) (*model.DiscussionTask, error)
	Task(ctx context.Context, taskID string) (*model.DiscussionTask, error)
}

type TeamHandler struct {
	svc    TeamService
	logger *zap.Logger
}

func NewTeamHandler(svc TeamService, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{svc: svc, logger: logger}
}

// SuggestTeam handles POST /api/emails/:id/suggest-team
func (h *TeamHandler) SuggestTeam(c *gin.Context) {
	id, ok := emailID(c)
	if !ok {
		return
	}

	s, err := h.svc.Suggest(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"email_id":       id,
		"suggested_team": s.Team,
		"source":         s.Source,
	})
}

// AssignTeam handles POST /api/emails/:id/assign-team?team=
func (h *TeamHandler) AssignTeam(c *gin.Context) {
	id, ok := emailID(c)
	if !ok {
		return
	}
	key := c.Query("team")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing team parameter"})
		return
	}

	res, err := h.svc.Assign(c.Request.Context(), id, key, Operator(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// WorkflowStatus handles GET /api/emails/:id/workflow-status
func (h *TeamHandler) WorkflowStatus(c *gin.Context) {
	id, ok := emailID(c)
	if !ok {
		return
	}

	task, err := h.svc.WorkflowStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Task handles GET /api/agentic/tasks/:task_id
func (h *TeamHandler) Task(c *gin.Context) {
	task, err := h.svc.Task(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Teams handles GET /api/teams
func (h *TeamHandler) Teams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"teams": team.All()})
}

// Tools handles GET /api/teams/:team/tools
func (h *TeamHandler) Tools(c *gin.Context) {
	key, err := model.ParseTeamKey(c.Param("team"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	t, _ := team.Get(key)
	c.JSON(http.StatusOK, gin.H{
		"team":         t.Key,
		"display_name": t.DisplayName,
		"tools":        t.Tools,
	})
}
