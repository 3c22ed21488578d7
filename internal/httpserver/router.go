package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phishbox/internal/handler"
	"phishbox/pkg/otel"
	"phishbox/pkg/rbac"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Handlers struct {
	Emails *handler.EmailHandler
	Teams  *handler.TeamHandler
	Events *handler.EventsHandler
	Admin  *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, checks map[string]ReadinessCheck) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/events", h.Events.Stream)

	api := r.Group("/api")
	{
		api.GET("/emails", h.Emails.List)
		api.GET("/emails/:id", h.Emails.Get)
		api.GET("/emails/:id/assignments", h.Emails.Assignments)
		api.GET("/emails/:id/workflow-status", h.Teams.WorkflowStatus)
		api.GET("/agentic/tasks/:task_id", h.Teams.Task)
		api.GET("/dashboard/enriched-stats", h.Emails.EnrichedStats)
		api.GET("/teams", h.Teams.Teams)
		api.GET("/teams/:team/tools", h.Teams.Tools)
	}

	ops := r.Group("/api")
	ops.Use(AuthMiddleware(jwtSecret))
	{
		ops.POST("/emails/fetch", RequirePermission(rbac.PermissionFetchEmails), h.Emails.Fetch)
		ops.POST("/emails/:id/suggest-team", RequirePermission(rbac.PermissionSuggestTeam), h.Teams.SuggestTeam)
		ops.POST("/emails/:id/assign-team", RequirePermission(rbac.PermissionAssignTeam), h.Teams.AssignTeam)
	}

	if h.Admin != nil {
		admin := r.Group("/admin")
		admin.Use(AuthMiddleware(jwtSecret), RequirePermission(rbac.PermissionReplayOutbox))
		{
			admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
		}
	}

	return &Router{Engine: r}
}
