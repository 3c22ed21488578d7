// Package assignment owns the team state of an email: the automatic
// suggestion and the operator-driven assignment that starts a discussion.
package assignment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"phishbox/internal/model"
	"phishbox/internal/notify"
	"phishbox/internal/team"
	"phishbox/pkg/logger"
	"phishbox/pkg/metrics"
)

// State is where an email sits in the team workflow.
type State string

const (
	StateUnassigned State = "UNASSIGNED"
	StateSuggested  State = "SUGGESTED"
	StateAssigned   State = "ASSIGNED"
)

func StateOf(e *model.Email) State {
	switch {
	case e.AssignedTeam != nil:
		return StateAssigned
	case e.SuggestedTeam != nil:
		return StateSuggested
	default:
		return StateUnassigned
	}
}

// EmailStore is the slice of the email repository the service needs.
type EmailStore interface {
	GetByID(ctx context.Context, id int64) (*model.Email, error)
	SetSuggestedTeam(ctx context.Context, id int64, team model.TeamKey) error
	AssignTeam(ctx context.Context, emailID int64, team model.TeamKey, taskID, operator string) (*string, error)
}

// Runner creates and runs discussion tasks.
type Runner interface {
	Prepare(ctx context.Context, email *model.Email, key model.TeamKey) (*model.DiscussionTask, error)
	Run(ctx context.Context, task *model.DiscussionTask, email *model.Email)
	Abort(ctx context.Context, taskID, reason string)
	Supersede(ctx context.Context, taskID string)
}

// TaskReader looks up discussion tasks by id.
type TaskReader interface {
	Get(ctx context.Context, id string) (*model.DiscussionTask, error)
}

// Result is returned to the operator after an assignment.
type Result struct {
	EmailID        int64            `json:"email_id"`
	Team           model.TeamKey    `json:"team"`
	TaskID         string           `json:"task_id"`
	PreviousTaskID *string          `json:"previous_task_id,omitempty"`
	Status         model.TaskStatus `json:"status"`
	WorkflowURL    string           `json:"workflow_url"`
}

type Service struct {
	emails    EmailStore
	runner    Runner
	tasks     TaskReader
	suggester *team.Suggester
	events    notify.Publisher
	logger    *zap.Logger
}

func NewService(emails EmailStore, runner Runner, tasks TaskReader, suggester *team.Suggester, events notify.Publisher, logger *zap.Logger) *Service {
	return &Service{
		emails:    emails,
		runner:    runner,
		tasks:     tasks,
		suggester: suggester,
		events:    events,
		logger:    logger,
	}
}

// Suggest recomputes and stores the suggested team. It never touches the
// assigned team.
func (s *Service) Suggest(ctx context.Context, emailID int64) (team.Suggestion, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return team.Suggestion{}, err
	}

	suggestion := s.suggester.Suggest(ctx, email)
	if err := s.emails.SetSuggestedTeam(ctx, emailID, suggestion.Team); err != nil {
		return team.Suggestion{}, err
	}

	s.events.Publish(ctx, notify.NewEvent(notify.EventTeamSuggested, map[string]any{
		"email_id": emailID,
		"team":     suggestion.Team,
		"source":   suggestion.Source,
	}))
	return suggestion, nil
}

// Assign moves an email to ASSIGNED for the given team and starts a new
// discussion. Assigning an already-assigned email replaces its task: the
// old discussion is stopped and ends failed, but stays readable by id.
func (s *Service) Assign(ctx context.Context, emailID int64, teamKey, operator string) (*Result, error) {
	log := logger.WithTrace(ctx, s.logger)

	key, err := model.ParseTeamKey(teamKey)
	if err != nil {
		return nil, err
	}

	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}

	task, err := s.runner.Prepare(ctx, email, key)
	if err != nil {
		return nil, fmt.Errorf("prepare discussion: %w", err)
	}

	previous, err := s.emails.AssignTeam(ctx, emailID, key, task.ID, operator)
	if err != nil {
		s.runner.Abort(ctx, task.ID, "assignment was not saved")
		return nil, err
	}

	email.AssignedTeam = &key
	email.AgenticTaskID = &task.ID
	s.runner.Run(ctx, task, email)

	if previous != nil && *previous != task.ID {
		s.runner.Supersede(ctx, *previous)
	}

	metrics.IncrementTeamAssignment(string(key))
	log.Info("Email assigned",
		zap.Int64("email_id", emailID),
		zap.String("team", string(key)),
		zap.String("task_id", task.ID),
		zap.String("operator", operator),
	)

	result := &Result{
		EmailID:        emailID,
		Team:           key,
		TaskID:         task.ID,
		PreviousTaskID: previous,
		Status:         task.Status,
		WorkflowURL:    "/api/agentic/tasks/" + task.ID,
	}
	s.events.Publish(ctx, notify.NewEvent(notify.EventTeamAssigned, result))
	return result, nil
}

// WorkflowStatus returns the discussion currently linked to an email.
func (s *Service) WorkflowStatus(ctx context.Context, emailID int64) (*model.DiscussionTask, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if email.AgenticTaskID == nil {
		return nil, fmt.Errorf("email %d has no discussion: %w", emailID, model.ErrTaskNotFound)
	}
	return s.tasks.Get(ctx, *email.AgenticTaskID)
}

// Task returns a discussion by id, including tasks no longer linked to
// any email.
func (s *Service) Task(ctx context.Context, taskID string) (*model.DiscussionTask, error) {
	return s.tasks.Get(ctx, taskID)
}
