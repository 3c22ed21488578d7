package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"phishbox/internal/model"
	"phishbox/pkg/otel"
	"phishbox/pkg/outbox"
	"phishbox/pkg/trace"
)

// RoutingKeyTeamAssigned is published through the outbox after every
// committed assignment.
const RoutingKeyTeamAssigned = "team.assigned"

// AssignTeam sets the three assignment columns together, appends an audit
// row and queues a team.assigned outbox event, all in one transaction. The
// email row is locked for the duration so concurrent assignments serialise
// and the later one wins. It returns the task id the assignment replaced.
func (r *EmailRepository) AssignTeam(ctx context.Context, emailID int64, team model.TeamKey, taskID, operator string) (previousTaskID *string, err error) {
	ctx, span := otel.DBSpan(ctx, "assign_team", "emails")
	defer func() { otel.EndDBSpan(span, err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin assignment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `SELECT agentic_task_id FROM emails WHERE id = $1 FOR UPDATE`, emailID).Scan(&previousTaskID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("email %d: %w", emailID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock email %d: %w", emailID, err)
	}

	if _, err = tx.Exec(ctx, `
		UPDATE emails
		SET assigned_team = $2, agentic_task_id = $3, team_assigned_at = NOW()
		WHERE id = $1`, emailID, string(team), taskID); err != nil {
		return nil, fmt.Errorf("assign email %d: %w", emailID, err)
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO team_assignments (email_id, team, task_id, previous_task_id, assigned_by)
		VALUES ($1, $2, $3, $4, $5)`, emailID, string(team), taskID, previousTaskID, operator); err != nil {
		return nil, fmt.Errorf("audit assignment of email %d: %w", emailID, err)
	}

	payload := map[string]any{
		"email_id":    emailID,
		"team":        team,
		"task_id":     taskID,
		"assigned_by": operator,
		"trace_id":    trace.FromContext(ctx),
	}
	if previousTaskID != nil {
		payload["previous_task_id"] = *previousTaskID
	}
	if _, err = outbox.Insert(ctx, tx, "email", &emailID, RoutingKeyTeamAssigned, payload); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit assignment of email %d: %w", emailID, err)
	}
	return previousTaskID, nil
}

// ListAssignments returns the audit trail for one email, newest first.
func (r *EmailRepository) ListAssignments(ctx context.Context, emailID int64) ([]model.TeamAssignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, email_id, team, task_id, previous_task_id, assigned_by, assigned_at
		FROM team_assignments
		WHERE email_id = $1
		ORDER BY assigned_at DESC, id DESC`, emailID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for email %d: %w", emailID, err)
	}
	defer rows.Close()

	out := make([]model.TeamAssignment, 0)
	for rows.Next() {
		var (
			a    model.TeamAssignment
			team string
		)
		if err := rows.Scan(&a.ID, &a.EmailID, &team, &a.TaskID, &a.PreviousTaskID, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		a.Team = model.TeamKey(team)
		out = append(out, a)
	}
	return out, rows.Err()
}
