// Package agentic runs team discussions: a fixed, ordered panel of LLM
// personas that read an email and each other's opinions, one after the
// other, and end in a single decision.
package agentic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phishbox/internal/model"
)

var ErrInvalidTransition = errors.New("invalid task status transition")

// TaskStore keeps discussion tasks readable while they run. Every
// implementation applies the same rules: status only moves forward and
// messages are only appended while a task is processing. A task is kept
// until Release marks it unreferenced; only released, finished tasks older
// than the store's ttl are evicted.
type TaskStore interface {
	Create(ctx context.Context, task *model.DiscussionTask) error
	Get(ctx context.Context, id string) (*model.DiscussionTask, error)
	MarkProcessing(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, id string, msg model.Message) error
	Complete(ctx context.Context, id string, decision model.Decision) error
	Fail(ctx context.Context, id string, reason string) error
	Release(ctx context.Context, id string) error
}

func transition(t *model.DiscussionTask, next model.TaskStatus, now time.Time) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	if next.Terminal() {
		t.CompletedAt = &now
	}
	return nil
}

func appendMessage(t *model.DiscussionTask, msg model.Message) error {
	if t.Status != model.TaskProcessing {
		return fmt.Errorf("%w: append while %s", ErrInvalidTransition, t.Status)
	}
	t.Messages = append(t.Messages, msg)
	return nil
}

func complete(t *model.DiscussionTask, d model.Decision, now time.Time) error {
	if err := transition(t, model.TaskCompleted, now); err != nil {
		return err
	}
	t.Decision = &d
	return nil
}

func fail(t *model.DiscussionTask, reason string, now time.Time) error {
	if err := transition(t, model.TaskFailed, now); err != nil {
		return err
	}
	t.Error = reason
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("task %s: %w", id, model.ErrTaskNotFound)
}
