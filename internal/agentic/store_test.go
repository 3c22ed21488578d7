package agentic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phishbox/internal/model"
)

func newTask(id string) *model.DiscussionTask {
	return &model.DiscussionTask{
		ID:        id,
		EmailID:   42,
		Team:      model.TeamFraud,
		Status:    model.TaskPending,
		Messages:  []model.Message{},
		CreatedAt: time.Now().UTC(),
	}
}

// exerciseStore runs the shared transition rules against any TaskStore.
func exerciseStore(t *testing.T, s TaskStore) {
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTask("t1")))
	assert.Error(t, s.Create(ctx, newTask("t1")))

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrTaskNotFound)
	assert.ErrorIs(t, s.Release(ctx, "missing"), model.ErrTaskNotFound)

	// no messages before processing
	assert.ErrorIs(t, s.AppendMessage(ctx, "t1", model.Message{Persona: "a"}), ErrInvalidTransition)
	assert.ErrorIs(t, s.Complete(ctx, "t1", model.Decision{}), ErrInvalidTransition)

	require.NoError(t, s.MarkProcessing(ctx, "t1"))
	assert.ErrorIs(t, s.MarkProcessing(ctx, "t1"), ErrInvalidTransition)

	require.NoError(t, s.AppendMessage(ctx, "t1", model.Message{Position: 0, Persona: "a", Content: "one"}))
	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "one", got.Messages[0].Content)

	require.NoError(t, s.AppendMessage(ctx, "t1", model.Message{Position: 1, Persona: "b", Content: "two"}))
	require.NoError(t, s.Complete(ctx, "t1", model.Decision{Outcome: model.PositionEscalate}))

	got, err = s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)
	assert.Len(t, got.Messages, 2)
	require.NotNil(t, got.Decision)
	assert.Equal(t, model.PositionEscalate, got.Decision.Outcome)
	assert.NotNil(t, got.CompletedAt)

	// finished tasks are frozen
	assert.ErrorIs(t, s.AppendMessage(ctx, "t1", model.Message{Persona: "c"}), ErrInvalidTransition)
	assert.ErrorIs(t, s.Fail(ctx, "t1", "late"), ErrInvalidTransition)
	got, err = s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, model.TaskCompleted, got.Status)

	// pending tasks may fail directly
	require.NoError(t, s.Create(ctx, newTask("t2")))
	require.NoError(t, s.Fail(ctx, "t2", "assignment rolled back"))
	got, err = s.Get(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Equal(t, "assignment rolled back", got.Error)
	assert.Nil(t, got.Decision)

	// released tasks stay readable until evicted
	require.NoError(t, s.Release(ctx, "t2"))
	_, err = s.Get(ctx, "t2")
	assert.NoError(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Hour))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	require.NoError(t, s.Create(ctx, newTask("t1")))
	require.NoError(t, s.MarkProcessing(ctx, "t1"))
	require.NoError(t, s.AppendMessage(ctx, "t1", model.Message{Content: "original"}))

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"
	got.Status = model.TaskFailed

	again, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
	assert.Equal(t, model.TaskProcessing, again.Status)
}

func TestMemoryStoreSweepsOnlyReleasedFinishedTasks(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Create(ctx, newTask("superseded")))
	require.NoError(t, s.Fail(ctx, "superseded", "superseded by re-assignment"))
	require.NoError(t, s.Release(ctx, "superseded"))

	// still linked from an email
	require.NoError(t, s.Create(ctx, newTask("current")))
	require.NoError(t, s.Fail(ctx, "current", "no persona produced a response"))

	require.NoError(t, s.Create(ctx, newTask("released-running")))
	require.NoError(t, s.MarkProcessing(ctx, "released-running"))
	require.NoError(t, s.Release(ctx, "released-running"))

	now = now.Add(2 * time.Hour)
	require.NoError(t, s.Create(ctx, newTask("new")))

	assert.Equal(t, 3, s.Len())
	_, err := s.Get(ctx, "superseded")
	assert.ErrorIs(t, err, model.ErrTaskNotFound)
	_, err = s.Get(ctx, "current")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "released-running")
	assert.NoError(t, err)
}
