package assignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishbox/internal/agentic"
	"phishbox/internal/llm"
	"phishbox/internal/model"
	"phishbox/internal/notify"
	"phishbox/internal/team"
)

type fakeEmails struct {
	mu        sync.Mutex
	emails    map[int64]*model.Email
	assignErr error
	audit     []model.TeamAssignment
}

func (f *fakeEmails) GetByID(_ context.Context, id int64) (*model.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.emails[id]
	if !ok {
		return nil, fmt.Errorf("email %d: %w", id, model.ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (f *fakeEmails) SetSuggestedTeam(_ context.Context, id int64, key model.TeamKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails[id].SuggestedTeam = &key
	return nil
}

func (f *fakeEmails) AssignTeam(_ context.Context, id int64, key model.TeamKey, taskID, operator string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	e, ok := f.emails[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	prev := e.AgenticTaskID
	now := time.Now()
	e.AssignedTeam, e.AgenticTaskID, e.TeamAssignedAt = &key, &taskID, &now
	f.audit = append(f.audit, model.TeamAssignment{EmailID: id, Team: key, TaskID: taskID, PreviousTaskID: prev, AssignedBy: operator})
	return prev, nil
}

type events struct {
	mu  sync.Mutex
	got []notify.Event
}

func (e *events) Publish(_ context.Context, evt notify.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, evt)
}

func (e *events) has(t notify.EventType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, evt := range e.got {
		if evt.Type == t {
			return true
		}
	}
	return false
}

func newService(t *testing.T, emails *fakeEmails, gen llm.Generator) (*Service, *agentic.Orchestrator, *events) {
	t.Helper()
	ev := &events{}
	store := agentic.NewMemoryStore(time.Hour)
	orch := agentic.NewOrchestrator(store, gen, ev, time.Second, zap.NewNop())
	t.Cleanup(orch.Shutdown)
	svc := NewService(emails, orch, store, team.NewSuggester(nil, time.Second, zap.NewNop()), ev, zap.NewNop())
	return svc, orch, ev
}

var agree = llm.Func{BackendName: "fake", Fn: func(context.Context, string, string) (string, error) {
	return "Agreed.\nPOSITION: investigate", nil
}}

func TestStateOf(t *testing.T) {
	k := model.TeamFraud
	id := "t"
	assert.Equal(t, StateUnassigned, StateOf(&model.Email{}))
	assert.Equal(t, StateSuggested, StateOf(&model.Email{SuggestedTeam: &k}))
	assert.Equal(t, StateAssigned, StateOf(&model.Email{SuggestedTeam: &k, AssignedTeam: &k, AgenticTaskID: &id}))
}

func TestSuggestLeavesAssignmentUntouched(t *testing.T) {
	assigned := model.TeamWealth
	taskID := "task-0"
	emails := &fakeEmails{emails: map[int64]*model.Email{
		1: {ID: 1, Subject: "Your loan repayment is overdue", AssignedTeam: &assigned, AgenticTaskID: &taskID},
	}}
	svc, _, ev := newService(t, emails, agree)

	s, err := svc.Suggest(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.TeamCreditRisk, s.Team)
	assert.Equal(t, team.SourceKeyword, s.Source)

	e := emails.emails[1]
	assert.Equal(t, model.TeamCreditRisk, *e.SuggestedTeam)
	assert.Equal(t, model.TeamWealth, *e.AssignedTeam)
	assert.Equal(t, "task-0", *e.AgenticTaskID)
	assert.True(t, ev.has(notify.EventTeamSuggested))
}

func TestSuggestUnknownEmail(t *testing.T) {
	svc, _, _ := newService(t, &fakeEmails{emails: map[int64]*model.Email{}}, agree)
	_, err := svc.Suggest(context.Background(), 9)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAssignStartsDiscussion(t *testing.T) {
	suggested := model.TeamCompliance
	emails := &fakeEmails{emails: map[int64]*model.Email{
		42: {ID: 42, Subject: "Invoice", SuggestedTeam: &suggested},
	}}
	svc, orch, ev := newService(t, emails, agree)

	res, err := svc.Assign(context.Background(), 42, "Fraud", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TeamFraud, res.Team)
	assert.Equal(t, model.TaskPending, res.Status)
	assert.Equal(t, "/api/agentic/tasks/"+res.TaskID, res.WorkflowURL)
	assert.Nil(t, res.PreviousTaskID)

	e := emails.emails[42]
	assert.Equal(t, StateAssigned, StateOf(e))
	assert.Equal(t, res.TaskID, *e.AgenticTaskID)
	assert.NotNil(t, e.TeamAssignedAt)
	assert.Equal(t, model.TeamCompliance, *e.SuggestedTeam)
	assert.True(t, ev.has(notify.EventTeamAssigned))

	orch.Wait()
	task, err := svc.WorkflowStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, res.TaskID, task.ID)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Len(t, task.Messages, len(team.Personas(model.TeamFraud)))
	assert.NotNil(t, task.Decision)
}

func TestReassignKeepsOldTaskReachableById(t *testing.T) {
	emails := &fakeEmails{emails: map[int64]*model.Email{7: {ID: 7}}}
	svc, orch, _ := newService(t, emails, agree)
	ctx := context.Background()

	first, err := svc.Assign(ctx, 7, "fraud", "alice")
	require.NoError(t, err)
	orch.Wait()
	second, err := svc.Assign(ctx, 7, "operations", "bob")
	require.NoError(t, err)
	orch.Wait()

	assert.NotEqual(t, first.TaskID, second.TaskID)
	require.NotNil(t, second.PreviousTaskID)
	assert.Equal(t, first.TaskID, *second.PreviousTaskID)

	current, err := svc.WorkflowStatus(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, second.TaskID, current.ID)
	assert.Equal(t, model.TeamOperations, current.Team)

	old, err := svc.Task(ctx, first.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TeamFraud, old.Team)
	assert.Equal(t, model.TaskCompleted, old.Status)

	require.Len(t, emails.audit, 2)
	assert.Equal(t, "bob", emails.audit[1].AssignedBy)
}

func TestReassignStopsInFlightDiscussion(t *testing.T) {
	emails := &fakeEmails{emails: map[int64]*model.Email{7: {ID: 7}}}
	started := make(chan struct{}, 1)
	var (
		mu    sync.Mutex
		calls int
	)
	gen := llm.Func{BackendName: "fake", Fn: func(ctx context.Context, _, _ string) (string, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			started <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "POSITION: investigate", nil
	}}
	svc, orch, ev := newService(t, emails, gen)
	ctx := context.Background()

	first, err := svc.Assign(ctx, 7, "fraud", "alice")
	require.NoError(t, err)
	<-started

	second, err := svc.Assign(ctx, 7, "operations", "bob")
	require.NoError(t, err)
	orch.Wait()

	old, err := svc.Task(ctx, first.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, old.Status)
	assert.Equal(t, "superseded by re-assignment", old.Error)
	assert.Empty(t, old.Messages)

	current, err := svc.WorkflowStatus(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, second.TaskID, current.ID)
	assert.Equal(t, model.TaskCompleted, current.Status)
	assert.True(t, ev.has(notify.EventAgenticFailed))
}

func TestAssignRejectsInvalidTeam(t *testing.T) {
	emails := &fakeEmails{emails: map[int64]*model.Email{1: {ID: 1}}}
	svc, _, _ := newService(t, emails, agree)

	for _, key := range []string{"", "marketing", "fraud;drop"} {
		_, err := svc.Assign(context.Background(), 1, key, "alice")
		assert.ErrorIs(t, err, model.ErrInvalidTeam, key)
	}
	assert.Nil(t, emails.emails[1].AssignedTeam)
}

func TestAssignUnknownEmail(t *testing.T) {
	svc, _, _ := newService(t, &fakeEmails{emails: map[int64]*model.Email{}}, agree)
	_, err := svc.Assign(context.Background(), 5, "fraud", "alice")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAssignFailureAbortsPreparedTask(t *testing.T) {
	emails := &fakeEmails{
		emails:    map[int64]*model.Email{1: {ID: 1}},
		assignErr: errors.New("connection reset"),
	}
	var calls int
	gen := llm.Func{BackendName: "count", Fn: func(context.Context, string, string) (string, error) {
		calls++
		return "POSITION: dismiss", nil
	}}
	svc, orch, _ := newService(t, emails, gen)

	_, err := svc.Assign(context.Background(), 1, "fraud", "alice")
	require.Error(t, err)
	orch.Wait()

	assert.Zero(t, calls)
	assert.Nil(t, emails.emails[1].AgenticTaskID)
}

func TestWorkflowStatusWithoutAssignment(t *testing.T) {
	svc, _, _ := newService(t, &fakeEmails{emails: map[int64]*model.Email{1: {ID: 1}}}, agree)
	_, err := svc.WorkflowStatus(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrTaskNotFound)
}
