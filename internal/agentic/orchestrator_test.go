package agentic

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishbox/internal/llm"
	"phishbox/internal/model"
	"phishbox/internal/notify"
	"phishbox/internal/team"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) count(t notify.EventType) int {
	n := 0
	for _, et := range r.types() {
		if et == t {
			n++
		}
	}
	return n
}

var testEmail = &model.Email{
	ID:        42,
	Subject:   "Wire transfer needed today",
	Sender:    "ceo@examp1e.com",
	Recipient: "ap@bank.example",
	Body:      "Please send the payment to the new account before noon.",
}

func runToEnd(t *testing.T, gen llm.Generator, key model.TeamKey) (*model.DiscussionTask, *recorder) {
	t.Helper()
	events := &recorder{}
	o := NewOrchestrator(NewMemoryStore(time.Hour), gen, events, 100*time.Millisecond, zap.NewNop())

	task, err := o.Start(context.Background(), testEmail, key)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, task.Status)
	assert.Equal(t, gen.Name(), task.Backend)

	o.Wait()
	final, err := o.Store().Get(context.Background(), task.ID)
	require.NoError(t, err)
	return final, events
}

func TestDiscussionCompletesWithDecision(t *testing.T) {
	var (
		mu      sync.Mutex
		prompts []string
	)
	gen := llm.Func{BackendName: "fake", Fn: func(_ context.Context, system, prompt string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		prompts = append(prompts, prompt)
		return "This looks like CEO fraud.\nPOSITION: escalate", nil
	}}

	task, events := runToEnd(t, gen, model.TeamFraud)
	personas := team.Personas(model.TeamFraud)

	assert.Equal(t, model.TaskCompleted, task.Status)
	require.Len(t, task.Messages, len(personas))
	for i, m := range task.Messages {
		assert.Equal(t, i, m.Position)
		assert.Equal(t, personas[i].Name, m.Persona)
		assert.Equal(t, model.PositionEscalate, m.Stance)
		assert.False(t, m.Failed)
	}
	require.NotNil(t, task.Decision)
	assert.Equal(t, model.PositionEscalate, task.Decision.Outcome)
	assert.Equal(t, 100, task.Decision.Confidence)
	assert.Equal(t, len(personas), task.Decision.Responded)
	assert.NotNil(t, task.CompletedAt)

	// each persona sees everyone who spoke before it
	require.Len(t, prompts, len(personas))
	assert.Contains(t, prompts[0], "You are the first to speak.")
	for i := 1; i < len(prompts); i++ {
		for j := 0; j < i; j++ {
			assert.Contains(t, prompts[i], personas[j].Name+" (")
		}
		assert.Contains(t, prompts[i], testEmail.Subject)
	}

	assert.Equal(t, len(personas), events.count(notify.EventAgenticMessage))
	assert.Equal(t, 1, events.count(notify.EventAgenticCompleted))
	assert.Zero(t, events.count(notify.EventAgenticFailed))
	types := events.types()
	assert.Equal(t, notify.EventAgenticProgress, types[0])
	assert.Equal(t, notify.EventAgenticCompleted, types[len(types)-1])
}

func TestDiscussionFailsWhenBackendUnreachable(t *testing.T) {
	gen := llm.Func{BackendName: "down", Fn: func(context.Context, string, string) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	}}

	task, events := runToEnd(t, gen, model.TeamCompliance)
	personas := team.Personas(model.TeamCompliance)

	assert.Equal(t, model.TaskFailed, task.Status)
	require.Len(t, task.Messages, len(personas))
	for _, m := range task.Messages {
		assert.True(t, m.Failed)
		assert.Contains(t, m.Content, "connection refused")
	}
	assert.Nil(t, task.Decision)
	assert.NotEmpty(t, task.Error)
	assert.Equal(t, 1, events.count(notify.EventAgenticFailed))
	assert.Zero(t, events.count(notify.EventAgenticCompleted))
}

func TestDiscussionToleratesPartialFailureAndTimeouts(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	gen := llm.Func{BackendName: "flaky", Fn: func(ctx context.Context, _, _ string) (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		switch n {
		case 1:
			<-ctx.Done()
			return "", ctx.Err()
		case 2:
			return "", errors.New("rate limited")
		case 3:
			return "Probably a nuisance.\nPosition: monitor", nil
		default:
			return "Need to check the account.\nPOSITION: investigate", nil
		}
	}}

	task, _ := runToEnd(t, gen, model.TeamFraud)
	personas := team.Personas(model.TeamFraud)

	assert.Equal(t, model.TaskCompleted, task.Status)
	require.Len(t, task.Messages, len(personas))
	assert.True(t, task.Messages[0].Failed)
	assert.True(t, task.Messages[1].Failed)
	assert.False(t, task.Messages[2].Failed)
	require.NotNil(t, task.Decision)
	assert.Equal(t, 2, task.Decision.Failed)
	assert.Equal(t, len(personas)-2, task.Decision.Responded)
}

func TestDiscussionProgressIsVisibleBetweenSteps(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	step := make(chan struct{})
	gen := llm.Func{BackendName: "gated", Fn: func(ctx context.Context, _, _ string) (string, error) {
		select {
		case <-step:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "ok\nPOSITION: dismiss", nil
	}}
	o := NewOrchestrator(store, gen, notify.Discard{}, 5*time.Second, zap.NewNop())

	task, err := o.Start(context.Background(), testEmail, model.TeamOperations)
	require.NoError(t, err)

	total := len(team.Personas(model.TeamOperations))
	for i := 1; i <= total; i++ {
		step <- struct{}{}
		require.Eventually(t, func() bool {
			got, err := store.Get(context.Background(), task.ID)
			return err == nil && len(got.Messages) == i
		}, time.Second, 5*time.Millisecond)
	}
	o.Wait()

	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)
	assert.Equal(t, model.PositionDismiss, got.Decision.Outcome)
}

// blockingGenerator answers the first `answer` calls and then blocks each
// further call until its context ends, signalling on started.
func blockingGenerator(answer int, started chan<- struct{}) llm.Generator {
	var (
		mu    sync.Mutex
		calls int
	)
	return llm.Func{BackendName: "blocking", Fn: func(ctx context.Context, _, _ string) (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= answer {
			return "fine\nPOSITION: monitor", nil
		}
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

func TestSupersedeStopsRunningDiscussion(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	events := &recorder{}
	started := make(chan struct{}, 1)
	o := NewOrchestrator(store, blockingGenerator(0, started), events, 5*time.Second, zap.NewNop())

	task, err := o.Start(context.Background(), testEmail, model.TeamFraud)
	require.NoError(t, err)
	<-started

	o.Supersede(context.Background(), task.ID)
	o.Wait()

	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Equal(t, "superseded by re-assignment", got.Error)
	assert.Empty(t, got.Messages)
	assert.Nil(t, got.Decision)
	assert.Equal(t, 1, events.count(notify.EventAgenticFailed))
	assert.Zero(t, events.count(notify.EventAgenticCompleted))
}

func TestSupersedeKeepsFinishedOutcome(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	gen := llm.Func{BackendName: "fake", Fn: func(context.Context, string, string) (string, error) {
		return "POSITION: dismiss", nil
	}}
	o := NewOrchestrator(store, gen, nil, time.Second, zap.NewNop())

	task, err := o.Start(context.Background(), testEmail, model.TeamWealth)
	require.NoError(t, err)
	o.Wait()

	o.Supersede(context.Background(), task.ID)

	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, got.Status)
}

func TestSupersedePendingTask(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	o := NewOrchestrator(store, nil, nil, time.Second, zap.NewNop())

	task, err := o.Prepare(context.Background(), testEmail, model.TeamCorporate)
	require.NoError(t, err)
	o.Supersede(context.Background(), task.ID)

	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Equal(t, "superseded by re-assignment", got.Error)
}

func TestShutdownFailsInterruptedDiscussion(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	started := make(chan struct{}, 1)
	o := NewOrchestrator(store, blockingGenerator(1, started), nil, 5*time.Second, zap.NewNop())

	task, err := o.Start(context.Background(), testEmail, model.TeamCompliance)
	require.NoError(t, err)
	<-started

	o.Shutdown()

	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Equal(t, "interrupted by shutdown", got.Error)
	require.Len(t, got.Messages, 1)
	assert.False(t, got.Messages[0].Failed)
	assert.Nil(t, got.Decision)
}

func TestBuildPromptCutsBodyOnRuneBoundary(t *testing.T) {
	email := *testEmail
	email.Body = "x" + strings.Repeat("é", maxBodyChars)
	p := team.Personas(model.TeamFraud)[0]

	prompt := buildPrompt(&email, p, nil)
	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, "é...")
}

func TestPrepareRejectsUnknownTeam(t *testing.T) {
	o := NewOrchestrator(NewMemoryStore(time.Hour), nil, nil, time.Second, zap.NewNop())
	_, err := o.Prepare(context.Background(), testEmail, model.TeamKey("marketing"))
	assert.ErrorIs(t, err, model.ErrInvalidTeam)
}

func TestDiscussionWithoutBackendFails(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	o := NewOrchestrator(store, nil, nil, time.Second, zap.NewNop())

	task, err := o.Start(context.Background(), testEmail, model.TeamWealth)
	require.NoError(t, err)
	assert.Equal(t, "none", task.Backend)
	o.Wait()

	got, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		reply string
		want  model.Position
		ok    bool
	}{
		{"blah\nPOSITION: escalate", model.PositionEscalate, true},
		{"position - Monitor", model.PositionMonitor, true},
		{"Position: **investigate**", model.PositionInvestigate, true},
		{"POSITION: dismiss\nOn reflection, POSITION: escalate", model.PositionEscalate, true},
		{"I would escalate this", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePosition(tt.reply)
		assert.Equal(t, tt.ok, ok, tt.reply)
		assert.Equal(t, tt.want, got, tt.reply)
	}
}

func TestDecide(t *testing.T) {
	fraud, _ := team.Get(model.TeamFraud)
	msg := func(p model.Position) model.Message { return model.Message{Stance: p} }

	d := Decide(fraud, []model.Message{
		msg(model.PositionMonitor), msg(model.PositionMonitor), msg(model.PositionEscalate), {Failed: true},
	})
	assert.Equal(t, model.PositionMonitor, d.Outcome)
	assert.Equal(t, 66, d.Confidence)
	assert.Equal(t, 3, d.Responded)
	assert.Equal(t, 1, d.Failed)
	assert.True(t, strings.HasSuffix(d.Summary, "; 1 did not respond."))

	tie := Decide(fraud, []model.Message{msg(model.PositionDismiss), msg(model.PositionInvestigate)})
	assert.Equal(t, model.PositionInvestigate, tie.Outcome)
	assert.Equal(t, 50, tie.Confidence)

	none := Decide(fraud, []model.Message{{Content: "no idea"}})
	assert.Equal(t, model.PositionInvestigate, none.Outcome)
	assert.Zero(t, none.Confidence)
	assert.Equal(t, 1, none.Responded)
}
