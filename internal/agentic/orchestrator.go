package agentic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phishbox/internal/llm"
	"phishbox/internal/model"
	"phishbox/internal/notify"
	"phishbox/internal/team"
	"phishbox/pkg/metrics"
	"phishbox/pkg/trace"
)

var (
	errSuperseded = errors.New("superseded by re-assignment")
	errShutdown   = errors.New("interrupted by shutdown")
)

// Orchestrator starts discussions and runs them in the background. The
// generator is fixed at construction, so every task created by one
// orchestrator uses the same backend from first persona to last.
type Orchestrator struct {
	store       TaskStore
	gen         llm.Generator
	events      notify.Publisher
	stepTimeout time.Duration
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup
	now    func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

func NewOrchestrator(store TaskStore, gen llm.Generator, events notify.Publisher, stepTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Orchestrator{
		store:       store,
		gen:         gen,
		events:      events,
		stepTimeout: stepTimeout,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
		running:     make(map[string]context.CancelCauseFunc),
	}
}

func (o *Orchestrator) Backend() string {
	if o.gen == nil {
		return "none"
	}
	return o.gen.Name()
}

func (o *Orchestrator) Store() TaskStore {
	return o.store
}

// Prepare records a pending task for email and team without running it.
func (o *Orchestrator) Prepare(ctx context.Context, email *model.Email, key model.TeamKey) (*model.DiscussionTask, error) {
	if _, ok := team.Get(key); !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidTeam, key)
	}

	task := &model.DiscussionTask{
		ID:        uuid.NewString(),
		EmailID:   email.ID,
		Team:      key,
		Backend:   o.Backend(),
		Status:    model.TaskPending,
		Personas:  len(team.Personas(key)),
		Messages:  []model.Message{},
		CreatedAt: o.now().UTC(),
	}
	if err := o.store.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Run starts the discussion for a prepared task and returns at once. The
// run is detached from ctx; only its trace id is carried over.
func (o *Orchestrator) Run(ctx context.Context, task *model.DiscussionTask, email *model.Email) {
	runCtx, cancel := context.WithCancelCause(trace.WithContext(o.ctx, trace.FromContext(ctx)))
	snapshot := *email

	o.mu.Lock()
	o.running[task.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.running, task.ID)
			o.mu.Unlock()
			cancel(nil)
		}()
		o.run(runCtx, task.ID, &snapshot, task.Team)
	}()
}

// Start prepares and runs a discussion.
func (o *Orchestrator) Start(ctx context.Context, email *model.Email, key model.TeamKey) (*model.DiscussionTask, error) {
	task, err := o.Prepare(ctx, email, key)
	if err != nil {
		return nil, err
	}
	o.Run(ctx, task, email)
	return task, nil
}

// Abort fails a prepared task that will never run. No email points at it,
// so it may be evicted.
func (o *Orchestrator) Abort(ctx context.Context, taskID, reason string) {
	if err := o.store.Fail(ctx, taskID, reason); err != nil {
		o.logger.Warn("Failed to abort task", zap.String("task_id", taskID), zap.Error(err))
	}
	o.release(ctx, taskID)
}

// Supersede invalidates a task that an email no longer points at. A running
// discussion stops after its current persona step and ends failed; a task
// that already finished keeps its outcome. Either way it stays readable by
// id until the store evicts it.
func (o *Orchestrator) Supersede(ctx context.Context, taskID string) {
	o.mu.Lock()
	cancel, running := o.running[taskID]
	o.mu.Unlock()

	if running {
		cancel(errSuperseded)
	} else if err := o.store.Fail(ctx, taskID, errSuperseded.Error()); err != nil && !errors.Is(err, ErrInvalidTransition) {
		o.logger.Warn("Failed to supersede task", zap.String("task_id", taskID), zap.Error(err))
	}
	o.release(ctx, taskID)
}

func (o *Orchestrator) release(ctx context.Context, taskID string) {
	if err := o.store.Release(ctx, taskID); err != nil {
		o.logger.Warn("Failed to release task", zap.String("task_id", taskID), zap.Error(err))
	}
}

// Wait blocks until every running discussion has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels running discussions and waits for them to record their
// final state.
func (o *Orchestrator) Shutdown() {
	o.cancel(errShutdown)
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, taskID string, email *model.Email, key model.TeamKey) {
	log := o.logger.With(
		zap.String("task_id", taskID),
		zap.Int64("email_id", email.ID),
		zap.String("team", string(key)),
		zap.String("trace_id", trace.FromContext(ctx)),
	)
	t, _ := team.Get(key)
	personas := t.Personas

	// Store writes use a context that outlives shutdown so the final state lands.
	storeCtx := context.WithoutCancel(ctx)

	if err := o.store.MarkProcessing(storeCtx, taskID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Info("Discussion no longer pending, not starting", zap.Error(err))
		} else {
			log.Error("Failed to start discussion", zap.Error(err))
		}
		return
	}
	o.publish(ctx, notify.EventAgenticProgress, map[string]any{
		"task_id": taskID, "email_id": email.ID, "status": model.TaskProcessing,
		"step": 0, "total_personas": len(personas),
	})

	transcript := make([]model.Message, 0, len(personas))
	responded := 0

	for i, p := range personas {
		if ctx.Err() != nil {
			o.finishFailed(storeCtx, log, taskID, email.ID, context.Cause(ctx).Error())
			return
		}
		o.publish(ctx, notify.EventAgenticProgress, map[string]any{
			"task_id": taskID, "email_id": email.ID, "status": model.TaskProcessing,
			"step": i + 1, "total_personas": len(personas), "persona": p.Name,
		})

		msg := o.speak(ctx, t, p, email, transcript)
		if ctx.Err() != nil {
			// The step was cut short by the run itself, not by the persona.
			o.finishFailed(storeCtx, log, taskID, email.ID, context.Cause(ctx).Error())
			return
		}
		msg.Position = i
		if msg.Failed {
			log.Warn("Persona failed", zap.String("persona", p.Name), zap.String("reason", msg.Content))
		} else {
			responded++
		}

		if err := o.store.AppendMessage(storeCtx, taskID, msg); err != nil {
			log.Error("Failed to record persona message", zap.String("persona", p.Name), zap.Error(err))
			o.finishFailed(storeCtx, log, taskID, email.ID, "could not record discussion: "+err.Error())
			return
		}
		transcript = append(transcript, msg)

		o.publish(ctx, notify.EventAgenticMessage, map[string]any{
			"task_id": taskID, "email_id": email.ID, "message": msg,
		})
	}

	if responded == 0 {
		o.finishFailed(storeCtx, log, taskID, email.ID, "no persona produced a response")
		return
	}

	decision := Decide(t, transcript)
	if err := o.store.Complete(storeCtx, taskID, decision); err != nil {
		log.Error("Failed to complete discussion", zap.Error(err))
		return
	}
	metrics.IncrementAgenticTask(string(model.TaskCompleted))
	log.Info("Discussion completed",
		zap.String("outcome", string(decision.Outcome)),
		zap.Int("responded", decision.Responded),
		zap.Int("failed", decision.Failed),
	)
	o.publish(ctx, notify.EventAgenticCompleted, map[string]any{
		"task_id": taskID, "email_id": email.ID, "decision": decision,
	})
}

// speak runs one persona step. Errors and timeouts become a placeholder
// message rather than ending the discussion.
func (o *Orchestrator) speak(ctx context.Context, t team.Team, p team.Persona, email *model.Email, transcript []model.Message) model.Message {
	msg := model.Message{Persona: p.Name, Role: p.Role}

	if o.gen == nil {
		msg.Failed = true
		msg.Content = "No text-generation backend is configured."
		msg.Timestamp = o.now().UTC()
		return msg
	}

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	start := time.Now()
	reply, err := o.gen.Generate(stepCtx, systemPrompt(t, p), buildPrompt(email, p, transcript))
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMCallLatency(o.gen.Name(), "discussion", status, time.Since(start))

	msg.Timestamp = o.now().UTC()
	if err != nil {
		msg.Failed = true
		msg.Content = fmt.Sprintf("%s could not respond: %v", p.Name, err)
		return msg
	}

	msg.Content = reply
	if stance, ok := ParsePosition(reply); ok {
		msg.Stance = stance
	}
	return msg
}

func (o *Orchestrator) finishFailed(ctx context.Context, log *zap.Logger, taskID string, emailID int64, reason string) {
	if err := o.store.Fail(ctx, taskID, reason); err != nil {
		log.Error("Failed to mark discussion failed", zap.Error(err))
		return
	}
	metrics.IncrementAgenticTask(string(model.TaskFailed))
	log.Warn("Discussion failed", zap.String("reason", reason))
	o.publish(ctx, notify.EventAgenticFailed, map[string]any{
		"task_id": taskID, "email_id": emailID, "error": reason,
	})
}

func (o *Orchestrator) publish(ctx context.Context, t notify.EventType, data map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(ctx, notify.NewEvent(t, data))
}
