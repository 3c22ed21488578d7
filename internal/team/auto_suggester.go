package team

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"phishbox/internal/model"
	"phishbox/internal/notify"
)

// MaxBatchSize caps one background suggestion run.
const MaxBatchSize = 50

// SuggestionStore is the slice of the email repository the batch needs.
type SuggestionStore interface {
	ListUnsuggested(ctx context.Context, limit int) ([]*model.Email, error)
	SetSuggestedTeamIfUnset(ctx context.Context, id int64, team model.TeamKey) (bool, error)
}

// Claimer keeps two workers from suggesting the same email at once.
// *util.Deduper satisfies it.
type Claimer interface {
	AcquireOnce(ctx context.Context, scope string, id int64) bool
	Release(ctx context.Context, scope string, id int64)
}

// AutoSuggester runs bounded background suggestion batches after ingestion.
// Only one batch runs per process at a time; a trigger while one is running
// is ignored, and emails it would have seen are picked up by the next one.
type AutoSuggester struct {
	suggester *Suggester
	store     SuggestionStore
	claimer   Claimer
	events    notify.Publisher
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger

	running atomic.Bool
}

func NewAutoSuggester(suggester *Suggester, store SuggestionStore, claimer Claimer, events notify.Publisher, batchSize int, logger *zap.Logger) *AutoSuggester {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &AutoSuggester{
		suggester: suggester,
		store:     store,
		claimer:   claimer,
		events:    events,
		batchSize: batchSize,
		timeout:   5 * time.Minute,
		logger:    logger,
	}
}

// WithRateLimit spaces suggestions so a large backlog does not burst the
// text generation backend. perMinute <= 0 disables the limit.
func (a *AutoSuggester) WithRateLimit(perMinute int) *AutoSuggester {
	if perMinute <= 0 {
		a.limiter = nil
		return a
	}
	a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return a
}

// Trigger starts a batch in the background and returns immediately. The
// batch outlives ctx's cancellation but keeps its values (trace id).
func (a *AutoSuggester) Trigger(ctx context.Context) {
	if !a.running.CompareAndSwap(false, true) {
		a.logger.Debug("Suggestion batch already running, skipping trigger")
		return
	}

	go func() {
		defer a.running.Store(false)

		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if _, err := a.runBatch(bctx); err != nil {
			a.logger.Error("Suggestion batch failed", zap.Error(err))
		}
	}()
}

// RunBatch runs one batch synchronously and returns how many emails got a
// suggestion. It returns 0 without work when another batch is running.
func (a *AutoSuggester) RunBatch(ctx context.Context) (int, error) {
	if !a.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer a.running.Store(false)
	return a.runBatch(ctx)
}

func (a *AutoSuggester) runBatch(ctx context.Context) (int, error) {
	emails, err := a.store.ListUnsuggested(ctx, a.batchSize)
	if err != nil {
		return 0, err
	}
	if len(emails) == 0 {
		return 0, nil
	}

	a.logger.Info("Running suggestion batch", zap.Int("emails", len(emails)))

	suggested := 0
	for _, email := range emails {
		if ctx.Err() != nil {
			break
		}
		if email.SuggestedTeam != nil {
			continue
		}
		if a.claimer != nil && !a.claimer.AcquireOnce(ctx, "suggest", email.ID) {
			continue
		}

		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				if a.claimer != nil {
					a.claimer.Release(ctx, "suggest", email.ID)
				}
				break
			}
		}

		s := a.suggester.Suggest(ctx, email)

		ok, err := a.store.SetSuggestedTeamIfUnset(ctx, email.ID, s.Team)
		if err != nil {
			a.logger.Error("Failed to store suggestion",
				zap.Int64("email_id", email.ID),
				zap.Error(err),
			)
			if a.claimer != nil {
				a.claimer.Release(ctx, "suggest", email.ID)
			}
			continue
		}
		if !ok {
			continue
		}

		suggested++
		a.events.Publish(ctx, notify.NewEvent(notify.EventTeamSuggested, map[string]any{
			"email_id": email.ID,
			"team":     s.Team,
			"source":   s.Source,
		}))
	}

	a.logger.Info("Suggestion batch finished",
		zap.Int("examined", len(emails)),
		zap.Int("suggested", suggested),
	)
	return suggested, nil
}
