package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phishbox/internal/classifier"
	"phishbox/internal/enrichment"
	"phishbox/internal/model"
	"phishbox/internal/notify"
	"phishbox/pkg/logger"
	"phishbox/pkg/metrics"
	"phishbox/pkg/util"
)

const classifyConcurrency = 4

var ErrInvalidEmail = errors.New("invalid email")

type EmailStore interface {
	InsertIfNew(ctx context.Context, in model.IncomingEmail) (*model.Email, bool, error)
	UpdateClassification(ctx context.Context, id int64, c model.Classification) error
}

type ResultStore interface {
	InsertAll(ctx context.Context, results []model.WorkflowResult) error
}

type Enricher interface {
	Enrich(ctx context.Context, sender, recipient string) enrichment.Result
}

type Classifier interface {
	Classify(ctx context.Context, email *model.Email) classifier.Verdict
}

// SuggestTrigger starts the background suggestion batch.
type SuggestTrigger interface {
	Trigger(ctx context.Context)
}

type Service struct {
	emails   EmailStore
	results  ResultStore
	enricher Enricher
	pool     Classifier
	suggest  SuggestTrigger
	events   notify.Publisher
	logger   *zap.Logger
}

func NewService(emails EmailStore, results ResultStore, enricher Enricher, pool Classifier, suggest SuggestTrigger, events notify.Publisher, logger *zap.Logger) *Service {
	return &Service{
		emails:   emails,
		results:  results,
		enricher: enricher,
		pool:     pool,
		suggest:  suggest,
		events:   events,
		logger:   logger,
	}
}

// Validate checks the fields every ingested email needs.
func Validate(in model.IncomingEmail) error {
	if strings.TrimSpace(in.ExternalID) == "" {
		return fmt.Errorf("%w: external_id is required", ErrInvalidEmail)
	}
	if strings.TrimSpace(in.Sender) == "" {
		return fmt.Errorf("%w: sender is required for %s", ErrInvalidEmail, in.ExternalID)
	}
	return nil
}

// ProcessBatch stores every new email and classifies it. Emails already
// stored and processed are skipped, so a redelivered batch only finishes
// what an earlier attempt left undone. A retryable storage error aborts the
// batch; any other per-email error is logged and counted.
func (s *Service) ProcessBatch(ctx context.Context, batch BatchMessage) (Summary, error) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("batch_id", batch.BatchID))
	sum := Summary{BatchID: batch.BatchID, Received: len(batch.Emails)}

	var pending []*model.Email
	for _, in := range batch.Emails {
		if err := Validate(in); err != nil {
			log.Warn("Skipping invalid email", zap.Error(err))
			metrics.IncrementEmailsIngested("invalid")
			sum.Failed++
			continue
		}

		email, inserted, err := s.emails.InsertIfNew(ctx, in)
		if err != nil {
			if retryable, _ := util.IsRetryableError(err); retryable {
				return sum, err
			}
			log.Error("Failed to store email", zap.String("external_id", in.ExternalID), zap.Error(err))
			metrics.IncrementEmailsIngested("failed")
			sum.Failed++
			continue
		}

		if inserted {
			sum.Inserted++
			metrics.IncrementEmailsIngested("inserted")
		} else {
			sum.Duplicates++
			metrics.IncrementEmailsIngested("duplicate")
		}
		if inserted || !email.Processed {
			pending = append(pending, email)
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(classifyConcurrency)
	for _, email := range pending {
		email := email
		g.Go(func() error {
			err := s.processEmail(ctx, email)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if retryable, _ := util.IsRetryableError(err); retryable {
					return err
				}
				log.Error("Failed to classify email", zap.Int64("email_id", email.ID), zap.Error(err))
				sum.Failed++
				return nil
			}
			sum.Processed++
			if email.IsPhishing {
				sum.Phishing++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	s.events.Publish(ctx, notify.NewEvent(notify.EventStatisticsUpdated, map[string]any{
		"batch_id":  batch.BatchID,
		"processed": sum.Processed,
		"phishing":  sum.Phishing,
	}))
	s.events.Publish(ctx, notify.NewEvent(notify.EventFetchCompleted, sum))

	log.Info("Batch processed",
		zap.Int("received", sum.Received),
		zap.Int("inserted", sum.Inserted),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("phishing", sum.Phishing),
		zap.Int("failed", sum.Failed),
	)

	if s.suggest != nil {
		s.suggest.Trigger(ctx)
	}
	return sum, nil
}

func (s *Service) processEmail(ctx context.Context, email *model.Email) error {
	enriched := s.enricher.Enrich(ctx, email.Sender, email.Recipient)
	verdict := s.pool.Classify(ctx, email)

	if err := s.results.InsertAll(ctx, verdict.Results); err != nil {
		return err
	}

	body := classifier.ParseBody(email.Body)
	c := model.Classification{
		IsPhishing:          verdict.IsPhishing,
		Summary:             classifier.Summarise(email.Subject, body),
		CallToActions:       classifier.CallsToAction(body),
		WikiEnrichment:      enriched.Wiki,
		DirectoryEnrichment: enriched.Directory,
	}
	if err := s.emails.UpdateClassification(ctx, email.ID, c); err != nil {
		return err
	}

	email.Processed = true
	email.IsPhishing = c.IsPhishing
	email.Summary = c.Summary
	email.CallToActions = c.CallToActions

	s.events.Publish(ctx, notify.NewEvent(notify.EventEmailFetched, map[string]any{
		"email_id":    email.ID,
		"external_id": email.ExternalID,
		"subject":     email.Subject,
		"is_phishing": email.IsPhishing,
		"detectors":   len(verdict.Results),
	}))
	return nil
}
