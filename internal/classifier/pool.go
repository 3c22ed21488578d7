package classifier

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phishbox/internal/model"
	"phishbox/pkg/metrics"
)

// HighConfidence is the confidence at which a single detector's flag is
// enough to call an email phishing.
const HighConfidence = 90

// Verdict is the pool's combined answer for one email.
type Verdict struct {
	IsPhishing bool
	Results    []model.WorkflowResult
	Failed     []string
}

// Pool runs every detector concurrently on an email.
type Pool struct {
	detectors []Detector
	timeout   time.Duration
	logger    *zap.Logger
}

// NewPool keeps the first detector for each name. Results are stored per
// detector name, so a second detector with the same name would collide.
func NewPool(detectors []Detector, timeout time.Duration, logger *zap.Logger) *Pool {
	seen := make(map[string]bool, len(detectors))
	unique := make([]Detector, 0, len(detectors))
	for _, d := range detectors {
		if seen[d.Name()] {
			logger.Warn("Ignoring duplicate detector", zap.String("detector", d.Name()))
			continue
		}
		seen[d.Name()] = true
		unique = append(unique, d)
	}
	return &Pool{detectors: unique, timeout: timeout, logger: logger}
}

// DefaultDetectors returns the rule detectors plus one HTTP detector per
// configured model name.
func DefaultDetectors(modelURL string, models []string, timeout time.Duration) []Detector {
	ds := []Detector{
		NewUrgencyDetector(),
		NewCredentialRequestDetector(),
		NewURLDetector(),
		NewSenderSpoofingDetector(),
	}
	if modelURL != "" {
		for _, m := range models {
			if m = strings.TrimSpace(m); m == "" {
				continue
			}
			ds = append(ds, NewModelDetector(modelURL, m, timeout))
		}
	}
	return ds
}

func (p *Pool) Detectors() []Detector {
	return p.detectors
}

// Classify never fails as a whole: a detector that errors or times out is
// logged, counted and left out of the aggregate.
func (p *Pool) Classify(ctx context.Context, email *model.Email) Verdict {
	var (
		mu       sync.Mutex
		outcomes = make(map[string]Outcome, len(p.detectors))
		failed   []string
	)

	var g errgroup.Group
	for _, d := range p.detectors {
		d := d
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			out, err := d.Classify(dctx, email)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.IncrementDetectorRun(d.Name(), "error")
				p.logger.Warn("Detector failed",
					zap.String("detector", d.Name()),
					zap.Int64("email_id", email.ID),
					zap.Error(err),
				)
				failed = append(failed, d.Name())
				return nil
			}
			outcome := "clean"
			if out.IsPhishing {
				outcome = "phishing"
			}
			metrics.IncrementDetectorRun(d.Name(), outcome)
			outcomes[d.Name()] = out
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now().UTC()
	results := make([]model.WorkflowResult, 0, len(outcomes))
	for _, d := range p.detectors {
		out, ok := outcomes[d.Name()]
		if !ok {
			continue
		}
		details, _ := json.Marshal(out.Details)
		indicators := out.Indicators
		if indicators == nil {
			indicators = []string{}
		}
		results = append(results, model.WorkflowResult{
			EmailID:            email.ID,
			WorkflowName:       d.Name(),
			IsPhishingDetected: out.IsPhishing,
			ConfidenceScore:    model.ClampConfidence(out.Confidence),
			RiskIndicators:     indicators,
			Result:             details,
			ExecutedAt:         now,
		})
	}

	return Verdict{
		IsPhishing: Aggregate(results),
		Results:    results,
		Failed:     failed,
	}
}

// Aggregate calls an email phishing when any detector flags it with high
// confidence, or when a strict majority of detectors that ran flag it.
func Aggregate(results []model.WorkflowResult) bool {
	if len(results) == 0 {
		return false
	}
	flagged := 0
	for _, r := range results {
		if !r.IsPhishingDetected {
			continue
		}
		if r.ConfidenceScore >= HighConfidence {
			return true
		}
		flagged++
	}
	return flagged*2 > len(results)
}
