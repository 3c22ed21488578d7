// Package classifier runs the phishing detectors over an email and folds
// their verdicts into one.
package classifier

import (
	"context"

	"phishbox/internal/model"
)

// Outcome is one detector's verdict on one email.
type Outcome struct {
	IsPhishing bool
	Confidence int
	Indicators []string
	Details    map[string]any
}

// Detector is a named classifier. Implementations must be safe for
// concurrent use across emails.
type Detector interface {
	Name() string
	Classify(ctx context.Context, email *model.Email) (Outcome, error)
}
