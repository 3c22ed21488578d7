package model

import (
	"encoding/json"
	"time"
)

// WorkflowResult records one detector run on one email.
type WorkflowResult struct {
	ID                 int64           `json:"id"`
	EmailID            int64           `json:"email_id"`
	WorkflowName       string          `json:"workflow_name"`
	IsPhishingDetected bool            `json:"is_phishing_detected"`
	ConfidenceScore    int             `json:"confidence_score"`
	RiskIndicators     []string        `json:"risk_indicators"`
	Result             json.RawMessage `json:"result,omitempty"`
	ExecutedAt         time.Time       `json:"executed_at"`
}

// ClampConfidence bounds a confidence score to [0,100].
func ClampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
