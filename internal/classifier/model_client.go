package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"phishbox/internal/model"
	"phishbox/pkg/circuitbreaker"
	"phishbox/pkg/trace"
)

// ModelDetector asks an external model server for a verdict. The server is
// a black box: POST /predict {model, subject, body, sender} returning
// {is_phishing, confidence}.
type ModelDetector struct {
	model      string
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewModelDetector(baseURL, modelName string, timeout time.Duration) *ModelDetector {
	return &ModelDetector{
		model:      modelName,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cb: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			HalfOpenMaxRequests: 2,
		}),
	}
}

func (d *ModelDetector) Name() string {
	return "model_" + d.model
}

type predictRequest struct {
	Model   string `json:"model"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Sender  string `json:"sender"`
}

type predictResponse struct {
	IsPhishing bool     `json:"is_phishing"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators"`
}

func (d *ModelDetector) Classify(ctx context.Context, email *model.Email) (Outcome, error) {
	var out Outcome

	err := d.cb.Execute(func() error {
		payload, err := json.Marshal(predictRequest{
			Model:   d.model,
			Subject: email.Subject,
			Body:    email.Body,
			Sender:  email.Sender,
		})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/predict", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName, traceID)
		}

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("model server returned %d for %s", resp.StatusCode, d.model)
		}

		var pr predictResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			return fmt.Errorf("decode %s prediction: %w", d.model, err)
		}

		out = Outcome{
			IsPhishing: pr.IsPhishing,
			Confidence: normaliseConfidence(pr.Confidence),
			Indicators: pr.Indicators,
			Details:    map[string]any{"model": d.model, "raw_confidence": pr.Confidence},
		}
		return nil
	})

	return out, err
}

// normaliseConfidence accepts either a probability in [0,1] or a percentage.
func normaliseConfidence(c float64) int {
	if c <= 1 {
		c *= 100
	}
	return model.ClampConfidence(int(c + 0.5))
}
