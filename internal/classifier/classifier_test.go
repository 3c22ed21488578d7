package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"phishbox/internal/model"
)

const phishBody = `<html><body>
<p>URGENT: your account will be suspended within 24 hours.</p>
<p>Please <a href="http://192.168.4.20/login">https://www.mybank.com/secure</a> to verify your account and confirm your password.</p>
</body></html>`

func TestParseBody(t *testing.T) {
	body := ParseBody(phishBody + "\nAlso see https://bit.ly/abc.")

	require.Len(t, body.Links, 2)
	assert.Equal(t, "http://192.168.4.20/login", body.Links[0].Href)
	assert.Equal(t, "https://www.mybank.com/secure", body.Links[0].Text)
	assert.Equal(t, "192.168.4.20", body.Links[0].Host())
	assert.Equal(t, "https://bit.ly/abc", body.Links[1].Href)
	assert.Contains(t, body.Text, "URGENT: your account will be suspended")
	assert.NotContains(t, body.Text, "<p>")
}

func TestRuleDetectors(t *testing.T) {
	phish := &model.Email{
		Subject: "Action required immediately",
		Sender:  `"PayPal Security" <service@paypa1-alerts.com>`,
		Body:    phishBody,
	}
	clean := &model.Email{
		Subject: "Team lunch",
		Sender:  "Dana Lee <dana@corp.example>",
		Body:    "Hi all, lunch is at noon on Friday in the usual place.",
	}

	tests := []struct {
		detector Detector
		phish    bool
	}{
		{NewUrgencyDetector(), true},
		{NewCredentialRequestDetector(), true},
		{NewURLDetector(), true},
		{NewSenderSpoofingDetector(), true},
	}

	for _, tt := range tests {
		t.Run(tt.detector.Name(), func(t *testing.T) {
			out, err := tt.detector.Classify(context.Background(), phish)
			require.NoError(t, err)
			assert.Equal(t, tt.phish, out.IsPhishing)
			assert.NotEmpty(t, out.Indicators)
			assert.GreaterOrEqual(t, out.Confidence, 0)
			assert.LessOrEqual(t, out.Confidence, 100)

			out, err = tt.detector.Classify(context.Background(), clean)
			require.NoError(t, err)
			assert.False(t, out.IsPhishing)
		})
	}
}

func TestSenderSpoofingFreeMailRole(t *testing.T) {
	out, err := NewSenderSpoofingDetector().Classify(context.Background(),
		&model.Email{Sender: "Payroll Department <payroll.dept@gmail.com>"})
	require.NoError(t, err)
	assert.True(t, out.IsPhishing)
	assert.Contains(t, out.Indicators, "sender_spoofing:free_mail_role:payroll")
}

func TestURLDetectorAnchorMismatch(t *testing.T) {
	out, err := NewURLDetector().Classify(context.Background(), &model.Email{
		Body: `<a href="https://login.evil.example/x">www.mybank.com</a> and <a href="https://docs.mybank.com/a">docs.mybank.com</a>`,
	})
	require.NoError(t, err)
	assert.True(t, out.IsPhishing)
	require.Len(t, out.Indicators, 1)
	assert.Contains(t, out.Indicators[0], "anchor_mismatch")
}

func TestAggregate(t *testing.T) {
	r := func(flag bool, conf int) model.WorkflowResult {
		return model.WorkflowResult{IsPhishingDetected: flag, ConfidenceScore: conf}
	}
	tests := []struct {
		name    string
		results []model.WorkflowResult
		want    bool
	}{
		{"none", nil, false},
		{"single high confidence", []model.WorkflowResult{r(true, 95), r(false, 10), r(false, 10)}, true},
		{"majority", []model.WorkflowResult{r(true, 40), r(true, 50), r(false, 10)}, true},
		{"exact half is not majority", []model.WorkflowResult{r(true, 40), r(false, 10)}, false},
		{"all clean", []model.WorkflowResult{r(false, 99), r(false, 99)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.results))
		})
	}
}

type stubDetector struct {
	name  string
	out   Outcome
	err   error
	delay time.Duration
}

func (s stubDetector) Name() string { return s.name }

func (s stubDetector) Classify(ctx context.Context, _ *model.Email) (Outcome, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	return s.out, s.err
}

func TestPoolSkipsFailedDetectors(t *testing.T) {
	pool := NewPool([]Detector{
		stubDetector{name: "a", out: Outcome{IsPhishing: true, Confidence: 60}},
		stubDetector{name: "b", err: errors.New("model down")},
		stubDetector{name: "c", delay: time.Second},
		stubDetector{name: "d", out: Outcome{IsPhishing: false, Confidence: 20}},
		stubDetector{name: "e", out: Outcome{IsPhishing: true, Confidence: 130}},
	}, 50*time.Millisecond, zap.NewNop())

	v := pool.Classify(context.Background(), &model.Email{ID: 7})

	require.Len(t, v.Results, 3)
	assert.Equal(t, []string{"a", "d", "e"}, []string{v.Results[0].WorkflowName, v.Results[1].WorkflowName, v.Results[2].WorkflowName})
	assert.ElementsMatch(t, []string{"b", "c"}, v.Failed)
	assert.Equal(t, 100, v.Results[2].ConfidenceScore)
	assert.Equal(t, int64(7), v.Results[0].EmailID)
	assert.True(t, v.IsPhishing)
}

func TestPoolDropsDuplicateDetectorNames(t *testing.T) {
	pool := NewPool(
		DefaultDetectors("http://models.local", []string{"distilbert", " distilbert ", "", "naive_bayes"}, time.Second),
		time.Second, zap.NewNop(),
	)

	names := make(map[string]int)
	for _, d := range pool.Detectors() {
		names[d.Name()]++
	}
	for name, n := range names {
		assert.Equal(t, 1, n, name)
	}
	assert.Len(t, pool.Detectors(), 6)

	dup := NewPool([]Detector{
		stubDetector{name: "a", out: Outcome{IsPhishing: true, Confidence: 95}},
		stubDetector{name: "a", out: Outcome{Confidence: 10}},
	}, time.Second, zap.NewNop())
	v := dup.Classify(context.Background(), &model.Email{ID: 1})
	require.Len(t, v.Results, 1)
	assert.Equal(t, 95, v.Results[0].ConfidenceScore)
}

func TestModelDetector(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "trace-1", r.Header.Get("X-Trace-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(predictResponse{IsPhishing: true, Confidence: 0.87})
	}))
	defer srv.Close()

	d := NewModelDetector(srv.URL+"/", "distilbert", time.Second)
	ctx := contextWithTrace("trace-1")
	out, err := d.Classify(ctx, &model.Email{Subject: "s", Body: "b", Sender: "x@y"})
	require.NoError(t, err)

	assert.Equal(t, "model_distilbert", d.Name())
	assert.Equal(t, "distilbert", got.Model)
	assert.True(t, out.IsPhishing)
	assert.Equal(t, 87, out.Confidence)
}

func TestModelDetectorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewModelDetector(srv.URL, "nb", time.Second).Classify(context.Background(), &model.Email{})
	assert.Error(t, err)
}

func TestSummariseAndCallsToAction(t *testing.T) {
	body := ParseBody(`<p>Your mailbox is almost full. Click the link below to upgrade your storage.</p>
<a href="https://mail-upgrade.example/now">Upgrade now</a>`)

	summary := Summarise("Mailbox full", body)
	assert.Equal(t, "Your mailbox is almost full. Click the link below to upgrade your storage. Upgrade now", summary)

	actions := CallsToAction(body)
	assert.Equal(t, []string{
		"Click the link below to upgrade your storage.",
		"Upgrade now (https://mail-upgrade.example/now)",
	}, actions)

	assert.Equal(t, "Subject only", Summarise("Subject only", Body{}))
}

func TestSummariseCutsOnRuneBoundary(t *testing.T) {
	summary := Summarise("", Body{Text: strings.Repeat("é", 200)})

	assert.True(t, utf8.ValidString(summary))
	assert.True(t, strings.HasSuffix(summary, "é..."))
	assert.LessOrEqual(t, len(summary), maxSummaryLen)
}
