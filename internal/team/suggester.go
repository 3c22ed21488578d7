package team

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"phishbox/internal/llm"
	"phishbox/internal/model"
	"phishbox/pkg/circuitbreaker"
	"phishbox/pkg/metrics"
)

const (
	SourceLLM     = "llm"
	SourceKeyword = "keyword"
)

// Suggestion is the engine's answer and where it came from.
type Suggestion struct {
	Team   model.TeamKey `json:"team"`
	Source string        `json:"source"`
}

// Suggester maps an email onto a team. It asks the LLM first and falls back
// to keyword matching on any failure, so Suggest always yields a valid key.
type Suggester struct {
	gen     llm.Generator
	cb      *circuitbreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewSuggester builds a suggester. gen may be nil, in which case only the
// keyword path is used.
func NewSuggester(gen llm.Generator, timeout time.Duration, logger *zap.Logger) *Suggester {
	return &Suggester{
		gen: gen,
		cb: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             30 * time.Second,
			HalfOpenMaxRequests: 2,
		}),
		timeout: timeout,
		logger:  logger,
	}
}

func (s *Suggester) Suggest(ctx context.Context, email *model.Email) Suggestion {
	if s.gen != nil {
		team, err := s.askLLM(ctx, email)
		if err == nil {
			metrics.IncrementTeamSuggestion(SourceLLM)
			return Suggestion{Team: team, Source: SourceLLM}
		}
		s.logger.Warn("LLM team suggestion failed, using keyword fallback",
			zap.Int64("email_id", email.ID),
			zap.Error(err),
		)
	}

	metrics.IncrementTeamSuggestion(SourceKeyword)
	return Suggestion{Team: KeywordMatch(email), Source: SourceKeyword}
}

func (s *Suggester) askLLM(ctx context.Context, email *model.Email) (model.TeamKey, error) {
	var team model.TeamKey

	err := s.cb.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		reply, err := s.gen.Generate(callCtx, suggestSystemPrompt, buildSuggestPrompt(email))
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RecordLLMCallLatency(s.gen.Name(), "suggest", status, time.Since(start))
		if err != nil {
			return err
		}

		parsed, ok := ParseTeamReply(reply)
		if !ok {
			return fmt.Errorf("unrecognised team in reply %q", truncate(reply, 80))
		}
		team = parsed
		return nil
	})

	return team, err
}

const suggestSystemPrompt = "You route suspicious emails at a bank to the internal team best placed to investigate them. " +
	"Answer with exactly one team key and nothing else."

func buildSuggestPrompt(email *model.Email) string {
	var b strings.Builder
	b.WriteString("Teams:\n")
	for _, t := range All() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Key, t.Description)
	}
	b.WriteString("\nEmail:\n")
	fmt.Fprintf(&b, "From: %s\n", email.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "Body:\n%s\n", truncate(email.Body, 4000))
	b.WriteString("\nWhich team key should handle this email?")
	return b.String()
}

var (
	// "credit risk", "credit-risk" and "Credit_Risk" all normalise to credit_risk.
	multiWordTeam = regexp.MustCompile(`credit[\s\-_]+risk`)
	replyTokenSep = regexp.MustCompile(`[^a-z_]+`)
)

// ParseTeamReply accepts a reply naming exactly one team key as a whole
// word. Replies naming no team, or more than one distinct team, are
// rejected so the caller falls back to keyword matching.
func ParseTeamReply(reply string) (model.TeamKey, bool) {
	normalised := multiWordTeam.ReplaceAllString(strings.ToLower(reply), string(model.TeamCreditRisk))

	var found model.TeamKey
	for _, tok := range replyTokenSep.Split(normalised, -1) {
		k := model.TeamKey(tok)
		if !k.Valid() || k == found {
			continue
		}
		if found != "" {
			return "", false
		}
		found = k
	}
	return found, found != ""
}

// KeywordMatch scores every team by keyword hits in the subject, body and
// sender. The highest score wins, ties go to the earlier team in catalogue
// order, and an email with no hits goes to operations.
func KeywordMatch(email *model.Email) model.TeamKey {
	text := strings.ToLower(email.Subject + "\n" + email.Body + "\n" + email.Sender)

	bestTeam := model.TeamOperations
	bestScore := 0
	for _, t := range All() {
		score := 0
		for _, kw := range t.Keywords {
			score += strings.Count(text, kw)
		}
		if score > bestScore {
			bestScore = score
			bestTeam = t.Key
		}
	}
	return bestTeam
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
