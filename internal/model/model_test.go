package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailJSONOmitsGroundTruth(t *testing.T) {
	label := 1
	kind := "credential_harvest"
	email := &Email{
		ID:           42,
		ExternalID:   "msg-42",
		Subject:      "Verify your account",
		Label:        &label,
		PhishingType: &kind,
	}

	for _, v := range []any{email, EmailDetail{Email: email}} {
		raw, err := json.Marshal(v)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.NotContains(t, fields, "label")
		assert.NotContains(t, fields, "phishing_type")
		assert.Equal(t, "msg-42", fields["external_id"])
	}
}

func TestParseTeamKey(t *testing.T) {
	k, err := ParseTeamKey("  Fraud ")
	require.NoError(t, err)
	assert.Equal(t, TeamFraud, k)

	_, err = ParseTeamKey("marketing")
	assert.ErrorIs(t, err, ErrInvalidTeam)
	assert.Len(t, Teams, 6)
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskPending, TaskProcessing, true},
		{TaskPending, TaskFailed, true},
		{TaskPending, TaskCompleted, false},
		{TaskProcessing, TaskCompleted, true},
		{TaskProcessing, TaskFailed, true},
		{TaskProcessing, TaskPending, false},
		{TaskCompleted, TaskProcessing, false},
		{TaskFailed, TaskCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	task := &DiscussionTask{
		ID:          "t1",
		Messages:    []Message{{Persona: "a"}},
		Decision:    &Decision{Votes: map[Position]int{PositionEscalate: 1}},
		CompletedAt: &now,
	}

	c := task.Clone()
	c.Messages[0].Persona = "changed"
	c.Decision.Votes[PositionEscalate] = 9

	assert.Equal(t, "a", task.Messages[0].Persona)
	assert.Equal(t, 1, task.Decision.Votes[PositionEscalate])
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, ClampConfidence(-5))
	assert.Equal(t, 100, ClampConfidence(140))
	assert.Equal(t, 73, ClampConfidence(73))
}
