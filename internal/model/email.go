package model

import (
	"encoding/json"
	"time"
)

// Email is one ingested message. Label and PhishingType are ground truth
// carried by demo datasets; they are stored but never serialised.
type Email struct {
	ID                  int64           `json:"id"`
	ExternalID          string          `json:"external_id"`
	Subject             string          `json:"subject"`
	Sender              string          `json:"sender"`
	Recipient           string          `json:"recipient"`
	Body                string          `json:"body"`
	ReceivedAt          time.Time       `json:"received_at"`
	Processed           bool            `json:"processed"`
	IsPhishing          bool            `json:"is_phishing"`
	Summary             string          `json:"summary"`
	CallToActions       []string        `json:"call_to_actions"`
	WikiEnrichment      json.RawMessage `json:"wiki_enrichment,omitempty"`
	DirectoryEnrichment json.RawMessage `json:"directory_enrichment,omitempty"`
	SuggestedTeam       *TeamKey        `json:"suggested_team"`
	AssignedTeam        *TeamKey        `json:"assigned_team"`
	AgenticTaskID       *string         `json:"agentic_task_id"`
	TeamAssignedAt      *time.Time      `json:"team_assigned_at"`
	CreatedAt           time.Time       `json:"created_at"`

	Label        *int    `json:"-"`
	PhishingType *string `json:"-"`
}

// IncomingEmail is the ingestion payload for one message.
type IncomingEmail struct {
	ExternalID   string    `json:"external_id"`
	Subject      string    `json:"subject"`
	Sender       string    `json:"sender"`
	Recipient    string    `json:"recipient"`
	Body         string    `json:"body"`
	ReceivedAt   time.Time `json:"received_at"`
	Label        *int      `json:"label,omitempty"`
	PhishingType *string   `json:"phishing_type,omitempty"`
}

// Classification is what the classifier pool writes back onto an email.
type Classification struct {
	IsPhishing          bool
	Summary             string
	CallToActions       []string
	WikiEnrichment      json.RawMessage
	DirectoryEnrichment json.RawMessage
}

// EmailDetail is the single-email read model.
type EmailDetail struct {
	*Email
	WorkflowResults []WorkflowResult `json:"workflow_results"`
}

// TeamAssignment is one row of the assignment audit log.
type TeamAssignment struct {
	ID             int64     `json:"id"`
	EmailID        int64     `json:"email_id"`
	Team           TeamKey   `json:"team"`
	TaskID         string    `json:"task_id"`
	PreviousTaskID *string   `json:"previous_task_id,omitempty"`
	AssignedBy     string    `json:"assigned_by"`
	AssignedAt     time.Time `json:"assigned_at"`
}
