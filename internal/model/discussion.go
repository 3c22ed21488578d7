package model

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskProcessing || next == TaskFailed
	case TaskProcessing:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// Position is the stance a persona takes on an email.
type Position string

const (
	PositionEscalate    Position = "escalate"
	PositionInvestigate Position = "investigate"
	PositionMonitor     Position = "monitor"
	PositionDismiss     Position = "dismiss"
)

// Severity orders positions for the weighted decision.
func (p Position) Severity() int {
	switch p {
	case PositionEscalate:
		return 3
	case PositionInvestigate:
		return 2
	case PositionMonitor:
		return 1
	default:
		return 0
	}
}

// Message is one persona turn in a discussion.
type Message struct {
	Position  int       `json:"position"`
	Persona   string    `json:"persona"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Stance    Position  `json:"stance,omitempty"`
	Failed    bool      `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Decision is the synthesised outcome of a completed discussion.
type Decision struct {
	Outcome    Position         `json:"outcome"`
	Votes      map[Position]int `json:"votes"`
	Confidence int              `json:"confidence"`
	Summary    string           `json:"summary"`
	Responded  int              `json:"responded"`
	Failed     int              `json:"failed"`
}

// DiscussionTask is the state of one agentic run for one email.
type DiscussionTask struct {
	ID          string     `json:"task_id"`
	EmailID     int64      `json:"email_id"`
	Team        TeamKey    `json:"team"`
	Backend     string     `json:"backend"`
	Status      TaskStatus `json:"status"`
	Personas    int        `json:"total_personas"`
	Messages    []Message  `json:"messages"`
	Decision    *Decision  `json:"decision,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (t *DiscussionTask) Clone() *DiscussionTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Messages = append([]Message(nil), t.Messages...)
	if t.Decision != nil {
		d := *t.Decision
		d.Votes = make(map[Position]int, len(t.Decision.Votes))
		for k, v := range t.Decision.Votes {
			d.Votes[k] = v
		}
		c.Decision = &d
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
