package amqp

import (
	"encoding/json"
	"time"
)

// JobType names a background job carried on the queue.
type JobType string

const (
	JobRecalculateBudget     JobType = "RECALCULATE_BUDGET"
	JobGenerateMonthlyReport JobType = "GENERATE_MONTHLY_REPORT"
)

// Known reports whether a worker has a handler for t.
func (t JobType) Known() bool {
	return t == JobRecalculateBudget || t == JobGenerateMonthlyReport
}

// JobMessage is the JSON body of a queued job.
type JobMessage struct {
	Type      JobType   `json:"type"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

func NewJobMessage(t JobType, userID string) *JobMessage {
	return &JobMessage{
		Type:      t,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *JobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseJobMessage decodes a job body. Missing fields are left empty and
// left for the dispatcher to judge.
func ParseJobMessage(data []byte) (*JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Message is a single delivery handed to a batch handler.
type Message struct {
	ID   string
	Body []byte
}

// DeadLetter records a job that could not be processed.
type DeadLetter struct {
	MessageID string    `json:"messageId,omitempty"`
	Body      string    `json:"body"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failedAt"`
}

func (d *DeadLetter) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}
