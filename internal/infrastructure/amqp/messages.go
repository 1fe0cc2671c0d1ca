package amqp

import (
	"encoding/json"
	"time"
)

// RunCompletedMessage announces a finished daily run. Report carries the
// full run report as produced by the orchestrator.
type RunCompletedMessage struct {
	RunID       string          `json:"runId"`
	Date        string          `json:"date"`
	HasFailures bool            `json:"hasFailures"`
	Report      json.RawMessage `json:"report"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewRunCompletedMessage builds the message for one run
func NewRunCompletedMessage(runID string, date time.Time, hasFailures bool, report any) (*RunCompletedMessage, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	return &RunCompletedMessage{
		RunID:       runID,
		Date:        date.Format("2006-01-02"),
		HasFailures: hasFailures,
		Report:      body,
		Timestamp:   time.Now(),
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *RunCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RunCompletedMessageFromJSON parses a message
func RunCompletedMessageFromJSON(data []byte) (*RunCompletedMessage, error) {
	var msg RunCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
