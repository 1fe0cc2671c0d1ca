package notification

import (
	"errors"
	"time"
)

// Delivery statuses
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

var ErrInvalidStatus = errors.New("invalid notification status")

// Notification is the record of one dispatch attempt for a due tracker.
type Notification struct {
	ID           string    `json:"id"`
	AccountID    int64     `json:"accountId"`
	UserID       int64     `json:"userId"`
	ScheduledFor time.Time `json:"scheduledFor"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	Error        string    `json:"error,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateNotificationParams contains parameters for recording a dispatch
type CreateNotificationParams struct {
	AccountID    int64
	UserID       int64
	ScheduledFor time.Time
	Status       string
	Message      string
	Error        string
	Attempts     int
}

// Validate validates the create parameters
func (p CreateNotificationParams) Validate() error {
	if p.UserID <= 0 || p.AccountID <= 0 {
		return errors.New("valid account and user IDs are required")
	}
	switch p.Status {
	case StatusSent, StatusFailed, StatusSkipped:
		return nil
	default:
		return ErrInvalidStatus
	}
}
