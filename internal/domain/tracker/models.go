package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency bounds, in days
const (
	MinFrequencyDays = 1
	MaxFrequencyDays = 15
)

// Domain errors
var (
	ErrTrackerNotFound = errors.New("budget tracker not found")
	ErrTrackerExists   = errors.New("account already has a budget tracker")
)

// BudgetTracker is the monthly budget watch on one account for its owner.
// It is keyed by (AccountID, UserID).
type BudgetTracker struct {
	AccountID                 int64           `json:"accountId"`
	UserID                    int64           `json:"userId"`
	BudgetThreshold           decimal.Decimal `json:"budgetThreshold"`
	NotificationFrequencyDays int             `json:"notificationFrequencyDays"`
	NextNotificationDate      time.Time       `json:"nextNotificationDate"`
	AmountSpent               decimal.Decimal `json:"amountSpent"`
	CreatedAt                 time.Time       `json:"createdAt"`
	UpdatedAt                 time.Time       `json:"updatedAt"`
}

// Key identifies the tracker in logs and reports.
func (t *BudgetTracker) Key() string {
	return fmt.Sprintf("%d:%d", t.AccountID, t.UserID)
}

// IsDueOn reports whether the next notification falls on today's date.
func (t *BudgetTracker) IsDueOn(today time.Time) bool {
	return SameDate(t.NextNotificationDate, today)
}

// PrettyNextNotificationDate renders the next date as M-D-YYYY.
func (t *BudgetTracker) PrettyNextNotificationDate() string {
	return t.NextNotificationDate.Format("1-2-2006")
}

// CreateParams contains parameters for opting an account into tracking
type CreateParams struct {
	AccountID                 int64           `validate:"gt=0"`
	UserID                    int64           `validate:"gt=0"`
	BudgetThreshold           decimal.Decimal `validate:"gte=0"`
	NotificationFrequencyDays int             `validate:"min=1,max=15"`
}

// UpdateParams contains the user-editable tracker settings
type UpdateParams struct {
	BudgetThreshold           decimal.Decimal `validate:"gte=0"`
	NotificationFrequencyDays int             `validate:"min=1,max=15"`
}

// SameDate compares calendar dates, ignoring time of day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
