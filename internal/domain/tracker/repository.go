package tracker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for budget tracker data access.
// Every mutating method runs in its own transaction holding the tracker row.
type Repository interface {
	// Create stores a new tracker. Returns ErrTrackerExists if the account already has one.
	Create(ctx context.Context, t *BudgetTracker) (*BudgetTracker, error)

	Get(ctx context.Context, accountID, userID int64) (*BudgetTracker, error)
	GetByAccountID(ctx context.Context, accountID int64) (*BudgetTracker, error)
	ListAll(ctx context.Context) ([]*BudgetTracker, error)
	ListByUserID(ctx context.Context, userID int64) ([]*BudgetTracker, error)

	// ListDueOn returns the trackers whose next notification date is on date.
	ListDueOn(ctx context.Context, date time.Time) ([]*BudgetTracker, error)

	// UpdateSettings replaces threshold, frequency and next date.
	UpdateSettings(ctx context.Context, accountID, userID int64, threshold decimal.Decimal, frequencyDays int, next time.Time) (*BudgetTracker, error)

	// UpdateAmountSpent stores a freshly computed month-to-date spend.
	UpdateAmountSpent(ctx context.Context, accountID, userID int64, amount decimal.Decimal) error

	// AdvanceSchedule adds the tracker's frequency to its next notification
	// date, but only while that date is still on expected. It reports whether
	// the date moved.
	AdvanceSchedule(ctx context.Context, accountID, userID int64, expected time.Time) (bool, error)

	Delete(ctx context.Context, accountID, userID int64) error
}
