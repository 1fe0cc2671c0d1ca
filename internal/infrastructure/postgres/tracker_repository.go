package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/tracker"
)

const trackerColumns = `account_id, user_id, budget_threshold, notification_frequency_days,
	next_notification_date, amount_spent, created_at, updated_at`

// TrackerRepository implements tracker.Repository for PostgreSQL.
// Writes that read before they write hold the row with SELECT ... FOR UPDATE.
type TrackerRepository struct {
	db *DB
}

// NewTrackerRepository creates a new PostgreSQL budget tracker repository
func NewTrackerRepository(db *DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

func scanTracker(row rowScanner) (*tracker.BudgetTracker, error) {
	var t tracker.BudgetTracker
	err := row.Scan(
		&t.AccountID, &t.UserID, &t.BudgetThreshold, &t.NotificationFrequencyDays,
		&t.NextNotificationDate, &t.AmountSpent, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create stores a new tracker
func (r *TrackerRepository) Create(ctx context.Context, t *tracker.BudgetTracker) (*tracker.BudgetTracker, error) {
	query := `
		INSERT INTO budget_trackers (account_id, user_id, budget_threshold, notification_frequency_days,
		                             next_notification_date, amount_spent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + trackerColumns

	created, err := scanTracker(r.db.QueryRowContext(ctx, query,
		t.AccountID, t.UserID, t.BudgetThreshold, t.NotificationFrequencyDays, t.NextNotificationDate, t.AmountSpent,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, tracker.ErrTrackerExists
		}
		return nil, fmt.Errorf("failed to create budget tracker: %w", err)
	}

	return created, nil
}

// Get retrieves the tracker of an account for its owner
func (r *TrackerRepository) Get(ctx context.Context, accountID, userID int64) (*tracker.BudgetTracker, error) {
	query := `SELECT ` + trackerColumns + ` FROM budget_trackers WHERE account_id = $1 AND user_id = $2`

	t, err := scanTracker(r.db.QueryRowContext(ctx, query, accountID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracker.ErrTrackerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget tracker: %w", err)
	}

	return t, nil
}

// GetByAccountID retrieves the tracker of an account regardless of owner
func (r *TrackerRepository) GetByAccountID(ctx context.Context, accountID int64) (*tracker.BudgetTracker, error) {
	query := `SELECT ` + trackerColumns + ` FROM budget_trackers WHERE account_id = $1`

	t, err := scanTracker(r.db.QueryRowContext(ctx, query, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracker.ErrTrackerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget tracker: %w", err)
	}

	return t, nil
}

// ListAll retrieves every tracker
func (r *TrackerRepository) ListAll(ctx context.Context) ([]*tracker.BudgetTracker, error) {
	return r.list(ctx, `SELECT `+trackerColumns+` FROM budget_trackers ORDER BY account_id`)
}

// ListByUserID retrieves the trackers of one user
func (r *TrackerRepository) ListByUserID(ctx context.Context, userID int64) ([]*tracker.BudgetTracker, error) {
	return r.list(ctx, `SELECT `+trackerColumns+` FROM budget_trackers WHERE user_id = $1 ORDER BY account_id`, userID)
}

// ListDueOn retrieves the trackers whose next notification falls on date's
// calendar day, in date's location.
func (r *TrackerRepository) ListDueOn(ctx context.Context, date time.Time) ([]*tracker.BudgetTracker, error) {
	start := tracker.DateOf(date)
	end := start.AddDate(0, 0, 1)

	return r.list(ctx, `
		SELECT `+trackerColumns+`
		FROM budget_trackers
		WHERE next_notification_date >= $1 AND next_notification_date < $2
		ORDER BY account_id
	`, start, end)
}

func (r *TrackerRepository) list(ctx context.Context, query string, args ...any) ([]*tracker.BudgetTracker, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget trackers: %w", err)
	}
	defer rows.Close()

	var trackers []*tracker.BudgetTracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget tracker: %w", err)
		}
		trackers = append(trackers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budget trackers: %w", err)
	}

	return trackers, nil
}

// UpdateSettings replaces threshold, frequency and next date
func (r *TrackerRepository) UpdateSettings(ctx context.Context, accountID, userID int64, threshold decimal.Decimal, frequencyDays int, next time.Time) (*tracker.BudgetTracker, error) {
	var updated *tracker.BudgetTracker

	err := r.db.WithTx(ctx, func(tx *Tx) error {
		if _, _, err := lockTracker(ctx, tx, accountID, userID); err != nil {
			return err
		}

		query := `
			UPDATE budget_trackers
			SET budget_threshold = $1, notification_frequency_days = $2, next_notification_date = $3,
			    updated_at = CURRENT_TIMESTAMP
			WHERE account_id = $4 AND user_id = $5
			RETURNING ` + trackerColumns

		t, err := scanTracker(tx.QueryRowContext(ctx, query, threshold, frequencyDays, next, accountID, userID))
		if err != nil {
			return fmt.Errorf("failed to update budget tracker: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// UpdateAmountSpent stores a freshly computed month-to-date spend
func (r *TrackerRepository) UpdateAmountSpent(ctx context.Context, accountID, userID int64, amount decimal.Decimal) error {
	return r.db.WithTx(ctx, func(tx *Tx) error {
		if _, _, err := lockTracker(ctx, tx, accountID, userID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE budget_trackers
			SET amount_spent = $1, updated_at = CURRENT_TIMESTAMP
			WHERE account_id = $2 AND user_id = $3
		`, amount, accountID, userID)
		if err != nil {
			return fmt.Errorf("failed to update amount spent: %w", err)
		}
		return nil
	})
}

// AdvanceSchedule moves the next notification date forward by the tracker's
// frequency when it still falls on expected. Days are added in expected's
// location so the wall clock survives a DST change. Returns false when
// another run already moved it.
func (r *TrackerRepository) AdvanceSchedule(ctx context.Context, accountID, userID int64, expected time.Time) (bool, error) {
	var moved bool

	err := r.db.WithTx(ctx, func(tx *Tx) error {
		current, freq, err := lockTracker(ctx, tx, accountID, userID)
		if err != nil {
			return err
		}

		if !tracker.SameDate(current.In(expected.Location()), expected) {
			return nil
		}

		next := current.In(expected.Location()).AddDate(0, 0, freq)
		_, err = tx.ExecContext(ctx, `
			UPDATE budget_trackers
			SET next_notification_date = $1, updated_at = CURRENT_TIMESTAMP
			WHERE account_id = $2 AND user_id = $3
		`, next, accountID, userID)
		if err != nil {
			return fmt.Errorf("failed to advance schedule: %w", err)
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return moved, nil
}

// lockTracker takes the row lock and returns the schedule columns.
func lockTracker(ctx context.Context, tx *Tx, accountID, userID int64) (next time.Time, freq int, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT next_notification_date, notification_frequency_days
		FROM budget_trackers
		WHERE account_id = $1 AND user_id = $2
		FOR UPDATE
	`, accountID, userID).Scan(&next, &freq)

	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, 0, tracker.ErrTrackerNotFound
	}
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to lock budget tracker: %w", err)
	}
	return next, freq, nil
}

// Delete removes a tracker
func (r *TrackerRepository) Delete(ctx context.Context, accountID, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM budget_trackers WHERE account_id = $1 AND user_id = $2`,
		accountID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete budget tracker: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return tracker.ErrTrackerNotFound
	}

	return nil
}
