package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/account"
)

const accountColumns = `id, institution_id, external_id, name, account_type, subtype,
	available, current_balance, credit_limit, trackable, created_at, updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acc account.Account
	var accountType string
	var available, limit decimal.NullDecimal
	var current decimal.Decimal

	err := row.Scan(
		&acc.ID, &acc.InstitutionID, &acc.ExternalID, &acc.Name, &accountType, &acc.Subtype,
		&available, &current, &limit, &acc.Trackable, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	balances, err := account.NewBalances(accountType, nullDecimalPtr(available), &current, nullDecimalPtr(limit))
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", acc.ID, err)
	}
	acc.Balances = balances

	return &acc, nil
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	available, current, limit := account.Columns(params.Balances)

	query := `
		INSERT INTO accounts (institution_id, external_id, name, account_type, subtype,
		                      available, current_balance, credit_limit, trackable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(
		ctx, query,
		params.InstitutionID, params.ExternalID, params.Name, string(params.Balances.Type()), params.Subtype,
		nullDecimal(available), current, nullDecimal(limit), params.Trackable,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, account.ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return acc, nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// GetByExternalID retrieves an account by the provider's account ID
func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by external id: %w", err)
	}

	return acc, nil
}

// ListByInstitution retrieves all accounts of one institution link
func (r *AccountRepository) ListByInstitution(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE institution_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, institutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateBalances replaces the balance columns. Identity columns are never written.
func (r *AccountRepository) UpdateBalances(ctx context.Context, id int64, balances account.Balances) error {
	available, current, limit := account.Columns(balances)

	query := `
		UPDATE accounts
		SET available = $1, current_balance = $2, credit_limit = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, nullDecimal(available), current, nullDecimal(limit), id)
	if err != nil {
		return fmt.Errorf("failed to update account balances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return account.ErrAccountNotFound
	}

	return nil
}

// Delete removes an account
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return account.ErrAccountNotFound
	}

	return nil
}

// Helper functions

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
