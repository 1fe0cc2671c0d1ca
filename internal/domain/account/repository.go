package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Create creates a new account
	Create(ctx context.Context, params CreateParams) (*Account, error)

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByExternalID retrieves an account by the provider's account ID
	GetByExternalID(ctx context.Context, externalID string) (*Account, error)

	// ListByInstitution retrieves all accounts of one institution link
	ListByInstitution(ctx context.Context, institutionID int64) ([]*Account, error)

	// UpdateBalances replaces the balances of an account. Identity fields are never touched.
	UpdateBalances(ctx context.Context, id int64, balances Balances) error

	// Delete removes an account and, by cascade, its tracker
	Delete(ctx context.Context, id int64) error
}
