package account

import (
	"context"
	"errors"

	"budgetwatch/internal/shared/errs"
)

// Service contains the business logic for account operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateAccount creates a new account. Trackable is derived from the type
// and subtype, never taken from the caller.
func (s *Service) CreateAccount(ctx context.Context, params CreateParams) (*Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	params.Trackable = IsTrackable(params.Balances.Type(), params.Subtype)

	return s.repo.Create(ctx, params)
}

// GetAccount retrieves an account by ID
func (s *Service) GetAccount(ctx context.Context, id int64) (*Account, error) {
	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, errs.NotFound("account", id, err)
		}
		return nil, err
	}
	return acc, nil
}

// FindByExternalID returns the account with the provider's ID, or nil when
// none exists yet.
func (s *Service) FindByExternalID(ctx context.Context, externalID string) (*Account, error) {
	acc, err := s.repo.GetByExternalID(ctx, externalID)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// ListByInstitution retrieves all accounts of a link
func (s *Service) ListByInstitution(ctx context.Context, institutionID int64) ([]*Account, error) {
	if institutionID <= 0 {
		return nil, ErrInstitutionRequired
	}

	return s.repo.ListByInstitution(ctx, institutionID)
}

// RefreshBalances replaces the balances of an existing account. The account
// type may not change between refreshes.
func (s *Service) RefreshBalances(ctx context.Context, acc *Account, balances Balances) error {
	if balances == nil {
		return ErrMissingCurrent
	}
	if acc.Type() != "" && acc.Type() != balances.Type() {
		return errs.Invalid("type", "account type changed from "+string(acc.Type())+" to "+string(balances.Type()))
	}

	if err := s.repo.UpdateBalances(ctx, acc.ID, balances); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return errs.NotFound("account", acc.ID, err)
		}
		return errs.Persistence("update balances", err)
	}

	acc.Balances = balances
	return nil
}

// DeleteAccount removes an account. Its tracker goes with it.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)
}
