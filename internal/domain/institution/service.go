package institution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/shared/errs"
)

// Service contains the business logic for institution links
type Service struct {
	repo        Repository
	accountRepo account.Repository
}

// NewService creates a new institution service
func NewService(repo Repository, accountRepo account.Repository) *Service {
	return &Service{repo: repo, accountRepo: accountRepo}
}

// CreateLink registers a new link. Its accounts are populated separately.
func (s *Service) CreateLink(ctx context.Context, params CreateParams) (*Link, error) {
	if err := params.Validate(); err != nil {
		return nil, errs.Invalid("link", err.Error())
	}
	return s.repo.Create(ctx, params)
}

// GetLink retrieves a link by ID
func (s *Service) GetLink(ctx context.Context, id int64) (*Link, error) {
	link, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return nil, errs.NotFound("institution link", id, err)
		}
		return nil, err
	}
	return link, nil
}

// ListAll returns every link in the system
func (s *Service) ListAll(ctx context.Context) ([]*Link, error) {
	return s.repo.List(ctx)
}

// ListByUser returns the links of one user
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*Link, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByUserID(ctx, userID)
}

// DeleteLink removes a link together with its accounts and trackers.
func (s *Service) DeleteLink(ctx context.Context, id int64) error {
	if _, err := s.GetLink(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// UserBalance is the net position of a user summed across all their links.
// Each link is aggregated on its own and the per-link totals are added.
func (s *Service) UserBalance(ctx context.Context, userID int64, includeLoans bool) (decimal.Decimal, error) {
	links, err := s.ListByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list links: %w", err)
	}

	total := decimal.Zero
	for _, link := range links {
		accounts, err := s.accountRepo.ListByInstitution(ctx, link.ID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to list accounts for link %d: %w", link.ID, err)
		}
		total = total.Add(account.Aggregate(accounts, includeLoans))
	}

	return total.Round(2), nil
}
