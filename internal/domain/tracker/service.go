package tracker

import (
	"context"
	"errors"
	"time"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/institution"
	"budgetwatch/internal/shared/batch"
	"budgetwatch/internal/shared/errs"
)

// Service contains the business logic for budget trackers
type Service struct {
	repo     Repository
	accounts account.Repository
	links    institution.Repository
	spend    *SpendCalculator
	pool     *batch.Pool
	now      func() time.Time
	loc      *time.Location
}

// NewService creates a new tracker service
func NewService(repo Repository, accounts account.Repository, links institution.Repository, spend *SpendCalculator, pool *batch.Pool) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		links:    links,
		spend:    spend,
		pool:     pool,
		now:      time.Now,
		loc:      time.UTC,
	}
}

// SetLocation sets the calendar new schedules are computed in. It must match
// the location the daily run uses so a tracker comes due on the same date
// across DST changes.
func (s *Service) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) today() time.Time {
	return s.now().In(s.loc)
}

// Create opts an account into tracking. The account must be trackable,
// belong to the user and not be tracked already. AmountSpent starts at the
// month-to-date spend and the first notification is frequency days out.
func (s *Service) Create(ctx context.Context, params CreateParams) (*BudgetTracker, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	acc, link, err := s.resolve(ctx, params.AccountID)
	if err != nil {
		return nil, err
	}
	if link.UserID != params.UserID {
		return nil, errs.Invalid("AccountID", "account does not belong to user")
	}
	if !acc.Trackable {
		return nil, errs.Invalid("AccountID", "account is not trackable")
	}

	if _, err := s.repo.GetByAccountID(ctx, params.AccountID); err == nil {
		return nil, errs.Invalid("AccountID", ErrTrackerExists.Error())
	} else if !errors.Is(err, ErrTrackerNotFound) {
		return nil, err
	}

	now := s.today()
	spent, err := s.spend.MonthToDateSpend(ctx, acc, now, link.AccessToken)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, &BudgetTracker{
		AccountID:                 params.AccountID,
		UserID:                    params.UserID,
		BudgetThreshold:           params.BudgetThreshold.Round(2),
		NotificationFrequencyDays: params.NotificationFrequencyDays,
		NextNotificationDate:      now.AddDate(0, 0, params.NotificationFrequencyDays),
		AmountSpent:               spent,
	})
	if errors.Is(err, ErrTrackerExists) {
		return nil, errs.Invalid("AccountID", err.Error())
	}
	if err != nil {
		return nil, errs.Persistence("create tracker", err)
	}
	return created, nil
}

// Update replaces threshold and frequency. The schedule restarts from now.
func (s *Service) Update(ctx context.Context, accountID, userID int64, params UpdateParams) (*BudgetTracker, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	next := s.today().AddDate(0, 0, params.NotificationFrequencyDays)
	updated, err := s.repo.UpdateSettings(ctx, accountID, userID, params.BudgetThreshold.Round(2), params.NotificationFrequencyDays, next)
	if errors.Is(err, ErrTrackerNotFound) {
		return nil, errs.NotFound("tracker", trackerKey(accountID, userID), err)
	}
	if err != nil {
		return nil, errs.Persistence("update tracker", err)
	}
	return updated, nil
}

// Get retrieves one tracker
func (s *Service) Get(ctx context.Context, accountID, userID int64) (*BudgetTracker, error) {
	t, err := s.repo.Get(ctx, accountID, userID)
	if errors.Is(err, ErrTrackerNotFound) {
		return nil, errs.NotFound("tracker", trackerKey(accountID, userID), err)
	}
	return t, err
}

// ListByUser returns all trackers of one user
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*BudgetTracker, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// Delete stops tracking an account
func (s *Service) Delete(ctx context.Context, accountID, userID int64) error {
	err := s.repo.Delete(ctx, accountID, userID)
	if errors.Is(err, ErrTrackerNotFound) {
		return errs.NotFound("tracker", trackerKey(accountID, userID), err)
	}
	return err
}

// Recompute refreshes one tracker's month-to-date spend on demand.
func (s *Service) Recompute(ctx context.Context, accountID, userID int64) (*BudgetTracker, error) {
	t, err := s.Get(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.RefreshTracker(ctx, t, s.today()); err != nil {
		return nil, err
	}
	return t, nil
}

// resolve loads the account and the link holding its access token.
func (s *Service) resolve(ctx context.Context, accountID int64) (*account.Account, *institution.Link, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil, nil, errs.NotFound("account", accountID, err)
	}
	if err != nil {
		return nil, nil, err
	}

	link, err := s.links.GetByID(ctx, acc.InstitutionID)
	if errors.Is(err, institution.ErrLinkNotFound) {
		return nil, nil, errs.NotFound("institution link", acc.InstitutionID, err)
	}
	if err != nil {
		return nil, nil, err
	}

	return acc, link, nil
}

func trackerKey(accountID, userID int64) string {
	return (&BudgetTracker{AccountID: accountID, UserID: userID}).Key()
}
