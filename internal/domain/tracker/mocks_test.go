package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/institution"
	ofclient "budgetwatch/internal/infrastructure/openfinance"
)

// MockClient implements ofclient.ClientInterface
type MockClient struct {
	GetBalancesFunc     func(ctx context.Context, accessToken string, accountIDs []string) (*ofclient.BalanceResponse, error)
	GetTransactionsFunc func(ctx context.Context, accessToken, accountID string, start, end time.Time) ([]ofclient.Transaction, error)

	mu    sync.Mutex
	calls int
}

func (m *MockClient) GetBalances(ctx context.Context, accessToken string, accountIDs []string) (*ofclient.BalanceResponse, error) {
	if m.GetBalancesFunc != nil {
		return m.GetBalancesFunc(ctx, accessToken, accountIDs)
	}
	return &ofclient.BalanceResponse{}, nil
}

func (m *MockClient) GetTransactions(ctx context.Context, accessToken, accountID string, start, end time.Time) ([]ofclient.Transaction, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, accessToken, accountID, start, end)
	}
	return nil, nil
}

func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeRepo is a map-backed Repository
type fakeRepo struct {
	mu       sync.Mutex
	trackers map[int64]*BudgetTracker
	// failUpdate makes UpdateAmountSpent fail for these account IDs
	failUpdate map[int64]error
}

func newFakeRepo(trackers ...*BudgetTracker) *fakeRepo {
	r := &fakeRepo{trackers: map[int64]*BudgetTracker{}, failUpdate: map[int64]error{}}
	for _, t := range trackers {
		cp := *t
		r.trackers[t.AccountID] = &cp
	}
	return r
}

func (r *fakeRepo) find(accountID, userID int64) (*BudgetTracker, error) {
	t, ok := r.trackers[accountID]
	if !ok || t.UserID != userID {
		return nil, ErrTrackerNotFound
	}
	return t, nil
}

func (r *fakeRepo) Create(ctx context.Context, t *BudgetTracker) (*BudgetTracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trackers[t.AccountID]; ok {
		return nil, ErrTrackerExists
	}
	cp := *t
	r.trackers[t.AccountID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) Get(ctx context.Context, accountID, userID int64) (*BudgetTracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.find(accountID, userID)
	if err != nil {
		return nil, err
	}
	out := *t
	return &out, nil
}

func (r *fakeRepo) GetByAccountID(ctx context.Context, accountID int64) (*BudgetTracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[accountID]
	if !ok {
		return nil, ErrTrackerNotFound
	}
	out := *t
	return &out, nil
}

func (r *fakeRepo) ListAll(ctx context.Context) ([]*BudgetTracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*BudgetTracker
	for _, t := range r.trackers {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) ListByUserID(ctx context.Context, userID int64) ([]*BudgetTracker, error) {
	all, _ := r.ListAll(ctx)
	var out []*BudgetTracker
	for _, t := range all {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListDueOn(ctx context.Context, date time.Time) ([]*BudgetTracker, error) {
	all, _ := r.ListAll(ctx)
	var out []*BudgetTracker
	for _, t := range all {
		if t.IsDueOn(date) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateSettings(ctx context.Context, accountID, userID int64, threshold decimal.Decimal, frequencyDays int, next time.Time) (*BudgetTracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.find(accountID, userID)
	if err != nil {
		return nil, err
	}
	t.BudgetThreshold = threshold
	t.NotificationFrequencyDays = frequencyDays
	t.NextNotificationDate = next
	out := *t
	return &out, nil
}

func (r *fakeRepo) UpdateAmountSpent(ctx context.Context, accountID, userID int64, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failUpdate[accountID]; err != nil {
		return err
	}
	t, err := r.find(accountID, userID)
	if err != nil {
		return err
	}
	t.AmountSpent = amount
	return nil
}

func (r *fakeRepo) AdvanceSchedule(ctx context.Context, accountID, userID int64, expected time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.find(accountID, userID)
	if err != nil {
		return false, err
	}
	if !SameDate(t.NextNotificationDate, expected) {
		return false, nil
	}
	t.NextNotificationDate = t.NextNotificationDate.AddDate(0, 0, t.NotificationFrequencyDays)
	return true, nil
}

func (r *fakeRepo) Delete(ctx context.Context, accountID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.find(accountID, userID); err != nil {
		return err
	}
	delete(r.trackers, accountID)
	return nil
}

func (r *fakeRepo) spent(accountID int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackers[accountID].AmountSpent
}

// fakeAccounts serves GetByID from a map
type fakeAccounts struct {
	account.Repository
	byID map[int64]*account.Account
}

func (f *fakeAccounts) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	acc, ok := f.byID[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return acc, nil
}

// fakeLinks serves GetByID from a map
type fakeLinks struct {
	institution.Repository
	byID map[int64]*institution.Link
}

func (f *fakeLinks) GetByID(ctx context.Context, id int64) (*institution.Link, error) {
	link, ok := f.byID[id]
	if !ok {
		return nil, institution.ErrLinkNotFound
	}
	return link, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func txn(amount string, categories ...string) ofclient.Transaction {
	return ofclient.Transaction{Amount: dec(amount), Category: categories}
}
