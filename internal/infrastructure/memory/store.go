// Package memory provides in-memory repositories with the same semantics as
// the PostgreSQL ones, including cascades and the date-guarded schedule
// advance. It backs the wired-service tests of the HTTP and scheduler
// packages and is not selectable as a production store; the binary always
// runs on PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/institution"
	"budgetwatch/internal/domain/notification"
	"budgetwatch/internal/domain/tracker"
	"budgetwatch/internal/domain/user"
)

var (
	_ user.Repository         = (*UserRepository)(nil)
	_ institution.Repository  = (*LinkRepository)(nil)
	_ account.Repository      = (*AccountRepository)(nil)
	_ tracker.Repository      = (*TrackerRepository)(nil)
	_ notification.Repository = (*NotificationRepository)(nil)
)

// Store holds every entity behind one lock.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	nextAccountID int64
	nextLinkID    int64

	users         map[int64]*user.User
	links         map[int64]*institution.Link
	accounts      map[int64]*account.Account
	trackers      map[int64]*tracker.BudgetTracker // by account ID
	notifications []*notification.Notification
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:           time.Now,
		nextAccountID: 1,
		nextLinkID:    1,
		users:         make(map[int64]*user.User),
		links:         make(map[int64]*institution.Link),
		accounts:      make(map[int64]*account.Account),
		trackers:      make(map[int64]*tracker.BudgetTracker),
	}
}

// PutUser inserts or replaces a user. Users are managed outside this system.
func (s *Store) PutUser(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *Store) Users() *UserRepository                 { return &UserRepository{s} }
func (s *Store) Links() *LinkRepository                 { return &LinkRepository{s} }
func (s *Store) Accounts() *AccountRepository           { return &AccountRepository{s} }
func (s *Store) Trackers() *TrackerRepository           { return &TrackerRepository{s} }
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s} }

// deleteAccountLocked removes an account and its tracker.
func (s *Store) deleteAccountLocked(id int64) {
	delete(s.accounts, id)
	delete(s.trackers, id)
}

// UserRepository implements user.Repository
type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// LinkRepository implements institution.Repository
type LinkRepository struct{ s *Store }

func (r *LinkRepository) Create(ctx context.Context, params institution.CreateParams) (*institution.Link, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	link := &institution.Link{
		ID:          r.s.nextLinkID,
		UserID:      params.UserID,
		Name:        params.Name,
		ItemID:      params.ItemID,
		AccessToken: params.AccessToken,
		CreatedAt:   r.s.now(),
	}
	r.s.nextLinkID++
	r.s.links[link.ID] = link

	cp := *link
	return &cp, nil
}

func (r *LinkRepository) GetByID(ctx context.Context, id int64) (*institution.Link, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	link, ok := r.s.links[id]
	if !ok {
		return nil, institution.ErrLinkNotFound
	}
	cp := *link
	return &cp, nil
}

func (r *LinkRepository) ListByUserID(ctx context.Context, userID int64) ([]*institution.Link, error) {
	return r.filter(func(l *institution.Link) bool { return l.UserID == userID }), nil
}

func (r *LinkRepository) List(ctx context.Context) ([]*institution.Link, error) {
	return r.filter(func(*institution.Link) bool { return true }), nil
}

func (r *LinkRepository) filter(keep func(*institution.Link) bool) []*institution.Link {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*institution.Link
	for _, l := range r.s.links {
		if keep(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *LinkRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.links[id]; !ok {
		return institution.ErrLinkNotFound
	}
	delete(r.s.links, id)
	for accID, acc := range r.s.accounts {
		if acc.InstitutionID == id {
			r.s.deleteAccountLocked(accID)
		}
	}
	return nil
}

// AccountRepository implements account.Repository
type AccountRepository struct{ s *Store }

func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, acc := range r.s.accounts {
		if acc.ExternalID == params.ExternalID {
			return nil, account.ErrAccountExists
		}
	}

	now := r.s.now()
	acc := &account.Account{
		ID:            r.s.nextAccountID,
		InstitutionID: params.InstitutionID,
		ExternalID:    params.ExternalID,
		Name:          params.Name,
		Subtype:       params.Subtype,
		Balances:      params.Balances,
		Trackable:     params.Trackable,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.s.nextAccountID++
	r.s.accounts[acc.ID] = acc

	cp := *acc
	return &cp, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	acc, ok := r.s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, acc := range r.s.accounts {
		if acc.ExternalID == externalID {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

func (r *AccountRepository) ListByInstitution(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*account.Account
	for _, acc := range r.s.accounts {
		if acc.InstitutionID == institutionID {
			cp := *acc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *AccountRepository) UpdateBalances(ctx context.Context, id int64, balances account.Balances) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	acc, ok := r.s.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	acc.Balances = balances
	acc.UpdatedAt = r.s.now()
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[id]; !ok {
		return account.ErrAccountNotFound
	}
	r.s.deleteAccountLocked(id)
	return nil
}

// TrackerRepository implements tracker.Repository. Each method holds the
// store lock for its whole read-modify-write.
type TrackerRepository struct{ s *Store }

func (r *TrackerRepository) Create(ctx context.Context, t *tracker.BudgetTracker) (*tracker.BudgetTracker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.trackers[t.AccountID]; ok {
		return nil, tracker.ErrTrackerExists
	}

	now := r.s.now()
	cp := *t
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.s.trackers[t.AccountID] = &cp

	out := cp
	return &out, nil
}

func (r *TrackerRepository) lookup(accountID, userID int64) (*tracker.BudgetTracker, error) {
	t, ok := r.s.trackers[accountID]
	if !ok || t.UserID != userID {
		return nil, tracker.ErrTrackerNotFound
	}
	return t, nil
}

func (r *TrackerRepository) Get(ctx context.Context, accountID, userID int64) (*tracker.BudgetTracker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, err := r.lookup(accountID, userID)
	if err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (r *TrackerRepository) GetByAccountID(ctx context.Context, accountID int64) (*tracker.BudgetTracker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.trackers[accountID]
	if !ok {
		return nil, tracker.ErrTrackerNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TrackerRepository) ListAll(ctx context.Context) ([]*tracker.BudgetTracker, error) {
	return r.filter(func(*tracker.BudgetTracker) bool { return true }), nil
}

func (r *TrackerRepository) ListByUserID(ctx context.Context, userID int64) ([]*tracker.BudgetTracker, error) {
	return r.filter(func(t *tracker.BudgetTracker) bool { return t.UserID == userID }), nil
}

func (r *TrackerRepository) ListDueOn(ctx context.Context, date time.Time) ([]*tracker.BudgetTracker, error) {
	return r.filter(func(t *tracker.BudgetTracker) bool {
		return tracker.SameDate(t.NextNotificationDate.In(date.Location()), date)
	}), nil
}

func (r *TrackerRepository) filter(keep func(*tracker.BudgetTracker) bool) []*tracker.BudgetTracker {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*tracker.BudgetTracker
	for _, t := range r.s.trackers {
		if keep(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func (r *TrackerRepository) UpdateSettings(ctx context.Context, accountID, userID int64, threshold decimal.Decimal, frequencyDays int, next time.Time) (*tracker.BudgetTracker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, err := r.lookup(accountID, userID)
	if err != nil {
		return nil, err
	}
	t.BudgetThreshold = threshold
	t.NotificationFrequencyDays = frequencyDays
	t.NextNotificationDate = next
	t.UpdatedAt = r.s.now()

	cp := *t
	return &cp, nil
}

func (r *TrackerRepository) UpdateAmountSpent(ctx context.Context, accountID, userID int64, amount decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, err := r.lookup(accountID, userID)
	if err != nil {
		return err
	}
	t.AmountSpent = amount
	t.UpdatedAt = r.s.now()
	return nil
}

func (r *TrackerRepository) AdvanceSchedule(ctx context.Context, accountID, userID int64, expected time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, err := r.lookup(accountID, userID)
	if err != nil {
		return false, err
	}
	if !tracker.SameDate(t.NextNotificationDate.In(expected.Location()), expected) {
		return false, nil
	}
	t.NextNotificationDate = t.NextNotificationDate.In(expected.Location()).AddDate(0, 0, t.NotificationFrequencyDays)
	t.UpdatedAt = r.s.now()
	return true, nil
}

func (r *TrackerRepository) Delete(ctx context.Context, accountID, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, err := r.lookup(accountID, userID); err != nil {
		return err
	}
	delete(r.s.trackers, accountID)
	return nil
}

// NotificationRepository implements notification.Repository
type NotificationRepository struct{ s *Store }

func (r *NotificationRepository) CreateNotification(ctx context.Context, params notification.CreateNotificationParams) (*notification.Notification, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := &notification.Notification{
		ID:           uuid.NewString(),
		AccountID:    params.AccountID,
		UserID:       params.UserID,
		ScheduledFor: params.ScheduledFor,
		Status:       params.Status,
		Message:      params.Message,
		Error:        params.Error,
		Attempts:     params.Attempts,
		CreatedAt:    r.s.now(),
	}
	r.s.notifications = append(r.s.notifications, n)

	cp := *n
	return &cp, nil
}

// ListByUserID returns newest first, like the SQL repository.
func (r *NotificationRepository) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*notification.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var mine []*notification.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		if n := r.s.notifications[i]; n.UserID == userID {
			cp := *n
			mine = append(mine, &cp)
		}
	}

	total := len(mine)
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return mine[start:end], total, nil
}
