package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/tracker"
	"budgetwatch/internal/domain/user"
)

// MockNotifier records every message it is asked to send
type MockNotifier struct {
	SendFunc func(ctx context.Context, phoneNumber, message string) error

	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	Phone   string
	Message string
}

func (m *MockNotifier) Send(ctx context.Context, phoneNumber, message string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{Phone: phoneNumber, Message: message})
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, phoneNumber, message)
	}
	return nil
}

func (m *MockNotifier) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// fakeTrackers is a map-backed tracker.Repository keyed by account ID
type fakeTrackers struct {
	tracker.Repository

	mu       sync.Mutex
	trackers map[int64]*tracker.BudgetTracker
	listErr  error
	// failAdvance makes AdvanceSchedule fail for these account IDs
	failAdvance map[int64]error
}

func newFakeTrackers(trackers ...*tracker.BudgetTracker) *fakeTrackers {
	r := &fakeTrackers{trackers: map[int64]*tracker.BudgetTracker{}, failAdvance: map[int64]error{}}
	for _, t := range trackers {
		cp := *t
		r.trackers[t.AccountID] = &cp
	}
	return r
}

func (r *fakeTrackers) ListDueOn(ctx context.Context, date time.Time) ([]*tracker.BudgetTracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*tracker.BudgetTracker
	for _, t := range r.trackers {
		if t.IsDueOn(date) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTrackers) AdvanceSchedule(ctx context.Context, accountID, userID int64, expected time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failAdvance[accountID]; err != nil {
		return false, err
	}
	t, ok := r.trackers[accountID]
	if !ok || t.UserID != userID {
		return false, tracker.ErrTrackerNotFound
	}
	if !tracker.SameDate(t.NextNotificationDate, expected) {
		return false, nil
	}
	t.NextNotificationDate = t.NextNotificationDate.AddDate(0, 0, t.NotificationFrequencyDays)
	return true, nil
}

func (r *fakeTrackers) next(accountID int64) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackers[accountID].NextNotificationDate
}

type fakeUsers struct {
	users map[int64]*user.User
}

func (r *fakeUsers) GetByID(ctx context.Context, id int64) (*user.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

type fakeAccounts struct {
	account.Repository
	byID map[int64]*account.Account
}

func (r *fakeAccounts) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return a, nil
}

// fakeHistory collects recorded notifications
type fakeHistory struct {
	mu      sync.Mutex
	records []CreateNotificationParams
	err     error
}

func (r *fakeHistory) CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.records = append(r.records, params)
	return &Notification{AccountID: params.AccountID, UserID: params.UserID, Status: params.Status}, nil
}

func (r *fakeHistory) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	return nil, 0, errors.New("not implemented")
}

func (r *fakeHistory) statuses() map[int64]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]string{}
	for _, rec := range r.records {
		out[rec.AccountID] = rec.Status
	}
	return out
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
