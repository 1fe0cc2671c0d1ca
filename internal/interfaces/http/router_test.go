package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/institution"
	"budgetwatch/internal/domain/notification"
	"budgetwatch/internal/domain/tracker"
	"budgetwatch/internal/infrastructure/memory"
	ofclient "budgetwatch/internal/infrastructure/openfinance"
	"budgetwatch/internal/interfaces/scheduler"
	"budgetwatch/internal/shared/batch"
)

// MockRunner implements Runner
type MockRunner struct {
	mu    sync.Mutex
	days  []time.Time
	last  *scheduler.RunReport
	err   string
	ctxOK bool
}

func (m *MockRunner) RunDaily(ctx context.Context, today time.Time) *scheduler.RunReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = append(m.days, today)
	_, hasDeadline := ctx.Deadline()
	m.ctxOK = ctx.Err() == nil && !hasDeadline
	m.last = &scheduler.RunReport{RunID: "run-1", Date: today.Format("2006-01-02"), Err: m.err}
	return m.last
}

func (m *MockRunner) Today() time.Time {
	return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
}

func (m *MockRunner) Location() *time.Location { return time.UTC }

func (m *MockRunner) Last() *scheduler.RunReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// MockPinger implements Pinger
type MockPinger struct{ Err error }

func (m *MockPinger) PingContext(ctx context.Context) error { return m.Err }

// MockClient implements ofclient.ClientInterface
type MockClient struct {
	Transactions []ofclient.Transaction
	Err          error
}

func (m *MockClient) GetBalances(ctx context.Context, accessToken string, accountIDs []string) (*ofclient.BalanceResponse, error) {
	return &ofclient.BalanceResponse{}, m.Err
}

func (m *MockClient) GetTransactions(ctx context.Context, accessToken, accountID string, start, end time.Time) ([]ofclient.Transaction, error) {
	return m.Transactions, m.Err
}

type testServer struct {
	handler   http.Handler
	store     *memory.Store
	runner    *MockRunner
	pinger    *MockPinger
	client    *MockClient
	linkID    int64
	accountID int64
	loanID    int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	link, err := store.Links().Create(ctx, institution.CreateParams{UserID: 7, Name: "Chase", AccessToken: "access-sandbox-1"})
	require.NoError(t, err)

	checking, err := store.Accounts().Create(ctx, account.CreateParams{
		InstitutionID: link.ID,
		ExternalID:    "ext-checking",
		Name:          "Everyday Checking",
		Subtype:       "checking",
		Balances:      account.DepositoryBalances{Current: decimal.RequireFromString("1200.50")},
		Trackable:     true,
	})
	require.NoError(t, err)

	loan, err := store.Accounts().Create(ctx, account.CreateParams{
		InstitutionID: link.ID,
		ExternalID:    "ext-loan",
		Name:          "Car Loan",
		Subtype:       "auto",
		Balances:      account.LoanBalances{Current: decimal.RequireFromString("200.25")},
	})
	require.NoError(t, err)

	client := &MockClient{Transactions: []ofclient.Transaction{
		{Amount: decimal.NewFromInt(40), Category: []string{"Food"}},
	}}
	pool := batch.NewPool(1, 0, time.Second)

	runner := &MockRunner{}
	pinger := &MockPinger{}
	links := institution.NewService(store.Links(), store.Accounts())
	trackers := tracker.NewService(store.Trackers(), store.Accounts(), store.Links(), tracker.NewSpendCalculator(client), pool)

	handler := NewRouter(Handlers{
		Runs:          NewRunHandler(runner),
		Trackers:      NewTrackerHandler(trackers),
		Accounts:      NewAccountHandler(account.NewService(store.Accounts()), links),
		Notifications: NewNotificationHandler(store.Notifications()),
		DB:            pinger,
	})

	return &testServer{
		handler:   handler,
		store:     store,
		runner:    runner,
		pinger:    pinger,
		client:    client,
		linkID:    link.ID,
		accountID: checking.ID,
		loanID:    loan.ID,
	}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Status)

	s.pinger.Err = errors.New("connection refused")
	rec = s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth_ReportsLastRun(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/runs", "")

	resp := decode[healthResponse](t, s.do(t, http.MethodGet, "/healthz", ""))
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "run-1", resp.LastRun.RunID)
	assert.False(t, resp.LastRun.HasFailures)
}

func TestTriggerRun(t *testing.T) {
	t.Run("defaults to today", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, http.MethodPost, "/runs", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2024-03-15", decode[scheduler.RunReport](t, rec).Date)
		assert.True(t, s.runner.ctxOK)
	})

	t.Run("explicit date", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, http.MethodPost, "/runs?date=2024-04-01", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2024-04-01", decode[scheduler.RunReport](t, rec).Date)
	})

	t.Run("bad date", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(t, http.MethodPost, "/runs?date=04/01/2024", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "date", decode[ErrorResponse](t, rec).Field)
		assert.Empty(t, s.runner.days)
	})

	t.Run("lock held", func(t *testing.T) {
		s := newTestServer(t)
		s.runner.err = "run lock: run already in progress"
		rec := s.do(t, http.MethodPost, "/runs", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("run in progress in this process", func(t *testing.T) {
		s := newTestServer(t)
		s.runner.err = scheduler.ErrRunInProgress
		rec := s.do(t, http.MethodPost, "/runs", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, scheduler.ErrRunInProgress, decode[scheduler.RunReport](t, rec).Err)
	})
}

func TestLastRun(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/runs/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.do(t, http.MethodPost, "/runs", "")
	rec = s.do(t, http.MethodGet, "/runs/last", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", decode[scheduler.RunReport](t, rec).RunID)
}

func TestTrackerLifecycle(t *testing.T) {
	s := newTestServer(t)
	base := "/users/7/trackers"

	rec := s.do(t, http.MethodPost, base, `{"accountId":1,"budgetThreshold":"500","notificationFrequencyDays":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[TrackerResponse](t, rec)
	assert.Equal(t, s.accountID, created.AccountID)
	assert.Equal(t, "500.00", created.BudgetThreshold)
	assert.Equal(t, created.NextNotificationDate.Format("1-2-2006"), created.PrettyNextNotificationDate)

	rec = s.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TrackerResponse](t, rec), 1)

	rec = s.do(t, http.MethodPut, base+"/1", `{"budgetThreshold":"750.5","notificationFrequencyDays":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[TrackerResponse](t, rec)
	assert.Equal(t, "750.50", updated.BudgetThreshold)
	assert.Equal(t, 10, updated.NotificationFrequencyDays)

	rec = s.do(t, http.MethodPost, base+"/1/recompute", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodDelete, base+"/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, base+"/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Kind)
}

func TestCreateTracker_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed body", "/users/7/trackers", `{`, http.StatusBadRequest},
		{"frequency too high", "/users/7/trackers", `{"accountId":1,"budgetThreshold":"10","notificationFrequencyDays":16}`, http.StatusBadRequest},
		{"negative threshold", "/users/7/trackers", `{"accountId":1,"budgetThreshold":"-1","notificationFrequencyDays":3}`, http.StatusBadRequest},
		{"other user's account", "/users/8/trackers", `{"accountId":1,"budgetThreshold":"10","notificationFrequencyDays":3}`, http.StatusBadRequest},
		{"untrackable account", "/users/7/trackers", `{"accountId":2,"budgetThreshold":"10","notificationFrequencyDays":3}`, http.StatusBadRequest},
		{"unknown account", "/users/7/trackers", `{"accountId":99,"budgetThreshold":"10","notificationFrequencyDays":3}`, http.StatusNotFound},
		{"bad user id", "/users/abc/trackers", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateTracker_ProviderFailure(t *testing.T) {
	s := newTestServer(t)
	s.client.Err = errors.New("rate limited")

	rec := s.do(t, http.MethodPost, "/users/7/trackers", `{"accountId":1,"budgetThreshold":"10","notificationFrequencyDays":3}`)
	if time.Now().Day() == 1 {
		// the first of the month needs no transactions
		assert.Equal(t, http.StatusCreated, rec.Code)
		return
	}
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "provider", decode[ErrorResponse](t, rec).Kind)
}

func TestCreateTracker_Duplicate(t *testing.T) {
	s := newTestServer(t)
	body := `{"accountId":1,"budgetThreshold":"10","notificationFrequencyDays":3}`

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/users/7/trackers", body).Code)
	rec := s.do(t, http.MethodPost, "/users/7/trackers", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "AccountID", decode[ErrorResponse](t, rec).Field)
}

func TestUserBalance(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/users/7/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1200.50", decode[BalanceResponse](t, rec).Balance)

	rec = s.do(t, http.MethodGet, "/users/7/balance?include_loans=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BalanceResponse](t, rec)
	assert.Equal(t, "1000.25", resp.Balance)
	assert.True(t, resp.IncludeLoans)
}

func TestLinkAccounts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/links/1/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	accounts := decode[[]AccountResponse](t, rec)
	require.Len(t, accounts, 2)
	assert.Equal(t, "1200.50", accounts[0].Current)
	assert.True(t, accounts[0].Trackable)
	assert.Nil(t, accounts[1].Available)

	rec = s.do(t, http.MethodGet, "/links/42/accounts", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNotifications(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.store.Notifications().CreateNotification(ctx, notification.CreateNotificationParams{
			AccountID:    s.accountID,
			UserID:       7,
			ScheduledFor: time.Date(2024, 3, 15+i, 0, 0, 0, 0, time.UTC),
			Status:       notification.StatusSent,
			Message:      "reminder",
			Attempts:     1,
		})
		require.NoError(t, err)
	}

	rec := s.do(t, http.MethodGet, "/users/7/notifications?page=1&per_page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[NotificationListResponse](t, rec)
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Notifications, 2)
	assert.Equal(t, 2, resp.PerPage)

	rec = s.do(t, http.MethodGet, "/users/9/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[NotificationListResponse](t, rec)
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Notifications)
	assert.Equal(t, 20, resp.PerPage)
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	writeError(rec, req, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "internal error", resp.Error)
	assert.Equal(t, "internal", resp.Kind)
}
