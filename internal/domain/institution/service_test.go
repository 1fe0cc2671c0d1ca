package institution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/shared/errs"
)

// MockRepository implements Repository
type MockRepository struct {
	CreateFunc       func(ctx context.Context, params CreateParams) (*Link, error)
	GetByIDFunc      func(ctx context.Context, id int64) (*Link, error)
	ListByUserIDFunc func(ctx context.Context, userID int64) ([]*Link, error)
	ListFunc         func(ctx context.Context) ([]*Link, error)
	DeleteFunc       func(ctx context.Context, id int64) error
}

func (m *MockRepository) Create(ctx context.Context, params CreateParams) (*Link, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockRepository) GetByID(ctx context.Context, id int64) (*Link, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrLinkNotFound
}

func (m *MockRepository) ListByUserID(ctx context.Context, userID int64) ([]*Link, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRepository) List(ctx context.Context) ([]*Link, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *MockRepository) Delete(ctx context.Context, id int64) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// mockAccountRepo only serves ListByInstitution
type mockAccountRepo struct {
	account.Repository
	byLink map[int64][]*account.Account
}

func (m *mockAccountRepo) ListByInstitution(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	return m.byLink[institutionID], nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestUserBalance(t *testing.T) {
	repo := &MockRepository{
		ListByUserIDFunc: func(ctx context.Context, userID int64) ([]*Link, error) {
			return []*Link{{ID: 1, UserID: userID}, {ID: 2, UserID: userID}}, nil
		},
	}
	accounts := &mockAccountRepo{byLink: map[int64][]*account.Account{
		1: {
			{Balances: account.DepositoryBalances{Current: d("1500.10")}},
			{Balances: account.CreditBalances{Current: d("200.05")}},
		},
		2: {
			{Balances: account.InvestmentBalances{Current: d("1000")}},
			{Balances: account.LoanBalances{Current: d("800")}},
		},
	}}
	service := NewService(repo, accounts)

	tests := []struct {
		includeLoans bool
		want         string
	}{
		{false, "2300.05"},
		{true, "1500.05"},
	}

	for _, tt := range tests {
		got, err := service.UserBalance(context.Background(), 7, tt.includeLoans)
		if err != nil {
			t.Fatalf("UserBalance() failed: %v", err)
		}
		if !got.Equal(d(tt.want)) {
			t.Errorf("UserBalance(includeLoans=%v) = %s, want %s", tt.includeLoans, got, tt.want)
		}
	}
}

func TestUserBalance_InvalidUser(t *testing.T) {
	service := NewService(&MockRepository{}, &mockAccountRepo{})

	if _, err := service.UserBalance(context.Background(), 0, false); err == nil {
		t.Error("UserBalance() expected error for user 0, got nil")
	}
}

func TestCreateLink_Validation(t *testing.T) {
	service := NewService(&MockRepository{}, &mockAccountRepo{})

	_, err := service.CreateLink(context.Background(), CreateParams{UserID: 1, Name: "Chase"})
	if !errs.IsValidation(err) {
		t.Errorf("CreateLink() error = %v, want ValidationError", err)
	}
}

func TestGetLink_NotFound(t *testing.T) {
	service := NewService(&MockRepository{}, &mockAccountRepo{})

	_, err := service.GetLink(context.Background(), 99)
	if !errs.IsNotFound(err) || !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("GetLink() error = %v, want NotFoundError wrapping ErrLinkNotFound", err)
	}
}

func TestDeleteLink(t *testing.T) {
	deleted := int64(0)
	repo := &MockRepository{
		GetByIDFunc: func(ctx context.Context, id int64) (*Link, error) {
			return &Link{ID: id}, nil
		},
		DeleteFunc: func(ctx context.Context, id int64) error {
			deleted = id
			return nil
		},
	}
	service := NewService(repo, &mockAccountRepo{})

	if err := service.DeleteLink(context.Background(), 3); err != nil {
		t.Fatalf("DeleteLink() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Delete id = %d, want 3", deleted)
	}
}
