package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the provider-reported account type.
type Type string

const (
	TypeDepository Type = "depository"
	TypeCredit     Type = "credit"
	TypeLoan       Type = "loan"
	TypeInvestment Type = "investment"
)

var (
	// Depository subtypes that can carry a budget tracker. Every credit account is trackable.
	trackableDepositorySubtypes = map[string]struct{}{
		"checking": {},
		"paypal":   {},
	}
)

// Domain errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrUnknownAccountType  = errors.New("unknown account type")
	ErrMissingCurrent      = errors.New("current balance is required")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAccountExists       = errors.New("account already exists")
	ErrInstitutionRequired = errors.New("valid institution ID is required")
)

// Balances is the set of balance fields an account carries. The concrete
// variant fixes which fields exist for the account's type.
type Balances interface {
	Type() Type
	CurrentBalance() decimal.Decimal
	sealed()
}

// DepositoryBalances covers checking, savings, paypal and similar accounts.
type DepositoryBalances struct {
	Available *decimal.Decimal
	Current   decimal.Decimal
}

func (DepositoryBalances) Type() Type                        { return TypeDepository }
func (b DepositoryBalances) CurrentBalance() decimal.Decimal { return b.Current }
func (DepositoryBalances) sealed()                           {}

// CreditBalances covers credit cards and lines of credit. Current is the
// amount owed.
type CreditBalances struct {
	Current decimal.Decimal
	Limit   *decimal.Decimal
}

func (CreditBalances) Type() Type                        { return TypeCredit }
func (b CreditBalances) CurrentBalance() decimal.Decimal { return b.Current }
func (CreditBalances) sealed()                           {}

// Available returns limit - current. It is nil when the provider reported
// no limit.
func (b CreditBalances) Available() *decimal.Decimal {
	if b.Limit == nil {
		return nil
	}
	avail := b.Limit.Sub(b.Current)
	return &avail
}

// LoanBalances covers mortgages, student loans and other debt. Current is
// the outstanding principal.
type LoanBalances struct {
	Current decimal.Decimal
}

func (LoanBalances) Type() Type                        { return TypeLoan }
func (b LoanBalances) CurrentBalance() decimal.Decimal { return b.Current }
func (LoanBalances) sealed()                           {}

// InvestmentBalances covers brokerage and retirement accounts.
type InvestmentBalances struct {
	Available *decimal.Decimal
	Current   decimal.Decimal
}

func (InvestmentBalances) Type() Type                        { return TypeInvestment }
func (b InvestmentBalances) CurrentBalance() decimal.Decimal { return b.Current }
func (InvestmentBalances) sealed()                           {}

// NewBalances builds the variant for accountType from the raw provider
// fields. Fields the type does not define are ignored.
func NewBalances(accountType string, available, current, limit *decimal.Decimal) (Balances, error) {
	if current == nil {
		return nil, ErrMissingCurrent
	}

	switch Type(accountType) {
	case TypeDepository:
		return DepositoryBalances{Available: available, Current: *current}, nil
	case TypeCredit:
		return CreditBalances{Current: *current, Limit: limit}, nil
	case TypeLoan:
		return LoanBalances{Current: *current}, nil
	case TypeInvestment:
		return InvestmentBalances{Available: available, Current: *current}, nil
	default:
		return nil, ErrUnknownAccountType
	}
}

// Columns flattens b into the nullable storage columns.
func Columns(b Balances) (available *decimal.Decimal, current decimal.Decimal, limit *decimal.Decimal) {
	switch v := b.(type) {
	case DepositoryBalances:
		return v.Available, v.Current, nil
	case CreditBalances:
		return v.Available(), v.Current, v.Limit
	case LoanBalances:
		return nil, v.Current, nil
	case InvestmentBalances:
		return v.Available, v.Current, nil
	default:
		return nil, decimal.Zero, nil
	}
}

// Account represents one financial account at one institution link
type Account struct {
	ID            int64     `json:"id"`
	InstitutionID int64     `json:"institutionId"`
	ExternalID    string    `json:"externalId"`
	Name          string    `json:"name"`
	Subtype       string    `json:"subtype"`
	Balances      Balances  `json:"-"`
	Trackable     bool      `json:"trackable"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Type returns the account type, or "" when balances are unset.
func (a *Account) Type() Type {
	if a.Balances == nil {
		return ""
	}
	return a.Balances.Type()
}

// CreateParams contains parameters for creating a new account
type CreateParams struct {
	InstitutionID int64
	ExternalID    string
	Name          string
	Subtype       string
	Balances      Balances
	Trackable     bool
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.InstitutionID <= 0 {
		return ErrInstitutionRequired
	}
	if p.ExternalID == "" {
		return errors.New("external account ID is required")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if p.Balances == nil {
		return ErrMissingCurrent
	}
	return nil
}

// IsTrackable reports whether an account of this type and subtype can carry
// a budget tracker.
func IsTrackable(t Type, subtype string) bool {
	switch t {
	case TypeCredit:
		return true
	case TypeDepository:
		_, ok := trackableDepositorySubtypes[subtype]
		return ok
	default:
		return false
	}
}
