package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/account"
	ofclient "budgetwatch/internal/infrastructure/openfinance"
	"budgetwatch/internal/shared/errs"
)

// Transactions in any of these categories are money moving between the
// user's own accounts or paying down debt, not spending.
var omittedCategories = map[string]struct{}{
	"Transfer":    {},
	"Credit Card": {},
	"Deposit":     {},
	"Payment":     {},
}

// SpendCalculator computes what an account spent over a date window.
type SpendCalculator struct {
	client ofclient.ClientInterface
}

// NewSpendCalculator creates a new spend calculator
func NewSpendCalculator(client ofclient.ClientInterface) *SpendCalculator {
	return &SpendCalculator{client: client}
}

// MonthToDate returns the window from the first of today's month to today.
func MonthToDate(today time.Time) (start, end time.Time) {
	y, m, _ := today.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, today.Location()), today
}

// SpendForAccount sums the positive, non-omitted transaction amounts of acc
// within [start, end], rounded to cents. A window that starts and ends on
// the same date is zero without asking the provider.
func (c *SpendCalculator) SpendForAccount(ctx context.Context, acc *account.Account, start, end time.Time, accessToken string) (decimal.Decimal, error) {
	if SameDate(start, end) {
		return decimal.Zero, nil
	}

	txns, err := c.client.GetTransactions(ctx, accessToken, acc.ExternalID, start, end)
	if err != nil {
		return decimal.Zero, errs.Provider("get_transactions", fmt.Errorf("account %d: %w", acc.ID, err))
	}

	spent := decimal.Zero
	for _, txn := range txns {
		if txn.HasCategory(omittedCategories) {
			continue
		}
		if txn.Amount.IsPositive() {
			spent = spent.Add(txn.Amount)
		}
	}

	return spent.Round(2), nil
}

// MonthToDateSpend is SpendForAccount over MonthToDate(today).
func (c *SpendCalculator) MonthToDateSpend(ctx context.Context, acc *account.Account, today time.Time, accessToken string) (decimal.Decimal, error) {
	start, end := MonthToDate(today)
	return c.SpendForAccount(ctx, acc, start, end, accessToken)
}
