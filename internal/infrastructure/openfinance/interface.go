package openfinance

import (
	"context"
	"time"
)

// ClientInterface defines the methods required from the financial data provider.
// Every call is authorised by the link's access token.
type ClientInterface interface {
	// GetBalances fetches live balances. A non-empty accountIDs restricts the
	// response to those provider account IDs.
	GetBalances(ctx context.Context, accessToken string, accountIDs []string) (*BalanceResponse, error)

	// GetTransactions fetches every transaction of one account dated within
	// [start, end], following the provider's pagination.
	GetTransactions(ctx context.Context, accessToken, accountID string, start, end time.Time) ([]Transaction, error)
}
