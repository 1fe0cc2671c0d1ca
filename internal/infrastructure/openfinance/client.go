// Package openfinance is the HTTP client for the Plaid API.
package openfinance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultTimeout   = 30 * time.Second
	balancesPath     = "/accounts/balance/get"
	transactionsPath = "/transactions/get"
	transactionsPage = 500
	dateLayout       = "2006-01-02"
)

// Base URLs per Plaid environment
var environments = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// Client handles communication with the Plaid API
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Plaid client. environment is sandbox,
// development or production; anything else is treated as a base URL.
func NewClient(clientID, secret, environment string, timeout time.Duration) *Client {
	baseURL, ok := environments[environment]
	if !ok {
		baseURL = environment
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
	}
}

// BalanceResponse represents the API response for /accounts/balance/get
type BalanceResponse struct {
	Accounts  []Account `json:"accounts"`
	Item      Item      `json:"item"`
	RequestID string    `json:"request_id"`
}

// Item identifies the institution link on the provider side
type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

// Account is one account snapshot as reported by the provider
type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
	Balances     Balances `json:"balances"`
}

// Balances holds the raw balance fields. Any of them may be null.
type Balances struct {
	Available       *decimal.Decimal `json:"available"`
	Current         *decimal.Decimal `json:"current"`
	Limit           *decimal.Decimal `json:"limit"`
	ISOCurrencyCode string           `json:"iso_currency_code"`
}

// TransactionResponse represents one page of /transactions/get
type TransactionResponse struct {
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	RequestID         string        `json:"request_id"`
}

// Transaction represents a transaction from the provider. Positive amounts
// are money leaving the account.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Name          string          `json:"name"`
	Category      []string        `json:"category"`
	Pending       bool            `json:"pending"`
}

// HasCategory reports whether the transaction carries any of the given categories.
func (t Transaction) HasCategory(categories map[string]struct{}) bool {
	for _, c := range t.Category {
		if _, ok := categories[c]; ok {
			return true
		}
	}
	return false
}

// APIError is the provider's error body plus the HTTP status.
type APIError struct {
	StatusCode     int    `json:"-"`
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s - %s", e.StatusCode, e.ErrorCode, e.ErrorMessage)
}

type accountsOptions struct {
	AccountIDs []string `json:"account_ids,omitempty"`
	Count      int      `json:"count,omitempty"`
	Offset     int      `json:"offset,omitempty"`
}

type balanceRequest struct {
	ClientID    string           `json:"client_id"`
	Secret      string           `json:"secret"`
	AccessToken string           `json:"access_token"`
	Options     *accountsOptions `json:"options,omitempty"`
}

type transactionsRequest struct {
	ClientID    string          `json:"client_id"`
	Secret      string          `json:"secret"`
	AccessToken string          `json:"access_token"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Options     accountsOptions `json:"options"`
}

// GetBalances fetches live balances for a link
func (c *Client) GetBalances(ctx context.Context, accessToken string, accountIDs []string) (*BalanceResponse, error) {
	body := balanceRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
	}
	if len(accountIDs) > 0 {
		body.Options = &accountsOptions{AccountIDs: accountIDs}
	}

	var resp BalanceResponse
	if err := c.post(ctx, balancesPath, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTransactions fetches all transactions of one account between start and end
func (c *Client) GetTransactions(ctx context.Context, accessToken, accountID string, start, end time.Time) ([]Transaction, error) {
	var all []Transaction

	for {
		body := transactionsRequest{
			ClientID:    c.clientID,
			Secret:      c.secret,
			AccessToken: accessToken,
			StartDate:   start.Format(dateLayout),
			EndDate:     end.Format(dateLayout),
			Options: accountsOptions{
				AccountIDs: []string{accountID},
				Count:      transactionsPage,
				Offset:     len(all),
			},
		}

		var page TransactionResponse
		if err := c.post(ctx, transactionsPath, body, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Transactions...)
		if len(page.Transactions) == 0 || len(all) >= page.TotalTransactions {
			break
		}
	}

	return all, nil
}

// post sends a JSON request and decodes a 200 response into out.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.ErrorCode == "" {
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
