package openfinance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("client-id", "secret", srv.URL, time.Second)
}

func TestGetBalances(t *testing.T) {
	var got balanceRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != balancesPath {
			t.Errorf("path = %s, want %s", r.URL.Path, balancesPath)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(`{
			"accounts": [
				{"account_id": "a1", "name": "Checking", "type": "depository", "subtype": "checking",
				 "balances": {"available": 100.5, "current": 110.25, "limit": null}},
				{"account_id": "c1", "name": "Card", "type": "credit", "subtype": "credit card",
				 "balances": {"available": null, "current": 300, "limit": 1000}}
			],
			"item": {"item_id": "item-1"},
			"request_id": "req-1"
		}`))
	})

	resp, err := client.GetBalances(context.Background(), "access-token", []string{"a1", "c1"})
	if err != nil {
		t.Fatalf("GetBalances() failed: %v", err)
	}

	if got.AccessToken != "access-token" || got.ClientID != "client-id" || got.Secret != "secret" {
		t.Errorf("request credentials = %+v", got)
	}
	if got.Options == nil || len(got.Options.AccountIDs) != 2 {
		t.Errorf("request options = %+v, want two account_ids", got.Options)
	}

	if len(resp.Accounts) != 2 {
		t.Fatalf("len(Accounts) = %d, want 2", len(resp.Accounts))
	}
	checking := resp.Accounts[0]
	if checking.Balances.Available == nil || checking.Balances.Available.String() != "100.5" {
		t.Errorf("checking available = %v, want 100.5", checking.Balances.Available)
	}
	card := resp.Accounts[1]
	if card.Balances.Available != nil {
		t.Errorf("card available = %v, want nil", card.Balances.Available)
	}
	if card.Balances.Limit == nil || card.Balances.Limit.String() != "1000" {
		t.Errorf("card limit = %v, want 1000", card.Balances.Limit)
	}
	if resp.Item.ItemID != "item-1" {
		t.Errorf("ItemID = %q, want item-1", resp.Item.ItemID)
	}
}

func TestGetBalances_NoFilterOmitsOptions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		json.NewDecoder(r.Body).Decode(&raw)
		if _, ok := raw["options"]; ok {
			t.Errorf("options sent without account filter: %v", raw["options"])
		}
		w.Write([]byte(`{"accounts": []}`))
	})

	if _, err := client.GetBalances(context.Background(), "tok", nil); err != nil {
		t.Fatalf("GetBalances() failed: %v", err)
	}
}

func TestGetBalances_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_type": "ITEM_ERROR", "error_code": "ITEM_LOGIN_REQUIRED", "error_message": "login required"}`))
	})

	_, err := client.GetBalances(context.Background(), "tok", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("GetBalances() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.ErrorCode != "ITEM_LOGIN_REQUIRED" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestGetBalances_NonJSONError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	})

	_, err := client.GetBalances(context.Background(), "tok", nil)
	if err == nil {
		t.Fatal("GetBalances() expected error, got nil")
	}
}

func TestGetTransactions_Paginates(t *testing.T) {
	var offsets []int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req transactionsRequest
		json.NewDecoder(r.Body).Decode(&req)
		offsets = append(offsets, req.Options.Offset)

		if req.StartDate != "2024-03-01" || req.EndDate != "2024-03-15" {
			t.Errorf("dates = %s..%s", req.StartDate, req.EndDate)
		}
		if len(req.Options.AccountIDs) != 1 || req.Options.AccountIDs[0] != "acc-9" {
			t.Errorf("account_ids = %v", req.Options.AccountIDs)
		}

		if req.Options.Offset == 0 {
			w.Write([]byte(`{"total_transactions": 3, "transactions": [
				{"transaction_id": "t1", "amount": 12.5, "category": ["Food and Drink", "Restaurants"]},
				{"transaction_id": "t2", "amount": -100, "category": ["Transfer"]}
			]}`))
			return
		}
		w.Write([]byte(`{"total_transactions": 3, "transactions": [
			{"transaction_id": "t3", "amount": 7.25, "category": null}
		]}`))
	})

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	txns, err := client.GetTransactions(context.Background(), "tok", "acc-9", start, end)
	if err != nil {
		t.Fatalf("GetTransactions() failed: %v", err)
	}

	if len(txns) != 3 {
		t.Fatalf("len(txns) = %d, want 3", len(txns))
	}
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 2 {
		t.Errorf("offsets = %v, want [0 2]", offsets)
	}
	if txns[0].Amount.String() != "12.5" {
		t.Errorf("txns[0].Amount = %s, want 12.5", txns[0].Amount)
	}
}

func TestGetTransactions_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_transactions": 0, "transactions": []}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetTransactions(ctx, "tok", "a", time.Now(), time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetTransactions() error = %v, want context.Canceled", err)
	}
}

func TestTransaction_HasCategory(t *testing.T) {
	omit := map[string]struct{}{"Transfer": {}, "Payment": {}}

	tests := []struct {
		categories []string
		want       bool
	}{
		{[]string{"Transfer", "Debit"}, true},
		{[]string{"Payment", "Credit Card"}, true},
		{[]string{"Food and Drink"}, false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := (Transaction{Category: tt.categories}).HasCategory(omit); got != tt.want {
			t.Errorf("HasCategory(%v) = %v, want %v", tt.categories, got, tt.want)
		}
	}
}

func TestNewClient_Environment(t *testing.T) {
	if c := NewClient("id", "s", "sandbox", 0); c.baseURL != "https://sandbox.plaid.com" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c := NewClient("id", "s", "http://localhost:9999", 0); c.baseURL != "http://localhost:9999" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}
