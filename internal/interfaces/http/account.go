package http

import (
	"net/http"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/institution"
)

type AccountHandler struct {
	accountService *account.Service
	linkService    *institution.Service
}

func NewAccountHandler(accountService *account.Service, linkService *institution.Service) *AccountHandler {
	return &AccountHandler{accountService: accountService, linkService: linkService}
}

type BalanceResponse struct {
	UserID       int64  `json:"userId"`
	Balance      string `json:"balance"`
	IncludeLoans bool   `json:"includeLoans"`
}

// AccountResponse flattens the balance variant into nullable fields
type AccountResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Subtype   string  `json:"subtype"`
	Available *string `json:"available"`
	Current   string  `json:"current"`
	Limit     *string `json:"limit"`
	Trackable bool    `json:"trackable"`
}

func toAccountResponse(acc *account.Account) AccountResponse {
	resp := AccountResponse{
		ID:        acc.ID,
		Name:      acc.Name,
		Type:      string(acc.Type()),
		Subtype:   acc.Subtype,
		Trackable: acc.Trackable,
	}
	if acc.Balances == nil {
		return resp
	}

	available, current, limit := account.Columns(acc.Balances)
	resp.Current = current.StringFixed(2)
	if available != nil {
		s := available.StringFixed(2)
		resp.Available = &s
	}
	if limit != nil {
		s := limit.StringFixed(2)
		resp.Limit = &s
	}
	return resp
}

// HandleUserBalance returns the user's net position across all links.
// Loans are left out unless ?include_loans=true.
func (h *AccountHandler) HandleUserBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	includeLoans := r.URL.Query().Get("include_loans") == "true"

	total, err := h.linkService.UserBalance(r.Context(), userID, includeLoans)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		UserID:       userID,
		Balance:      total.StringFixed(2),
		IncludeLoans: includeLoans,
	})
}

// HandleLinkAccounts lists the stored accounts of one link
func (h *AccountHandler) HandleLinkAccounts(w http.ResponseWriter, r *http.Request) {
	linkID, err := pathID(r, "linkID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.linkService.GetLink(r.Context(), linkID); err != nil {
		writeError(w, r, err)
		return
	}

	accounts, err := h.accountService.ListByInstitution(r.Context(), linkID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, toAccountResponse(acc))
	}
	writeJSON(w, http.StatusOK, response)
}
