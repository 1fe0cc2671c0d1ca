package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"budgetwatch/internal/domain/tracker"
	"budgetwatch/internal/shared/errs"
)

type TrackerHandler struct {
	trackerService *tracker.Service
}

func NewTrackerHandler(trackerService *tracker.Service) *TrackerHandler {
	return &TrackerHandler{trackerService: trackerService}
}

// HTTP request/response types (transport layer concerns)
type CreateTrackerRequest struct {
	AccountID                 int64           `json:"accountId"`
	BudgetThreshold           decimal.Decimal `json:"budgetThreshold"`
	NotificationFrequencyDays int             `json:"notificationFrequencyDays"`
}

type UpdateTrackerRequest struct {
	BudgetThreshold           decimal.Decimal `json:"budgetThreshold"`
	NotificationFrequencyDays int             `json:"notificationFrequencyDays"`
}

type TrackerResponse struct {
	AccountID                  int64     `json:"accountId"`
	UserID                     int64     `json:"userId"`
	BudgetThreshold            string    `json:"budgetThreshold"`
	AmountSpent                string    `json:"amountSpent"`
	NotificationFrequencyDays  int       `json:"notificationFrequencyDays"`
	NextNotificationDate       time.Time `json:"nextNotificationDate"`
	PrettyNextNotificationDate string    `json:"prettyNextNotificationDate"`
}

func toTrackerResponse(t *tracker.BudgetTracker) TrackerResponse {
	return TrackerResponse{
		AccountID:                  t.AccountID,
		UserID:                     t.UserID,
		BudgetThreshold:            t.BudgetThreshold.StringFixed(2),
		AmountSpent:                t.AmountSpent.StringFixed(2),
		NotificationFrequencyDays:  t.NotificationFrequencyDays,
		NextNotificationDate:       t.NextNotificationDate,
		PrettyNextNotificationDate: t.PrettyNextNotificationDate(),
	}
}

func (h *TrackerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	trackers, err := h.trackerService.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := make([]TrackerResponse, 0, len(trackers))
	for _, t := range trackers {
		response = append(response, toTrackerResponse(t))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *TrackerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req CreateTrackerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errs.Invalid("", "invalid request body"))
		return
	}

	created, err := h.trackerService.Create(r.Context(), tracker.CreateParams{
		AccountID:                 req.AccountID,
		UserID:                    userID,
		BudgetThreshold:           req.BudgetThreshold,
		NotificationFrequencyDays: req.NotificationFrequencyDays,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTrackerResponse(created))
}

// trackerKey parses the {userID} and {accountID} path parameters
func trackerKey(r *http.Request) (accountID, userID int64, err error) {
	if userID, err = pathID(r, "userID"); err != nil {
		return 0, 0, err
	}
	if accountID, err = pathID(r, "accountID"); err != nil {
		return 0, 0, err
	}
	return accountID, userID, nil
}

func (h *TrackerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	accountID, userID, err := trackerKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.trackerService.Get(r.Context(), accountID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackerResponse(t))
}

func (h *TrackerHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	accountID, userID, err := trackerKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req UpdateTrackerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errs.Invalid("", "invalid request body"))
		return
	}

	updated, err := h.trackerService.Update(r.Context(), accountID, userID, tracker.UpdateParams{
		BudgetThreshold:           req.BudgetThreshold,
		NotificationFrequencyDays: req.NotificationFrequencyDays,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackerResponse(updated))
}

func (h *TrackerHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	accountID, userID, err := trackerKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.trackerService.Delete(r.Context(), accountID, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecompute refreshes the month-to-date spend right away
func (h *TrackerHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	accountID, userID, err := trackerKey(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.trackerService.Recompute(r.Context(), accountID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackerResponse(t))
}
