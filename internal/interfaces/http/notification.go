package http

import (
	"net/http"
	"strconv"

	"budgetwatch/internal/domain/notification"
)

type NotificationHandler struct {
	repo notification.Repository
}

func NewNotificationHandler(repo notification.Repository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

type NotificationListResponse struct {
	Notifications []*notification.Notification `json:"notifications"`
	Page          int                          `json:"page"`
	PerPage       int                          `json:"perPage"`
	Total         int                          `json:"total"`
}

// HandleList returns a user's reminder history, newest first
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	items, total, err := h.repo.ListByUserID(r.Context(), userID, page, perPage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*notification.Notification{}
	}

	writeJSON(w, http.StatusOK, NotificationListResponse{
		Notifications: items,
		Page:          page,
		PerPage:       perPage,
		Total:         total,
	})
}
