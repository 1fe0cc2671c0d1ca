// Package http exposes the daily run and the tracker operations over HTTP.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"budgetwatch/internal/shared/middleware"
	"budgetwatch/internal/shared/telemetry"
)

// Pinger reports whether storage is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers groups the route handlers
type Handlers struct {
	Runs          *RunHandler
	Trackers      *TrackerHandler
	Accounts      *AccountHandler
	Notifications *NotificationHandler
	DB            Pinger
}

// NewRouter builds the chi router
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)
	r.Use(middleware.Tracing)

	r.Get("/healthz", healthHandler(h.DB, h.Runs))
	r.Handle("/metrics", telemetry.MetricsHandler())

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.Runs.HandleTrigger)
		r.Get("/last", h.Runs.HandleLast)
	})

	r.Get("/links/{linkID}/accounts", h.Accounts.HandleLinkAccounts)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/balance", h.Accounts.HandleUserBalance)
		r.Get("/notifications", h.Notifications.HandleList)

		r.Route("/trackers", func(r chi.Router) {
			r.Get("/", h.Trackers.HandleList)
			r.Post("/", h.Trackers.HandleCreate)
			r.Get("/{accountID}", h.Trackers.HandleGet)
			r.Put("/{accountID}", h.Trackers.HandleUpdate)
			r.Delete("/{accountID}", h.Trackers.HandleDelete)
			r.Post("/{accountID}/recompute", h.Trackers.HandleRecompute)
		})
	})

	return r
}

type healthResponse struct {
	Status  string     `json:"status"`
	LastRun *runDigest `json:"lastRun,omitempty"`
}

type runDigest struct {
	RunID       string    `json:"runId"`
	Date        string    `json:"date"`
	FinishedAt  time.Time `json:"finishedAt"`
	HasFailures bool      `json:"hasFailures"`
}

func healthHandler(db Pinger, runs *RunHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if last := runs.runner.Last(); last != nil {
			resp.LastRun = &runDigest{
				RunID:       last.RunID,
				Date:        last.Date,
				FinishedAt:  last.FinishedAt,
				HasFailures: last.HasFailures(),
			}
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				resp.Status = "database unavailable"
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
