package http

import (
	"context"
	"net/http"
	"time"

	"budgetwatch/internal/interfaces/scheduler"
	"budgetwatch/internal/shared/errs"
)

// Runner is the orchestrator as seen by the HTTP surface
type Runner interface {
	RunDaily(ctx context.Context, today time.Time) *scheduler.RunReport
	Today() time.Time
	Location() *time.Location
	Last() *scheduler.RunReport
}

type RunHandler struct {
	runner Runner
}

func NewRunHandler(runner Runner) *RunHandler {
	return &RunHandler{runner: runner}
}

// HandleTrigger runs the daily job now, for ?date=YYYY-MM-DD or today. The
// run is detached from the request so a dropped client does not cancel it.
func (h *RunHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	day := h.runner.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.runner.Location())
		if err != nil {
			writeError(w, r, errs.Invalid("date", "expected YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	report := h.runner.RunDaily(context.WithoutCancel(r.Context()), day)

	status := http.StatusOK
	if report.Err != "" {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// HandleLast returns the most recent run report
func (h *RunHandler) HandleLast(w http.ResponseWriter, r *http.Request) {
	last := h.runner.Last()
	if last == nil {
		writeError(w, r, errs.NotFound("run", "last", nil))
		return
	}
	writeJSON(w, http.StatusOK, last)
}
