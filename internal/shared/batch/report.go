package batch

import (
	"errors"
	"sort"
	"sync"
	"time"

	"budgetwatch/internal/shared/errs"
)

// Failure is one entity that could not be processed.
type Failure struct {
	EntityID string `json:"entityId"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// Report is the outcome of one stage. Safe for concurrent use while the
// stage runs.
type Report struct {
	Stage      string    `json:"stage"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	NotStarted int       `json:"notStarted"`
	Failures   []Failure `json:"failures,omitempty"`
	// Err is set when the stage could not start at all (e.g. the due query failed).
	Err        string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`

	mu sync.Mutex
}

// NewReport creates an empty report for stage with total planned entities.
func NewReport(stage string, total int) *Report {
	return &Report{Stage: stage, Total: total, Failures: []Failure{}}
}

// Record classifies the outcome of one entity.
func (r *Report) Record(entityID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		r.Succeeded++
	case errors.Is(err, ErrSkipped):
		r.Skipped++
	default:
		r.Failed++
		r.Failures = append(r.Failures, Failure{
			EntityID: entityID,
			Kind:     errs.Kind(err),
			Error:    err.Error(),
		})
	}
}

func (r *Report) addNotStarted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.NotStarted += n
}

// Abort records a failure that prevented the stage from running.
func (r *Report) Abort(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err.Error()
}

// HasFailures reports whether any entity failed or the stage aborted.
func (r *Report) HasFailures() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Failed > 0 || r.Err != ""
}

func (r *Report) finish(start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DurationMS = time.Since(start).Milliseconds()
	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].EntityID < r.Failures[j].EntityID
	})
}
