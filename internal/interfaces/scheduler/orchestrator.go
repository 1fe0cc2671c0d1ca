// Package scheduler runs the daily budget job: account refresh, tracker
// refresh, then notification dispatch.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"budgetwatch/internal/domain/tracker"
	"budgetwatch/internal/shared/batch"
)

var (
	runTracer   = otel.Tracer("budgetwatch/scheduler")
	runMeter    = otel.Meter("budgetwatch/scheduler")
	runTotal, _ = runMeter.Int64Counter("scheduler.run.total", metric.WithDescription("Daily runs by outcome"))
)

// ErrRunInProgress is reported when a run starts while another one is
// still going in the same process.
const ErrRunInProgress = "run in progress"

// AccountRefresher refreshes the balances of every institution link.
type AccountRefresher interface {
	RefreshAll(ctx context.Context) *batch.Report
}

// TrackerRefresher recomputes the month-to-date spend of every tracker.
type TrackerRefresher interface {
	RefreshAll(ctx context.Context, today time.Time) *batch.Report
}

// Dispatcher sends the reminders due today and advances their schedules.
type Dispatcher interface {
	DispatchDue(ctx context.Context, today time.Time) (*batch.Report, error)
}

// RunLock keeps runs for the same date from overlapping.
type RunLock interface {
	Acquire(ctx context.Context, date time.Time) (func(context.Context) error, error)
}

// ReportPublisher announces finished runs.
type ReportPublisher interface {
	PublishRunReport(ctx context.Context, runID string, date time.Time, hasFailures bool, report any) error
}

// RunReport is the outcome of one daily run. A stage that never started is nil.
type RunReport struct {
	RunID         string        `json:"runId"`
	Date          string        `json:"date"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt"`
	Accounts      *batch.Report `json:"accounts,omitempty"`
	Trackers      *batch.Report `json:"trackers,omitempty"`
	Notifications *batch.Report `json:"notifications,omitempty"`
	Cancelled     bool          `json:"cancelled"`
	// Err is set when the run could not start, e.g. the lock is held.
	Err string `json:"error,omitempty"`
}

// HasFailures reports whether the run, or any stage in it, failed.
func (r *RunReport) HasFailures() bool {
	if r.Err != "" {
		return true
	}
	for _, stage := range r.stages() {
		if stage != nil && stage.HasFailures() {
			return true
		}
	}
	return false
}

func (r *RunReport) stages() []*batch.Report {
	return []*batch.Report{r.Accounts, r.Trackers, r.Notifications}
}

// Options holds the optional collaborators of an Orchestrator.
type Options struct {
	Lock      RunLock
	Publisher ReportPublisher
	// Location fixes the calendar used to decide what "today" is.
	Location *time.Location
}

// Orchestrator runs the three stages of a daily run in order.
type Orchestrator struct {
	accounts   AccountRefresher
	trackers   TrackerRefresher
	dispatcher Dispatcher
	lock       RunLock
	publisher  ReportPublisher
	location   *time.Location

	// running is held for the whole of a run in this process.
	running sync.Mutex

	mu   sync.RWMutex
	last *RunReport
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(accounts AccountRefresher, trackers TrackerRefresher, dispatcher Dispatcher, opts Options) *Orchestrator {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Orchestrator{
		accounts:   accounts,
		trackers:   trackers,
		dispatcher: dispatcher,
		lock:       opts.Lock,
		publisher:  opts.Publisher,
		location:   loc,
	}
}

// Today returns the current calendar date in the orchestrator's location.
func (o *Orchestrator) Today() time.Time {
	return tracker.DateOf(time.Now().In(o.location))
}

// Location returns the calendar location runs are dated in.
func (o *Orchestrator) Location() *time.Location {
	return o.location
}

// Last returns the most recent run report, or nil before the first run.
func (o *Orchestrator) Last() *RunReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// RunDaily runs account refresh, tracker refresh and dispatch for today.
// Failures are collected in the report and never returned. Once ctx is
// cancelled no further stage starts. A call made while another run is in
// flight returns at once with Err set to ErrRunInProgress and is not
// stored as the last run.
func (o *Orchestrator) RunDaily(ctx context.Context, today time.Time) *RunReport {
	today = tracker.DateOf(today.In(o.location))
	report := &RunReport{
		RunID:     uuid.NewString(),
		Date:      today.Format("2006-01-02"),
		StartedAt: time.Now(),
	}

	ctx, span := runTracer.Start(ctx, "scheduler.run_daily",
		trace.WithAttributes(
			attribute.String("run.id", report.RunID),
			attribute.String("run.date", report.Date),
		),
	)
	defer span.End()

	if !o.running.TryLock() {
		report.Err = ErrRunInProgress
		report.FinishedAt = time.Now()
		span.SetStatus(codes.Error, ErrRunInProgress)
		log.Printf("Run %s: not started for %s: %s", report.RunID, report.Date, ErrRunInProgress)
		return report
	}
	defer o.running.Unlock()

	log.Printf("Run %s: starting daily run for %s", report.RunID, report.Date)

	if o.lock != nil {
		release, err := o.lock.Acquire(ctx, today)
		if err != nil {
			report.Err = fmt.Sprintf("run lock: %v", err)
			log.Printf("Run %s: not started: %v", report.RunID, err)
			return o.finish(ctx, span, report, today)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("Run %s: %v", report.RunID, err)
			}
		}()
	}

	o.runStages(ctx, report, today)
	return o.finish(ctx, span, report, today)
}

func (o *Orchestrator) runStages(ctx context.Context, report *RunReport, today time.Time) {
	if o.cancelled(ctx, report, "account refresh") {
		return
	}
	report.Accounts = o.accounts.RefreshAll(ctx)

	if o.cancelled(ctx, report, "tracker refresh") {
		return
	}
	report.Trackers = o.trackers.RefreshAll(ctx, today)

	if o.cancelled(ctx, report, "notification dispatch") {
		return
	}
	// A failed due query is already recorded on the stage report.
	report.Notifications, _ = o.dispatcher.DispatchDue(ctx, today)
}

func (o *Orchestrator) cancelled(ctx context.Context, report *RunReport, next string) bool {
	if ctx.Err() == nil {
		return false
	}
	report.Cancelled = true
	log.Printf("Run %s: cancelled before %s: %v", report.RunID, next, ctx.Err())
	return true
}

func (o *Orchestrator) finish(ctx context.Context, span trace.Span, report *RunReport, today time.Time) *RunReport {
	report.FinishedAt = time.Now()

	outcome := "success"
	switch {
	case report.Cancelled:
		outcome = "cancelled"
	case report.HasFailures():
		outcome = "failed"
	}
	if outcome != "success" {
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("run.outcome", outcome))
	runTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	log.Printf("Run %s: %s in %s", report.RunID, outcome, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()

	if o.publisher != nil {
		if err := o.publisher.PublishRunReport(context.WithoutCancel(ctx), report.RunID, today, report.HasFailures(), report); err != nil {
			log.Printf("Run %s: failed to publish report: %v", report.RunID, err)
		}
	}

	return report
}
