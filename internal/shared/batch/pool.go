package batch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	jobTracer        = otel.Tracer("budgetwatch/batch")
	jobMeter         = otel.Meter("budgetwatch/batch")
	jobDuration, _   = jobMeter.Float64Histogram("batch.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _      = jobMeter.Int64Counter("batch.job.total", metric.WithDescription("Total jobs executed by stage and status"))
	jobNotStarted, _ = jobMeter.Int64Counter("batch.job.not_started", metric.WithDescription("Jobs never started because the run was cancelled"))
)

// DefaultJobTimeout bounds a single entity's work when none is configured.
const DefaultJobTimeout = 30 * time.Second

// Pool runs the jobs of one stage on a bounded set of workers. A failing
// job never stops the others.
type Pool struct {
	workerCount int
	jobDelay    time.Duration
	jobTimeout  time.Duration
}

// NewPool creates a new pool.
// workerCount: number of concurrent workers (goroutines)
// jobDelay: pause a worker takes after each job (for provider rate limits)
// jobTimeout: deadline for each job; zero means DefaultJobTimeout
func NewPool(workerCount int, jobDelay, jobTimeout time.Duration) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	return &Pool{
		workerCount: workerCount,
		jobDelay:    jobDelay,
		jobTimeout:  jobTimeout,
	}
}

// Run executes jobs and blocks until every started job has finished.
// Once ctx is cancelled no further job is started; jobs already running
// keep their own timeout and complete.
func (p *Pool) Run(ctx context.Context, stage string, jobs []Job) *Report {
	report := NewReport(stage, len(jobs))
	start := time.Now()

	if len(jobs) == 0 {
		report.finish(start)
		return report
	}

	workers := p.workerCount
	if workers > len(jobs) {
		workers = len(jobs)
	}

	log.Printf("Stage %s: running %d jobs on %d workers", stage, len(jobs), workers)

	queue := make(chan Job)
	var wg sync.WaitGroup

	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, stage, queue, report, &wg)
	}

	sent := 0
feed:
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case queue <- job:
			sent++
		}
	}
	close(queue)

	if sent < len(jobs) {
		p.dropRemaining(ctx, stage, report, len(jobs)-sent)
	}

	wg.Wait()
	report.finish(start)

	log.Printf("Stage %s: complete - Succeeded: %d, Failed: %d, Skipped: %d, Not started: %d",
		stage, report.Succeeded, report.Failed, report.Skipped, report.NotStarted)

	return report
}

func (p *Pool) dropRemaining(ctx context.Context, stage string, report *Report, n int) {
	report.addNotStarted(n)
	jobNotStarted.Add(context.WithoutCancel(ctx), int64(n), metric.WithAttributes(attribute.String("stage", stage)))
	log.Printf("Stage %s: run cancelled, %d jobs not started", stage, n)
}

// worker pulls jobs until the queue is closed.
func (p *Pool) worker(ctx context.Context, id int, stage string, queue <-chan Job, report *Report, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range queue {
		p.processJob(ctx, id, stage, job, report)

		if p.jobDelay > 0 {
			select {
			case <-time.After(p.jobDelay):
			case <-ctx.Done():
			}
		}
	}
}

// processJob executes a single job with error handling, logging, and telemetry.
func (p *Pool) processJob(parent context.Context, workerID int, stage string, job Job, report *Report) {
	// Detached from run cancellation: a started job always gets its full timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.stage", stage),
			attribute.String("job.description", job.Description()),
			attribute.String("job.entity_id", job.EntityID()),
		),
	)
	defer span.End()

	start := time.Now()
	err := job.Execute(ctx)
	report.Record(job.EntityID(), err)

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrSkipped):
		status = "skipped"
		log.Printf("Worker %d: Skipped %s: %v", workerID, job.Description(), err)
	default:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("Worker %d: Error processing %s: %v", workerID, job.Description(), err)
	}

	attrs := metric.WithAttributes(attribute.String("stage", stage), attribute.String("status", status))
	jobTotal.Add(ctx, 1, attrs)
	jobDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}
