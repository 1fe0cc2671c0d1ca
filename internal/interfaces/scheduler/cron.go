package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner is what the cron trigger drives.
type Runner interface {
	RunDaily(ctx context.Context, today time.Time) *RunReport
	Today() time.Time
	Location() *time.Location
}

// Cron triggers the daily run on a cron spec.
type Cron struct {
	runner       Runner
	cron         *cron.Cron
	spec         string
	runOnStartup bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCron creates a trigger for spec (standard five-field syntax,
// interpreted in the runner's location). An overlapping trigger is skipped.
func NewCron(runner Runner, spec string, runOnStartup bool) (*Cron, error) {
	c := cron.New(
		cron.WithLocation(runner.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Cron{
		runner:       runner,
		cron:         c,
		spec:         spec,
		runOnStartup: runOnStartup,
		ctx:          ctx,
		cancel:       cancel,
	}

	if _, err := c.AddFunc(spec, s.trigger); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start launches the cron loop.
func (s *Cron) Start() {
	log.Printf("Scheduler started with schedule %q (%s)", s.spec, s.runner.Location())

	if s.runOnStartup {
		log.Println("Scheduler: Running initial daily run on startup")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trigger()
		}()
	}

	s.cron.Start()
}

// Stop cancels the run in progress, so no new stage or entity starts, and
// waits for in-flight work or until ctx is done.
func (s *Cron) Stop(ctx context.Context) error {
	log.Println("Stopping scheduler...")

	s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Cron) trigger() {
	if s.ctx.Err() != nil {
		return
	}
	report := s.runner.RunDaily(s.ctx, s.runner.Today())
	if report.HasFailures() {
		log.Printf("Run %s: finished with failures", report.RunID)
	}
}
