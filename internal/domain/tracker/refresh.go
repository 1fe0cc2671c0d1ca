package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"budgetwatch/internal/shared/batch"
	"budgetwatch/internal/shared/errs"
)

// StageRefresh names the tracker refresh stage in reports.
const StageRefresh = "tracker_refresh"

// RefreshAll recomputes the month-to-date spend of every tracker.
func (s *Service) RefreshAll(ctx context.Context, today time.Time) *batch.Report {
	trackers, err := s.repo.ListAll(ctx)
	if err != nil {
		report := batch.NewReport(StageRefresh, 0)
		report.Abort(errs.Persistence("list trackers", err))
		log.Printf("Tracker refresh: failed to list trackers: %v", err)
		return report
	}
	return s.Refresh(ctx, trackers, today)
}

// Refresh recomputes the given trackers independently. A tracker that
// fails is recorded in the report and the rest carry on.
func (s *Service) Refresh(ctx context.Context, trackers []*BudgetTracker, today time.Time) *batch.Report {
	jobs := make([]batch.Job, 0, len(trackers))
	for _, t := range trackers {
		jobs = append(jobs, &refreshJob{tracker: t, today: today, service: s})
	}
	return s.pool.Run(ctx, StageRefresh, jobs)
}

// RefreshTracker recomputes and persists one tracker's spend.
func (s *Service) RefreshTracker(ctx context.Context, t *BudgetTracker, today time.Time) error {
	acc, link, err := s.resolve(ctx, t.AccountID)
	if err != nil {
		return err
	}

	spent, err := s.spend.MonthToDateSpend(ctx, acc, today, link.AccessToken)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateAmountSpent(ctx, t.AccountID, t.UserID, spent); err != nil {
		if errors.Is(err, ErrTrackerNotFound) {
			return errs.NotFound("tracker", t.Key(), err)
		}
		return errs.Persistence("update amount spent", err)
	}

	log.Printf("Tracker %s: spent %s of %s", t.Key(), spent.StringFixed(2), t.BudgetThreshold.StringFixed(2))
	t.AmountSpent = spent
	return nil
}

// refreshJob implements batch.Job for one tracker
type refreshJob struct {
	tracker *BudgetTracker
	today   time.Time
	service *Service
}

func (j *refreshJob) Execute(ctx context.Context) error {
	return j.service.RefreshTracker(ctx, j.tracker, j.today)
}

func (j *refreshJob) EntityID() string {
	return j.tracker.Key()
}

func (j *refreshJob) Description() string {
	return fmt.Sprintf("Spend refresh for tracker %s", j.tracker.Key())
}
