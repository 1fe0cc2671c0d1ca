package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/tracker"
	"budgetwatch/internal/domain/user"
	"budgetwatch/internal/shared/batch"
	"budgetwatch/internal/shared/errs"
	"budgetwatch/internal/shared/messages"
)

// StageDispatch names the notification stage in reports.
const StageDispatch = "notification_dispatch"

var (
	meter             = otel.Meter("budgetwatch/notification")
	notificationsSent metric.Int64Counter
)

func init() {
	var err error
	notificationsSent, err = meter.Int64Counter(
		"budgetwatch.notifications",
		metric.WithDescription("Budget reminders by delivery status"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		log.Printf("Failed to create notification counter: %v", err)
	}
}

// Scheduler sends the reminders of due trackers and advances their schedules.
type Scheduler struct {
	trackers     tracker.Repository
	users        user.Repository
	accounts     account.Repository
	history      Repository
	notifier     Notifier
	messages     *messages.Messages
	pool         *batch.Pool
	sendAttempts int
}

// NewScheduler creates a dispatch scheduler. sendAttempts below 1 is treated as 1.
// history may be nil, in which case deliveries are not recorded.
func NewScheduler(
	trackers tracker.Repository,
	users user.Repository,
	accounts account.Repository,
	history Repository,
	notifier Notifier,
	msgs *messages.Messages,
	pool *batch.Pool,
	sendAttempts int,
) *Scheduler {
	if sendAttempts < 1 {
		sendAttempts = 1
	}
	if msgs == nil {
		msgs = messages.Default()
	}
	return &Scheduler{
		trackers:     trackers,
		users:        users,
		accounts:     accounts,
		history:      history,
		notifier:     notifier,
		messages:     msgs,
		pool:         pool,
		sendAttempts: sendAttempts,
	}
}

// DispatchDue notifies every tracker due today. Each tracker is handled
// independently; only a failure to list the due trackers aborts the stage,
// in which case the error is returned alongside the aborted report.
func (s *Scheduler) DispatchDue(ctx context.Context, today time.Time) (*batch.Report, error) {
	due, err := s.trackers.ListDueOn(ctx, today)
	if err != nil {
		err = errs.Persistence("list due trackers", err)
		report := batch.NewReport(StageDispatch, 0)
		report.Abort(err)
		log.Printf("Notification dispatch: failed to list due trackers: %v", err)
		return report, err
	}

	log.Printf("Notification dispatch: %d trackers due on %s", len(due), today.Format("2006-01-02"))

	jobs := make([]batch.Job, 0, len(due))
	for _, t := range due {
		jobs = append(jobs, &dispatchJob{tracker: t, today: today, scheduler: s})
	}
	return s.pool.Run(ctx, StageDispatch, jobs), nil
}

// Dispatch handles one due tracker. The schedule is advanced first, and
// only the dispatch that moved it sends, so overlapping runs never deliver
// the same reminder twice. A claimed tracker stays advanced whatever the
// delivery outcome is.
func (s *Scheduler) Dispatch(ctx context.Context, t *tracker.BudgetTracker, today time.Time) error {
	claimed, err := s.advance(ctx, t, today)
	if err != nil {
		return err
	}
	if !claimed {
		return batch.ErrSkipped
	}

	message, attempts, sendErr := s.deliver(ctx, t)

	status := StatusSent
	switch {
	case errors.Is(sendErr, batch.ErrSkipped):
		status = StatusSkipped
	case sendErr != nil:
		status = StatusFailed
	}
	s.record(ctx, t, today, status, message, attempts, sendErr)

	if notificationsSent != nil {
		notificationsSent.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	return sendErr
}

// deliver resolves the owner and account, then sends the reminder.
// It returns batch.ErrSkipped for owners who opted out of SMS.
func (s *Scheduler) deliver(ctx context.Context, t *tracker.BudgetTracker) (string, int, error) {
	u, err := s.users.GetByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return "", 0, errs.NotFound("user", t.UserID, err)
		}
		return "", 0, errs.Persistence("get user", err)
	}

	acc, err := s.accounts.GetByID(ctx, t.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			return "", 0, errs.NotFound("account", t.AccountID, err)
		}
		return "", 0, errs.Persistence("get account", err)
	}

	message := s.messages.FormatBudgetReminder(acc.Name, t.AmountSpent, t.BudgetThreshold)

	if !u.CanReceiveSMS() {
		log.Printf("Tracker %s: user %d has notifications disabled", t.Key(), u.ID)
		return message, 0, batch.ErrSkipped
	}

	var sendErr error
	attempts := 0
	for attempts < s.sendAttempts {
		attempts++
		if sendErr = s.notifier.Send(ctx, u.PhoneNumber, message); sendErr == nil {
			log.Printf("Tracker %s: reminder sent to user %d", t.Key(), u.ID)
			return message, attempts, nil
		}
		log.Printf("Tracker %s: send attempt %d/%d failed: %v", t.Key(), attempts, s.sendAttempts, sendErr)
		if ctx.Err() != nil {
			break
		}
	}
	return message, attempts, errs.Provider("send sms", sendErr)
}

// advance claims the tracker for today. It reports false when another
// dispatch already moved the schedule past today.
func (s *Scheduler) advance(ctx context.Context, t *tracker.BudgetTracker, today time.Time) (bool, error) {
	moved, err := s.trackers.AdvanceSchedule(ctx, t.AccountID, t.UserID, today)
	if err != nil {
		if errors.Is(err, tracker.ErrTrackerNotFound) {
			return false, errs.NotFound("tracker", t.Key(), err)
		}
		return false, errs.Persistence("advance schedule", err)
	}
	if !moved {
		log.Printf("Tracker %s: schedule already advanced, not sending", t.Key())
		return false, nil
	}
	next := t.NextNotificationDate.In(today.Location()).AddDate(0, 0, t.NotificationFrequencyDays)
	log.Printf("Tracker %s: next notification on %s", t.Key(), next.Format("2006-01-02"))
	t.NextNotificationDate = next
	return true, nil
}

func (s *Scheduler) record(ctx context.Context, t *tracker.BudgetTracker, today time.Time, status, message string, attempts int, sendErr error) {
	if s.history == nil {
		return
	}
	params := CreateNotificationParams{
		AccountID:    t.AccountID,
		UserID:       t.UserID,
		ScheduledFor: tracker.DateOf(today),
		Status:       status,
		Message:      message,
		Attempts:     attempts,
	}
	if sendErr != nil && status == StatusFailed {
		params.Error = sendErr.Error()
	}
	if _, err := s.history.CreateNotification(ctx, params); err != nil {
		log.Printf("Tracker %s: failed to record notification: %v", t.Key(), err)
	}
}

// dispatchJob implements batch.Job for one due tracker
type dispatchJob struct {
	tracker   *tracker.BudgetTracker
	today     time.Time
	scheduler *Scheduler
}

func (j *dispatchJob) Execute(ctx context.Context) error {
	return j.scheduler.Dispatch(ctx, j.tracker, j.today)
}

func (j *dispatchJob) EntityID() string {
	return j.tracker.Key()
}

func (j *dispatchJob) Description() string {
	return fmt.Sprintf("Budget reminder for tracker %s", j.tracker.Key())
}
