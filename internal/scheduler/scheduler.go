package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/dag"
	"github.com/cyderes/dummy-etl/internal/logger"
	"github.com/cyderes/dummy-etl/internal/models"
	"github.com/cyderes/dummy-etl/internal/pipeline"
)

const loggerName = "dummy-etl:scheduler"

// RetryPolicy bounds how many times a failed run is attempted and how long to wait between
// attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// PolicyFromConfig converts a retries count into a policy: retries=1 means two attempts.
func PolicyFromConfig(cfg config.ScheduleConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.Retries + 1,
		Delay:       cfg.RetryDelay,
	}
}

// Runner is a run-once job such as *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// Scheduler triggers a Runner once per interval, anchored at a start date, retrying failed
// runs according to its RetryPolicy. Runs never overlap.
type Scheduler struct {
	runner    Runner
	interval  time.Duration
	startDate time.Time
	policy    RetryPolicy

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status models.RunStatus
}

// New creates a Scheduler for runner.
func New(runner Runner, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{
		runner:    runner,
		interval:  cfg.Interval,
		startDate: cfg.StartDate,
		policy:    PolicyFromConfig(cfg),
		now:       time.Now,
		sleep:     sleepContext,
		status:    models.RunStatus{Status: models.StatusNeverRun},
	}
}

// Start blocks until ctx is cancelled. When the start date has passed, a first run happens
// immediately; later runs happen on every interval boundary after the start date.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logger.FromContext(ctx).WithName(loggerName)

	if !s.now().Before(s.startDate) {
		s.RunOnce(ctx)
	}

	for {
		now := s.now()
		next := NextRun(s.startDate, s.interval, now)
		s.setNextRun(next)
		log.Debug("next run scheduled", "at", next.Format(time.RFC3339))

		if err := s.sleep(ctx, next.Sub(now)); err != nil {
			return err
		}
		s.RunOnce(ctx)
	}
}

// RunOnce runs the job, retrying per policy, and returns the final status.
func (s *Scheduler) RunOnce(ctx context.Context) models.RunStatus {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).WithName(loggerName).With("runId", runID)
	ctx = logger.WithContext(ctx, log)

	maxAttempts := max(s.policy.MaxAttempts, 1)
	var (
		report pipeline.Report
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		s.update(func(status *models.RunStatus) {
			status.RunID = runID
			status.Status = models.StatusRunning
			status.Attempts = attempt
			status.LastAttempt = s.now()
		})

		report, err = s.runner.Run(ctx)
		if err == nil {
			break
		}

		log.Warn("run attempt failed", "attempt", attempt, "maxAttempts", maxAttempts, "error", err)
		if attempt == maxAttempts {
			break
		}
		if sleepErr := s.sleep(ctx, s.policy.Delay); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	s.update(func(status *models.RunStatus) {
		status.RowsLoaded = map[string]int{
			models.PostsTable.Name: report.Rows.Posts,
			models.UsersTable.Name: report.Rows.Users,
		}
		if err != nil {
			status.Status = models.StatusFailure
			status.ErrorMessage = err.Error()
			status.FailedTask = failedTask(err)
			return
		}
		status.Status = models.StatusSuccess
		status.ErrorMessage = ""
		status.FailedTask = ""
		status.LastSuccessfulRun = s.now()
	})

	final := s.Status()
	if err != nil {
		log.Error("run failed", "attempts", final.Attempts, "error", err)
	} else {
		log.Info("run succeeded", "attempts", final.Attempts, "posts", report.Rows.Posts, "users", report.Rows.Users)
	}
	return final
}

// Status returns a copy of the latest run status.
func (s *Scheduler) Status() models.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	if s.status.RowsLoaded != nil {
		status.RowsLoaded = make(map[string]int, len(s.status.RowsLoaded))
		for table, rows := range s.status.RowsLoaded {
			status.RowsLoaded[table] = rows
		}
	}
	return status
}

func (s *Scheduler) setNextRun(next time.Time) {
	s.update(func(status *models.RunStatus) {
		status.NextRun = next
	})
}

func (s *Scheduler) update(fn func(status *models.RunStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// NextRun returns the first schedule slot strictly after now, or start if now is before it.
func NextRun(start time.Time, interval time.Duration, now time.Time) time.Time {
	if now.Before(start) {
		return start
	}
	elapsed := now.Sub(start)
	slots := elapsed/interval + 1
	return start.Add(slots * interval)
}

func failedTask(err error) string {
	var taskErr *dag.TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Task
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
