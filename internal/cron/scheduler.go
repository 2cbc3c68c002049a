package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"bizdesk/internal/config"
	"bizdesk/internal/models"
	"bizdesk/internal/notify"
	"bizdesk/internal/pkg/utils"
	"bizdesk/internal/recurring"
	"bizdesk/internal/repository"
)

// Runner is the part of the recurring service the sweep drives.
type Runner interface {
	Today() time.Time
	Due(ctx context.Context, limit int) ([]models.RecurringSchedule, error)
	RunOccurrence(ctx context.Context, id string, occurrence time.Time) (*recurring.ExecutionResult, error)
}

// Scheduler owns the periodic jobs: the recurring sweep and the delivery of
// queued notifications.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	logger  *zap.Logger
	runner  Runner
	queue   *repository.CronJobRepository
	hook    notify.Hook
	limiter *rate.Limiter
	now     func() time.Time
}

// New creates a new cron scheduler.
func New(cfg *config.Config, runner Runner, queue *repository.CronJobRepository, hook notify.Hook, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}

	var limiter *rate.Limiter
	if cfg.Recurring.SweepRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Recurring.SweepRate), 1)
	}
	if hook == nil {
		hook = notify.Nop{}
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cfg:     cfg,
		logger:  logger,
		runner:  runner,
		queue:   queue,
		hook:    hook,
		limiter: limiter,
		now:     time.Now,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	if _, err := s.cron.AddFunc(s.cfg.Recurring.SweepSpec, func() {
		s.logger.Debug("Running: recurring sweep")
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule recurring sweep %q: %w", s.cfg.Recurring.SweepSpec, err)
	}

	if s.queue != nil {
		if _, err := s.cron.AddFunc(s.cfg.Notify.Spec, func() {
			s.logger.Debug("Running: notification delivery")
			s.DeliverNotifications(context.Background())
		}); err != nil {
			return fmt.Errorf("schedule notification delivery %q: %w", s.cfg.Notify.Spec, err)
		}
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started", zap.String("sweep", s.cfg.Recurring.SweepSpec))
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// SweepReport summarizes one sweep tick.
type SweepReport struct {
	Due      int
	Executed int
	Skipped  int
	Failed   int
}

func (r *SweepReport) add(o SweepReport) {
	r.Executed += o.Executed
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// ── Recurring sweep ──────────────────────────────────────────────────

// Sweep runs every active schedule that is due today or earlier. One
// schedule's failure never stops the others; it stays due for the next tick.
func (s *Scheduler) Sweep(ctx context.Context) SweepReport {
	defer s.recoverFromPanic("sweep")

	var report SweepReport
	rc := s.cfg.Recurring

	due, err := s.runner.Due(ctx, rc.SweepBatch)
	if err != nil {
		s.logger.Error("list due schedules failed", zap.Error(err))
		return report
	}
	report.Due = len(due)
	if len(due) == 0 {
		return report
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(rc.SweepConcurrency, 1))
	for i := range due {
		sched := due[i]
		g.Go(func() error {
			r := s.runSchedule(ctx, &sched)
			mu.Lock()
			report.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("recurring sweep finished",
		zap.Int("due", report.Due),
		zap.Int("executed", report.Executed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

// runSchedule executes the schedule's current occurrence and then keeps
// catching up, up to SweepMaxCatchUp more, while the next run is still due.
func (s *Scheduler) runSchedule(ctx context.Context, sched *models.RecurringSchedule) (r SweepReport) {
	defer s.recoverFromPanic("sweep:" + sched.ID)

	if sched.NextRunDate == nil {
		return r
	}
	rc := s.cfg.Recurring
	today := s.runner.Today()
	occurrence := *sched.NextRunDate

	for i := 0; i <= rc.SweepMaxCatchUp; i++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return r
			}
		}

		execCtx, cancel := context.WithTimeout(ctx, rc.ExecTimeout)
		res, err := s.runner.RunOccurrence(execCtx, sched.ID, occurrence)
		cancel()

		switch {
		case recurring.IsBenign(err):
			r.Skipped++
			return r
		case err != nil:
			r.Failed++
			s.logger.Error("recurring schedule failed, will retry next sweep",
				zap.String("schedule_id", sched.ID),
				zap.String("occurrence", occurrence.Format(utils.DateLayout)),
				zap.Error(err),
			)
			return r
		case res.Outcome != recurring.OutcomeExecuted:
			r.Skipped++
			return r
		}

		r.Executed++
		if res.Status != models.ScheduleActive || res.NextRunDate == nil || res.NextRunDate.After(today) {
			return r
		}
		occurrence = *res.NextRunDate
	}
	return r
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}

// cronLogger routes robfig/cron's own logging through zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
