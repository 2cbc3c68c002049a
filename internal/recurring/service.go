package recurring

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bizdesk/internal/models"
	"bizdesk/internal/pkg/utils"
	"bizdesk/internal/recurrence"
	"bizdesk/internal/repository"
)

// Resume policies for a schedule whose next run fell in the past while paused.
const (
	ResumeSkip        = "skip"
	ResumeCatchUpOnce = "catch_up_once"
)

type Options struct {
	// ClaimWait bounds how long a run-now that lost the claim waits for the
	// winner's result.
	ClaimWait    time.Duration
	// ExecTimeout bounds a manual execution, as the sweep bounds its own.
	ExecTimeout  time.Duration
	ResumePolicy string
	Location     *time.Location
	Now          func() time.Time
}

// Service is the entry point for the API and the sweep.
type Service struct {
	schedules *repository.ScheduleRepository
	engine    *Engine
	claims    *Coordinator
	opts      Options
	log       *zap.Logger
}

func NewService(schedules *repository.ScheduleRepository, engine *Engine, claims *Coordinator, opts Options, log *zap.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ResumePolicy == "" {
		opts.ResumePolicy = ResumeSkip
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{schedules: schedules, engine: engine, claims: claims, opts: opts, log: log}
}

// Today is the current civil date in the business timezone.
func (s *Service) Today() time.Time {
	return recurrence.Today(s.opts.Now(), s.opts.Location)
}

// Create validates the rule and stores an active schedule pointing at its
// first occurrence.
func (s *Service) Create(ctx context.Context, req *models.CreateScheduleRequest) (*models.RecurringSchedule, error) {
	switch {
	case strings.TrimSpace(req.BusinessID) == "":
		return nil, errors.Wrap(ErrInvalidInput, "business_id is required")
	case strings.TrimSpace(req.CustomerID) == "":
		return nil, errors.Wrap(ErrInvalidInput, "customer_id is required")
	case strings.TrimSpace(req.JobTitle) == "":
		return nil, errors.Wrap(ErrInvalidInput, "job_title is required")
	case req.InvoiceAmount.IsNegative() || req.InvoiceTax.IsNegative():
		return nil, errors.Wrap(ErrInvalidInput, "invoice amounts must not be negative")
	}

	start, err := utils.ParseDate(req.StartDate)
	if err != nil {
		return nil, &recurrence.RuleError{Field: "start_date", Reason: "must be a YYYY-MM-DD date"}
	}
	var end *time.Time
	if req.EndDate != nil && strings.TrimSpace(*req.EndDate) != "" {
		d, err := utils.ParseDate(*req.EndDate)
		if err != nil {
			return nil, &recurrence.RuleError{Field: "end_date", Reason: "must be a YYYY-MM-DD date"}
		}
		end = &d
	}

	interval := req.Interval
	if interval == 0 {
		interval = 1
	}

	sched := &models.RecurringSchedule{
		BusinessID:        req.BusinessID,
		CustomerID:        req.CustomerID,
		ServiceID:         req.ServiceID,
		StaffID:           req.StaffID,
		Frequency:         strings.ToLower(strings.TrimSpace(req.Frequency)),
		Interval:          interval,
		DayOfWeek:         req.DayOfWeek,
		DayOfMonth:        req.DayOfMonth,
		StartDate:         start,
		EndDate:           end,
		JobTitle:          req.JobTitle,
		JobDescription:    req.JobDescription,
		EstimatedDuration: req.EstimatedDuration,
		AutoCreateInvoice: req.AutoCreateInvoice,
		InvoiceAmount:     req.InvoiceAmount,
		InvoiceTax:        req.InvoiceTax,
		InvoiceNotes:      req.InvoiceNotes,
		Status:            models.ScheduleActive,
	}

	rule := sched.Rule()
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	first, ok := recurrence.First(rule)
	if !ok {
		return nil, &recurrence.RuleError{Field: "end_date", Reason: "leaves no occurrence"}
	}
	sched.NextRunDate = &first

	for i, it := range req.Items {
		amount := it.Amount
		if amount.IsZero() {
			amount = it.Quantity.Mul(it.UnitPrice)
		}
		sched.Items = append(sched.Items, models.RecurringScheduleItem{
			Position:    i,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      amount.Round(2),
		})
	}
	if sched.InvoiceAmount.IsZero() && len(sched.Items) > 0 {
		sched.InvoiceAmount = sched.InvoiceTemplate().Subtotal()
	}
	sched.InvoiceAmount = sched.InvoiceAmount.Round(2)
	sched.InvoiceTax = sched.InvoiceTax.Round(2)

	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, errors.Wrap(err, "store schedule")
	}

	s.log.Info("recurring schedule created",
		zap.String("schedule_id", sched.ID),
		zap.String("frequency", sched.Frequency),
		zap.String("next_run_date", utils.FormatDate(sched.NextRunDate)),
	)
	return sched, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	sched, err := s.schedules.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load schedule")
	}
	return sched, nil
}

func (s *Service) List(ctx context.Context, businessID, status string, limit, page int) ([]models.RecurringSchedule, int64, error) {
	return s.schedules.FindAll(ctx, businessID, status, limit, page)
}

// History lists the executed occurrences of a schedule, newest first.
func (s *Service) History(ctx context.Context, id string, limit int) ([]models.RecurringJobHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.schedules.ListHistory(ctx, id, limit)
}

// Due lists active schedules whose next run is today or earlier.
func (s *Service) Due(ctx context.Context, limit int) ([]models.RecurringSchedule, error) {
	return s.schedules.ListDue(ctx, s.Today(), limit)
}

// RunOccurrence claims and executes one occurrence. A denied claim or a lost
// race comes back as an error satisfying IsBenign.
func (s *Service) RunOccurrence(ctx context.Context, id string, occurrence time.Time) (*ExecutionResult, error) {
	occurrence = recurrence.Civil(occurrence)

	claim, ok, err := s.claims.TryClaim(ctx, id, occurrence)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrClaimDenied
	}
	defer func() {
		if err := s.claims.Release(ctx, claim); err != nil {
			s.log.Warn("release claim failed", zap.String("schedule_id", id), zap.Error(err))
		}
	}()

	return s.engine.Execute(ctx, id, occurrence)
}

// RunNow is the manual trigger. It runs the pinned occurrence, or the
// schedule's current next run. A caller that loses the claim to a concurrent
// run waits up to ClaimWait and returns the winner's result.
func (s *Service) RunNow(ctx context.Context, id string, pinned *time.Time) (*ExecutionResult, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var occurrence time.Time
	switch {
	case pinned != nil:
		occurrence = recurrence.Civil(*pinned)
		if h, err := s.schedules.FindHistory(ctx, id, occurrence); err == nil {
			return fromHistory(h), nil
		}
	case sched.NextRunDate != nil:
		occurrence = recurrence.Civil(*sched.NextRunDate)
	default:
		return nothingToDo(id, time.Time{}), nil
	}

	if !Runnable(sched.Status) && !admits(sched, occurrence) {
		return nothingToDo(id, occurrence), nil
	}

	res, err := s.runBounded(ctx, id, occurrence)
	if err == nil {
		return res, nil
	}
	if !IsBenign(err) {
		return nil, err
	}
	return s.awaitResult(ctx, id, occurrence)
}

// runBounded is RunOccurrence under ExecTimeout.
func (s *Service) runBounded(ctx context.Context, id string, occurrence time.Time) (*ExecutionResult, error) {
	if s.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ExecTimeout)
		defer cancel()
	}
	return s.RunOccurrence(ctx, id, occurrence)
}

// awaitResult polls for the history row of an occurrence someone else is
// executing. When the holder lets go without committing, the occurrence is
// claimed again here. It gives up once the schedule no longer admits the
// occurrence or ClaimWait elapses.
func (s *Service) awaitResult(ctx context.Context, id string, occurrence time.Time) (*ExecutionResult, error) {
	deadline := time.Now().Add(s.opts.ClaimWait)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		sched, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		h, err := s.schedules.FindHistory(ctx, id, occurrence)
		if err == nil {
			return fromHistory(h), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(err, "lookup history")
		}
		if !admits(sched, occurrence) || !time.Now().Before(deadline) {
			return nothingToDo(id, occurrence), nil
		}

		if sched.ClaimToken == nil {
			res, err := s.runBounded(ctx, id, occurrence)
			if err == nil {
				return res, nil
			}
			if !IsBenign(err) {
				return nil, err
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pause stops future claims. An execution already past its claim completes.
func (s *Service) Pause(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	return s.changeStatus(ctx, id, models.SchedulePaused, nil)
}

// Resume reactivates a paused schedule, applying the resume policy when the
// next run fell in the past.
func (s *Service) Resume(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	return s.changeStatus(ctx, id, models.ScheduleActive, s.resumePlan)
}

// Cancel ends a schedule for good and clears its next run.
func (s *Service) Cancel(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	return s.changeStatus(ctx, id, models.ScheduleCancelled, func(*models.RecurringSchedule) (string, map[string]interface{}) {
		return models.ScheduleCancelled, map[string]interface{}{"next_run_date": nil}
	})
}

// Skip moves the next run past its current occurrence without executing it.
// Skipping the last occurrence completes the schedule.
func (s *Service) Skip(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	sched, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.IsTerminal() || sched.NextRunDate == nil {
		return nil, errors.Wrapf(ErrInvalidTransition, "cannot skip a %s schedule", sched.Status)
	}

	current := recurrence.Civil(*sched.NextRunDate)
	next, ok := recurrence.Next(sched.Rule(), current)
	if !ok {
		return s.changeStatus(ctx, id, models.ScheduleCompleted, func(*models.RecurringSchedule) (string, map[string]interface{}) {
			return models.ScheduleCompleted, map[string]interface{}{"next_run_date": nil}
		})
	}

	moved, err := s.schedules.CompareAndSwapNextRun(ctx, id, &current, &next)
	if err != nil {
		return nil, errors.Wrap(err, "skip occurrence")
	}
	if !moved {
		return nil, ErrStaleState
	}

	s.log.Info("recurring occurrence skipped",
		zap.String("schedule_id", id),
		zap.String("skipped", current.Format(utils.DateLayout)),
		zap.String("next_run_date", next.Format(utils.DateLayout)),
	)
	return s.Get(ctx, id)
}

func (s *Service) resumePlan(sched *models.RecurringSchedule) (string, map[string]interface{}) {
	exhausted := map[string]interface{}{"next_run_date": nil}
	if sched.NextRunDate == nil {
		return models.ScheduleCompleted, exhausted
	}

	today := s.Today()
	next := recurrence.Civil(*sched.NextRunDate)
	if !next.Before(today) {
		return models.ScheduleActive, nil
	}

	var (
		moved time.Time
		ok    bool
	)
	switch s.opts.ResumePolicy {
	case ResumeCatchUpOnce:
		moved, ok = recurrence.LatestOnOrBefore(sched.Rule(), next, today)
	default:
		moved, ok = recurrence.Upcoming(sched.Rule(), next, today)
	}
	if !ok {
		return models.ScheduleCompleted, exhausted
	}
	return models.ScheduleActive, map[string]interface{}{"next_run_date": moved}
}

type statusPlan func(*models.RecurringSchedule) (string, map[string]interface{})

// changeStatus applies a guarded status write, re-reading once if a
// concurrent writer got there first.
func (s *Service) changeStatus(ctx context.Context, id, to string, plan statusPlan) (*models.RecurringSchedule, error) {
	for attempt := 0; attempt < 2; attempt++ {
		sched, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !CanTransition(sched.Status, to) {
			return nil, errors.Wrapf(ErrInvalidTransition, "%s -> %s", sched.Status, to)
		}

		target, extra := to, map[string]interface{}(nil)
		if plan != nil {
			target, extra = plan(sched)
		}

		ok, err := s.schedules.UpdateStatus(ctx, id, sched.Status, target, extra)
		if err != nil {
			return nil, errors.Wrap(err, "update schedule status")
		}
		if ok {
			s.log.Info("recurring schedule status changed",
				zap.String("schedule_id", id),
				zap.String("from", sched.Status),
				zap.String("to", target),
			)
			return s.Get(ctx, id)
		}
	}
	return nil, ErrStaleState
}
