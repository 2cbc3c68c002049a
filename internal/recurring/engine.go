// Package recurring runs recurring schedules: it claims due occurrences,
// materializes them into jobs and invoices exactly once, and drives the
// schedule state machine.
package recurring

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bizdesk/internal/models"
	"bizdesk/internal/notify"
	"bizdesk/internal/pkg/utils"
	"bizdesk/internal/recurrence"
	"bizdesk/internal/repository"
)

// JobCreator is the job domain as seen by the engine. Writes go through tx.
type JobCreator interface {
	CreateJob(ctx context.Context, tx *gorm.DB, tpl models.JobTemplate, occurrence time.Time) (string, error)
}

// InvoiceCreator is the invoice domain as seen by the engine. Writes go through tx.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, tx *gorm.DB, tpl models.InvoiceTemplate, jobID string, issued time.Time) (string, error)
}

// Outbox queues the job-created event in the execution transaction, so it
// is delivered if and only if the occurrence commits.
type Outbox interface {
	Enqueue(ctx context.Context, tx *gorm.DB, kind, externalRef string, payload interface{}) error
}

// Outcome classifies an execution attempt.
type Outcome string

const (
	OutcomeExecuted        Outcome = "executed"
	OutcomeAlreadyExecuted Outcome = "already_executed"
	OutcomeNothingToDo     Outcome = "nothing_to_do"
)

// ExecutionResult is what a run returns. For already_executed the job and
// invoice ids are those of the first, committed execution.
type ExecutionResult struct {
	ScheduleID  string     `json:"schedule_id"`
	Occurrence  time.Time  `json:"occurrence_date"`
	Outcome     Outcome    `json:"outcome"`
	JobID       string     `json:"job_id,omitempty"`
	InvoiceID   *string    `json:"invoice_id,omitempty"`
	NextRunDate *time.Time `json:"next_run_date,omitempty"`
	Status      string     `json:"status,omitempty"`
}

func nothingToDo(scheduleID string, occurrence time.Time) *ExecutionResult {
	return &ExecutionResult{ScheduleID: scheduleID, Occurrence: occurrence, Outcome: OutcomeNothingToDo}
}

func fromHistory(h *models.RecurringJobHistory) *ExecutionResult {
	return &ExecutionResult{
		ScheduleID: h.ScheduleID,
		Occurrence: recurrence.Civil(h.ScheduledFor),
		Outcome:    OutcomeAlreadyExecuted,
		JobID:      h.JobID,
		InvoiceID:  h.InvoiceID,
	}
}

// errDuplicate aborts the transaction when the history insert hits the
// occurrence key; the caller then reports the committed row.
var errDuplicate = errors.New("duplicate occurrence")

// Engine materializes one occurrence of a schedule.
type Engine struct {
	schedules *repository.ScheduleRepository
	jobs      JobCreator
	invoices  InvoiceCreator
	outbox    Outbox
	log       *zap.Logger
}

func NewEngine(schedules *repository.ScheduleRepository, jobs JobCreator, invoices InvoiceCreator, outbox Outbox, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{schedules: schedules, jobs: jobs, invoices: invoices, outbox: outbox, log: log}
}

// Execute creates the job (and invoice) for occurrence, records history and
// advances the schedule, all in one transaction. The caller should hold a
// claim for the occurrence. Executing an occurrence twice is a no-op that
// returns the first result.
func (e *Engine) Execute(ctx context.Context, scheduleID string, occurrence time.Time) (*ExecutionResult, error) {
	occurrence = recurrence.Civil(occurrence)

	if h, err := e.schedules.FindHistory(ctx, scheduleID, occurrence); err == nil {
		return fromHistory(h), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(err, "lookup history")
	}

	var (
		res *ExecutionResult
		err error
	)
	// A concurrent pause or cancel bumps the version between our read and the
	// cursor write. One retry re-reads the new status, which still admits
	// the claimed occurrence.
	for attempt := 0; attempt < 2; attempt++ {
		res, err = e.executeOnce(ctx, scheduleID, occurrence)
		if !errors.Is(err, ErrStaleState) {
			break
		}
	}

	switch {
	case errors.Is(err, ErrStaleState):
		// Losing to a concurrent execution of the same occurrence is not a
		// failure: report the winner's row.
		if h, ferr := e.schedules.FindHistory(ctx, scheduleID, occurrence); ferr == nil {
			return fromHistory(h), nil
		}
		return nil, err
	case errors.Is(err, errDuplicate):
		h, ferr := e.schedules.FindHistory(ctx, scheduleID, occurrence)
		if ferr != nil {
			return nil, errors.Wrap(ferr, "load committed history")
		}
		return fromHistory(h), nil
	case err != nil:
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			e.log.Error("recurring execution failed",
				zap.String("schedule_id", scheduleID),
				zap.String("occurrence", occurrence.Format(utils.DateLayout)),
				zap.String("step", execErr.Step),
				zap.Error(execErr.Err),
			)
		}
		return nil, err
	}

	e.log.Info("recurring occurrence executed",
		zap.String("schedule_id", scheduleID),
		zap.String("occurrence", occurrence.Format(utils.DateLayout)),
		zap.String("job_id", res.JobID),
		zap.String("next_run_date", utils.FormatDate(res.NextRunDate)),
		zap.String("status", res.Status),
	)
	return res, nil
}

func (e *Engine) executeOnce(ctx context.Context, scheduleID string, occurrence time.Time) (*ExecutionResult, error) {
	var res *ExecutionResult

	err := e.schedules.Transaction(ctx, func(tx *gorm.DB) error {
		repo := e.schedules.WithTx(tx)

		s, err := repo.FindByID(ctx, scheduleID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "load schedule")
		}
		if !admits(s, occurrence) {
			return ErrStaleState
		}

		fail := func(step string, err error) error {
			return &ExecutionError{ScheduleID: scheduleID, Occurrence: occurrence, Step: step, Err: err}
		}

		jobID, err := e.jobs.CreateJob(ctx, tx, s.JobTemplate(), occurrence)
		if err != nil {
			return fail("create job", err)
		}

		var invoiceID *string
		if s.AutoCreateInvoice {
			id, err := e.invoices.CreateInvoice(ctx, tx, s.InvoiceTemplate(), jobID, occurrence)
			if err != nil {
				return fail("create invoice", err)
			}
			invoiceID = &id
		}

		err = repo.InsertHistory(ctx, &models.RecurringJobHistory{
			ScheduleID:   scheduleID,
			ScheduledFor: occurrence,
			JobID:        jobID,
			InvoiceID:    invoiceID,
		})
		if errors.Is(err, repository.ErrDuplicateOccurrence) {
			return errDuplicate
		}
		if err != nil {
			return fail("record history", err)
		}

		status := s.Status
		updates := map[string]interface{}{
			"last_run_date":    occurrence,
			"claim_token":      nil,
			"claim_for":        nil,
			"claim_expires_at": nil,
		}
		var nextRun *time.Time
		if status != models.ScheduleCancelled {
			if next, ok := recurrence.Next(s.Rule(), occurrence); ok {
				nextRun = &next
				updates["next_run_date"] = next
			} else {
				status = models.ScheduleCompleted
				updates["next_run_date"] = nil
				updates["status"] = status
			}
		}

		if e.outbox != nil {
			ev := notify.JobCreatedEvent{
				Event:        notify.EventJobCreated,
				BusinessID:   s.BusinessID,
				CustomerID:   s.CustomerID,
				ScheduleID:   scheduleID,
				JobID:        jobID,
				InvoiceID:    invoiceID,
				ScheduledFor: occurrence.Format(utils.DateLayout),
				CreatedAt:    time.Now().UTC(),
			}
			ref := scheduleID + ":" + ev.ScheduledFor
			if err := e.outbox.Enqueue(ctx, tx, models.CronJobKindJobCreated, ref, ev); err != nil {
				return fail("queue notification", err)
			}
		}

		ok, err := repo.AdvanceCursor(ctx, scheduleID, s.Version, updates)
		if err != nil {
			return fail("advance schedule", err)
		}
		if !ok {
			return ErrStaleState
		}

		res = &ExecutionResult{
			ScheduleID:  scheduleID,
			Occurrence:  occurrence,
			Outcome:     OutcomeExecuted,
			JobID:       jobID,
			InvoiceID:   invoiceID,
			NextRunDate: nextRun,
			Status:      status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// admits reports whether s may still execute occurrence. Active schedules run
// their current cursor. Paused and cancelled schedules only finish an
// execution whose claim was granted before the status change.
func admits(s *models.RecurringSchedule, occurrence time.Time) bool {
	cursorMatch := s.NextRunDate != nil && recurrence.Civil(*s.NextRunDate).Equal(occurrence)
	claimMatch := s.ClaimFor != nil && recurrence.Civil(*s.ClaimFor).Equal(occurrence)

	switch s.Status {
	case models.ScheduleActive:
		return cursorMatch
	case models.SchedulePaused:
		return cursorMatch && claimMatch
	case models.ScheduleCancelled:
		return claimMatch
	default:
		return false
	}
}
