package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"bizdesk/internal/models"
)

// ErrDuplicateOccurrence is returned by InsertHistory when the occurrence was
// already recorded for the schedule.
var ErrDuplicateOccurrence = errors.New("occurrence already recorded")

// ScheduleRepository handles recurring schedules, their items and history.
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ScheduleRepository) WithTx(tx *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: tx}
}

// Transaction runs fn in a database transaction.
func (r *ScheduleRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// Create stores a schedule and its invoice template items in one transaction.
func (r *ScheduleRepository) Create(ctx context.Context, s *models.RecurringSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := s.Items
		if err := tx.Omit("Items").Create(s).Error; err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].ScheduleID = s.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("create schedule items: %w", err)
		}
		s.Items = items
		return nil
	})
}

// FindByID returns a schedule with its items ordered by position.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	var s models.RecurringSchedule
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindAll returns schedules of a business with pagination and an optional status filter.
func (r *ScheduleRepository) FindAll(ctx context.Context, businessID, status string, limit, page int) ([]models.RecurringSchedule, int64, error) {
	var schedules []models.RecurringSchedule
	var total int64

	db := r.db.WithContext(ctx).Model(&models.RecurringSchedule{})
	if businessID != "" {
		db = db.Where("business_id = ?", businessID)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	if err := db.Limit(limit).Offset(offset).Order("created_at DESC").Find(&schedules).Error; err != nil {
		return nil, 0, err
	}
	return schedules, total, nil
}

// ListDue returns active schedules whose next run date is on or before asOf,
// oldest first.
func (r *ScheduleRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]models.RecurringSchedule, error) {
	var schedules []models.RecurringSchedule
	q := r.db.WithContext(ctx).
		Where("status = ? AND next_run_date IS NOT NULL AND next_run_date <= ?", models.ScheduleActive, asOf).
		Order("next_run_date ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&schedules).Error
	return schedules, err
}

// CompareAndSwapNextRun moves next_run_date from expected to next. It reports
// false when the row no longer holds expected.
func (r *ScheduleRepository) CompareAndSwapNextRun(ctx context.Context, id string, expected, next *time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.RecurringSchedule{}).Where("id = ?", id)
	if expected == nil {
		q = q.Where("next_run_date IS NULL")
	} else {
		q = q.Where("next_run_date = ?", *expected)
	}
	res := q.Updates(map[string]interface{}{
		"next_run_date": next,
		"version":       gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateStatus moves a schedule from one status to another, applying extra
// column updates in the same statement. It reports false when the row is no
// longer in `from`.
func (r *ScheduleRepository) UpdateStatus(ctx context.Context, id, from, to string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":  to,
		"version": gorm.Expr("version + 1"),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.RecurringSchedule{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AcquireClaim writes the in-flight marker for one occurrence. It succeeds only
// while the schedule is active, still points at the occurrence and holds no
// live claim.
func (r *ScheduleRepository) AcquireClaim(ctx context.Context, id string, occurrence time.Time, token string, now, expires time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.RecurringSchedule{}).
		Where("id = ? AND status = ? AND next_run_date = ?", id, models.ScheduleActive, occurrence).
		Where("claim_token IS NULL OR claim_expires_at < ?", now).
		Updates(map[string]interface{}{
			"claim_token":      token,
			"claim_for":        occurrence,
			"claim_expires_at": expires,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseClaim clears the marker if it still belongs to token.
func (r *ScheduleRepository) ReleaseClaim(ctx context.Context, id, token string) error {
	return r.db.WithContext(ctx).Model(&models.RecurringSchedule{}).
		Where("id = ? AND claim_token = ?", id, token).
		Updates(map[string]interface{}{
			"claim_token":      nil,
			"claim_for":        nil,
			"claim_expires_at": nil,
		}).Error
}

// AdvanceCursor applies the post-execution update guarded by the version read
// at the start of the execution.
func (r *ScheduleRepository) AdvanceCursor(ctx context.Context, id string, version int, updates map[string]interface{}) (bool, error) {
	all := map[string]interface{}{
		"version":            gorm.Expr("version + 1"),
		"total_jobs_created": gorm.Expr("total_jobs_created + 1"),
	}
	for k, v := range updates {
		all[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.RecurringSchedule{}).
		Where("id = ? AND version = ?", id, version).
		Updates(all)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// InsertHistory appends one history row. A second row for the same occurrence
// yields ErrDuplicateOccurrence.
func (r *ScheduleRepository) InsertHistory(ctx context.Context, h *models.RecurringJobHistory) error {
	if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateOccurrence
		}
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// FindHistory returns the history row for one occurrence, or gorm.ErrRecordNotFound.
func (r *ScheduleRepository) FindHistory(ctx context.Context, scheduleID string, scheduledFor time.Time) (*models.RecurringJobHistory, error) {
	var h models.RecurringJobHistory
	err := r.db.WithContext(ctx).
		Where("schedule_id = ? AND scheduled_for = ?", scheduleID, scheduledFor).
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHistory returns the most recent history rows of a schedule.
func (r *ScheduleRepository) ListHistory(ctx context.Context, scheduleID string, limit int) ([]models.RecurringJobHistory, error) {
	var rows []models.RecurringJobHistory
	q := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Order("scheduled_for DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// CountHistory counts history rows of a schedule.
func (r *ScheduleRepository) CountHistory(ctx context.Context, scheduleID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RecurringJobHistory{}).
		Where("schedule_id = ?", scheduleID).
		Count(&count).Error
	return count, err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}
