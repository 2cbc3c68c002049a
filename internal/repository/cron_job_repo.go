package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bizdesk/internal/models"
)

// CronJobRepository handles queue-backed cron jobs.
type CronJobRepository struct {
	db *gorm.DB
}

func NewCronJobRepository(db *gorm.DB) *CronJobRepository {
	return &CronJobRepository{db: db}
}

// Enqueue stores a pending task on tx. A second task with the same kind and
// externalRef is ignored, so replays never queue duplicate deliveries.
func (r *CronJobRepository) Enqueue(ctx context.Context, tx *gorm.DB, kind, externalRef string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	job := &models.CronJob{
		Kind:          kind,
		Status:        models.CronJobPending,
		ExternalRef:   externalRef,
		Payload:       string(raw),
		NextAttemptAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}

// ListReady returns pending tasks of a kind whose next attempt is due.
func (r *CronJobRepository) ListReady(ctx context.Context, kind string, now time.Time, limit int) ([]models.CronJob, error) {
	var jobs []models.CronJob
	q := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND next_attempt_at <= ?", kind, models.CronJobPending, now).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// MarkDone completes a pending task.
func (r *CronJobRepository) MarkDone(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.CronJob{}).
		Where("id = ? AND status = ?", id, models.CronJobPending).
		Updates(map[string]interface{}{
			"status":     models.CronJobDone,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
		}).Error
}

// MarkFailed records a failed attempt. The task is retried at retryAt until
// it has used maxAttempts, then parked as failed.
func (r *CronJobRepository) MarkFailed(ctx context.Context, job *models.CronJob, errMsg string, retryAt time.Time, maxAttempts int) error {
	updates := map[string]interface{}{
		"attempts":        gorm.Expr("attempts + 1"),
		"last_error":      errMsg,
		"next_attempt_at": retryAt,
	}
	if job.Attempts+1 >= maxAttempts {
		updates["status"] = models.CronJobFailed
	}
	return r.db.WithContext(ctx).Model(&models.CronJob{}).
		Where("id = ? AND status = ?", job.ID, models.CronJobPending).
		Updates(updates).Error
}

// CountByStatus counts tasks of a kind in one status.
func (r *CronJobRepository) CountByStatus(ctx context.Context, kind, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CronJob{}).
		Where("kind = ? AND status = ?", kind, status).
		Count(&count).Error
	return count, err
}
