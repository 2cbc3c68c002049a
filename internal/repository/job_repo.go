package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bizdesk/internal/models"
)

// JobRepository handles job database operations.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob materializes a job from a recurring template on tx and returns its id.
func (r *JobRepository) CreateJob(ctx context.Context, tx *gorm.DB, tpl models.JobTemplate, occurrence time.Time) (string, error) {
	scheduleID := tpl.ScheduleID
	job := &models.Job{
		BusinessID:        tpl.BusinessID,
		CustomerID:        tpl.CustomerID,
		ServiceID:         tpl.ServiceID,
		StaffID:           tpl.StaffID,
		ScheduleID:        &scheduleID,
		Title:             tpl.Title,
		Description:       tpl.Description,
		ScheduledDate:     occurrence,
		EstimatedDuration: tpl.EstimatedDuration,
		Status:            models.JobScheduled,
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return job.ID, nil
}

// FindByID returns a job by id.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// FindAll returns jobs of a business with pagination, optionally narrowed to one schedule.
func (r *JobRepository) FindAll(ctx context.Context, businessID, scheduleID string, limit, page int) ([]models.Job, int64, error) {
	var jobs []models.Job
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Job{})
	if businessID != "" {
		db = db.Where("business_id = ?", businessID)
	}
	if scheduleID != "" {
		db = db.Where("recurring_schedule_id = ?", scheduleID)
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

	if err := db.Limit(limit).Offset(offset).Order("scheduled_date DESC").Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}
