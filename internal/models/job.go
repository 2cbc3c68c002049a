package models

import "time"

// Job statuses owned by the job domain.
const (
	JobScheduled = "scheduled"
)

// Job is a unit of field work. The recurring engine creates jobs but does not
// manage them afterwards.
type Job struct {
	ID                string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	BusinessID        string    `gorm:"column:business_id;size:36;index:idx_jobs_business_date,priority:1" json:"business_id"`
	CustomerID        string    `gorm:"column:customer_id;size:36;index:idx_jobs_customer" json:"customer_id"`
	ServiceID         *string   `gorm:"column:service_id;size:36" json:"service_id"`
	StaffID           *string   `gorm:"column:staff_id;size:36" json:"staff_id"`
	ScheduleID        *string   `gorm:"column:recurring_schedule_id;size:36;index:idx_jobs_schedule" json:"recurring_schedule_id"`
	Title             string    `gorm:"column:title;size:255" json:"title"`
	Description       string    `gorm:"column:description;type:text" json:"description"`
	ScheduledDate     time.Time `gorm:"column:scheduled_date;type:date;index:idx_jobs_business_date,priority:2" json:"scheduled_date"`
	EstimatedDuration int       `gorm:"column:estimated_duration;default:0" json:"estimated_duration"`
	Status            string    `gorm:"column:status;size:30" json:"status"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobTemplate is the job part of a recurring schedule.
type JobTemplate struct {
	BusinessID        string
	CustomerID        string
	ScheduleID        string
	ServiceID         *string
	StaffID           *string
	Title             string
	Description       string
	EstimatedDuration int
}
