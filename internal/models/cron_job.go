package models

import "time"

// Queue statuses.
const (
	CronJobPending = "pending"
	CronJobDone    = "done"
	CronJobFailed  = "failed"
)

// Queue kinds.
const (
	CronJobKindJobCreated = "notify_job_created"
)

// CronJob is a queued task written alongside the data it describes and
// delivered later by scheduler workers, with retries.
type CronJob struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Kind          string    `gorm:"column:kind;size:50;index:idx_cron_jobs_kind_status,priority:1;uniqueIndex:ux_cron_jobs_kind_ref,priority:1" json:"kind"`
	Status        string    `gorm:"column:status;size:30;index:idx_cron_jobs_kind_status,priority:2" json:"status"`
	ExternalRef   string    `gorm:"column:external_ref;size:255;uniqueIndex:ux_cron_jobs_kind_ref,priority:2" json:"external_ref"`
	Payload       string    `gorm:"column:payload;type:text" json:"payload"`
	Attempts      int       `gorm:"column:attempts;default:0" json:"attempts"`
	NextAttemptAt time.Time `gorm:"column:next_attempt_at;index:idx_cron_jobs_next_attempt" json:"next_attempt_at"`
	LastError     string    `gorm:"column:last_error;type:text" json:"last_error"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CronJob) TableName() string {
	return "cron_jobs"
}
