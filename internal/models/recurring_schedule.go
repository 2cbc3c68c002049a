package models

import (
	"time"

	"github.com/shopspring/decimal"

	"bizdesk/internal/recurrence"
)

// Schedule statuses.
const (
	ScheduleActive    = "active"
	SchedulePaused    = "paused"
	ScheduleCompleted = "completed"
	ScheduleCancelled = "cancelled"
)

// RecurringSchedule is one recurring intent: a rule plus the job and invoice
// templates materialized on every occurrence.
type RecurringSchedule struct {
	ID         string  `gorm:"column:id;primaryKey;size:36" json:"id"`
	BusinessID string  `gorm:"column:business_id;size:36;index:idx_recurring_schedules_business" json:"business_id"`
	CustomerID string  `gorm:"column:customer_id;size:36;index:idx_recurring_schedules_customer" json:"customer_id"`
	ServiceID  *string `gorm:"column:service_id;size:36" json:"service_id"`
	StaffID    *string `gorm:"column:staff_id;size:36" json:"staff_id"`

	Frequency  string `gorm:"column:frequency;size:20" json:"frequency"`
	Interval   int    `gorm:"column:interval_count;default:1" json:"interval"`
	DayOfWeek  *int   `gorm:"column:day_of_week" json:"day_of_week"`
	DayOfMonth *int   `gorm:"column:day_of_month" json:"day_of_month"`

	StartDate   time.Time  `gorm:"column:start_date;type:date" json:"start_date"`
	EndDate     *time.Time `gorm:"column:end_date;type:date" json:"end_date"`
	NextRunDate *time.Time `gorm:"column:next_run_date;type:date;index:idx_recurring_schedules_due,priority:2" json:"next_run_date"`
	LastRunDate *time.Time `gorm:"column:last_run_date;type:date" json:"last_run_date"`

	JobTitle          string `gorm:"column:job_title;size:255" json:"job_title"`
	JobDescription    string `gorm:"column:job_description;type:text" json:"job_description"`
	EstimatedDuration int    `gorm:"column:estimated_duration;default:0" json:"estimated_duration"`

	AutoCreateInvoice bool            `gorm:"column:auto_create_invoice;default:false" json:"auto_create_invoice"`
	InvoiceAmount     decimal.Decimal `gorm:"column:invoice_amount;type:decimal(12,2)" json:"invoice_amount"`
	InvoiceTax        decimal.Decimal `gorm:"column:invoice_tax;type:decimal(12,2)" json:"invoice_tax"`
	InvoiceNotes      string          `gorm:"column:invoice_notes;type:text" json:"invoice_notes"`

	Status           string `gorm:"column:status;size:20;index:idx_recurring_schedules_due,priority:1" json:"status"`
	TotalJobsCreated int    `gorm:"column:total_jobs_created;default:0" json:"total_jobs_created"`
	Version          int    `gorm:"column:version;default:0" json:"-"`

	// In-flight claim marker; see ScheduleRepository.AcquireClaim.
	ClaimToken     *string    `gorm:"column:claim_token;size:36" json:"-"`
	ClaimFor       *time.Time `gorm:"column:claim_for;type:date" json:"-"`
	ClaimExpiresAt *time.Time `gorm:"column:claim_expires_at" json:"-"`

	Items []RecurringScheduleItem `gorm:"foreignKey:ScheduleID;references:ID" json:"items,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (RecurringSchedule) TableName() string {
	return "recurring_schedules"
}

// Rule returns the schedule's recurrence rule.
func (s *RecurringSchedule) Rule() recurrence.Rule {
	return recurrence.Rule{
		Frequency:  recurrence.Frequency(s.Frequency),
		Interval:   s.Interval,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		StartDate:  s.StartDate,
		EndDate:    s.EndDate,
	}
}

// IsTerminal reports whether no transition can leave the current status.
func (s *RecurringSchedule) IsTerminal() bool {
	return s.Status == ScheduleCompleted || s.Status == ScheduleCancelled
}

// JobTemplate returns the job fields copied onto every occurrence.
func (s *RecurringSchedule) JobTemplate() JobTemplate {
	return JobTemplate{
		BusinessID:        s.BusinessID,
		CustomerID:        s.CustomerID,
		ScheduleID:        s.ID,
		ServiceID:         s.ServiceID,
		StaffID:           s.StaffID,
		Title:             s.JobTitle,
		Description:       s.JobDescription,
		EstimatedDuration: s.EstimatedDuration,
	}
}

// InvoiceTemplate returns the invoice fields copied onto every occurrence.
func (s *RecurringSchedule) InvoiceTemplate() InvoiceTemplate {
	return InvoiceTemplate{
		BusinessID: s.BusinessID,
		CustomerID: s.CustomerID,
		ScheduleID: s.ID,
		Amount:     s.InvoiceAmount,
		Tax:        s.InvoiceTax,
		Notes:      s.InvoiceNotes,
		Items:      s.Items,
	}
}

// RecurringScheduleItem is one invoice line of a schedule's invoice template.
type RecurringScheduleItem struct {
	ID          string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	ScheduleID  string          `gorm:"column:schedule_id;size:36;index:idx_recurring_schedule_items_schedule" json:"schedule_id"`
	Position    int             `gorm:"column:position;default:0" json:"position"`
	Description string          `gorm:"column:description;size:500" json:"description"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:decimal(12,2)" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2)" json:"unit_price"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(12,2)" json:"amount"`
}

func (RecurringScheduleItem) TableName() string {
	return "recurring_schedule_items"
}

// RecurringJobHistory records one materialized occurrence. The pair
// (schedule_id, scheduled_for) is unique and rows are never updated.
type RecurringJobHistory struct {
	ID           string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	ScheduleID   string    `gorm:"column:schedule_id;size:36;not null;uniqueIndex:ux_recurring_job_history_occurrence,priority:1" json:"schedule_id"`
	ScheduledFor time.Time `gorm:"column:scheduled_for;type:date;not null;uniqueIndex:ux_recurring_job_history_occurrence,priority:2" json:"scheduled_for"`
	JobID        string    `gorm:"column:job_id;size:36;not null" json:"job_id"`
	InvoiceID    *string   `gorm:"column:invoice_id;size:36" json:"invoice_id"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (RecurringJobHistory) TableName() string {
	return "recurring_job_history"
}
