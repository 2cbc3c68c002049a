package models

import "github.com/shopspring/decimal"

// APIResponse is the standard response envelope.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// --- Recurring schedule API payloads ---

// Dates are calendar dates formatted as YYYY-MM-DD.
type CreateScheduleRequest struct {
	BusinessID string  `json:"business_id"`
	CustomerID string  `json:"customer_id"`
	ServiceID  *string `json:"service_id,omitempty"`
	StaffID    *string `json:"staff_id,omitempty"`

	Frequency  string  `json:"frequency"`
	Interval   int     `json:"interval,omitempty"`
	DayOfWeek  *int    `json:"day_of_week,omitempty"`
	DayOfMonth *int    `json:"day_of_month,omitempty"`
	StartDate  string  `json:"start_date"`
	EndDate    *string `json:"end_date,omitempty"`

	JobTitle          string `json:"job_title"`
	JobDescription    string `json:"job_description,omitempty"`
	EstimatedDuration int    `json:"estimated_duration,omitempty"`

	AutoCreateInvoice bool                  `json:"auto_create_invoice"`
	InvoiceAmount     decimal.Decimal       `json:"invoice_amount"`
	InvoiceTax        decimal.Decimal       `json:"invoice_tax"`
	InvoiceNotes      string                `json:"invoice_notes,omitempty"`
	Items             []ScheduleItemRequest `json:"items,omitempty"`
}

type ScheduleItemRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// RunScheduleRequest optionally pins the occurrence a manual run targets, so
// a retried or doubled request cannot run the following occurrence.
type RunScheduleRequest struct {
	OccurrenceDate string `json:"occurrence_date,omitempty"`
}
