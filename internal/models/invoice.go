package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses owned by the invoice domain.
const (
	InvoiceDraft = "draft"
)

// Invoice maps to the `invoices` table.
type Invoice struct {
	ID         string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	Number     string          `gorm:"column:number;size:40;uniqueIndex:ux_invoices_number" json:"number"`
	BusinessID string          `gorm:"column:business_id;size:36;index:idx_invoices_business" json:"business_id"`
	CustomerID string          `gorm:"column:customer_id;size:36;index:idx_invoices_customer" json:"customer_id"`
	JobID      *string         `gorm:"column:job_id;size:36;index:idx_invoices_job" json:"job_id"`
	ScheduleID *string         `gorm:"column:recurring_schedule_id;size:36" json:"recurring_schedule_id"`
	IssueDate  time.Time       `gorm:"column:issue_date;type:date" json:"issue_date"`
	Subtotal   decimal.Decimal `gorm:"column:subtotal;type:decimal(12,2)" json:"subtotal"`
	Tax        decimal.Decimal `gorm:"column:tax;type:decimal(12,2)" json:"tax"`
	Total      decimal.Decimal `gorm:"column:total;type:decimal(12,2)" json:"total"`
	Notes      string          `gorm:"column:notes;type:text" json:"notes"`
	Status     string          `gorm:"column:status;size:30" json:"status"`
	Items      []InvoiceItem   `gorm:"foreignKey:InvoiceID;references:ID" json:"items,omitempty"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID          string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	InvoiceID   string          `gorm:"column:invoice_id;size:36;index:idx_invoice_items_invoice" json:"invoice_id"`
	Position    int             `gorm:"column:position;default:0" json:"position"`
	Description string          `gorm:"column:description;size:500" json:"description"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:decimal(12,2)" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(12,2)" json:"unit_price"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(12,2)" json:"amount"`
}

func (InvoiceItem) TableName() string {
	return "invoice_items"
}

// InvoiceTemplate is the billing part of a recurring schedule.
type InvoiceTemplate struct {
	BusinessID string
	CustomerID string
	ScheduleID string
	Amount     decimal.Decimal
	Tax        decimal.Decimal
	Notes      string
	Items      []RecurringScheduleItem
}

// Subtotal is the sum of the item amounts, or Amount when there are no items.
func (t InvoiceTemplate) Subtotal() decimal.Decimal {
	if len(t.Items) == 0 {
		return t.Amount
	}
	sum := decimal.Zero
	for _, it := range t.Items {
		sum = sum.Add(it.Amount)
	}
	return sum
}
