package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bizdesk/internal/models"
	"bizdesk/internal/pkg/utils"
)

// InvoiceRepository handles invoice database operations.
type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// FindAll returns invoices with pagination and search.
func (r *InvoiceRepository) FindAll(ctx context.Context, businessID string, limit, page int, query string) ([]models.Invoice, int64, error) {
	var invoices []models.Invoice
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Invoice{})
	if businessID != "" {
		db = db.Where("business_id = ?", businessID)
	}

	if query != "" {
		search := "%" + query + "%"
		db = db.Where("number LIKE ? OR customer_id LIKE ? OR notes LIKE ?", search, search, search)
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

	if err := db.Limit(limit).Offset(offset).Order("issue_date DESC").Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// FindByID returns an invoice with its lines.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", invoiceID).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindByJobID returns the invoice attached to a job.
func (r *InvoiceRepository) FindByJobID(ctx context.Context, jobID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// CreateInvoice bills one occurrence from a recurring template on tx and
// returns the new invoice id. Subtotal is the sum of the template lines, or the
// template amount when there are none; tax is added on top.
func (r *InvoiceRepository) CreateInvoice(ctx context.Context, tx *gorm.DB, tpl models.InvoiceTemplate, jobID string, issued time.Time) (string, error) {
	scheduleID := tpl.ScheduleID
	subtotal := tpl.Subtotal()

	invoice := &models.Invoice{
		Number:     utils.GenerateInvoiceNumber(issued),
		BusinessID: tpl.BusinessID,
		CustomerID: tpl.CustomerID,
		JobID:      &jobID,
		ScheduleID: &scheduleID,
		IssueDate:  issued,
		Subtotal:   subtotal,
		Tax:        tpl.Tax,
		Total:      subtotal.Add(tpl.Tax),
		Notes:      tpl.Notes,
		Status:     models.InvoiceDraft,
	}

	db := tx.WithContext(ctx)
	if err := db.Create(invoice).Error; err != nil {
		return "", fmt.Errorf("create invoice: %w", err)
	}

	if len(tpl.Items) == 0 {
		return invoice.ID, nil
	}
	items := make([]models.InvoiceItem, 0, len(tpl.Items))
	for _, it := range tpl.Items {
		items = append(items, models.InvoiceItem{
			InvoiceID:   invoice.ID,
			Position:    it.Position,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      it.Amount,
		})
	}
	if err := db.Create(&items).Error; err != nil {
		return "", fmt.Errorf("create invoice items: %w", err)
	}
	return invoice.ID, nil
}
