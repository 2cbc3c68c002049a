package api

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bizdesk/internal/repository"
)

// WorkHandler exposes read views of the jobs and invoices the recurring
// engine created.
type WorkHandler struct {
	jobs     *repository.JobRepository
	invoices *repository.InvoiceRepository
	logger   *zap.Logger
}

func NewWorkHandler(jobs *repository.JobRepository, invoices *repository.InvoiceRepository, logger *zap.Logger) *WorkHandler {
	return &WorkHandler{jobs: jobs, invoices: invoices, logger: logger}
}

// ListJobs handles GET /api/jobs?business_id=&schedule_id=.
func (h *WorkHandler) ListJobs(c echo.Context) error {
	limit, page := pageParams(c)
	jobs, total, err := h.jobs.FindAll(c.Request().Context(), c.QueryParam("business_id"), c.QueryParam("schedule_id"), limit, page)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve jobs")
	}
	return successResponse(c, "Successful", paginatedResponse(jobs, total, page, limit))
}

// GetJob handles GET /api/jobs/:id. The job's invoice, if any, is included.
func (h *WorkHandler) GetJob(c echo.Context) error {
	job, err := h.jobs.FindByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorResponse(c, http.StatusNotFound, "Job not found")
	}
	if err != nil {
		h.logger.Error("Failed to load job", zap.String("id", c.Param("id")), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve job")
	}

	// jobs from schedules without billing have no invoice
	invoice, err := h.invoices.FindByJobID(c.Request().Context(), job.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.Error("Failed to load job invoice", zap.String("job_id", job.ID), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve job")
	}
	return successResponse(c, "Successful", map[string]interface{}{
		"job":     job,
		"invoice": invoice,
	})
}

// ListInvoices handles GET /api/invoices?business_id=&q=.
func (h *WorkHandler) ListInvoices(c echo.Context) error {
	limit, page := pageParams(c)
	invoices, total, err := h.invoices.FindAll(c.Request().Context(), c.QueryParam("business_id"), limit, page, c.QueryParam("q"))
	if err != nil {
		h.logger.Error("Failed to list invoices", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve invoices")
	}
	return successResponse(c, "Successful", paginatedResponse(invoices, total, page, limit))
}

// GetInvoice handles GET /api/invoices/:id.
func (h *WorkHandler) GetInvoice(c echo.Context) error {
	invoice, err := h.invoices.FindByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorResponse(c, http.StatusNotFound, "Invoice not found")
	}
	if err != nil {
		h.logger.Error("Failed to load invoice", zap.String("id", c.Param("id")), zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve invoice")
	}
	return successResponse(c, "Successful", invoice)
}
