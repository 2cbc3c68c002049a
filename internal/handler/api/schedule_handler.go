package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bizdesk/internal/models"
	"bizdesk/internal/pkg/utils"
	"bizdesk/internal/recurring"
)

// ScheduleService is what the schedule endpoints need from the recurring
// service.
type ScheduleService interface {
	Create(ctx context.Context, req *models.CreateScheduleRequest) (*models.RecurringSchedule, error)
	Get(ctx context.Context, id string) (*models.RecurringSchedule, error)
	List(ctx context.Context, businessID, status string, limit, page int) ([]models.RecurringSchedule, int64, error)
	History(ctx context.Context, id string, limit int) ([]models.RecurringJobHistory, error)
	RunNow(ctx context.Context, id string, pinned *time.Time) (*recurring.ExecutionResult, error)
	Pause(ctx context.Context, id string) (*models.RecurringSchedule, error)
	Resume(ctx context.Context, id string) (*models.RecurringSchedule, error)
	Cancel(ctx context.Context, id string) (*models.RecurringSchedule, error)
	Skip(ctx context.Context, id string) (*models.RecurringSchedule, error)
}

// ScheduleHandler serves /api/recurring-schedules.
type ScheduleHandler struct {
	svc    ScheduleService
	logger *zap.Logger
}

func NewScheduleHandler(svc ScheduleService, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{svc: svc, logger: logger}
}

// List handles GET /api/recurring-schedules.
func (h *ScheduleHandler) List(c echo.Context) error {
	limit, page := pageParams(c)
	schedules, total, err := h.svc.List(c.Request().Context(), c.QueryParam("business_id"), c.QueryParam("status"), limit, page)
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, "Successful", paginatedResponse(schedules, total, page, limit))
}

// Create handles POST /api/recurring-schedules.
func (h *ScheduleHandler) Create(c echo.Context) error {
	var req models.CreateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid request body")
	}
	s, err := h.svc.Create(c.Request().Context(), &req)
	if err != nil {
		return failure(c, h.logger, err)
	}
	return createdResponse(c, "Schedule created", s)
}

// Get handles GET /api/recurring-schedules/:id.
func (h *ScheduleHandler) Get(c echo.Context) error {
	s, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, "Successful", s)
}

// History handles GET /api/recurring-schedules/:id/history.
func (h *ScheduleHandler) History(c echo.Context) error {
	limit, _ := pageParams(c)
	rows, err := h.svc.History(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, "Successful", rows)
}

// Run handles POST /api/recurring-schedules/:id/run. The body is optional;
// occurrence_date pins the run to one occurrence.
func (h *ScheduleHandler) Run(c echo.Context) error {
	var req models.RunScheduleRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return errorResponse(c, http.StatusBadRequest, "Invalid request body")
		}
	}

	var pinned *time.Time
	if req.OccurrenceDate != "" {
		d, err := utils.ParseDate(req.OccurrenceDate)
		if err != nil {
			return errorResponse(c, http.StatusBadRequest, "occurrence_date must be YYYY-MM-DD")
		}
		pinned = &d
	}

	res, err := h.svc.RunNow(c.Request().Context(), c.Param("id"), pinned)
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, string(res.Outcome), res)
}

// Pause handles POST /api/recurring-schedules/:id/pause.
func (h *ScheduleHandler) Pause(c echo.Context) error {
	return h.transition(c, "Schedule paused", h.svc.Pause)
}

// Resume handles POST /api/recurring-schedules/:id/resume.
func (h *ScheduleHandler) Resume(c echo.Context) error {
	return h.transition(c, "Schedule resumed", h.svc.Resume)
}

// Skip handles POST /api/recurring-schedules/:id/skip.
func (h *ScheduleHandler) Skip(c echo.Context) error {
	return h.transition(c, "Occurrence skipped", h.svc.Skip)
}

// Cancel handles DELETE /api/recurring-schedules/:id.
func (h *ScheduleHandler) Cancel(c echo.Context) error {
	return h.transition(c, "Schedule cancelled", h.svc.Cancel)
}

func (h *ScheduleHandler) transition(c echo.Context, msg string, fn func(context.Context, string) (*models.RecurringSchedule, error)) error {
	s, err := fn(c.Request().Context(), c.Param("id"))
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, msg, s)
}
