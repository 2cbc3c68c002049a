package api

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bizdesk/internal/models"
	"bizdesk/internal/pkg/utils"
	"bizdesk/internal/recurrence"
	"bizdesk/internal/recurring"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func createdResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusCreated, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, code int, msg string) error {
	return c.JSON(code, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

// failure maps a service error onto a status code and envelope. Unexpected
// errors are logged and reported without detail.
func failure(c echo.Context, logger *zap.Logger, err error) error {
	var ruleErr *recurrence.RuleError
	var execErr *recurring.ExecutionError

	switch {
	case errors.As(err, &ruleErr):
		return c.JSON(http.StatusUnprocessableEntity, models.APIResponse{
			Status: false,
			Msg:    ruleErr.Error(),
			Obj:    map[string]string{"field": ruleErr.Field, "reason": ruleErr.Reason},
		})
	case errors.Is(err, recurring.ErrInvalidInput):
		return errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, recurring.ErrNotFound):
		return errorResponse(c, http.StatusNotFound, "Schedule not found")
	case errors.Is(err, recurring.ErrInvalidTransition):
		return errorResponse(c, http.StatusConflict, err.Error())
	case recurring.IsBenign(err):
		return errorResponse(c, http.StatusConflict, "Schedule changed concurrently, retry")
	case errors.As(err, &execErr):
		return c.JSON(http.StatusInternalServerError, models.APIResponse{
			Status: false,
			Msg:    "Execution failed",
			Obj: map[string]string{
				"schedule_id":     execErr.ScheduleID,
				"occurrence_date": execErr.Occurrence.Format(utils.DateLayout),
				"step":            execErr.Step,
			},
		})
	}

	logger.Error("API request failed",
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return errorResponse(c, http.StatusInternalServerError, "Internal error")
}

func paginatedResponse(data interface{}, total int64, page, limit int) models.PaginatedResponse {
	return models.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = defaultLimit
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

// pageParams reads ?page and ?limit with defaults and an upper bound.
func pageParams(c echo.Context) (limit, page int) {
	limit = utils.ParseInt(c.QueryParam("limit"), defaultLimit)
	page = utils.ParseInt(c.QueryParam("page"), 1)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if page < 1 {
		page = 1
	}
	return limit, page
}
