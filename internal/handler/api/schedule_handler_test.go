package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizdesk/internal/models"
	"bizdesk/internal/recurrence"
	"bizdesk/internal/recurring"
)

type fakeSchedules struct {
	err    error
	pinned *time.Time
	result *recurring.ExecutionResult
}

func (f *fakeSchedules) Create(context.Context, *models.CreateScheduleRequest) (*models.RecurringSchedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.RecurringSchedule{ID: "s-1", Status: models.ScheduleActive}, nil
}

func (f *fakeSchedules) Get(_ context.Context, id string) (*models.RecurringSchedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.RecurringSchedule{ID: id}, nil
}

func (f *fakeSchedules) List(context.Context, string, string, int, int) ([]models.RecurringSchedule, int64, error) {
	return []models.RecurringSchedule{{ID: "s-1"}}, 1, f.err
}

func (f *fakeSchedules) History(context.Context, string, int) ([]models.RecurringJobHistory, error) {
	return nil, f.err
}

func (f *fakeSchedules) RunNow(_ context.Context, id string, pinned *time.Time) (*recurring.ExecutionResult, error) {
	f.pinned = pinned
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &recurring.ExecutionResult{ScheduleID: id, Outcome: recurring.OutcomeNothingToDo}, nil
}

func (f *fakeSchedules) Pause(_ context.Context, id string) (*models.RecurringSchedule, error) {
	return f.status(id, models.SchedulePaused)
}

func (f *fakeSchedules) Resume(_ context.Context, id string) (*models.RecurringSchedule, error) {
	return f.status(id, models.ScheduleActive)
}

func (f *fakeSchedules) Cancel(_ context.Context, id string) (*models.RecurringSchedule, error) {
	return f.status(id, models.ScheduleCancelled)
}

func (f *fakeSchedules) Skip(_ context.Context, id string) (*models.RecurringSchedule, error) {
	return f.status(id, models.ScheduleActive)
}

func (f *fakeSchedules) status(id, status string) (*models.RecurringSchedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.RecurringSchedule{ID: id, Status: status}, nil
}

func serve(t *testing.T, svc ScheduleService, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	h := NewScheduleHandler(svc, zap.NewNop())

	e := echo.New()
	g := e.Group("/api/recurring-schedules")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Cancel)
	g.GET("/:id/history", h.History)
	g.POST("/:id/run", h.Run)
	g.POST("/:id/pause", h.Pause)
	g.POST("/:id/resume", h.Resume)
	g.POST("/:id/skip", h.Skip)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		code   int
	}{
		{"rule error", &recurrence.RuleError{Field: "day_of_week", Reason: "is required"}, http.MethodPost, "/api/recurring-schedules", `{}`, http.StatusUnprocessableEntity},
		{"invalid input", errors.Wrap(recurring.ErrInvalidInput, "job_title is required"), http.MethodPost, "/api/recurring-schedules", `{}`, http.StatusBadRequest},
		{"not found", recurring.ErrNotFound, http.MethodGet, "/api/recurring-schedules/nope", "", http.StatusNotFound},
		{"invalid transition", errors.Wrap(recurring.ErrInvalidTransition, "cancelled -> active"), http.MethodPost, "/api/recurring-schedules/s-1/resume", "", http.StatusConflict},
		{"execution failure", &recurring.ExecutionError{ScheduleID: "s-1", Occurrence: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), Step: "create invoice", Err: errors.New("down")}, http.MethodPost, "/api/recurring-schedules/s-1/run", "", http.StatusInternalServerError},
		{"unexpected", errors.New("db gone"), http.MethodGet, "/api/recurring-schedules/s-1", "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := serve(t, &fakeSchedules{err: tt.err}, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.False(t, resp.Status)
		})
	}
}

func TestRuleErrorCarriesField(t *testing.T) {
	svc := &fakeSchedules{err: &recurrence.RuleError{Field: "end_date", Reason: "leaves no occurrence"}}
	_, resp := serve(t, svc, http.MethodPost, "/api/recurring-schedules", `{"frequency":"weekly"}`)

	obj, ok := resp.Obj.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "end_date", obj["field"])
}

func TestExecutionFailureReportsStep(t *testing.T) {
	svc := &fakeSchedules{err: &recurring.ExecutionError{
		ScheduleID: "s-1",
		Occurrence: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		Step:       "create invoice",
		Err:        errors.New("invoice service unavailable"),
	}}
	_, resp := serve(t, svc, http.MethodPost, "/api/recurring-schedules/s-1/run", "")

	obj, ok := resp.Obj.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "create invoice", obj["step"])
	assert.Equal(t, "2026-10-20", obj["occurrence_date"])
}

func TestRunPinsOccurrence(t *testing.T) {
	svc := &fakeSchedules{}
	rec, resp := serve(t, svc, http.MethodPost, "/api/recurring-schedules/s-1/run", `{"occurrence_date":"2026-10-20"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(recurring.OutcomeNothingToDo), resp.Msg)
	require.NotNil(t, svc.pinned)
	assert.Equal(t, "2026-10-20", svc.pinned.Format("2006-01-02"))

	svc = &fakeSchedules{}
	rec, _ = serve(t, svc, http.MethodPost, "/api/recurring-schedules/s-1/run", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.pinned)

	rec, _ = serve(t, &fakeSchedules{}, http.MethodPost, "/api/recurring-schedules/s-1/run", `{"occurrence_date":"20/10/2026"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitions(t *testing.T) {
	rec, resp := serve(t, &fakeSchedules{}, http.MethodDelete, "/api/recurring-schedules/s-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Schedule cancelled", resp.Msg)

	rec, resp = serve(t, &fakeSchedules{}, http.MethodPost, "/api/recurring-schedules/s-1/pause", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Schedule paused", resp.Msg)

	rec, resp = serve(t, &fakeSchedules{}, http.MethodPost, "/api/recurring-schedules/s-1/skip", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Occurrence skipped", resp.Msg)
}

func TestListPagination(t *testing.T) {
	rec, resp := serve(t, &fakeSchedules{}, http.MethodGet, "/api/recurring-schedules?limit=10000&page=0", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	obj, ok := resp.Obj.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, maxLimit, obj["limit"])
	assert.EqualValues(t, 1, obj["page"])
	assert.EqualValues(t, 1, obj["total_pages"])
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, totalPages(0, 50))
	assert.Equal(t, 1, totalPages(50, 50))
	assert.Equal(t, 2, totalPages(51, 50))
	assert.Equal(t, 3, totalPages(101, 0))
}
