package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"bizdesk/internal/handler/api"
	"bizdesk/internal/middleware"
	"bizdesk/internal/repository"
)

// Deps are the services the routes are built from.
type Deps struct {
	Schedules api.ScheduleService
	Jobs      *repository.JobRepository
	Invoices  *repository.InvoiceRepository
	Logger    *zap.Logger

	APIKey       string
	HashFilePath string
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, d Deps) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	scheduleHandler := api.NewScheduleHandler(d.Schedules, d.Logger)
	workHandler := api.NewWorkHandler(d.Jobs, d.Invoices, d.Logger)

	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(d.APIKey, d.HashFilePath))
	apiGroup.Use(middleware.APILogger(d.Logger))

	schedules := apiGroup.Group("/recurring-schedules")
	schedules.GET("", scheduleHandler.List)
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("/:id", scheduleHandler.Get)
	schedules.DELETE("/:id", scheduleHandler.Cancel)
	schedules.GET("/:id/history", scheduleHandler.History)
	schedules.POST("/:id/run", scheduleHandler.Run)
	schedules.POST("/:id/pause", scheduleHandler.Pause)
	schedules.POST("/:id/resume", scheduleHandler.Resume)
	schedules.POST("/:id/skip", scheduleHandler.Skip)

	apiGroup.GET("/jobs", workHandler.ListJobs)
	apiGroup.GET("/jobs/:id", workHandler.GetJob)
	apiGroup.GET("/invoices", workHandler.ListInvoices)
	apiGroup.GET("/invoices/:id", workHandler.GetInvoice)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
