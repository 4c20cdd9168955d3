// internal/api/v2/api.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"github.com/tphakala/occupancy-go/internal/api/middleware"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/counting"
	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/logger"
)

// Cache settings for dashboard queries. Entries are flushed on every
// reset and reload so the cache never hides a committed manual change.
const (
	queryCacheTTL     = 30 * time.Second
	queryCachePurge   = time.Minute
	engineCallTimeout = 5 * time.Second
)

// EngineControl is the part of the counting engine the API needs.
type EngineControl interface {
	Status() counting.Status
	Reload(ctx context.Context) error
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Engine   EngineControl // nil when only the query API runs

	queryCache *cache.Cache
	now        func() time.Time
	startTime  time.Time
	log        logger.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithEngine attaches the running counting engine for status and reload.
func WithEngine(engine EngineControl) Option {
	return func(c *Controller) {
		c.Engine = engine
	}
}

// WithClock overrides the time source used for default date ranges.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates a new API controller and registers its routes under /api/v2.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings, opts ...Option) (*Controller, error) {
	if ds == nil {
		return nil, errors.Newf("api controller requires a datastore").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings == nil {
		settings = &conf.Settings{}
	}

	c := &Controller{
		Echo:       e,
		DS:         ds,
		Settings:   settings,
		queryCache: cache.New(queryCacheTTL, queryCachePurge),
		now:        time.Now,
		log:        logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startTime = c.now()

	c.Group = e.Group("/api/v2")
	c.initRoutes()

	return c, nil
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/status", c.GetStatus)
	c.Group.POST("/zones/reload", c.ReloadZones)

	c.Group.GET("/areas", c.GetAreas)
	c.Group.GET("/areas/top", c.GetTopAreas)
	c.Group.GET("/areas/:id/measurements", c.GetMeasurements)
	c.Group.POST("/areas/:id/reset", c.ResetArea)
	c.Group.GET("/events/recent", c.GetRecentEvents)

	c.initAnalyticsRoutes()
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := c.now().Sub(c.startTime)
	response := map[string]any{
		"status":         "healthy",
		"version":        c.Settings.Version,
		"build_date":     c.Settings.BuildDate,
		"timestamp":      c.now().Format(time.RFC3339),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
	}

	if _, err := c.DS.GetAreas(ctx.Request().Context()); err != nil {
		response["status"] = "degraded"
		response["database_status"] = "disconnected"
		response["database_error"] = err.Error()
	} else {
		response["database_status"] = "connected"
	}

	if c.Engine != nil {
		status := c.Engine.Status()
		response["engine_running"] = status.Running
		response["mqtt_connected"] = status.Connected
	}

	return ctx.JSON(http.StatusOK, response)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int, correlationID string) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// HandleError logs err and writes it as a JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code, middleware.RequestID(ctx))

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Debug("API request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}

// handleStoreError maps datastore error categories to HTTP status codes.
func (c *Controller) handleStoreError(ctx echo.Context, err error, message string) error {
	switch {
	case errors.IsNotFound(err):
		return c.HandleError(ctx, err, message, http.StatusNotFound)
	case errors.IsCategory(err, errors.CategoryValidation):
		return c.HandleError(ctx, err, message, http.StatusBadRequest)
	default:
		return c.HandleError(ctx, err, message, http.StatusInternalServerError)
	}
}

// cached serves the response for the request URL from the query cache,
// calling load on a miss.
func (c *Controller) cached(ctx echo.Context, message string, load func(context.Context) (any, error)) error {
	key := ctx.Request().URL.String()
	if value, ok := c.queryCache.Get(key); ok {
		return ctx.JSON(http.StatusOK, value)
	}

	value, err := load(ctx.Request().Context())
	if err != nil {
		return c.handleStoreError(ctx, err, message)
	}
	c.queryCache.Set(key, value, cache.DefaultExpiration)
	return ctx.JSON(http.StatusOK, value)
}

// InvalidateCache drops every cached query result.
func (c *Controller) InvalidateCache() {
	c.queryCache.Flush()
}

// Shutdown releases controller resources.
func (c *Controller) Shutdown() {
	// TODO: go-cache's janitor goroutine cannot be stopped; move to a
	// context-aware cache if controllers start being recreated at runtime.
	c.queryCache.Flush()
}
