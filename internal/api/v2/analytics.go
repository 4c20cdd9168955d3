// internal/api/v2/analytics.go
package api

import (
	"context"
	"net/http"

	"github.com/tphakala/occupancy-go/internal/datastore"

	"github.com/labstack/echo/v4"
)

// Default windows for range queries, in days.
const (
	defaultDailyRange   = 7
	defaultAlertRange   = 7
	defaultTopAreaRange = 30
	defaultHistoryRange = 30
)

// initAnalyticsRoutes registers the dashboard rollup endpoints
func (c *Controller) initAnalyticsRoutes() {
	c.Group.GET("/rollups/hourly", c.GetHourlyRollup)
	c.Group.GET("/rollups/daily", c.GetDailyRollup)
	c.Group.GET("/alerts/stats", c.GetAlertStats)
	c.Group.GET("/summary", c.GetSummary)
	c.Group.GET("/stats", c.GetStats)
	c.Group.GET("/history", c.GetHistory)
}

// GetHourlyRollup handles GET /api/v2/rollups/hourly?date=&area_id=
// Returns in/out counts per hour of one day, hours without traffic omitted.
func (c *Controller) GetHourlyRollup(ctx echo.Context) error {
	day, err := queryDate(ctx, "date", c.today())
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date parameter", http.StatusBadRequest)
	}
	areaID, err := queryAreaID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid area_id parameter", http.StatusBadRequest)
	}

	return c.cached(ctx, "Failed to get hourly rollup", func(reqCtx context.Context) (any, error) {
		return c.DS.GetHourlyRollup(reqCtx, day, areaID)
	})
}

// GetDailyRollup handles GET /api/v2/rollups/daily?start=&end=&area_id=
func (c *Controller) GetDailyRollup(ctx echo.Context) error {
	start, end, err := queryDateRange(ctx, c.today(), defaultDailyRange)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date range", http.StatusBadRequest)
	}
	areaID, err := queryAreaID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid area_id parameter", http.StatusBadRequest)
	}

	return c.cached(ctx, "Failed to get daily rollup", func(reqCtx context.Context) (any, error) {
		return c.DS.GetDailyRollup(reqCtx, start, end, areaID)
	})
}

// GetAlertStats handles GET /api/v2/alerts/stats?start=&end=
func (c *Controller) GetAlertStats(ctx echo.Context) error {
	start, end, err := queryDateRange(ctx, c.today(), defaultAlertRange)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date range", http.StatusBadRequest)
	}

	return c.cached(ctx, "Failed to get alert statistics", func(reqCtx context.Context) (any, error) {
		return c.DS.GetAlertStats(reqCtx, start, end.AddDate(0, 0, 1))
	})
}

// GetTopAreas handles GET /api/v2/areas/top?start=&end=&limit=
func (c *Controller) GetTopAreas(ctx echo.Context) error {
	start, end, err := queryDateRange(ctx, c.today(), defaultTopAreaRange)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date range", http.StatusBadRequest)
	}
	limit, err := queryInt(ctx, "limit", 5, 1, 50)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid limit parameter", http.StatusBadRequest)
	}

	return c.cached(ctx, "Failed to get top areas", func(reqCtx context.Context) (any, error) {
		return c.DS.GetTopAreas(reqCtx, start, end.AddDate(0, 0, 1), limit)
	})
}

// GetSummary handles GET /api/v2/summary?view=day|week|month&date=
func (c *Controller) GetSummary(ctx echo.Context) error {
	view := ctx.QueryParam("view")
	if view == "" {
		view = datastore.ViewDay
	}
	day, err := queryDate(ctx, "date", c.today())
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date parameter", http.StatusBadRequest)
	}

	return c.cached(ctx, "Failed to get summary", func(reqCtx context.Context) (any, error) {
		return c.DS.GetSummary(reqCtx, view, day)
	})
}

// GetStats handles GET /api/v2/stats
// Not cached: the dashboard header shows the live occupancy total.
func (c *Controller) GetStats(ctx echo.Context) error {
	stats, err := c.DS.GetStats(ctx.Request().Context(), c.now())
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// GetHistory handles GET /api/v2/history?group_by=hour|day|week|month&start=&end=
func (c *Controller) GetHistory(ctx echo.Context) error {
	groupBy := ctx.QueryParam("group_by")
	if groupBy == "" {
		groupBy = "day"
	}
	start, end, err := queryDateRange(ctx, c.today(), defaultHistoryRange)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid date range", http.StatusBadRequest)
	}

	return c.cached(ctx, "Failed to get history", func(reqCtx context.Context) (any, error) {
		return c.DS.GetHistory(reqCtx, groupBy, start, end.AddDate(0, 0, 1))
	})
}
