package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/occupancy-go/internal/logger"
)

// ResetRequest is the optional body of POST /areas/:id/reset.
type ResetRequest struct {
	Value int `json:"value"`
}

// GetAreas handles GET /api/v2/areas
// Lists enabled areas with occupancy, percentage of capacity and color.
func (c *Controller) GetAreas(ctx echo.Context) error {
	areas, err := c.DS.GetAreaOccupancy(ctx.Request().Context())
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get areas")
	}
	return ctx.JSON(http.StatusOK, areas)
}

// GetRecentEvents handles GET /api/v2/events/recent?minutes=&limit=
func (c *Controller) GetRecentEvents(ctx echo.Context) error {
	minutes, err := queryInt(ctx, "minutes", 60, 1, 24*60)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid minutes parameter", http.StatusBadRequest)
	}
	limit, err := queryInt(ctx, "limit", 50, 1, 500)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid limit parameter", http.StatusBadRequest)
	}

	since := c.now().Add(-time.Duration(minutes) * time.Minute)
	events, err := c.DS.GetRecentEvents(ctx.Request().Context(), since, limit)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get recent events")
	}
	return ctx.JSON(http.StatusOK, events)
}

// GetMeasurements handles GET /api/v2/areas/:id/measurements?hours=
func (c *Controller) GetMeasurements(ctx echo.Context) error {
	areaID, err := pathAreaID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid area id", http.StatusBadRequest)
	}
	hours, err := queryInt(ctx, "hours", 24, 1, 24*31)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid hours parameter", http.StatusBadRequest)
	}

	reqCtx := ctx.Request().Context()
	if _, err := c.DS.GetArea(reqCtx, areaID); err != nil {
		return c.handleStoreError(ctx, err, "Failed to get area")
	}
	since := c.now().Add(-time.Duration(hours) * time.Hour)
	measurements, err := c.DS.GetMeasurements(reqCtx, areaID, since)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to get measurements")
	}
	return ctx.JSON(http.StatusOK, measurements)
}

// ResetArea handles POST /api/v2/areas/:id/reset
// Sets the live counter to the given value, 0 when no body is sent. No
// transition is written; the engine reseeds its alert state afterwards.
func (c *Controller) ResetArea(ctx echo.Context) error {
	areaID, err := pathAreaID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid area id", http.StatusBadRequest)
	}

	var req ResetRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&req); err != nil {
			return c.HandleError(ctx, err, "Invalid reset request", http.StatusBadRequest)
		}
	}

	area, err := c.DS.ResetOccupancy(ctx.Request().Context(), areaID, req.Value)
	if err != nil {
		return c.handleStoreError(ctx, err, "Failed to reset occupancy")
	}
	c.InvalidateCache()

	c.log.Info("Occupancy reset",
		logger.Int("area_id", int(area.ID)),
		logger.String("area", area.Name),
		logger.Int("occupancy", area.CurrentOccupancy))

	if c.Engine != nil {
		reloadCtx, cancel := context.WithTimeout(ctx.Request().Context(), engineCallTimeout)
		defer cancel()
		if err := c.Engine.Reload(reloadCtx); err != nil {
			c.log.Warn("Engine reload after reset failed", logger.Error(err))
		}
	}

	return ctx.JSON(http.StatusOK, area)
}

// GetStatus handles GET /api/v2/status
func (c *Controller) GetStatus(ctx echo.Context) error {
	if c.Engine == nil {
		return c.HandleError(ctx, nil, "Counting engine is not running", http.StatusServiceUnavailable)
	}
	return ctx.JSON(http.StatusOK, c.Engine.Status())
}

// ReloadZones handles POST /api/v2/zones/reload
// Reloads zone bindings into the running engine between two messages.
func (c *Controller) ReloadZones(ctx echo.Context) error {
	if c.Engine == nil {
		return c.HandleError(ctx, nil, "Counting engine is not running", http.StatusServiceUnavailable)
	}

	reloadCtx, cancel := context.WithTimeout(ctx.Request().Context(), engineCallTimeout)
	defer cancel()
	if err := c.Engine.Reload(reloadCtx); err != nil {
		return c.HandleError(ctx, err, "Failed to reload zone bindings", http.StatusInternalServerError)
	}
	c.InvalidateCache()

	status := c.Engine.Status()
	return ctx.JSON(http.StatusOK, map[string]any{
		"reloaded":            true,
		"zone_configs_loaded": status.ZoneConfigsLoaded,
		"last_reload":         status.LastReload,
	})
}
