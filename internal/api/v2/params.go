package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

const dateLayout = "2006-01-02"

// queryInt reads an integer query parameter, returning def when it is absent.
func queryInt(ctx echo.Context, name string, def, minValue, maxValue int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("%s must be between %d and %d", name, minValue, maxValue)
	}
	return value, nil
}

// queryAreaID reads the optional area_id filter; 0 means all areas.
func queryAreaID(ctx echo.Context) (uint, error) {
	raw := ctx.QueryParam("area_id")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("area_id must be a positive integer")
	}
	return uint(id), nil
}

// pathAreaID reads the :id path parameter.
func pathAreaID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("area id must be a positive integer")
	}
	return uint(id), nil
}

// queryDate parses a YYYY-MM-DD parameter as a UTC day, returning def when absent.
func queryDate(ctx echo.Context, name string, def time.Time) (time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date in YYYY-MM-DD format", name)
	}
	return day, nil
}

// queryDateRange reads start and end as inclusive days. Both default to
// the days-long window ending today.
func queryDateRange(ctx echo.Context, today time.Time, days int) (start, end time.Time, err error) {
	end, err = queryDate(ctx, "end", today)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err = queryDate(ctx, "start", end.AddDate(0, 0, -(days - 1)))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must not be before start date")
	}
	return start, end, nil
}

// today returns the current UTC day.
func (c *Controller) today() time.Time {
	now := c.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
