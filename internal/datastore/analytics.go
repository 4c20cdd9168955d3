// internal/datastore/analytics.go
package datastore

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
	"gorm.io/gorm"
)

// Occupancy colors used by dashboards.
const (
	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorOrange = "orange"
	ColorRed    = "red"
)

// Summary views.
const (
	ViewDay   = "day"
	ViewWeek  = "week"
	ViewMonth = "month"
)

// AreaOccupancy is the current state of one area with derived percentage and color.
type AreaOccupancy struct {
	AreaID     uint      `json:"area_id"`
	Name       string    `json:"name"`
	Kind       AreaKind  `json:"kind"`
	Occupancy  int       `json:"occupancy"`
	Capacity   int       `json:"capacity"`
	LimitMode  LimitMode `json:"limit_mode"`
	Percentage float64   `json:"percentage"`
	Color      string    `json:"color"`
}

// RecentEvent is a log row joined with its area name.
type RecentEvent struct {
	ID         uint      `json:"id"`
	AreaID     uint      `json:"area_id"`
	AreaName   string    `json:"area_name"`
	Type       EventType `json:"type"`
	Value      int       `json:"value"`
	Source     string    `json:"source"`
	ObjectKind string    `json:"object_kind,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `gorm:"column:ts" json:"ts"`
}

// RollupBucket holds in/out counts for one time bucket.
type RollupBucket struct {
	Bucket string `json:"bucket"`
	In     int64  `gorm:"column:in_count" json:"in"`
	Out    int64  `gorm:"column:out_count" json:"out"`
	Total  int64  `json:"total"`
}

// AlertStats counts alerts over a range.
type AlertStats struct {
	WarningsCount int64          `json:"warnings_count"`
	ExceededCount int64          `json:"exceeded_count"`
	LastAlert     *CountingEvent `json:"last_alert,omitempty"`
}

// AreaVolume is the transition volume of one area over a range.
type AreaVolume struct {
	AreaID uint   `json:"area_id"`
	Name   string `json:"name"`
	Events int64  `json:"events"`
	In     int64  `gorm:"column:in_count" json:"in"`
	Out    int64  `gorm:"column:out_count" json:"out"`
}

// Summary is a chart-ready series of in/out counts.
type Summary struct {
	View   string   `json:"view"`
	Labels []string `json:"labels"`
	In     []int64  `json:"in"`
	Out    []int64  `json:"out"`
}

// Stats is the dashboard header.
type Stats struct {
	TotalEvents    int64 `json:"total_events"`
	EventsToday    int64 `json:"events_today"`
	ActiveAreas    int64 `json:"active_areas"`
	ActiveCameras  int64 `json:"active_cameras"`
	TotalOccupancy int64 `json:"total_occupancy"`
}

// HistoryBucket counts log rows of every type in one bucket.
type HistoryBucket struct {
	Bucket string           `json:"bucket"`
	Total  int64            `json:"total"`
	ByType map[string]int64 `json:"by_type"`
}

// historyFormats maps a group_by value to a strftime layout
var historyFormats = map[string]string{
	"hour":  "%Y-%m-%d %H:00",
	"day":   "%Y-%m-%d",
	"week":  "%Y-W%W",
	"month": "%Y-%m",
}

const dateLayout = "2006-01-02"

// OccupancyColor maps a percentage of capacity to a dashboard color.
func OccupancyColor(percentage float64) string {
	switch {
	case percentage >= 100:
		return ColorRed
	case percentage >= 80:
		return ColorOrange
	case percentage >= 60:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// GetBucketExpression returns the dialect-specific SQL that formats ts with a strftime layout.
func (ds *DataStore) GetBucketExpression(layout string) string {
	if ds.DB.Dialector.Name() == "mysql" {
		// MySQL %W is the weekday name, %u is the Monday-first week number
		return fmt.Sprintf("DATE_FORMAT(ts, '%s')", strings.ReplaceAll(layout, "%W", "%u"))
	}
	return fmt.Sprintf("strftime('%s', ts)", layout)
}

func (ds *DataStore) transitionsBetween(ctx context.Context, start, end time.Time) *gorm.DB {
	return ds.DB.WithContext(ctx).Model(&CountingEvent{}).
		Where("counting_events.type IN ? AND counting_events.ts >= ? AND counting_events.ts < ?",
			[]EventType{EventEnter, EventExit}, start.UTC(), end.UTC())
}

const inOutColumns = "SUM(CASE WHEN counting_events.type = 'enter' THEN 1 ELSE 0 END) AS in_count, " +
	"SUM(CASE WHEN counting_events.type = 'exit' THEN 1 ELSE 0 END) AS out_count"

// GetAreaOccupancy returns enabled areas with percentage and color.
func (ds *DataStore) GetAreaOccupancy(ctx context.Context) ([]AreaOccupancy, error) {
	var areas []Area
	if err := ds.DB.WithContext(ctx).Where("enabled = ?", true).Order("name").Find(&areas).Error; err != nil {
		return nil, dbError(err, "get_area_occupancy", errors.PriorityLow)
	}

	result := make([]AreaOccupancy, 0, len(areas))
	for i := range areas {
		a := &areas[i]
		capacity := a.CapacityValue()
		percentage := 0.0
		if capacity > 0 {
			percentage = math.Round(float64(a.CurrentOccupancy)/float64(capacity)*1000) / 10
		}
		result = append(result, AreaOccupancy{
			AreaID:     a.ID,
			Name:       a.Name,
			Kind:       a.Kind,
			Occupancy:  a.CurrentOccupancy,
			Capacity:   capacity,
			LimitMode:  a.LimitMode,
			Percentage: percentage,
			Color:      OccupancyColor(percentage),
		})
	}
	return result, nil
}

// GetRecentEvents returns up to limit log rows newer than since, newest first.
func (ds *DataStore) GetRecentEvents(ctx context.Context, since time.Time, limit int) ([]RecentEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []RecentEvent
	err := ds.DB.WithContext(ctx).Model(&CountingEvent{}).
		Select("counting_events.id, counting_events.area_id, areas.name AS area_name, counting_events.type, " +
			"counting_events.value, counting_events.source, counting_events.object_kind, counting_events.confidence, counting_events.ts").
		Joins("JOIN areas ON areas.id = counting_events.area_id").
		Where("counting_events.ts >= ?", since.UTC()).
		Order("counting_events.ts DESC, counting_events.id DESC").
		Limit(limit).
		Scan(&events).Error
	if err != nil {
		return nil, dbError(err, "get_recent_events", errors.PriorityLow)
	}
	return events, nil
}

// GetHourlyRollup returns in/out counts per hour of day for the UTC day containing day.
// areaID 0 covers all areas.
func (ds *DataStore) GetHourlyRollup(ctx context.Context, day time.Time, areaID uint) (buckets []RollupBucket, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpAnalytics, start, err) }()

	from := startOfDay(day)
	return ds.rollup(ctx, "%H", from, from.AddDate(0, 0, 1), areaID)
}

// GetDailyRollup returns in/out counts per date from start to end inclusive.
func (ds *DataStore) GetDailyRollup(ctx context.Context, startDay, endDay time.Time, areaID uint) (buckets []RollupBucket, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpAnalytics, start, err) }()

	from, to := startOfDay(startDay), startOfDay(endDay).AddDate(0, 0, 1)
	if !to.After(from) {
		return nil, validationError("end date is before start date", "end", endDay.Format(dateLayout))
	}
	return ds.rollup(ctx, "%Y-%m-%d", from, to, areaID)
}

func (ds *DataStore) rollup(ctx context.Context, layout string, from, to time.Time, areaID uint) ([]RollupBucket, error) {
	query := ds.transitionsBetween(ctx, from, to).
		Select(fmt.Sprintf("%s AS bucket, %s, COUNT(*) AS total", ds.GetBucketExpression(layout), inOutColumns)).
		Group("bucket").
		Order("bucket")
	if areaID != 0 {
		query = query.Where("counting_events.area_id = ?", areaID)
	}

	var buckets []RollupBucket
	if err := query.Scan(&buckets).Error; err != nil {
		return nil, dbError(err, "rollup", errors.PriorityLow, "layout", layout)
	}
	return buckets, nil
}

// GetAlertStats counts warning and exceeded rows in [start, end) and returns the latest one.
func (ds *DataStore) GetAlertStats(ctx context.Context, start, end time.Time) (*AlertStats, error) {
	var rows []struct {
		Type  EventType
		Count int64
	}
	err := ds.DB.WithContext(ctx).Model(&CountingEvent{}).
		Select("type, COUNT(*) AS count").
		Where("type IN ? AND ts >= ? AND ts < ?", []EventType{EventWarning, EventExceeded}, start.UTC(), end.UTC()).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "get_alert_stats", errors.PriorityLow)
	}

	stats := &AlertStats{}
	for _, r := range rows {
		switch r.Type {
		case EventWarning:
			stats.WarningsCount = r.Count
		case EventExceeded:
			stats.ExceededCount = r.Count
		}
	}

	var last CountingEvent
	err = ds.DB.WithContext(ctx).
		Where("type IN ? AND ts >= ? AND ts < ?", []EventType{EventWarning, EventExceeded}, start.UTC(), end.UTC()).
		Order("ts DESC, id DESC").
		First(&last).Error
	switch {
	case err == nil:
		stats.LastAlert = &last
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, dbError(err, "get_alert_stats", errors.PriorityLow)
	}

	return stats, nil
}

// GetTopAreas ranks areas by transition volume in [start, end).
func (ds *DataStore) GetTopAreas(ctx context.Context, start, end time.Time, limit int) ([]AreaVolume, error) {
	if limit <= 0 {
		limit = 5
	}

	var volumes []AreaVolume
	err := ds.transitionsBetween(ctx, start, end).
		Select("areas.id AS area_id, areas.name AS name, COUNT(*) AS events, " + inOutColumns).
		Joins("JOIN areas ON areas.id = counting_events.area_id").
		Group("areas.id, areas.name").
		Order("events DESC, areas.id").
		Limit(limit).
		Scan(&volumes).Error
	if err != nil {
		return nil, dbError(err, "get_top_areas", errors.PriorityLow)
	}
	return volumes, nil
}

// GetSummary returns a zero-filled in/out series: 24 hours for day,
// the 7 days ending at day for week, and every day of day's month for month.
func (ds *DataStore) GetSummary(ctx context.Context, view string, day time.Time) (*Summary, error) {
	day = startOfDay(day)

	var (
		labels  []string
		buckets []RollupBucket
		err     error
	)

	switch view {
	case ViewDay:
		for h := range 24 {
			labels = append(labels, fmt.Sprintf("%02d", h))
		}
		buckets, err = ds.GetHourlyRollup(ctx, day, 0)
	case ViewWeek, ViewMonth:
		from, to := day.AddDate(0, 0, -6), day
		if view == ViewMonth {
			from = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
			to = from.AddDate(0, 1, -1)
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			labels = append(labels, d.Format(dateLayout))
		}
		buckets, err = ds.GetDailyRollup(ctx, from, to, 0)
	default:
		return nil, validationError("view must be day, week or month", "view", view)
	}
	if err != nil {
		return nil, err
	}

	byBucket := make(map[string]RollupBucket, len(buckets))
	for _, b := range buckets {
		byBucket[b.Bucket] = b
	}

	summary := &Summary{View: view, Labels: labels, In: make([]int64, len(labels)), Out: make([]int64, len(labels))}
	for i, label := range labels {
		summary.In[i] = byBucket[label].In
		summary.Out[i] = byBucket[label].Out
	}
	return summary, nil
}

// GetStats returns totals for the dashboard header. "Today" is the UTC day containing now.
func (ds *DataStore) GetStats(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{}
	db := ds.DB.WithContext(ctx)
	transitions := []EventType{EventEnter, EventExit}

	if err := db.Model(&CountingEvent{}).Where("type IN ?", transitions).Count(&stats.TotalEvents).Error; err != nil {
		return nil, dbError(err, "get_stats", errors.PriorityLow, "field", "total_events")
	}
	today := startOfDay(now)
	if err := ds.transitionsBetween(ctx, today, today.AddDate(0, 0, 1)).Count(&stats.EventsToday).Error; err != nil {
		return nil, dbError(err, "get_stats", errors.PriorityLow, "field", "events_today")
	}
	if err := db.Model(&Area{}).Where("enabled = ?", true).Count(&stats.ActiveAreas).Error; err != nil {
		return nil, dbError(err, "get_stats", errors.PriorityLow, "field", "active_areas")
	}
	if err := db.Model(&ZoneBinding{}).Where("enabled = ?", true).Distinct("camera_name").Count(&stats.ActiveCameras).Error; err != nil {
		return nil, dbError(err, "get_stats", errors.PriorityLow, "field", "active_cameras")
	}
	if err := db.Model(&Area{}).Where("enabled = ?", true).
		Select("COALESCE(SUM(current_occupancy), 0)").Row().Scan(&stats.TotalOccupancy); err != nil {
		return nil, dbError(err, "get_stats", errors.PriorityLow, "field", "total_occupancy")
	}

	return stats, nil
}

// GetHistory groups every log row in [start, end) by hour, day, week or month with a per-type breakdown.
func (ds *DataStore) GetHistory(ctx context.Context, groupBy string, start, end time.Time) ([]HistoryBucket, error) {
	layout, ok := historyFormats[groupBy]
	if !ok {
		return nil, validationError("group_by must be hour, day, week or month", "group_by", groupBy)
	}

	var rows []struct {
		Bucket string
		Type   string
		Count  int64
	}
	err := ds.DB.WithContext(ctx).Model(&CountingEvent{}).
		Select(fmt.Sprintf("%s AS bucket, type, COUNT(*) AS count", ds.GetBucketExpression(layout))).
		Where("ts >= ? AND ts < ?", start.UTC(), end.UTC()).
		Group("bucket, type").
		Order("bucket").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "get_history", errors.PriorityLow, "group_by", groupBy)
	}

	var history []HistoryBucket
	for _, r := range rows {
		if len(history) == 0 || history[len(history)-1].Bucket != r.Bucket {
			history = append(history, HistoryBucket{Bucket: r.Bucket, ByType: make(map[string]int64)})
		}
		current := &history[len(history)-1]
		current.ByType[r.Type] += r.Count
		current.Total += r.Count
	}
	return history, nil
}

// GetMeasurements returns an area's snapshots since the given time, oldest first.
func (ds *DataStore) GetMeasurements(ctx context.Context, areaID uint, since time.Time) ([]Measurement, error) {
	var measurements []Measurement
	err := ds.DB.WithContext(ctx).
		Where("area_id = ? AND ts >= ?", areaID, since.UTC()).
		Order("ts").
		Find(&measurements).Error
	if err != nil {
		return nil, dbError(err, "get_measurements", errors.PriorityLow, "area_id", areaID)
	}
	return measurements, nil
}

// startOfDay truncates t to midnight UTC of its UTC date
func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
