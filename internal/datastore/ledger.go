package datastore

import (
	"context"
	"time"

	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Commit appends a transition to the log and applies its delta to the area
// counter in one transaction. Unless AllowNegative is set, an exit at zero
// occupancy is recorded with Value 0 and leaves the counter unchanged.
func (ds *DataStore) Commit(ctx context.Context, t Transition) (event *CountingEvent, area *Area, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpCommit, start, err) }()

	var delta int
	switch t.Direction {
	case EventEnter:
		delta = 1
	case EventExit:
		delta = -1
	default:
		return nil, nil, validationError("transition direction must be enter or exit", "direction", t.Direction)
	}

	var committed CountingEvent
	var updated Area

	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&updated, t.AreaID).Error; err != nil {
			return lookupError(err, "area", t.AreaID, "commit")
		}

		applied := delta
		clamped := false
		if updated.CurrentOccupancy+delta < 0 && !ds.AllowNegative {
			applied = 0
			clamped = true
		}

		committed = CountingEvent{
			AreaID:     t.AreaID,
			Type:       t.Direction,
			Value:      applied,
			Source:     t.Zone,
			ObjectKind: t.ObjectKind,
			Confidence: t.Confidence,
			Timestamp:  t.Timestamp.UTC(),
			Metadata: EventMetadata{
				BindingID: t.BindingID,
				ObjectID:  t.ObjectID,
				Label:     t.Label,
				Camera:    t.Camera,
				Zone:      t.Zone,
				Clamped:   clamped,
			},
		}
		if err := tx.Create(&committed).Error; err != nil {
			return dbError(err, "commit", errors.PriorityHigh, "area_id", t.AreaID, "direction", string(t.Direction))
		}

		if applied != 0 {
			updated.CurrentOccupancy += applied
			if err := tx.Model(&updated).Update("current_occupancy", updated.CurrentOccupancy).Error; err != nil {
				return dbError(err, "commit", errors.PriorityHigh, "area_id", t.AreaID)
			}
		}
		return nil
	})
	if ds.metrics != nil {
		if err != nil {
			ds.metrics.RecordTransaction("rollback")
		} else {
			ds.metrics.RecordTransaction("committed")
		}
	}
	if err != nil {
		return nil, nil, err
	}

	return &committed, &updated, nil
}

// RecordAlert appends a warning or exceeded row carrying the occupancy that triggered it.
func (ds *DataStore) RecordAlert(ctx context.Context, areaID uint, alertType EventType, occupancy int, ts time.Time) (event *CountingEvent, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpRecordAlert, start, err) }()

	if alertType != EventWarning && alertType != EventExceeded {
		return nil, validationError("alert type must be warning or exceeded", "type", alertType)
	}

	event = &CountingEvent{
		AreaID:    areaID,
		Type:      alertType,
		Value:     occupancy,
		Source:    SourceAlert,
		Timestamp: ts.UTC(),
	}
	if err := ds.DB.WithContext(ctx).Create(event).Error; err != nil {
		return nil, dbError(err, "record_alert", errors.PriorityMedium, "area_id", areaID, "type", string(alertType))
	}
	return event, nil
}

// ResetOccupancy sets an area's counter administratively. No transition row is written.
func (ds *DataStore) ResetOccupancy(ctx context.Context, areaID uint, value int) (area *Area, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpResetOccupancy, start, err) }()

	if value < 0 && !ds.AllowNegative {
		return nil, validationError("occupancy must not be negative", "value", value)
	}

	area = &Area{}
	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(area, areaID).Error; err != nil {
			return lookupError(err, "area", areaID, "reset_occupancy")
		}
		area.CurrentOccupancy = value
		if err := tx.Model(area).Update("current_occupancy", value).Error; err != nil {
			return dbError(err, "reset_occupancy", errors.PriorityMedium, "area_id", areaID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return area, nil
}

// SaveMeasurement stores one occupancy snapshot.
func (ds *DataStore) SaveMeasurement(ctx context.Context, m *Measurement) (err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpSaveMeasurement, start, err) }()

	m.Timestamp = m.Timestamp.UTC()
	if err := ds.DB.WithContext(ctx).Create(m).Error; err != nil {
		return dbError(err, "save_measurement", errors.PriorityLow, "area_id", m.AreaID)
	}
	return nil
}

// SnapshotMeasurements writes one measurement per enabled area and returns how many were written.
func (ds *DataStore) SnapshotMeasurements(ctx context.Context, now time.Time) (int, error) {
	var areas []Area
	if err := ds.DB.WithContext(ctx).Where("enabled = ?", true).Find(&areas).Error; err != nil {
		return 0, dbError(err, "snapshot_measurements", errors.PriorityLow)
	}
	if len(areas) == 0 {
		return 0, nil
	}

	rows := make([]Measurement, 0, len(areas))
	for i := range areas {
		rows = append(rows, Measurement{
			AreaID:    areas[i].ID,
			Occupancy: areas[i].CurrentOccupancy,
			Density:   density(areas[i].CurrentOccupancy, areas[i].CapacityValue()),
			Timestamp: now.UTC(),
		})
	}

	start := time.Now()
	err := ds.DB.WithContext(ctx).Create(&rows).Error
	ds.observe(metrics.OpSaveMeasurement, start, err)
	if err != nil {
		return 0, dbError(err, "snapshot_measurements", errors.PriorityLow)
	}
	return len(rows), nil
}

// density is occupancy over capacity, 0 when no capacity is configured
func density(occupancy, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(occupancy) / float64(capacity)
}
