package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
)

func TestCommitAppliesDeltaAndAppendsEvent(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()
	area := createArea(t, ds, "Lobby", KindPerson, 2)

	event, updated, err := ds.Commit(ctx, Transition{
		AreaID:     area.ID,
		BindingID:  7,
		Direction:  EventEnter,
		ObjectID:   "42",
		ObjectKind: "person",
		Label:      "person",
		Camera:     "lobby_cam",
		Zone:       "lobby_in",
		Confidence: 0.91,
		Timestamp:  testDay.Add(9 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, updated.CurrentOccupancy)
	assert.Equal(t, 1, event.Value)
	assert.Equal(t, "lobby_in", event.Source)

	var stored CountingEvent
	require.NoError(t, ds.DB.First(&stored, event.ID).Error)
	assert.Equal(t, EventEnter, stored.Type)
	assert.Equal(t, "42", stored.Metadata.ObjectID)
	assert.Equal(t, uint(7), stored.Metadata.BindingID)
	assert.Equal(t, "lobby_cam", stored.Metadata.Camera)
	assert.True(t, stored.Timestamp.Equal(testDay.Add(9*time.Hour)))

	reloaded, err := ds.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CurrentOccupancy)
}

func TestCommitClampsAtZero(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()
	area := createArea(t, ds, "Lobby", KindPerson, 5)

	for i := range 3 {
		event, updated, err := ds.Commit(ctx, Transition{
			AreaID: area.ID, Direction: EventExit, Timestamp: testDay.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, updated.CurrentOccupancy)
		assert.Equal(t, 0, event.Value, "clamped exit records no delta")
		assert.True(t, event.Metadata.Clamped)
	}

	var count int64
	require.NoError(t, ds.DB.Model(&CountingEvent{}).Where("type = ?", EventExit).Count(&count).Error)
	assert.Equal(t, int64(3), count, "clamped exits are still logged")

	commitAt(t, ds, area.ID, EventEnter, testDay.Add(time.Minute))
	_, updated, err := ds.Commit(ctx, Transition{AreaID: area.ID, Direction: EventExit, Timestamp: testDay.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.CurrentOccupancy)
}

func TestCommitAllowNegative(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ds.AllowNegative = true
	area := createArea(t, ds, "Lobby", KindPerson, 0)

	event, updated, err := ds.Commit(context.Background(), Transition{AreaID: area.ID, Direction: EventExit, Timestamp: testDay})
	require.NoError(t, err)
	assert.Equal(t, -1, updated.CurrentOccupancy)
	assert.Equal(t, -1, event.Value)
}

func TestCommitUnknownAreaWritesNothing(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)

	_, _, err := ds.Commit(context.Background(), Transition{AreaID: 99, Direction: EventEnter, Timestamp: testDay})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	var count int64
	require.NoError(t, ds.DB.Model(&CountingEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCommitRejectsAlertDirection(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	area := createArea(t, ds, "Lobby", KindPerson, 2)

	_, _, err := ds.Commit(context.Background(), Transition{AreaID: area.ID, Direction: EventWarning, Timestamp: testDay})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestCommitRecordsMetrics(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	registry := prometheus.NewRegistry()
	m, err := metrics.NewDatastoreMetrics(registry)
	require.NoError(t, err)
	ds.SetMetrics(m)

	area := createArea(t, ds, "Lobby", KindPerson, 2)
	commitAt(t, ds, area.ID, EventEnter, testDay)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "datastore_db_transactions_total")
	assert.Contains(t, names, "datastore_db_operations_total")
}

func TestRecordAlert(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()
	area := createArea(t, ds, "Lobby", KindPerson, 2)

	event, err := ds.RecordAlert(ctx, area.ID, EventExceeded, 2, testDay)
	require.NoError(t, err)
	assert.Equal(t, EventExceeded, event.Type)
	assert.Equal(t, 2, event.Value)
	assert.Equal(t, SourceAlert, event.Source)

	_, err = ds.RecordAlert(ctx, area.ID, EventEnter, 2, testDay)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	reloaded, err := ds.GetArea(ctx, area.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.CurrentOccupancy, "alerts never touch occupancy")
}

func TestResetOccupancy(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()
	area := createArea(t, ds, "Lobby", KindPerson, 10)
	commitAt(t, ds, area.ID, EventEnter, testDay)
	commitAt(t, ds, area.ID, EventEnter, testDay.Add(time.Second))

	updated, err := ds.ResetOccupancy(ctx, area.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, updated.CurrentOccupancy)

	var count int64
	require.NoError(t, ds.DB.Model(&CountingEvent{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "reset writes no transition")

	_, err = ds.ResetOccupancy(ctx, area.ID, -3)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = ds.ResetOccupancy(ctx, 404, 0)
	assert.True(t, errors.IsNotFound(err))
}

func TestSnapshotMeasurements(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	ctx := context.Background()
	lobby := createArea(t, ds, "Lobby", KindPerson, 4)
	createArea(t, ds, "Yard", KindVehicle, 0)
	commitAt(t, ds, lobby.ID, EventEnter, testDay)

	written, err := ds.SnapshotMeasurements(ctx, testDay.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	measurements, err := ds.GetMeasurements(ctx, lobby.ID, testDay)
	require.NoError(t, err)
	require.Len(t, measurements, 1)
	assert.Equal(t, 1, measurements[0].Occupancy)
	assert.InDelta(t, 0.25, measurements[0].Density, 1e-9)
}
