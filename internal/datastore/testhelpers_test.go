package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB returns a migrated in-memory store
func setupTestDB(t *testing.T) *DataStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	// every pooled connection would get its own empty :memory: database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...))

	return &DataStore{DB: db}
}

// createArea stores an enabled area with the given capacity, 0 meaning none
func createArea(t *testing.T, ds *DataStore, name string, kind AreaKind, capacity int) *Area {
	t.Helper()

	area := &Area{Name: name, Kind: kind, LimitMode: LimitSoft, Enabled: true}
	if capacity > 0 {
		area.Capacity = &capacity
	}
	require.NoError(t, ds.SaveArea(context.Background(), area))
	return area
}

// commitAt commits a transition for areaID at ts
func commitAt(t *testing.T, ds *DataStore, areaID uint, direction EventType, ts time.Time) *CountingEvent {
	t.Helper()

	event, _, err := ds.Commit(context.Background(), Transition{
		AreaID:     areaID,
		Direction:  direction,
		ObjectID:   "obj",
		ObjectKind: string(KindPerson),
		Zone:       "zone_" + string(direction),
		Confidence: 0.9,
		Timestamp:  ts,
	})
	require.NoError(t, err)
	return event
}

var testDay = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
