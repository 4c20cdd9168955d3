// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/logger"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the interface for database operations.
type Interface interface {
	Open() error
	Close() error
	SetMetrics(m *Metrics)

	// areas and zone bindings
	GetAreas(ctx context.Context) ([]Area, error)
	GetArea(ctx context.Context, id uint) (*Area, error)
	SaveArea(ctx context.Context, area *Area) error
	GetZoneBindings(ctx context.Context) ([]ZoneBinding, error)
	GetActiveBindings(ctx context.Context) ([]ZoneBinding, error)
	SaveZoneBinding(ctx context.Context, binding *ZoneBinding) error
	SeedDefaultAreas(ctx context.Context) (int, error)

	// occupancy ledger
	Commit(ctx context.Context, t Transition) (*CountingEvent, *Area, error)
	RecordAlert(ctx context.Context, areaID uint, alertType EventType, occupancy int, ts time.Time) (*CountingEvent, error)
	ResetOccupancy(ctx context.Context, areaID uint, value int) (*Area, error)
	SaveMeasurement(ctx context.Context, m *Measurement) error
	SnapshotMeasurements(ctx context.Context, now time.Time) (int, error)

	// retention
	PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (PurgeResult, error)

	// dashboard queries
	GetAreaOccupancy(ctx context.Context) ([]AreaOccupancy, error)
	GetRecentEvents(ctx context.Context, since time.Time, limit int) ([]RecentEvent, error)
	GetHourlyRollup(ctx context.Context, day time.Time, areaID uint) ([]RollupBucket, error)
	GetDailyRollup(ctx context.Context, start, end time.Time, areaID uint) ([]RollupBucket, error)
	GetAlertStats(ctx context.Context, start, end time.Time) (*AlertStats, error)
	GetTopAreas(ctx context.Context, start, end time.Time, limit int) ([]AreaVolume, error)
	GetSummary(ctx context.Context, view string, day time.Time) (*Summary, error)
	GetStats(ctx context.Context, now time.Time) (*Stats, error)
	GetHistory(ctx context.Context, groupBy string, start, end time.Time) ([]HistoryBucket, error)
	GetMeasurements(ctx context.Context, areaID uint, since time.Time) ([]Measurement, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB            *gorm.DB // GORM database instance
	AllowNegative bool     // disables the zero clamp on exit
	metrics       *Metrics
}

// New creates a new DataStore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	base := DataStore{AllowNegative: settings.Counting.AllowNegative}

	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{DataStore: base, Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{DataStore: base, Settings: settings}
	default:
		return nil
	}
}

// SetMetrics attaches datastore metrics; nil disables recording.
func (ds *DataStore) SetMetrics(m *Metrics) {
	ds.metrics = m
}

// observe records the outcome and duration of one operation
func (ds *DataStore) observe(operation string, start time.Time, err error) {
	if ds.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	ds.metrics.RecordDbOperation(operation, status, time.Since(start).Seconds())
}

// Models lists every table managed by the datastore.
func Models() []any {
	return []any{&Area{}, &ZoneBinding{}, &CountingEvent{}, &Measurement{}}
}

// performAutoMigration migrates all tables
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()

	if err := db.AutoMigrate(Models()...); err != nil {
		return dbError(fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err), "auto_migrate", "critical")
	}

	if debug {
		GetLogger().Debug("database migration completed",
			logger.String("db_type", dbType),
			logger.String("connection", connectionInfo),
			logger.Duration("duration", time.Since(migrationStart)))
	}

	return nil
}
