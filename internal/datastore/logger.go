package datastore

import (
	"time"

	"github.com/tphakala/occupancy-go/internal/logger"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
	gormlogger "gorm.io/gorm/logger"
)

// Metrics is a type alias for metrics.DatastoreMetrics so callers can wire
// datastore metrics without importing the metrics package.
type Metrics = metrics.DatastoreMetrics

// DefaultSlowQueryThreshold defines the duration after which a query is logged as slow.
const DefaultSlowQueryThreshold = 1 * time.Second

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// createGormLogger routes gorm's SQL logging into the datastore module.
func createGormLogger() gormlogger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold)
}
