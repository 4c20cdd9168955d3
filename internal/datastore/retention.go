package datastore

import (
	"context"
	"time"

	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
)

// DefaultPurgeBatchSize bounds the rows removed per delete statement.
const DefaultPurgeBatchSize = 1000

// PurgeResult reports rows removed by a retention pass.
type PurgeResult struct {
	Events       int64 `json:"events"`
	Measurements int64 `json:"measurements"`
}

// PurgeOlderThan deletes transition events and measurements with a timestamp
// before cutoff, in batches of batchSize rows. Areas and bindings are kept.
func (ds *DataStore) PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (result PurgeResult, err error) {
	start := time.Now()
	defer func() { ds.observe(metrics.OpPurge, start, err) }()

	if batchSize <= 0 {
		batchSize = DefaultPurgeBatchSize
	}

	result.Events, err = ds.purgeTable(ctx, &CountingEvent{}, "counting_events", cutoff, batchSize)
	if err != nil {
		return result, err
	}
	result.Measurements, err = ds.purgeTable(ctx, &Measurement{}, "measurements", cutoff, batchSize)
	return result, err
}

// purgeTable removes rows by primary key so the batch limit works on both dialects
func (ds *DataStore) purgeTable(ctx context.Context, model any, table string, cutoff time.Time, batchSize int) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var ids []uint
		if err := ds.DB.WithContext(ctx).Model(model).
			Where("ts < ?", cutoff.UTC()).
			Order("id").
			Limit(batchSize).
			Pluck("id", &ids).Error; err != nil {
			return total, dbError(err, "purge", errors.PriorityLow, "table", table)
		}
		if len(ids) == 0 {
			return total, nil
		}

		res := ds.DB.WithContext(ctx).Delete(model, ids)
		if res.Error != nil {
			return total, dbError(res.Error, "purge", errors.PriorityLow, "table", table)
		}
		total += res.RowsAffected
		if ds.metrics != nil {
			ds.metrics.RecordPurged(table, res.RowsAffected)
		}

		if len(ids) < batchSize {
			return total, nil
		}
	}
}
