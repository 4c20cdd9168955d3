// sampler.go: periodic occupancy snapshots and retention cleanup
package counting

import (
	"context"
	"time"

	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/logger"
)

// SnapshotStore is the part of the datastore the sampler needs.
type SnapshotStore interface {
	SnapshotMeasurements(ctx context.Context, now time.Time) (int, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (datastore.PurgeResult, error)
}

// Sampler writes OccupancyMeasurement rows on a fixed cadence and purges
// rows past the retention period.
type Sampler struct {
	store           SnapshotStore
	clock           Clock
	interval        time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	batchSize       int
}

// NewSampler creates a sampler from the counting settings. A zero interval
// disables the matching job; zero retention days disables cleanup.
func NewSampler(store SnapshotStore, clock Clock, settings *conf.CountingSettings) *Sampler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Sampler{
		store:           store,
		clock:           clock,
		interval:        settings.MeasurementInterval,
		cleanupInterval: settings.CleanupInterval,
		retention:       time.Duration(settings.RetentionDays) * 24 * time.Hour,
		batchSize:       datastore.DefaultPurgeBatchSize,
	}
}

// Run ticks until ctx is cancelled. Job errors are logged, never returned.
func (s *Sampler) Run(ctx context.Context) error {
	snapshotC, stopSnapshot := ticker(s.interval)
	defer stopSnapshot()
	cleanupC, stopCleanup := ticker(s.cleanupInterval)
	defer stopCleanup()

	log := GetLogger()
	log.Info("measurement sampler started",
		logger.Duration("interval", s.interval),
		logger.Duration("cleanup_interval", s.cleanupInterval),
		logger.Duration("retention", s.retention))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-snapshotC:
			if _, err := s.Snapshot(ctx); err != nil {
				log.Error("failed to write occupancy measurements", logger.Error(err))
			}
		case <-cleanupC:
			if _, err := s.Cleanup(ctx); err != nil && ctx.Err() == nil {
				log.Error("retention cleanup failed", logger.Error(err))
			}
		}
	}
}

// Snapshot writes one measurement per enabled area now.
func (s *Sampler) Snapshot(ctx context.Context) (int, error) {
	written, err := s.store.SnapshotMeasurements(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	GetLogger().Debug("occupancy measurements written", logger.Int("areas", written))
	return written, nil
}

// Cleanup purges events and measurements older than the retention period.
func (s *Sampler) Cleanup(ctx context.Context) (datastore.PurgeResult, error) {
	if s.retention <= 0 {
		return datastore.PurgeResult{}, nil
	}
	cutoff := s.clock.Now().Add(-s.retention)
	result, err := s.store.PurgeOlderThan(ctx, cutoff, s.batchSize)
	if err != nil {
		return result, err
	}
	if result.Events > 0 || result.Measurements > 0 {
		GetLogger().Info("retention cleanup completed",
			logger.Time("cutoff", cutoff),
			logger.Int64("events", result.Events),
			logger.Int64("measurements", result.Measurements))
	}
	return result, nil
}

// ticker returns a nil channel for a non-positive interval, which never fires.
func ticker(interval time.Duration) (<-chan time.Time, func()) {
	if interval <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(interval)
	return t.C, t.Stop
}
