// Package analysis wires the realtime counting service together.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/occupancy-go/internal/api"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/counting"
	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/logger"
	"github.com/tphakala/occupancy-go/internal/mqtt"
	"github.com/tphakala/occupancy-go/internal/observability"
	"golang.org/x/sync/errgroup"
)

const sentryFlushTimeout = 2 * time.Second

// GetLogger returns the analysis module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// RealtimeAnalysis runs the MQTT link, counting engine, measurement sampler
// and HTTP API until ctx is cancelled or one of them fails.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, "occupancy-go@"+settings.Version); err != nil {
			log.Warn("Sentry initialization failed, continuing without telemetry", logger.Error(err))
		}
		defer errors.FlushSentry(sentryFlushTimeout)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	store, err := OpenDataStore(ctx, settings)
	if err != nil {
		return err
	}
	defer closeDataStore(store)
	store.SetMetrics(metrics.Datastore)

	client, err := mqtt.NewClient(mqtt.ConfigFromSettings(settings), metrics.MQTT)
	if err != nil {
		return err
	}

	var (
		publisher counting.Publisher
		occupancy *mqtt.OccupancyPublisher
	)
	if settings.Realtime.MQTT.Publish.Enabled {
		occupancy = mqtt.NewOccupancyPublisher(client, settings.Realtime.MQTT.Publish)
		publisher = occupancy
	}

	engine, err := counting.NewEngine(&counting.Options{
		Loader:    store,
		Ledger:    store,
		Publisher: publisher,
		Metrics:   metrics.Counting,
		Connected: client.IsConnected,
		Settings:  settings.Counting,
	})
	if err != nil {
		return err
	}
	sampler := counting.NewSampler(store, nil, &settings.Counting)

	var server *api.Server
	if settings.WebServer.Enabled {
		server, err = api.New(settings,
			api.WithDataStore(store),
			api.WithEngine(engine),
			api.WithMetrics(metrics))
		if err != nil {
			return err
		}
	}

	log.Info("Starting occupancy counting in realtime mode",
		logger.String("broker", settings.Realtime.MQTT.Broker),
		logger.String("topic", mqtt.EventsTopic(settings.Realtime.MQTT.TopicPrefix)),
		logger.Duration("debounce_window", settings.Counting.DebounceWindow),
		logger.Duration("inactivity_timeout", settings.Counting.InactivityTimeout),
		logger.Float64("warning_fraction", settings.Counting.WarningFraction),
		logger.Bool("publish", settings.Realtime.MQTT.Publish.Enabled))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := client.Connect(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}
		if occupancy != nil && settings.Realtime.MQTT.Publish.HomeAssistant.Enabled {
			publishDiscovery(gctx, client, occupancy, store, settings)
		}
		return nil
	})

	g.Go(func() error {
		return engine.Run(gctx, client.Messages())
	})

	g.Go(func() error {
		return sampler.Run(gctx)
	})

	if server != nil {
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	// disconnecting closes the message queue, which ends engine.Run once
	// the in-flight message is done
	g.Go(func() error {
		<-gctx.Done()
		client.Disconnect()
		return nil
	})

	err = g.Wait()
	if err != nil {
		log.Error("Realtime counting stopped with error", logger.Error(err))
		return err
	}
	log.Info("Realtime counting stopped")
	return nil
}

// OpenDataStore opens the configured store and seeds the default areas
// on an empty database when counting.seed_defaults is set.
func OpenDataStore(ctx context.Context, settings *conf.Settings) (datastore.Interface, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, errors.Newf("no database output is enabled").
			Category(errors.CategoryConfiguration).
			Context("setting", "output").
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	if settings.Counting.SeedDefaults {
		created, err := store.SeedDefaultAreas(ctx)
		if err != nil {
			closeDataStore(store)
			return nil, err
		}
		if created > 0 {
			GetLogger().Info("Seeded default areas", logger.Int("count", created))
		}
	}
	return store, nil
}

func publishDiscovery(ctx context.Context, client mqtt.Publisher, occupancy *mqtt.OccupancyPublisher, store datastore.Interface, settings *conf.Settings) {
	log := GetLogger()
	ha := settings.Realtime.MQTT.Publish.HomeAssistant

	areas, err := store.GetAreas(ctx)
	if err != nil {
		log.Warn("Cannot load areas for Home Assistant discovery", logger.Error(err))
		return
	}

	discovery := mqtt.NewDiscoveryPublisher(client, occupancy, &mqtt.DiscoveryConfig{
		DiscoveryPrefix:   ha.DiscoveryPrefix,
		DeviceName:        ha.DeviceName,
		NodeID:            mqtt.SanitizeID(settings.Main.Name),
		Version:           settings.Version,
		AvailabilityTopic: mqtt.ConfigFromSettings(settings).StatusTopic,
	})
	if err := discovery.PublishDiscovery(ctx, areas); err != nil {
		log.Warn("Home Assistant discovery incomplete", logger.Error(err))
	}
}

// closeDataStore closes the database connection and logs the result.
func closeDataStore(store datastore.Interface) {
	log := GetLogger()
	if err := store.Close(); err != nil {
		log.Error("Failed to close database", logger.Error(err))
		return
	}
	log.Info("Database closed")
}
