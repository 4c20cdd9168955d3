package analysis

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/errors"
)

func realtimeSettings(t *testing.T) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{Version: "test"}
	settings.Main.Name = "test-node"
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "occupancy.db")
	// nothing listens on port 1, every connection attempt is refused
	settings.Realtime.MQTT.Broker = "tcp://127.0.0.1:1"
	settings.Realtime.MQTT.TopicPrefix = "frigate"
	settings.Realtime.MQTT.ReconnectInterval = 20 * time.Millisecond
	settings.Realtime.MQTT.ConnectTimeout = time.Second
	settings.Counting.WarningFraction = 0.9
	settings.Counting.DebounceWindow = 2 * time.Second
	settings.Counting.InactivityTimeout = 30 * time.Second
	settings.Counting.SeedDefaults = true
	return settings
}

func TestRealtimeAnalysisStopsOnCancel(t *testing.T) {
	settings := realtimeSettings(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RealtimeAnalysis(ctx, settings) }()

	// let the MQTT link fail and retry a few times
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("realtime analysis did not stop")
	}

	store, err := OpenDataStore(context.Background(), settings)
	require.NoError(t, err)
	t.Cleanup(func() { closeDataStore(store) })

	areas, err := store.GetAreas(context.Background())
	require.NoError(t, err)
	assert.Len(t, areas, 3, "default areas seeded once")
}

func TestRealtimeAnalysisRequiresBroker(t *testing.T) {
	settings := realtimeSettings(t)
	settings.Realtime.MQTT.Broker = ""

	err := RealtimeAnalysis(context.Background(), settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOpenDataStoreWithoutOutput(t *testing.T) {
	_, err := OpenDataStore(context.Background(), &conf.Settings{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
