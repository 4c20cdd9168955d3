package counting

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/mqtt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testStart = time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testStart}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// setupStore returns a migrated in-memory datastore
func setupStore(t *testing.T) *datastore.DataStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(datastore.Models()...))

	return &datastore.DataStore{DB: db}
}

// bindArea creates an area and one binding on camera with zones "<camera>_in" / "<camera>_out"
func bindArea(t *testing.T, ds *datastore.DataStore, name string, kind datastore.AreaKind, capacity int, camera string) (*datastore.Area, *datastore.ZoneBinding) {
	t.Helper()
	ctx := context.Background()

	area := &datastore.Area{Name: name, Kind: kind, LimitMode: datastore.LimitSoft, Enabled: true}
	if capacity > 0 {
		area.Capacity = &capacity
	}
	require.NoError(t, ds.SaveArea(ctx, area))

	binding := &datastore.ZoneBinding{
		AreaID:     area.ID,
		Title:      name,
		CameraName: camera,
		ZoneIn:     camera + "_in",
		ZoneOut:    camera + "_out",
		Enabled:    true,
	}
	require.NoError(t, ds.SaveZoneBinding(ctx, binding))
	return area, binding
}

func testSettings() conf.CountingSettings {
	return conf.CountingSettings{
		DebounceWindow:      5 * time.Second,
		InactivityTimeout:   30 * time.Second,
		WarningFraction:     0.9,
		ConfidenceThreshold: 0.5,
		ActiveObjects:       []string{"person", "vehicle"},
	}
}

// newTestEngine builds an engine over ds with bindings already loaded
func newTestEngine(t *testing.T, ds *datastore.DataStore, clock Clock, publisher Publisher) *Engine {
	t.Helper()

	opts := &Options{Clock: clock, Loader: ds, Ledger: ds, Settings: testSettings()}
	if publisher != nil {
		opts.Publisher = publisher
	}
	e, err := NewEngine(opts)
	require.NoError(t, err)
	require.NoError(t, e.loadBindings(context.Background()))
	return e
}

// payload builds an event message for one object
func payload(t *testing.T, camera, id, label string, zones ...string) []byte {
	t.Helper()
	if zones == nil {
		zones = []string{}
	}
	side := &ObjectState{ID: id, Label: label, Camera: camera, CurrentZones: zones, Score: 0.9}
	data, err := json.Marshal(Event{Type: "update", Camera: camera, Before: side, After: side})
	require.NoError(t, err)
	return data
}

func countEvents(t *testing.T, ds *datastore.DataStore, eventType datastore.EventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, ds.DB.Model(&datastore.CountingEvent{}).Where("type = ?", eventType).Count(&n).Error)
	return n
}

func occupancy(t *testing.T, ds *datastore.DataStore, areaID uint) int {
	t.Helper()
	area, err := ds.GetArea(context.Background(), areaID)
	require.NoError(t, err)
	return area.CurrentOccupancy
}

type publishedTransition struct {
	areaID uint
	event  datastore.CountingEvent
	totals mqtt.Totals
}

// recordingPublisher keeps everything the engine publishes.
type recordingPublisher struct {
	mu          sync.Mutex
	transitions []publishedTransition
	alerts      []datastore.CountingEvent
}

func (p *recordingPublisher) PublishTransition(_ context.Context, area *datastore.Area, event *datastore.CountingEvent, totals mqtt.Totals) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, publishedTransition{areaID: area.ID, event: *event, totals: totals})
	return nil
}

func (p *recordingPublisher) PublishAlert(_ context.Context, _ *datastore.Area, alert *datastore.CountingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, *alert)
	return nil
}

// blockingPublisher holds every publish until release is closed.
type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (p *blockingPublisher) PublishTransition(_ context.Context, _ *datastore.Area, _ *datastore.CountingEvent, _ mqtt.Totals) error {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return nil
}

func (p *blockingPublisher) PublishAlert(context.Context, *datastore.Area, *datastore.CountingEvent) error {
	<-p.release
	return nil
}

func (p *blockingPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
