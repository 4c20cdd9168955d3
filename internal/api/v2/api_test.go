package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/occupancy-go/internal/api/middleware"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/counting"
	"github.com/tphakala/occupancy-go/internal/datastore"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeEngine records reloads and serves a fixed status
type fakeEngine struct {
	mu        sync.Mutex
	reloads   int
	reloadErr error
	status    counting.Status
}

func (f *fakeEngine) Status() counting.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return f.reloadErr
}

func (f *fakeEngine) reloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}

// setupTestStore opens a migrated SQLite store in a temp directory
func setupTestStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "occupancy.db")

	store, ok := datastore.New(settings).(*datastore.SQLiteStore)
	require.True(t, ok)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// setupTestController wires a controller with request ids onto a fresh echo instance
func setupTestController(t *testing.T, engine EngineControl) (*echo.Echo, *datastore.SQLiteStore, *Controller) {
	t.Helper()

	store := setupTestStore(t)
	e := echo.New()
	e.Use(middleware.NewRequestID())

	opts := []Option{WithClock(func() time.Time { return testNow })}
	if engine != nil {
		opts = append(opts, WithEngine(engine))
	}
	settings := &conf.Settings{Version: "test"}
	controller, err := New(e, store, settings, opts...)
	require.NoError(t, err)
	t.Cleanup(controller.Shutdown)

	return e, store, controller
}

// seedArea stores an area and commits the given transitions at ts
func seedArea(t *testing.T, store datastore.Interface, name string, capacity int, ts time.Time, directions ...datastore.EventType) *datastore.Area {
	t.Helper()
	ctx := context.Background()

	area := &datastore.Area{Name: name, Kind: datastore.KindPerson, LimitMode: datastore.LimitSoft, Enabled: true}
	if capacity > 0 {
		area.Capacity = &capacity
	}
	require.NoError(t, store.SaveArea(ctx, area))

	for i, direction := range directions {
		_, _, err := store.Commit(ctx, datastore.Transition{
			AreaID:     area.ID,
			Direction:  direction,
			ObjectID:   fmt.Sprintf("obj-%d", i),
			ObjectKind: string(datastore.KindPerson),
			Zone:       name + "_" + string(direction),
			Confidence: 0.9,
			Timestamp:  ts.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	return area
}

// doRequest serves one request through e and returns the recorder
func doRequest(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewRequiresDatastore(t *testing.T) {
	t.Parallel()

	_, err := New(echo.New(), nil, nil)
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{status: counting.Status{Running: true, Connected: true}}
	e, _, _ := setupTestController(t, engine)

	rec := doRequest(t, e, http.MethodGet, "/api/v2/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database_status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, true, body["mqtt_connected"])
}

func TestGetAreas(t *testing.T) {
	t.Parallel()
	e, store, _ := setupTestController(t, nil)

	seedArea(t, store, "Lobby", 4, testNow.Add(-time.Hour),
		datastore.EventEnter, datastore.EventEnter, datastore.EventEnter)
	seedArea(t, store, "Atrium", 0, testNow.Add(-time.Hour), datastore.EventEnter)

	rec := doRequest(t, e, http.MethodGet, "/api/v2/areas", "")
	require.Equal(t, http.StatusOK, rec.Code)

	areas := decode[[]datastore.AreaOccupancy](t, rec)
	require.Len(t, areas, 2)
	byName := map[string]datastore.AreaOccupancy{}
	for _, a := range areas {
		byName[a.Name] = a
	}
	assert.Equal(t, 3, byName["Lobby"].Occupancy)
	assert.InDelta(t, 75.0, byName["Lobby"].Percentage, 1e-9)
	assert.Equal(t, datastore.ColorYellow, byName["Lobby"].Color)
	assert.Zero(t, byName["Atrium"].Percentage)
}

func TestGetRecentEvents(t *testing.T) {
	t.Parallel()
	e, store, _ := setupTestController(t, nil)

	seedArea(t, store, "Lobby", 0, testNow.Add(-10*time.Minute), datastore.EventEnter, datastore.EventExit)
	seedArea(t, store, "Yard", 0, testNow.Add(-3*time.Hour), datastore.EventEnter)

	rec := doRequest(t, e, http.MethodGet, "/api/v2/events/recent?minutes=60", "")
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]datastore.RecentEvent](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, datastore.EventExit, events[0].Type, "newest first")
	assert.Equal(t, "Lobby", events[0].AreaName)

	rec = doRequest(t, e, http.MethodGet, "/api/v2/events/recent?minutes=600&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]datastore.RecentEvent](t, rec), 1)
}

func TestInvalidParameters(t *testing.T) {
	t.Parallel()
	e, _, _ := setupTestController(t, nil)

	testCases := []struct {
		name   string
		target string
	}{
		{"minutes not a number", "/api/v2/events/recent?minutes=abc"},
		{"limit too large", "/api/v2/events/recent?limit=100000"},
		{"bad date", "/api/v2/rollups/hourly?date=14-03-2025"},
		{"bad area id", "/api/v2/rollups/hourly?area_id=-1"},
		{"reversed range", "/api/v2/rollups/daily?start=2025-03-14&end=2025-03-01"},
		{"unknown view", "/api/v2/summary?view=year"},
		{"unknown group", "/api/v2/history?group_by=decade"},
		{"bad path id", "/api/v2/areas/zero/measurements"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, e, http.MethodGet, tc.target, "")
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.NotEmpty(t, resp.CorrelationID)
			assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), resp.CorrelationID)
		})
	}
}

func TestRollups(t *testing.T) {
	t.Parallel()
	e, store, _ := setupTestController(t, nil)

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	lobby := seedArea(t, store, "Lobby", 0, day.Add(8*time.Hour),
		datastore.EventEnter, datastore.EventEnter, datastore.EventExit)
	seedArea(t, store, "Yard", 0, day.Add(-22*time.Hour), datastore.EventEnter)

	rec := doRequest(t, e, http.MethodGet, "/api/v2/rollups/hourly?date=2025-03-14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hourly := decode[[]datastore.RollupBucket](t, rec)
	require.Len(t, hourly, 1)
	assert.Equal(t, datastore.RollupBucket{Bucket: "08", In: 2, Out: 1, Total: 3}, hourly[0])

	rec = doRequest(t, e, http.MethodGet, "/api/v2/rollups/daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	daily := decode[[]datastore.RollupBucket](t, rec)
	require.Len(t, daily, 2, "default window covers the last seven days")
	assert.Equal(t, "2025-03-13", daily[0].Bucket)
	assert.Equal(t, int64(2), daily[1].In)

	rec = doRequest(t, e, http.MethodGet, fmt.Sprintf("/api/v2/rollups/daily?start=2025-03-14&end=2025-03-14&area_id=%d", lobby.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	filtered := decode[[]datastore.RollupBucket](t, rec)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(1), filtered[0].Out)
}

func TestAlertStatsAndTopAreas(t *testing.T) {
	t.Parallel()
	e, store, _ := setupTestController(t, nil)
	ctx := context.Background()

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	lobby := seedArea(t, store, "Lobby", 2, day.Add(9*time.Hour),
		datastore.EventEnter, datastore.EventEnter, datastore.EventEnter)
	seedArea(t, store, "Yard", 0, day.Add(10*time.Hour), datastore.EventEnter)

	_, err := store.RecordAlert(ctx, lobby.ID, datastore.EventWarning, 1, day.Add(9*time.Hour))
	require.NoError(t, err)
	_, err = store.RecordAlert(ctx, lobby.ID, datastore.EventExceeded, 2, day.Add(9*time.Hour+time.Minute))
	require.NoError(t, err)

	rec := doRequest(t, e, http.MethodGet, "/api/v2/alerts/stats?start=2025-03-14&end=2025-03-14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[datastore.AlertStats](t, rec)
	assert.Equal(t, int64(1), stats.WarningsCount)
	assert.Equal(t, int64(1), stats.ExceededCount)
	require.NotNil(t, stats.LastAlert)
	assert.Equal(t, datastore.EventExceeded, stats.LastAlert.Type)

	rec = doRequest(t, e, http.MethodGet, "/api/v2/areas/top?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[[]datastore.AreaVolume](t, rec)
	require.Len(t, top, 1)
	assert.Equal(t, "Lobby", top[0].Name)
	assert.Equal(t, int64(3), top[0].In)
}

func TestSummaryStatsHistory(t *testing.T) {
	t.Parallel()
	e, store, _ := setupTestController(t, nil)

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	seedArea(t, store, "Lobby", 0, day.Add(8*time.Hour), datastore.EventEnter, datastore.EventExit)

	rec := doRequest(t, e, http.MethodGet, "/api/v2/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[datastore.Summary](t, rec)
	require.Len(t, summary.Labels, 24)
	assert.Equal(t, int64(1), summary.In[8])
	assert.Equal(t, int64(1), summary.Out[8])

	rec = doRequest(t, e, http.MethodGet, "/api/v2/summary?view=week&date=2025-03-14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[datastore.Summary](t, rec).Labels, 7)

	rec = doRequest(t, e, http.MethodGet, "/api/v2/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[datastore.Stats](t, rec)
	assert.Equal(t, int64(2), stats.EventsToday)
	assert.Equal(t, int64(1), stats.ActiveAreas)

	rec = doRequest(t, e, http.MethodGet, "/api/v2/history?group_by=day", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]datastore.HistoryBucket](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "2025-03-14", history[0].Bucket)
	assert.Equal(t, int64(2), history[0].Total)
}

func TestQueryCacheIsFlushedByReset(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	e, store, _ := setupTestController(t, engine)

	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	area := seedArea(t, store, "Lobby", 0, day.Add(8*time.Hour), datastore.EventEnter)

	target := "/api/v2/rollups/hourly?date=2025-03-14"
	first := decode[[]datastore.RollupBucket](t, doRequest(t, e, http.MethodGet, target, ""))
	require.Len(t, first, 1)

	_, _, err := store.Commit(context.Background(), datastore.Transition{
		AreaID: area.ID, Direction: datastore.EventEnter, Timestamp: day.Add(9 * time.Hour),
	})
	require.NoError(t, err)

	cached := decode[[]datastore.RollupBucket](t, doRequest(t, e, http.MethodGet, target, ""))
	assert.Len(t, cached, 1, "served from cache")

	rec := doRequest(t, e, http.MethodPost, fmt.Sprintf("/api/v2/areas/%d/reset", area.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	fresh := decode[[]datastore.RollupBucket](t, doRequest(t, e, http.MethodGet, target, ""))
	assert.Len(t, fresh, 2)
}

func TestResetArea(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	e, store, _ := setupTestController(t, engine)

	area := seedArea(t, store, "Lobby", 10, testNow.Add(-time.Hour),
		datastore.EventEnter, datastore.EventEnter, datastore.EventEnter)

	rec := doRequest(t, e, http.MethodPost, fmt.Sprintf("/api/v2/areas/%d/reset", area.ID), `{"value": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[datastore.Area](t, rec)
	assert.Equal(t, 1, updated.CurrentOccupancy)
	assert.Equal(t, 1, engine.reloadCount(), "alert state is reseeded")

	rec = doRequest(t, e, http.MethodPost, fmt.Sprintf("/api/v2/areas/%d/reset", area.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[datastore.Area](t, rec).CurrentOccupancy)

	rec = doRequest(t, e, http.MethodPost, fmt.Sprintf("/api/v2/areas/%d/reset", area.ID), `{"value": -2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, e, http.MethodPost, "/api/v2/areas/999/reset", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMeasurements(t *testing.T) {
	t.Parallel()
	e, store, _ := setupTestController(t, nil)
	ctx := context.Background()

	area := seedArea(t, store, "Lobby", 4, testNow.Add(-2*time.Hour), datastore.EventEnter)
	require.NoError(t, store.SaveMeasurement(ctx, &datastore.Measurement{AreaID: area.ID, Occupancy: 1, Density: 0.25, Timestamp: testNow.Add(-time.Hour)}))
	require.NoError(t, store.SaveMeasurement(ctx, &datastore.Measurement{AreaID: area.ID, Occupancy: 2, Density: 0.5, Timestamp: testNow.Add(-30 * time.Hour)}))

	rec := doRequest(t, e, http.MethodGet, fmt.Sprintf("/api/v2/areas/%d/measurements", area.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	measurements := decode[[]datastore.Measurement](t, rec)
	require.Len(t, measurements, 1)
	assert.Equal(t, 1, measurements[0].Occupancy)

	rec = doRequest(t, e, http.MethodGet, fmt.Sprintf("/api/v2/areas/%d/measurements?hours=48", area.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]datastore.Measurement](t, rec), 2)

	rec = doRequest(t, e, http.MethodGet, "/api/v2/areas/404/measurements", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndReload(t *testing.T) {
	t.Parallel()
	reloadedAt := testNow.Add(-time.Minute)
	engine := &fakeEngine{status: counting.Status{
		Running:           true,
		ZoneConfigsLoaded: 3,
		LastReload:        reloadedAt,
		AcceptedByCamera:  map[string]uint64{"lobby_cam": 4},
	}}
	e, _, _ := setupTestController(t, engine)

	rec := doRequest(t, e, http.MethodGet, "/api/v2/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[counting.Status](t, rec)
	assert.True(t, status.Running)
	assert.Equal(t, uint64(4), status.AcceptedByCamera["lobby_cam"])

	rec = doRequest(t, e, http.MethodPost, "/api/v2/zones/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["reloaded"])
	assert.Equal(t, float64(3), body["zone_configs_loaded"])
	assert.Equal(t, 1, engine.reloadCount())
}

func TestReloadFailure(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{reloadErr: fmt.Errorf("database is locked")}
	e, _, _ := setupTestController(t, engine)

	rec := doRequest(t, e, http.MethodPost, "/api/v2/zones/reload", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "database is locked")
}

func TestEngineEndpointsWithoutEngine(t *testing.T) {
	t.Parallel()
	e, _, _ := setupTestController(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, e, http.MethodGet, "/api/v2/status", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, e, http.MethodPost, "/api/v2/zones/reload", "").Code)
}
