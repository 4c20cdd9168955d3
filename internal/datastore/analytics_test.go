package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTestData creates two areas with a known transition pattern on testDay:
// Lobby: 3 enters at 08:xx, 1 exit at 09:10, exceeded alert at 08:40.
// Garage: 1 enter at 09:30, 1 enter the previous day.
func seedTestData(t *testing.T, ds *DataStore) (lobby, garage *Area) {
	t.Helper()
	ctx := context.Background()

	lobby = createArea(t, ds, "Lobby", KindPerson, 2)
	garage = createArea(t, ds, "Garage", KindVehicle, 10)

	commitAt(t, ds, lobby.ID, EventEnter, testDay.Add(8*time.Hour+5*time.Minute))
	commitAt(t, ds, lobby.ID, EventEnter, testDay.Add(8*time.Hour+20*time.Minute))
	commitAt(t, ds, lobby.ID, EventEnter, testDay.Add(8*time.Hour+40*time.Minute))
	commitAt(t, ds, lobby.ID, EventExit, testDay.Add(9*time.Hour+10*time.Minute))
	commitAt(t, ds, garage.ID, EventEnter, testDay.Add(9*time.Hour+30*time.Minute))
	commitAt(t, ds, garage.ID, EventEnter, testDay.Add(-2*time.Hour))

	_, err := ds.RecordAlert(ctx, lobby.ID, EventExceeded, 2, testDay.Add(8*time.Hour+20*time.Minute))
	require.NoError(t, err)

	binding := &ZoneBinding{AreaID: lobby.ID, CameraName: "lobby_cam", ZoneIn: "in", ZoneOut: "out", Enabled: true}
	require.NoError(t, ds.SaveZoneBinding(ctx, binding))
	return lobby, garage
}

func TestOccupancyColor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		percentage float64
		want       string
	}{
		{0, ColorGreen}, {59.9, ColorGreen}, {60, ColorYellow}, {79.9, ColorYellow},
		{80, ColorOrange}, {99.9, ColorOrange}, {100, ColorRed}, {150, ColorRed},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, OccupancyColor(tc.percentage), "percentage %v", tc.percentage)
	}
}

func TestGetAreaOccupancy(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)
	createArea(t, ds, "Atrium", KindPerson, 0)

	occupancy, err := ds.GetAreaOccupancy(context.Background())
	require.NoError(t, err)
	require.Len(t, occupancy, 3)

	byName := make(map[string]AreaOccupancy)
	for _, o := range occupancy {
		byName[o.Name] = o
	}

	assert.Equal(t, 2, byName["Lobby"].Occupancy)
	assert.InDelta(t, 100.0, byName["Lobby"].Percentage, 1e-9)
	assert.Equal(t, ColorRed, byName["Lobby"].Color)

	assert.Equal(t, 2, byName["Garage"].Occupancy)
	assert.InDelta(t, 20.0, byName["Garage"].Percentage, 1e-9)
	assert.Equal(t, ColorGreen, byName["Garage"].Color)

	assert.Zero(t, byName["Atrium"].Percentage, "no capacity means no percentage")
}

func TestGetRecentEvents(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	events, err := ds.GetRecentEvents(context.Background(), testDay.Add(9*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Garage", events[0].AreaName, "newest first")
	assert.Equal(t, EventExit, events[1].Type)
	assert.Equal(t, "Lobby", events[1].AreaName)

	limited, err := ds.GetRecentEvents(context.Background(), testDay.Add(-24*time.Hour), 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestGetHourlyRollup(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	lobby, _ := seedTestData(t, ds)
	ctx := context.Background()

	buckets, err := ds.GetHourlyRollup(ctx, testDay.Add(15*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, RollupBucket{Bucket: "08", In: 3, Out: 0, Total: 3}, buckets[0])
	assert.Equal(t, RollupBucket{Bucket: "09", In: 1, Out: 1, Total: 2}, buckets[1])

	lobbyOnly, err := ds.GetHourlyRollup(ctx, testDay, lobby.ID)
	require.NoError(t, err)
	require.Len(t, lobbyOnly, 2)
	assert.Equal(t, int64(0), lobbyOnly[1].In)
	assert.Equal(t, int64(1), lobbyOnly[1].Out)
}

func TestGetDailyRollup(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)
	ctx := context.Background()

	buckets, err := ds.GetDailyRollup(ctx, testDay.AddDate(0, 0, -1), testDay, 0)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "2025-03-13", buckets[0].Bucket)
	assert.Equal(t, int64(1), buckets[0].In)
	assert.Equal(t, "2025-03-14", buckets[1].Bucket)
	assert.Equal(t, int64(4), buckets[1].In)
	assert.Equal(t, int64(1), buckets[1].Out)

	_, err = ds.GetDailyRollup(ctx, testDay, testDay.AddDate(0, 0, -2), 0)
	assert.Error(t, err)
}

func TestGetAlertStats(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	lobby, _ := seedTestData(t, ds)
	ctx := context.Background()

	_, err := ds.RecordAlert(ctx, lobby.ID, EventWarning, 1, testDay.Add(10*time.Hour))
	require.NoError(t, err)

	stats, err := ds.GetAlertStats(ctx, testDay, testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.WarningsCount)
	assert.Equal(t, int64(1), stats.ExceededCount)
	require.NotNil(t, stats.LastAlert)
	assert.Equal(t, EventWarning, stats.LastAlert.Type)

	empty, err := ds.GetAlertStats(ctx, testDay.AddDate(0, 0, 5), testDay.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Nil(t, empty.LastAlert)
	assert.Zero(t, empty.ExceededCount)
}

func TestGetTopAreas(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	top, err := ds.GetTopAreas(context.Background(), testDay, testDay.AddDate(0, 0, 1), 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Lobby", top[0].Name)
	assert.Equal(t, int64(4), top[0].Events)
	assert.Equal(t, int64(3), top[0].In)
	assert.Equal(t, int64(1), top[0].Out)
	assert.Equal(t, "Garage", top[1].Name)
	assert.Equal(t, int64(1), top[1].Events, "previous day excluded")
}

func TestGetSummary(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)
	ctx := context.Background()

	day, err := ds.GetSummary(ctx, ViewDay, testDay)
	require.NoError(t, err)
	require.Len(t, day.Labels, 24)
	assert.Equal(t, "08", day.Labels[8])
	assert.Equal(t, int64(3), day.In[8])
	assert.Equal(t, int64(1), day.Out[9])
	assert.Zero(t, day.In[0])

	week, err := ds.GetSummary(ctx, ViewWeek, testDay)
	require.NoError(t, err)
	require.Len(t, week.Labels, 7)
	assert.Equal(t, "2025-03-08", week.Labels[0])
	assert.Equal(t, "2025-03-14", week.Labels[6])
	assert.Equal(t, int64(1), week.In[5])
	assert.Equal(t, int64(4), week.In[6])

	month, err := ds.GetSummary(ctx, ViewMonth, testDay)
	require.NoError(t, err)
	assert.Len(t, month.Labels, 31)
	assert.Equal(t, int64(4), month.In[13])

	_, err = ds.GetSummary(ctx, "year", testDay)
	assert.Error(t, err)
}

func TestGetStats(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)

	stats, err := ds.GetStats(context.Background(), testDay.Add(12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.TotalEvents, "alerts are not transitions")
	assert.Equal(t, int64(5), stats.EventsToday)
	assert.Equal(t, int64(2), stats.ActiveAreas)
	assert.Equal(t, int64(1), stats.ActiveCameras)
	assert.Equal(t, int64(4), stats.TotalOccupancy)
}

func TestGetHistory(t *testing.T) {
	t.Parallel()
	ds := setupTestDB(t)
	seedTestData(t, ds)
	ctx := context.Background()

	history, err := ds.GetHistory(ctx, "day", testDay.AddDate(0, 0, -1), testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2025-03-14", history[1].Bucket)
	assert.Equal(t, int64(6), history[1].Total)
	assert.Equal(t, int64(4), history[1].ByType["enter"])
	assert.Equal(t, int64(1), history[1].ByType["exit"])
	assert.Equal(t, int64(1), history[1].ByType["exceeded"])

	hourly, err := ds.GetHistory(ctx, "hour", testDay, testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.NotEmpty(t, hourly)
	assert.Equal(t, "2025-03-14 08:00", hourly[0].Bucket)

	_, err = ds.GetHistory(ctx, "decade", testDay, testDay)
	assert.Error(t, err)
}
