package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jjm/models"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	a, err := NewSQLiteArchive(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteArchive_SaveAndQuery(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var events []models.ReadingEvent
	for i := 0; i < 10; i++ {
		events = append(events, models.ReadingEvent{
			SensorID:  "S0001",
			Type:      models.SensorFlow,
			Value:     float64(100 + i),
			Unit:      "L/min",
			Status:    models.StatusNormal,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	events = append(events, models.ReadingEvent{SensorID: "S0002", Type: models.SensorPH, Value: 7.2, Unit: "pH", Status: models.StatusNormal, Timestamp: base})

	require.NoError(t, a.SaveReadings(ctx, events))
	require.NoError(t, a.SaveReadings(ctx, nil))

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	all, err := a.Readings(ctx, "S0001", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 10)
	assert.Equal(t, 100.0, all[0].Value)
	assert.Equal(t, base, all[0].Timestamp)
	assert.Equal(t, models.SensorFlow, all[0].Type)

	window, err := a.Readings(ctx, "S0001", base.Add(2*time.Minute), base.Add(4*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, 102.0, window[0].Value)

	limited, err := a.Readings(ctx, "S0001", time.Time{}, time.Time{}, 4)
	require.NoError(t, err)
	require.Len(t, limited, 4)
	assert.Equal(t, 106.0, limited[0].Value, "limit keeps the newest readings")
	assert.Equal(t, 109.0, limited[3].Value)
	assert.True(t, limited[0].Timestamp.Before(limited[3].Timestamp))
}

func TestSQLiteArchive_Prune(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	now := time.Now().UTC()

	require.NoError(t, a.SaveReadings(ctx, []models.ReadingEvent{
		{SensorID: "S0001", Type: models.SensorFlow, Value: 1, Unit: "L/min", Status: models.StatusNormal, Timestamp: now.Add(-100 * 24 * time.Hour)},
		{SensorID: "S0001", Type: models.SensorFlow, Value: 2, Unit: "L/min", Status: models.StatusNormal, Timestamp: now.Add(-10 * 24 * time.Hour)},
		{SensorID: "S0001", Type: models.SensorFlow, Value: 3, Unit: "L/min", Status: models.StatusNormal, Timestamp: now},
	}))

	removed, err := a.Prune(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := a.Readings(ctx, "S0001", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, 2.0, left[0].Value)
}
