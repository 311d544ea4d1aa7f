package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jjm/models"
	"jjm/store"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// seqRand replays a fixed sequence of draws, repeating the last one
type seqRand struct {
	mu   sync.Mutex
	vals []float64
	i    int
}

func (r *seqRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.i >= len(r.vals) {
		return r.vals[len(r.vals)-1]
	}
	v := r.vals[r.i]
	r.i++
	return v
}

func flowSensor(id, area string) *models.Sensor {
	return &models.Sensor{
		ID: id, Type: models.SensorFlow, Region: "North Zone", Area: area,
		Location: area + ", Bangalore", Unit: "L/min",
		ThresholdMin: 80, ThresholdMax: 150, Status: models.StatusNormal,
	}
}

func phSensor(id, area string) *models.Sensor {
	return &models.Sensor{
		ID: id, Type: models.SensorPH, Region: "South Zone", Area: area,
		Location: area + ", Bangalore", Unit: "pH",
		ThresholdMin: 7, ThresholdMax: 8, Status: models.StatusNormal,
	}
}

func newServiceStore(t *testing.T, seed store.Dataset) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore(store.NewMemoryKV(), zap.NewNop(), store.Options{
		HistoryCapacity:  5,
		AlertCapacity:    10,
		ActivityCapacity: 10,
		Seed:             func(time.Time) store.Dataset { return seed },
		Now:              func() time.Time { return testNow },
	})
	require.NoError(t, st.Init(context.Background()))
	return st
}

type recordingNotifier struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []models.Alert
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(_ context.Context, alert models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) received() []models.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Alert(nil), n.alerts...)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (d *recordingDispatcher) Dispatch(alert models.Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, alert)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.ReadingEvent
}

func (s *recordingSink) HandleReadings(_ context.Context, events []models.ReadingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) received() []models.ReadingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ReadingEvent(nil), s.events...)
}
