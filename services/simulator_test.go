package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jjm/models"
	"jjm/store"
)

func newTestSimulator(t *testing.T, draws []float64) (*SimulatorService, *store.MemoryStore, *recordingDispatcher, *recordingSink) {
	t.Helper()
	st := newServiceStore(t, store.Dataset{
		Sensors: []*models.Sensor{phSensor("S0002", "Jayanagar"), flowSensor("S0001", "Hebbal")},
	})
	dispatcher := &recordingDispatcher{}
	sink := &recordingSink{}
	sim := NewSimulatorService(st, NewReadingGenerator(&seqRand{vals: draws}, 0.05), SimulatorOptions{
		Interval: 10 * time.Millisecond,
		Now:      func() time.Time { return testNow },
		Alerts:   dispatcher,
		Sinks:    []ReadingSink{sink},
	}, zap.NewNop())
	return sim, st, dispatcher, sink
}

func TestSimulator_TickClassifiesAndAlerts(t *testing.T) {
	// S0001 draws a critical low flow, S0002 a normal pH
	sim, st, dispatcher, sink := newTestSimulator(t, []float64{0.01, 0.2, 0, 0.5, 0.5})

	result, err := sim.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Readings, 2)
	require.Len(t, result.Alerts, 1)

	alert := result.Alerts[0]
	assert.Equal(t, "S0001", alert.SensorID)
	assert.Equal(t, models.AlertCritical, alert.Severity)
	assert.Equal(t, "FLOW sensor S0001 at Hebbal, Bangalore - critical", alert.Message)
	assert.Equal(t, "50.00 L/min", alert.Value)
	assert.Equal(t, testNow, alert.Timestamp)

	flow, err := st.Sensor("S0001")
	require.NoError(t, err)
	assert.Equal(t, 50.0, flow.CurrentValue)
	assert.Equal(t, models.StatusCritical, flow.Status)
	assert.Equal(t, testNow, flow.LastUpdate)
	assert.Equal(t, 1, flow.History.Len())

	ph, err := st.Sensor("S0002")
	require.NoError(t, err)
	assert.Equal(t, 7.5, ph.CurrentValue)
	assert.Equal(t, models.StatusNormal, ph.Status)

	assert.Len(t, st.Alerts(0), 1)
	assert.Len(t, dispatcher.alerts, 1)
	assert.Len(t, sink.received(), 2)
	assert.Equal(t, uint64(1), sim.Status().Ticks)
}

func TestSimulator_HistoryIsBounded(t *testing.T) {
	sim, st, _, _ := newTestSimulator(t, []float64{0.5})

	for i := 0; i < 12; i++ {
		_, err := sim.Tick(context.Background())
		require.NoError(t, err)
	}

	sensor, err := st.Sensor("S0001")
	require.NoError(t, err)
	assert.Equal(t, 5, sensor.History.Len())
}

func TestSimulator_PausedTickIsSkipped(t *testing.T) {
	sim, st, _, sink := newTestSimulator(t, []float64{0.5})

	sim.Pause()
	assert.True(t, sim.Paused())
	result, err := sim.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, sink.received())

	sensor, _ := st.Sensor("S0001")
	assert.Equal(t, 0, sensor.History.Len())

	sim.Resume()
	result, err = sim.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Len(t, result.Readings, 2)
}

func TestSimulator_Ingest(t *testing.T) {
	sim, st, dispatcher, sink := newTestSimulator(t, []float64{0.5})
	at := testNow.Add(time.Minute)

	event, err := sim.Ingest(context.Background(), "S0001", 195.004, at)
	require.NoError(t, err)
	assert.Equal(t, "S0001", event.SensorID)
	assert.Equal(t, 195.0, event.Value)
	assert.Equal(t, models.StatusCritical, event.Status)
	assert.Equal(t, at, event.Timestamp)

	require.Len(t, dispatcher.alerts, 1)
	assert.Equal(t, "195.00 L/min", dispatcher.alerts[0].Value)
	assert.Equal(t, "FLOW sensor S0001 at Hebbal, Bangalore - critical", dispatcher.alerts[0].Message)
	assert.Len(t, sink.received(), 1)
	assert.Len(t, st.Alerts(0), 1)

	event, err = sim.Ingest(context.Background(), "S0001", 100, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNormal, event.Status)
	assert.Equal(t, testNow, event.Timestamp, "zero time falls back to the clock")
}

func TestSimulator_IngestUnknownSensor(t *testing.T) {
	sim, _, _, sink := newTestSimulator(t, []float64{0.5})

	_, err := sim.Ingest(context.Background(), "S9999", 1, testNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Empty(t, sink.received())
}

func TestSimulator_StartStopsOnCancel(t *testing.T) {
	sim, _, _, sink := newTestSimulator(t, []float64{0.5})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sim.Start(ctx) }()

	require.Eventually(t, func() bool { return len(sink.received()) >= 4 }, time.Second, 5*time.Millisecond)
	assert.True(t, sim.Status().Running)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}
	assert.False(t, sim.Status().Running)
}

func TestSimulator_IngestRejectsNonFiniteValues(t *testing.T) {
	sim, st, dispatcher, sink := newTestSimulator(t, []float64{0.5})
	ctx := context.Background()

	for _, v := range []float64{1e308, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := sim.Ingest(ctx, "S0001", v, testNow)
		require.Error(t, err, v)
		assert.True(t, errors.Is(err, store.ErrInvalidInput), v)
	}

	sensor, err := st.Sensor("S0001")
	require.NoError(t, err)
	assert.Equal(t, 0, sensor.History.Len())
	assert.Empty(t, dispatcher.alerts)
	assert.Empty(t, sink.received())

	_, err = sim.Tick(ctx)
	assert.NoError(t, err, "later ticks still persist")
}

func TestSimulator_IngestFlagsAnomalies(t *testing.T) {
	st := newServiceStore(t, store.Dataset{Sensors: []*models.Sensor{flowSensor("S0001", "Hebbal")}})
	sink := &recordingSink{}
	sim := NewSimulatorService(st, NewReadingGenerator(&seqRand{vals: []float64{0.5}}, 0.05), SimulatorOptions{
		Now:      func() time.Time { return testNow },
		Sinks:    []ReadingSink{sink},
		Detector: NewAnomalyDetector(DefaultAnomalyWindow, DefaultAnomalyZScore),
	}, zap.NewNop())
	ctx := context.Background()

	for _, v := range []float64{100, 102, 98, 101, 99} {
		event, err := sim.Ingest(ctx, "S0001", v, testNow)
		require.NoError(t, err)
		assert.False(t, event.IsAnomaly, v)
	}

	// well outside recent behaviour but short of the critical cutoff
	event, err := sim.Ingest(ctx, "S0001", 180, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarning, event.Status)
	assert.True(t, event.IsAnomaly)
	assert.Greater(t, event.AnomalyScore, DefaultAnomalyZScore)

	received := sink.received()
	require.Len(t, received, 6)
	assert.True(t, received[5].IsAnomaly)
}

func allTypeSensors() []*models.Sensor {
	var sensors []*models.Sensor
	for i, st := range models.SensorTypes {
		spec, _ := models.SpecFor(st)
		sensors = append(sensors, &models.Sensor{
			ID: fmt.Sprintf("S%04d", i+1), Type: st, Region: "North Zone", Area: "Hebbal",
			Location: "Hebbal, Bangalore", Unit: spec.Unit,
			ThresholdMin: spec.NormalLo, ThresholdMax: spec.NormalHi, Status: models.StatusNormal,
		})
	}
	return sensors
}

func TestSimulator_SeededRunHoldsInvariants(t *testing.T) {
	st := newServiceStore(t, store.Dataset{Sensors: allTypeSensors()})
	dispatcher := &recordingDispatcher{}
	sink := &recordingSink{}
	sim := NewSimulatorService(st, NewReadingGenerator(rand.New(rand.NewSource(7)), 0.2), SimulatorOptions{
		Now:    func() time.Time { return testNow },
		Alerts: dispatcher,
		Sinks:  []ReadingSink{sink},
	}, zap.NewNop())
	ctx := context.Background()

	const ticks = 300
	emitted := map[string][]float64{}
	critical := 0
	for i := 0; i < ticks; i++ {
		result, err := sim.Tick(ctx)
		require.NoError(t, err)
		require.Len(t, result.Readings, len(models.SensorTypes))

		tickCritical := 0
		for _, r := range result.Readings {
			spec, ok := models.SpecFor(r.Type)
			require.True(t, ok)
			require.GreaterOrEqual(t, r.Value, spec.Min, r.SensorID)
			require.LessOrEqual(t, r.Value, spec.Max, r.SensorID)
			require.Equal(t, models.Classify(spec, r.Value), r.Status, "%s %v", r.SensorID, r.Value)
			if r.Status == models.StatusCritical {
				tickCritical++
			}
			emitted[r.SensorID] = append(emitted[r.SensorID], r.Value)
		}
		require.Len(t, result.Alerts, tickCritical)
		critical += tickCritical
	}

	assert.Greater(t, critical, 0)
	assert.Len(t, dispatcher.alerts, critical, "one alert per critical reading")
	assert.Len(t, sink.received(), ticks*len(models.SensorTypes))

	for _, sensor := range st.Sensors(models.SensorFilter{}) {
		values := emitted[sensor.ID]
		require.Len(t, values, ticks)
		assert.Equal(t, 5, sensor.History.Len(), "history is capped")

		var kept []float64
		for _, r := range sensor.History.Items() {
			kept = append(kept, r.Value)
		}
		assert.Equal(t, values[ticks-5:], kept, "history keeps the newest readings in order")
		assert.Equal(t, values[ticks-1], sensor.CurrentValue)
	}
}
