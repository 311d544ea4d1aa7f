package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	flow, ok := SpecFor(SensorFlow)
	require.True(t, ok)

	tests := []struct {
		name  string
		value float64
		want  SensorStatus
	}{
		{"normal low edge", 80, StatusNormal},
		{"normal mid", 115, StatusNormal},
		{"normal high edge", 150, StatusNormal},
		{"low warning", 70, StatusWarning},
		{"low critical", 55, StatusCritical},
		{"high warning", 170, StatusWarning},
		{"high critical", 195, StatusCritical},
		{"below range", 10, StatusCritical},
		{"above range", 500, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(flow, tt.value))
		})
	}
}

func TestCriticalCutoffs(t *testing.T) {
	for _, st := range SensorTypes {
		spec, ok := SpecFor(st)
		require.True(t, ok, st)
		assert.Less(t, spec.LowCriticalCutoff(), spec.NormalLo+1e-9, st)
		assert.Greater(t, spec.HighCriticalCutoff(), spec.NormalHi, st)
		assert.Equal(t, StatusCritical, Classify(spec, spec.Max), st)
	}

	ph, _ := SpecFor(SensorPH)
	assert.Equal(t, StatusCritical, Classify(ph, 6.6))
	assert.Equal(t, StatusWarning, Classify(ph, 6.8))
	assert.Equal(t, StatusWarning, Classify(ph, 8.2))
	assert.Equal(t, StatusCritical, Classify(ph, 8.4))
}

func TestCriticalCutoffsAreInclusive(t *testing.T) {
	tests := []struct {
		sensorType  SensorType
		low, high   float64
		lowWarning  float64
		highWarning float64
	}{
		{SensorFlow, 59, 185, 59.01, 184.99},
		{SensorPressure, 2.3, 7.4, 2.31, 7.39},
		{SensorPH, 6.65, 8.35, 6.66, 8.34},
		{SensorTurbidity, 0, 3.8, 0, 3.79},
		{SensorChlorine, 0.23, 0.94, 0.24, 0.93},
		{SensorLevel, 9, 97, 9.01, 96.99},
	}
	for _, tt := range tests {
		t.Run(string(tt.sensorType), func(t *testing.T) {
			spec, ok := SpecFor(tt.sensorType)
			require.True(t, ok)
			assert.Equal(t, tt.low, spec.LowCriticalCutoff())
			assert.Equal(t, tt.high, spec.HighCriticalCutoff())

			assert.Equal(t, StatusCritical, Classify(spec, tt.high))
			assert.Equal(t, StatusWarning, Classify(spec, tt.highWarning))
			if spec.NormalLo > spec.Min {
				assert.Equal(t, StatusCritical, Classify(spec, tt.low))
				assert.Equal(t, StatusWarning, Classify(spec, tt.lowWarning))
			}
		})
	}
}

func TestTurbidityHasNoLowTail(t *testing.T) {
	spec, _ := SpecFor(SensorTurbidity)
	assert.Equal(t, StatusNormal, Classify(spec, 0))
	assert.Equal(t, StatusWarning, Classify(spec, 2))
	assert.Equal(t, StatusCritical, Classify(spec, 4.9))
}

func TestSensor_Record(t *testing.T) {
	s := &Sensor{ID: "S0001", Type: SensorFlow, Unit: "L/min", History: NewRing[Reading](2)}
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	s.Record(100.456, StatusNormal, now)
	s.Record(101, StatusNormal, now.Add(3*time.Second))
	s.Record(195.111, StatusCritical, now.Add(6*time.Second))

	assert.Equal(t, 195.11, s.CurrentValue)
	assert.Equal(t, StatusCritical, s.Status)
	assert.Equal(t, now.Add(6*time.Second), s.LastUpdate)
	require.Equal(t, 2, s.History.Len())
	assert.Equal(t, 101.0, s.History.Items()[0].Value)
}

func TestSensor_RecordWithoutHistory(t *testing.T) {
	s := &Sensor{ID: "S0002", Type: SensorLevel}
	s.Record(50, StatusNormal, time.Now())
	assert.Equal(t, DefaultHistoryCapacity, s.History.Cap())
	assert.Equal(t, 1, s.History.Len())
}

func TestSensor_SpecUsesOwnThresholds(t *testing.T) {
	s := &Sensor{Type: SensorPressure, ThresholdMin: 3.5, ThresholdMax: 5.5}
	spec := s.Spec()
	assert.Equal(t, 3.5, spec.NormalLo)
	assert.Equal(t, 5.5, spec.NormalHi)
	assert.Equal(t, 2.0, spec.Min)
}

func TestSensor_Matches(t *testing.T) {
	s := &Sensor{
		ID:       "S0042",
		Type:     SensorPH,
		Region:   "North Zone",
		Area:     "Hebbal",
		Location: "Hebbal, Bangalore",
		Status:   StatusWarning,
	}

	assert.True(t, s.Matches(SensorFilter{}))
	assert.True(t, s.Matches(SensorFilter{Region: "North Zone", Type: SensorPH}))
	assert.True(t, s.Matches(SensorFilter{Query: "hebbal"}))
	assert.True(t, s.Matches(SensorFilter{Query: "s004"}))
	assert.False(t, s.Matches(SensorFilter{Status: StatusNormal}))
	assert.False(t, s.Matches(SensorFilter{Area: "Yelahanka"}))
	assert.False(t, s.Matches(SensorFilter{Query: "whitefield"}))
}

func TestComputeHistoryStats(t *testing.T) {
	stats := ComputeHistoryStats(3, []Reading{{Value: 1}, {Value: 2}, {Value: 4}})
	assert.Equal(t, 3.0, stats.Current)
	assert.Equal(t, 2.33, stats.Average)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 4.0, stats.Max)
	assert.Equal(t, 3, stats.Count)

	empty := ComputeHistoryStats(5, nil)
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, 0.0, empty.Min)
}

func TestNewSensorAlert(t *testing.T) {
	now := time.Now()
	s := &Sensor{ID: "S0007", Type: SensorFlow, Location: "Hebbal, Bangalore", CurrentValue: 195, Unit: "L/min", LastUpdate: now}
	a := NewSensorAlert("A1", s)

	assert.Equal(t, AlertCritical, a.Severity)
	assert.Equal(t, "FLOW sensor S0007 at Hebbal, Bangalore - critical", a.Message)
	assert.Equal(t, "195.00 L/min", a.Value)
	assert.Equal(t, "S0007", a.SensorID)
	assert.Equal(t, now, a.Timestamp)
}
