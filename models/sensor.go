package models

import (
	"math"
	"strings"
	"time"
)

// SensorType identifies what a sensor measures
type SensorType string

const (
	SensorFlow      SensorType = "flow"
	SensorPressure  SensorType = "pressure"
	SensorPH        SensorType = "pH"
	SensorTurbidity SensorType = "turbidity"
	SensorChlorine  SensorType = "chlorine"
	SensorLevel     SensorType = "level"
)

// SensorTypes lists every sensor type in display order
var SensorTypes = []SensorType{
	SensorFlow,
	SensorPressure,
	SensorPH,
	SensorTurbidity,
	SensorChlorine,
	SensorLevel,
}

// SensorStatus is the threshold classification of a reading
type SensorStatus string

const (
	StatusNormal   SensorStatus = "normal"
	StatusWarning  SensorStatus = "warning"
	StatusCritical SensorStatus = "critical"
)

// CriticalTailFraction is the share of each out-of-range band, measured from
// the outer edge, that classifies as critical.
const CriticalTailFraction = 0.3

// TypeSpec holds the physical range and normal band of a sensor type
type TypeSpec struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	NormalLo float64 `json:"normal_lo"`
	NormalHi float64 `json:"normal_hi"`
	Unit     string  `json:"unit"`
}

var typeSpecs = map[SensorType]TypeSpec{
	SensorFlow:      {Min: 50, Max: 200, NormalLo: 80, NormalHi: 150, Unit: "L/min"},
	SensorPressure:  {Min: 2, Max: 8, NormalLo: 3, NormalHi: 6, Unit: "bar"},
	SensorPH:        {Min: 6.5, Max: 8.5, NormalLo: 7, NormalHi: 8, Unit: "pH"},
	SensorTurbidity: {Min: 0, Max: 5, NormalLo: 0, NormalHi: 1, Unit: "NTU"},
	SensorChlorine:  {Min: 0.2, Max: 1, NormalLo: 0.3, NormalHi: 0.8, Unit: "mg/L"},
	SensorLevel:     {Min: 0, Max: 100, NormalLo: 30, NormalHi: 90, Unit: "%"},
}

// SpecFor returns the range table entry for a sensor type
func SpecFor(t SensorType) (TypeSpec, bool) {
	spec, ok := typeSpecs[t]
	return spec, ok
}

// LowCriticalCutoff is the value at or below which a low reading is critical.
// Cutoffs are rounded to the two decimals readings carry.
func (s TypeSpec) LowCriticalCutoff() float64 {
	return Round2(s.Min + (s.NormalLo-s.Min)*CriticalTailFraction)
}

// HighCriticalCutoff is the value at or above which a high reading is critical
func (s TypeSpec) HighCriticalCutoff() float64 {
	return Round2(s.Max - (s.Max-s.NormalHi)*CriticalTailFraction)
}

// Classify maps a value onto normal/warning/critical using the type's bands.
// Values outside the physical range are always critical.
func Classify(spec TypeSpec, value float64) SensorStatus {
	switch {
	case value >= spec.NormalLo && value <= spec.NormalHi:
		return StatusNormal
	case value < spec.NormalLo:
		if value <= spec.LowCriticalCutoff() {
			return StatusCritical
		}
		return StatusWarning
	default:
		if value >= spec.HighCriticalCutoff() {
			return StatusCritical
		}
		return StatusWarning
	}
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Reading is one timestamped sample in a sensor's history
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Coordinates is a lat/lng pair
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Sensor is a simulated field sensor and its rolling history
type Sensor struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         SensorType     `json:"type"`
	Region       string         `json:"region"`
	Area         string         `json:"area"`
	Location     string         `json:"location"`
	Coordinates  Coordinates    `json:"coordinates"`
	CurrentValue float64        `json:"current_value"`
	Unit         string         `json:"unit"`
	ThresholdMin float64        `json:"threshold_min"`
	ThresholdMax float64        `json:"threshold_max"`
	Status       SensorStatus   `json:"status"`
	LastUpdate   time.Time      `json:"last_update"`
	History      *Ring[Reading] `json:"history"`
}

// Spec returns the sensor's type spec with thresholds taken from the sensor
// itself, so per-sensor overrides are honoured.
func (s *Sensor) Spec() TypeSpec {
	spec, _ := SpecFor(s.Type)
	if s.ThresholdMax > s.ThresholdMin {
		spec.NormalLo = s.ThresholdMin
		spec.NormalHi = s.ThresholdMax
	}
	return spec
}

// Record applies a new reading: value, status, timestamp and history
func (s *Sensor) Record(value float64, status SensorStatus, ts time.Time) {
	value = Round2(value)
	s.CurrentValue = value
	s.Status = status
	s.LastUpdate = ts
	if s.History == nil {
		s.History = NewRing[Reading](DefaultHistoryCapacity)
	}
	s.History.Push(Reading{Timestamp: ts, Value: value})
}

// Clone returns a deep copy safe to hand out of the store
func (s *Sensor) Clone() *Sensor {
	c := *s
	c.History = s.History.Clone()
	return &c
}

// Matches reports whether the sensor passes a filter
func (s *Sensor) Matches(f SensorFilter) bool {
	if f.Region != "" && s.Region != f.Region {
		return false
	}
	if f.Area != "" && s.Area != f.Area {
		return false
	}
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		for _, field := range []string{s.ID, s.Location, s.Region, s.Area} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// SensorFilter narrows sensor listings. Empty fields match everything.
type SensorFilter struct {
	Region string       `json:"region,omitempty"`
	Area   string       `json:"area,omitempty"`
	Type   SensorType   `json:"type,omitempty"`
	Status SensorStatus `json:"status,omitempty"`
	Query  string       `json:"q,omitempty"`
}

// HistoryStats summarises a sensor's retained history
type HistoryStats struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   int     `json:"count"`
}

// ComputeHistoryStats returns current/avg/min/max over the readings
func ComputeHistoryStats(current float64, readings []Reading) HistoryStats {
	stats := HistoryStats{Current: current, Count: len(readings)}
	if len(readings) == 0 {
		return stats
	}
	stats.Min = math.Inf(1)
	stats.Max = math.Inf(-1)
	var sum float64
	for _, r := range readings {
		sum += r.Value
		stats.Min = math.Min(stats.Min, r.Value)
		stats.Max = math.Max(stats.Max, r.Value)
	}
	stats.Average = Round2(sum / float64(len(readings)))
	return stats
}
