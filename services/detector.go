package services

import (
	"math"

	"jjm/models"
)

// Detector defaults
const (
	DefaultAnomalyWindow = 10
	DefaultAnomalyZScore = 3.0
	minAnomalySamples    = 3
	// floor for the rolling spread, as a share of the physical range
	minSpreadFraction = 0.01
)

// AnomalyDetector flags readings that stray from a sensor's own recent
// behaviour, independently of the fixed threshold bands. It compares each
// value against the rolling mean and spread of the preceding window and
// against the step from the previous reading.
type AnomalyDetector struct {
	window int
	zScore float64
}

// NewAnomalyDetector returns nil when window is zero, which disables detection
func NewAnomalyDetector(window int, zScore float64) *AnomalyDetector {
	if window == 0 {
		return nil
	}
	if window < minAnomalySamples {
		window = minAnomalySamples
	}
	if zScore <= 0 {
		zScore = DefaultAnomalyZScore
	}
	return &AnomalyDetector{window: window, zScore: zScore}
}

// RollingStats describes the window a reading was scored against
type RollingStats struct {
	Mean         float64
	Std          float64
	Min          float64
	Max          float64
	Deviation    float64
	RateOfChange float64
	Samples      int
}

// Stats computes the rolling features for value over prior, given oldest first
func (d *AnomalyDetector) Stats(prior []models.Reading, value float64) RollingStats {
	if len(prior) > d.window {
		prior = prior[len(prior)-d.window:]
	}
	stats := RollingStats{Samples: len(prior)}
	if len(prior) == 0 {
		return stats
	}

	stats.Min = math.Inf(1)
	stats.Max = math.Inf(-1)
	var sum float64
	for _, r := range prior {
		sum += r.Value
		stats.Min = math.Min(stats.Min, r.Value)
		stats.Max = math.Max(stats.Max, r.Value)
	}
	stats.Mean = sum / float64(len(prior))

	if len(prior) > 1 {
		var sq float64
		for _, r := range prior {
			sq += (r.Value - stats.Mean) * (r.Value - stats.Mean)
		}
		stats.Std = math.Sqrt(sq / float64(len(prior)-1))
	}

	stats.Deviation = math.Abs(value - stats.Mean)
	stats.RateOfChange = value - prior[len(prior)-1].Value
	return stats
}

// Score returns how many spreads value lies from the rolling mean. The step
// from the last reading is scored against the spread of a difference of two
// readings and the larger of the two is kept. Windows with fewer than three
// samples score zero.
func (d *AnomalyDetector) Score(spec models.TypeSpec, prior []models.Reading, value float64) float64 {
	stats := d.Stats(prior, value)
	if stats.Samples < minAnomalySamples {
		return 0
	}
	spread := math.Max(stats.Std, (spec.Max-spec.Min)*minSpreadFraction)
	if spread <= 0 {
		return 0
	}
	deviation := stats.Deviation / spread
	step := math.Abs(stats.RateOfChange) / (math.Sqrt2 * spread)
	return models.Round2(math.Max(deviation, step))
}

// Evaluate scores the sensor's newest reading against the readings before it
// and marks the event.
func (d *AnomalyDetector) Evaluate(sensor *models.Sensor, event *models.ReadingEvent) {
	if d == nil || sensor.History.Len() < 2 {
		return
	}
	history := sensor.History.Items()
	latest := history[len(history)-1]
	event.AnomalyScore = d.Score(sensor.Spec(), history[:len(history)-1], latest.Value)
	event.IsAnomaly = event.AnomalyScore >= d.zScore
}

func (d *AnomalyDetector) Window() int {
	if d == nil {
		return 0
	}
	return d.window
}
