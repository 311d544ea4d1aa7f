package models

import "time"

// ReadingEvent is one classified reading, as published to subscribers and
// written to the archive.
type ReadingEvent struct {
	SensorID  string       `json:"sensor_id"`
	Type      SensorType   `json:"type"`
	Region    string       `json:"region,omitempty"`
	Value     float64      `json:"value"`
	Unit      string       `json:"unit"`
	Status    SensorStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`

	// set by the rolling-window detector when it is enabled
	AnomalyScore float64 `json:"anomaly_score,omitempty"`
	IsAnomaly    bool    `json:"is_anomaly,omitempty"`
}

// EventFor captures the sensor's current reading
func EventFor(s *Sensor) ReadingEvent {
	return ReadingEvent{
		SensorID:  s.ID,
		Type:      s.Type,
		Region:    s.Region,
		Value:     s.CurrentValue,
		Unit:      s.Unit,
		Status:    s.Status,
		Timestamp: s.LastUpdate,
	}
}
