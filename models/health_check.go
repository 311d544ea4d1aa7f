package models

import (
	"time"
)

// SensorHealthStatus tracks whether a sensor keeps reporting
type SensorHealthStatus string

const (
	SensorHealthy   SensorHealthStatus = "healthy"
	SensorStale     SensorHealthStatus = "stale"
	SensorRecovered SensorHealthStatus = "recovered"
)

// SensorHealth is the watchdog's view of one sensor
type SensorHealth struct {
	SensorID string             `json:"sensor_id"`
	LastSeen time.Time          `json:"last_seen"`
	Status   SensorHealthStatus `json:"status"`
	StaleAt  time.Time          `json:"stale_at,omitempty"` // when the sensor went stale (if applicable)
}
