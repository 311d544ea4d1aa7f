package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertSeverity string

const (
	AlertCritical AlertSeverity = "critical"
	AlertWarning  AlertSeverity = "warning"
)

// Alert is raised when a reading crosses into the critical band
type Alert struct {
	ID        string        `json:"id"`
	Severity  AlertSeverity `json:"type"`
	Message   string        `json:"message"`
	SensorID  string        `json:"sensor,omitempty"`
	Value     string        `json:"value,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewSensorAlert builds the critical alert for a sensor's current reading
func NewSensorAlert(id string, s *Sensor) Alert {
	return Alert{
		ID:        id,
		Severity:  AlertCritical,
		Message:   fmt.Sprintf("%s sensor %s at %s - critical", strings.ToUpper(string(s.Type)), s.ID, s.Location),
		SensorID:  s.ID,
		Value:     FormatValue(s.CurrentValue, s.Unit),
		Timestamp: s.LastUpdate,
	}
}

// FormatValue renders a reading with two decimals and its unit, e.g. "195.00 L/min"
func FormatValue(v float64, unit string) string {
	return fmt.Sprintf("%.2f %s", v, unit)
}

// GetAlertEmoji returns an emoji for notification formatting
func (a *Alert) GetAlertEmoji() string {
	switch a.Severity {
	case AlertCritical:
		return "🔴"
	case AlertWarning:
		return "🟡"
	default:
		return "⚪"
	}
}

// ActivityKind selects the icon shown for an activity
type ActivityKind string

const (
	ActivityGrievance   ActivityKind = "grievance"
	ActivityResolved    ActivityKind = "resolved"
	ActivityMaintenance ActivityKind = "maintenance"
	ActivitySensor      ActivityKind = "sensor"
	ActivityAlert       ActivityKind = "alert"
	ActivitySystem      ActivityKind = "system"
)

// Activity is one entry in the operations log
type Activity struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"type"`
	Icon      string       `json:"icon"`
	Color     string       `json:"color"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
}

var activityStyles = map[ActivityKind][2]string{
	ActivityGrievance:   {"fa-exclamation-circle", "#dc3545"},
	ActivityResolved:    {"fa-check-circle", "#28a745"},
	ActivityMaintenance: {"fa-tools", "#ffc107"},
	ActivitySensor:      {"fa-microchip", "#17a2b8"},
	ActivityAlert:       {"fa-exclamation-triangle", "#dc3545"},
	ActivitySystem:      {"fa-info-circle", "#6c757d"},
}

// ActivityStyle returns the icon and color for a kind
func ActivityStyle(kind ActivityKind) (icon, color string) {
	style, ok := activityStyles[kind]
	if !ok {
		style = activityStyles[ActivitySystem]
	}
	return style[0], style[1]
}

// NewActivity fills in icon and color from the kind
func NewActivity(id string, kind ActivityKind, text string, at time.Time) Activity {
	icon, color := ActivityStyle(kind)
	return Activity{ID: id, Kind: kind, Icon: icon, Color: color, Text: text, Timestamp: at}
}
