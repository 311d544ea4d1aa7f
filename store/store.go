package store

import (
	"context"
	"errors"
	"time"

	"jjm/models"
)

// Persistence keys, one JSON blob per collection
const (
	KeyAssets      = "jjm_assets"
	KeySensors     = "jjm_sensors"
	KeyGrievances  = "jjm_grievances"
	KeyActivities  = "jjm_activities"
	KeyAlerts      = "jjm_alerts"
	KeyInitialized = "jjm_initialized"
)

var CollectionKeys = []string{KeyAssets, KeySensors, KeyGrievances, KeyActivities, KeyAlerts}

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Dataset is a full copy of the store's collections. Sensors are ordered by
// id, grievances newest first, activities and alerts newest first.
type Dataset struct {
	Assets     []models.Asset      `json:"assets"`
	Sensors    []*models.Sensor    `json:"sensors"`
	Grievances []*models.Grievance `json:"grievances"`
	Activities []models.Activity   `json:"activities"`
	Alerts     []models.Alert      `json:"alerts"`
}

// SeedFunc produces the initial dataset used on first run and on Reset
type SeedFunc func(now time.Time) Dataset

// Store is the typed application state shared by the simulator, the
// dashboard and the HTTP layer.
type Store interface {
	// Init loads persisted state, seeding it on first run
	Init(ctx context.Context) error
	// Reset discards everything and reseeds
	Reset(ctx context.Context) error
	Snapshot() Dataset

	Sensors(filter models.SensorFilter) []*models.Sensor
	Sensor(id string) (*models.Sensor, error)
	Regions() []string
	Areas(region string) []string
	// UpdateSensors runs fn on the live sensor list under the write lock and
	// persists the list once afterwards.
	UpdateSensors(ctx context.Context, fn func(sensors []*models.Sensor) error) error

	Grievances(filter models.GrievanceFilter) []*models.Grievance
	Grievance(id string) (*models.Grievance, error)
	CreateGrievance(ctx context.Context, g *models.Grievance) (*models.Grievance, error)
	// UpdateGrievance applies fn to a copy and commits it only when fn succeeds
	UpdateGrievance(ctx context.Context, id string, fn func(g *models.Grievance) error) (*models.Grievance, error)

	Assets() []models.Asset

	Alerts(limit int) []models.Alert
	AddAlerts(ctx context.Context, alerts ...models.Alert) error

	Activities(limit int) []models.Activity
	AddActivity(ctx context.Context, a models.Activity) error
}
