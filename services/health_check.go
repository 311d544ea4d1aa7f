package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jjm/metrics"
	"jjm/models"
	"jjm/store"
)

// StaleNotifier is told when a sensor stops or resumes reporting
type StaleNotifier interface {
	SensorStale(ctx context.Context, health models.SensorHealth, silentFor time.Duration) error
	SensorRecovered(ctx context.Context, sensorID string, downtime time.Duration) error
}

// HealthCheckService watches reading arrival and flags sensors that have gone
// quiet for longer than the stale timeout.
type HealthCheckService struct {
	store         store.Store
	notifier      StaleNotifier
	logger        *zap.Logger
	timeout       time.Duration
	checkInterval time.Duration
	now           func() time.Time
	active        func() bool
	sensors       map[string]*models.SensorHealth
	mu            sync.RWMutex
}

func NewHealthCheckService(st store.Store, notifier StaleNotifier, timeout time.Duration, logger *zap.Logger) *HealthCheckService {
	interval := timeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	return &HealthCheckService{
		store:         st,
		notifier:      notifier,
		logger:        logger,
		timeout:       timeout,
		checkInterval: interval,
		now:           time.Now,
		sensors:       make(map[string]*models.SensorHealth),
	}
}

// HandleReadings marks every reporting sensor as seen
func (h *HealthCheckService) HandleReadings(ctx context.Context, events []models.ReadingEvent) {
	now := h.now()

	var recovered []models.SensorHealth
	h.mu.Lock()
	for _, e := range events {
		sensor, exists := h.sensors[e.SensorID]
		if !exists {
			h.sensors[e.SensorID] = &models.SensorHealth{
				SensorID: e.SensorID,
				LastSeen: now,
				Status:   models.SensorHealthy,
			}
			continue
		}
		if sensor.Status == models.SensorStale {
			sensor.Status = models.SensorRecovered
			recovered = append(recovered, *sensor)
		} else {
			sensor.Status = models.SensorHealthy
		}
		sensor.LastSeen = now
	}
	h.mu.Unlock()

	for _, sensor := range recovered {
		downtime := now.Sub(sensor.StaleAt)
		h.logger.Info("Sensor resumed reporting",
			zap.String("sensor_id", sensor.SensorID),
			zap.Duration("downtime", downtime))

		h.recordActivity(ctx, fmt.Sprintf("Sensor %s resumed reporting", sensor.SensorID), now)
		if h.notifier != nil {
			if err := h.notifier.SensorRecovered(ctx, sensor.SensorID, downtime); err != nil {
				h.logger.Error("Failed to send recovery alert",
					zap.String("sensor_id", sensor.SensorID),
					zap.Error(err))
			}
		}
	}
	if len(recovered) > 0 {
		metrics.StaleSensors.Set(float64(h.staleCount()))
	}
}

// SetActive installs a gate checked before every pass. While it reports
// false (simulator paused) silence is not held against any sensor.
func (h *HealthCheckService) SetActive(fn func() bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = fn
}

// Start runs the stale checker until ctx is cancelled
func (h *HealthCheckService) Start(ctx context.Context) error {
	h.logger.Info("Starting sensor health monitoring",
		zap.Duration("stale_timeout", h.timeout),
		zap.Duration("check_interval", h.checkInterval))

	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Sensor health monitoring stopped")
			return nil
		case <-ticker.C:
			h.CheckStale(ctx)
		}
	}
}

// CheckStale flags every sensor silent for longer than the timeout and
// returns the ones that went stale in this pass.
func (h *HealthCheckService) CheckStale(ctx context.Context) []models.SensorHealth {
	now := h.now()

	var stale []models.SensorHealth
	h.mu.Lock()
	if h.active != nil && !h.active() {
		for _, sensor := range h.sensors {
			if sensor.Status != models.SensorStale {
				sensor.LastSeen = now
			}
		}
		h.mu.Unlock()
		return nil
	}
	for _, sensor := range h.sensors {
		if sensor.Status == models.SensorStale {
			continue
		}
		if now.Sub(sensor.LastSeen) > h.timeout {
			sensor.Status = models.SensorStale
			sensor.StaleAt = now
			stale = append(stale, *sensor)
		}
	}
	h.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].SensorID < stale[j].SensorID })

	for _, sensor := range stale {
		silentFor := now.Sub(sensor.LastSeen)
		h.logger.Warn("Sensor stopped reporting",
			zap.String("sensor_id", sensor.SensorID),
			zap.Time("last_seen", sensor.LastSeen),
			zap.Duration("silent_for", silentFor))

		h.recordActivity(ctx, fmt.Sprintf("Sensor %s stopped reporting", sensor.SensorID), now)
		if h.notifier != nil {
			if err := h.notifier.SensorStale(ctx, sensor, silentFor); err != nil {
				h.logger.Error("Failed to send stale sensor alert",
					zap.String("sensor_id", sensor.SensorID),
					zap.Error(err))
			}
		}
	}

	metrics.StaleSensors.Set(float64(h.staleCount()))
	return stale
}

func (h *HealthCheckService) recordActivity(ctx context.Context, text string, at time.Time) {
	if h.store == nil {
		return
	}
	activity := models.NewActivity(uuid.NewString(), models.ActivitySensor, text, at)
	if err := h.store.AddActivity(ctx, activity); err != nil {
		h.logger.Warn("Failed to record sensor activity", zap.Error(err))
	}
}

func (h *HealthCheckService) staleCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sensor := range h.sensors {
		if sensor.Status == models.SensorStale {
			n++
		}
	}
	return n
}

// GetSensorHealth returns the watchdog's record for a sensor
func (h *HealthCheckService) GetSensorHealth(sensorID string) (models.SensorHealth, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sensor, exists := h.sensors[sensorID]
	if !exists {
		return models.SensorHealth{}, false
	}
	return *sensor, true
}

// StaleSensors lists sensors currently considered stale, ordered by id
func (h *HealthCheckService) StaleSensors() []models.SensorHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []models.SensorHealth
	for _, sensor := range h.sensors {
		if sensor.Status == models.SensorStale {
			out = append(out, *sensor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}
