package services

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/metrics"
	"jjm/models"
	"jjm/store"
)

// Reading sources, used as a metrics label
const (
	SourceSimulator = "simulator"
	SourceMQTT      = "mqtt"
)

// ReadingSink receives every applied reading. Implementations must not block.
type ReadingSink interface {
	HandleReadings(ctx context.Context, events []models.ReadingEvent)
}

// AlertDispatcher hands critical alerts to the notification fan-out
type AlertDispatcher interface {
	Dispatch(alert models.Alert)
}

type SimulatorOptions struct {
	Interval time.Duration
	Now      func() time.Time
	Alerts   AlertDispatcher
	Sinks    []ReadingSink
	// Detector is optional; nil disables anomaly scoring
	Detector *AnomalyDetector
}

// TickResult reports what one tick produced
type TickResult struct {
	Readings  []models.ReadingEvent `json:"readings"`
	Alerts    []models.Alert        `json:"alerts"`
	Anomalies []models.ReadingEvent `json:"anomalies,omitempty"`
	Skipped   bool                  `json:"skipped"`
}

// SimulatorStatus is the externally visible state of the simulator
type SimulatorStatus struct {
	Running            bool          `json:"running"`
	Paused             bool          `json:"paused"`
	Interval           time.Duration `json:"interval"`
	AnomalyProbability float64       `json:"anomaly_probability"`
	Ticks              uint64        `json:"ticks"`
	LastTick           time.Time     `json:"last_tick,omitempty"`
}

// SimulatorService periodically generates readings for every sensor,
// classifies them and raises alerts on critical values.
type SimulatorService struct {
	store     store.Store
	generator *ReadingGenerator
	logger    *zap.Logger
	opts      SimulatorOptions

	tickMu   sync.Mutex
	sinksMu  sync.RWMutex
	running  atomic.Bool
	paused   atomic.Bool
	ticks    atomic.Uint64
	lastTick atomic.Int64
}

func NewSimulatorService(st store.Store, generator *ReadingGenerator, opts SimulatorOptions, logger *zap.Logger) *SimulatorService {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SimulatorService{
		store:     st,
		generator: generator,
		logger:    logger,
		opts:      opts,
	}
}

// AddSink registers another consumer of applied readings
func (s *SimulatorService) AddSink(sink ReadingSink) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.opts.Sinks = append(s.opts.Sinks, sink)
}

// Start runs the tick loop until ctx is cancelled
func (s *SimulatorService) Start(ctx context.Context) error {
	s.logger.Info("Starting sensor simulator",
		zap.Duration("interval", s.opts.Interval),
		zap.Float64("anomaly_probability", s.generator.AnomalyProbability()))

	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sensor simulator received shutdown signal")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Warn("Simulator tick completed with errors", zap.Error(err))
			}
		}
	}
}

func (s *SimulatorService) Pause() {
	if !s.paused.Swap(true) {
		s.logger.Info("Sensor simulator paused")
	}
}

func (s *SimulatorService) Resume() {
	if s.paused.Swap(false) {
		s.logger.Info("Sensor simulator resumed")
	}
}

func (s *SimulatorService) Paused() bool {
	return s.paused.Load()
}

func (s *SimulatorService) Status() SimulatorStatus {
	status := SimulatorStatus{
		Running:            s.running.Load(),
		Paused:             s.paused.Load(),
		Interval:           s.opts.Interval,
		AnomalyProbability: s.generator.AnomalyProbability(),
		Ticks:              s.ticks.Load(),
	}
	if ns := s.lastTick.Load(); ns != 0 {
		status.LastTick = time.Unix(0, ns)
	}
	return status
}

// Tick draws one reading per sensor and applies it. A paused simulator
// returns a skipped result. Persistence errors are returned but the
// in-memory state and subscribers are still updated.
func (s *SimulatorService) Tick(ctx context.Context) (TickResult, error) {
	if s.paused.Load() {
		return TickResult{Skipped: true}, nil
	}

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	started := time.Now()
	now := s.opts.Now()
	var result TickResult

	persistErr := s.store.UpdateSensors(ctx, func(sensors []*models.Sensor) error {
		result.Readings = make([]models.ReadingEvent, 0, len(sensors))
		for _, sensor := range sensors {
			value, status := s.generator.Draw(sensor.Spec())
			sensor.Record(value, status, now)
			event := models.EventFor(sensor)
			s.opts.Detector.Evaluate(sensor, &event)
			result.Readings = append(result.Readings, event)
			if status == models.StatusCritical {
				result.Alerts = append(result.Alerts, models.NewSensorAlert(uuid.NewString(), sensor))
			}
		}
		return nil
	})

	err := s.apply(ctx, SourceSimulator, &result)
	if persistErr != nil {
		err = eris.Wrap(persistErr, "simulator: persist sensors")
	}

	s.ticks.Add(1)
	s.lastTick.Store(now.UnixNano())
	metrics.SimulatorTicksTotal.Inc()
	metrics.SimulatorTickDuration.Observe(time.Since(started).Seconds())

	s.logger.Debug("Simulator tick",
		zap.Int("readings", len(result.Readings)),
		zap.Int("alerts", len(result.Alerts)))

	return result, err
}

// Ingest applies an externally sourced reading with the same classification
// and alerting rules as simulated ones. Values that are not finite after
// rounding are rejected before the sensor is touched.
func (s *SimulatorService) Ingest(ctx context.Context, sensorID string, value float64, at time.Time) (models.ReadingEvent, error) {
	value = models.Round2(value)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return models.ReadingEvent{}, eris.Wrapf(store.ErrInvalidInput, "sensor %s: value is not finite", sensorID)
	}
	if at.IsZero() {
		at = s.opts.Now()
	}

	var result TickResult
	var found bool
	persistErr := s.store.UpdateSensors(ctx, func(sensors []*models.Sensor) error {
		for _, sensor := range sensors {
			if sensor.ID != sensorID {
				continue
			}
			found = true
			sensor.Record(value, models.Classify(sensor.Spec(), value), at)
			event := models.EventFor(sensor)
			s.opts.Detector.Evaluate(sensor, &event)
			result.Readings = []models.ReadingEvent{event}
			if sensor.Status == models.StatusCritical {
				result.Alerts = []models.Alert{models.NewSensorAlert(uuid.NewString(), sensor)}
			}
			return nil
		}
		return eris.Wrapf(store.ErrNotFound, "sensor %s", sensorID)
	})
	if !found {
		return models.ReadingEvent{}, persistErr
	}

	err := s.apply(ctx, SourceMQTT, &result)
	if persistErr != nil {
		err = eris.Wrap(persistErr, "simulator: persist ingested reading")
	}
	return result.Readings[0], err
}

// apply records alerts, updates metrics and notifies subscribers
func (s *SimulatorService) apply(ctx context.Context, source string, result *TickResult) error {
	counts := map[models.SensorStatus]int{}
	for _, r := range result.Readings {
		metrics.ReadingsTotal.WithLabelValues(string(r.Type), string(r.Status), source).Inc()
		counts[r.Status]++
		if r.IsAnomaly {
			metrics.AnomaliesTotal.WithLabelValues(string(r.Type)).Inc()
			result.Anomalies = append(result.Anomalies, r)
			s.logger.Info("Reading deviates from recent behaviour",
				zap.String("sensor_id", r.SensorID),
				zap.Float64("value", r.Value),
				zap.Float64("anomaly_score", r.AnomalyScore))
		}
	}
	if source == SourceSimulator {
		for _, status := range []models.SensorStatus{models.StatusNormal, models.StatusWarning, models.StatusCritical} {
			metrics.SensorsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
	}

	var err error
	if len(result.Alerts) > 0 {
		if err = s.store.AddAlerts(ctx, result.Alerts...); err != nil {
			err = eris.Wrap(err, "simulator: persist alerts")
		}
		for _, alert := range result.Alerts {
			metrics.AlertsTotal.WithLabelValues(string(alert.Severity)).Inc()
			s.logger.Warn("Critical sensor reading",
				zap.String("sensor_id", alert.SensorID),
				zap.String("value", alert.Value),
				zap.String("message", alert.Message))
			if s.opts.Alerts != nil {
				s.opts.Alerts.Dispatch(alert)
			}
		}
	}

	s.sinksMu.RLock()
	sinks := s.opts.Sinks
	s.sinksMu.RUnlock()
	for _, sink := range sinks {
		sink.HandleReadings(ctx, result.Readings)
	}
	return err
}
