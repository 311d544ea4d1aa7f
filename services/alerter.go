package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"jjm/metrics"
	"jjm/models"
)

// Notifier delivers a critical alert to one external sink
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert models.Alert) error
}

const (
	defaultAlertQueueSize = 256
	notifyTimeout         = 10 * time.Second
	drainTimeout          = 5 * time.Second
)

// AlerterService queues alerts and fans them out to every notifier off the
// simulator's hot path. A full queue drops the alert rather than blocking.
type AlerterService struct {
	logger *zap.Logger
	queue  chan models.Alert

	mu        sync.RWMutex
	notifiers []Notifier
}

func NewAlerterService(logger *zap.Logger, queueSize int, notifiers ...Notifier) *AlerterService {
	if queueSize <= 0 {
		queueSize = defaultAlertQueueSize
	}
	return &AlerterService{
		logger:    logger,
		queue:     make(chan models.Alert, queueSize),
		notifiers: notifiers,
	}
}

func (a *AlerterService) AddNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifiers = append(a.notifiers, n)
}

// Notifiers lists the names of the registered sinks
func (a *AlerterService) Notifiers() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.notifiers))
	for i, n := range a.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Dispatch enqueues an alert without blocking
func (a *AlerterService) Dispatch(alert models.Alert) {
	select {
	case a.queue <- alert:
	default:
		metrics.NotificationsDropped.Inc()
		a.logger.Warn("Alert queue full, dropping alert",
			zap.String("alert_id", alert.ID),
			zap.String("sensor_id", alert.SensorID))
	}
}

// Start delivers queued alerts until ctx is cancelled, then drains what is
// left with a short deadline.
func (a *AlerterService) Start(ctx context.Context) error {
	a.logger.Info("Starting alert dispatcher", zap.Strings("notifiers", a.Notifiers()))

	for {
		select {
		case <-ctx.Done():
			a.drain()
			a.logger.Info("Alert dispatcher stopped")
			return nil
		case alert := <-a.queue:
			a.deliver(ctx, alert)
		}
	}
}

func (a *AlerterService) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case alert := <-a.queue:
			a.deliver(ctx, alert)
		default:
			return
		}
	}
}

// deliver sends one alert to all notifiers concurrently and waits for them
func (a *AlerterService) deliver(ctx context.Context, alert models.Alert) {
	a.mu.RLock()
	notifiers := append([]Notifier(nil), a.notifiers...)
	a.mu.RUnlock()

	var wg sync.WaitGroup
	for _, n := range notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
			defer cancel()

			if err := n.Notify(nctx, alert); err != nil {
				metrics.NotificationsTotal.WithLabelValues(n.Name(), "error").Inc()
				a.logger.Error("Failed to deliver alert",
					zap.String("notifier", n.Name()),
					zap.String("alert_id", alert.ID),
					zap.Error(err))
				return
			}
			metrics.NotificationsTotal.WithLabelValues(n.Name(), "ok").Inc()
		}(n)
	}
	wg.Wait()
}
