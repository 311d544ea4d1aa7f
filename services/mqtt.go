package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/config"
	"jjm/models"
)

// MQTT topics. Devices publish raw readings under jjm/sensors, the service
// republishes classified readings under jjm/readings so the two never loop.
const (
	TopicSensorUplink   = "jjm/sensors/+/data"
	TopicReadingPrefix  = "jjm/readings/"
	TopicCriticalAlerts = "jjm/alerts/critical"
)

const (
	readingQueueSize      = 16
	readingPublishTimeout = 5 * time.Second
)

// SensorUplinkTopic is the topic a device publishes its raw readings to
func SensorUplinkTopic(sensorID string) string {
	return fmt.Sprintf("jjm/sensors/%s/data", sensorID)
}

// ParseUplinkTopic extracts the sensor id from jjm/sensors/{id}/data
func ParseUplinkTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "jjm" || parts[1] != "sensors" || parts[3] != "data" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// UplinkPayload is what a device sends. A missing timestamp means now.
type UplinkPayload struct {
	SensorID  string     `json:"sensor_id,omitempty"`
	Value     *float64   `json:"value"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ReadingIngester applies a reading that arrived from outside the simulator
type ReadingIngester interface {
	Ingest(ctx context.Context, sensorID string, value float64, at time.Time) (models.ReadingEvent, error)
}

// MQTTService bridges the simulator to an MQTT broker: it publishes
// classified readings and critical alerts, and optionally ingests device
// readings.
type MQTTService struct {
	client   mqtt.Client
	logger   *zap.Logger
	readings chan []models.ReadingEvent

	mu       sync.RWMutex
	ingester ReadingIngester
	baseCtx  context.Context
}

func NewMQTTService(cfg *config.Config, logger *zap.Logger) (*MQTTService, error) {
	service := &MQTTService{
		logger:   logger,
		readings: make(chan []models.ReadingEvent, readingQueueSize),
		baseCtx:  context.Background(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.MQTTBroker))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
		// subscriptions do not survive a clean-session reconnect
		service.resubscribe()
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	service.client = mqtt.NewClient(opts)
	token := service.client.Connect()
	if !token.WaitTimeout(30*time.Second) {
		return nil, eris.Errorf("mqtt: timed out connecting to %s", cfg.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, eris.Wrapf(err, "mqtt: connect to %s", cfg.MQTTBroker)
	}

	return service, nil
}

// brokerURL accepts host:port as well as a full tcp:// or ssl:// url
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func (m *MQTTService) Name() string { return "mqtt" }

// HandleReadings queues a tick's readings for the publish worker so the
// simulator never waits on the broker. A full queue drops the batch.
func (m *MQTTService) HandleReadings(_ context.Context, events []models.ReadingEvent) {
	if len(events) == 0 {
		return
	}
	batch := append([]models.ReadingEvent(nil), events...)
	select {
	case m.readings <- batch:
	default:
		m.logger.Warn("MQTT publish queue full, dropping readings", zap.Int("readings", len(batch)))
	}
}

// Start publishes queued readings to jjm/readings/{id} until ctx is cancelled
func (m *MQTTService) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("MQTT reading publisher stopped")
			return nil
		case batch := <-m.readings:
			m.publishReadings(ctx, batch)
		}
	}
}

func (m *MQTTService) publishReadings(ctx context.Context, batch []models.ReadingEvent) {
	for _, event := range batch {
		if ctx.Err() != nil {
			return
		}
		payload, err := json.Marshal(event)
		if err != nil {
			m.logger.Error("Failed to marshal reading", zap.Error(err))
			continue
		}
		token := m.client.Publish(TopicReadingPrefix+event.SensorID, 0, false, payload)
		if !token.WaitTimeout(readingPublishTimeout) {
			m.logger.Warn("Timed out publishing readings, skipping rest of batch",
				zap.String("sensor_id", event.SensorID))
			return
		}
		if err := token.Error(); err != nil {
			m.logger.Warn("Failed to publish reading",
				zap.String("sensor_id", event.SensorID),
				zap.Error(err))
		}
	}
}

// Notify publishes the alert to jjm/alerts/critical with QoS 1
func (m *MQTTService) Notify(ctx context.Context, alert models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "mqtt: marshal alert")
	}

	token := m.client.Publish(TopicCriticalAlerts, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "mqtt: publish alert")
	}
	if err := token.Error(); err != nil {
		return eris.Wrap(err, "mqtt: publish alert")
	}
	return nil
}

// Subscribe starts ingesting device readings into ingester
func (m *MQTTService) Subscribe(ctx context.Context, ingester ReadingIngester) error {
	m.mu.Lock()
	m.ingester = ingester
	m.baseCtx = ctx
	m.mu.Unlock()

	token := m.client.Subscribe(TopicSensorUplink, 1, m.onMessage)
	if !token.WaitTimeout(10 * time.Second) {
		return eris.New("mqtt: timed out subscribing to sensor uplink")
	}
	if err := token.Error(); err != nil {
		return eris.Wrap(err, "mqtt: subscribe to sensor uplink")
	}

	m.logger.Info("Ingesting sensor readings from MQTT", zap.String("topic", TopicSensorUplink))
	return nil
}

func (m *MQTTService) resubscribe() {
	m.mu.RLock()
	active := m.ingester != nil
	m.mu.RUnlock()
	if !active {
		return
	}
	m.client.Subscribe(TopicSensorUplink, 1, m.onMessage)
}

func (m *MQTTService) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.mu.RLock()
	ctx := m.baseCtx
	m.mu.RUnlock()

	if err := m.handleUplink(ctx, msg.Topic(), msg.Payload()); err != nil {
		m.logger.Warn("Rejected MQTT reading",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
	}
}

// handleUplink validates a device message and hands it to the ingester
func (m *MQTTService) handleUplink(ctx context.Context, topic string, payload []byte) error {
	sensorID, ok := ParseUplinkTopic(topic)
	if !ok {
		return eris.Errorf("mqtt: unexpected topic %q", topic)
	}

	var body UplinkPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return eris.Wrap(err, "mqtt: decode reading")
	}
	if body.Value == nil {
		return eris.New("mqtt: reading has no value")
	}
	if body.SensorID != "" && body.SensorID != sensorID {
		return eris.Errorf("mqtt: payload sensor %s does not match topic sensor %s", body.SensorID, sensorID)
	}

	var at time.Time
	if body.Timestamp != nil {
		at = *body.Timestamp
	}

	m.mu.RLock()
	ingester := m.ingester
	m.mu.RUnlock()
	if ingester == nil {
		return eris.New("mqtt: ingestion not enabled")
	}

	event, err := ingester.Ingest(ctx, sensorID, *body.Value, at)
	if err != nil {
		return err
	}
	m.logger.Debug("Ingested MQTT reading",
		zap.String("sensor_id", event.SensorID),
		zap.Float64("value", event.Value),
		zap.String("status", string(event.Status)))
	return nil
}

// Close disconnects from the broker
func (m *MQTTService) Close() {
	m.logger.Info("Disconnecting from MQTT broker...")
	m.client.Disconnect(250)
}
