package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/mockdata"
	"jjm/models"
	"jjm/services"
)

var (
	rps        = flag.Int("rps", 10, "Readings per second to publish")
	sensorIDs  = flag.String("sensors", "", "Comma-separated sensor IDs (default: the whole seeded fleet)")
	anomaly    = flag.Float64("anomaly", 0.05, "Probability of an out-of-band reading (0.0-1.0)")
	mqttBroker = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser   = flag.String("user", "", "MQTT username")
	mqttPass   = flag.String("pass", "", "MQTT password")
	seed       = flag.Int64("seed", 0, "Random seed (0 = time based)")
)

// device is one simulated field sensor publishing its own readings
type device struct {
	id   string
	spec models.TypeSpec
}

// fleet selects the devices to simulate from the seeded sensor fleet
func fleet(rnd *rand.Rand, only string) ([]device, error) {
	sensors := mockdata.New(rnd).Sensors(time.Now())

	wanted := map[string]bool{}
	for _, id := range strings.Split(only, ",") {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = true
		}
	}

	devices := make([]device, 0, len(sensors))
	for _, s := range sensors {
		if len(wanted) > 0 && !wanted[s.ID] {
			continue
		}
		devices = append(devices, device{id: s.ID, spec: s.Spec()})
	}
	if len(devices) == 0 {
		return nil, eris.Errorf("no sensors match %q", only)
	}
	return devices, nil
}

func main() {
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *rps <= 0 {
		logger.Fatal("rps must be positive", zap.Int("rps", *rps))
	}

	randomSeed := *seed
	if randomSeed == 0 {
		randomSeed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(randomSeed))

	devices, err := fleet(rnd, *sensorIDs)
	if err != nil {
		logger.Fatal("Failed to select sensors", zap.Error(err))
	}
	generator := services.NewReadingGenerator(rnd, *anomaly)

	logger.Info("MQTT sensor reading generator started",
		zap.Int("sensors", len(devices)),
		zap.Int("rps", *rps),
		zap.Float64("anomaly_probability", *anomaly),
		zap.String("mqtt_broker", *mqttBroker),
		zap.String("topic", services.TopicSensorUplink),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	// Initialize MQTT client (simulating the field gateways)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("jjm-mqttgen-%d", os.Getpid()))
	if *mqttUser != "" {
		opts.SetUsername(*mqttUser)
		opts.SetPassword(*mqttPass)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := time.Second / time.Duration(*rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	counts := map[models.SensorStatus]int{}
	messageCount := 0
	next := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down gracefully",
				zap.Int("total_messages", messageCount),
				zap.Int("warning", counts[models.StatusWarning]),
				zap.Int("critical", counts[models.StatusCritical]),
				zap.Duration("total_uptime", time.Since(startTime)),
			)
			return

		case <-ticker.C:
			d := devices[next]
			next = (next + 1) % len(devices)

			value, status := generator.Draw(d.spec)
			now := time.Now()
			payload, err := json.Marshal(services.UplinkPayload{SensorID: d.id, Value: &value, Timestamp: &now})
			if err != nil {
				logger.Error("Failed to marshal reading", zap.Error(err))
				continue
			}

			topic := services.SensorUplinkTopic(d.id)
			token := mqttClient.Publish(topic, 1, false, payload)
			if token.Wait() && token.Error() != nil {
				logger.Error("Failed to publish reading",
					zap.String("sensor_id", d.id),
					zap.Error(token.Error()))
				continue
			}

			messageCount++
			counts[status]++
			logger.Debug("Published reading",
				zap.String("topic", topic),
				zap.Float64("value", value),
				zap.String("status", string(status)))

		case <-statsTicker.C:
			logger.Info("Statistics",
				zap.Int("total_messages", messageCount),
				zap.Int("normal", counts[models.StatusNormal]),
				zap.Int("warning", counts[models.StatusWarning]),
				zap.Int("critical", counts[models.StatusCritical]),
				zap.Float64("avg_rate_msg_per_sec", float64(messageCount)/time.Since(startTime).Seconds()),
			)
		}
	}
}
