package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"jjm/config"
	"jjm/models"
	"jjm/realtime"
)

var (
	url    = flag.String("url", "", "WebSocket URL (default: WS_URL)")
	topics = flag.String("topics", "alert", "Comma-separated message types to tail, or *")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	target := *url
	if target == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			logger.Fatal("Failed to load config", zap.Error(err))
		}
		target = cfg.WebSocketURL
	}

	client := realtime.NewClient(realtime.ClientOptions{URL: target}, logger)

	client.Subscribe(realtime.TypeConnection, func(env realtime.Envelope) {
		logger.Info("Connection", zap.String("status", env.Status))
	})
	for _, topic := range strings.Split(*topics, ",") {
		if topic = strings.TrimSpace(topic); topic != "" {
			client.Subscribe(topic, printEnvelope)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil {
		logger.Error("Watcher stopped", zap.Error(err))
		os.Exit(1)
	}
}

func printEnvelope(env realtime.Envelope) {
	ts := env.Timestamp.Format("15:04:05")
	switch env.Type {
	case realtime.TypeAlert:
		var alert models.Alert
		if err := env.Decode(&alert); err == nil {
			fmt.Printf("%s ALERT   %s (%s)\n", ts, alert.Message, alert.Value)
			return
		}
	case realtime.TypeReading:
		var events []models.ReadingEvent
		if err := env.Decode(&events); err == nil {
			for _, e := range events {
				if e.Status != models.StatusNormal {
					fmt.Printf("%s %-8s %s %s %.2f %s\n", ts, strings.ToUpper(string(e.Status)), e.SensorID, e.Type, e.Value, e.Unit)
				}
			}
			return
		}
	case realtime.TypeAnomaly:
		var events []models.ReadingEvent
		if err := env.Decode(&events); err == nil {
			for _, e := range events {
				fmt.Printf("%s ANOMALY  %s %s %.2f %s (score %.2f)\n", ts, e.SensorID, e.Type, e.Value, e.Unit, e.AnomalyScore)
			}
			return
		}
	case realtime.TypeConnection, realtime.TypeError:
		return
	}

	raw, _ := json.Marshal(env)
	fmt.Printf("%s %s\n", ts, raw)
}
