package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jjm/api"
	"jjm/config"
	"jjm/models"
	"jjm/realtime"
	"jjm/services"
	"jjm/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulator, alerting, API and real-time hub",
	RunE:  runServe,
}

// historyPayload is sent to every new websocket client
type historyPayload struct {
	Sensors []*models.Sensor `json:"sensors"`
	Alerts  []models.Alert   `json:"alerts"`
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, kv, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer kv.Close()

	if err := st.Init(ctx); err != nil {
		return err
	}

	hub := realtime.NewHub(logger)
	hub.SetHistory(func() interface{} {
		return historyPayload{
			Sensors: st.Sensors(models.SensorFilter{}),
			Alerts:  st.Alerts(20),
		}
	})

	alerter := services.NewAlerterService(logger, 0, hub)

	generator := services.NewReadingGenerator(rand.New(rand.NewSource(randomSeed(cfg)+1)), cfg.AnomalyProbability)
	simulator := services.NewSimulatorService(st, generator, services.SimulatorOptions{
		Interval: cfg.SimulatorInterval,
		Alerts:   alerter,
		Sinks:    []services.ReadingSink{hub},
		Detector: services.NewAnomalyDetector(cfg.AnomalyWindow, cfg.AnomalyZScore),
	}, logger)
	if !cfg.SimulatorAutostart {
		simulator.Pause()
	}

	// Optional notification sinks
	var staleNotifier services.StaleNotifier

	if cfg.TelegramEnabled() {
		telegramService, err := services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Warn("Telegram notifications disabled", zap.Error(err))
		} else {
			alerter.AddNotifier(telegramService)
			staleNotifier = telegramService
			if err := telegramService.SendStartupMessage(len(st.Sensors(models.SensorFilter{}))); err != nil {
				logger.Warn("Failed to send startup message", zap.Error(err))
			}
		}
	}

	if cfg.RabbitMQEnabled() {
		rabbitMQService, err := services.NewRabbitMQService(cfg, logger)
		if err != nil {
			logger.Warn("RabbitMQ notifications disabled", zap.Error(err))
		} else {
			defer rabbitMQService.Close()
			alerter.AddNotifier(rabbitMQService)
		}
	}

	if cfg.AlertWebhookURL != "" {
		alerter.AddNotifier(services.NewWebhookService(logger, cfg.AlertWebhookURL))
		logger.Info("Webhook alert service initialized", zap.String("url", cfg.AlertWebhookURL))
	}

	var mqttService *services.MQTTService
	if cfg.MQTTEnabled() {
		mqttService, err = services.NewMQTTService(cfg, logger)
		if err != nil {
			logger.Warn("MQTT bridge disabled", zap.Error(err))
		} else {
			defer mqttService.Close()
			alerter.AddNotifier(mqttService)
			simulator.AddSink(mqttService)
			if cfg.MQTTIngest {
				if err := mqttService.Subscribe(ctx, simulator); err != nil {
					logger.Warn("MQTT ingestion disabled", zap.Error(err))
				}
			}
		}
	}

	watchdog := services.NewHealthCheckService(st, staleNotifier, cfg.StaleTimeout, logger)
	watchdog.SetActive(func() bool { return !simulator.Paused() })
	simulator.AddSink(watchdog)

	var (
		archive       *store.SQLiteArchive
		archiveWriter *services.ArchiveWriterService
		readingQuery  api.ReadingQuery
	)
	if cfg.ArchiveEnabled() {
		archive, err = store.NewSQLiteArchive(ctx, cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer archive.Close()

		archiveWriter = services.NewArchiveWriterService(archive, services.ArchiveWriterOptions{
			BatchSize:    cfg.ArchiveBatchSize,
			BatchTimeout: cfg.ArchiveBatchTimeout,
			Retention:    time.Duration(cfg.ArchiveRetentionDays) * 24 * time.Hour,
		}, logger)
		simulator.AddSink(archiveWriter)
		readingQuery = archive
	}

	handler := api.NewAPIHandler(api.Options{
		Store:     st,
		Simulator: simulator,
		Hub:       hub,
		Archive:   readingQuery,
		Logger:    logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logStartup(logger, cfg, alerter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return alerter.Start(gctx) })
	g.Go(func() error { return simulator.Start(gctx) })
	g.Go(func() error { return watchdog.Start(gctx) })
	if archiveWriter != nil {
		g.Go(func() error { return archiveWriter.Start(gctx) })
	}
	if mqttService != nil {
		g.Go(func() error { return mqttService.Start(gctx) })
	}
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, stopping services")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if archiveWriter != nil && !archiveWriter.WaitForShutdown(shutdownTimeout) {
		logger.Warn("Archive writer did not finish flushing")
	}
	logger.Info("JJM telemetry service stopped")
	return err
}

func logStartup(logger *zap.Logger, cfg *config.Config, alerter *services.AlerterService) {
	logger.Info("JJM telemetry service started",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Duration("sim_interval", cfg.SimulatorInterval),
		zap.Float64("anomaly_probability", cfg.AnomalyProbability),
		zap.Bool("sim_autostart", cfg.SimulatorAutostart),
		zap.Duration("stale_timeout", cfg.StaleTimeout),
		zap.Int("anomaly_window", cfg.AnomalyWindow),
		zap.Bool("archive", cfg.ArchiveEnabled()),
		zap.Strings("notifiers", alerter.Notifiers()),
	)
}
