package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/config"
	"jjm/models"
)

// RabbitMQService publishes critical alerts to a durable topic exchange
type RabbitMQService struct {
	url        string
	exchange   string
	routingKey string
	logger     *zap.Logger

	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	isClosing bool
}

// NewRabbitMQService creates a new RabbitMQ service instance
func NewRabbitMQService(cfg *config.Config, logger *zap.Logger) (*RabbitMQService, error) {
	service := &RabbitMQService{
		url:        cfg.RabbitMQURL,
		exchange:   cfg.RabbitMQExchange,
		routingKey: cfg.RabbitMQRoutingKey,
		logger:     logger,
	}

	if err := service.connect(); err != nil {
		return nil, err
	}

	return service, nil
}

// connect establishes connection to RabbitMQ and declares the exchange
func (r *RabbitMQService) connect() error {
	var (
		conn *amqp.Connection
		err  error
	)

	r.logger.Info("Connecting to RabbitMQ", zap.String("exchange", r.exchange))

	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err = amqp.Dial(r.url)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	if err != nil {
		return eris.Wrapf(err, "rabbitmq: connect after %d attempts", maxRetries)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return eris.Wrap(err, "rabbitmq: open channel")
	}

	err = channel.ExchangeDeclare(
		r.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		conn.Close()
		return eris.Wrap(err, "rabbitmq: declare exchange")
	}

	r.mu.Lock()
	r.conn = conn
	r.channel = channel
	r.mu.Unlock()

	r.logger.Info("Connected to RabbitMQ successfully", zap.String("exchange", r.exchange))

	go r.handleReconnect(conn)

	return nil
}

// handleReconnect reconnects when the connection drops unexpectedly
func (r *RabbitMQService) handleReconnect(conn *amqp.Connection) {
	closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1))

	r.mu.RLock()
	closing := r.isClosing
	r.mu.RUnlock()
	if closing {
		r.logger.Info("RabbitMQ connection closed gracefully")
		return
	}

	r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

	for {
		r.logger.Info("Attempting to reconnect to RabbitMQ...")
		if err := r.connect(); err == nil {
			r.logger.Info("Successfully reconnected to RabbitMQ")
			return
		} else {
			r.logger.Error("Failed to reconnect", zap.Error(err))
		}
		time.Sleep(5 * time.Second)
	}
}

func (r *RabbitMQService) Name() string { return "rabbitmq" }

// Notify publishes the alert as a persistent JSON message
func (r *RabbitMQService) Notify(ctx context.Context, alert models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "rabbitmq: marshal alert")
	}

	r.mu.RLock()
	channel := r.channel
	r.mu.RUnlock()
	if channel == nil {
		return eris.New("rabbitmq: not connected")
	}

	err = channel.PublishWithContext(ctx,
		r.exchange,   // exchange
		r.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    alert.ID,
			Timestamp:    alert.Timestamp,
		},
	)
	if err != nil {
		return eris.Wrap(err, "rabbitmq: publish alert")
	}

	r.logger.Debug("Published alert to RabbitMQ", zap.String("alert_id", alert.ID))
	return nil
}

// Close gracefully closes RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.mu.Lock()
	r.isClosing = true
	channel, conn := r.channel, r.conn
	r.mu.Unlock()

	r.logger.Info("Closing RabbitMQ connection")

	if channel != nil {
		if err := channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return eris.Wrap(err, "rabbitmq: close connection")
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
