package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Storage backends accepted in STORAGE_BACKEND
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StorageFirebase = "firebase"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string

	// Simulator
	SimulatorInterval  time.Duration
	AnomalyProbability float64
	SimulatorAutostart bool
	RandomSeed         int64
	HistoryCapacity    int
	AlertCapacity      int
	ActivityCapacity   int
	StaleTimeout       time.Duration
	AnomalyWindow      int
	AnomalyZScore      float64

	// Persistence
	StorageBackend             string
	StorageDir                 string
	SQLitePath                 string
	RedisAddr                  string
	RedisPassword              string
	RedisDB                    int
	RedisPrefix                string
	FirebaseDbUrl              string
	FirebaseServiceAccountJSON string

	// Reading archive
	ArchivePath          string
	ArchiveBatchSize     int
	ArchiveBatchTimeout  time.Duration
	ArchiveRetentionDays int

	// Notifications
	TelegramBotToken   string
	TelegramChatID     string
	TelegramThrottle   time.Duration
	RabbitMQURL        string
	RabbitMQExchange   string
	RabbitMQRoutingKey string
	AlertWebhookURL    string

	// MQTT bridge
	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string
	MQTTIngest   bool

	// Real-time client
	WebSocketURL string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("cors_origins", "*")

	v.SetDefault("sim_interval", 3*time.Second)
	v.SetDefault("sim_anomaly_probability", 0.05)
	v.SetDefault("sim_autostart", true)
	v.SetDefault("sim_seed", 0)
	v.SetDefault("history_capacity", 50)
	v.SetDefault("alert_capacity", 500)
	v.SetDefault("activity_capacity", 50)
	v.SetDefault("stale_timeout", 30*time.Second)
	v.SetDefault("anomaly_window", 10)
	v.SetDefault("anomaly_zscore", 3.0)

	v.SetDefault("storage_backend", StorageFile)
	v.SetDefault("storage_dir", "data")
	v.SetDefault("sqlite_path", "data/jjm.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_prefix", "")
	v.SetDefault("firebase_db_url", "")
	v.SetDefault("firebase_service_account_json", "")

	v.SetDefault("archive_path", "")
	v.SetDefault("archive_batch_size", 500)
	v.SetDefault("archive_batch_timeout", 10*time.Second)
	v.SetDefault("archive_retention_days", 90)

	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", "")
	v.SetDefault("telegram_throttle", 15*time.Second)
	v.SetDefault("rabbitmq_url", "")
	v.SetDefault("rabbitmq_exchange", "jjm.alerts")
	v.SetDefault("rabbitmq_routing_key", "alerts.critical")
	v.SetDefault("alert_webhook_url", "")

	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_username", "")
	v.SetDefault("mqtt_password", "")
	v.SetDefault("mqtt_client_id", "jjm-service")
	v.SetDefault("mqtt_ingest", false)

	v.SetDefault("ws_url", "ws://localhost:8000/ws")
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	config := &Config{
		HTTPAddr:    v.GetString("http_addr"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   strings.ToLower(v.GetString("log_format")),
		CORSOrigins: splitList(v.GetString("cors_origins")),

		SimulatorInterval:  v.GetDuration("sim_interval"),
		AnomalyProbability: v.GetFloat64("sim_anomaly_probability"),
		SimulatorAutostart: v.GetBool("sim_autostart"),
		RandomSeed:         v.GetInt64("sim_seed"),
		HistoryCapacity:    v.GetInt("history_capacity"),
		AlertCapacity:      v.GetInt("alert_capacity"),
		ActivityCapacity:   v.GetInt("activity_capacity"),
		StaleTimeout:       v.GetDuration("stale_timeout"),
		AnomalyWindow:      v.GetInt("anomaly_window"),
		AnomalyZScore:      v.GetFloat64("anomaly_zscore"),

		StorageBackend:             strings.ToLower(v.GetString("storage_backend")),
		StorageDir:                 v.GetString("storage_dir"),
		SQLitePath:                 v.GetString("sqlite_path"),
		RedisAddr:                  v.GetString("redis_addr"),
		RedisPassword:              v.GetString("redis_password"),
		RedisDB:                    v.GetInt("redis_db"),
		RedisPrefix:                v.GetString("redis_prefix"),
		FirebaseDbUrl:              v.GetString("firebase_db_url"),
		FirebaseServiceAccountJSON: v.GetString("firebase_service_account_json"),

		ArchivePath:          v.GetString("archive_path"),
		ArchiveBatchSize:     v.GetInt("archive_batch_size"),
		ArchiveBatchTimeout:  v.GetDuration("archive_batch_timeout"),
		ArchiveRetentionDays: v.GetInt("archive_retention_days"),

		TelegramBotToken:   v.GetString("telegram_bot_token"),
		TelegramChatID:     v.GetString("telegram_chat_id"),
		TelegramThrottle:   v.GetDuration("telegram_throttle"),
		RabbitMQURL:        v.GetString("rabbitmq_url"),
		RabbitMQExchange:   v.GetString("rabbitmq_exchange"),
		RabbitMQRoutingKey: v.GetString("rabbitmq_routing_key"),
		AlertWebhookURL:    v.GetString("alert_webhook_url"),

		MQTTBroker:   v.GetString("mqtt_broker"),
		MQTTUsername: v.GetString("mqtt_username"),
		MQTTPassword: v.GetString("mqtt_password"),
		MQTTClientID: v.GetString("mqtt_client_id"),
		MQTTIngest:   v.GetBool("mqtt_ingest"),

		WebSocketURL: v.GetString("ws_url"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.SimulatorInterval <= 0 {
		return eris.Errorf("config: SIM_INTERVAL must be positive, got %s", c.SimulatorInterval)
	}
	if c.AnomalyProbability < 0 || c.AnomalyProbability > 1 {
		return eris.Errorf("config: SIM_ANOMALY_PROBABILITY must be within [0,1], got %v", c.AnomalyProbability)
	}
	if c.HistoryCapacity < 1 || c.AlertCapacity < 1 || c.ActivityCapacity < 1 {
		return eris.New("config: collection capacities must be at least 1")
	}
	// a watchdog timeout inside one tick flags every sensor between ticks
	if c.StaleTimeout <= c.SimulatorInterval {
		return eris.Errorf("config: STALE_TIMEOUT (%s) must be longer than SIM_INTERVAL (%s)", c.StaleTimeout, c.SimulatorInterval)
	}
	if c.AnomalyWindow != 0 && c.AnomalyWindow < 3 {
		return eris.Errorf("config: ANOMALY_WINDOW must be 0 (disabled) or at least 3, got %d", c.AnomalyWindow)
	}
	if c.AnomalyZScore <= 0 {
		return eris.Errorf("config: ANOMALY_ZSCORE must be positive, got %v", c.AnomalyZScore)
	}
	switch c.StorageBackend {
	case StorageMemory, StorageFile, StorageSQLite:
	case StorageRedis:
		if c.RedisAddr == "" {
			return eris.New("config: REDIS_ADDR is required for the redis storage backend")
		}
	case StorageFirebase:
		if c.FirebaseDbUrl == "" || c.FirebaseServiceAccountJSON == "" {
			return eris.New("config: FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON are required for the firebase storage backend")
		}
	default:
		return eris.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

func (c *Config) RabbitMQEnabled() bool { return c.RabbitMQURL != "" }

func (c *Config) MQTTEnabled() bool { return c.MQTTBroker != "" }

func (c *Config) ArchiveEnabled() bool { return c.ArchivePath != "" }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
