package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/config"
	"jjm/models"
)

// telegramSender is the part of *tgbotapi.BotAPI used for delivery
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramService struct {
	bot            telegramSender
	chatID         int64
	throttle       time.Duration
	now            func() time.Time
	logger         *zap.Logger
	mu             sync.Mutex
	lastAlertTimes map[string]time.Time // last alert time per sensor
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, eris.Wrap(err, "telegram: create bot")
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, eris.Wrap(err, "telegram: parse chat ID")
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	if err := testTelegramConnection(bot, logger); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, err
	}

	return newTelegramService(bot, chatID, cfg.TelegramThrottle, logger), nil
}

func newTelegramService(sender telegramSender, chatID int64, throttle time.Duration, logger *zap.Logger) *TelegramService {
	return &TelegramService{
		bot:            sender,
		chatID:         chatID,
		throttle:       throttle,
		now:            time.Now,
		logger:         logger,
		lastAlertTimes: make(map[string]time.Time),
	}
}

// testTelegramConnection tests Telegram connection with retry logic
func testTelegramConnection(bot *tgbotapi.BotAPI, logger *zap.Logger) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := bot.GetMe()
		if err == nil {
			logger.Info("Telegram connection successful")
			return nil
		}

		logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return eris.Errorf("telegram: failed to connect after %d attempts", maxRetries)
}

func (ts *TelegramService) Name() string { return "telegram" }

// Notify sends a formatted alert, at most one per sensor per throttle window
func (ts *TelegramService) Notify(_ context.Context, alert models.Alert) error {
	if ts.shouldThrottleAlert(alert.SensorID) {
		ts.logger.Debug("Throttling alert", zap.String("sensor_id", alert.SensorID))
		return nil
	}

	if err := ts.send(formatAlertMessage(alert)); err != nil {
		return eris.Wrap(err, "telegram: send alert")
	}

	ts.mu.Lock()
	ts.lastAlertTimes[alert.SensorID] = ts.now()
	ts.mu.Unlock()

	ts.logger.Info("Sent critical alert", zap.String("sensor_id", alert.SensorID))
	return nil
}

// shouldThrottleAlert reports whether a sensor alerted within the window
func (ts *TelegramService) shouldThrottleAlert(sensorID string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	last, exists := ts.lastAlertTimes[sensorID]
	if !exists {
		return false
	}
	return ts.now().Sub(last) < ts.throttle
}

func (ts *TelegramService) send(text string) error {
	msg := tgbotapi.NewMessage(ts.chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	_, err := ts.bot.Send(msg)
	return err
}

func formatAlertMessage(alert models.Alert) string {
	var sb strings.Builder

	sb.WriteString("🚨 <b>JJM SENSOR ALERT</b> 🚨\n\n")
	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n\n", alert.GetAlertEmoji(), html.EscapeString(alert.Message)))
	sb.WriteString(fmt.Sprintf("📟 <b>Sensor:</b> %s\n", html.EscapeString(alert.SensorID)))
	sb.WriteString(fmt.Sprintf("📊 <b>Reading:</b> %s\n", html.EscapeString(alert.Value)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n\n", alert.Timestamp.Format("2006-01-02 15:04:05")))
	sb.WriteString("💡 <b>Recommended Action:</b>\n")
	sb.WriteString("Dispatch a field engineer to inspect the sensor location.\n\n")
	sb.WriteString("🔴 <b>Status:</b> ATTENTION REQUIRED")

	return sb.String()
}

// SendStatusMessage sends a general status message
func (ts *TelegramService) SendStatusMessage(message string) error {
	return ts.send(message)
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage(sensorCount int) error {
	message := "🟢 <b>JJM Telemetry Service Started</b>\n\n" +
		fmt.Sprintf("📡 Simulating %d sensors\n", sensorCount) +
		"🤖 Telegram notifications active\n\n" +
		"✅ System is ready and operational!"

	return ts.SendStatusMessage(message)
}

// SensorStale reports a sensor that stopped reporting
func (ts *TelegramService) SensorStale(_ context.Context, health models.SensorHealth, silentFor time.Duration) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>SENSOR STOPPED REPORTING</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("📟 <b>Sensor:</b> %s\n", html.EscapeString(health.SensorID)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Last Seen:</b> %s\n", health.LastSeen.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Silent For:</b> %s\n\n", formatDuration(silentFor)))
	sb.WriteString("🔴 <b>Status:</b> SENSOR STALE")

	if err := ts.send(sb.String()); err != nil {
		return eris.Wrap(err, "telegram: send stale sensor alert")
	}
	return nil
}

// SensorRecovered reports a stale sensor that is reporting again
func (ts *TelegramService) SensorRecovered(_ context.Context, sensorID string, downtime time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>SENSOR RECOVERED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("📟 <b>Sensor:</b> %s\n", html.EscapeString(sensorID)))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downtime)))
	sb.WriteString("🟢 <b>Status:</b> SENSOR ONLINE")

	if err := ts.send(sb.String()); err != nil {
		return eris.Wrap(err, "telegram: send sensor recovery alert")
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
