package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jjm/models"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func testAlert(sensorID string) models.Alert {
	return models.Alert{
		ID:        "A1",
		Severity:  models.AlertCritical,
		Message:   "FLOW sensor " + sensorID + " at <Hebbal> - critical",
		SensorID:  sensorID,
		Value:     "195.00 L/min",
		Timestamp: testNow,
	}
}

func TestTelegram_NotifyFormatsHTML(t *testing.T) {
	sender := &fakeSender{}
	ts := newTelegramService(sender, 42, 15*time.Second, zap.NewNop())

	require.NoError(t, ts.Notify(context.Background(), testAlert("S0001")))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "HTML", msg.ParseMode)
	assert.Contains(t, msg.Text, "&lt;Hebbal&gt;")
	assert.Contains(t, msg.Text, "195.00 L/min")
	assert.False(t, strings.Contains(msg.Text, "<Hebbal>"))
}

func TestTelegram_ThrottlesPerSensor(t *testing.T) {
	sender := &fakeSender{}
	ts := newTelegramService(sender, 42, 15*time.Second, zap.NewNop())
	now := testNow
	ts.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, ts.Notify(ctx, testAlert("S0001")))
	require.NoError(t, ts.Notify(ctx, testAlert("S0001")))
	require.NoError(t, ts.Notify(ctx, testAlert("S0002")))
	assert.Len(t, sender.sent, 2)

	now = now.Add(16 * time.Second)
	require.NoError(t, ts.Notify(ctx, testAlert("S0001")))
	assert.Len(t, sender.sent, 3)
}

func TestTelegram_FailedSendIsNotThrottled(t *testing.T) {
	sender := &fakeSender{err: errors.New("network down")}
	ts := newTelegramService(sender, 42, time.Minute, zap.NewNop())

	assert.Error(t, ts.Notify(context.Background(), testAlert("S0001")))

	sender.err = nil
	require.NoError(t, ts.Notify(context.Background(), testAlert("S0001")))
	assert.Len(t, sender.sent, 1)
}

func TestTelegram_StaleAndRecovered(t *testing.T) {
	sender := &fakeSender{}
	ts := newTelegramService(sender, 42, time.Minute, zap.NewNop())
	ctx := context.Background()

	health := models.SensorHealth{SensorID: "S0001", LastSeen: testNow, Status: models.SensorStale}
	require.NoError(t, ts.SensorStale(ctx, health, 90*time.Second))
	require.NoError(t, ts.SensorRecovered(ctx, "S0001", 2*time.Hour+5*time.Minute))

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].Text, "1 min 30 sec")
	assert.Contains(t, sender.sent[1].Text, "2 hr 5 min")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 seconds", formatDuration(45*time.Second))
	assert.Equal(t, "3 min 0 sec", formatDuration(3*time.Minute))
	assert.Equal(t, "1 hr 1 min", formatDuration(61*time.Minute))
	assert.Equal(t, "2 days 3 hr", formatDuration(51*time.Hour))
}
