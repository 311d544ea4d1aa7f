package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"jjm/models"
)

// WebhookService posts critical alerts to an HTTP endpoint
type WebhookService struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
}

// WebhookPayload is the JSON body sent to the webhook
type WebhookPayload struct {
	Alert     models.Alert `json:"alert"`
	Severity  string       `json:"severity"`
	AlertType string       `json:"alert_type"`
}

func NewWebhookService(logger *zap.Logger, url string) *WebhookService {
	return &WebhookService{
		logger: logger,
		url:    url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (h *WebhookService) Name() string { return "webhook" }

// Notify sends the alert via HTTP POST and expects a 2xx response
func (h *WebhookService) Notify(ctx context.Context, alert models.Alert) error {
	payload := WebhookPayload{
		Alert:     alert,
		Severity:  string(alert.Severity),
		AlertType: "sensor_threshold",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "webhook: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "JJM-Telemetry-Service/1.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "webhook: post %s", h.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.logger.Info("Webhook alert sent successfully",
			zap.String("sensor_id", alert.SensorID),
			zap.Int("status_code", resp.StatusCode))
		return nil
	}

	h.logger.Error("Webhook returned error",
		zap.String("sensor_id", alert.SensorID),
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", resp.Status))
	return eris.Errorf("webhook: unexpected status %s", resp.Status)
}
