package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client delivers user-facing alerts to the notification service. Delivery
// is strictly best-effort: failures are logged and swallowed so a broken
// notification channel can never fail a generation workflow.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a notification service client. An empty base URL yields
// a client that only logs, which keeps local setups working without the
// notification service running.
func NewClient(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type notification struct {
	UserID   string            `json:"user_id"`
	Type     string            `json:"notification_type"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Send posts one alert, fire-and-forget.
func (c *Client) Send(ctx context.Context, userID, notificationType, message string, metadata map[string]string) {
	if c.baseURL == "" {
		c.logger.Debug().Str("user_id", userID).Str("type", notificationType).Msg("notification service not configured, skipping alert")
		return
	}
	payload, err := json.Marshal(notification{UserID: userID, Type: notificationType, Message: message, Metadata: metadata})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode notification")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("user_id", userID).Str("type", notificationType).Msg("notification delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logger.Warn().Int("status", resp.StatusCode).Str("user_id", userID).Str("type", notificationType).Msg("notification service rejected alert")
	}
}
