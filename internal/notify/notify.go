package notify

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier delivers human-readable messages to a single user or to the
// shared broadcast channel. Delivery is best effort: a failed notification
// never fails the operation that produced it.
type Notifier interface {
	NotifyUser(userID int64, message string) error
	Broadcast(message string) error
}

// LogNotifier writes notifications to the log. It is the default when no
// webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyUser logs a user-directed message.
func (n *LogNotifier) NotifyUser(userID int64, message string) error {
	n.logger.Info("User notification", zap.Int64("user_id", userID), zap.String("message", message))
	return nil
}

// Broadcast logs a broadcast message.
func (n *LogNotifier) Broadcast(message string) error {
	n.logger.Info("Broadcast notification", zap.String("message", message))
	return nil
}

// WebhookNotifier posts notifications as JSON to a configured endpoint,
// typically a chat-bridge relay.
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates a WebhookNotifier posting to url.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: resty.New(),
		url:    url,
		logger: logger,
	}
}

type webhookPayload struct {
	UserID  int64  `json:"user_id,omitempty"`
	Message string `json:"message"`
}

// NotifyUser posts a user-directed message.
func (n *WebhookNotifier) NotifyUser(userID int64, message string) error {
	return n.post(webhookPayload{UserID: userID, Message: message})
}

// Broadcast posts a broadcast message.
func (n *WebhookNotifier) Broadcast(message string) error {
	return n.post(webhookPayload{Message: message})
}

func (n *WebhookNotifier) post(payload webhookPayload) error {
	resp, err := n.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.Warn("Webhook notification failed", zap.Error(err))
		return fmt.Errorf("webhook post failed: %w", err)
	}
	if resp.IsError() {
		n.logger.Warn("Webhook notification rejected", zap.String("status", resp.Status()))
		return fmt.Errorf("webhook post failed with status %s", resp.Status())
	}
	return nil
}
