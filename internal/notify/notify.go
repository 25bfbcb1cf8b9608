// Package notify delivers order lifecycle notifications to external
// sinks. Delivery is best-effort: a failed notification is retried a
// few times, then logged and dropped. It never blocks order
// processing beyond those retries.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"quantdinger/internal/domain"
	"quantdinger/internal/util"
)

// Notifier receives a notification for every terminal order transition.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Compile-time interface checks.
var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*NopNotifier)(nil)
	_ Notifier = (Multi)(nil)
)

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Notification) {}

// Multi fans a notification out to several sinks.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n domain.Notification) {
	for _, sink := range m {
		sink.Notify(ctx, n)
	}
}

// WebhookNotifier POSTs each notification as JSON to a configured URL.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	log     *slog.Logger
	enabled bool
}

// NewWebhookNotifier creates a WebhookNotifier. An empty URL disables it.
func NewWebhookNotifier(url string, log *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		enabled: url != "",
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n domain.Notification) {
	if !w.enabled {
		return
	}
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		return w.post(ctx, n)
	})
	if err != nil {
		w.log.Warn("webhook notification dropped",
			"orderId", n.OrderID, "status", n.Status, "error", err)
	}
}

func (w *WebhookNotifier) post(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
