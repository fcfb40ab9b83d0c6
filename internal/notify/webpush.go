package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"parley/internal/storage"
)

// SubscriptionStore is the part of storage the web push sender needs.
type SubscriptionStore interface {
	PushSubscriptions(ctx context.Context, userID string) ([]storage.PushSubscription, error)
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error
}

type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	Timeout    time.Duration
}

type WebPushSender struct {
	config WebPushConfig
	store  SubscriptionStore
	client *http.Client
	logger *slog.Logger
}

func NewWebPushSender(config WebPushConfig, store SubscriptionStore, logger *slog.Logger) *WebPushSender {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	// webpush-go adds the mailto: scheme itself.
	config.Subject = strings.TrimPrefix(config.Subject, "mailto:")
	return &WebPushSender{
		config: config,
		store:  store,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With("component", "webpush"),
	}
}

func (w *WebPushSender) Name() string {
	return "webpush"
}

func (w *WebPushSender) Send(ctx context.Context, task Task) error {
	subs, err := w.store.PushSubscriptions(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				Auth:   sub.Auth,
				P256dh: sub.P256dh,
			},
		}, &webpush.Options{
			HTTPClient:      w.client,
			Subscriber:      w.config.Subject,
			VAPIDPublicKey:  w.config.PublicKey,
			VAPIDPrivateKey: w.config.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			w.logger.Warn("push failed", "user_id", task.UserID, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		// The push service forgets expired subscriptions.
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := w.store.RemovePushSubscription(ctx, task.UserID, sub.Endpoint); err != nil {
				w.logger.Error("failed to remove subscription", "user_id", task.UserID, "error", err)
			}
		}
	}
	return nil
}
