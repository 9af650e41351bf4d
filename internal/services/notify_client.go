package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rental-marketplace/backend/internal/events"
	"github.com/rental-marketplace/backend/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NotifyClient forwards lifecycle events to an external webhook, throttled
// so a burst of transitions cannot flood the receiver.
type NotifyClient struct {
	webhookURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
	metrics    *metrics.LifecycleMetrics
}

func NewNotifyClient(webhookURL string, perSecond float64, log *zap.Logger, m *metrics.LifecycleMetrics) *NotifyClient {
	if perSecond <= 0 {
		perSecond = 10
	}
	return &NotifyClient{
		webhookURL: strings.TrimRight(webhookURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		log:     log,
		metrics: m,
	}
}

type webhookPayload struct {
	Stream string       `json:"stream"`
	Event  events.Event `json:"event"`
}

// Deliver posts one event. A non-2xx answer is an error so the caller can
// log it; nothing is retried.
func (c *NotifyClient) Deliver(ctx context.Context, stream string, ev events.Event) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(webhookPayload{Stream: stream, Event: ev})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveWebhook("unreachable")
		return fmt.Errorf("webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.metrics.ObserveWebhook("rejected")
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(b))
	}
	c.metrics.ObserveWebhook("delivered")
	return nil
}
