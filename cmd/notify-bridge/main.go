package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/db"
	"github.com/rental-marketplace/backend/internal/events"
	"github.com/rental-marketplace/backend/internal/metrics"
	"github.com/rental-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

// Notify Bridge: subscribes to rental and escrow lifecycle events and
// forwards each one to the configured webhook.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.NotifyWebhookURL == "" {
		log.Fatal("NOTIFY_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	client := services.NewNotifyClient(cfg.NotifyWebhookURL, float64(cfg.NotifyRatePerSecond), log, metrics.Lifecycle())

	log.Info("notify-bridge started", zap.String("webhook", cfg.NotifyWebhookURL))

	for _, stream := range []string{events.StreamRental, events.StreamEscrow} {
		stream := stream
		if err := subscriber.Subscribe(ctx, stream, func(event events.Event) {
			if err := client.Deliver(ctx, stream, event); err != nil {
				log.Warn("failed to forward event",
					zap.String("stream", stream),
					zap.String("type", event.Type),
					zap.Error(err),
				)
				return
			}
			log.Debug("forwarded event", zap.String("stream", stream), zap.String("type", event.Type))
		}); err != nil {
			log.Fatal("failed to subscribe", zap.String("stream", stream), zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}
