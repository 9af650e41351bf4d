package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/db"
	"github.com/rental-marketplace/backend/internal/events"
	"github.com/rental-marketplace/backend/internal/metrics"
	"github.com/rental-marketplace/backend/internal/repositories"
	"github.com/rental-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "rental-worker", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	userRepo := repositories.NewUserRepo(pool)
	propertyRepo := repositories.NewPropertyRepo(pool)
	rentalRepo := repositories.NewRentalRepo(pool)
	receiptRepo := repositories.NewReceiptRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	timelineRepo := repositories.NewTimelineRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	m := metrics.Lifecycle()
	opts := []services.Option{services.WithMetrics(m)}
	publisher := events.NewRedisPublisher(rdb, log)
	receiptService := services.NewReceiptService(receiptRepo, propertyRepo, log, opts...)
	escrowService := services.NewEscrowService(escrowRepo, timelineRepo, rentalRepo, userRepo, publisher, cfg, log, opts...)
	rentalService := services.NewRentalService(rentalRepo, propertyRepo, userRepo, auditRepo, receiptService, escrowService, publisher, cfg, log, opts...)

	// Health and metrics
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	go func() {
		addr := fmt.Sprintf(":%s", cfg.WorkerPort)
		if err := app.Listen(addr); err != nil {
			log.Error("worker http server stopped", zap.Error(err))
		}
	}()

	log.Info("worker started",
		zap.Duration("expiry_interval", cfg.ExpirySweepInterval),
		zap.Duration("activation_interval", cfg.ActivationSweepInterval),
	)

	// Run jobs on tickers
	expiryTicker := time.NewTicker(cfg.ExpirySweepInterval)
	activationTicker := time.NewTicker(cfg.ActivationSweepInterval)
	defer expiryTicker.Stop()
	defer activationTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expiryTicker.C:
			runEscrowExpiry(ctx, escrowService, log)
		case <-activationTicker.C:
			runRentalActivation(ctx, rentalService, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			_ = app.Shutdown()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runEscrowExpiry(ctx context.Context, escrowService *services.EscrowService, log *zap.Logger) {
	n, err := escrowService.ExpireOverdue(ctx)
	if err != nil {
		log.Error("escrow expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expired overdue escrows", zap.Int("count", n))
	}
}

func runRentalActivation(ctx context.Context, rentalService *services.RentalService, log *zap.Logger) {
	n, err := rentalService.ActivateDue(ctx)
	if err != nil {
		log.Error("rental activation sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("activated due rentals", zap.Int("count", n))
	}
}
