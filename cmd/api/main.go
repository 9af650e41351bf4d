package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/db"
	"github.com/rental-marketplace/backend/internal/events"
	apphttp "github.com/rental-marketplace/backend/internal/http"
	"github.com/rental-marketplace/backend/internal/http/handlers"
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

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "rental-api", log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	propertyRepo := repositories.NewPropertyRepo(pool)
	rentalRepo := repositories.NewRentalRepo(pool)
	receiptRepo := repositories.NewReceiptRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	timelineRepo := repositories.NewTimelineRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	m := metrics.Lifecycle()
	opts := []services.Option{services.WithMetrics(m)}
	userService := services.NewUserService(userRepo, log, opts...)
	propertyService := services.NewPropertyService(propertyRepo, userRepo, auditRepo, log, opts...)
	receiptService := services.NewReceiptService(receiptRepo, propertyRepo, log, opts...)
	escrowService := services.NewEscrowService(escrowRepo, timelineRepo, rentalRepo, userRepo, publisher, cfg, log, opts...)
	rentalService := services.NewRentalService(rentalRepo, propertyRepo, userRepo, auditRepo, receiptService, escrowService, publisher, cfg, log, opts...)

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	h := apphttp.Handlers{
		Auth:     handlers.NewAuthHandler(userService, cfg, log),
		User:     handlers.NewUserHandler(userService, log),
		Property: handlers.NewPropertyHandler(propertyService, log),
		Rental:   handlers.NewRentalHandler(rentalService, escrowService, log),
		Escrow:   handlers.NewEscrowHandler(escrowService, log),
		Receipt:  handlers.NewReceiptHandler(receiptService, log),
		Meta:     handlers.NewMetaHandler(),
		WS:       wsHub,
	}

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, m, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
