package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/http/handlers"
	"github.com/rental-marketplace/backend/internal/metrics"
	"github.com/rental-marketplace/backend/internal/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	User     *handlers.UserHandler
	Property *handlers.PropertyHandler
	Rental   *handlers.RentalHandler
	Escrow   *handlers.EscrowHandler
	Receipt  *handlers.ReceiptHandler
	Meta     *handlers.MetaHandler
	WS       *handlers.WSHub
}

// SetupRouter mounts every route on app. rdb may be nil, which disables
// rate limiting; h.WS may be nil, which leaves /ws unmounted.
func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	m *metrics.LifecycleMetrics,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(middleware.MetricsMiddleware(m))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	// Meta (public)
	api.Get("/meta/rental-statuses", h.Meta.GetRentalStatuses)
	api.Get("/meta/escrow-statuses", h.Meta.GetEscrowStatuses)

	// Auth (public, rate-limited per IP)
	authLimit := middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log)
	api.Post("/auth/register", authLimit, h.Auth.Register)
	api.Post("/auth/login", authLimit, h.Auth.Login)

	// Read paths that degrade to empty results for anonymous callers
	public := api.Group("", middleware.OptionalAuthMiddleware(cfg, log))
	public.Get("/properties", h.Property.ListProperties)
	public.Get("/properties/:id", h.Property.GetProperty)
	public.Get("/users/:id/properties", h.Property.ListUserProperties)
	public.Get("/users/:id", h.User.GetUser)
	public.Get("/escrows", h.Escrow.ListEscrows)
	public.Get("/escrows/stats", h.Escrow.GetStats)
	public.Get("/escrows/:id", h.Escrow.GetEscrow)
	public.Get("/escrows/:id/timeline", h.Escrow.GetTimeline)

	// Protected endpoints
	protected := api.Group("",
		middleware.AuthMiddleware(cfg, log),
		middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log),
	)

	// User
	protected.Get("/me", h.User.GetMe)
	protected.Patch("/me", h.User.UpdateMe)

	// Properties
	protected.Post("/properties", h.Property.CreateProperty)
	protected.Patch("/properties/:id", h.Property.UpdateProperty)
	protected.Put("/properties/:id/availability", h.Property.SetAvailability)

	// Rentals
	protected.Post("/rentals", h.Rental.RequestRental)
	protected.Get("/rentals", h.Rental.ListRentals)
	protected.Get("/rentals/pending", h.Rental.PendingRentals)
	protected.Get("/rentals/approved", h.Rental.ApprovedRentals)
	protected.Get("/rentals/:id", h.Rental.GetRental)
	protected.Get("/rentals/:id/events", h.Rental.GetRentalEvents)
	protected.Get("/rentals/:id/escrow", h.Rental.GetRentalEscrow)
	protected.Post("/rentals/:id/review", h.Rental.MarkUnderReview())
	protected.Post("/rentals/:id/approve", h.Rental.Approve())
	protected.Post("/rentals/:id/reject", h.Rental.Reject())
	protected.Post("/rentals/:id/confirm", h.Rental.Confirm())
	protected.Post("/rentals/:id/activate", h.Rental.Activate())
	protected.Post("/rentals/:id/complete", h.Rental.Complete())
	protected.Post("/rentals/:id/cancel", h.Rental.Cancel())

	// Escrows
	protected.Post("/escrows", h.Escrow.CreateEscrow)
	protected.Post("/escrows/:id/submit", h.Escrow.SubmitDeposit)
	protected.Post("/escrows/:id/approve", h.Escrow.ApproveDeposit)
	protected.Post("/escrows/:id/activate", h.Escrow.ActivateProtection)
	protected.Post("/escrows/:id/inspect", h.Escrow.RecordInspection)
	protected.Post("/escrows/:id/refund", h.Escrow.InitiateRefund)
	protected.Post("/escrows/:id/complete", h.Escrow.CompleteRefund)
	protected.Post("/escrows/:id/expire", h.Escrow.Expire)
	protected.Post("/escrows/:id/dispute", h.Escrow.RaiseDispute)
	protected.Post("/escrows/:id/resolve", h.Escrow.ResolveDispute)
	protected.Post("/escrows/:id/cancel", h.Escrow.Cancel)

	// Receipts
	protected.Get("/receipts", h.Receipt.ListReceipts)
	protected.Get("/receipts/:id", h.Receipt.GetReceipt)

	// WebSocket
	if h.WS != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WS.HandleWS))
	}
}
