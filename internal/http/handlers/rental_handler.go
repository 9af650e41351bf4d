package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/http/dto"
	"github.com/rental-marketplace/backend/internal/middleware"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

type RentalHandler struct {
	rentalService *services.RentalService
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewRentalHandler(rentalService *services.RentalService, escrowService *services.EscrowService, log *zap.Logger) *RentalHandler {
	return &RentalHandler{rentalService: rentalService, escrowService: escrowService, log: log}
}

func (h *RentalHandler) RequestRental(c *fiber.Ctx) error {
	var req dto.CreateRentalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.PropertyID <= 0 {
		return badRequest(c, "property_id is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return badRequest(c, "start_date and end_date are required")
	}

	ra, err := h.rentalService.Request(c.Context(), middleware.GetUserID(c), req.PropertyID, req.StartDate, req.EndDate)
	if err != nil {
		return fail(c, h.log, err)
	}
	return created(c, ra)
}

func (h *RentalHandler) ListRentals(c *fiber.Ctx) error {
	limit, offset := page(c)
	out, err := h.rentalService.ListMine(c.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, out)
}

func (h *RentalHandler) PendingRentals(c *fiber.Ctx) error {
	limit, offset := page(c)
	out, err := h.rentalService.PendingForLandlord(c.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, out)
}

func (h *RentalHandler) ApprovedRentals(c *fiber.Ctx) error {
	limit, offset := page(c)
	out, err := h.rentalService.ApprovedForTenant(c.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, out)
}

func (h *RentalHandler) GetRental(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rental id")
	}
	ra, err := h.rentalService.Get(c.Context(), middleware.GetUserID(c), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, ra)
}

func (h *RentalHandler) GetRentalEvents(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rental id")
	}
	limit, offset := page(c)
	logs, err := h.rentalService.Events(c.Context(), middleware.GetUserID(c), id, limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, logs)
}

func (h *RentalHandler) GetRentalEscrow(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rental id")
	}
	acc, err := h.escrowService.GetForRental(c.Context(), middleware.GetUserID(c), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, acc)
}

type rentalAction func(ctx context.Context, caller uuid.UUID, rentalID int64) (*models.RentalAgreement, error)

// action adapts a status-changing rental operation to a POST handler.
func (h *RentalHandler) action(op rentalAction) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, valid := paramID(c, "id")
		if !valid {
			return badRequest(c, "invalid rental id")
		}
		ra, err := op(c.Context(), middleware.GetUserID(c), id)
		if err != nil {
			return fail(c, h.log, err)
		}
		return ok(c, ra)
	}
}

func (h *RentalHandler) MarkUnderReview() fiber.Handler { return h.action(h.rentalService.MarkUnderReview) }
func (h *RentalHandler) Approve() fiber.Handler         { return h.action(h.rentalService.Approve) }
func (h *RentalHandler) Reject() fiber.Handler          { return h.action(h.rentalService.Reject) }
func (h *RentalHandler) Confirm() fiber.Handler         { return h.action(h.rentalService.Confirm) }
func (h *RentalHandler) Activate() fiber.Handler        { return h.action(h.rentalService.Activate) }
func (h *RentalHandler) Complete() fiber.Handler        { return h.action(h.rentalService.Complete) }
func (h *RentalHandler) Cancel() fiber.Handler          { return h.action(h.rentalService.Cancel) }
