package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/auth"
	"github.com/rental-marketplace/backend/internal/http/dto"
	"github.com/rental-marketplace/backend/internal/middleware"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, log: log}
}

func (h *EscrowHandler) CreateEscrow(c *fiber.Ctx) error {
	var req dto.CreateEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.RentalID <= 0 {
		return badRequest(c, "rental_id is required")
	}

	acc, err := h.escrowService.Create(c.Context(), middleware.GetUserID(c), req.RentalID, req.Amount)
	if err != nil {
		return fail(c, h.log, err)
	}
	return created(c, acc)
}

// GetEscrow answers anonymous callers with an envelope that carries no data.
func (h *EscrowHandler) GetEscrow(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	caller := middleware.GetUserID(c)
	if auth.IsAnonymous(caller) {
		return ok(c, nil)
	}
	acc, err := h.escrowService.Get(c.Context(), caller, id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, acc)
}

func (h *EscrowHandler) GetTimeline(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	limit, offset := page(c)
	evs, err := h.escrowService.Timeline(c.Context(), middleware.GetUserID(c), id, limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, evs)
}

// subject reads ?user=<uuid>; absent means the caller.
func subject(c *fiber.Ctx) (uuid.UUID, bool) {
	v := c.Query("user")
	if v == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *EscrowHandler) ListEscrows(c *fiber.Ctx) error {
	subj, valid := subject(c)
	if !valid {
		return badRequest(c, "invalid user")
	}
	limit, offset := page(c)
	out, err := h.escrowService.ListFor(c.Context(), middleware.GetUserID(c), subj, c.Query("role"), limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, out)
}

func (h *EscrowHandler) GetStats(c *fiber.Ctx) error {
	subj, valid := subject(c)
	if !valid {
		return badRequest(c, "invalid user")
	}
	st, err := h.escrowService.Statistics(c.Context(), middleware.GetUserID(c), subj, c.Query("role"))
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, st)
}

func (h *EscrowHandler) reply(c *fiber.Ctx, acc *models.EscrowAccount, err error) error {
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, acc)
}

func (h *EscrowHandler) SubmitDeposit(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.TransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	acc, err := h.escrowService.SubmitDeposit(c.Context(), middleware.GetUserID(c), id, req.TransactionHash)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) ApproveDeposit(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.ApproveDepositRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	acc, err := h.escrowService.ApproveDeposit(c.Context(), middleware.GetUserID(c), id, req.CustodyRef)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) ActivateProtection(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	acc, err := h.escrowService.ActivateProtection(c.Context(), middleware.GetUserID(c), id)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) RecordInspection(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.NoteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}
	ev, err := h.escrowService.RecordInspection(c.Context(), middleware.GetUserID(c), id, req.Note)
	if err != nil {
		return fail(c, h.log, err)
	}
	return created(c, ev)
}

func (h *EscrowHandler) InitiateRefund(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.RefundAmount == nil {
		return badRequest(c, "refund_amount is required")
	}
	acc, err := h.escrowService.InitiateRefund(c.Context(), middleware.GetUserID(c), id, *req.RefundAmount)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) CompleteRefund(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.TransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	acc, err := h.escrowService.CompleteRefund(c.Context(), middleware.GetUserID(c), id, req.TransactionHash)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) Expire(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	acc, err := h.escrowService.Expire(c.Context(), middleware.GetUserID(c), id)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) RaiseDispute(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.DisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	acc, err := h.escrowService.RaiseDispute(c.Context(), middleware.GetUserID(c), id, req.Reason)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) ResolveDispute(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	var req dto.NoteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}
	acc, err := h.escrowService.ResolveDispute(c.Context(), middleware.GetUserID(c), id, req.Note)
	return h.reply(c, acc, err)
}

func (h *EscrowHandler) Cancel(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid escrow id")
	}
	acc, err := h.escrowService.Cancel(c.Context(), middleware.GetUserID(c), id)
	return h.reply(c, acc, err)
}
