package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rental-marketplace/backend/internal/middleware"
	"github.com/rental-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	receiptService *services.ReceiptService
	log            *zap.Logger
}

func NewReceiptHandler(receiptService *services.ReceiptService, log *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService, log: log}
}

func (h *ReceiptHandler) ListReceipts(c *fiber.Ctx) error {
	limit, offset := page(c)
	out, err := h.receiptService.ListMine(c.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, out)
}

func (h *ReceiptHandler) GetReceipt(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid receipt id")
	}
	rc, err := h.receiptService.Get(c.Context(), middleware.GetUserID(c), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, rc)
}
