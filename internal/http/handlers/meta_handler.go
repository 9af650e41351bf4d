package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rental-marketplace/backend/internal/http/dto"
	"github.com/rental-marketplace/backend/internal/models"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaStatus struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Next     []string `json:"next"`
	Terminal bool     `json:"terminal"`
}

var rentalStatusLabels = []struct{ id, label string }{
	{models.RentalStatusRequested, "Requested"},
	{models.RentalStatusUnderReview, "Under Review"},
	{models.RentalStatusApproved, "Approved"},
	{models.RentalStatusConfirmed, "Confirmed"},
	{models.RentalStatusActive, "Active"},
	{models.RentalStatusCompleted, "Completed"},
	{models.RentalStatusCancelled, "Cancelled"},
}

var escrowStatusLabels = []struct{ id, label string }{
	{models.EscrowStatusPendingSubmission, "Pending Submission"},
	{models.EscrowStatusUnderReview, "Under Review"},
	{models.EscrowStatusFundsSecured, "Funds Secured"},
	{models.EscrowStatusActiveProtection, "Active Protection"},
	{models.EscrowStatusRefundProcessing, "Refund Processing"},
	{models.EscrowStatusCompleted, "Completed"},
	{models.EscrowStatusDisputed, "Disputed"},
	{models.EscrowStatusCancelled, "Cancelled"},
	{models.EscrowStatusExpired, "Expired"},
}

// GetRentalStatuses describes the rental state machine for clients.
func (h *MetaHandler) GetRentalStatuses(c *fiber.Ctx) error {
	out := make([]MetaStatus, 0, len(rentalStatusLabels))
	for _, s := range rentalStatusLabels {
		out = append(out, MetaStatus{
			ID:       s.id,
			Label:    s.label,
			Next:     models.ValidRentalTransitions[s.id],
			Terminal: models.IsTerminalRentalStatus(s.id),
		})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

// GetEscrowStatuses describes the escrow state machine for clients.
func (h *MetaHandler) GetEscrowStatuses(c *fiber.Ctx) error {
	out := make([]MetaStatus, 0, len(escrowStatusLabels))
	for _, s := range escrowStatusLabels {
		out = append(out, MetaStatus{
			ID:       s.id,
			Label:    s.label,
			Next:     models.ValidEscrowTransitions[s.id],
			Terminal: models.IsTerminalEscrowStatus(s.id),
		})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}
