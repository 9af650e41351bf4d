package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/auth"
	"github.com/rental-marketplace/backend/internal/models"
	"go.uber.org/zap"
)

// maxReceiptImageBytes bounds the image stored on a receipt. Larger images
// are replaced by a text placeholder.
const maxReceiptImageBytes = 50 * 1024

// ReceiptService mints and serves the non-transferable rental receipts.
// There is no transfer operation.
type ReceiptService struct {
	receipts   ReceiptStore
	properties PropertyStore
	log        *zap.Logger
	now        func() time.Time
}

func NewReceiptService(receipts ReceiptStore, properties PropertyStore, log *zap.Logger, opts ...Option) *ReceiptService {
	o := applyOptions(opts)
	return &ReceiptService{
		receipts:   receipts,
		properties: properties,
		log:        log,
		now:        o.now,
	}
}

// Mint issues the receipt for a rental to its tenant. Minting the same rental
// twice returns the existing receipt.
func (s *ReceiptService) Mint(ctx context.Context, rental *models.RentalAgreement) (*models.RentalReceipt, error) {
	existing, err := s.receipts.GetByRentalID(ctx, rental.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	prop, err := s.properties.GetByID(ctx, rental.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("property %d: %w", rental.PropertyID, err)
	}

	rc := buildReceipt(rental, prop)
	rc.CreatedAt = s.now()
	if err := s.receipts.Create(ctx, rc); err != nil {
		return nil, err
	}

	s.log.Info("receipt minted",
		zap.Int64("receipt_id", rc.ID),
		zap.Int64("rental_id", rental.ID),
		zap.String("owner", rc.OwnerUserID.String()),
	)
	return rc, nil
}

func buildReceipt(rental *models.RentalAgreement, prop *models.Property) *models.RentalReceipt {
	image := prop.ImageURL
	if len(image) > maxReceiptImageBytes {
		image = fmt.Sprintf("Property ID: %d - Image too large for receipt storage", prop.ID)
	}
	return &models.RentalReceipt{
		OwnerUserID: rental.TenantUserID,
		PropertyID:  prop.ID,
		RentalID:    rental.ID,
		Name:        "Rental Agreement NFT - " + prop.Title,
		Description: "This NFT represents a rental agreement for the property at " + prop.Address,
		Image:       image,
		Attributes: []models.ReceiptAttribute{
			{TraitType: "Property ID", Value: strconv.FormatInt(prop.ID, 10)},
			{TraitType: "Rental Agreement ID", Value: strconv.FormatInt(rental.ID, 10)},
			{TraitType: "Property Address", Value: prop.Address},
			{TraitType: "Monthly Rent", Value: strconv.FormatInt(rental.RentAmount, 10)},
			{TraitType: "Start Date", Value: rental.StartDate.UTC().Format(time.DateOnly)},
			{TraitType: "End Date", Value: rental.EndDate.UTC().Format(time.DateOnly)},
		},
	}
}

func (s *ReceiptService) Get(ctx context.Context, caller uuid.UUID, id int64) (*models.RentalReceipt, error) {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	rc, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("receipt %d: %w", id, err)
	}
	if rc.OwnerUserID != caller {
		return nil, models.ErrForbidden
	}
	return rc, nil
}

func (s *ReceiptService) ListMine(ctx context.Context, caller uuid.UUID, limit, offset int) ([]models.RentalReceipt, error) {
	if auth.IsAnonymous(caller) {
		return []models.RentalReceipt{}, nil
	}
	out, err := s.receipts.ListByOwner(ctx, caller, limit, offset)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.RentalReceipt{}
	}
	return out, nil
}
