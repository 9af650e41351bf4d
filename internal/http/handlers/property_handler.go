package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/http/dto"
	"github.com/rental-marketplace/backend/internal/middleware"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/repositories"
	"github.com/rental-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

type PropertyHandler struct {
	propertyService *services.PropertyService
	log             *zap.Logger
}

func NewPropertyHandler(propertyService *services.PropertyService, log *zap.Logger) *PropertyHandler {
	return &PropertyHandler{propertyService: propertyService, log: log}
}

func (h *PropertyHandler) CreateProperty(c *fiber.Ctx) error {
	var req dto.CreatePropertyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	p := &models.Property{
		Title:         req.Title,
		Address:       req.Address,
		Description:   req.Description,
		RentAmount:    req.RentAmount,
		DepositAmount: req.DepositAmount,
		PropertyType:  req.PropertyType,
		Bedrooms:      req.Bedrooms,
		Bathrooms:     req.Bathrooms,
		AreaSqft:      req.AreaSqft,
		ImageURL:      req.ImageURL,
		Images:        req.Images,
		Amenities:     req.Amenities,
	}
	if err := h.propertyService.Create(c.Context(), middleware.GetUserID(c), p); err != nil {
		return fail(c, h.log, err)
	}
	return created(c, p)
}

// ListProperties is public. ?available=true narrows to listed properties,
// ?owner=<uuid> to one landlord, ?owner=me to the caller.
func (h *PropertyHandler) ListProperties(c *fiber.Ctx) error {
	limit, offset := page(c)
	filter := repositories.PropertyFilter{
		AvailableOnly: c.QueryBool("available", false),
		Limit:         limit,
		Offset:        offset,
	}

	switch owner := c.Query("owner"); owner {
	case "":
	case "me":
		userID := middleware.GetUserID(c)
		if userID == uuid.Nil {
			return ok(c, []models.Property{})
		}
		filter.OwnerUserID = &userID
	default:
		id, err := uuid.Parse(owner)
		if err != nil {
			return badRequest(c, "invalid owner")
		}
		filter.OwnerUserID = &id
	}

	props, err := h.propertyService.List(c.Context(), filter)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, props)
}

func (h *PropertyHandler) GetProperty(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid property id")
	}
	p, err := h.propertyService.Get(c.Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, p)
}

func (h *PropertyHandler) UpdateProperty(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid property id")
	}
	var req dto.UpdatePropertyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	p, err := h.propertyService.Update(c.Context(), middleware.GetUserID(c), id, models.PropertyUpdate{
		Title:         req.Title,
		Address:       req.Address,
		Description:   req.Description,
		RentAmount:    req.RentAmount,
		DepositAmount: req.DepositAmount,
		PropertyType:  req.PropertyType,
		Bedrooms:      req.Bedrooms,
		Bathrooms:     req.Bathrooms,
		AreaSqft:      req.AreaSqft,
		ImageURL:      req.ImageURL,
		Images:        req.Images,
		Amenities:     req.Amenities,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, p)
}

func (h *PropertyHandler) SetAvailability(c *fiber.Ctx) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid property id")
	}
	var req dto.AvailabilityRequest
	if err := c.BodyParser(&req); err != nil || req.IsAvailable == nil {
		return badRequest(c, "is_available is required")
	}

	p, err := h.propertyService.SetAvailability(c.Context(), middleware.GetUserID(c), id, *req.IsAvailable)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, p)
}

// ListUserProperties is public: /users/me/properties for the caller's own
// listings, /users/<uuid>/properties for anyone else's.
func (h *PropertyHandler) ListUserProperties(c *fiber.Ctx) error {
	var owner uuid.UUID
	if raw := c.Params("id"); raw != "me" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "invalid user id")
		}
		owner = id
	}

	limit, offset := page(c)
	props, err := h.propertyService.ListByOwner(c.Context(), middleware.GetUserID(c), owner, limit, offset)
	if err != nil {
		return fail(c, h.log, err)
	}
	return ok(c, props)
}
