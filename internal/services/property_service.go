package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/auth"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/rbac"
	"github.com/rental-marketplace/backend/internal/repositories"
	"go.uber.org/zap"
)

type PropertyService struct {
	properties PropertyStore
	users      UserStore
	audit      AuditStore
	log        *zap.Logger
	now        func() time.Time
}

func NewPropertyService(properties PropertyStore, users UserStore, audit AuditStore, log *zap.Logger, opts ...Option) *PropertyService {
	o := applyOptions(opts)
	return &PropertyService{
		properties: properties,
		users:      users,
		audit:      audit,
		log:        log,
		now:        o.now,
	}
}

// Create lists a new, available property owned by the calling landlord.
func (s *PropertyService) Create(ctx context.Context, caller uuid.UUID, p *models.Property) error {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return err
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermListProperty); err != nil {
		return err
	}
	if p.PropertyType == "" {
		p.PropertyType = models.PropertyTypeApartment
	}
	if err := normalizeProperty(p); err != nil {
		return err
	}

	p.OwnerUserID = caller
	p.IsAvailable = true
	p.CreatedAt = s.now()
	if err := s.properties.Create(ctx, p); err != nil {
		return err
	}
	s.auditProperty(ctx, caller, p.ID, "property_listed", nil, p.CreatedAt)
	return nil
}

// Update edits the listing. Only the owner may do so, and only while still
// registered as a landlord.
func (s *PropertyService) Update(ctx context.Context, caller uuid.UUID, id int64, changes models.PropertyUpdate) (*models.Property, error) {
	p, err := s.owned(ctx, caller, id, "update")
	if err != nil {
		return nil, err
	}
	if err := requirePermission(ctx, s.users, caller, rbac.PermListProperty); err != nil {
		return nil, err
	}

	changes.Apply(p)
	if err := normalizeProperty(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.properties.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("property %d: %w", id, err)
	}
	s.auditProperty(ctx, caller, p.ID, "property_updated", nil, p.UpdatedAt)
	return p, nil
}

// SetAvailability lets the owner take a listing off the market or put it
// back. A second open agreement on the property is still refused by the
// rental store.
func (s *PropertyService) SetAvailability(ctx context.Context, caller uuid.UUID, id int64, available bool) (*models.Property, error) {
	p, err := s.owned(ctx, caller, id, "change availability of")
	if err != nil {
		return nil, err
	}
	if p.IsAvailable == available {
		return p, nil
	}

	now := s.now()
	if err := s.properties.SetAvailable(ctx, id, available, now); err != nil {
		return nil, fmt.Errorf("property %d: %w", id, err)
	}
	s.auditProperty(ctx, caller, id, "property_availability_changed", map[string]any{"is_available": available}, now)
	p.IsAvailable = available
	p.UpdatedAt = now
	return p, nil
}

func (s *PropertyService) owned(ctx context.Context, caller uuid.UUID, id int64, verb string) (*models.Property, error) {
	if _, err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	p, err := s.properties.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("property %d: %w", id, err)
	}
	if p.OwnerUserID != caller {
		return nil, fmt.Errorf("only the owner can %s a property: %w", verb, models.ErrForbidden)
	}
	return p, nil
}

func (s *PropertyService) auditProperty(ctx context.Context, caller uuid.UUID, id int64, action string, meta any, at time.Time) {
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: uuidPtr(caller),
		ActorType:   models.ActorTypeUser,
		Action:      action,
		EntityType:  "property",
		EntityID:    id,
		Meta:        meta,
		CreatedAt:   at,
	}); err != nil {
		s.log.Error("failed to write property audit entry", zap.Int64("property_id", id), zap.String("action", action), zap.Error(err))
	}
}

// normalizeProperty trims the text fields and checks the listing is usable.
func normalizeProperty(p *models.Property) error {
	p.Title = strings.TrimSpace(p.Title)
	p.Address = strings.TrimSpace(p.Address)
	if p.Title == "" || p.Address == "" {
		return fmt.Errorf("title and address are required: %w", models.ErrInvalidArgument)
	}
	if p.RentAmount < 0 || p.DepositAmount < 0 {
		return fmt.Errorf("amounts must not be negative: %w", models.ErrInvalidArgument)
	}
	if !models.IsValidPropertyType(p.PropertyType) {
		return fmt.Errorf("unknown property type %q: %w", p.PropertyType, models.ErrInvalidArgument)
	}
	if p.Bedrooms < 0 || p.Bathrooms < 0 || p.AreaSqft < 0 {
		return fmt.Errorf("room counts and area must not be negative: %w", models.ErrInvalidArgument)
	}
	p.Images = compactStrings(p.Images)
	p.Amenities = compactStrings(p.Amenities)
	return nil
}

// compactStrings trims entries and drops blanks. The result is never nil.
func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *PropertyService) Get(ctx context.Context, id int64) (*models.Property, error) {
	p, err := s.properties.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("property %d: %w", id, err)
	}
	return p, nil
}

func (s *PropertyService) List(ctx context.Context, f repositories.PropertyFilter) ([]models.Property, error) {
	out, err := s.properties.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Property{}
	}
	return out, nil
}

// ListByOwner returns the listings of owner. A zero owner means the caller.
func (s *PropertyService) ListByOwner(ctx context.Context, caller, owner uuid.UUID, limit, offset int) ([]models.Property, error) {
	if owner == uuid.Nil {
		if _, err := auth.RequireAuthenticated(caller); err != nil {
			return nil, err
		}
		owner = caller
	}
	return s.List(ctx, repositories.PropertyFilter{OwnerUserID: &owner, Limit: limit, Offset: offset})
}
