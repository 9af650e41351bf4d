package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/events"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/repositories/memstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type harness struct {
	store *memstore.Store
	clock *fakeClock
	pub   *recordingPublisher
	cfg   *config.Config

	users    *UserService
	props    *PropertyService
	receipts *ReceiptService
	escrow   *EscrowService
	rentals  *RentalService

	landlord uuid.UUID
	tenant   uuid.UUID
	stranger uuid.UUID
	admin    uuid.UUID
}

func newHarness(t *testing.T, tweaks ...func(*config.Config)) *harness {
	t.Helper()

	h := &harness{
		store:    memstore.New(),
		clock:    &fakeClock{now: t0},
		pub:      &recordingPublisher{},
		landlord: uuid.New(),
		tenant:   uuid.New(),
		stranger: uuid.New(),
		admin:    uuid.New(),
	}
	h.cfg = &config.Config{
		SubmissionWindow:        models.DefaultSubmissionWindow,
		EnforceRefundCeiling:    true,
		DisputeResolutionPolicy: config.DisputePolicyRestore,
		AutoCreateEscrow:        true,
		AdminUserIDs:            []uuid.UUID{h.admin},
	}
	for _, tweak := range tweaks {
		tweak(h.cfg)
	}

	log := zap.NewNop()
	clock := WithClock(h.clock.Now)
	s := h.store
	h.users = NewUserService(s.Users, log, clock)
	h.props = NewPropertyService(s.Properties, s.Users, s.Audit, log, clock)
	h.receipts = NewReceiptService(s.Receipts, s.Properties, log, clock)
	h.escrow = NewEscrowService(s.Escrows, s.Timeline, s.Rentals, s.Users, h.pub, h.cfg, log, clock)
	h.rentals = NewRentalService(s.Rentals, s.Properties, s.Users, s.Audit, h.receipts, h.escrow, h.pub, h.cfg, log, clock)

	roles := map[uuid.UUID]string{
		h.landlord: models.RoleLandlord,
		h.tenant:   models.RoleTenant,
		h.stranger: models.RoleTenant,
		h.admin:    models.RoleLandlord,
	}
	for id, role := range roles {
		require.NoError(t, s.Users.Create(context.Background(), &models.User{
			ID:        id,
			Email:     id.String() + "@example.com",
			Role:      role,
			CreatedAt: t0,
		}))
	}
	return h
}

func (h *harness) listProperty(t *testing.T) *models.Property {
	t.Helper()
	p := &models.Property{
		Title:         "Sunny flat",
		Address:       "12 Garden Road",
		RentAmount:    1000,
		DepositAmount: 500,
		ImageURL:      "https://img.example/flat.jpg",
	}
	require.NoError(t, h.props.Create(context.Background(), h.landlord, p))
	return p
}

func (h *harness) requestRental(t *testing.T, p *models.Property) *models.RentalAgreement {
	t.Helper()
	start := t0.Add(48 * time.Hour)
	ra, err := h.rentals.Request(context.Background(), h.tenant, p.ID, start, start.AddDate(1, 0, 0))
	require.NoError(t, err)
	return ra
}

// confirmedRental walks a fresh property through request, approval and tenant
// confirmation. With AutoCreateEscrow the returned account is the rental's
// escrow, otherwise nil.
func (h *harness) confirmedRental(t *testing.T) (*models.RentalAgreement, *models.EscrowAccount) {
	t.Helper()
	ctx := context.Background()

	ra := h.requestRental(t, h.listProperty(t))
	_, err := h.rentals.Approve(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	ra, err = h.rentals.Confirm(ctx, h.tenant, ra.ID)
	require.NoError(t, err)

	if !h.cfg.AutoCreateEscrow {
		return ra, nil
	}
	acc, err := h.escrow.GetForRental(ctx, h.tenant, ra.ID)
	require.NoError(t, err)
	return ra, acc
}

func (h *harness) timeline(t *testing.T, escrowID int64) []models.EscrowTimelineEvent {
	t.Helper()
	evs, err := h.store.Timeline.ListByEscrow(context.Background(), escrowID, 0, 0)
	require.NoError(t, err)
	return evs
}
