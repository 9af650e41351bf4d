package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/auth"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/events"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func (h *harness) property(t *testing.T, id int64) *models.Property {
	t.Helper()
	p, err := h.props.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestRentalHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.listProperty(t)
	require.True(t, p.IsAvailable)

	ra := h.requestRental(t, p)
	require.Equal(t, models.RentalStatusRequested, ra.Status)
	require.Equal(t, h.landlord, ra.LandlordUserID)
	require.Equal(t, int64(1000), ra.RentAmount)
	require.Equal(t, int64(500), ra.DepositAmount)
	require.False(t, h.property(t, p.ID).IsAvailable)

	approved, err := h.rentals.Approve(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusApproved, approved.Status)

	confirmed, err := h.rentals.Confirm(ctx, h.tenant, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.NFTID)
	require.False(t, h.property(t, p.ID).IsAvailable, "a confirmed rental keeps the property off the market")

	rc, err := h.receipts.Get(ctx, h.tenant, *confirmed.NFTID)
	require.NoError(t, err)
	require.Equal(t, ra.ID, rc.RentalID)
	require.Equal(t, h.tenant, rc.OwnerUserID)

	acc, err := h.escrow.GetForRental(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Equal(t, int64(500), acc.Amount)
	require.Equal(t, models.EscrowStatusPendingSubmission, acc.Status)
	evs := h.timeline(t, acc.ID)
	require.Len(t, evs, 1)
	require.Nil(t, evs[0].ActorUserID, "auto-created escrows are opened by the system")

	_, err = h.rentals.Approve(ctx, h.landlord, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)
	_, err = h.rentals.Confirm(ctx, h.landlord, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)
}

func TestRentalRequestGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.listProperty(t)
	start := t0.Add(24 * time.Hour)
	end := start.AddDate(0, 6, 0)

	tests := []struct {
		name       string
		caller     uuid.UUID
		propertyID int64
		start, end time.Time
		wantErr    error
	}{
		{"anonymous", auth.Anonymous, p.ID, start, end, models.ErrUnauthenticated},
		{"unregistered caller", uuid.New(), p.ID, start, end, models.ErrForbidden},
		{"landlord role", h.admin, p.ID, start, end, models.ErrForbidden},
		{"owner", h.landlord, p.ID, start, end, models.ErrForbidden},
		{"end before start", h.tenant, p.ID, end, start, models.ErrInvalidArgument},
		{"equal dates", h.tenant, p.ID, start, start, models.ErrInvalidArgument},
		{"unknown property", h.tenant, 4242, start, end, models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.rentals.Request(ctx, tt.caller, tt.propertyID, tt.start, tt.end)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.True(t, h.property(t, p.ID).IsAvailable, "rejected requests leave the property listed")

	_, err := h.rentals.Request(ctx, h.tenant, p.ID, start, end)
	require.NoError(t, err)

	_, err = h.rentals.Request(ctx, h.stranger, p.ID, start, end)
	require.ErrorIs(t, err, models.ErrInvalidState, "second tenant finds the property taken")
}

func TestRentalRequestRejectsOpenAgreement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.listProperty(t)
	h.requestRental(t, p)

	// Relisting by hand must not allow a second open agreement.
	require.NoError(t, h.store.Properties.SetAvailable(ctx, p.ID, true, t0))

	_, err := h.rentals.Request(ctx, h.stranger, p.ID, t0.Add(time.Hour), t0.Add(48*time.Hour))
	require.ErrorIs(t, err, models.ErrInvalidState)
}

func TestRentalForbiddenCallers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra := h.requestRental(t, h.listProperty(t))

	landlordOnly := map[string]func(uuid.UUID) error{
		"mark_under_review": func(c uuid.UUID) error { _, err := h.rentals.MarkUnderReview(ctx, c, ra.ID); return err },
		"approve":           func(c uuid.UUID) error { _, err := h.rentals.Approve(ctx, c, ra.ID); return err },
		"reject":            func(c uuid.UUID) error { _, err := h.rentals.Reject(ctx, c, ra.ID); return err },
		"complete":          func(c uuid.UUID) error { _, err := h.rentals.Complete(ctx, c, ra.ID); return err },
	}
	for name, op := range landlordOnly {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, op(h.tenant), models.ErrForbidden)
			require.ErrorIs(t, op(h.stranger), models.ErrForbidden)
			require.ErrorIs(t, op(h.admin), models.ErrForbidden)
			require.ErrorIs(t, op(auth.Anonymous), models.ErrUnauthenticated)
		})
	}

	_, err := h.rentals.Confirm(ctx, h.stranger, ra.ID)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.rentals.Cancel(ctx, h.stranger, ra.ID)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.rentals.Activate(ctx, auth.Anonymous, ra.ID)
	require.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = h.rentals.Approve(ctx, h.landlord, 999)
	require.ErrorIs(t, err, models.ErrNotFound)

	got, err := h.rentals.Get(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusRequested, got.Status)
}

func TestRentalReviewPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra := h.requestRental(t, h.listProperty(t))

	reviewed, err := h.rentals.MarkUnderReview(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusUnderReview, reviewed.Status)

	_, err = h.rentals.MarkUnderReview(ctx, h.landlord, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)

	_, err = h.rentals.Confirm(ctx, h.landlord, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState, "under review must be approved first")

	approved, err := h.rentals.Approve(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusApproved, approved.Status)
}

func TestRentalConfirmPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("tenant cannot confirm a request", func(t *testing.T) {
		h := newHarness(t)
		ra := h.requestRental(t, h.listProperty(t))
		_, err := h.rentals.Confirm(ctx, h.tenant, ra.ID)
		require.ErrorIs(t, err, models.ErrInvalidState)

		_, err = h.store.Receipts.GetByRentalID(ctx, ra.ID)
		require.ErrorIs(t, err, models.ErrNotFound, "no receipt without confirmation")
	})

	t.Run("landlord confirms a request directly", func(t *testing.T) {
		h := newHarness(t)
		ra := h.requestRental(t, h.listProperty(t))
		got, err := h.rentals.Confirm(ctx, h.landlord, ra.ID)
		require.NoError(t, err)
		require.Equal(t, models.RentalStatusConfirmed, got.Status)
		require.NotNil(t, got.NFTID)
	})

	t.Run("escrow not opened when disabled", func(t *testing.T) {
		h := newHarness(t, func(c *config.Config) { c.AutoCreateEscrow = false })
		ra, _ := h.confirmedRental(t)
		_, err := h.store.Escrows.GetByRentalID(ctx, ra.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestRentalRejectRestoresAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.listProperty(t)
	ra := h.requestRental(t, p)

	got, err := h.rentals.Reject(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusCancelled, got.Status)
	require.True(t, h.property(t, p.ID).IsAvailable)

	_, err = h.rentals.Reject(ctx, h.landlord, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)

	// The property can be requested again.
	_, err = h.rentals.Request(ctx, h.stranger, p.ID, t0.Add(time.Hour), t0.Add(72*time.Hour))
	require.NoError(t, err)
}

func TestRentalCancelConfirmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra, acc := h.confirmedRental(t)

	got, err := h.rentals.Cancel(ctx, h.tenant, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusCancelled, got.Status)
	require.Nil(t, got.NFTID)
	require.True(t, h.property(t, ra.PropertyID).IsAvailable)

	stored, err := h.rentals.Get(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Nil(t, stored.NFTID)

	escrow, err := h.escrow.Get(ctx, h.landlord, acc.ID)
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusCancelled, escrow.Status)

	// The receipt itself is kept.
	_, err = h.store.Receipts.GetByRentalID(ctx, ra.ID)
	require.NoError(t, err)
}

func TestRentalCancelKeepsSubmittedEscrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra, acc := h.confirmedRental(t)
	_, err := h.escrow.SubmitDeposit(ctx, h.tenant, acc.ID, "0xabc")
	require.NoError(t, err)

	_, err = h.rentals.Cancel(ctx, h.landlord, ra.ID)
	require.NoError(t, err)

	escrow, err := h.escrow.Get(ctx, h.tenant, acc.ID)
	require.NoError(t, err)
	require.Equal(t, models.EscrowStatusUnderReview, escrow.Status)
}

func TestRentalActiveLease(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra, _ := h.confirmedRental(t)

	_, err := h.rentals.Complete(ctx, h.landlord, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)

	active, err := h.rentals.Activate(ctx, h.stranger, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusActive, active.Status)
	require.NotNil(t, active.NFTID)

	_, err = h.rentals.Cancel(ctx, h.tenant, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState, "active leases are completed, not cancelled")

	done, err := h.rentals.Complete(ctx, h.landlord, ra.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusCompleted, done.Status)
	require.NotNil(t, done.NFTID)
	require.True(t, h.property(t, ra.PropertyID).IsAvailable)

	_, err = h.rentals.Activate(ctx, h.landlord, ra.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)
}

func TestRentalActivateDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	due, _ := h.confirmedRental(t)
	pending := h.requestRental(t, h.listProperty(t))

	n, err := h.rentals.ActivateDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "start date is still ahead")

	h.clock.Set(due.StartDate.Add(time.Minute))
	n, err = h.rentals.ActivateDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := h.rentals.Get(ctx, h.tenant, due.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusActive, got.Status)

	untouched, err := h.rentals.Get(ctx, h.tenant, pending.ID)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusRequested, untouched.Status)

	logs, err := h.rentals.Events(ctx, h.landlord, due.ID, 0, 0)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	require.Equal(t, "rental_status_confirmed_to_active", last.Action)
	require.Equal(t, models.ActorTypeSystem, last.ActorType)
	require.Nil(t, last.ActorUserID)

	n, err = h.rentals.ActivateDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRentalEventsTrail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra, _ := h.confirmedRental(t)

	logs, err := h.rentals.Events(ctx, h.tenant, ra.ID, 0, 0)
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
		require.Equal(t, "rental", l.EntityType)
		require.Equal(t, ra.ID, l.EntityID)
	}
	require.Equal(t, []string{
		"rental_requested",
		"rental_status_requested_to_approved",
		"rental_status_approved_to_confirmed",
	}, actions)
	require.Equal(t, h.tenant, *logs[2].ActorUserID)

	_, err = h.rentals.Events(ctx, h.stranger, ra.ID, 0, 0)
	require.ErrorIs(t, err, models.ErrForbidden)

	logs, err = h.rentals.Events(ctx, h.admin, ra.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "rental_status_requested_to_approved", logs[0].Action)
}

func TestRentalPublishesStatusChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra := h.requestRental(t, h.listProperty(t))
	_, err := h.rentals.Reject(ctx, h.landlord, ra.ID)
	require.NoError(t, err)

	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	require.Len(t, h.pub.events, 2)
	ev := h.pub.events[1]
	require.Equal(t, events.EventRentalStatusChanged, ev.Type)
	require.ElementsMatch(t, []uuid.UUID{h.tenant, h.landlord}, ev.Recipients)
	require.Equal(t, models.RentalStatusRequested, ev.Payload["old_status"])
	require.Equal(t, models.RentalStatusCancelled, ev.Payload["new_status"])
}

func TestRentalReads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ra := h.requestRental(t, h.listProperty(t))

	_, err := h.rentals.Get(ctx, auth.Anonymous, ra.ID)
	require.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = h.rentals.Get(ctx, h.stranger, ra.ID)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.rentals.Get(ctx, h.admin, ra.ID)
	require.NoError(t, err)

	list, err := h.rentals.ListMine(ctx, auth.Anonymous, 10, 0)
	require.NoError(t, err)
	require.Empty(t, list)

	pending, err := h.rentals.PendingForLandlord(ctx, h.landlord, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approvedList, err := h.rentals.ApprovedForTenant(ctx, h.tenant, 10, 0)
	require.NoError(t, err)
	require.Empty(t, approvedList)

	_, err = h.rentals.Approve(ctx, h.landlord, ra.ID)
	require.NoError(t, err)

	pending, err = h.rentals.PendingForLandlord(ctx, h.landlord, 10, 0)
	require.NoError(t, err)
	require.Empty(t, pending)

	approvedList, err = h.rentals.ApprovedForTenant(ctx, h.tenant, 10, 0)
	require.NoError(t, err)
	require.Len(t, approvedList, 1)

	mine, err := h.rentals.ListMine(ctx, h.landlord, 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	mine, err = h.rentals.ListMine(ctx, h.stranger, 10, 0)
	require.NoError(t, err)
	require.Empty(t, mine)
}

func TestRentalRoleGates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	nobody := uuid.New()

	var propertyID int64
	agreement := func(status string, landlord, tenant uuid.UUID) int64 {
		t.Helper()
		propertyID++
		ra := &models.RentalAgreement{
			PropertyID:     500 + propertyID,
			LandlordUserID: landlord,
			TenantUserID:   tenant,
			Status:         status,
			StartDate:      t0.Add(48 * time.Hour),
			EndDate:        t0.AddDate(1, 0, 0),
			CreatedAt:      t0,
			UpdatedAt:      t0,
		}
		require.NoError(t, h.store.Rentals.Create(ctx, ra))
		return ra.ID
	}

	// stranger is registered as a tenant but sits in the landlord seat.
	reviewed := agreement(models.RentalStatusRequested, h.stranger, h.tenant)
	_, err := h.rentals.MarkUnderReview(ctx, h.stranger, reviewed)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.rentals.Approve(ctx, h.stranger, reviewed)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.rentals.Reject(ctx, h.stranger, reviewed)
	require.ErrorIs(t, err, models.ErrForbidden)

	confirmable := agreement(models.RentalStatusApproved, h.landlord, nobody)
	_, err = h.rentals.Confirm(ctx, nobody, confirmable)
	require.ErrorIs(t, err, models.ErrForbidden)

	ra, err := h.store.Rentals.GetByID(ctx, reviewed)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusRequested, ra.Status)
	ra, err = h.store.Rentals.GetByID(ctx, confirmable)
	require.NoError(t, err)
	require.Equal(t, models.RentalStatusApproved, ra.Status)
	require.Nil(t, ra.NFTID)

	_, err = h.rentals.PendingForLandlord(ctx, h.tenant, 10, 0)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.rentals.ApprovedForTenant(ctx, h.landlord, 10, 0)
	require.ErrorIs(t, err, models.ErrForbidden)
	_, err = h.rentals.PendingForLandlord(ctx, nobody, 10, 0)
	require.ErrorIs(t, err, models.ErrForbidden)

	pending, err := h.rentals.PendingForLandlord(ctx, auth.Anonymous, 10, 0)
	require.NoError(t, err)
	require.Empty(t, pending)
}
