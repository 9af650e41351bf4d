// Package memstore keeps every record kind in process memory behind a single
// mutex. It satisfies the same contracts as the pgx repositories, including
// the conditional escrow and rental transitions, and backs the service and
// handler tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/repositories"
)

type state struct {
	mu sync.Mutex

	nextID map[string]int64

	users      map[uuid.UUID]*models.User
	properties map[int64]*models.Property
	rentals    map[int64]*models.RentalAgreement
	receipts   map[int64]*models.RentalReceipt
	escrows    map[int64]*models.EscrowAccount
	timeline   []models.EscrowTimelineEvent
	audit      []models.AuditLog
}

func (s *state) allocate(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

// Store groups the per-kind views over one shared state.
type Store struct {
	Users      *Users
	Properties *Properties
	Rentals    *Rentals
	Receipts   *Receipts
	Escrows    *Escrows
	Timeline   *Timeline
	Audit      *Audit
}

func New() *Store {
	s := &state{
		nextID:     map[string]int64{},
		users:      map[uuid.UUID]*models.User{},
		properties: map[int64]*models.Property{},
		rentals:    map[int64]*models.RentalAgreement{},
		receipts:   map[int64]*models.RentalReceipt{},
		escrows:    map[int64]*models.EscrowAccount{},
	}
	return &Store{
		Users:      &Users{s},
		Properties: &Properties{s},
		Rentals:    &Rentals{s},
		Receipts:   &Receipts{s},
		Escrows:    &Escrows{s},
		Timeline:   &Timeline{s},
		Audit:      &Audit{s},
	}
}

// page applies the same limit/offset rules as the SQL repositories.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit <= 0 {
		return items
	}
	if limit > repositories.MaxPageSize {
		limit = repositories.MaxPageSize
	}
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsStatus(statuses []string, s string) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// --- Users ---

type Users struct{ s *state }

func (u *Users) Create(_ context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, existing := range u.s.users {
		if existing.Email == email {
			return models.ErrDuplicateEmail
		}
	}
	user.Email = email
	user.LastActiveAt = user.CreatedAt
	c := *user
	u.s.users[user.ID] = &c
	return nil
}

func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *user
	return &c, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	email = strings.ToLower(email)
	for _, user := range u.s.users {
		if user.Email == email {
			c := *user
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (u *Users) UpdateProfile(_ context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	stored, ok := u.s.users[user.ID]
	if !ok {
		return models.ErrNotFound
	}
	email := strings.ToLower(user.Email)
	for id, existing := range u.s.users {
		if id != user.ID && existing.Email == email {
			return models.ErrDuplicateEmail
		}
	}
	stored.DisplayName = user.DisplayName
	stored.Email = email
	stored.Phone = user.Phone
	return nil
}

func (u *Users) UpdateLastActive(_ context.Context, id uuid.UUID, at time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	user.LastActiveAt = at
	return nil
}

// --- Properties ---

type Properties struct{ s *state }

func cloneProperty(p *models.Property) *models.Property {
	c := *p
	c.Images = append([]string{}, p.Images...)
	c.Amenities = append([]string{}, p.Amenities...)
	return &c
}

func (p *Properties) Create(_ context.Context, prop *models.Property) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	prop.ID = p.s.allocate("property")
	prop.UpdatedAt = prop.CreatedAt
	p.s.properties[prop.ID] = cloneProperty(prop)
	return nil
}

func (p *Properties) GetByID(_ context.Context, id int64) (*models.Property, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	prop, ok := p.s.properties[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneProperty(prop), nil
}

func (p *Properties) Update(_ context.Context, prop *models.Property) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	stored, ok := p.s.properties[prop.ID]
	if !ok {
		return models.ErrNotFound
	}
	next := cloneProperty(prop)
	next.OwnerUserID = stored.OwnerUserID
	next.IsAvailable = stored.IsAvailable
	next.CreatedAt = stored.CreatedAt
	p.s.properties[prop.ID] = next
	return nil
}

func (p *Properties) List(_ context.Context, f repositories.PropertyFilter) ([]models.Property, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	var out []models.Property
	for _, prop := range p.s.properties {
		if f.OwnerUserID != nil && prop.OwnerUserID != *f.OwnerUserID {
			continue
		}
		if f.AvailableOnly && !prop.IsAvailable {
			continue
		}
		out = append(out, *cloneProperty(prop))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

func (p *Properties) SetAvailable(_ context.Context, id int64, available bool, at time.Time) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	prop, ok := p.s.properties[id]
	if !ok {
		return models.ErrNotFound
	}
	prop.IsAvailable = available
	prop.UpdatedAt = at
	return nil
}

// --- Rentals ---

type Rentals struct{ s *state }

func cloneRental(r *models.RentalAgreement) *models.RentalAgreement {
	c := *r
	if r.NFTID != nil {
		v := *r.NFTID
		c.NFTID = &v
	}
	return &c
}

func (r *Rentals) Create(_ context.Context, ra *models.RentalAgreement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.rentals {
		if existing.PropertyID == ra.PropertyID && !models.IsTerminalRentalStatus(existing.Status) {
			return fmt.Errorf("property %d already has an open agreement: %w", ra.PropertyID, models.ErrInvalidState)
		}
	}
	ra.ID = r.s.allocate("rental")
	r.s.rentals[ra.ID] = cloneRental(ra)
	return nil
}

func (r *Rentals) GetByID(_ context.Context, id int64) (*models.RentalAgreement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ra, ok := r.s.rentals[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneRental(ra), nil
}

func (r *Rentals) Transition(_ context.Context, ra *models.RentalAgreement, from string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.rentals[ra.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("rental %d is no longer %s: %w", ra.ID, from, models.ErrInvalidState)
	}
	stored.Status = ra.Status
	stored.UpdatedAt = ra.UpdatedAt
	stored.NFTID = nil
	if ra.NFTID != nil {
		v := *ra.NFTID
		stored.NFTID = &v
	}
	return nil
}

func (r *Rentals) List(_ context.Context, f repositories.RentalFilter) ([]models.RentalAgreement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.RentalAgreement
	for _, ra := range r.s.rentals {
		if f.LandlordUserID != nil && ra.LandlordUserID != *f.LandlordUserID {
			continue
		}
		if f.TenantUserID != nil && ra.TenantUserID != *f.TenantUserID {
			continue
		}
		if f.PartyUserID != nil && !ra.IsParty(*f.PartyUserID) {
			continue
		}
		if f.PropertyID != nil && ra.PropertyID != *f.PropertyID {
			continue
		}
		if !containsStatus(f.Statuses, ra.Status) {
			continue
		}
		if f.StartsBefore != nil && ra.StartDate.After(*f.StartsBefore) {
			continue
		}
		out = append(out, *cloneRental(ra))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

// --- Receipts ---

type Receipts struct{ s *state }

func cloneReceipt(rc *models.RentalReceipt) *models.RentalReceipt {
	c := *rc
	c.Attributes = append([]models.ReceiptAttribute(nil), rc.Attributes...)
	return &c
}

func (r *Receipts) Create(_ context.Context, rc *models.RentalReceipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.receipts {
		if existing.RentalID == rc.RentalID {
			return fmt.Errorf("rental %d already has a receipt: %w", rc.RentalID, models.ErrInvalidState)
		}
	}
	rc.ID = r.s.allocate("receipt")
	r.s.receipts[rc.ID] = cloneReceipt(rc)
	return nil
}

func (r *Receipts) GetByID(_ context.Context, id int64) (*models.RentalReceipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rc, ok := r.s.receipts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneReceipt(rc), nil
}

func (r *Receipts) GetByRentalID(_ context.Context, rentalID int64) (*models.RentalReceipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rc := range r.s.receipts {
		if rc.RentalID == rentalID {
			return cloneReceipt(rc), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *Receipts) ListByOwner(_ context.Context, owner uuid.UUID, limit, offset int) ([]models.RentalReceipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []models.RentalReceipt
	for _, rc := range r.s.receipts {
		if rc.OwnerUserID == owner {
			out = append(out, *cloneReceipt(rc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

// --- Escrows ---

type Escrows struct{ s *state }

func (e *Escrows) appendEvent(ev *models.EscrowTimelineEvent) {
	ev.ID = e.s.allocate("timeline")
	e.s.timeline = append(e.s.timeline, *ev)
}

func (e *Escrows) Create(_ context.Context, acc *models.EscrowAccount, ev *models.EscrowTimelineEvent) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	for _, existing := range e.s.escrows {
		if existing.RentalID == acc.RentalID {
			return fmt.Errorf("rental %d already has an escrow account: %w", acc.RentalID, models.ErrInvalidState)
		}
	}
	acc.ID = e.s.allocate("escrow")
	e.s.escrows[acc.ID] = acc.Clone()

	ev.EscrowID = acc.ID
	e.appendEvent(ev)
	return nil
}

func (e *Escrows) GetByID(_ context.Context, id int64) (*models.EscrowAccount, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	acc, ok := e.s.escrows[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return acc.Clone(), nil
}

func (e *Escrows) GetByRentalID(_ context.Context, rentalID int64) (*models.EscrowAccount, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	for _, acc := range e.s.escrows {
		if acc.RentalID == rentalID {
			return acc.Clone(), nil
		}
	}
	return nil, models.ErrNotFound
}

func (e *Escrows) Transition(_ context.Context, acc *models.EscrowAccount, from string, ev *models.EscrowTimelineEvent) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	stored, ok := e.s.escrows[acc.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("escrow %d is no longer %s: %w", acc.ID, from, models.ErrInvalidState)
	}
	e.s.escrows[acc.ID] = acc.Clone()

	ev.EscrowID = acc.ID
	e.appendEvent(ev)
	return nil
}

// AppendEvent adds ev without a status change, only while the account is
// still in status.
func (e *Escrows) AppendEvent(_ context.Context, ev *models.EscrowTimelineEvent, status string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	stored, ok := e.s.escrows[ev.EscrowID]
	if !ok {
		return models.ErrNotFound
	}
	if stored.Status != status {
		return fmt.Errorf("escrow %d is %s, not %s: %w", ev.EscrowID, stored.Status, status, models.ErrInvalidState)
	}
	e.appendEvent(ev)
	return nil
}

func (e *Escrows) List(_ context.Context, f repositories.EscrowFilter) ([]models.EscrowAccount, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	var out []models.EscrowAccount
	for _, acc := range e.s.escrows {
		if f.LandlordUserID != nil && acc.LandlordUserID != *f.LandlordUserID {
			continue
		}
		if f.TenantUserID != nil && acc.TenantUserID != *f.TenantUserID {
			continue
		}
		if f.PartyUserID != nil && !acc.IsParty(*f.PartyUserID) {
			continue
		}
		if !containsStatus(f.Statuses, acc.Status) {
			continue
		}
		if f.DeadlineBefore != nil && !acc.SubmissionDeadline.Before(*f.DeadlineBefore) {
			continue
		}
		out = append(out, *acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

// --- Timeline ---

type Timeline struct{ s *state }

func (t *Timeline) ListByEscrow(_ context.Context, escrowID int64, limit, offset int) ([]models.EscrowTimelineEvent, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var out []models.EscrowTimelineEvent
	for _, ev := range t.s.timeline {
		if ev.EscrowID == escrowID {
			out = append(out, ev)
		}
	}
	return page(out, limit, offset), nil
}

// --- Audit ---

type Audit struct{ s *state }

func (a *Audit) Log(_ context.Context, entry models.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	entry.ID = a.s.allocate("audit")
	a.s.audit = append(a.s.audit, entry)
	return nil
}

func (a *Audit) GetByEntity(_ context.Context, entityType string, entityID int64, limit, offset int) ([]models.AuditLog, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	var out []models.AuditLog
	for _, l := range a.s.audit {
		if l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return page(out, limit, offset), nil
}
