package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rental-marketplace/backend/internal/config"
	"github.com/rental-marketplace/backend/internal/events"
	"github.com/rental-marketplace/backend/internal/http/handlers"
	"github.com/rental-marketplace/backend/internal/models"
	"github.com/rental-marketplace/backend/internal/repositories/memstore"
	"github.com/rental-marketplace/backend/internal/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	OK        bool            `json:"ok"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"request_id"`
	Token     string          `json:"token"`
}

type testAPI struct {
	t   *testing.T
	app *fiber.App
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := &config.Config{
		JWTSecret:               "test-secret",
		JWTExpiration:           time.Hour,
		SubmissionWindow:        models.DefaultSubmissionWindow,
		EnforceRefundCeiling:    true,
		DisputeResolutionPolicy: config.DisputePolicyRestore,
		AutoCreateEscrow:        true,
	}
	log := zap.NewNop()
	s := memstore.New()
	pub := events.NopPublisher{}

	users := services.NewUserService(s.Users, log)
	props := services.NewPropertyService(s.Properties, s.Users, s.Audit, log)
	receipts := services.NewReceiptService(s.Receipts, s.Properties, log)
	escrow := services.NewEscrowService(s.Escrows, s.Timeline, s.Rentals, s.Users, pub, cfg, log)
	rentals := services.NewRentalService(s.Rentals, s.Properties, s.Users, s.Audit, receipts, escrow, pub, cfg, log)

	app := fiber.New()
	SetupRouter(app, cfg, log, nil, nil, Handlers{
		Auth:     handlers.NewAuthHandler(users, cfg, log),
		User:     handlers.NewUserHandler(users, log),
		Property: handlers.NewPropertyHandler(props, log),
		Rental:   handlers.NewRentalHandler(rentals, escrow, log),
		Escrow:   handlers.NewEscrowHandler(escrow, log),
		Receipt:  handlers.NewReceiptHandler(receipts, log),
		Meta:     handlers.NewMetaHandler(),
	})
	return &testAPI{t: t, app: app}
}

func (a *testAPI) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (a *testAPI) register(email, role string) string {
	a.t.Helper()
	status, env := a.do(fiber.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":        email,
		"password":     "long enough secret",
		"display_name": role,
		"role":         role,
	})
	require.Equal(a.t, fiber.StatusCreated, status, env.Error)
	require.NotEmpty(a.t, env.Token)
	return env.Token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func path(format string, id int64) string {
	return "/api/v1/" + format + "/" + strconv.FormatInt(id, 10)
}

func TestRentalAndEscrowFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	landlord := api.register("landlord@example.com", models.RoleLandlord)
	tenant := api.register("tenant@example.com", models.RoleTenant)
	stranger := api.register("stranger@example.com", models.RoleTenant)

	status, env := api.do(fiber.MethodPost, "/api/v1/properties", tenant, map[string]any{
		"title": "Loft", "address": "1 Main St", "rent_amount": 1000, "deposit_amount": 500,
	})
	require.Equal(t, fiber.StatusForbidden, status)
	require.NotEmpty(t, env.Error)

	status, env = api.do(fiber.MethodPost, "/api/v1/properties", landlord, map[string]any{
		"title": "Loft", "address": "1 Main St", "rent_amount": 1000, "deposit_amount": 500,
	})
	require.Equal(t, fiber.StatusCreated, status, env.Error)
	prop := decode[models.Property](t, env.Data)

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	status, env = api.do(fiber.MethodPost, "/api/v1/rentals", tenant, map[string]any{
		"property_id": prop.ID, "start_date": start, "end_date": start.AddDate(1, 0, 0),
	})
	require.Equal(t, fiber.StatusCreated, status, env.Error)
	ra := decode[models.RentalAgreement](t, env.Data)

	status, _ = api.do(fiber.MethodPost, path("rentals", ra.ID)+"/approve", tenant, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, _ = api.do(fiber.MethodPost, path("rentals", ra.ID)+"/confirm", tenant, nil)
	require.Equal(t, fiber.StatusConflict, status, "tenant confirms only approved agreements")

	status, env = api.do(fiber.MethodPost, path("rentals", ra.ID)+"/approve", landlord, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)

	status, env = api.do(fiber.MethodPost, path("rentals", ra.ID)+"/confirm", tenant, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	confirmed := decode[models.RentalAgreement](t, env.Data)
	require.NotNil(t, confirmed.NFTID)

	status, env = api.do(fiber.MethodGet, path("receipts", *confirmed.NFTID), tenant, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)

	status, env = api.do(fiber.MethodGet, path("rentals", ra.ID)+"/escrow", landlord, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	acc := decode[models.EscrowAccount](t, env.Data)
	require.Equal(t, int64(500), acc.Amount)

	status, env = api.do(fiber.MethodPost, path("escrows", acc.ID)+"/submit", tenant, map[string]string{"transaction_hash": "0xabc"})
	require.Equal(t, fiber.StatusOK, status, env.Error)

	status, env = api.do(fiber.MethodPost, path("escrows", acc.ID)+"/expire", tenant, nil)
	require.Equal(t, fiber.StatusTooEarly, status, env.Error)

	status, _ = api.do(fiber.MethodGet, path("escrows", acc.ID), stranger, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, env = api.do(fiber.MethodGet, path("escrows", acc.ID), "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, env.OK)
	require.Empty(t, env.Data, "anonymous reads are empty")

	status, env = api.do(fiber.MethodGet, path("escrows", acc.ID)+"/timeline", tenant, nil)
	require.Equal(t, fiber.StatusOK, status)
	timeline := decode[[]models.EscrowTimelineEvent](t, env.Data)
	require.Len(t, timeline, 2)

	status, env = api.do(fiber.MethodGet, "/api/v1/escrows/stats", tenant, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	stats := decode[models.EscrowStats](t, env.Data)
	require.Equal(t, models.RoleTenant, stats.Role)
	require.Equal(t, int64(1), stats.Pending)

	status, env = api.do(fiber.MethodGet, path("rentals", ra.ID)+"/events", landlord, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	require.Len(t, decode[[]models.AuditLog](t, env.Data), 3)
}

func TestAuthErrors(t *testing.T) {
	api := newTestAPI(t)
	api.register("user@example.com", models.RoleTenant)

	status, _ := api.do(fiber.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "user@example.com", "password": "long enough secret", "role": models.RoleTenant,
	})
	require.Equal(t, fiber.StatusConflict, status)

	status, _ = api.do(fiber.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "wrong password",
	})
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, env := api.do(fiber.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "USER@example.com", "password": "long enough secret",
	})
	require.Equal(t, fiber.StatusOK, status)
	require.NotEmpty(t, env.Token)

	status, env = api.do(fiber.MethodGet, "/api/v1/me", env.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	me := decode[models.User](t, env.Data)
	require.Equal(t, "user@example.com", me.Email)

	status, _ = api.do(fiber.MethodGet, "/api/v1/me", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = api.do(fiber.MethodGet, "/api/v1/me", "not-a-jwt", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestPublicReadsIgnoreBadTokens(t *testing.T) {
	api := newTestAPI(t)

	status, env := api.do(fiber.MethodGet, "/api/v1/properties?available=true", "garbage", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `[]`, string(env.Data))

	status, env = api.do(fiber.MethodGet, "/api/v1/escrows", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `[]`, string(env.Data))

	status, _ = api.do(fiber.MethodGet, "/api/v1/properties/abc", "", nil)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, env = api.do(fiber.MethodGet, "/api/v1/properties/99", "", nil)
	require.Equal(t, fiber.StatusNotFound, status)
	require.NotEmpty(t, env.RequestID)
}

func TestMetaAndHealth(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(fiber.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	status, env := api.do(fiber.MethodGet, "/api/v1/meta/escrow-statuses", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	statuses := decode[[]handlers.MetaStatus](t, env.Data)
	require.Len(t, statuses, 9)
	for _, s := range statuses {
		require.Equal(t, models.IsTerminalEscrowStatus(s.ID), len(s.Next) == 0, s.ID)
	}

	status, env = api.do(fiber.MethodGet, "/api/v1/meta/rental-statuses", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, decode[[]handlers.MetaStatus](t, env.Data), 7)
}

func TestPropertyAndProfileOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	landlord := api.register("owner@example.com", models.RoleLandlord)
	tenant := api.register("renter@example.com", models.RoleTenant)

	status, env := api.do(fiber.MethodPost, "/api/v1/properties", landlord, map[string]any{
		"title": "Cottage", "address": "2 Hill Rd", "rent_amount": 900, "deposit_amount": 300,
		"property_type": "villa", "bedrooms": 2, "amenities": []string{"garden"},
	})
	require.Equal(t, fiber.StatusCreated, status, env.Error)
	prop := decode[models.Property](t, env.Data)
	require.Equal(t, models.PropertyTypeVilla, prop.PropertyType)
	require.Equal(t, []string{"garden"}, prop.Amenities)

	status, env = api.do(fiber.MethodPatch, path("properties", prop.ID), tenant, map[string]any{"title": "Mine now"})
	require.Equal(t, fiber.StatusForbidden, status)
	status, _ = api.do(fiber.MethodPatch, path("properties", prop.ID), "", map[string]any{"title": "Mine now"})
	require.Equal(t, fiber.StatusUnauthorized, status)
	status, env = api.do(fiber.MethodPatch, path("properties", prop.ID), landlord, map[string]any{"property_type": "bungalow"})
	require.Equal(t, fiber.StatusBadRequest, status, env.Error)

	status, env = api.do(fiber.MethodPatch, path("properties", prop.ID), landlord, map[string]any{"rent_amount": 950, "bathrooms": 1})
	require.Equal(t, fiber.StatusOK, status, env.Error)
	updated := decode[models.Property](t, env.Data)
	require.Equal(t, int64(950), updated.RentAmount)
	require.Equal(t, 1, updated.Bathrooms)
	require.Equal(t, "Cottage", updated.Title)

	availability := path("properties", prop.ID) + "/availability"
	status, _ = api.do(fiber.MethodPut, availability, landlord, map[string]any{})
	require.Equal(t, fiber.StatusBadRequest, status)
	status, _ = api.do(fiber.MethodPut, availability, tenant, map[string]any{"is_available": false})
	require.Equal(t, fiber.StatusForbidden, status)
	status, env = api.do(fiber.MethodPut, availability, landlord, map[string]any{"is_available": false})
	require.Equal(t, fiber.StatusOK, status, env.Error)
	require.False(t, decode[models.Property](t, env.Data).IsAvailable)

	status, env = api.do(fiber.MethodGet, "/api/v1/me", landlord, nil)
	require.Equal(t, fiber.StatusOK, status)
	me := decode[models.User](t, env.Data)

	status, env = api.do(fiber.MethodGet, "/api/v1/users/"+me.ID.String()+"/properties", "", nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	require.Len(t, decode[[]models.Property](t, env.Data), 1)

	status, env = api.do(fiber.MethodGet, "/api/v1/users/me/properties", tenant, nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	require.Empty(t, decode[[]models.Property](t, env.Data))
	status, _ = api.do(fiber.MethodGet, "/api/v1/users/me/properties", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = api.do(fiber.MethodGet, "/api/v1/users/not-a-uuid/properties", "", nil)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, env = api.do(fiber.MethodPatch, "/api/v1/me", landlord, map[string]any{"display_name": "Olive", "phone": "555-0101"})
	require.Equal(t, fiber.StatusOK, status, env.Error)
	profile := decode[models.User](t, env.Data)
	require.Equal(t, "Olive", profile.DisplayName)
	require.Equal(t, "555-0101", profile.Phone)
	require.Equal(t, "owner@example.com", profile.Email)

	status, _ = api.do(fiber.MethodPatch, "/api/v1/me", landlord, map[string]any{"email": "renter@example.com"})
	require.Equal(t, fiber.StatusConflict, status)

	status, env = api.do(fiber.MethodGet, "/api/v1/users/"+me.ID.String(), "", nil)
	require.Equal(t, fiber.StatusOK, status, env.Error)
	public := decode[map[string]any](t, env.Data)
	require.Equal(t, "Olive", public["display_name"])
	require.NotContains(t, public, "email")
	require.NotContains(t, public, "phone")
}
