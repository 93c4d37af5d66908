/*
handlers_test.go - HTTP tests for the reservation API

Tests for:
- Booking and the full front desk lifecycle over HTTP
- Price preview and folio endpoints
- Error mapping (400 / 404 / 409 / 422)
- Tax rule administration
- Manual no-show sweep
- /metrics exposition
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/factory"
	"github.com/warp/stay-engine/stay"
	"github.com/warp/stay-engine/stay/store"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testServer struct {
	router  http.Handler
	mem     *store.Memory
	svc     *stay.Service
	metrics *Metrics
	clock   *testClock
	loader  *ScenarioLoader
}

// newTestServer wires the API over the in-memory store with VAT 18% on the
// subtotal and the clock at 1 March 2025, 08:00 UTC.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	rules, err := factory.ParseTaxRules([]byte(factory.StandardVATJSON(18)))
	require.NoError(t, err)
	for _, rule := range rules {
		require.NoError(t, mem.SaveTaxRule(ctx, rule))
	}

	clock := &testClock{now: time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)}
	metrics := NewMetrics()
	svc := stay.NewService(stay.ServiceConfig{
		Reservations: mem,
		TaxRules:     mem,
		Rooms:        mem,
		Folio:        mem,
		Observer:     metrics,
		Lifecycle:    stay.NewLifecycle(time.UTC, stay.DefaultNoShowGrace),
		Currency:     billing.XAF,
		Now:          clock.Now,
	})
	loader := NewScenarioLoader(svc, mem, mem, mem, mem)
	loader.Now = clock.Now

	h := NewHandler(svc, mem, loader, nil)
	return &testServer{
		router:  NewRouter(h, RouterOptions{Metrics: metrics}),
		mem:     mem,
		svc:     svc,
		metrics: metrics,
		clock:   clock,
		loader:  loader,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const bookStandard = `{
	"guest_id": "guest-1",
	"check_in": "2025-03-01",
	"check_out": "2025-03-04",
	"price_per_night": 25000,
	"room": "12",
	"confirm": true
}`

func (s *testServer) book(t *testing.T, body string) ReservationDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/reservations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ReservationDTO](t, rec)
}

func (s *testServer) checkIn(t *testing.T, id string) ReservationDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/reservations/"+id+"/check-in",
		`{"date": "2025-03-01", "time": "14:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[ReservationDTO](t, rec)
}

// =============================================================================
// BOOKING
// =============================================================================

func TestBook_Created(t *testing.T) {
	// GIVEN: An empty hotel with VAT 18%
	s := newTestServer(t)

	// WHEN: Booking 3 nights at 25000 in room 12
	res := s.book(t, bookStandard)

	// THEN: The reservation is confirmed and provisionally priced
	assert.NotEmpty(t, res.ID)
	assert.True(t, strings.HasPrefix(res.BookingReference, "BK-"))
	assert.Equal(t, "CONFIRMED", res.Status)
	assert.Equal(t, "XAF", res.Currency)
	assert.Equal(t, "12", res.RoomNumber)
	assert.Equal(t, 3, res.Pricing.NightsBilled)
	assert.Equal(t, "88500", res.GrandTotal)
	assert.Equal(t, "88500", res.BalanceDue)
	assert.Equal(t, "PENDING", res.PaymentStatus)
	assert.Equal(t, int64(1), res.Version)
	assert.Contains(t, res.AllowedCommands, "check_in")
	assert.NotContains(t, res.AllowedCommands, "confirm")
}

func TestBook_WithDeposit(t *testing.T) {
	s := newTestServer(t)

	res := s.book(t, `{
		"check_in": "2025-03-01", "check_out": "2025-03-04",
		"price_per_night": "25000", "room": "12",
		"deposit": {"type": "partial", "amount": 20000, "method": "mobile_money"}
	}`)

	assert.Equal(t, "PENDING", res.Status)
	assert.Equal(t, "20000", res.AmountPaid)
	assert.Equal(t, "68500", res.BalanceDue)
	assert.Equal(t, "PARTIAL", res.PaymentStatus)
	assert.Equal(t, "mobile_money", res.PaymentMethod)
}

func TestBook_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"truncated JSON", `{"check_in": "2025-03-01"`},
		{"unknown field", `{"check_in": "2025-03-01", "nights": 3}`},
		{"bad date", `{"check_in": "01/03/2025"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/reservations", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeBadRequest, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestBook_ValidationFailure(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{
			name: "negative rate",
			body: `{"check_in": "2025-03-01", "check_out": "2025-03-04", "price_per_night": -1}`,
			code: "negative_charge_amount",
		},
		{
			name: "missing dates",
			body: `{"price_per_night": 25000}`,
			code: CodeValidation,
		},
		{
			name: "unknown payment type",
			body: `{"check_in": "2025-03-01", "check_out": "2025-03-04", "price_per_night": 25000,
				"deposit": {"type": "most"}}`,
			code: "invalid_payment_type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/reservations", tt.body)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestBook_RoomConflict(t *testing.T) {
	// GIVEN: Room 12 held for 1-4 March
	s := newTestServer(t)
	s.book(t, bookStandard)

	// WHEN: Another booking overlaps on the 3rd
	rec := s.do(t, http.MethodPost, "/api/reservations", `{
		"check_in": "2025-03-03", "check_out": "2025-03-05",
		"price_per_night": 25000, "room": "12"
	}`)

	// THEN: 409 and the conflict is counted
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeRoomUnavailable, decode[ErrorResponse](t, rec).Code)

	list := decode[[]ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations", ""))
	assert.Len(t, list, 1)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGetReservation_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/reservations/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestListReservations_Filters(t *testing.T) {
	s := newTestServer(t)
	s.book(t, bookStandard)
	s.book(t, `{"check_in": "2025-03-02", "check_out": "2025-03-03", "price_per_night": 30000, "room": "14"}`)

	all := decode[[]ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations", ""))
	assert.Len(t, all, 2)

	pending := decode[[]ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations?status=PENDING", ""))
	require.Len(t, pending, 1)
	assert.Equal(t, "14", pending[0].RoomNumber)

	byRoom := decode[[]ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations?room=12", ""))
	require.Len(t, byRoom, 1)
	assert.Equal(t, "guest-1", byRoom[0].GuestID)

	limited := decode[[]ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations?limit=1", ""))
	assert.Len(t, limited, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/reservations?status=LOST", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/reservations?limit=x", "").Code)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLifecycle_StandardStayOverHTTP(t *testing.T) {
	// GIVEN: A confirmed 3-night booking
	s := newTestServer(t)
	res := s.book(t, bookStandard)

	// WHEN: The guest checks in, then checks out on schedule paying in full
	res = s.checkIn(t, res.ID)
	assert.Equal(t, "CHECKED_IN", res.Status)
	assert.Equal(t, "2025-03-01", res.ActualCheckIn)
	assert.Equal(t, "14:00", res.ActualCheckInTime)

	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/check-out", `{
		"date": "2025-03-04", "time": "11:00",
		"payment": {"type": "full", "method": "card"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res = decode[ReservationDTO](t, rec)

	// THEN: The receipt is frozen at 75000 + 13500 = 88500, fully paid
	assert.Equal(t, "CHECKED_OUT", res.Status)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, 3, res.Receipt.NightsBilled)
	assert.Equal(t, "75000", res.Receipt.RoomSubtotal)
	assert.Equal(t, "13500", res.Receipt.TotalTax)
	assert.Equal(t, "88500", res.Receipt.GrandTotal)
	require.Len(t, res.Receipt.TaxBreakdown, 1)
	assert.Equal(t, "SUBTOTAL", res.Receipt.TaxBreakdown[0].AppliesTo)
	assert.Equal(t, "88500", res.AmountPaid)
	assert.Equal(t, "0", res.BalanceDue)
	assert.Equal(t, "PAID", res.PaymentStatus)
	assert.Equal(t, []string{"record_payment"}, res.AllowedCommands)

	// AND: The folio holds the settlement
	folio := decode[FolioResponse](t, s.do(t, http.MethodGet, "/api/reservations/"+res.ID+"/folio", ""))
	require.Len(t, folio.Entries, 1)
	assert.Equal(t, "payment", folio.Entries[0].Kind)
	assert.Equal(t, "card", folio.Entries[0].Method)
	assert.Equal(t, "check_out", folio.Entries[0].Command)
	assert.Equal(t, "88500", folio.TotalPayments)
	assert.Equal(t, "0", folio.TotalCharges)

	// AND: The room is bookable again for the same nights
	s.book(t, `{"check_in": "2025-03-02", "check_out": "2025-03-03", "price_per_night": 25000, "room": "12"}`)
}

func TestCheckOut_IllegalTransition(t *testing.T) {
	s := newTestServer(t)
	res := s.book(t, bookStandard)

	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/check-out", `{}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeIllegalTransition, decode[ErrorResponse](t, rec).Code)

	got := decode[ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations/"+res.ID, ""))
	assert.Equal(t, "CONFIRMED", got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestCheckIn_RequiresRoom(t *testing.T) {
	s := newTestServer(t)
	res := s.book(t, `{"check_in": "2025-03-01", "check_out": "2025-03-02", "price_per_night": 25000}`)

	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/check-in", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeRoomNotAssigned, decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/assign-room", `{"room": "21"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "21", decode[ReservationDTO](t, rec).RoomNumber)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/check-in", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ReservationDTO](t, rec)
	assert.Equal(t, "CHECKED_IN", got.Status)
	assert.Equal(t, "08:00", got.ActualCheckInTime)
}

func TestConfirmAndCancel(t *testing.T) {
	s := newTestServer(t)
	res := s.book(t, `{"check_in": "2025-03-01", "check_out": "2025-03-04", "price_per_night": 25000, "room": "12"}`)
	assert.Equal(t, "PENDING", res.Status)
	assert.Contains(t, res.AllowedCommands, "confirm")

	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", decode[ReservationDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ReservationDTO](t, rec)
	assert.Equal(t, "CANCELLED", got.Status)
	assert.Empty(t, got.AllowedCommands)

	// Cancelling frees the room.
	s.book(t, bookStandard)
}

func TestAddCharge_UpdatesPricingAndFolio(t *testing.T) {
	s := newTestServer(t)
	res := s.checkIn(t, s.book(t, bookStandard).ID)

	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/charges", `{"label": "Minibar", "amount": 4500}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ReservationDTO](t, rec)

	require.Len(t, got.ExtraCharges, 1)
	assert.Equal(t, "Minibar", got.ExtraCharges[0].Label)
	assert.Equal(t, "4500", got.Pricing.ExtraChargesTotal)
	// (75000 + 4500) * 1.18
	assert.Equal(t, "93810", got.GrandTotal)

	folio := decode[FolioResponse](t, s.do(t, http.MethodGet, "/api/reservations/"+res.ID+"/folio", ""))
	require.Len(t, folio.Entries, 1)
	assert.Equal(t, "charge", folio.Entries[0].Kind)
	assert.Equal(t, "4500", folio.TotalCharges)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/charges", `{"label": " ", "amount": 100}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRecordPayment_CheckedOutNeedsCorrection(t *testing.T) {
	// GIVEN: A stay checked out without payment
	s := newTestServer(t)
	res := s.checkIn(t, s.book(t, bookStandard).ID)
	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/check-out", `{"date": "2025-03-04"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: A regular payment is posted
	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/payments",
		`{"type": "partial", "amount": 1000, "method": "cash"}`)

	// THEN: It is refused; a correction goes through against the receipt
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/payments",
		`{"type": "partial", "amount": 1000, "method": "cash", "correction": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ReservationDTO](t, rec)
	assert.Equal(t, "1000", got.AmountPaid)
	assert.Equal(t, "87500", got.BalanceDue)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/payments",
		`{"type": "partial", "amount": 100000, "correction": true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_payment_amount", decode[ErrorResponse](t, rec).Code)
}

func TestRecordPayment_FullWithExplicitZeroRejected(t *testing.T) {
	// GIVEN: A booking with 88500 due
	s := newTestServer(t)
	res := s.book(t, bookStandard)

	// WHEN: A full payment states an amount of 0
	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/payments",
		`{"type": "full", "amount": 0, "method": "cash"}`)

	// THEN: It is refused; without an amount the balance is settled
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_payment_amount", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/payments", `{"type": "full", "method": "cash"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PAID", decode[ReservationDTO](t, rec).PaymentStatus)
}

func TestRecordPayment_NoneIsNoOp(t *testing.T) {
	s := newTestServer(t)
	res := s.book(t, bookStandard)

	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/payments", `{"type": "none"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ReservationDTO](t, rec)
	assert.Equal(t, res.Version, got.Version)
	assert.Equal(t, "0", got.AmountPaid)
	folio := decode[FolioResponse](t, s.do(t, http.MethodGet, "/api/reservations/"+res.ID+"/folio", ""))
	assert.Empty(t, folio.Entries)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreviewPrice_EarlyDeparture(t *testing.T) {
	s := newTestServer(t)
	res := s.checkIn(t, s.book(t, bookStandard).ID)

	tests := []struct {
		name   string
		query  string
		nights int
		total  string
	}{
		{"reserved by default", "?departing=2025-03-03", 3, "88500"},
		{"actual nights", "?billing_method=actual&departing=2025-03-03", 2, "59000"},
		{"on schedule", "", 3, "88500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/reservations/"+res.ID+"/preview"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			q := decode[QuoteDTO](t, rec)

			assert.Equal(t, 3, q.ReservedNights)
			assert.Equal(t, tt.nights, q.NightsBilled)
			assert.Equal(t, tt.total, q.GrandTotal)
		})
	}

	// Previews never change the reservation.
	got := decode[ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations/"+res.ID, ""))
	assert.Equal(t, res.Version, got.Version)
}

func TestPreviewPrice_BadInput(t *testing.T) {
	s := newTestServer(t)
	res := s.book(t, bookStandard)

	rec := s.do(t, http.MethodGet, "/api/reservations/"+res.ID+"/preview?departing=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reservations/"+res.ID+"/preview?billing_method=hourly", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_billing_method", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/reservations/missing/preview", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewPrice_CheckedOutKeepsReceipt(t *testing.T) {
	// GIVEN: A checked-out stay under VAT 18%
	s := newTestServer(t)
	res := s.checkIn(t, s.book(t, bookStandard).ID)
	rec := s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/check-out", `{"date": "2025-03-04"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: VAT is raised to 20%
	rec = s.do(t, http.MethodPut, "/api/tax-rules/vat", `{"type": "PERCENTAGE", "rate": 20, "applies_to": "SUBTOTAL"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The preview still shows the receipt
	q := decode[QuoteDTO](t, s.do(t, http.MethodGet, "/api/reservations/"+res.ID+"/preview", ""))
	assert.Equal(t, "88500", q.GrandTotal)
	assert.Equal(t, "88500", q.BalanceDue)
}

// =============================================================================
// TAX RULES
// =============================================================================

func TestTaxRules_CRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/tax-rules",
		`{"id": "city", "name": "City tax", "type": "fixed", "rate": 1000, "applies_to": "total", "display_order": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[factory.TaxRuleJSON](t, rec)
	assert.Equal(t, "FIXED", created.Type)
	assert.Equal(t, "TOTAL", created.AppliesTo)
	require.NotNil(t, created.Enabled)
	assert.True(t, *created.Enabled)

	rec = s.do(t, http.MethodPut, "/api/tax-rules/city",
		`{"id": "ignored", "name": "City tax", "type": "FIXED", "rate": 1500, "applies_to": "TOTAL", "display_order": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "city", decode[factory.TaxRuleJSON](t, rec).ID)

	got := decode[factory.TaxRuleJSON](t, s.do(t, http.MethodGet, "/api/tax-rules/city", ""))
	assert.Equal(t, "1500", got.Rate.String())

	list := decode[[]factory.TaxRuleJSON](t, s.do(t, http.MethodGet, "/api/tax-rules", ""))
	require.Len(t, list, 2)
	assert.Equal(t, "vat", list[0].ID)
	assert.Equal(t, "city", list[1].ID)

	rec = s.do(t, http.MethodGet, "/api/tax-rules/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/tax-rules", `{"id": "bad", "type": "FLAT", "rate": 1, "applies_to": "TOTAL"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_tax_rule", decode[ErrorResponse](t, rec).Code)
}

func TestTaxRules_ApplyToNewBookings(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/tax-rules",
		`{"id": "city", "type": "FIXED", "rate": 1000, "applies_to": "TOTAL", "display_order": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	res := s.book(t, bookStandard)

	assert.Equal(t, "89500", res.GrandTotal)
	require.Len(t, res.Pricing.TaxBreakdown, 2)
	assert.Equal(t, "1000", res.Pricing.TaxBreakdown[1].Amount)
}

// =============================================================================
// NO-SHOWS
// =============================================================================

func TestNoShows_ManualSweep(t *testing.T) {
	// GIVEN: A confirmed arrival for 1 March
	s := newTestServer(t)
	res := s.book(t, bookStandard)

	// WHEN: Swept on arrival day, then once the 24h grace has elapsed
	rec := s.do(t, http.MethodPost, "/api/admin/no-shows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[NoShowRunResponse](t, rec).Marked)

	rec = s.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/no-show", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeTooEarly, decode[ErrorResponse](t, rec).Code)

	s.clock.Set(time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	rec = s.do(t, http.MethodPost, "/api/admin/no-shows", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The reservation is NO_SHOW and the room is free
	assert.Equal(t, []string{res.ID}, decode[NoShowRunResponse](t, rec).Marked)
	got := decode[ReservationDTO](t, s.do(t, http.MethodGet, "/api/reservations/"+res.ID, ""))
	assert.Equal(t, "NO_SHOW", got.Status)
	s.book(t, `{"check_in": "2025-03-02", "check_out": "2025-03-03", "price_per_night": 25000, "room": "12"}`)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.book(t, bookStandard)
	s.do(t, http.MethodPost, "/api/reservations", bookStandard)
	s.do(t, http.MethodPost, "/api/reservations/missing/confirm", "")

	rec := s.do(t, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `stay_commands_total{command="book",outcome="ok"} 1`)
	assert.Contains(t, body, `stay_commands_total{command="book",outcome="conflict"} 1`)
	assert.Contains(t, body, `stay_commands_total{command="confirm",outcome="not_found"} 1`)
	assert.Contains(t, body, `stay_room_conflicts_total 1`)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", stay.ErrReservationNotFound, http.StatusNotFound, CodeNotFound},
		{"overpaid", &billing.OverpaidError{}, http.StatusUnprocessableEntity, "overpaid"},
		{"stale", &stay.StaleVersionError{}, http.StatusConflict, CodeStaleVersion},
		{"duplicate", &stay.DuplicateReservationError{ReservationID: "r-1"}, http.StatusConflict, CodeDuplicateReservation},
		{"unknown", assert.AnError, http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
