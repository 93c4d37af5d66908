/*
handlers.go - HTTP API handlers for the stay engine

PURPOSE:
  Exposes the reservation lifecycle via REST API. Handles HTTP
  request/response and JSON serialization, and delegates every state
  change to stay.Service.

ENDPOINTS:
  Reservations:
    GET    /api/reservations                    List (?status=&room=&guest_id=&limit=)
    POST   /api/reservations                    Book
    GET    /api/reservations/{id}               Get one
    GET    /api/reservations/{id}/preview       Price preview (?billing_method=&departing=)
    GET    /api/reservations/{id}/folio         Folio postings

  Commands:
    POST   /api/reservations/{id}/confirm
    POST   /api/reservations/{id}/assign-room
    POST   /api/reservations/{id}/check-in
    POST   /api/reservations/{id}/check-out
    POST   /api/reservations/{id}/payments
    POST   /api/reservations/{id}/charges
    POST   /api/reservations/{id}/cancel
    POST   /api/reservations/{id}/no-show

  Tax rules:
    GET    /api/tax-rules
    POST   /api/tax-rules                       Create or replace
    GET    /api/tax-rules/{id}
    PUT    /api/tax-rules/{id}

  Admin:
    POST   /api/admin/no-shows                  Run the no-show sweep now

  Scenarios:
    GET    /api/scenarios
    POST   /api/scenarios/load

REQUEST FLOW:
  1. Parse HTTP request (400 on malformed JSON)
  2. Convert the DTO into an engine command
  3. Call stay.Service
  4. Serialize the updated reservation
  5. Map errors (see errors.go)

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/factory"
	"github.com/warp/stay-engine/logging"
	"github.com/warp/stay-engine/stay"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *stay.Service
	TaxRules  stay.TaxRuleStore
	Scenarios *ScenarioLoader
	Logger    *zap.Logger
}

func NewHandler(svc *stay.Service, taxRules stay.TaxRuleStore, scenarios *ScenarioLoader, logger *zap.Logger) *Handler {
	return &Handler{
		Service:   svc,
		TaxRules:  taxRules,
		Scenarios: scenarios,
		Logger:    logging.OrNop(logger),
	}
}

// fail writes err and logs it when it is not caller-correctable.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	if status, _ := statusFor(err); status == http.StatusInternalServerError {
		h.Logger.Error(message,
			zap.String("path", r.URL.Path),
			zap.String("reservation_id", chi.URLParam(r, "id")),
			zap.Error(err))
	}
	writeServiceError(w, message, err)
}

func reservationID(r *http.Request) stay.ReservationID {
	return stay.ReservationID(chi.URLParam(r, "id"))
}

func (h *Handler) currency() billing.Currency {
	return h.Service.Currency()
}

// =============================================================================
// RESERVATION QUERIES
// =============================================================================

func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := stay.ListFilter{
		Room:    stay.RoomNumber(q.Get("room")),
		GuestID: q.Get("guest_id"),
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := stay.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Unknown status: "+raw, nil)
			return
		}
		filter.Status = &status
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	reservations, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list reservations", err)
		return
	}
	dtos := make([]ReservationDTO, len(reservations))
	for i, res := range reservations {
		dtos[i] = toReservationDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Get(r.Context(), reservationID(r))
	if err != nil {
		h.fail(w, r, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// PreviewPrice prices the stay without changing it. A CHECKED_OUT
// reservation returns its frozen receipt figures.
func (h *Handler) PreviewPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	method, err := billing.ParseBillingMethod(q.Get("billing_method"))
	if err != nil {
		h.fail(w, r, "Invalid billing method", err)
		return
	}
	var departing billing.Date
	if raw := q.Get("departing"); raw != "" {
		departing, err = billing.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid departing date", err)
			return
		}
	}

	quote, err := h.Service.PreviewPrice(r.Context(), reservationID(r), method, departing)
	if err != nil {
		h.fail(w, r, "Failed to preview price", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteDTO(quote))
}

func (h *Handler) GetFolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := reservationID(r)
	res, err := h.Service.Get(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to get reservation", err)
		return
	}
	entries, err := h.Service.Folio(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to get folio", err)
		return
	}
	writeJSON(w, http.StatusOK, toFolioResponse(id, res.Currency, entries))
}

// =============================================================================
// RESERVATION COMMANDS
// =============================================================================

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	currency := h.currency()
	deposit, err := toInstruction(req.Deposit, currency)
	if err != nil {
		h.fail(w, r, "Invalid deposit", err)
		return
	}
	cmd := stay.BookCommand{
		GuestID:       req.GuestID,
		CheckIn:       req.CheckIn,
		CheckOut:      req.CheckOut,
		PricePerNight: billing.NewMoneyFromDecimal(req.PricePerNight, currency),
		Room:          stay.RoomNumber(req.Room),
		Confirm:       req.Confirm,
		Deposit:       deposit,
	}
	if d := optionalMoney(req.Discount, currency); d != nil {
		cmd.Discount = *d
	}

	res, err := h.Service.Book(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, "Failed to book reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Confirm(r.Context(), reservationID(r))
	h.respond(w, r, "Failed to confirm reservation", res, err)
}

func (h *Handler) AssignRoom(w http.ResponseWriter, r *http.Request) {
	var req AssignRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Service.AssignRoom(r.Context(), reservationID(r), stay.RoomNumber(req.Room))
	h.respond(w, r, "Failed to assign room", res, err)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	payment, err := toInstruction(req.Payment, h.currency())
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	res, err := h.Service.CheckIn(r.Context(), reservationID(r), stay.CheckInCommand{
		Date:    req.Date,
		Time:    req.Time,
		Room:    stay.RoomNumber(req.Room),
		Payment: payment,
	})
	h.respond(w, r, "Failed to check in", res, err)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req CheckOutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	currency := h.currency()
	method, err := billing.ParseBillingMethod(req.BillingMethod)
	if err != nil {
		h.fail(w, r, "Invalid billing method", err)
		return
	}
	payment, err := toInstruction(req.Payment, currency)
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	res, err := h.Service.CheckOut(r.Context(), reservationID(r), stay.CheckOutCommand{
		Date:            req.Date,
		Time:            req.Time,
		BillingMethod:   method,
		ExtraCharges:    toCharges(req.ExtraCharges, currency),
		Discount:        optionalMoney(req.Discount, currency),
		LateCheckoutFee: optionalMoney(req.LateCheckoutFee, currency),
		Payment:         payment,
	})
	h.respond(w, r, "Failed to check out", res, err)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	payment, err := toInstruction(&req.PaymentRequest, h.currency())
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	res, err := h.Service.RecordPayment(r.Context(), reservationID(r), stay.PaymentCommand{
		Payment:    payment,
		Correction: req.Correction,
	})
	h.respond(w, r, "Failed to record payment", res, err)
}

func (h *Handler) AddCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Service.AddCharge(r.Context(), reservationID(r), billing.ExtraCharge{
		Label:  req.Label,
		Amount: billing.NewMoneyFromDecimal(req.Amount, h.currency()),
	})
	h.respond(w, r, "Failed to add charge", res, err)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Cancel(r.Context(), reservationID(r))
	h.respond(w, r, "Failed to cancel reservation", res, err)
}

func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.MarkNoShow(r.Context(), reservationID(r))
	h.respond(w, r, "Failed to mark no-show", res, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, message string, res stay.Reservation, err error) {
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// =============================================================================
// TAX RULE HANDLERS
// =============================================================================

func (h *Handler) ListTaxRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.TaxRules.ListTaxRules(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list tax rules", err)
		return
	}
	dtos := make([]factory.TaxRuleJSON, len(rules))
	for i, rule := range rules {
		dtos[i] = factory.RuleToJSON(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetTaxRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.TaxRules.GetTaxRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to get tax rule", err)
		return
	}
	writeJSON(w, http.StatusOK, factory.RuleToJSON(rule))
}

// SaveTaxRule creates or replaces a rule. On PUT the URL id wins over the
// body. Frozen receipts are never touched.
func (h *Handler) SaveTaxRule(w http.ResponseWriter, r *http.Request) {
	var req factory.TaxRuleJSON
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		req.ID = id
	}
	rule, err := factory.RuleFromJSON(req)
	if err != nil {
		h.fail(w, r, "Invalid tax rule", err)
		return
	}
	if err := h.TaxRules.SaveTaxRule(r.Context(), rule); err != nil {
		h.fail(w, r, "Failed to save tax rule", err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, factory.RuleToJSON(rule))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunNoShows runs the sweep the scheduler runs, on demand.
func (h *Handler) RunNoShows(w http.ResponseWriter, r *http.Request) {
	marked, err := h.Service.MarkNoShows(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to mark no-shows", err)
		return
	}
	held, err := h.Service.HoldOverstays(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to hold overstays", err)
		return
	}
	writeJSON(w, http.StatusOK, NoShowRunResponse{Marked: idStrings(marked), Held: idStrings(held)})
}

func idStrings(ids []stay.ReservationID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body", err)
		return
	}
	if h.Scenarios == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Scenarios are disabled", nil)
		return
	}
	id := strings.TrimSpace(req.ScenarioID)
	if id == "" {
		id = ScenarioAll
	}
	result, err := h.Scenarios.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUnknownScenario) {
			writeError(w, http.StatusNotFound, CodeNotFound, "Unknown scenario: "+id, nil)
			return
		}
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
