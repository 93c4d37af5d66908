/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the stay aggregate from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are decimal strings in responses ("88500", "12.50") and accept a
  JSON number or a decimal string in requests. Currency is carried once per
  reservation, never per amount.

DATES:
  Calendar days are "YYYY-MM-DD". Clock times are "HH:MM" in the property
  timezone.

VALIDATION:
  DTOs only carry data. Conversions to engine commands reject malformed
  enums (payment type, billing method); business validation happens in the
  engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/taxrule.go: TaxRuleJSON (tax rule admin payloads)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type ChargeDTO struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// PaymentRequest describes one payment instruction. Type is "full",
// "partial" or "none"; amount is required for partial.
type PaymentRequest struct {
	Type   string           `json:"type"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Method string           `json:"method,omitempty"`
}

type BookRequest struct {
	GuestID       string           `json:"guest_id"`
	CheckIn       billing.Date     `json:"check_in"`
	CheckOut      billing.Date     `json:"check_out"`
	PricePerNight decimal.Decimal  `json:"price_per_night"`
	Discount      *decimal.Decimal `json:"discount,omitempty"`
	Room          string           `json:"room,omitempty"`
	Confirm       bool             `json:"confirm,omitempty"`
	Deposit       *PaymentRequest  `json:"deposit,omitempty"`
}

type AssignRoomRequest struct {
	Room string `json:"room"`
}

type CheckInRequest struct {
	Date    billing.Date    `json:"date,omitempty"`
	Time    string          `json:"time,omitempty"`
	Room    string          `json:"room,omitempty"`
	Payment *PaymentRequest `json:"payment,omitempty"`
}

type CheckOutRequest struct {
	Date            billing.Date     `json:"date,omitempty"`
	Time            string           `json:"time,omitempty"`
	BillingMethod   string           `json:"billing_method,omitempty"`
	ExtraCharges    []ChargeDTO      `json:"extra_charges,omitempty"`
	Discount        *decimal.Decimal `json:"discount,omitempty"`
	LateCheckoutFee *decimal.Decimal `json:"late_checkout_fee,omitempty"`
	Payment         *PaymentRequest  `json:"payment,omitempty"`
}

type RecordPaymentRequest struct {
	PaymentRequest
	Correction bool `json:"correction,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type TaxLineDTO struct {
	TaxID     string `json:"tax_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Rate      string `json:"rate"`
	AppliesTo string `json:"applies_to"`
	Inclusive bool   `json:"inclusive"`
	Base      string `json:"base"`
	Amount    string `json:"amount"`
}

// PriceDTO is a stored price snapshot: the provisional pricing or the
// frozen receipt.
type PriceDTO struct {
	BillingMethod     string       `json:"billing_method"`
	NightsBilled      int          `json:"nights_billed"`
	RoomSubtotal      string       `json:"room_subtotal"`
	ExtraChargesTotal string       `json:"extra_charges_total"`
	LateCheckoutFee   string       `json:"late_checkout_fee"`
	Discount          string       `json:"discount"`
	SubtotalBeforeTax string       `json:"subtotal_before_tax"`
	TaxBreakdown      []TaxLineDTO `json:"tax_breakdown"`
	TotalTax          string       `json:"total_tax"`
	GrandTotal        string       `json:"grand_total"`
	ComputedAt        string       `json:"computed_at,omitempty"`
}

type ReservationDTO struct {
	ID                 string      `json:"id"`
	BookingReference   string      `json:"booking_reference"`
	GuestID            string      `json:"guest_id,omitempty"`
	Currency           string      `json:"currency"`
	Status             string      `json:"status"`
	RoomNumber         string      `json:"room_number,omitempty"`
	CheckIn            string      `json:"check_in"`
	CheckOut           string      `json:"check_out"`
	ActualCheckIn      string      `json:"actual_check_in,omitempty"`
	ActualCheckInTime  string      `json:"actual_check_in_time,omitempty"`
	ActualCheckOut     string      `json:"actual_check_out,omitempty"`
	ActualCheckOutTime string      `json:"actual_check_out_time,omitempty"`
	PricePerNight      string      `json:"price_per_night"`
	Discount           string      `json:"discount"`
	LateCheckoutFee    string      `json:"late_checkout_fee"`
	ExtraCharges       []ChargeDTO `json:"extra_charges"`
	Pricing            PriceDTO    `json:"pricing"`
	Receipt            *PriceDTO   `json:"receipt,omitempty"`
	GrandTotal         string      `json:"grand_total"`
	AmountPaid         string      `json:"amount_paid"`
	BalanceDue         string      `json:"balance_due"`
	PaymentStatus      string      `json:"payment_status"`
	PaymentMethod      string      `json:"payment_method,omitempty"`
	AllowedCommands    []string    `json:"allowed_commands"`
	Version            int64       `json:"version"`
	CreatedAt          string      `json:"created_at,omitempty"`
	UpdatedAt          string      `json:"updated_at,omitempty"`
}

// QuoteDTO is a live price preview.
type QuoteDTO struct {
	BillingMethod     string       `json:"billing_method"`
	ReservedNights    int          `json:"reserved_nights"`
	NightsBilled      int          `json:"nights_billed"`
	EarlyArrival      bool         `json:"early_arrival"`
	Departure         string       `json:"departure"`
	BilledFrom        string       `json:"billed_from"`
	BilledTo          string       `json:"billed_to"`
	PricePerNight     string       `json:"price_per_night"`
	RoomSubtotal      string       `json:"room_subtotal"`
	ExtraChargesTotal string       `json:"extra_charges_total"`
	LateCheckoutFee   string       `json:"late_checkout_fee"`
	Discount          string       `json:"discount"`
	SubtotalBeforeTax string       `json:"subtotal_before_tax"`
	TaxBreakdown      []TaxLineDTO `json:"tax_breakdown"`
	TotalTax          string       `json:"total_tax"`
	InclusiveTax      string       `json:"inclusive_tax"`
	GrandTotal        string       `json:"grand_total"`
	AmountPaid        string       `json:"amount_paid"`
	BalanceDue        string       `json:"balance_due"`
}

type FolioEntryDTO struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Label      string `json:"label,omitempty"`
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
	Command    string `json:"command"`
	RecordedAt string `json:"recorded_at"`
}

type FolioResponse struct {
	ReservationID string          `json:"reservation_id"`
	Currency      string          `json:"currency"`
	Entries       []FolioEntryDTO `json:"entries"`
	TotalCharges  string          `json:"total_charges"`
	TotalPayments string          `json:"total_payments"`
}

type NoShowRunResponse struct {
	Marked []string `json:"marked"`
	Held   []string `json:"held"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(m billing.Money) string {
	return m.Value.StringFixed(m.Currency.Scale())
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toTaxLineDTOs(lines []billing.TaxLine) []TaxLineDTO {
	out := make([]TaxLineDTO, len(lines))
	for i, l := range lines {
		out[i] = TaxLineDTO{
			TaxID:     l.TaxID,
			Name:      l.Name,
			Type:      string(l.Type),
			Rate:      l.Rate.String(),
			AppliesTo: string(l.AppliesTo),
			Inclusive: l.Inclusive,
			Base:      money(l.Base),
			Amount:    money(l.Amount),
		}
	}
	return out
}

func toPriceDTO(p stay.PriceSnapshot) PriceDTO {
	return PriceDTO{
		BillingMethod:     string(p.BillingMethod),
		NightsBilled:      p.NightsBilled,
		RoomSubtotal:      money(p.RoomSubtotal),
		ExtraChargesTotal: money(p.ExtraChargesTotal),
		LateCheckoutFee:   money(p.LateCheckoutFee),
		Discount:          money(p.Discount),
		SubtotalBeforeTax: money(p.SubtotalBeforeTax),
		TaxBreakdown:      toTaxLineDTOs(p.TaxBreakdown),
		TotalTax:          money(p.TotalTax),
		GrandTotal:        money(p.GrandTotal),
		ComputedAt:        timestamp(p.ComputedAt),
	}
}

// commandOrder is the order allowed_commands are listed in.
var commandOrder = []stay.Command{
	stay.CmdConfirm, stay.CmdAssignRoom, stay.CmdCheckIn, stay.CmdCheckOut,
	stay.CmdRecordPayment, stay.CmdAddCharge, stay.CmdCancel, stay.CmdMarkNoShow,
}

func toReservationDTO(r stay.Reservation) ReservationDTO {
	charges := make([]ChargeDTO, len(r.ExtraCharges))
	for i, c := range r.ExtraCharges {
		charges[i] = ChargeDTO{Label: c.Label, Amount: c.Amount.Value}
	}
	allowed := []string{}
	for _, cmd := range commandOrder {
		if stay.CanApply(cmd, r.Status) {
			allowed = append(allowed, string(cmd))
		}
	}

	dto := ReservationDTO{
		ID:                 string(r.ID),
		BookingReference:   r.BookingReference,
		GuestID:            r.GuestID,
		Currency:           string(r.Currency),
		Status:             string(r.Status),
		RoomNumber:         string(r.RoomNumber),
		CheckIn:            r.CheckIn.String(),
		CheckOut:           r.CheckOut.String(),
		ActualCheckIn:      r.ActualCheckIn.String(),
		ActualCheckInTime:  r.ActualCheckInTime,
		ActualCheckOut:     r.ActualCheckOut.String(),
		ActualCheckOutTime: r.ActualCheckOutTime,
		PricePerNight:      money(r.PricePerNight),
		Discount:           money(r.Discount),
		LateCheckoutFee:    money(r.LateCheckoutFee),
		ExtraCharges:       charges,
		Pricing:            toPriceDTO(r.Pricing),
		GrandTotal:         money(r.GrandTotal()),
		AmountPaid:         money(r.AmountPaid),
		BalanceDue:         money(r.BalanceDue()),
		PaymentStatus:      string(r.PaymentStatus),
		PaymentMethod:      string(r.PaymentMethod),
		AllowedCommands:    allowed,
		Version:            r.Version,
		CreatedAt:          timestamp(r.CreatedAt),
		UpdatedAt:          timestamp(r.UpdatedAt),
	}
	if r.Receipt != nil {
		receipt := toPriceDTO(*r.Receipt)
		dto.Receipt = &receipt
	}
	return dto
}

func toQuoteDTO(q billing.Quote) QuoteDTO {
	return QuoteDTO{
		BillingMethod:     string(q.BillingMethod),
		ReservedNights:    q.ReservedNights,
		NightsBilled:      q.NightsBilled,
		EarlyArrival:      q.EarlyArrival,
		Departure:         string(q.Departure),
		BilledFrom:        q.BilledFrom.String(),
		BilledTo:          q.BilledTo.String(),
		PricePerNight:     money(q.PricePerNight),
		RoomSubtotal:      money(q.RoomSubtotal),
		ExtraChargesTotal: money(q.ExtraChargesTotal),
		LateCheckoutFee:   money(q.LateCheckoutFee),
		Discount:          money(q.Discount),
		SubtotalBeforeTax: money(q.SubtotalBeforeTax),
		TaxBreakdown:      toTaxLineDTOs(q.Taxes.Lines),
		TotalTax:          money(q.Taxes.TotalTax),
		InclusiveTax:      money(q.Taxes.InclusiveTax),
		GrandTotal:        money(q.GrandTotal),
		AmountPaid:        money(q.AmountPaid),
		BalanceDue:        money(q.BalanceDue),
	}
}

func toFolioResponse(id stay.ReservationID, currency billing.Currency, entries []stay.FolioEntry) FolioResponse {
	dtos := make([]FolioEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = FolioEntryDTO{
			ID:         e.ID,
			Kind:       string(e.Kind),
			Label:      e.Label,
			Amount:     money(e.Amount),
			Method:     string(e.Method),
			Command:    string(e.Command),
			RecordedAt: timestamp(e.RecordedAt),
		}
	}
	totals := stay.Totals(currency, entries)
	return FolioResponse{
		ReservationID: string(id),
		Currency:      string(currency),
		Entries:       dtos,
		TotalCharges:  money(totals.Charges),
		TotalPayments: money(totals.Payments),
	}
}

// toInstruction converts an optional payment request. A nil request is a
// "none" instruction.
func toInstruction(p *PaymentRequest, currency billing.Currency) (billing.PaymentInstruction, error) {
	if p == nil {
		return billing.PaymentInstruction{Type: billing.PayNone}, nil
	}
	typ, err := billing.ParsePaymentType(p.Type)
	if err != nil {
		return billing.PaymentInstruction{}, err
	}
	instr := billing.PaymentInstruction{Type: typ, Method: billing.PaymentMethod(p.Method)}
	if p.Amount != nil {
		instr.Amount = billing.NewMoneyFromDecimal(*p.Amount, currency)
	}
	return instr, nil
}

func optionalMoney(d *decimal.Decimal, currency billing.Currency) *billing.Money {
	if d == nil {
		return nil
	}
	m := billing.NewMoneyFromDecimal(*d, currency)
	return &m
}

func toCharges(in []ChargeDTO, currency billing.Currency) []billing.ExtraCharge {
	out := make([]billing.ExtraCharge, len(in))
	for i, c := range in {
		out[i] = billing.ExtraCharge{Label: c.Label, Amount: billing.NewMoneyFromDecimal(c.Amount, currency)}
	}
	return out
}
