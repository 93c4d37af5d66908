/*
Package stay implements the reservation lifecycle of the hotel back office.

PURPOSE:
  A Reservation moves through a closed set of states. Every change goes
  through a command of the Lifecycle, which either returns the next
  snapshot plus the side effects the outside world must carry out, or
  fails with a named error and leaves the reservation untouched.

STATE MACHINE:

	PENDING ──▶ CONFIRMED ──▶ CHECKED_IN ──▶ CHECKED_OUT
	   │  ╲          │  ╲
	   │   ╲─────────┼───▶ CHECKED_IN (confirm on arrival)
	   ▼             ▼
	CANCELLED     NO_SHOW (both reachable from PENDING and CONFIRMED)

KEY CONCEPTS IN THIS FILE (reservation.go):
  - Reservation: the aggregate root
  - PriceSnapshot: a priced view of the stay; provisional while the guest
    is in-house, frozen into Receipt at checkout
  - Receipt: non-nil if and only if Status == CHECKED_OUT

INVARIANTS (every committed snapshot):
  - AmountPaid <= GrandTotal (CANCELLED excepted)
  - PaymentStatus is derived from AmountPaid and GrandTotal
  - ExtraCharges are non-negative
  - a Receipt is never recomputed from the current tax configuration

SEE ALSO:
  - lifecycle.go: the commands
  - service.go: loading, committing and executing side effects
  - billing/: pricing and payments
*/
package stay

import (
	"time"

	"github.com/warp/stay-engine/billing"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ReservationID string
type RoomNumber string

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

var allStatuses = []Status{
	StatusPending, StatusConfirmed, StatusCheckedIn, StatusCheckedOut, StatusCancelled, StatusNoShow,
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further lifecycle command applies.
func (s Status) IsTerminal() bool {
	return s == StatusCheckedOut || s == StatusCancelled || s == StatusNoShow
}

// =============================================================================
// PRICE SNAPSHOT
// =============================================================================

type PriceSnapshot struct {
	BillingMethod     billing.BillingMethod
	ReservedNights    int
	NightsBilled      int
	EarlyArrival      bool
	Departure         billing.Departure
	BilledFrom        billing.Date
	BilledTo          billing.Date
	RoomSubtotal      billing.Money
	ExtraChargesTotal billing.Money
	LateCheckoutFee   billing.Money
	Discount          billing.Money
	SubtotalBeforeTax billing.Money
	TaxBreakdown      []billing.TaxLine
	TotalTax          billing.Money
	InclusiveTax      billing.Money
	GrandTotal        billing.Money
	ComputedAt        time.Time
}

func snapshotOf(q billing.Quote, at time.Time) PriceSnapshot {
	lines := make([]billing.TaxLine, len(q.Taxes.Lines))
	copy(lines, q.Taxes.Lines)
	return PriceSnapshot{
		BillingMethod:     q.BillingMethod,
		ReservedNights:    q.ReservedNights,
		NightsBilled:      q.NightsBilled,
		EarlyArrival:      q.EarlyArrival,
		Departure:         q.Departure,
		BilledFrom:        q.BilledFrom,
		BilledTo:          q.BilledTo,
		RoomSubtotal:      q.RoomSubtotal,
		ExtraChargesTotal: q.ExtraChargesTotal,
		LateCheckoutFee:   q.LateCheckoutFee,
		Discount:          q.Discount,
		SubtotalBeforeTax: q.SubtotalBeforeTax,
		TaxBreakdown:      lines,
		TotalTax:          q.Taxes.TotalTax,
		InclusiveTax:      q.Taxes.InclusiveTax,
		GrandTotal:        q.GrandTotal,
		ComputedAt:        at,
	}
}

// quote turns a stored snapshot back into a Quote, with payment figures
// taken from r. Used to serve previews of a frozen receipt.
func (p PriceSnapshot) quote(r Reservation) billing.Quote {
	lines := make([]billing.TaxLine, len(p.TaxBreakdown))
	copy(lines, p.TaxBreakdown)
	return billing.Quote{
		BillingMethod:     p.BillingMethod,
		ReservedNights:    p.ReservedNights,
		NightsBilled:      p.NightsBilled,
		EarlyArrival:      p.EarlyArrival,
		Departure:         p.Departure,
		BilledFrom:        p.BilledFrom,
		BilledTo:          p.BilledTo,
		PricePerNight:     r.PricePerNight,
		RoomSubtotal:      p.RoomSubtotal,
		ExtraChargesTotal: p.ExtraChargesTotal,
		LateCheckoutFee:   p.LateCheckoutFee,
		Discount:          p.Discount,
		SubtotalBeforeTax: p.SubtotalBeforeTax,
		Taxes: billing.TaxResult{
			Lines:        lines,
			TotalTax:     p.TotalTax,
			InclusiveTax: orZero(p.InclusiveTax, r.Currency),
			Subtotal:     p.SubtotalBeforeTax,
			GrandTotal:   p.GrandTotal,
		},
		GrandTotal: p.GrandTotal,
		AmountPaid: r.AmountPaid,
		BalanceDue: p.GrandTotal.Sub(r.AmountPaid).NonNegative(),
	}
}

// =============================================================================
// RESERVATION - The aggregate root
// =============================================================================

type Reservation struct {
	ID               ReservationID
	BookingReference string // immutable once assigned
	GuestID          string
	Currency         billing.Currency

	// Reserved stay window
	CheckIn  billing.Date
	CheckOut billing.Date

	// Set only by CheckIn / CheckOut
	ActualCheckIn      billing.Date
	ActualCheckInTime  string // HH:MM
	ActualCheckOut     billing.Date
	ActualCheckOutTime string

	// Pricing inputs
	PricePerNight   billing.Money // snapshot at booking time
	Discount        billing.Money
	LateCheckoutFee billing.Money
	ExtraCharges    []billing.ExtraCharge

	// Pricing outputs
	Pricing PriceSnapshot  // provisional, recomputed by commands
	Receipt *PriceSnapshot // frozen at checkout

	// Payment
	AmountPaid    billing.Money
	PaymentMethod billing.PaymentMethod
	PaymentStatus billing.PaymentStatus

	// Lifecycle
	Status     Status
	RoomNumber RoomNumber // empty until assigned

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so commands never share slices with their input.
func (r Reservation) Clone() Reservation {
	c := r
	if r.ExtraCharges != nil {
		c.ExtraCharges = make([]billing.ExtraCharge, len(r.ExtraCharges))
		copy(c.ExtraCharges, r.ExtraCharges)
	}
	if r.Pricing.TaxBreakdown != nil {
		c.Pricing.TaxBreakdown = make([]billing.TaxLine, len(r.Pricing.TaxBreakdown))
		copy(c.Pricing.TaxBreakdown, r.Pricing.TaxBreakdown)
	}
	if r.Receipt != nil {
		receipt := *r.Receipt
		receipt.TaxBreakdown = make([]billing.TaxLine, len(r.Receipt.TaxBreakdown))
		copy(receipt.TaxBreakdown, r.Receipt.TaxBreakdown)
		c.Receipt = &receipt
	}
	return c
}

// ReservedRange is the half-open window of reserved nights.
func (r Reservation) ReservedRange() billing.DateRange {
	return billing.DateRange{From: r.CheckIn, To: r.CheckOut}
}

// HoldRange is the window a room must be held for: the reserved window,
// extended back to the actual arrival day on early arrival.
func (r Reservation) HoldRange() billing.DateRange {
	rng := r.ReservedRange()
	if !r.ActualCheckIn.IsZero() && r.ActualCheckIn.Before(rng.From) {
		rng.From = r.ActualCheckIn
	}
	return rng
}

// HoldRangeOn is HoldRange as seen on today: a guest still in house after
// the reserved check-out day holds the room through tonight.
func (r Reservation) HoldRangeOn(today billing.Date) billing.DateRange {
	rng := r.HoldRange()
	if r.Status == StatusCheckedIn && today.After(r.CheckOut) {
		rng.To = today.AddDays(1)
	}
	return rng
}

// HoldsNight reports whether r, as stored, needs room for the night.
func (r Reservation) HoldsNight(room RoomNumber, night, today billing.Date) bool {
	if r.Status.IsTerminal() || r.RoomNumber != room {
		return false
	}
	return r.HoldRangeOn(today).Contains(night)
}

// GrandTotal is the frozen total once checked out, the provisional one before.
func (r Reservation) GrandTotal() billing.Money {
	if r.Receipt != nil {
		return r.Receipt.GrandTotal
	}
	return r.Pricing.GrandTotal
}

// BalanceDue is never negative.
func (r Reservation) BalanceDue() billing.Money {
	return r.GrandTotal().Sub(r.AmountPaid).NonNegative()
}

// stayInput maps the reservation onto the calculator input.
func (r Reservation) stayInput(departing billing.Date) billing.StayInput {
	return billing.StayInput{
		CheckIn:         r.CheckIn,
		CheckOut:        r.CheckOut,
		ArrivedOn:       r.ActualCheckIn,
		DepartingOn:     departing,
		PricePerNight:   r.PricePerNight,
		Discount:        r.Discount,
		LateCheckoutFee: r.LateCheckoutFee,
		ExtraCharges:    r.ExtraCharges,
		AmountPaid:      r.AmountPaid,
	}
}
