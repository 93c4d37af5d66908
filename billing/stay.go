/*
stay.go - StayBillingCalculator: nights to bill and the pre-tax subtotal

PURPOSE:
  Resolves how many nights a stay is billed for, given the reserved window
  and what actually happened at arrival and departure, then prices the
  stay and delegates taxes to ComputeTaxes.

NIGHTS BILLED:
  ┌──────────────────────┬──────────────────────────────────────────────┐
  │ Situation            │ Nights billed                                │
  ├──────────────────────┼──────────────────────────────────────────────┤
  │ On schedule          │ nights(checkIn, checkOut)                    │
  │ Early arrival        │ nights(arrival, checkOut)                    │
  │ Early checkout       │ "actual":   nights(checkIn, departure)       │
  │                      │ "reserved": nights(checkIn, checkOut)        │
  │ Late checkout        │ nights(checkIn, departure), no policy choice │
  └──────────────────────┴──────────────────────────────────────────────┘
  Early arrival and a departure variance combine: the billed window starts
  at the arrival day. The result is never less than one night.

AMOUNTS:
  roomSubtotal      = nightsBilled * pricePerNight
  subtotalBeforeTax = max(0, roomSubtotal + extras + lateFee - discount)
  balanceDue        = max(0, grandTotal - amountPaid)

PreviewStay is side-effect free and can be called as often as a UI needs
for a live preview before anything is committed.
*/
package billing

import (
	"fmt"
	"strings"
)

// =============================================================================
// BILLING METHOD - Staff choice at early checkout only
// =============================================================================

type BillingMethod string

const (
	BillActual   BillingMethod = "actual"
	BillReserved BillingMethod = "reserved"
)

// DefaultBillingMethod protects revenue when the caller expresses no choice.
const DefaultBillingMethod = BillReserved

// ParseBillingMethod maps an empty string to DefaultBillingMethod.
func ParseBillingMethod(s string) (BillingMethod, error) {
	switch BillingMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultBillingMethod, nil
	case BillActual:
		return BillActual, nil
	case BillReserved:
		return BillReserved, nil
	}
	return "", fmt.Errorf("%w: %q (use %q or %q)", ErrInvalidBillingMethod, s, BillActual, BillReserved)
}

// =============================================================================
// EXTRA CHARGE
// =============================================================================

// ExtraCharge is a labelled, non-negative ad-hoc charge (minibar, laundry).
type ExtraCharge struct {
	Label  string
	Amount Money
}

// ValidateCharge rejects blank labels and negative amounts.
func ValidateCharge(c ExtraCharge) error {
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidCharge)
	}
	if c.Amount.IsNegative() {
		return &NegativeChargeAmountError{Label: c.Label, Amount: c.Amount}
	}
	return nil
}

func SumCharges(currency Currency, charges []ExtraCharge) Money {
	total := Zero(currency)
	for _, c := range charges {
		total = total.Add(c.Amount)
	}
	return total
}

// =============================================================================
// STAY INPUT / QUOTE
// =============================================================================

type StayInput struct {
	CheckIn  Date // reserved
	CheckOut Date // reserved

	// ArrivedOn is the actual arrival day; zero until the guest arrives.
	ArrivedOn Date
	// DepartingOn is the actual departure day; zero means the reserved one.
	DepartingOn Date

	PricePerNight   Money
	Discount        Money
	LateCheckoutFee Money
	ExtraCharges    []ExtraCharge
	AmountPaid      Money
}

type Departure string

const (
	DepartureOnSchedule Departure = "on_schedule"
	DepartureEarly      Departure = "early"
	DepartureLate       Departure = "late"
)

type Quote struct {
	BillingMethod  BillingMethod
	ReservedNights int
	NightsBilled   int
	EarlyArrival   bool
	Departure      Departure
	BilledFrom     Date
	BilledTo       Date

	PricePerNight     Money
	RoomSubtotal      Money
	ExtraChargesTotal Money
	LateCheckoutFee   Money
	Discount          Money
	SubtotalBeforeTax Money

	Taxes      TaxResult
	GrandTotal Money
	AmountPaid Money
	BalanceDue Money
}

// =============================================================================
// CALCULATOR
// =============================================================================

// PreviewStay prices a stay. It fails only on invalid input.
func PreviewStay(in StayInput, method BillingMethod, rules []TaxRule) (Quote, error) {
	if method == "" {
		method = DefaultBillingMethod
	}
	if method != BillActual && method != BillReserved {
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidBillingMethod, method)
	}
	if err := validateStayInput(in); err != nil {
		return Quote{}, err
	}

	currency := in.PricePerNight.Currency
	q := Quote{
		BillingMethod:  method,
		ReservedNights: Nights(in.CheckIn, in.CheckOut),
		Departure:      DepartureOnSchedule,
		PricePerNight:  in.PricePerNight,
	}

	from := in.CheckIn
	if !in.ArrivedOn.IsZero() && in.ArrivedOn.Before(in.CheckIn) {
		from = in.ArrivedOn
		q.EarlyArrival = true
	}

	to := in.CheckOut
	if !in.DepartingOn.IsZero() {
		switch {
		case in.DepartingOn.Before(in.CheckOut):
			q.Departure = DepartureEarly
			if method == BillActual {
				to = in.DepartingOn
			}
		case in.DepartingOn.After(in.CheckOut):
			q.Departure = DepartureLate
			to = in.DepartingOn
		}
	}
	if to.Before(from) {
		return Quote{}, &InvalidNightsError{From: from, To: to}
	}

	q.BilledFrom, q.BilledTo = from, to
	q.NightsBilled = Nights(from, to)
	if q.NightsBilled < 1 {
		q.NightsBilled = 1
	}

	q.RoomSubtotal = in.PricePerNight.MulInt(q.NightsBilled)
	q.ExtraChargesTotal = SumCharges(currency, in.ExtraCharges)
	q.LateCheckoutFee = orZero(in.LateCheckoutFee, currency)
	q.Discount = orZero(in.Discount, currency)

	gross := q.RoomSubtotal.Add(q.ExtraChargesTotal).Add(q.LateCheckoutFee)
	if q.Discount.GreaterThan(gross) {
		return Quote{}, &DiscountExceedsSubtotalError{Discount: q.Discount, Subtotal: gross}
	}
	q.SubtotalBeforeTax = gross.Sub(q.Discount).NonNegative()

	q.Taxes = ComputeTaxes(TaxInput{
		RoomCharge:   q.RoomSubtotal,
		ExtraCharges: q.ExtraChargesTotal.Add(q.LateCheckoutFee),
		Discount:     q.Discount,
	}, rules)
	q.GrandTotal = q.Taxes.GrandTotal
	q.AmountPaid = orZero(in.AmountPaid, currency)
	q.BalanceDue = q.GrandTotal.Sub(q.AmountPaid).NonNegative()
	return q, nil
}

func validateStayInput(in StayInput) error {
	if !in.CheckOut.After(in.CheckIn) {
		return &InvalidNightsError{From: in.CheckIn, To: in.CheckOut}
	}
	if in.PricePerNight.IsNegative() {
		return &NegativeChargeAmountError{Label: "price per night", Amount: in.PricePerNight}
	}
	if in.Discount.IsNegative() {
		return &NegativeChargeAmountError{Label: "discount", Amount: in.Discount}
	}
	if in.LateCheckoutFee.IsNegative() {
		return &NegativeChargeAmountError{Label: "late checkout fee", Amount: in.LateCheckoutFee}
	}
	for _, c := range in.ExtraCharges {
		if err := ValidateCharge(c); err != nil {
			return err
		}
	}
	return nil
}

func orZero(m Money, currency Currency) Money {
	if m.Currency == "" {
		return Money{Value: m.Value, Currency: currency}
	}
	return m
}
