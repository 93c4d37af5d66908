/*
lifecycle.go - Pure reservation commands

PURPOSE:
  Each command takes the current snapshot and returns either a Transition
  (next snapshot + effects) or an error. Commands never touch storage,
  never read the wall clock and never mutate their input.

TIME:
  "today" is the calendar day of now in the property timezone. A no-show
  becomes eligible at 00:00 of the check-in day in that timezone plus the
  configured grace.

PRICING:
  Every command that can change what is owed re-prices the stay with the
  enabled tax rules passed in. CheckOut freezes the result into the
  Receipt; nothing re-prices a CHECKED_OUT reservation afterwards.

SEE ALSO:
  - transitions.go: which command applies from which status
  - effects.go: what the Service carries out after a command
*/
package stay

import (
	"strings"
	"time"

	"github.com/warp/stay-engine/billing"
)

const DefaultNoShowGrace = 24 * time.Hour

type Lifecycle struct {
	Location    *time.Location
	NoShowGrace time.Duration
}

func NewLifecycle(loc *time.Location, grace time.Duration) Lifecycle {
	if loc == nil {
		loc = time.UTC
	}
	return Lifecycle{Location: loc, NoShowGrace: grace}
}

func (l Lifecycle) loc() *time.Location {
	if l.Location == nil {
		return time.UTC
	}
	return l.Location
}

// Today is the property-local calendar day of now.
func (l Lifecycle) Today(now time.Time) billing.Date {
	return billing.DateOf(now, l.loc())
}

// NoShowEligibleAt is the earliest instant MarkNoShow succeeds for r.
func (l Lifecycle) NoShowEligibleAt(r Reservation) time.Time {
	return r.CheckIn.Start(l.loc()).Add(l.NoShowGrace)
}

// =============================================================================
// COMMAND INPUTS
// =============================================================================

type BookCommand struct {
	ID               ReservationID
	BookingReference string
	GuestID          string
	CheckIn          billing.Date
	CheckOut         billing.Date
	PricePerNight    billing.Money
	Discount         billing.Money
	Room             RoomNumber // optional
	Confirm          bool       // book straight into CONFIRMED
	Deposit          billing.PaymentInstruction
}

type CheckInCommand struct {
	Date    billing.Date // zero means today
	Time    string       // HH:MM, empty means now
	Room    RoomNumber   // optional, overrides the assigned room
	Payment billing.PaymentInstruction
}

type CheckOutCommand struct {
	Date            billing.Date
	Time            string
	BillingMethod   billing.BillingMethod
	ExtraCharges    []billing.ExtraCharge // appended to the stay
	Discount        *billing.Money        // nil keeps the current one
	LateCheckoutFee *billing.Money
	Payment         billing.PaymentInstruction
}

type PaymentCommand struct {
	Payment billing.PaymentInstruction
	// Correction allows a payment on a CHECKED_OUT reservation.
	Correction bool
}

// =============================================================================
// BOOK
// =============================================================================

func (l Lifecycle) Book(cmd BookCommand, rules []billing.TaxRule, now time.Time) (Transition, error) {
	if cmd.ID == "" {
		return Transition{}, invalidCommand("reservation id is required")
	}
	if cmd.CheckIn.IsZero() || cmd.CheckOut.IsZero() {
		return Transition{}, invalidCommand("check-in and check-out dates are required")
	}
	if cmd.PricePerNight.IsNegative() {
		return Transition{}, &billing.NegativeChargeAmountError{Label: "price per night", Amount: cmd.PricePerNight}
	}
	room, err := normalizeRoom(cmd.Room, true)
	if err != nil {
		return Transition{}, err
	}

	currency := cmd.PricePerNight.Currency
	r := Reservation{
		ID:               cmd.ID,
		BookingReference: cmd.BookingReference,
		GuestID:          cmd.GuestID,
		Currency:         currency,
		CheckIn:          cmd.CheckIn,
		CheckOut:         cmd.CheckOut,
		PricePerNight:    cmd.PricePerNight,
		Discount:         orZero(cmd.Discount, currency),
		LateCheckoutFee:  billing.Zero(currency),
		AmountPaid:       billing.Zero(currency),
		PaymentStatus:    billing.PaymentPending,
		Status:           StatusPending,
		RoomNumber:       room,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if cmd.Confirm {
		r.Status = StatusConfirmed
	}

	if err := l.reprice(&r, billing.Date{}, billing.BillReserved, rules, now); err != nil {
		return Transition{}, err
	}
	var effects []Effect
	if room != "" {
		effects = append(effects, claimRoom(room, r.HoldRange()))
	}
	paid, err := settle(&r, r.Pricing.GrandTotal, cmd.Deposit)
	if err != nil {
		return Transition{}, err
	}
	if paid.IsPositive() {
		effects = append(effects, recordPayment(paid, cmd.Deposit.Method))
	}
	return Transition{Command: CmdBook, Reservation: r, Effects: effects}, nil
}

// =============================================================================
// CONFIRM / ASSIGN ROOM
// =============================================================================

func (l Lifecycle) Confirm(current Reservation, now time.Time) (Transition, error) {
	if err := requireStatus(CmdConfirm, current); err != nil {
		return Transition{}, err
	}
	r := current.Clone()
	r.Status = StatusConfirmed
	r.UpdatedAt = now
	return Transition{Command: CmdConfirm, Reservation: r}, nil
}

// AssignRoom sets or moves the room. The new room is claimed for the hold
// range before commit; a room the reservation moves away from is released.
// For an in-house guest the claim starts today, and runs through tonight
// once the guest has stayed past the reserved check-out day.
func (l Lifecycle) AssignRoom(current Reservation, room RoomNumber, now time.Time) (Transition, error) {
	if err := requireStatus(CmdAssignRoom, current); err != nil {
		return Transition{}, err
	}
	room, err := normalizeRoom(room, false)
	if err != nil {
		return Transition{}, err
	}

	r := current.Clone()
	r.RoomNumber = room
	r.UpdatedAt = now

	today := l.Today(now)
	rng := r.HoldRangeOn(today)
	if r.Status == StatusCheckedIn && rng.Contains(today) {
		rng.From = today
	}
	effects := []Effect{claimRoom(room, rng)}
	if current.RoomNumber != "" && current.RoomNumber != room {
		effects = append(effects, releaseRoom(current.RoomNumber))
	}
	return Transition{Command: CmdAssignRoom, Reservation: r, Effects: effects}, nil
}

// =============================================================================
// CHECK IN
// =============================================================================

// CheckIn accepts PENDING as well as CONFIRMED: a walk-up arrival confirms
// and checks in at once. A room must be assigned or provided.
func (l Lifecycle) CheckIn(current Reservation, cmd CheckInCommand, rules []billing.TaxRule, now time.Time) (Transition, error) {
	if err := requireStatus(CmdCheckIn, current); err != nil {
		return Transition{}, err
	}
	room := current.RoomNumber
	if cmd.Room != "" {
		var err error
		if room, err = normalizeRoom(cmd.Room, false); err != nil {
			return Transition{}, err
		}
	}
	if room == "" {
		return Transition{}, ErrRoomNotAssigned
	}
	arrival, clock, err := l.when(cmd.Date, cmd.Time, now)
	if err != nil {
		return Transition{}, err
	}
	if !arrival.Before(current.CheckOut) {
		return Transition{}, &billing.InvalidNightsError{From: arrival, To: current.CheckOut}
	}

	r := current.Clone()
	r.RoomNumber = room
	r.ActualCheckIn = arrival
	r.ActualCheckInTime = clock
	r.Status = StatusCheckedIn
	r.UpdatedAt = now

	if err := l.reprice(&r, billing.Date{}, billing.BillReserved, rules, now); err != nil {
		return Transition{}, err
	}
	effects := []Effect{claimRoom(room, r.HoldRange())}
	if current.RoomNumber != "" && current.RoomNumber != room {
		effects = append(effects, releaseRoom(current.RoomNumber))
	}
	paid, err := settle(&r, r.Pricing.GrandTotal, cmd.Payment)
	if err != nil {
		return Transition{}, err
	}
	if paid.IsPositive() {
		effects = append(effects, recordPayment(paid, cmd.Payment.Method))
	}
	return Transition{Command: CmdCheckIn, Reservation: r, Effects: effects}, nil
}

// =============================================================================
// CHECK OUT
// =============================================================================

// CheckOut prices the stay with the finalized charges, applies the payment
// instruction and freezes the result into the Receipt.
func (l Lifecycle) CheckOut(current Reservation, cmd CheckOutCommand, rules []billing.TaxRule, now time.Time) (Transition, error) {
	if err := requireStatus(CmdCheckOut, current); err != nil {
		return Transition{}, err
	}
	method, err := billing.ParseBillingMethod(string(cmd.BillingMethod))
	if err != nil {
		return Transition{}, err
	}
	departure, clock, err := l.when(cmd.Date, cmd.Time, now)
	if err != nil {
		return Transition{}, err
	}
	if !current.ActualCheckIn.IsZero() && departure.Before(current.ActualCheckIn) {
		return Transition{}, &billing.InvalidNightsError{From: current.ActualCheckIn, To: departure}
	}

	r := current.Clone()
	var effects []Effect
	for _, c := range cmd.ExtraCharges {
		if err := billing.ValidateCharge(c); err != nil {
			return Transition{}, err
		}
		c.Amount = orZero(c.Amount, r.Currency)
		r.ExtraCharges = append(r.ExtraCharges, c)
		effects = append(effects, recordCharge(c))
	}
	if cmd.Discount != nil {
		r.Discount = orZero(*cmd.Discount, r.Currency)
	}
	if cmd.LateCheckoutFee != nil {
		r.LateCheckoutFee = orZero(*cmd.LateCheckoutFee, r.Currency)
	}
	r.ActualCheckOut = departure
	r.ActualCheckOutTime = clock
	r.Status = StatusCheckedOut
	r.UpdatedAt = now

	if err := l.reprice(&r, departure, method, rules, now); err != nil {
		return Transition{}, err
	}
	paid, err := settle(&r, r.Pricing.GrandTotal, cmd.Payment)
	if err != nil {
		return Transition{}, err
	}
	if paid.IsPositive() {
		effects = append(effects, recordPayment(paid, cmd.Payment.Method))
	}

	receipt := r.Pricing
	receipt.TaxBreakdown = append([]billing.TaxLine(nil), r.Pricing.TaxBreakdown...)
	r.Receipt = &receipt

	if r.RoomNumber != "" {
		effects = append(effects, releaseRoom(r.RoomNumber))
	}
	return Transition{Command: CmdCheckOut, Reservation: r, Effects: effects}, nil
}

// =============================================================================
// PAYMENTS AND CHARGES
// =============================================================================

// RecordPayment applies a payment against the current total: the frozen
// receipt once checked out, a fresh provisional price before.
func (l Lifecycle) RecordPayment(current Reservation, cmd PaymentCommand, rules []billing.TaxRule, now time.Time) (Transition, error) {
	if err := requireStatus(CmdRecordPayment, current); err != nil {
		return Transition{}, err
	}
	if current.Status == StatusCheckedOut && !cmd.Correction {
		return Transition{}, &IllegalTransitionError{Command: CmdRecordPayment, From: current.Status}
	}
	switch cmd.Payment.Type {
	case "":
		return Transition{}, invalidCommand("payment type is required")
	case billing.PayNone:
		return Transition{Command: CmdRecordPayment, Reservation: current.Clone(), Unchanged: true}, nil
	}

	r := current.Clone()
	r.UpdatedAt = now
	total := r.GrandTotal()
	if r.Receipt == nil {
		if err := l.reprice(&r, billing.Date{}, billing.BillReserved, rules, now); err != nil {
			return Transition{}, err
		}
		total = r.Pricing.GrandTotal
	}
	paid, err := settle(&r, total, cmd.Payment)
	if err != nil {
		return Transition{}, err
	}

	var effects []Effect
	if paid.IsPositive() {
		effects = append(effects, recordPayment(paid, cmd.Payment.Method))
	}
	return Transition{Command: CmdRecordPayment, Reservation: r, Effects: effects}, nil
}

// AddCharge posts an extra charge to an in-house stay.
func (l Lifecycle) AddCharge(current Reservation, charge billing.ExtraCharge, rules []billing.TaxRule, now time.Time) (Transition, error) {
	if err := requireStatus(CmdAddCharge, current); err != nil {
		return Transition{}, err
	}
	if err := billing.ValidateCharge(charge); err != nil {
		return Transition{}, err
	}

	r := current.Clone()
	charge.Label = strings.TrimSpace(charge.Label)
	charge.Amount = orZero(charge.Amount, r.Currency)
	r.ExtraCharges = append(r.ExtraCharges, charge)
	r.UpdatedAt = now

	if err := l.reprice(&r, billing.Date{}, billing.BillReserved, rules, now); err != nil {
		return Transition{}, err
	}
	if _, err := settle(&r, r.Pricing.GrandTotal, billing.PaymentInstruction{Type: billing.PayNone}); err != nil {
		return Transition{}, err
	}
	return Transition{Command: CmdAddCharge, Reservation: r, Effects: []Effect{recordCharge(charge)}}, nil
}

// =============================================================================
// CANCEL / NO-SHOW
// =============================================================================

func (l Lifecycle) Cancel(current Reservation, now time.Time) (Transition, error) {
	if err := requireStatus(CmdCancel, current); err != nil {
		return Transition{}, err
	}
	r := current.Clone()
	r.Status = StatusCancelled
	r.UpdatedAt = now
	return Transition{Command: CmdCancel, Reservation: r, Effects: releaseHold(r)}, nil
}

func (l Lifecycle) MarkNoShow(current Reservation, now time.Time) (Transition, error) {
	if err := requireStatus(CmdMarkNoShow, current); err != nil {
		return Transition{}, err
	}
	if eligible := l.NoShowEligibleAt(current); now.Before(eligible) {
		return Transition{}, &TooEarlyForNoShowError{ReservationID: current.ID, EligibleAt: eligible, Now: now}
	}
	r := current.Clone()
	r.Status = StatusNoShow
	r.UpdatedAt = now
	return Transition{Command: CmdMarkNoShow, Reservation: r, Effects: releaseHold(r)}, nil
}

// =============================================================================
// PREVIEW
// =============================================================================

// Preview prices r as if it checked out on departing (zero means the
// reserved day). A checked-out reservation is priced from its receipt
// inputs but the receipt itself is never altered.
func (l Lifecycle) Preview(r Reservation, method billing.BillingMethod, departing billing.Date, rules []billing.TaxRule) (billing.Quote, error) {
	if departing.IsZero() && !r.ActualCheckOut.IsZero() {
		departing = r.ActualCheckOut
	}
	return billing.PreviewStay(r.stayInput(departing), method, rules)
}

// =============================================================================
// HELPERS
// =============================================================================

func (l Lifecycle) reprice(r *Reservation, departing billing.Date, method billing.BillingMethod, rules []billing.TaxRule, now time.Time) error {
	q, err := billing.PreviewStay(r.stayInput(departing), method, rules)
	if err != nil {
		return err
	}
	r.Pricing = snapshotOf(q, now)
	return nil
}

// when resolves an optional date and HH:MM clock against now.
func (l Lifecycle) when(d billing.Date, clock string, now time.Time) (billing.Date, string, error) {
	if d.IsZero() {
		d = l.Today(now)
	}
	if clock == "" {
		return d, now.In(l.loc()).Format(clockLayout), nil
	}
	if _, err := time.Parse(clockLayout, clock); err != nil {
		return billing.Date{}, "", invalidCommand("time %q must be HH:MM", clock)
	}
	return d, clock, nil
}

const clockLayout = "15:04"

// settle enforces amountPaid <= grandTotal, then applies instr.
// It returns the amount newly paid.
func settle(r *Reservation, grandTotal billing.Money, instr billing.PaymentInstruction) (billing.Money, error) {
	if r.AmountPaid.GreaterThan(grandTotal) {
		return billing.Money{}, &billing.OverpaidError{AmountPaid: r.AmountPaid, GrandTotal: grandTotal}
	}
	out, err := billing.ApplyPayment(r.AmountPaid, grandTotal, instr)
	if err != nil {
		return billing.Money{}, err
	}
	r.AmountPaid = out.AmountPaid
	r.PaymentStatus = out.Status
	if out.Applied.IsPositive() && instr.Method != "" {
		r.PaymentMethod = instr.Method
	}
	return out.Applied, nil
}

func releaseHold(r Reservation) []Effect {
	if r.RoomNumber == "" {
		return nil
	}
	return []Effect{releaseRoom(r.RoomNumber)}
}

func normalizeRoom(room RoomNumber, optional bool) (RoomNumber, error) {
	trimmed := RoomNumber(strings.TrimSpace(string(room)))
	if trimmed == "" && !optional {
		return "", invalidCommand("room number is required")
	}
	return trimmed, nil
}

func orZero(m billing.Money, currency billing.Currency) billing.Money {
	if m.Currency == "" {
		return billing.NewMoneyFromDecimal(m.Value, currency)
	}
	return m
}
