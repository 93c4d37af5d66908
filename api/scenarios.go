/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	front desk data. Each scenario seeds tax rules and drives reservations
	through the real lifecycle commands, so every figure shown in the UI
	was produced by the engine.

AVAILABLE SCENARIOS:

	standard-stay:    3 nights at 25,000 with VAT 18% on SUBTOTAL -> 88,500
	partial-payment:  20,000 deposit, settled in full at checkout -> PAID
	early-checkout:   5 nights reserved at 30,000, leaves after 2, reserved billing
	late-checkout:    reserved until day 3, leaves day 5, billed on actual nights
	front-desk:       all of the above plus an arrival due today and an in-house guest

HOW SCENARIOS WORK:
 1. Release held rooms and reset the store
 2. Seed tax rules via factory
 3. Book, check in and check out through stay.Service

Dates are relative to the property's today so the data always looks current.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "standard-stay"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/taxrule.go: Tax rule JSON presets
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/factory"
	"github.com/warp/stay-engine/stay"
)

const (
	ScenarioStandardStay   = "standard-stay"
	ScenarioPartialPayment = "partial-payment"
	ScenarioEarlyCheckout  = "early-checkout"
	ScenarioLateCheckout   = "late-checkout"
	ScenarioAll            = "front-desk"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          ScenarioStandardStay,
		Name:        "Standard Stay",
		Description: "3 nights at 25,000 XAF, VAT 18% on the subtotal, grand total 88,500",
	},
	{
		ID:          ScenarioPartialPayment,
		Name:        "Deposit Then Settle",
		Description: "20,000 deposit at booking, full settlement at checkout",
	},
	{
		ID:          ScenarioEarlyCheckout,
		Name:        "Early Checkout",
		Description: "5 nights reserved at 30,000, guest leaves after 2, billed on the reserved span",
	},
	{
		ID:          ScenarioLateCheckout,
		Name:        "Late Checkout",
		Description: "Guest stays 2 nights past the reserved check-out, billed on actual nights",
	},
	{
		ID:          ScenarioAll,
		Name:        "Front Desk Day",
		Description: "All scenarios plus a pending arrival and an in-house guest",
	},
}

// Scenarios returns the available scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// ScenarioResult is the body of a successful load.
type ScenarioResult struct {
	ScenarioID   string                `json:"scenario_id"`
	TaxRules     []factory.TaxRuleJSON `json:"tax_rules"`
	Reservations []ReservationDTO      `json:"reservations"`
}

// =============================================================================
// LOADER
// =============================================================================

// Resetter clears every stored reservation, rule and folio entry.
type Resetter interface {
	Reset(ctx context.Context) error
}

type ScenarioLoader struct {
	Service      *stay.Service
	Reservations stay.Repository
	TaxRules     stay.TaxRuleStore
	Rooms        stay.RoomInventory
	Store        Resetter
	Now          func() time.Time

	mu      sync.Mutex
	current string
}

func NewScenarioLoader(svc *stay.Service, reservations stay.Repository, taxRules stay.TaxRuleStore, rooms stay.RoomInventory, store Resetter) *ScenarioLoader {
	return &ScenarioLoader{
		Service:      svc,
		Reservations: reservations,
		TaxRules:     taxRules,
		Rooms:        rooms,
		Store:        store,
		Now:          time.Now,
	}
}

// Current returns the id of the last loaded scenario, or "".
func (l *ScenarioLoader) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Load resets the store and seeds the named scenario.
func (l *ScenarioLoader) Load(ctx context.Context, id string) (ScenarioResult, error) {
	loaders := map[string]func(context.Context, billing.Date) ([]stay.Reservation, error){
		ScenarioStandardStay:   l.loadStandardStay,
		ScenarioPartialPayment: l.loadPartialPayment,
		ScenarioEarlyCheckout:  l.loadEarlyCheckout,
		ScenarioLateCheckout:   l.loadLateCheckout,
		ScenarioAll:            l.loadFrontDesk,
	}
	load, ok := loaders[id]
	if !ok {
		return ScenarioResult{}, ErrUnknownScenario
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reset(ctx); err != nil {
		return ScenarioResult{}, fmt.Errorf("reset: %w", err)
	}
	rules, err := factory.ParseTaxRules([]byte(factory.StandardVATJSON(18)))
	if err != nil {
		return ScenarioResult{}, err
	}
	for _, rule := range rules {
		if err := l.TaxRules.SaveTaxRule(ctx, rule); err != nil {
			return ScenarioResult{}, err
		}
	}

	today := l.Service.Lifecycle().Today(l.Now())
	reservations, err := load(ctx, today)
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("scenario %s: %w", id, err)
	}
	l.current = id

	result := ScenarioResult{ScenarioID: id, Reservations: make([]ReservationDTO, len(reservations))}
	for _, rule := range rules {
		result.TaxRules = append(result.TaxRules, factory.RuleToJSON(rule))
	}
	for i, r := range reservations {
		result.Reservations[i] = toReservationDTO(r)
	}
	return result, nil
}

// reset frees every held room before clearing the store, so an external
// room inventory does not keep nights for reservations that no longer exist.
func (l *ScenarioLoader) reset(ctx context.Context) error {
	existing, err := l.Reservations.List(ctx, stay.ListFilter{})
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.RoomNumber == "" {
			continue
		}
		if err := l.Rooms.Release(ctx, r.RoomNumber, r.ID); err != nil {
			return err
		}
	}
	return l.Store.Reset(ctx)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func (l *ScenarioLoader) money(v int64) billing.Money {
	return billing.NewMoney(v, l.Service.Currency())
}

// runStay books, checks in on arrival and checks out on departure.
func (l *ScenarioLoader) runStay(ctx context.Context, book stay.BookCommand, arrival billing.Date, checkout stay.CheckOutCommand) (stay.Reservation, error) {
	svc := l.Service
	r, err := svc.Book(ctx, book)
	if err != nil {
		return stay.Reservation{}, err
	}
	if _, err := svc.CheckIn(ctx, r.ID, stay.CheckInCommand{Date: arrival, Time: "14:00"}); err != nil {
		return stay.Reservation{}, err
	}
	if checkout.Time == "" {
		checkout.Time = "11:00"
	}
	return svc.CheckOut(ctx, r.ID, checkout)
}

func (l *ScenarioLoader) loadStandardStay(ctx context.Context, today billing.Date) ([]stay.Reservation, error) {
	checkIn := today.AddDays(-4)
	r, err := l.runStay(ctx, stay.BookCommand{
		GuestID: "guest-amina", CheckIn: checkIn, CheckOut: checkIn.AddDays(3),
		PricePerNight: l.money(25000), Room: "101", Confirm: true,
	}, checkIn, stay.CheckOutCommand{
		Date:    checkIn.AddDays(3),
		Payment: billing.PaymentInstruction{Type: billing.PayFull, Method: billing.MethodCard},
	})
	if err != nil {
		return nil, err
	}
	return []stay.Reservation{r}, nil
}

func (l *ScenarioLoader) loadPartialPayment(ctx context.Context, today billing.Date) ([]stay.Reservation, error) {
	checkIn := today.AddDays(-4)
	r, err := l.runStay(ctx, stay.BookCommand{
		GuestID: "guest-blaise", CheckIn: checkIn, CheckOut: checkIn.AddDays(3),
		PricePerNight: l.money(25000), Room: "102", Confirm: true,
		Deposit: billing.PaymentInstruction{
			Type: billing.PayPartial, Amount: l.money(20000), Method: billing.MethodMobileMoney,
		},
	}, checkIn, stay.CheckOutCommand{
		Date:    checkIn.AddDays(3),
		Payment: billing.PaymentInstruction{Type: billing.PayFull, Method: billing.MethodCash},
	})
	if err != nil {
		return nil, err
	}
	return []stay.Reservation{r}, nil
}

func (l *ScenarioLoader) loadEarlyCheckout(ctx context.Context, today billing.Date) ([]stay.Reservation, error) {
	checkIn := today.AddDays(-6)
	r, err := l.runStay(ctx, stay.BookCommand{
		GuestID: "guest-chidi", CheckIn: checkIn, CheckOut: checkIn.AddDays(5),
		PricePerNight: l.money(30000), Room: "201", Confirm: true,
	}, checkIn, stay.CheckOutCommand{
		Date:          checkIn.AddDays(2),
		BillingMethod: billing.BillReserved,
	})
	if err != nil {
		return nil, err
	}
	return []stay.Reservation{r}, nil
}

func (l *ScenarioLoader) loadLateCheckout(ctx context.Context, today billing.Date) ([]stay.Reservation, error) {
	checkIn := today.AddDays(-5)
	r, err := l.runStay(ctx, stay.BookCommand{
		GuestID: "guest-delphine", CheckIn: checkIn, CheckOut: checkIn.AddDays(2),
		PricePerNight: l.money(25000), Room: "202", Confirm: true,
	}, checkIn, stay.CheckOutCommand{
		Date: checkIn.AddDays(4),
	})
	if err != nil {
		return nil, err
	}
	return []stay.Reservation{r}, nil
}

func (l *ScenarioLoader) loadFrontDesk(ctx context.Context, today billing.Date) ([]stay.Reservation, error) {
	var out []stay.Reservation
	for _, load := range []func(context.Context, billing.Date) ([]stay.Reservation, error){
		l.loadStandardStay, l.loadPartialPayment, l.loadEarlyCheckout, l.loadLateCheckout,
	} {
		rs, err := load(ctx, today)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}

	arriving, err := l.Service.Book(ctx, stay.BookCommand{
		GuestID: "guest-emeka", CheckIn: today, CheckOut: today.AddDays(2),
		PricePerNight: l.money(28000), Room: "301", Confirm: true,
	})
	if err != nil {
		return nil, err
	}
	out = append(out, arriving)

	inHouse, err := l.Service.Book(ctx, stay.BookCommand{
		GuestID: "guest-fatou", CheckIn: today.AddDays(-1), CheckOut: today.AddDays(2),
		PricePerNight: l.money(25000), Room: "302", Confirm: true,
	})
	if err != nil {
		return nil, err
	}
	inHouse, err = l.Service.CheckIn(ctx, inHouse.ID, stay.CheckInCommand{
		Date: today.AddDays(-1), Time: "15:30",
		Payment: billing.PaymentInstruction{
			Type: billing.PayPartial, Amount: l.money(25000), Method: billing.MethodCard,
		},
	})
	if err != nil {
		return nil, err
	}
	inHouse, err = l.Service.AddCharge(ctx, inHouse.ID, billing.ExtraCharge{Label: "Minibar", Amount: l.money(4500)})
	if err != nil {
		return nil, err
	}
	out = append(out, inHouse)
	return out, nil
}
