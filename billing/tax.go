/*
tax.go - TaxEngine: ordered, non-compounding tax computation

PURPOSE:
  Given a room charge, the extra charges and a list of configured tax rules,
  produces a per-rule breakdown and the grand total.

EVALUATION ORDER:
  1. Drop disabled rules
  2. Sort by DisplayOrder ascending, ties broken by ID
  3. Evaluate each rule against its base

BASES:
  ROOM_RATE: room charge only
  SUBTOTAL:  room charge + extras - discount
  TOTAL:     same base as SUBTOTAL, kept as a separate label for receipts

  Tax is never computed on tax. A later rule never sees an earlier rule's
  amount in its base.

AMOUNTS:
  PERCENTAGE: base * rate / 100, rounded half-up to the currency minor unit
  FIXED:      rate, once per rule, whatever the base or number of nights

INCLUSIVE RULES:
  Listed in the breakdown, but not added to the grand total: the amount is
  already embedded in the room charge.

  grandTotal = room + extras - discount + sum(non-inclusive amounts)

EXAMPLE:
  result := billing.ComputeTaxes(billing.TaxInput{
      RoomCharge: billing.NewMoney(75000, billing.XAF),
  }, rules)
  // VAT 18% on SUBTOTAL -> 13500, grand total 88500
*/
package billing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TAX RULE - Read-only configuration owned by the settings collaborator
// =============================================================================

type TaxType string

const (
	TaxPercentage TaxType = "PERCENTAGE"
	TaxFixed      TaxType = "FIXED"
)

type TaxBase string

const (
	AppliesToRoomRate TaxBase = "ROOM_RATE"
	AppliesToSubtotal TaxBase = "SUBTOTAL"
	AppliesToTotal    TaxBase = "TOTAL"
)

type TaxRule struct {
	ID           string
	Name         string
	Type         TaxType
	Rate         decimal.Decimal // percentage points, or a fixed amount
	AppliesTo    TaxBase
	Enabled      bool
	Inclusive    bool
	DisplayOrder int
}

// Validate checks the rule is well formed.
func (r TaxRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTaxRule)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTaxRule)
	}
	switch r.Type {
	case TaxPercentage, TaxFixed:
	default:
		return fmt.Errorf("%w: unknown tax type %q", ErrInvalidTaxRule, r.Type)
	}
	switch r.AppliesTo {
	case AppliesToRoomRate, AppliesToSubtotal, AppliesToTotal:
	default:
		return fmt.Errorf("%w: unknown base %q", ErrInvalidTaxRule, r.AppliesTo)
	}
	if r.Rate.IsNegative() {
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidTaxRule)
	}
	return nil
}

// OrderedRules returns the enabled rules in evaluation order. The input is
// not modified.
func OrderedRules(rules []TaxRule) []TaxRule {
	enabled := make([]TaxRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].DisplayOrder != enabled[j].DisplayOrder {
			return enabled[i].DisplayOrder < enabled[j].DisplayOrder
		}
		return enabled[i].ID < enabled[j].ID
	})
	return enabled
}

// =============================================================================
// TAX RESULT
// =============================================================================

// TaxLine is one entry of the breakdown. It copies the rule's name, type
// and rate so a frozen receipt does not depend on later rule edits.
type TaxLine struct {
	TaxID     string
	Name      string
	Type      TaxType
	Rate      decimal.Decimal
	AppliesTo TaxBase
	Inclusive bool
	Base      Money
	Amount    Money
}

type TaxInput struct {
	RoomCharge   Money
	ExtraCharges Money // extras + late checkout fee
	Discount     Money
}

type TaxResult struct {
	Lines        []TaxLine
	TotalTax     Money // non-inclusive taxes, added to the total
	InclusiveTax Money // already embedded in the room charge
	Subtotal     Money // room + extras - discount, floored at zero
	GrandTotal   Money
}

// =============================================================================
// TAX ENGINE
// =============================================================================

// ComputeTaxes is a pure function of its inputs.
func ComputeTaxes(in TaxInput, rules []TaxRule) TaxResult {
	currency := in.RoomCharge.Currency
	subtotal := in.RoomCharge.Add(in.ExtraCharges).Sub(in.Discount).NonNegative()

	result := TaxResult{
		Lines:        []TaxLine{},
		TotalTax:     Zero(currency),
		InclusiveTax: Zero(currency),
		Subtotal:     subtotal,
	}

	for _, rule := range OrderedRules(rules) {
		base := subtotal
		if rule.AppliesTo == AppliesToRoomRate {
			base = in.RoomCharge
		}

		var amount Money
		switch rule.Type {
		case TaxFixed:
			amount = NewMoneyFromDecimal(rule.Rate, currency).Round()
		default:
			amount = base.Mul(rule.Rate).Mul(hundredth).Round()
		}

		result.Lines = append(result.Lines, TaxLine{
			TaxID:     rule.ID,
			Name:      rule.Name,
			Type:      rule.Type,
			Rate:      rule.Rate,
			AppliesTo: rule.AppliesTo,
			Inclusive: rule.Inclusive,
			Base:      base,
			Amount:    amount,
		})

		if rule.Inclusive {
			result.InclusiveTax = result.InclusiveTax.Add(amount)
		} else {
			result.TotalTax = result.TotalTax.Add(amount)
		}
	}

	result.GrandTotal = subtotal.Add(result.TotalTax)
	return result
}

var hundredth = decimal.New(1, -2)
