/*
Package billing provides the pricing core of the stay engine.

PURPOSE:
  This package turns a stay's dates, nightly rate, ad-hoc charges and a set
  of configured taxes into a deterministic total, and validates payments
  against that total. Everything here is pure: no I/O, no clock, no globals.
  The same inputs always produce the same outputs.

KEY CONCEPTS IN THIS FILE (money.go):
  - Currency: ISO 4217 code with a minor-unit scale (XAF has 0, EUR has 2)
  - Money: a decimal value in one currency
  - Rounding: round-half-up to the currency's minor unit

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal, never float64, for every monetary value
  2. Single currency: a reservation fixes its currency at booking time
  3. Immutability: Money is a value type; every operation returns a new value

USAGE:
  rate := billing.NewMoney(25000, billing.XAF)
  room := rate.Mul(decimal.NewFromInt(3)) // 75000 XAF

SEE ALSO:
  - tax.go: TaxEngine
  - stay.go: StayBillingCalculator
  - payment.go: PaymentLedger
*/
package billing

import "github.com/shopspring/decimal"

// =============================================================================
// CURRENCY
// =============================================================================

type Currency string

const (
	XAF Currency = "XAF"
	XOF Currency = "XOF"
	JPY Currency = "JPY"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[Currency]bool{
	XAF: true, XOF: true, JPY: true, "KRW": true, "RWF": true, "UGX": true,
}

// Scale returns the number of decimal places of the currency's minor unit.
func (c Currency) Scale() int32 {
	if zeroDecimalCurrencies[c] {
		return 0
	}
	return 2
}

// =============================================================================
// MONEY
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewMoney(value int64, currency Currency) Money {
	return Money{Value: decimal.NewFromInt(value), Currency: currency}
}

func NewMoneyFromDecimal(value decimal.Decimal, currency Currency) Money {
	return Money{Value: value, Currency: currency}
}

func Zero(currency Currency) Money { return Money{Value: decimal.Zero, Currency: currency} }

func (m Money) Zero() Money                 { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(o Money) Money           { return Money{Value: m.Value.Add(o.Value), Currency: m.pick(o)} }
func (m Money) Sub(o Money) Money           { return Money{Value: m.Value.Sub(o.Value), Currency: m.pick(o)} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s), Currency: m.Currency} }
func (m Money) MulInt(n int) Money          { return m.Mul(decimal.NewFromInt(int64(n))) }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool    { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool       { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool          { return m.Value.Equal(o.Value) }
func (m Money) String() string              { return m.Value.StringFixed(m.Currency.Scale()) + " " + string(m.Currency) }

// NonNegative clamps the value at zero.
func (m Money) NonNegative() Money {
	if m.IsNegative() {
		return m.Zero()
	}
	return m
}

// Round rounds half-up to the currency's minor unit. All amounts handled by
// this package are non-negative, where decimal's half-away-from-zero and
// half-up agree.
func (m Money) Round() Money {
	return Money{Value: m.Value.Round(m.Currency.Scale()), Currency: m.Currency}
}

// pick keeps the receiver's currency unless it was never set.
func (m Money) pick(o Money) Currency {
	if m.Currency == "" {
		return o.Currency
	}
	return m.Currency
}
