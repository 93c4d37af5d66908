/*
errors.go - Validation errors raised by the pricing core

PURPOSE:
  Every failure in this package is caller-correctable: the input was wrong,
  nothing was mutated, and the caller can fix the input and retry. Each
  structured error carries the attempted value and the limit it violated so
  a UI can render a precise message.

USAGE:
  _, err := ledger.Apply(state, instruction)
  var amtErr *billing.InvalidPaymentAmountError
  if errors.As(err, &amtErr) {
      fmt.Printf("max payable: %s\n", amtErr.BalanceDue)
  }

SEE ALSO:
  - stay/errors.go: Conflict and transition errors of the lifecycle
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidPaymentAmount    = errors.New("invalid payment amount")
	ErrDiscountExceedsSubtotal = errors.New("discount exceeds subtotal")
	ErrNegativeChargeAmount    = errors.New("negative charge amount")
	ErrInvalidNightsComputed   = errors.New("checkout date must be after check-in date")
	ErrInvalidBillingMethod    = errors.New("invalid billing method")
	ErrInvalidPaymentType      = errors.New("invalid payment type")
	ErrInvalidCharge           = errors.New("invalid charge")
	ErrOverpaid                = errors.New("amount paid exceeds grand total")
	ErrInvalidTaxRule          = errors.New("invalid tax rule")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidPaymentAmountError explains why a payment amount was refused.
type InvalidPaymentAmountError struct {
	Type       PaymentType
	Amount     Money
	BalanceDue Money
	Reason     string
}

func (e *InvalidPaymentAmountError) Error() string {
	return fmt.Sprintf("invalid payment amount: %s payment of %s (balance due %s): %s",
		e.Type, e.Amount, e.BalanceDue, e.Reason)
}

func (e *InvalidPaymentAmountError) Unwrap() error { return ErrInvalidPaymentAmount }

// DiscountExceedsSubtotalError is returned when a discount would push the
// pre-tax subtotal below zero.
type DiscountExceedsSubtotalError struct {
	Discount Money
	Subtotal Money
}

func (e *DiscountExceedsSubtotalError) Error() string {
	return fmt.Sprintf("discount %s exceeds subtotal %s", e.Discount, e.Subtotal)
}

func (e *DiscountExceedsSubtotalError) Unwrap() error { return ErrDiscountExceedsSubtotal }

// NegativeChargeAmountError names the charge with the negative amount.
type NegativeChargeAmountError struct {
	Label  string
	Amount Money
}

func (e *NegativeChargeAmountError) Error() string {
	return fmt.Sprintf("charge %q has negative amount %s", e.Label, e.Amount)
}

func (e *NegativeChargeAmountError) Unwrap() error { return ErrNegativeChargeAmount }

// InvalidNightsError is returned when a stay window is empty or inverted.
type InvalidNightsError struct {
	From Date
	To   Date
}

func (e *InvalidNightsError) Error() string {
	return fmt.Sprintf("invalid stay window %s -> %s: checkout date must be after check-in date", e.From, e.To)
}

func (e *InvalidNightsError) Unwrap() error { return ErrInvalidNightsComputed }

// OverpaidError is returned when a recomputed total falls below what the
// guest already paid. Refunds are handled outside the engine.
type OverpaidError struct {
	AmountPaid Money
	GrandTotal Money
}

func (e *OverpaidError) Error() string {
	return fmt.Sprintf("amount paid %s exceeds grand total %s (refund due %s)",
		e.AmountPaid, e.GrandTotal, e.AmountPaid.Sub(e.GrandTotal))
}

func (e *OverpaidError) Unwrap() error { return ErrOverpaid }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true for caller-correctable input errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPaymentAmount) ||
		errors.Is(err, ErrDiscountExceedsSubtotal) ||
		errors.Is(err, ErrNegativeChargeAmount) ||
		errors.Is(err, ErrInvalidNightsComputed) ||
		errors.Is(err, ErrInvalidBillingMethod) ||
		errors.Is(err, ErrInvalidPaymentType) ||
		errors.Is(err, ErrInvalidCharge) ||
		errors.Is(err, ErrOverpaid) ||
		errors.Is(err, ErrInvalidTaxRule)
}
