/*
payment.go - PaymentLedger: validate a payment and derive the payment status

PURPOSE:
  Merges one payment instruction into a reservation's running amount paid.
  The payment status is ALWAYS derived from amounts; callers never supply
  a status. This keeps the displayed status and the actual balance in sync.

INSTRUCTION TYPES:
  full:    pays exactly the balance due. The engine computes the amount; a
           caller-supplied amount that differs is rejected.
  partial: pays 0 < amount <= balance due.
  none:    no payment; status re-derived, amounts unchanged.

CONCURRENCY:
  ApplyPayment is pure. Callers must pass the amount paid and grand total
  they read immediately before calling, and persist the result with an
  optimistic version check (see stay.Repository.Save).
*/
package billing

import (
	"fmt"
	"strings"
)

type PaymentType string

const (
	PayFull    PaymentType = "full"
	PayPartial PaymentType = "partial"
	PayNone    PaymentType = "none"
)

func ParsePaymentType(s string) (PaymentType, error) {
	switch PaymentType(strings.ToLower(strings.TrimSpace(s))) {
	case "", PayNone:
		return PayNone, nil
	case PayFull:
		return PayFull, nil
	case PayPartial:
		return PayPartial, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentType, s)
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// PaymentMethod is reported by the external payment collector.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

type PaymentInstruction struct {
	Type   PaymentType
	Amount Money // required for partial; optional cross-check for full
	Method PaymentMethod
}

// HasAmount reports whether the caller supplied an amount. An absent
// amount is the zero Money, which carries no currency; an explicit 0 does.
func (i PaymentInstruction) HasAmount() bool {
	return i.Amount.Currency != "" || !i.Amount.Value.IsZero()
}

type PaymentOutcome struct {
	Applied    Money // amount added by this instruction
	AmountPaid Money
	Status     PaymentStatus
	BalanceDue Money
	Method     PaymentMethod
}

// DeriveStatus computes the status from amounts alone.
func DeriveStatus(amountPaid, grandTotal Money) PaymentStatus {
	switch {
	case !amountPaid.LessThan(grandTotal):
		return PaymentPaid
	case amountPaid.IsPositive():
		return PaymentPartial
	default:
		return PaymentPending
	}
}

// ApplyPayment validates instr against the balance due and returns the
// resulting amounts. Inputs are never modified.
func ApplyPayment(amountPaid, grandTotal Money, instr PaymentInstruction) (PaymentOutcome, error) {
	currency := grandTotal.Currency
	amountPaid = orZero(amountPaid, currency)
	balanceDue := grandTotal.Sub(amountPaid).NonNegative()
	applied := Zero(currency)

	switch instr.Type {
	case PayNone, "":
	case PayFull:
		if instr.HasAmount() && !instr.Amount.Equal(balanceDue) {
			return PaymentOutcome{}, &InvalidPaymentAmountError{
				Type: instr.Type, Amount: orZero(instr.Amount, currency), BalanceDue: balanceDue,
				Reason: "full payment must equal the balance due",
			}
		}
		applied = balanceDue
	case PayPartial:
		amount := orZero(instr.Amount, currency)
		if !amount.IsPositive() {
			return PaymentOutcome{}, &InvalidPaymentAmountError{
				Type: instr.Type, Amount: amount, BalanceDue: balanceDue,
				Reason: "partial payment must be positive",
			}
		}
		if amount.GreaterThan(balanceDue) {
			return PaymentOutcome{}, &InvalidPaymentAmountError{
				Type: instr.Type, Amount: amount, BalanceDue: balanceDue,
				Reason: "partial payment exceeds the balance due",
			}
		}
		applied = amount
	default:
		return PaymentOutcome{}, fmt.Errorf("%w: %q", ErrInvalidPaymentType, instr.Type)
	}

	newPaid := amountPaid.Add(applied)
	return PaymentOutcome{
		Applied:    applied,
		AmountPaid: newPaid,
		Status:     DeriveStatus(newPaid, grandTotal),
		BalanceDue: grandTotal.Sub(newPaid).NonNegative(),
		Method:     instr.Method,
	}, nil
}
