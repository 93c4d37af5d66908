/*
folio.go - Append-only charge and payment log per reservation

PURPOSE:
  The reservation snapshot carries running totals (ExtraCharges,
  AmountPaid). The folio keeps the individual postings behind them so the
  front desk can explain every number on a receipt.

INVARIANTS:
  1. APPEND-ONLY: no update, no delete
  2. IDEMPOTENT: one entry per idempotency key; replays are rejected with
     ErrDuplicateIdempotencyKey
  3. Entries of one command are written as one batch

CORRECTIONS:
  A wrong posting is never edited. Post a correcting payment instead
  (RecordPayment with Correction on a CHECKED_OUT reservation).
*/
package stay

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/stay-engine/billing"
)

type FolioKind string

const (
	FolioCharge  FolioKind = "charge"
	FolioPayment FolioKind = "payment"
)

type FolioEntry struct {
	ID             string
	ReservationID  ReservationID
	Kind           FolioKind
	Label          string
	Amount         billing.Money
	Method         billing.PaymentMethod
	Command        Command
	IdempotencyKey string
	RecordedAt     time.Time
}

// FolioTotals sums a reservation's postings.
type FolioTotals struct {
	Charges  billing.Money
	Payments billing.Money
}

func Totals(currency billing.Currency, entries []FolioEntry) FolioTotals {
	t := FolioTotals{Charges: billing.Zero(currency), Payments: billing.Zero(currency)}
	for _, e := range entries {
		switch e.Kind {
		case FolioCharge:
			t.Charges = t.Charges.Add(e.Amount)
		case FolioPayment:
			t.Payments = t.Payments.Add(e.Amount)
		}
	}
	return t
}

// =============================================================================
// FOLIO - Idempotent writer over a FolioStore
// =============================================================================

type Folio struct {
	Store FolioStore
}

func NewFolio(store FolioStore) *Folio {
	return &Folio{Store: store}
}

// Append writes the batch unless one of its keys was already recorded.
func (f *Folio) Append(ctx context.Context, entries []FolioEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		exists, err := f.Store.FolioKeyExists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return f.Store.AppendFolio(ctx, entries)
}

func (f *Folio) Entries(ctx context.Context, id ReservationID) ([]FolioEntry, error) {
	return f.Store.FolioEntries(ctx, id)
}

// folioEntries turns the posting effects of a committed transition into
// folio entries. Keys derive from the committed version, so replaying the
// same commit cannot post twice.
func folioEntries(tr Transition, version int64, at time.Time) []FolioEntry {
	var out []FolioEntry
	for i, eff := range tr.Effects {
		var kind FolioKind
		switch eff.Kind {
		case EffectRecordCharge:
			kind = FolioCharge
		case EffectRecordPayment:
			kind = FolioPayment
		default:
			continue
		}
		key := fmt.Sprintf("%s:v%d:%d", tr.Reservation.ID, version, i)
		out = append(out, FolioEntry{
			ID:             key,
			ReservationID:  tr.Reservation.ID,
			Kind:           kind,
			Label:          eff.Label,
			Amount:         eff.Amount,
			Method:         eff.Method,
			Command:        tr.Command,
			IdempotencyKey: key,
			RecordedAt:     at,
		})
	}
	return out
}
