package stay

import "github.com/warp/stay-engine/billing"

// =============================================================================
// EFFECTS - Side effects requested by a command
// =============================================================================

// Lifecycle commands are pure. Whatever must happen outside the reservation
// snapshot is returned as an Effect and carried out by the Service.

type EffectKind string

const (
	// EffectClaimRoom must succeed before the snapshot is committed.
	EffectClaimRoom EffectKind = "claim_room"

	// The rest run after commit.
	EffectReleaseRoom   EffectKind = "release_room"
	EffectRecordPayment EffectKind = "record_payment"
	EffectRecordCharge  EffectKind = "record_charge"
)

type Effect struct {
	Kind   EffectKind
	Room   RoomNumber
	Range  billing.DateRange
	Amount billing.Money
	Method billing.PaymentMethod
	Label  string
}

func (e Effect) PreCommit() bool { return e.Kind == EffectClaimRoom }

func claimRoom(room RoomNumber, rng billing.DateRange) Effect {
	return Effect{Kind: EffectClaimRoom, Room: room, Range: rng}
}

func releaseRoom(room RoomNumber) Effect {
	return Effect{Kind: EffectReleaseRoom, Room: room}
}

func recordPayment(amount billing.Money, method billing.PaymentMethod) Effect {
	return Effect{Kind: EffectRecordPayment, Amount: amount, Method: method}
}

func recordCharge(c billing.ExtraCharge) Effect {
	return Effect{Kind: EffectRecordCharge, Amount: c.Amount, Label: c.Label}
}

// Transition is the result of a successful command. An Unchanged
// transition is accepted but writes nothing and has no effects.
type Transition struct {
	Command     Command
	Reservation Reservation
	Effects     []Effect
	Unchanged   bool
}
