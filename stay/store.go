/*
store.go - Collaborator interfaces of the reservation engine

PURPOSE:
  The engine never talks to a database, cache or broker directly. It
  depends on the interfaces below; concrete adapters live elsewhere.

KEY INTERFACES:
  Repository:    reservation snapshots with optimistic concurrency
  TaxRuleStore:  the configured tax rules
  RoomInventory: per-night room holds with an atomic claim
  Folio:         append-only charge/payment entries per reservation
  Observer:      counters for commands, payments and room conflicts

OPTIMISTIC CONCURRENCY:
  Save(r, expectedVersion) succeeds only if the stored version still equals
  expectedVersion, and then stores r with Version = expectedVersion + 1.
  Otherwise it fails with ErrStaleVersion and writes nothing.

ATOMIC ROOM CLAIM:
  Reserve must behave as a compare-and-swap over every night of the range:
  either all nights become held by the holder or none do. Nights already
  held by the same holder count as free (re-claims are idempotent).

IMPLEMENTATIONS:
  - stay/store/memory.go: in-memory (tests, dev)
  - store/sqlite/sqlite.go: SQLite
  - store/redis/rooms.go: Redis room inventory (multi-instance deployments)
*/
package stay

import (
	"context"

	"github.com/warp/stay-engine/billing"
)

// =============================================================================
// REPOSITORY
// =============================================================================

type ListFilter struct {
	Status  *Status
	Room    RoomNumber
	GuestID string
	Limit   int
}

type Repository interface {
	// Create stores a new reservation at version 1.
	Create(ctx context.Context, r Reservation) error

	// Load returns ErrReservationNotFound for unknown ids.
	Load(ctx context.Context, id ReservationID) (Reservation, error)

	// Save is a conditional write, see OPTIMISTIC CONCURRENCY.
	Save(ctx context.Context, r Reservation, expectedVersion int64) error

	List(ctx context.Context, filter ListFilter) ([]Reservation, error)

	// NoShowCandidates returns PENDING and CONFIRMED reservations whose
	// reserved check-in is on or before the given day.
	NoShowCandidates(ctx context.Context, checkInOnOrBefore billing.Date) ([]Reservation, error)
}

// =============================================================================
// TAX RULES
// =============================================================================

type TaxRuleStore interface {
	ListTaxRules(ctx context.Context) ([]billing.TaxRule, error)
	GetTaxRule(ctx context.Context, id string) (billing.TaxRule, error)
	SaveTaxRule(ctx context.Context, rule billing.TaxRule) error
}

// EnabledTaxRules filters the store's rules to the enabled ones, in
// application order.
func EnabledTaxRules(ctx context.Context, s TaxRuleStore) ([]billing.TaxRule, error) {
	rules, err := s.ListTaxRules(ctx)
	if err != nil {
		return nil, err
	}
	return billing.OrderedRules(rules), nil
}

// =============================================================================
// ROOM INVENTORY
// =============================================================================

type RoomInventory interface {
	IsAvailable(ctx context.Context, room RoomNumber, rng billing.DateRange, holder ReservationID) (bool, error)

	// Reserve holds every night of rng for holder and returns the nights it
	// newly wrote; nights the holder already had are not returned. Returns
	// an error wrapping ErrRoomUnavailable on conflict, with nothing written.
	Reserve(ctx context.Context, room RoomNumber, rng billing.DateRange, holder ReservationID) ([]billing.Date, error)

	// Release frees every night of room held by holder.
	Release(ctx context.Context, room RoomNumber, holder ReservationID) error

	// ReleaseNights frees only the listed nights, and only those still held
	// by holder.
	ReleaseNights(ctx context.Context, room RoomNumber, holder ReservationID, nights []billing.Date) error
}

// =============================================================================
// FOLIO STORE
// =============================================================================

type FolioStore interface {
	// AppendFolio persists entries atomically. Fails with
	// ErrDuplicateIdempotencyKey if any key already exists.
	AppendFolio(ctx context.Context, entries []FolioEntry) error

	FolioEntries(ctx context.Context, id ReservationID) ([]FolioEntry, error)

	FolioKeyExists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// OBSERVER
// =============================================================================

type Observer interface {
	CommandCompleted(cmd Command, err error)
	PaymentRecorded(method billing.PaymentMethod, amount billing.Money)
	RoomConflict()
}

type nopObserver struct{}

func (nopObserver) CommandCompleted(Command, error)                      {}
func (nopObserver) PaymentRecorded(billing.PaymentMethod, billing.Money) {}
func (nopObserver) RoomConflict()                                        {}
