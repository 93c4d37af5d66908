/*
errors.go - Conflict and transition errors of the reservation lifecycle

ERROR CATEGORIES:
  1. Validation errors - billing.ErrInvalidPaymentAmount and friends, plus
     ErrInvalidCommand for malformed payloads
  2. Conflict errors - the environment changed since the caller last read
     state (ErrRoomUnavailable, ErrStaleVersion). Retry after re-reading.
     ErrDuplicateReservation is a conflict too, but retrying cannot help.
  3. Transition errors - illegal state machine edges (ErrIllegalTransition,
     ErrRoomNotAssigned, ErrTooEarlyForNoShow)
  4. Anything else comes from a collaborator and is passed up unmodified

No command partially applies: on any error the stored reservation is
unchanged. The engine never retries; retry policy belongs to the caller.
*/
package stay

import (
	"errors"
	"fmt"
	"time"

	"github.com/warp/stay-engine/billing"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrIllegalTransition    = errors.New("illegal transition")
	ErrRoomNotAssigned      = errors.New("room not assigned")
	ErrTooEarlyForNoShow    = errors.New("too early for no-show")
	ErrRoomUnavailable      = errors.New("room unavailable")
	ErrStaleVersion         = errors.New("stale reservation version")
	ErrDuplicateReservation = errors.New("duplicate reservation")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrTaxRuleNotFound      = errors.New("tax rule not found")
	ErrInvalidCommand       = errors.New("invalid command")

	// ErrDuplicateIdempotencyKey is returned by a Folio when an entry with
	// the same key was already recorded. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type IllegalTransitionError struct {
	Command Command
	From    Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s not allowed from %s", e.Command, e.From)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

type TooEarlyForNoShowError struct {
	ReservationID ReservationID
	EligibleAt    time.Time
	Now           time.Time
}

func (e *TooEarlyForNoShowError) Error() string {
	return fmt.Sprintf("too early for no-show: reservation %s is eligible from %s",
		e.ReservationID, e.EligibleAt.Format(time.RFC3339))
}

func (e *TooEarlyForNoShowError) Unwrap() error { return ErrTooEarlyForNoShow }

type RoomUnavailableError struct {
	Room  RoomNumber
	Range billing.DateRange
	// HeldBy is the conflicting reservation when the inventory reports it.
	HeldBy ReservationID
}

func (e *RoomUnavailableError) Error() string {
	if e.HeldBy != "" {
		return fmt.Sprintf("room %s unavailable for %s (held by %s)", e.Room, e.Range, e.HeldBy)
	}
	return fmt.Sprintf("room %s unavailable for %s", e.Room, e.Range)
}

func (e *RoomUnavailableError) Unwrap() error { return ErrRoomUnavailable }

type StaleVersionError struct {
	ReservationID ReservationID
	Expected      int64
	Actual        int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("reservation %s was modified concurrently (expected version %d, found %d)",
		e.ReservationID, e.Expected, e.Actual)
}

func (e *StaleVersionError) Unwrap() error { return ErrStaleVersion }

// DuplicateReservationError is returned by Create when the id or the
// booking reference is already taken.
type DuplicateReservationError struct {
	ReservationID    ReservationID
	BookingReference string
}

func (e *DuplicateReservationError) Error() string {
	if e.BookingReference != "" {
		return fmt.Sprintf("reservation %s already exists (or booking reference %s is taken)",
			e.ReservationID, e.BookingReference)
	}
	return fmt.Sprintf("reservation %s already exists", e.ReservationID)
}

func (e *DuplicateReservationError) Unwrap() error { return ErrDuplicateReservation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool {
	return billing.IsValidation(err) || errors.Is(err, ErrInvalidCommand)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrRoomUnavailable) ||
		errors.Is(err, ErrStaleVersion) ||
		errors.Is(err, ErrDuplicateReservation)
}

func IsTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrRoomNotAssigned) ||
		errors.Is(err, ErrTooEarlyForNoShow)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrReservationNotFound) || errors.Is(err, ErrTaxRuleNotFound)
}

// IsRetryable returns true if the command may succeed after re-reading state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRoomUnavailable) || errors.Is(err, ErrStaleVersion)
}

func invalidCommand(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}
