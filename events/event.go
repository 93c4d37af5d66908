/*
Package events carries reservation domain events to the rest of the
back office.

PURPOSE:
  After a reservation command commits, the engine announces what happened
  (booked, checked in, payment recorded, ...). Housekeeping, accounting and
  notification services consume these; the engine itself never reads them.

DELIVERY:
  At most once from the engine's perspective. A failed publish is logged
  and never rolls back the committed reservation.

IMPLEMENTATIONS:
  - AMQPPublisher: RabbitMQ topic exchange, routing key = event type
  - Nop: discards everything (tests, broker not configured)
  - Recorder: keeps events in memory (tests)
*/
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	ReservationBooked       Type = "reservation.booked"
	ReservationConfirmed    Type = "reservation.confirmed"
	ReservationRoomAssigned Type = "reservation.room_assigned"
	ReservationCheckedIn    Type = "reservation.checked_in"
	ReservationCheckedOut   Type = "reservation.checked_out"
	ReservationCancelled    Type = "reservation.cancelled"
	ReservationNoShow       Type = "reservation.no_show"
	PaymentRecorded         Type = "reservation.payment_recorded"
	ChargeAdded             Type = "reservation.charge_added"
)

type Event struct {
	ID               string         `json:"id"`
	Type             Type           `json:"type"`
	ReservationID    string         `json:"reservationId"`
	BookingReference string         `json:"bookingReference,omitempty"`
	Status           string         `json:"status"`
	Version          int64          `json:"version"`
	OccurredAt       time.Time      `json:"occurredAt"`
	Data             map[string]any `json:"data,omitempty"`
}

func New(t Type, reservationID string, at time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		ReservationID: reservationID,
		OccurredAt:    at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// =============================================================================
// NOP / RECORDER
// =============================================================================

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
