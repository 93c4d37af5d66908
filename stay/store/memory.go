// Package store provides in-memory implementations of the stay collaborators.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements stay.Repository, stay.TaxRuleStore, stay.RoomInventory
// and stay.FolioStore behind a single mutex.
type Memory struct {
	mu           sync.RWMutex
	reservations map[stay.ReservationID]stay.Reservation
	taxRules     map[string]billing.TaxRule
	nights       map[nightKey]stay.ReservationID
	folio        map[stay.ReservationID][]stay.FolioEntry
	idempotency  map[string]bool
}

type nightKey struct {
	Room  stay.RoomNumber
	Night string
}

func NewMemory() *Memory {
	return &Memory{
		reservations: make(map[stay.ReservationID]stay.Reservation),
		taxRules:     make(map[string]billing.TaxRule),
		nights:       make(map[nightKey]stay.ReservationID),
		folio:        make(map[stay.ReservationID][]stay.FolioEntry),
		idempotency:  make(map[string]bool),
	}
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) Create(_ context.Context, r stay.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[r.ID]; ok {
		return &stay.DuplicateReservationError{ReservationID: r.ID}
	}
	r.Version = 1
	m.reservations[r.ID] = r.Clone()
	return nil
}

func (m *Memory) Load(_ context.Context, id stay.ReservationID) (stay.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return stay.Reservation{}, stay.ErrReservationNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) Save(_ context.Context, r stay.Reservation, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.reservations[r.ID]
	if !ok {
		return stay.ErrReservationNotFound
	}
	if current.Version != expectedVersion {
		return &stay.StaleVersionError{ReservationID: r.ID, Expected: expectedVersion, Actual: current.Version}
	}
	r.Version = expectedVersion + 1
	m.reservations[r.ID] = r.Clone()
	return nil
}

func (m *Memory) List(_ context.Context, filter stay.ListFilter) ([]stay.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []stay.Reservation
	for _, r := range m.reservations {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Room != "" && r.RoomNumber != filter.Room {
			continue
		}
		if filter.GuestID != "" && r.GuestID != filter.GuestID {
			continue
		}
		out = append(out, r.Clone())
	}
	sortReservations(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) NoShowCandidates(_ context.Context, checkInOnOrBefore billing.Date) ([]stay.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []stay.Reservation
	for _, r := range m.reservations {
		if r.Status != stay.StatusPending && r.Status != stay.StatusConfirmed {
			continue
		}
		if r.CheckIn.After(checkInOnOrBefore) {
			continue
		}
		out = append(out, r.Clone())
	}
	sortReservations(out)
	return out, nil
}

// sortReservations orders by check-in, then id, so listings are stable.
func sortReservations(rs []stay.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CheckIn.Equal(rs[j].CheckIn) {
			return rs[i].CheckIn.Before(rs[j].CheckIn)
		}
		return rs[i].ID < rs[j].ID
	})
}

// =============================================================================
// TAX RULES
// =============================================================================

func (m *Memory) ListTaxRules(_ context.Context) ([]billing.TaxRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.TaxRule, 0, len(m.taxRules))
	for _, r := range m.taxRules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetTaxRule(_ context.Context, id string) (billing.TaxRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.taxRules[id]
	if !ok {
		return billing.TaxRule{}, stay.ErrTaxRuleNotFound
	}
	return r, nil
}

func (m *Memory) SaveTaxRule(_ context.Context, rule billing.TaxRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taxRules[rule.ID] = rule
	return nil
}

// =============================================================================
// ROOM INVENTORY
// =============================================================================

func (m *Memory) IsAvailable(_ context.Context, room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.freeLocked(room, rng, holder) == "", nil
}

// Reserve checks and writes every night under one lock.
func (m *Memory) Reserve(_ context.Context, room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) ([]billing.Date, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if other := m.freeLocked(room, rng, holder); other != "" {
		return nil, &stay.RoomUnavailableError{Room: room, Range: rng, HeldBy: other}
	}
	var added []billing.Date
	for _, night := range rng.EachNight() {
		k := nightKey{Room: room, Night: night.String()}
		if _, held := m.nights[k]; held {
			continue
		}
		m.nights[k] = holder
		added = append(added, night)
	}
	return added, nil
}

func (m *Memory) Release(_ context.Context, room stay.RoomNumber, holder stay.ReservationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, h := range m.nights {
		if k.Room == room && h == holder {
			delete(m.nights, k)
		}
	}
	return nil
}

func (m *Memory) ReleaseNights(_ context.Context, room stay.RoomNumber, holder stay.ReservationID, nights []billing.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, night := range nights {
		k := nightKey{Room: room, Night: night.String()}
		if m.nights[k] == holder {
			delete(m.nights, k)
		}
	}
	return nil
}

// freeLocked returns the first other holder of a night in rng, or "".
func (m *Memory) freeLocked(room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) stay.ReservationID {
	for _, night := range rng.EachNight() {
		if h, ok := m.nights[nightKey{Room: room, Night: night.String()}]; ok && h != holder {
			return h
		}
	}
	return ""
}

// =============================================================================
// FOLIO
// =============================================================================

// AppendFolio adds entries atomically. Append-only.
func (m *Memory) AppendFolio(_ context.Context, entries []stay.FolioEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
			return stay.ErrDuplicateIdempotencyKey
		}
	}
	for _, e := range entries {
		m.folio[e.ReservationID] = append(m.folio[e.ReservationID], e)
		if e.IdempotencyKey != "" {
			m.idempotency[e.IdempotencyKey] = true
		}
	}
	return nil
}

func (m *Memory) FolioEntries(_ context.Context, id stay.ReservationID) ([]stay.FolioEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]stay.FolioEntry, len(m.folio[id]))
	copy(out, m.folio[id])
	return out, nil
}

func (m *Memory) FolioKeyExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations = make(map[stay.ReservationID]stay.Reservation)
	m.taxRules = make(map[string]billing.TaxRule)
	m.nights = make(map[nightKey]stay.ReservationID)
	m.folio = make(map[stay.ReservationID][]stay.FolioEntry)
	m.idempotency = make(map[string]bool)
	return nil
}
