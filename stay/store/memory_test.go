package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
	"github.com/warp/stay-engine/stay/store"
)

func day(n int) billing.Date { return billing.NewDate(2025, time.March, n) }

func TestMemory_SaveChecksVersion(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	r := stay.Reservation{ID: "r-1", CheckIn: day(1), CheckOut: day(3), Status: stay.StatusPending}
	require.NoError(t, m.Create(ctx, r))

	loaded, err := m.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)

	loaded.Status = stay.StatusConfirmed
	require.NoError(t, m.Save(ctx, loaded, 1))

	err = m.Save(ctx, loaded, 1)
	assert.ErrorIs(t, err, stay.ErrStaleVersion)

	_, err = m.Load(ctx, "missing")
	assert.ErrorIs(t, err, stay.ErrReservationNotFound)
}

func TestMemory_CreateRejectsDuplicateID(t *testing.T) {
	// GIVEN: A stored reservation
	ctx := context.Background()
	m := store.NewMemory()
	r := stay.Reservation{ID: "r-1", CheckIn: day(1), CheckOut: day(3), Status: stay.StatusPending}
	require.NoError(t, m.Create(ctx, r))

	// WHEN: Creating another one with the same id
	err := m.Create(ctx, r)

	// THEN: The error names a duplicate, not a stale version
	assert.ErrorIs(t, err, stay.ErrDuplicateReservation)
	assert.NotErrorIs(t, err, stay.ErrStaleVersion)
}

func TestMemory_ReleaseNightsKeepsOlderHold(t *testing.T) {
	// GIVEN: r-1 holds nights 3-4, then extends back to night 1
	ctx := context.Background()
	m := store.NewMemory()
	_, err := m.Reserve(ctx, "12", billing.DateRange{From: day(3), To: day(5)}, "r-1")
	require.NoError(t, err)
	added, err := m.Reserve(ctx, "12", billing.DateRange{From: day(1), To: day(5)}, "r-1")
	require.NoError(t, err)
	require.Equal(t, []billing.Date{day(1), day(2)}, added)

	// WHEN: Only the extension is released, plus a night r-2 asks to free
	require.NoError(t, m.ReleaseNights(ctx, "12", "r-1", added))
	require.NoError(t, m.ReleaseNights(ctx, "12", "r-2", []billing.Date{day(3)}))

	// THEN: The original nights are still r-1's
	ok, err := m.IsAvailable(ctx, "12", billing.DateRange{From: day(1), To: day(3)}, "r-2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.IsAvailable(ctx, "12", billing.DateRange{From: day(3), To: day(5)}, "r-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_RoomNights(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	rng := billing.DateRange{From: day(1), To: day(4)}

	added, err := m.Reserve(ctx, "12", rng, "r-1")
	require.NoError(t, err)
	assert.Equal(t, []billing.Date{day(1), day(2), day(3)}, added)
	// Re-claiming your own nights is idempotent and adds nothing.
	added, err = m.Reserve(ctx, "12", rng, "r-1")
	require.NoError(t, err)
	assert.Empty(t, added)

	_, err = m.Reserve(ctx, "12", billing.DateRange{From: day(3), To: day(5)}, "r-2")
	var unavailable *stay.RoomUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, stay.ReservationID("r-1"), unavailable.HeldBy)

	// Checkout day is not a held night.
	_, err = m.Reserve(ctx, "12", billing.DateRange{From: day(4), To: day(5)}, "r-2")
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, "12", "r-1"))
	ok, err := m.IsAvailable(ctx, "12", rng, "r-3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_FolioIdempotency(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	entry := stay.FolioEntry{
		ID: "r-1:v2:0", ReservationID: "r-1", Kind: stay.FolioPayment,
		Amount: billing.NewMoney(20000, billing.XAF), IdempotencyKey: "r-1:v2:0",
	}

	require.NoError(t, m.AppendFolio(ctx, []stay.FolioEntry{entry}))
	assert.ErrorIs(t, m.AppendFolio(ctx, []stay.FolioEntry{entry}), stay.ErrDuplicateIdempotencyKey)

	entries, err := m.FolioEntries(ctx, "r-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemory_Reset(t *testing.T) {
	// GIVEN: A store holding a reservation, a rule, a room night and a posting
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.Create(ctx, stay.Reservation{ID: "r-1", CheckIn: day(1), CheckOut: day(2)}))
	require.NoError(t, m.SaveTaxRule(ctx, billing.TaxRule{
		ID: "vat", Name: "VAT", Type: billing.TaxPercentage,
		Rate: decimal.NewFromInt(18), AppliesTo: billing.AppliesToSubtotal, Enabled: true,
	}))
	_, err := m.Reserve(ctx, "12", billing.DateRange{From: day(1), To: day(2)}, "r-1")
	require.NoError(t, err)
	require.NoError(t, m.AppendFolio(ctx, []stay.FolioEntry{{ID: "k", ReservationID: "r-1", IdempotencyKey: "k"}}))

	// WHEN: Resetting
	require.NoError(t, m.Reset(ctx))

	// THEN: Everything is gone
	list, err := m.List(ctx, stay.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	rules, err := m.ListTaxRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
	ok, err := m.IsAvailable(ctx, "12", billing.DateRange{From: day(1), To: day(2)}, "r-2")
	require.NoError(t, err)
	assert.True(t, ok)
	exists, err := m.FolioKeyExists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}
