package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
	"github.com/warp/stay-engine/store/sqlite"
)

func setupStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func xaf(n int64) billing.Money { return billing.NewMoney(n, billing.XAF) }

func d(day int) billing.Date { return billing.NewDate(2025, time.March, day) }

func vat(rate int64) billing.TaxRule {
	return billing.TaxRule{
		ID: "vat", Name: "VAT", Type: billing.TaxPercentage, Rate: decimal.NewFromInt(rate),
		AppliesTo: billing.AppliesToSubtotal, Enabled: true, DisplayOrder: 1,
	}
}

func newService(t *testing.T, s *sqlite.Store, now time.Time) *stay.Service {
	t.Helper()
	return stay.NewService(stay.ServiceConfig{
		Reservations: s,
		TaxRules:     s,
		Rooms:        s,
		Folio:        s,
		Lifecycle:    stay.NewLifecycle(time.UTC, stay.DefaultNoShowGrace),
		Currency:     billing.XAF,
		Now:          func() time.Time { return now },
	})
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestStore_ReservationRoundTripKeepsReceipt(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTaxRule(ctx, vat(18)))
	svc := newService(t, s, time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))

	r, err := svc.Book(ctx, stay.BookCommand{
		CheckIn: d(1), CheckOut: d(4), PricePerNight: xaf(25000), Room: "12", Confirm: true,
	})
	require.NoError(t, err)
	_, err = svc.CheckIn(ctx, r.ID, stay.CheckInCommand{Date: d(1)})
	require.NoError(t, err)
	_, err = svc.CheckOut(ctx, r.ID, stay.CheckOutCommand{Date: d(4)})
	require.NoError(t, err)

	loaded, err := s.Load(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, stay.StatusCheckedOut, loaded.Status)
	assert.Equal(t, int64(3), loaded.Version)
	assert.Equal(t, d(1), loaded.ActualCheckIn)
	require.NotNil(t, loaded.Receipt)
	assert.True(t, loaded.Receipt.GrandTotal.Equal(xaf(88500)))
	require.Len(t, loaded.Receipt.TaxBreakdown, 1)
	assert.Equal(t, "vat", loaded.Receipt.TaxBreakdown[0].TaxID)

	// Changing the rule afterwards leaves the stored receipt alone.
	require.NoError(t, s.SaveTaxRule(ctx, vat(20)))
	loaded, err = s.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Receipt.GrandTotal.Equal(xaf(88500)))
}

func TestStore_LoadUnknown(t *testing.T) {
	s := setupStore(t)

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, stay.ErrReservationNotFound)
}

func TestStore_SaveRequiresExpectedVersion(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	r := stay.Reservation{
		ID: "res-1", BookingReference: "BK-00000001", CheckIn: d(1), CheckOut: d(3),
		Status: stay.StatusPending, PricePerNight: xaf(1000),
	}
	require.NoError(t, s.Create(ctx, r))

	r.Status = stay.StatusConfirmed
	require.NoError(t, s.Save(ctx, r, 1))

	err := s.Save(ctx, r, 1)
	var stale *stay.StaleVersionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, int64(1), stale.Expected)
	assert.Equal(t, int64(2), stale.Actual)

	err = s.Save(ctx, stay.Reservation{ID: "missing"}, 1)
	assert.ErrorIs(t, err, stay.ErrReservationNotFound)
}

func TestStore_CreateRejectsDuplicates(t *testing.T) {
	// GIVEN: A stored reservation
	s := setupStore(t)
	ctx := context.Background()
	r := stay.Reservation{
		ID: "res-1", BookingReference: "BK-00000001", CheckIn: d(1), CheckOut: d(3),
		Status: stay.StatusPending, PricePerNight: xaf(1000),
	}
	require.NoError(t, s.Create(ctx, r))

	// WHEN: Creating the same id again
	err := s.Create(ctx, r)

	// THEN: It is a duplicate, not a stale version
	var dup *stay.DuplicateReservationError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, stay.ReservationID("res-1"), dup.ReservationID)
	assert.NotErrorIs(t, err, stay.ErrStaleVersion)

	// WHEN: A new id reuses the booking reference
	other := r
	other.ID = "res-2"
	err = s.Create(ctx, other)

	// THEN: Same error
	assert.ErrorIs(t, err, stay.ErrDuplicateReservation)
}

func TestStore_ListAndNoShowCandidates(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	for i, st := range []stay.Status{stay.StatusConfirmed, stay.StatusPending, stay.StatusCheckedIn} {
		r := stay.Reservation{
			ID:               stay.ReservationID([]string{"a", "b", "c"}[i]),
			BookingReference: "BK-" + string(rune('A'+i)),
			CheckIn:          d(1 + i), CheckOut: d(5),
			Status: st, RoomNumber: "12",
		}
		require.NoError(t, s.Create(ctx, r))
	}

	all, err := s.List(ctx, stay.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending := stay.StatusPending
	filtered, err := s.List(ctx, stay.ListFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, stay.ReservationID("b"), filtered[0].ID)

	candidates, err := s.NoShowCandidates(ctx, d(2))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, stay.ReservationID("a"), candidates[0].ID)
	assert.Equal(t, stay.ReservationID("b"), candidates[1].ID)
}

// =============================================================================
// ROOM INVENTORY
// =============================================================================

func TestStore_ReserveIsAllOrNothing(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "12", billing.DateRange{From: d(3), To: d(5)}, "res-a")
	require.NoError(t, err)

	// Overlaps on the 4th only: nothing of [1, 5) may be held afterwards.
	_, err = s.Reserve(ctx, "12", billing.DateRange{From: d(1), To: d(5)}, "res-b")
	var ru *stay.RoomUnavailableError
	require.ErrorAs(t, err, &ru)
	assert.Equal(t, stay.ReservationID("res-a"), ru.HeldBy)

	ok, err := s.IsAvailable(ctx, "12", billing.DateRange{From: d(1), To: d(3)}, "res-c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_ReserveIsIdempotentForHolder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	rng := billing.DateRange{From: d(1), To: d(4)}

	added, err := s.Reserve(ctx, "12", rng, "res-a")
	require.NoError(t, err)
	assert.Equal(t, []billing.Date{d(1), d(2), d(3)}, added)
	added, err = s.Reserve(ctx, "12", billing.DateRange{From: d(1), To: d(5)}, "res-a")
	require.NoError(t, err)
	assert.Equal(t, []billing.Date{d(4)}, added)

	ok, err := s.IsAvailable(ctx, "12", rng, "res-a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Release(ctx, "12", "res-a"))
	ok, err = s.IsAvailable(ctx, "12", billing.DateRange{From: d(1), To: d(5)}, "res-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_ReleaseNightsLeavesEarlierHold(t *testing.T) {
	// GIVEN: res-a holds [3, 5) and then extends back to the 1st
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.Reserve(ctx, "12", billing.DateRange{From: d(3), To: d(5)}, "res-a")
	require.NoError(t, err)
	added, err := s.Reserve(ctx, "12", billing.DateRange{From: d(1), To: d(5)}, "res-a")
	require.NoError(t, err)
	require.Equal(t, []billing.Date{d(1), d(2)}, added)

	// WHEN: The extension is undone, and res-b tries to free a night of res-a
	require.NoError(t, s.ReleaseNights(ctx, "12", "res-a", added))
	require.NoError(t, s.ReleaseNights(ctx, "12", "res-b", []billing.Date{d(3)}))

	// THEN: Only the extension is free again
	ok, err := s.IsAvailable(ctx, "12", billing.DateRange{From: d(1), To: d(3)}, "res-b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsAvailable(ctx, "12", billing.DateRange{From: d(3), To: d(5)}, "res-b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	svc := newService(t, s, time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))

	var ids []stay.ReservationID
	for i := 0; i < 5; i++ {
		r, err := svc.Book(ctx, stay.BookCommand{CheckIn: d(1), CheckOut: d(3), PricePerNight: xaf(20000)})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id stay.ReservationID) {
			defer wg.Done()
			_, err := svc.AssignRoom(ctx, id, "12")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, stay.ErrRoomUnavailable)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

// =============================================================================
// TAX RULES / FOLIO
// =============================================================================

func TestStore_TaxRuleUpsert(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTaxRule(ctx, vat(18)))
	city := billing.TaxRule{
		ID: "city", Name: "City tax", Type: billing.TaxFixed, Rate: decimal.NewFromInt(500),
		AppliesTo: billing.AppliesToTotal, Enabled: false, DisplayOrder: 0,
	}
	require.NoError(t, s.SaveTaxRule(ctx, city))
	require.NoError(t, s.SaveTaxRule(ctx, vat(19)))

	rules, err := s.ListTaxRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "city", rules[0].ID)
	assert.False(t, rules[0].Enabled)
	assert.True(t, rules[1].Rate.Equal(decimal.NewFromInt(19)))

	enabled, err := stay.EnabledTaxRules(ctx, s)
	require.NoError(t, err)
	require.Len(t, enabled, 1)

	_, err = s.GetTaxRule(ctx, "missing")
	assert.ErrorIs(t, err, stay.ErrTaxRuleNotFound)

	bad := vat(18)
	bad.AppliesTo = "NIGHTLY"
	assert.ErrorIs(t, s.SaveTaxRule(ctx, bad), billing.ErrInvalidTaxRule)
}

func TestStore_FolioAppendOnlyAndIdempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	folio := stay.NewFolio(s)
	entry := stay.FolioEntry{
		ID: "res-1:v2:0", ReservationID: "res-1", Kind: stay.FolioPayment,
		Amount: xaf(20000), Method: billing.MethodCash, Command: stay.CmdRecordPayment,
		IdempotencyKey: "res-1:v2:0", RecordedAt: time.Now(),
	}

	require.NoError(t, folio.Append(ctx, []stay.FolioEntry{entry}))
	assert.ErrorIs(t, folio.Append(ctx, []stay.FolioEntry{entry}), stay.ErrDuplicateIdempotencyKey)

	entries, err := folio.Entries(ctx, "res-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(xaf(20000)))
	assert.Equal(t, billing.XAF, entries[0].Amount.Currency)
	assert.Equal(t, billing.MethodCash, entries[0].Method)
}
