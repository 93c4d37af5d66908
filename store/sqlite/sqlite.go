/*
Package sqlite provides a SQLite-backed implementation of the stay storage
interfaces.

PURPOSE:
  Implements stay.Repository, stay.TaxRuleStore, stay.RoomInventory and
  stay.FolioStore on one SQLite database. In production the same patterns
  apply to PostgreSQL with minor dialect differences.

KEY TABLES:
  reservations:  one row per reservation; the snapshot is stored as JSON,
                 queried columns are denormalized next to it
  tax_rules:     configured taxes
  room_nights:   one row per (room, night) held; PRIMARY KEY(room, night)
                 is what makes two holds for the same night impossible
  folio_entries: append-only postings, UNIQUE(idempotency_key)

OPTIMISTIC CONCURRENCY:
  Save is UPDATE ... WHERE id = ? AND version = ?. Zero rows affected
  means somebody else committed first (or the row does not exist).

ATOMIC ROOM CLAIM:
  Reserve inserts every night in one transaction, skipping rows that
  already exist. A skipped night held by the same reservation is kept as
  is; one held by anyone else rolls the whole claim back. Only the rows
  actually inserted are reported, so a failed commit can release exactly
  those with ReleaseNights.

WAL MODE:
  Opened with WAL for concurrent readers. ":memory:" databases are pinned
  to a single connection, otherwise every pooled connection would see its
  own empty database.

SEE ALSO:
  - stay/store.go: interface definitions
  - stay/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/billing"
	"github.com/warp/stay-engine/stay"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		booking_reference TEXT NOT NULL UNIQUE,
		guest_id TEXT,
		status TEXT NOT NULL,
		room_number TEXT,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		version INTEGER NOT NULL,
		snapshot_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_status_check_in
		ON reservations(status, check_in);
	CREATE INDEX IF NOT EXISTS idx_reservations_room
		ON reservations(room_number) WHERE room_number IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_reservations_guest
		ON reservations(guest_id) WHERE guest_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS tax_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		rate TEXT NOT NULL,
		applies_to TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		inclusive BOOLEAN NOT NULL DEFAULT FALSE,
		display_order INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one holder per room per night
	CREATE TABLE IF NOT EXISTS room_nights (
		room TEXT NOT NULL,
		night TEXT NOT NULL,
		reservation_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (room, night)
	);

	CREATE INDEX IF NOT EXISTS idx_room_nights_holder
		ON room_nights(reservation_id, room);

	-- Folio (append-only)
	CREATE TABLE IF NOT EXISTS folio_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		reservation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		label TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		method TEXT,
		command TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_folio_reservation
		ON folio_entries(reservation_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// RESERVATIONS (stay.Repository)
// =============================================================================

func (s *Store) Create(ctx context.Context, r stay.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Version = 1
	snapshot, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reservation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reservations
		(id, booking_reference, guest_id, status, room_number, check_in, check_out,
		 version, snapshot_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.BookingReference, nullString(r.GuestID), r.Status, nullString(string(r.RoomNumber)),
		r.CheckIn.String(), r.CheckOut.String(), r.Version, string(snapshot),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &stay.DuplicateReservationError{ReservationID: r.ID, BookingReference: r.BookingReference}
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id stay.ReservationID) (stay.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshot string
	err := s.db.QueryRowContext(ctx, "SELECT snapshot_json FROM reservations WHERE id = ?", id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return stay.Reservation{}, stay.ErrReservationNotFound
	}
	if err != nil {
		return stay.Reservation{}, fmt.Errorf("failed to load reservation: %w", err)
	}
	return decodeReservation(snapshot)
}

// Save writes r only if the stored version equals expectedVersion.
func (s *Store) Save(ctx context.Context, r stay.Reservation, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Version = expectedVersion + 1
	snapshot, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reservation: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, room_number = ?, guest_id = ?, check_in = ?, check_out = ?,
		    version = ?, snapshot_json = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`,
		r.Status, nullString(string(r.RoomNumber)), nullString(r.GuestID),
		r.CheckIn.String(), r.CheckOut.String(),
		r.Version, string(snapshot), formatTime(r.UpdatedAt),
		r.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var actual int64
	err = s.db.QueryRowContext(ctx, "SELECT version FROM reservations WHERE id = ?", r.ID).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return stay.ErrReservationNotFound
	}
	if err != nil {
		return err
	}
	return &stay.StaleVersionError{ReservationID: r.ID, Expected: expectedVersion, Actual: actual}
}

func (s *Store) List(ctx context.Context, filter stay.ListFilter) ([]stay.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Room != "" {
		where = append(where, "room_number = ?")
		args = append(args, string(filter.Room))
	}
	if filter.GuestID != "" {
		where = append(where, "guest_id = ?")
		args = append(args, filter.GuestID)
	}

	query := "SELECT snapshot_json FROM reservations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY check_in ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return s.queryReservations(ctx, query, args...)
}

func (s *Store) NoShowCandidates(ctx context.Context, checkInOnOrBefore billing.Date) ([]stay.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryReservations(ctx, `
		SELECT snapshot_json FROM reservations
		WHERE status IN (?, ?) AND check_in <= ?
		ORDER BY check_in ASC, id ASC
	`, stay.StatusPending, stay.StatusConfirmed, checkInOnOrBefore.String())
}

func (s *Store) queryReservations(ctx context.Context, query string, args ...any) ([]stay.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []stay.Reservation
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		r, err := decodeReservation(snapshot)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeReservation(snapshot string) (stay.Reservation, error) {
	var r stay.Reservation
	if err := json.Unmarshal([]byte(snapshot), &r); err != nil {
		return stay.Reservation{}, fmt.Errorf("failed to decode reservation: %w", err)
	}
	return r, nil
}

// =============================================================================
// TAX RULES (stay.TaxRuleStore)
// =============================================================================

func (s *Store) SaveTaxRule(ctx context.Context, rule billing.TaxRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_rules (id, name, type, rate, applies_to, enabled, inclusive, display_order, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, type = excluded.type, rate = excluded.rate,
			applies_to = excluded.applies_to, enabled = excluded.enabled,
			inclusive = excluded.inclusive, display_order = excluded.display_order,
			updated_at = excluded.updated_at
	`,
		rule.ID, rule.Name, rule.Type, rule.Rate.String(), rule.AppliesTo,
		rule.Enabled, rule.Inclusive, rule.DisplayOrder, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save tax rule: %w", err)
	}
	return nil
}

func (s *Store) GetTaxRule(ctx context.Context, id string) (billing.TaxRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules, err := s.queryTaxRules(ctx, taxRuleSelect+" WHERE id = ?", id)
	if err != nil {
		return billing.TaxRule{}, err
	}
	if len(rules) == 0 {
		return billing.TaxRule{}, stay.ErrTaxRuleNotFound
	}
	return rules[0], nil
}

func (s *Store) ListTaxRules(ctx context.Context) ([]billing.TaxRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTaxRules(ctx, taxRuleSelect+" ORDER BY display_order ASC, id ASC")
}

const taxRuleSelect = `
	SELECT id, name, type, rate, applies_to, enabled, inclusive, display_order
	FROM tax_rules`

func (s *Store) queryTaxRules(ctx context.Context, query string, args ...any) ([]billing.TaxRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax rules: %w", err)
	}
	defer rows.Close()

	var out []billing.TaxRule
	for rows.Next() {
		var (
			r    billing.TaxRule
			rate string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Type, &rate, &r.AppliesTo, &r.Enabled, &r.Inclusive, &r.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan tax rule: %w", err)
		}
		if r.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("tax rule %s has invalid rate %q: %w", r.ID, rate, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// ROOM INVENTORY (stay.RoomInventory)
// =============================================================================

func (s *Store) IsAvailable(ctx context.Context, room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	other, err := s.conflictingHolder(ctx, s.db, room, rng, holder)
	return other == "", err
}

// Reserve claims every night of rng for holder in one transaction and
// returns the nights it inserted.
func (s *Store) Reserve(ctx context.Context, room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) ([]billing.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := formatTime(time.Now())
	var added []billing.Date
	for _, night := range rng.EachNight() {
		res, err := sqlTx.ExecContext(ctx, `
			INSERT INTO room_nights (room, night, reservation_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(room, night) DO NOTHING
		`, room, night.String(), holder, now)
		if err != nil {
			return nil, fmt.Errorf("failed to hold room night: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			added = append(added, night)
			continue
		}
		other, err := s.conflictingHolder(ctx, sqlTx, room, billing.DateRange{From: night, To: night.AddDays(1)}, holder)
		if err != nil {
			return nil, err
		}
		if other != "" {
			return nil, &stay.RoomUnavailableError{Room: room, Range: rng, HeldBy: other}
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit room hold: %w", err)
	}
	return added, nil
}

func (s *Store) Release(ctx context.Context, room stay.RoomNumber, holder stay.ReservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM room_nights WHERE room = ? AND reservation_id = ?", room, holder)
	if err != nil {
		return fmt.Errorf("failed to release room: %w", err)
	}
	return nil
}

func (s *Store) ReleaseNights(ctx context.Context, room stay.RoomNumber, holder stay.ReservationID, nights []billing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, night := range nights {
		_, err := sqlTx.ExecContext(ctx,
			"DELETE FROM room_nights WHERE room = ? AND night = ? AND reservation_id = ?",
			room, night.String(), holder)
		if err != nil {
			return fmt.Errorf("failed to release room night: %w", err)
		}
	}
	return sqlTx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conflictingHolder(ctx context.Context, q queryer, room stay.RoomNumber, rng billing.DateRange, holder stay.ReservationID) (stay.ReservationID, error) {
	var other string
	err := q.QueryRowContext(ctx, `
		SELECT reservation_id FROM room_nights
		WHERE room = ? AND night >= ? AND night < ? AND reservation_id <> ?
		ORDER BY night LIMIT 1
	`, room, rng.From.String(), rng.To.String(), holder).Scan(&other)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check room availability: %w", err)
	}
	return stay.ReservationID(other), nil
}

// =============================================================================
// FOLIO (stay.FolioStore) - append-only
// =============================================================================

// AppendFolio adds entries atomically.
func (s *Store) AppendFolio(ctx context.Context, entries []stay.FolioEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return stay.ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range entries {
		if err := appendFolioEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func appendFolioEntry(ctx context.Context, db execer, e stay.FolioEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO folio_entries
		(id, reservation_id, kind, label, amount, currency, method, command, idempotency_key, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.ReservationID, e.Kind, nullString(e.Label), e.Amount.Value.String(), e.Amount.Currency,
		nullString(string(e.Method)), e.Command, nullString(e.IdempotencyKey), formatTime(e.RecordedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return stay.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append folio entry: %w", err)
	}
	return nil
}

func (s *Store) FolioEntries(ctx context.Context, id stay.ReservationID) ([]stay.FolioEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reservation_id, kind, label, amount, currency, method, command, idempotency_key, recorded_at
		FROM folio_entries
		WHERE reservation_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query folio: %w", err)
	}
	defer rows.Close()

	var out []stay.FolioEntry
	for rows.Next() {
		var (
			e                     stay.FolioEntry
			label, method, idem   sql.NullString
			amount, currency, rec string
		)
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.Kind, &label, &amount, &currency,
			&method, &e.Command, &idem, &rec); err != nil {
			return nil, fmt.Errorf("failed to scan folio entry: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("folio entry %s has invalid amount %q: %w", e.ID, amount, err)
		}
		e.Amount = billing.NewMoneyFromDecimal(value, billing.Currency(currency))
		e.Label = label.String
		e.Method = billing.PaymentMethod(method.String)
		e.IdempotencyKey = idem.String
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, rec)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) FolioKeyExists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM folio_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"folio_entries", "room_nights", "reservations", "tax_rules"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
