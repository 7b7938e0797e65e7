/*
Package sqlite provides a SQLite-backed implementation of booking.Store.

PURPOSE:
  Durable storage for head reservations and slots. The same schema works on
  PostgreSQL with minor dialect changes (ON CONFLICT is shared).

KEY TABLES:
  reservations: one row per (user_id, day_key), primary key enforces it
  slots:        one row per slot_key, primary key enforces single ownership

ISOLATION:
  The database is opened with _txlock=immediate, so every WithTx starts
  with BEGIN IMMEDIATE and takes the write lock before its first read.
  Transactions are therefore serializable: two bookings racing for the same
  slot run one after the other and the second sees the first's rows.
  _busy_timeout makes the loser wait instead of failing with SQLITE_BUSY.

  The primary keys are a second line of defence. A duplicate insert is
  reported as booking.ErrSlotConflict / booking.ErrAlreadyBookedToday.

WAL MODE:
  Readers (day schedule, leaderboard) do not block the writer.

IN-MEMORY DATABASES:
  ":memory:" gives each pooled connection its own database, so the pool is
  limited to one connection.

USAGE:
  store, err := sqlite.New("./data/rehearsal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  svc := booking.NewService(store, rules)

SEE ALSO:
  - booking/store.go: interface definitions
  - booking/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tnsmusic/rehearsal-booking/booking"
)

// Store implements booking.Store, booking.ReservationScanner and
// booking.SlotScanner.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

type Option func(*Store)

// WithLogger reports rows skipped during scans.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(store)
	}
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

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Head records: at most one booking per user per day
	CREATE TABLE IF NOT EXISTS reservations (
		user_id TEXT NOT NULL,
		day_key TEXT NOT NULL,
		band_key TEXT NOT NULL,
		band_name TEXT NOT NULL,
		group_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, day_key)
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_band
		ON reservations(band_key);

	-- Slots: the allocation ledger, one owner per 5-minute cell
	CREATE TABLE IF NOT EXISTS slots (
		slot_key TEXT PRIMARY KEY,
		day_key TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		user_id TEXT NOT NULL,
		band_key TEXT NOT NULL,
		band_name TEXT NOT NULL,
		group_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Day schedule scan (hot path)
	CREATE INDEX IF NOT EXISTS idx_slots_day
		ON slots(day_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	reservationColumns = `user_id, day_key, band_key, band_name, group_id, start_at, end_at, created_at, updated_at`
	slotColumns        = `slot_key, day_key, start_at, end_at, user_id, band_key, band_name, group_id, created_at`
)

// =============================================================================
// READS (booking.Reader)
// =============================================================================

func (s *Store) GetReservation(ctx context.Context, user booking.UserID, day booking.DayKey) (*booking.Reservation, error) {
	return getReservation(ctx, s.db, user, day)
}

func (s *Store) GetSlot(ctx context.Context, key booking.SlotKey) (*booking.Slot, error) {
	return getSlot(ctx, s.db, key)
}

func getReservation(ctx context.Context, q querier, user booking.UserID, day booking.DayKey) (*booking.Reservation, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE user_id = ? AND day_key = ?",
		user, day,
	)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func getSlot(ctx context.Context, q querier, key booking.SlotKey) (*booking.Slot, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+slotColumns+" FROM slots WHERE slot_key = ?",
		key,
	)
	sl, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sl, nil
}

// =============================================================================
// SCANS
// =============================================================================

// SlotsForDay returns the slots of one day.
func (s *Store) SlotsForDay(ctx context.Context, day booking.DayKey) ([]booking.Slot, error) {
	return s.querySlots(ctx,
		"SELECT "+slotColumns+" FROM slots WHERE day_key = ? ORDER BY slot_key",
		day,
	)
}

// AllSlots returns every slot.
func (s *Store) AllSlots(ctx context.Context) ([]booking.Slot, error) {
	return s.querySlots(ctx, "SELECT "+slotColumns+" FROM slots ORDER BY slot_key")
}

// AllReservations returns every head record.
func (s *Store) AllReservations(ctx context.Context) ([]booking.Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations ORDER BY day_key, user_id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []booking.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if errors.Is(err, booking.ErrMalformedRecord) {
			s.logger.Warn("skipping malformed reservation row", zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) querySlots(ctx context.Context, query string, args ...any) ([]booking.Slot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var out []booking.Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if errors.Is(err, booking.ErrMalformedRecord) {
			s.logger.Warn("skipping malformed slot row", zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetReservation(ctx context.Context, user booking.UserID, day booking.DayKey) (*booking.Reservation, error) {
	return getReservation(ctx, ts.tx, user, day)
}

func (ts *txStore) GetSlot(ctx context.Context, key booking.SlotKey) (*booking.Slot, error) {
	return getSlot(ctx, ts.tx, key)
}

func (ts *txStore) PutReservation(ctx context.Context, r booking.Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO reservations (` + reservationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, day_key) DO UPDATE SET
			band_key = excluded.band_key,
			band_name = excluded.band_name,
			group_id = excluded.group_id,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			updated_at = excluded.updated_at
	`
	_, err := ts.tx.ExecContext(ctx, query,
		r.UserID, r.DayKey, r.BandKey, r.BandName, r.GroupID,
		formatTime(r.StartAt), formatTime(r.EndAt),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to write reservation %s/%s: %w", r.UserID, r.DayKey, err)
	}
	return nil
}

func (ts *txStore) DeleteReservation(ctx context.Context, user booking.UserID, day booking.DayKey) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM reservations WHERE user_id = ? AND day_key = ?", user, day)
	if err != nil {
		return fmt.Errorf("failed to delete reservation %s/%s: %w", user, day, err)
	}
	return nil
}

func (ts *txStore) InsertSlot(ctx context.Context, sl booking.Slot) error {
	return ts.writeSlot(ctx, "INSERT INTO slots", sl)
}

func (ts *txStore) PutSlot(ctx context.Context, sl booking.Slot) error {
	return ts.writeSlot(ctx, "INSERT OR REPLACE INTO slots", sl)
}

func (ts *txStore) writeSlot(ctx context.Context, verb string, sl booking.Slot) error {
	if err := sl.Validate(); err != nil {
		return err
	}
	_, err := ts.tx.ExecContext(ctx, verb+` (`+slotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sl.Key, sl.DayKey, formatTime(sl.StartAt), formatTime(sl.EndAt),
		sl.UserID, sl.BandKey, sl.BandName, sl.GroupID, formatTime(sl.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("slot %s: %w", sl.Key, booking.ErrSlotConflict)
		}
		return fmt.Errorf("failed to write slot %s: %w", sl.Key, err)
	}
	return nil
}

func (ts *txStore) DeleteSlot(ctx context.Context, key booking.SlotKey) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM slots WHERE slot_key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// ROW DECODING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (booking.Reservation, error) {
	var r booking.Reservation
	var startAt, endAt, createdAt, updatedAt string
	err := row.Scan(&r.UserID, &r.DayKey, &r.BandKey, &r.BandName, &r.GroupID,
		&startAt, &endAt, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return r, err
		}
		return r, fmt.Errorf("failed to scan reservation: %w", err)
	}

	if r.StartAt, err = parseTime(startAt); err != nil {
		return r, err
	}
	if r.EndAt, err = parseTime(endAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, err
	}
	return r, r.Validate()
}

func scanSlot(row rowScanner) (booking.Slot, error) {
	var sl booking.Slot
	var startAt, endAt, createdAt string
	err := row.Scan(&sl.Key, &sl.DayKey, &startAt, &endAt,
		&sl.UserID, &sl.BandKey, &sl.BandName, &sl.GroupID, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return sl, err
		}
		return sl, fmt.Errorf("failed to scan slot: %w", err)
	}

	if sl.StartAt, err = parseTime(startAt); err != nil {
		return sl, err
	}
	if sl.EndAt, err = parseTime(endAt); err != nil {
		return sl, err
	}
	if sl.CreatedAt, err = parseTime(createdAt); err != nil {
		return sl, err
	}
	return sl, sl.Validate()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", booking.ErrMalformedRecord, s)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}

var (
	_ booking.Store              = (*Store)(nil)
	_ booking.ReservationScanner = (*Store)(nil)
	_ booking.SlotScanner        = (*Store)(nil)
	_ booking.Tx                 = (*txStore)(nil)
)
