/*
store.go - Persistence contract for reservations and slots

PURPOSE:
  Defines what the engine needs from a store, independent of product:
  point reads, one serializable read-modify-write transaction, and
  equality-filtered scans.

KEY INTERFACES:
  Reader:             Point reads of a head record or a slot
  Tx:                 Reader plus writes, valid only inside WithTx
  Store:              Reader, WithTx, per-day slot scan
  ReservationScanner: Optional cross-user scan of head records
  SlotScanner:        Optional scan of every slot

ATOMICITY:
  WithTx runs fn with a Tx. If fn returns an error nothing it wrote is
  visible, ever. If fn returns nil all writes commit together. Two
  transactions whose read or write sets share a key never both commit;
  that is the only thing preventing double-booking.

ABSENCE:
  Point reads return (nil, nil) for a missing record.

IMPLEMENTATIONS:
  - booking/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:  SQLite with BEGIN IMMEDIATE transactions
*/
package booking

import "context"

type Reader interface {
	GetReservation(ctx context.Context, user UserID, day DayKey) (*Reservation, error)
	GetSlot(ctx context.Context, key SlotKey) (*Slot, error)
}

// Tx is the transactional view handed to WithTx callbacks.
type Tx interface {
	Reader

	PutReservation(ctx context.Context, r Reservation) error
	DeleteReservation(ctx context.Context, user UserID, day DayKey) error

	// InsertSlot writes a slot that must not exist yet. Implementations
	// return an error wrapping ErrSlotConflict if the key is taken.
	InsertSlot(ctx context.Context, s Slot) error
	PutSlot(ctx context.Context, s Slot) error
	DeleteSlot(ctx context.Context, key SlotKey) error
}

type Store interface {
	Reader

	// WithTx executes fn within one atomic, serializable transaction.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// SlotsForDay returns every slot whose DayKey equals day, in no
	// particular order.
	SlotsForDay(ctx context.Context, day DayKey) ([]Slot, error)
}

// ReservationScanner is implemented by stores that can list head records
// across all users. It may return ErrScanUnsupported at runtime.
type ReservationScanner interface {
	AllReservations(ctx context.Context) ([]Reservation, error)
}

// SlotScanner is implemented by stores that can list all slots.
type SlotScanner interface {
	AllSlots(ctx context.Context) ([]Slot, error)
}
