// Package store provides in-memory booking.Store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/tnsmusic/rehearsal-booking/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	reservations map[headKey]booking.Reservation
	slots        map[booking.SlotKey]booking.Slot

	headScan   bool
	commitFail error
}

type headKey struct {
	UserID booking.UserID
	DayKey booking.DayKey
}

type Option func(*Memory)

// WithoutReservationScan makes AllReservations report ErrScanUnsupported,
// the way a document store without a cross-user index would.
func WithoutReservationScan() Option {
	return func(m *Memory) { m.headScan = false }
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		reservations: make(map[headKey]booking.Reservation),
		slots:        make(map[booking.SlotKey]booking.Slot),
		headScan:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailCommits makes every following transaction roll back with err after
// its callback has run. Pass nil to heal the store.
func (m *Memory) FailCommits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitFail = err
}

func (m *Memory) GetReservation(_ context.Context, user booking.UserID, day booking.DayKey) (*booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReservationLocked(user, day), nil
}

func (m *Memory) GetSlot(_ context.Context, key booking.SlotKey) (*booking.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSlotLocked(key), nil
}

func (m *Memory) SlotsForDay(_ context.Context, day booking.DayKey) ([]booking.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []booking.Slot
	for _, s := range m.slots {
		if s.DayKey == day {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) AllReservations(_ context.Context) ([]booking.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.headScan {
		return nil, booking.ErrScanUnsupported
	}
	out := make([]booking.Reservation, 0, len(m.reservations))
	for _, r := range m.reservations {
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) AllSlots(_ context.Context) ([]booking.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]booking.Slot, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) getReservationLocked(user booking.UserID, day booking.DayKey) *booking.Reservation {
	r, ok := m.reservations[headKey{UserID: user, DayKey: day}]
	if !ok {
		return nil
	}
	return &r
}

func (m *Memory) getSlotLocked(key booking.SlotKey) *booking.Slot {
	s, ok := m.slots[key]
	if !ok {
		return nil
	}
	return &s
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn while holding the write lock, which makes every
// transaction serializable. Writes go straight to the maps; a snapshot
// taken up front is restored if fn or the commit fails.
func (m *Memory) WithTx(ctx context.Context, fn func(booking.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	if m.commitFail != nil {
		m.restore(snapshot)
		return fmt.Errorf("commit: %w", m.commitFail)
	}
	return nil
}

type memorySnapshot struct {
	reservations map[headKey]booking.Reservation
	slots        map[booking.SlotKey]booking.Slot
}

func (m *Memory) snapshot() memorySnapshot {
	res := make(map[headKey]booking.Reservation, len(m.reservations))
	for k, v := range m.reservations {
		res[k] = v
	}
	slots := make(map[booking.SlotKey]booking.Slot, len(m.slots))
	for k, v := range m.slots {
		slots[k] = v
	}
	return memorySnapshot{reservations: res, slots: slots}
}

func (m *Memory) restore(s memorySnapshot) {
	m.reservations = s.reservations
	m.slots = s.slots
}

// txView is only valid while WithTx holds the lock.
type txView struct {
	parent *Memory
}

func (tv *txView) GetReservation(_ context.Context, user booking.UserID, day booking.DayKey) (*booking.Reservation, error) {
	return tv.parent.getReservationLocked(user, day), nil
}

func (tv *txView) GetSlot(_ context.Context, key booking.SlotKey) (*booking.Slot, error) {
	return tv.parent.getSlotLocked(key), nil
}

func (tv *txView) PutReservation(_ context.Context, r booking.Reservation) error {
	if err := r.Validate(); err != nil {
		return err
	}
	tv.parent.reservations[headKey{UserID: r.UserID, DayKey: r.DayKey}] = r
	return nil
}

func (tv *txView) DeleteReservation(_ context.Context, user booking.UserID, day booking.DayKey) error {
	delete(tv.parent.reservations, headKey{UserID: user, DayKey: day})
	return nil
}

func (tv *txView) InsertSlot(ctx context.Context, s booking.Slot) error {
	if _, taken := tv.parent.slots[s.Key]; taken {
		return fmt.Errorf("insert slot %s: %w", s.Key, booking.ErrSlotConflict)
	}
	return tv.PutSlot(ctx, s)
}

func (tv *txView) PutSlot(_ context.Context, s booking.Slot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	tv.parent.slots[s.Key] = s
	return nil
}

func (tv *txView) DeleteSlot(_ context.Context, key booking.SlotKey) error {
	delete(tv.parent.slots, key)
	return nil
}

var (
	_ booking.Store              = (*Memory)(nil)
	_ booking.ReservationScanner = (*Memory)(nil)
	_ booking.SlotScanner        = (*Memory)(nil)
	_ booking.Tx                 = (*txView)(nil)
)
