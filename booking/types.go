/*
Package booking provides the rehearsal room reservation engine.

PURPOSE:
  Turns a requested (user, start, end) interval into either a durable,
  conflict-free reservation or a typed rejection, and derives read models
  (day schedule, practice-time leaderboard) from what was committed.

KEY CONCEPTS IN THIS FILE (types.go):
  - DayKey: local calendar date, the partition key for heads and slots
  - Reservation: the head record, one per (user, day)
  - Slot: an exclusively-owned 5-minute cell, the unit of conflict
  - LeaderboardEntry: derived, never persisted

INVARIANTS:
  1. At most one Reservation per (UserID, DayKey).
  2. A SlotKey is owned by exactly one user at any time.
  3. The union of a reservation's slots is exactly [StartAt, EndAt).

SEE ALSO:
  - service.go: create/edit/delete transactions
  - store.go: persistence contract
  - grid.go: interval expansion into slots
*/
package booking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string

// DayKey is a calendar date formatted as 2006-01-02 in the room's time zone.
type DayKey string

// SlotKey identifies one 5-minute cell: "<dayKey>_<HHMM>".
type SlotKey string

// GroupID ties one booking's slots together: "<userId>_<dayKey>".
type GroupID string

const dayKeyLayout = "2006-01-02"

// DayKeyOf returns the calendar day of t in loc.
func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	return DayKey(t.In(loc).Format(dayKeyLayout))
}

// ParseDayKey validates s and returns it as a DayKey.
func ParseDayKey(s string) (DayKey, error) {
	if _, err := time.Parse(dayKeyLayout, s); err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", s, err)
	}
	return DayKey(s), nil
}

// AddDays shifts the key by n calendar days. The arithmetic is done on a
// UTC date so month ends and DST transitions never skip or repeat a day.
func (d DayKey) AddDays(n int) DayKey {
	t, err := time.Parse(dayKeyLayout, string(d))
	if err != nil {
		return d
	}
	return DayKey(t.AddDate(0, 0, n).Format(dayKeyLayout))
}

// Midnight returns the first instant of the day in loc.
func (d DayKey) Midnight(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dayKeyLayout, string(d), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day key %q: %w", d, err)
	}
	return t, nil
}

func (d DayKey) Before(other DayKey) bool { return d < other }
func (d DayKey) After(other DayKey) bool  { return d > other }
func (d DayKey) String() string           { return string(d) }

func NewGroupID(user UserID, day DayKey) GroupID {
	return GroupID(fmt.Sprintf("%s_%s", user, day))
}

// =============================================================================
// RESERVATION - Head record, one per user per day
// =============================================================================

type Reservation struct {
	UserID    UserID
	BandKey   string
	BandName  string
	DayKey    DayKey
	GroupID   GroupID
	StartAt   time.Time
	EndAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate rejects records that cannot have been written by this package.
// Stores and read paths call it at the decode boundary.
func (r Reservation) Validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: reservation without user", ErrMalformedRecord)
	case r.DayKey == "":
		return fmt.Errorf("%w: reservation %s without day", ErrMalformedRecord, r.UserID)
	case r.StartAt.IsZero() || r.EndAt.IsZero():
		return fmt.Errorf("%w: reservation %s/%s without interval", ErrMalformedRecord, r.UserID, r.DayKey)
	case !r.EndAt.After(r.StartAt):
		return fmt.Errorf("%w: reservation %s/%s ends before it starts", ErrMalformedRecord, r.UserID, r.DayKey)
	}
	return nil
}

// Duration returns the booked length.
func (r Reservation) Duration() time.Duration { return r.EndAt.Sub(r.StartAt) }

// =============================================================================
// SLOT - Allocation unit
// =============================================================================

type Slot struct {
	Key       SlotKey
	DayKey    DayKey
	StartAt   time.Time
	EndAt     time.Time
	UserID    UserID
	BandKey   string
	BandName  string
	GroupID   GroupID
	CreatedAt time.Time
}

func (s Slot) Validate() error {
	switch {
	case s.Key == "":
		return fmt.Errorf("%w: slot without key", ErrMalformedRecord)
	case s.UserID == "":
		return fmt.Errorf("%w: slot %s without owner", ErrMalformedRecord, s.Key)
	case s.DayKey == "":
		return fmt.Errorf("%w: slot %s without day", ErrMalformedRecord, s.Key)
	case s.StartAt.IsZero() || !s.EndAt.After(s.StartAt):
		return fmt.Errorf("%w: slot %s has invalid interval", ErrMalformedRecord, s.Key)
	}
	return nil
}

// OwnedBy reports whether the slot belongs to user.
func (s Slot) OwnedBy(user UserID) bool { return s.UserID == user }

// =============================================================================
// READ MODELS
// =============================================================================

// DaySummary is one booking on a day's schedule, rebuilt from slots.
type DaySummary struct {
	UserID   UserID
	BandName string
	DayKey   DayKey
	GroupID  GroupID
	StartAt  time.Time
	EndAt    time.Time
}

type LeaderboardEntry struct {
	BandKey  string
	BandName string
	Minutes  int
	Sessions int
}

// Hours is Minutes expressed in hours, rounded to two places.
func (e LeaderboardEntry) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(e.Minutes)).Div(decimal.NewFromInt(60)).Round(2)
}

// CreateResult is returned by a committed create.
type CreateResult struct {
	DayKey  DayKey
	GroupID GroupID
}

// Window is the range of days a new booking may start on.
type Window struct {
	MinDay DayKey
	MaxDay DayKey
}
