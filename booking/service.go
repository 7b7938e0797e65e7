/*
service.go - Reservation transaction coordinator

PURPOSE:
  Executes create, edit and delete as single atomic store transactions.
  This is the only code that writes reservations or slots.

CREATE:
  1. Validator: interval, duration, window, cooldown (fail fast, no writes)
  2. Canonicalize band name, compute day/group/slot grid
  3. In one transaction:
     a. head for (user, day) exists        -> AlreadyBookedToday
     b. head on a cooldown neighbour exists -> CooldownViolation
     c. ANY grid slot exists               -> SlotConflict (nothing claimed)
     d. write head, insert every slot

DELETE:
  Read head (NotFound / Forbidden / PastBooking), release each slot of the
  stored interval that is absent or ours, delete head. One transaction.

EDIT (same day, time only):
  Read head (NotFound / Forbidden / PastBooking), reject a move to another
  day (DayMismatch), reject if any new slot belongs to someone else, release
  old slots we no longer cover, write new slots, update head.

NO RETRIES:
  Conflicts mean a race was lost. The caller decides whether to resubmit
  with fresh input.

SEE ALSO:
  - validate.go: precondition checks
  - store.go: transaction contract
*/
package booking

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store     Store
	rules     Rules
	identity  *IdentityTable
	clock     Clock
	validator *Validator
	logger    *zap.Logger
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithIdentityTable(t *IdentityTable) Option {
	return func(s *Service) { s.identity = t }
}

func NewService(store Store, rules Rules, opts ...Option) *Service {
	s := &Service{
		store:    store,
		rules:    rules,
		identity: NewIdentityTable("", nil),
		clock:    SystemClock{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewValidator(rules, store, s.clock)
	return s
}

func (s *Service) Rules() Rules             { return s.rules }
func (s *Service) Identity() *IdentityTable { return s.identity }
func (s *Service) loc() *time.Location      { return s.rules.location() }

// Location is the zone that defines calendar days and slot keys.
func (s *Service) Location() *time.Location { return s.rules.location() }

// Window returns the days a new booking may currently start on.
func (s *Service) Window() Window { return s.validator.Window() }

// =============================================================================
// CREATE
// =============================================================================

// Create books [start, end) for user under bandName.
func (s *Service) Create(ctx context.Context, user UserID, bandName string, start, end time.Time) (CreateResult, error) {
	day := DayKeyOf(start, s.loc())

	if err := s.validator.Validate(ctx, user, start, end); err != nil {
		s.rejected("create", err)
		return CreateResult{}, err
	}

	bandKey, bandLabel := s.identity.Canonicalize(bandName)
	group := NewGroupID(user, day)
	cells, err := Expand(start, end, s.loc())
	if err != nil {
		err = newError(ErrInvalidInterval, user, day, "%v", err)
		s.rejected("create", err)
		return CreateResult{}, err
	}

	now := s.clock.Now()
	head := Reservation{
		UserID:    user,
		BandKey:   bandKey,
		BandName:  bandLabel,
		DayKey:    day,
		GroupID:   group,
		StartAt:   start,
		EndAt:     end,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.GetReservation(ctx, user, day)
		if err != nil {
			return err
		}
		if existing != nil {
			return newError(ErrAlreadyBookedToday, user, day, "you already have a booking on %s", day)
		}

		// Cooldown again, inside the transaction, so two concurrent
		// bookings on adjacent days by the same user cannot both commit.
		var neighbours []DayKey
		for _, d := range s.rules.CooldownDays(day) {
			if d != day {
				neighbours = append(neighbours, d)
			}
		}
		booked, err := UserDayKeys(ctx, tx, user, neighbours)
		if err != nil {
			return err
		}
		if len(booked) > 0 {
			return cooldownError(user, day, booked)
		}

		// All-or-nothing: look at every cell before claiming any.
		for _, c := range cells {
			slot, err := tx.GetSlot(ctx, c.Key)
			if err != nil {
				return err
			}
			if slot != nil {
				return newError(ErrSlotConflict, user, day, "%s is already taken", c.Start.In(s.loc()).Format("15:04"))
			}
		}

		if err := tx.PutReservation(ctx, head); err != nil {
			return err
		}
		for _, c := range cells {
			if err := tx.InsertSlot(ctx, slotFor(head, c, now)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = storeError(err, user, day)
		s.rejected("create", err)
		return CreateResult{}, err
	}

	s.logger.Info("reservation created",
		zap.String("user_id", string(user)),
		zap.String("day_key", string(day)),
		zap.String("group_id", string(group)),
		zap.String("band_key", bandKey),
		zap.Int("slots", len(cells)),
	)
	return CreateResult{DayKey: day, GroupID: group}, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes user's reservation on day and releases its slots.
func (s *Service) Delete(ctx context.Context, user UserID, day DayKey) (DayKey, error) {
	released := 0
	err := s.store.WithTx(ctx, func(tx Tx) error {
		head, err := s.ownedReservation(ctx, tx, user, day)
		if err != nil {
			return err
		}
		if err := s.checkNotPast(*head); err != nil {
			return err
		}

		cells, err := Expand(head.StartAt, head.EndAt, s.loc())
		if err != nil {
			return newError(ErrInvalidInterval, user, day, "stored interval is invalid: %v", err)
		}
		for _, c := range cells {
			ok, err := s.releaseSlot(ctx, tx, user, c.Key)
			if err != nil {
				return err
			}
			if ok {
				released++
			}
		}
		return tx.DeleteReservation(ctx, user, day)
	})
	if err != nil {
		err = storeError(err, user, day)
		s.rejected("delete", err)
		return "", err
	}

	s.logger.Info("reservation deleted",
		zap.String("user_id", string(user)),
		zap.String("day_key", string(day)),
		zap.Int("slots_released", released),
	)
	return day, nil
}

// =============================================================================
// EDIT
// =============================================================================

// Edit moves user's reservation on day to [newStart, newEnd) on the same day.
func (s *Service) Edit(ctx context.Context, user UserID, day DayKey, newStart, newEnd time.Time) error {
	if err := s.validator.CheckInterval(user, day, newStart, newEnd); err != nil {
		s.rejected("edit", err)
		return err
	}

	err := s.store.WithTx(ctx, func(tx Tx) error {
		head, err := s.ownedReservation(ctx, tx, user, day)
		if err != nil {
			return err
		}
		if err := s.checkNotPast(*head); err != nil {
			return err
		}
		if err := s.checkSameDay(*head, newStart, newEnd); err != nil {
			return err
		}

		oldCells, err := Expand(head.StartAt, head.EndAt, s.loc())
		if err != nil {
			return newError(ErrInvalidInterval, user, day, "stored interval is invalid: %v", err)
		}
		newCells, err := Expand(newStart, newEnd, s.loc())
		if err != nil {
			return newError(ErrInvalidInterval, user, day, "%v", err)
		}

		now := s.clock.Now()
		createdAt := make(map[SlotKey]time.Time, len(newCells))
		for _, c := range newCells {
			slot, err := tx.GetSlot(ctx, c.Key)
			if err != nil {
				return err
			}
			if slot == nil {
				continue
			}
			if !slot.OwnedBy(user) {
				return newError(ErrSlotConflict, user, day, "%s is already taken", c.Start.In(s.loc()).Format("15:04"))
			}
			createdAt[c.Key] = slot.CreatedAt
		}

		keep := cellKeys(newCells)
		for _, c := range oldCells {
			if _, ok := keep[c.Key]; ok {
				continue
			}
			if _, err := s.releaseSlot(ctx, tx, user, c.Key); err != nil {
				return err
			}
		}

		head.StartAt = newStart
		head.EndAt = newEnd
		head.UpdatedAt = now
		for _, c := range newCells {
			at, ok := createdAt[c.Key]
			if !ok {
				at = now
			}
			if err := tx.PutSlot(ctx, slotFor(*head, c, at)); err != nil {
				return err
			}
		}
		return tx.PutReservation(ctx, *head)
	})
	if err != nil {
		err = storeError(err, user, day)
		s.rejected("edit", err)
		return err
	}

	s.logger.Info("reservation edited",
		zap.String("user_id", string(user)),
		zap.String("day_key", string(day)),
		zap.Time("start", newStart),
		zap.Time("end", newEnd),
	)
	return nil
}

// =============================================================================
// HEAD READS
// =============================================================================

// GetReservation returns user's head record for day.
func (s *Service) GetReservation(ctx context.Context, user UserID, day DayKey) (*Reservation, error) {
	r, err := s.store.GetReservation(ctx, user, day)
	if err != nil {
		return nil, storeError(err, user, day)
	}
	if r == nil {
		return nil, newError(ErrNotFound, user, day, "no booking on %s", day)
	}
	return r, nil
}

// UserDayKeys reports which of days user already has a booking on.
func (s *Service) UserDayKeys(ctx context.Context, user UserID, days []DayKey) ([]DayKey, error) {
	found, err := UserDayKeys(ctx, s.store, user, days)
	if err != nil {
		return nil, storeError(err, user, "")
	}
	return found, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ownedReservation loads the head for (user, day). Heads are keyed by user,
// so Forbidden only fires for a store that returns a record filed under the
// wrong owner.
func (s *Service) ownedReservation(ctx context.Context, tx Tx, user UserID, day DayKey) (*Reservation, error) {
	head, err := tx.GetReservation(ctx, user, day)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, newError(ErrNotFound, user, day, "no booking on %s", day)
	}
	if head.UserID != user {
		return nil, newError(ErrForbidden, user, day, "booking belongs to another user")
	}
	return head, nil
}

func (s *Service) checkNotPast(head Reservation) error {
	now := s.clock.Now()
	today := DayKeyOf(now, s.loc())
	if head.DayKey.Before(today) || !now.Before(head.EndAt) {
		return newError(ErrPastBooking, head.UserID, head.DayKey, "booking has already ended")
	}
	return nil
}

// checkSameDay allows newEnd to touch the following midnight since
// intervals are half-open.
func (s *Service) checkSameDay(head Reservation, newStart, newEnd time.Time) error {
	midnight, err := head.DayKey.Midnight(s.loc())
	if err != nil {
		return newError(ErrDayMismatch, head.UserID, head.DayKey, "%v", err)
	}
	next, _ := head.DayKey.AddDays(1).Midnight(s.loc())
	if newStart.Before(midnight) || !newStart.Before(next) || newEnd.After(next) {
		return newError(ErrDayMismatch, head.UserID, head.DayKey,
			"edits must stay on %s; delete and book again to change the day", head.DayKey)
	}
	return nil
}

// releaseSlot deletes key if it is ours. A slot owned by someone else is
// left alone even though our grid covers it.
func (s *Service) releaseSlot(ctx context.Context, tx Tx, user UserID, key SlotKey) (bool, error) {
	slot, err := tx.GetSlot(ctx, key)
	if err != nil {
		return false, err
	}
	if slot == nil {
		return false, nil
	}
	if !slot.OwnedBy(user) {
		s.logger.Warn("slot owned by another user left in place",
			zap.String("slot_key", string(key)),
			zap.String("user_id", string(user)),
			zap.String("owner_id", string(slot.UserID)),
		)
		return false, nil
	}
	return true, tx.DeleteSlot(ctx, key)
}

func (s *Service) rejected(op string, err error) {
	kind := "unknown"
	if k := KindOf(err); k != nil {
		kind = k.Error()
	}
	s.logger.Warn("reservation rejected",
		zap.String("op", op),
		zap.String("kind", kind),
		zap.Error(err),
	)
}

func slotFor(head Reservation, c Cell, createdAt time.Time) Slot {
	return Slot{
		Key:       c.Key,
		DayKey:    c.DayKey,
		StartAt:   c.Start,
		EndAt:     c.End,
		UserID:    head.UserID,
		BandKey:   head.BandKey,
		BandName:  head.BandName,
		GroupID:   head.GroupID,
		CreatedAt: createdAt,
	}
}
