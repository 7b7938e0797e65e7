package booking

import (
	"context"
	"strings"
	"time"
)

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now" so date-dependent rules can be tested.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// =============================================================================
// RULES - Fairness limits
// =============================================================================

type Rules struct {
	// Location defines calendar days and slot wall-clock keys.
	Location *time.Location

	// MaxDuration caps end - start.
	MaxDuration time.Duration

	// HorizonDays is how many days after today a booking may start on.
	// 2 means today, tomorrow and the day after.
	HorizonDays int

	// A reservation on day D blocks new ones on D-CooldownDaysAfter ..
	// D+CooldownDaysBefore. Seen from the new booking's day N, the lookup
	// covers N-CooldownDaysBefore .. N+CooldownDaysAfter.
	CooldownDaysBefore int
	CooldownDaysAfter  int
}

func DefaultRules() Rules {
	return Rules{
		Location:           time.Local,
		MaxDuration:        180 * time.Minute,
		HorizonDays:        2,
		CooldownDaysBefore: 1,
		CooldownDaysAfter:  2,
	}
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// CooldownDays lists the day keys whose existing reservation blocks a new
// booking on day, in ascending order.
func (r Rules) CooldownDays(day DayKey) []DayKey {
	days := make([]DayKey, 0, r.CooldownDaysBefore+r.CooldownDaysAfter+1)
	for n := -r.CooldownDaysBefore; n <= r.CooldownDaysAfter; n++ {
		days = append(days, day.AddDays(n))
	}
	return days
}

// =============================================================================
// VALIDATOR - Fail-fast preconditions
// =============================================================================

// Validator runs the cheap checks before a transaction is attempted. The
// transaction repeats the race-sensitive ones; passing here guarantees
// nothing about commit.
type Validator struct {
	rules  Rules
	reader Reader
	clock  Clock
}

func NewValidator(rules Rules, reader Reader, clock Clock) *Validator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Validator{rules: rules, reader: reader, clock: clock}
}

// Validate runs every check in order and returns the first failure.
func (v *Validator) Validate(ctx context.Context, user UserID, start, end time.Time) error {
	day := DayKeyOf(start, v.rules.location())
	if err := v.CheckInterval(user, day, start, end); err != nil {
		return err
	}
	if err := v.CheckWindow(user, start); err != nil {
		return err
	}
	return v.CheckCooldown(ctx, user, day)
}

// CheckInterval enforces end > start and the duration cap.
func (v *Validator) CheckInterval(user UserID, day DayKey, start, end time.Time) error {
	if !end.After(start) {
		return newError(ErrInvalidInterval, user, day, "end time must be after start time")
	}
	if d := end.Sub(start); d > v.rules.MaxDuration {
		return newError(ErrDurationExceeded, user, day, "duration %s exceeds the %s limit",
			d, v.rules.MaxDuration)
	}
	return nil
}

// CheckWindow compares calendar days, not a wall-clock offset: at 23:59
// today+2 is still bookable until midnight.
func (v *Validator) CheckWindow(user UserID, start time.Time) error {
	w := v.Window()
	day := DayKeyOf(start, v.rules.location())
	if day.Before(w.MinDay) {
		return newError(ErrOutOfBookingWindow, user, day, "cannot book a day in the past (earliest %s)", w.MinDay)
	}
	if day.After(w.MaxDay) {
		return newError(ErrOutOfBookingWindow, user, day, "bookings open only until %s", w.MaxDay)
	}
	return nil
}

// CheckCooldown does one point lookup per day in the cooldown window.
func (v *Validator) CheckCooldown(ctx context.Context, user UserID, day DayKey) error {
	booked, err := UserDayKeys(ctx, v.reader, user, v.rules.CooldownDays(day))
	if err != nil {
		return storeError(err, user, day)
	}
	if len(booked) > 0 {
		return cooldownError(user, day, booked)
	}
	return nil
}

// Window returns today's bookable range.
func (v *Validator) Window() Window {
	today := DayKeyOf(v.clock.Now(), v.rules.location())
	return Window{MinDay: today, MaxDay: today.AddDays(v.rules.HorizonDays)}
}

func cooldownError(user UserID, day DayKey, booked []DayKey) *Error {
	keys := make([]string, len(booked))
	for i, d := range booked {
		keys[i] = string(d)
	}
	return newError(ErrCooldownViolation, user, day,
		"consecutive bookings need a gap of at least two days (already booked: %s)", strings.Join(keys, ", "))
}

// UserDayKeys returns which of days already hold a reservation for user.
func UserDayKeys(ctx context.Context, r Reader, user UserID, days []DayKey) ([]DayKey, error) {
	var found []DayKey
	for _, d := range days {
		res, err := r.GetReservation(ctx, user, d)
		if err != nil {
			return nil, err
		}
		if res != nil {
			found = append(found, d)
		}
	}
	return found, nil
}
