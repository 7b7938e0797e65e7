package booking_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnsmusic/rehearsal-booking/booking"
	"github.com/tnsmusic/rehearsal-booking/booking/store"
)

// =============================================================================
// DURATION
// =============================================================================

func TestCreate_DurationBound(t *testing.T) {
	// GIVEN: Max duration of 180 minutes
	// WHEN: Booking exactly 180, then 181 minutes
	// THEN: The first succeeds, the second fails with DurationExceeded

	ctx := context.Background()
	start := at("2024-06-02", "10:00")

	svc := newTestService(t, store.NewMemory(), june1)
	_, err := svc.Create(ctx, "u1", "TNS", start, start.Add(180*time.Minute))
	require.NoError(t, err)

	svc = newTestService(t, store.NewMemory(), june1)
	_, err = svc.Create(ctx, "u1", "TNS", start, start.Add(181*time.Minute))
	assert.ErrorIs(t, err, booking.ErrDurationExceeded)
	assert.True(t, booking.IsClientError(err))
}

func TestCreate_EndNotAfterStart(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newTestService(t, mem, june1)
	start := at("2024-06-02", "10:00")

	_, err := svc.Create(ctx, "u1", "TNS", start, start)
	assert.ErrorIs(t, err, booking.ErrInvalidInterval)

	_, err = svc.Create(ctx, "u1", "TNS", start, start.Add(-time.Hour))
	assert.ErrorIs(t, err, booking.ErrInvalidInterval)
	assert.Empty(t, slotKeys(t, mem), "validation failures write nothing")
}

// =============================================================================
// HORIZON
// =============================================================================

func TestCreate_HorizonBound(t *testing.T) {
	// GIVEN: Today is 2024-06-01
	// WHEN: Booking on 06-03, on 06-04 and on 05-31
	// THEN: Only 06-03 is inside the window

	ctx := context.Background()

	svc := newTestService(t, store.NewMemory(), june1)
	_, err := svc.Create(ctx, "u1", "TNS", at("2024-06-03", "20:00"), at("2024-06-03", "21:00"))
	require.NoError(t, err)

	svc = newTestService(t, store.NewMemory(), june1)
	_, err = svc.Create(ctx, "u1", "TNS", at("2024-06-04", "00:00"), at("2024-06-04", "01:00"))
	assert.ErrorIs(t, err, booking.ErrOutOfBookingWindow)

	_, err = svc.Create(ctx, "u1", "TNS", at("2024-05-31", "20:00"), at("2024-05-31", "21:00"))
	assert.ErrorIs(t, err, booking.ErrOutOfBookingWindow)
}

func TestCreate_HorizonIsCalendarDaysNotHours(t *testing.T) {
	// GIVEN: It is 23:59 on 06-01
	// WHEN: Booking late on 06-03 (more than 48 hours ahead)
	// THEN: Allowed, the horizon compares calendar days

	svc := newTestService(t, store.NewMemory(), at("2024-06-01", "23:59"))
	_, err := svc.Create(context.Background(), "u1", "TNS", at("2024-06-03", "23:00"), at("2024-06-03", "23:55"))
	require.NoError(t, err)
}

func TestWindow(t *testing.T) {
	svc := newTestService(t, store.NewMemory(), june1)
	w := svc.Window()
	assert.Equal(t, booking.DayKey("2024-06-01"), w.MinDay)
	assert.Equal(t, booking.DayKey("2024-06-03"), w.MaxDay)
}

// =============================================================================
// COOLDOWN
// =============================================================================

func TestCreate_Cooldown(t *testing.T) {
	// GIVEN: A new booking for 2024-06-02 and an existing one at some offset
	// WHEN: The existing booking is on N-1, N, N+1 or N+2
	// THEN: CooldownViolation; on N-2 or N+3 the booking succeeds

	newDay := booking.DayKey("2024-06-02")
	tests := []struct {
		offset  int
		blocked bool
	}{
		{-2, false},
		{-1, true},
		{0, true},
		{1, true},
		{2, true},
		{3, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("existing at %+d", tt.offset), func(t *testing.T) {
			ctx := context.Background()
			mem := store.NewMemory()
			seed(t, mem, "u1", "TNS", string(newDay.AddDays(tt.offset)), "08:00", "09:00")

			svc := newTestService(t, mem, june1)
			_, err := svc.Create(ctx, "u1", "TNS", at(string(newDay), "18:00"), at(string(newDay), "19:00"))
			if tt.blocked {
				assert.ErrorIs(t, err, booking.ErrCooldownViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreate_CooldownIsPerUser(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem, "u1", "TNS", "2024-06-02", "08:00", "09:00")

	svc := newTestService(t, mem, june1)
	_, err := svc.Create(ctx, "u2", "Other", at("2024-06-02", "18:00"), at("2024-06-02", "19:00"))
	require.NoError(t, err)
}

func TestCooldownDays_AcrossMonthEnd(t *testing.T) {
	days := testRules().CooldownDays("2024-06-30")
	assert.Equal(t, []booking.DayKey{"2024-06-29", "2024-06-30", "2024-07-01", "2024-07-02"}, days)
}

func TestUserDayKeys(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem, "u1", "TNS", "2024-06-02", "08:00", "09:00")

	svc := newTestService(t, mem, june1)
	found, err := svc.UserDayKeys(ctx, "u1", []booking.DayKey{"2024-06-01", "2024-06-02", "2024-06-03"})
	require.NoError(t, err)
	assert.Equal(t, []booking.DayKey{"2024-06-02"}, found)
}
