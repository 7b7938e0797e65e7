package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tnsmusic/rehearsal-booking/booking"
	"github.com/tnsmusic/rehearsal-booking/booking/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// bkk matches the room's zone without depending on the tz database.
var bkk = time.FixedZone("ICT", 7*60*60)

func at(day, hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, bkk)
	if err != nil {
		panic(err)
	}
	return t
}

func testRules() booking.Rules {
	rules := booking.DefaultRules()
	rules.Location = bkk
	return rules
}

// june1 is "today" for most tests.
var june1 = at("2024-06-01", "09:00")

func newTestService(t *testing.T, mem *store.Memory, now time.Time, opts ...booking.Option) *booking.Service {
	t.Helper()
	opts = append([]booking.Option{booking.WithClock(booking.FixedClock(now))}, opts...)
	return booking.NewService(mem, testRules(), opts...)
}

// seed books [from, to) on day for user with a clock set to that morning,
// so any day can be seeded regardless of the test's "today".
func seed(t *testing.T, mem *store.Memory, user booking.UserID, band, day, from, to string) {
	t.Helper()
	svc := newTestService(t, mem, at(day, "00:00"))
	_, err := svc.Create(context.Background(), user, band, at(day, from), at(day, to))
	require.NoError(t, err)
}

func slotKeys(t *testing.T, mem *store.Memory) map[booking.SlotKey]booking.UserID {
	t.Helper()
	slots, err := mem.AllSlots(context.Background())
	require.NoError(t, err)
	out := make(map[booking.SlotKey]booking.UserID, len(slots))
	for _, s := range slots {
		out[s.Key] = s.UserID
	}
	return out
}
