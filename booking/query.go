package booking

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// ListForDay returns the day's bookings rebuilt from its slots, ordered by
// start. Head records are not consulted, so a missing or stale head never
// hides a slot that is actually taken.
func (s *Service) ListForDay(ctx context.Context, day DayKey) ([]DaySummary, error) {
	slots, err := s.store.SlotsForDay(ctx, day)
	if err != nil {
		return nil, storeError(err, "", day)
	}
	return MergeDay(slots, s.logger), nil
}

// MergeDay groups slots by GroupID and keeps the earliest start and the
// latest end of each group. The result does not depend on input order.
func MergeDay(slots []Slot, logger *zap.Logger) []DaySummary {
	if logger == nil {
		logger = zap.NewNop()
	}

	groups := make(map[GroupID]*DaySummary)
	for _, sl := range slots {
		if err := sl.Validate(); err != nil {
			logger.Warn("skipping malformed slot", zap.String("slot_key", string(sl.Key)), zap.Error(err))
			continue
		}
		g := sl.GroupID
		if g == "" {
			g = NewGroupID(sl.UserID, sl.DayKey)
		}

		cur, ok := groups[g]
		if !ok {
			groups[g] = &DaySummary{
				UserID:   sl.UserID,
				BandName: sl.BandName,
				DayKey:   sl.DayKey,
				GroupID:  g,
				StartAt:  sl.StartAt,
				EndAt:    sl.EndAt,
			}
			continue
		}
		if sl.StartAt.Before(cur.StartAt) {
			cur.StartAt = sl.StartAt
		}
		if sl.EndAt.After(cur.EndAt) {
			cur.EndAt = sl.EndAt
		}
		// Slots of one group normally share a name; pick the smallest so the
		// result stays order-independent when they do not.
		if sl.BandName < cur.BandName {
			cur.BandName = sl.BandName
		}
	}

	out := make([]DaySummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}
