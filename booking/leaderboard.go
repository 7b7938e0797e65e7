/*
leaderboard.go - Practice time per band

PURPOSE:
  Derives total minutes and session counts per canonical band from what is
  committed. Nothing here is persisted.

TWO PATHS:
  Primary:  scan head records. minutes = round((end-start)/1min),
            sessions = number of heads.
  Fallback: scan slots when the store cannot list heads across users.
            Every slot counts SlotWidth minutes, sessions = distinct
            GroupIDs seen per band.

  For data without edits both paths agree on minutes (exactly, when every
  booking is a multiple of SlotWidth). Sessions may differ after edits;
  that is accepted for the fallback.
*/
package booking

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

const DefaultLeaderboardLimit = 10

// TopByMinutes returns up to limit bands ordered by total minutes,
// highest first. limit <= 0 uses DefaultLeaderboardLimit.
func (s *Service) TopByMinutes(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	if scanner, ok := s.store.(ReservationScanner); ok {
		heads, err := scanner.AllReservations(ctx)
		switch {
		case err == nil:
			return topN(AggregateReservations(heads, s.identity, s.logger), limit), nil
		case errors.Is(err, ErrScanUnsupported):
			s.logger.Info("head scan unavailable, aggregating from slots")
		default:
			return nil, storeError(err, "", "")
		}
	}

	scanner, ok := s.store.(SlotScanner)
	if !ok {
		return nil, &Error{Kind: ErrStoreUnavailable, Reason: "store supports neither head nor slot scans"}
	}
	slots, err := scanner.AllSlots(ctx)
	if err != nil {
		return nil, storeError(err, "", "")
	}
	return topN(AggregateSlots(slots, s.identity, s.logger), limit), nil
}

// AggregateReservations is the primary path.
func AggregateReservations(heads []Reservation, ids *IdentityTable, logger *zap.Logger) []LeaderboardEntry {
	if logger == nil {
		logger = zap.NewNop()
	}
	acc := make(map[string]*LeaderboardEntry)
	for _, r := range heads {
		if err := r.Validate(); err != nil {
			logger.Warn("skipping malformed reservation", zap.String("group_id", string(r.GroupID)), zap.Error(err))
			continue
		}
		e := entryFor(acc, r.BandKey, r.BandName, ids)
		e.Minutes += int(math.Round(float64(r.Duration()) / float64(time.Minute)))
		e.Sessions++
	}
	return sortEntries(acc)
}

// AggregateSlots is the fallback path.
func AggregateSlots(slots []Slot, ids *IdentityTable, logger *zap.Logger) []LeaderboardEntry {
	if logger == nil {
		logger = zap.NewNop()
	}
	perSlot := int(SlotWidth / time.Minute)
	acc := make(map[string]*LeaderboardEntry)
	groups := make(map[string]map[GroupID]struct{})
	for _, sl := range slots {
		if err := sl.Validate(); err != nil {
			logger.Warn("skipping malformed slot", zap.String("slot_key", string(sl.Key)), zap.Error(err))
			continue
		}
		e := entryFor(acc, sl.BandKey, sl.BandName, ids)
		e.Minutes += perSlot

		g := sl.GroupID
		if g == "" {
			g = NewGroupID(sl.UserID, sl.DayKey)
		}
		if groups[e.BandKey] == nil {
			groups[e.BandKey] = make(map[GroupID]struct{})
		}
		groups[e.BandKey][g] = struct{}{}
	}
	for key, e := range acc {
		e.Sessions = len(groups[key])
	}
	return sortEntries(acc)
}

// entryFor finds or creates the accumulator for a record. Records written
// before band keys existed only carry a name; derive the key from it.
// Bands missing from the identity table are labelled with the smallest
// spelling seen, whatever order the store returns records in.
func entryFor(acc map[string]*LeaderboardEntry, bandKey, bandName string, ids *IdentityTable) *LeaderboardEntry {
	if bandKey == "" {
		bandKey = NormalizeKey(bandName)
	}
	label := ids.Label(bandKey, bandName)
	e, ok := acc[bandKey]
	if !ok {
		e = &LeaderboardEntry{BandKey: bandKey, BandName: label}
		acc[bandKey] = e
	} else if label != "" && (e.BandName == "" || label < e.BandName) {
		e.BandName = label
	}
	return e
}

func sortEntries(acc map[string]*LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(acc))
	for _, e := range acc {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Minutes != out[j].Minutes {
			return out[i].Minutes > out[j].Minutes
		}
		if out[i].Sessions != out[j].Sessions {
			return out[i].Sessions > out[j].Sessions
		}
		return out[i].BandKey < out[j].BandKey
	})
	return out
}

func topN(entries []LeaderboardEntry, n int) []LeaderboardEntry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}
