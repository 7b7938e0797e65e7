package booking

import (
	"fmt"
	"time"
)

// SlotWidth is the allocation granularity. Nothing finer is bookable.
const SlotWidth = 5 * time.Minute

// Cell is one grid cell of an expanded interval.
type Cell struct {
	Key    SlotKey
	DayKey DayKey
	Start  time.Time
	End    time.Time
}

// SlotKeyAt returns the key of the cell whose grid line is at or before t.
func SlotKeyAt(t time.Time, loc *time.Location) SlotKey {
	line := gridLine(t, loc)
	return SlotKey(fmt.Sprintf("%s_%s", DayKeyOf(line, loc), line.In(loc).Format("1504")))
}

// gridLine floors t to the 5-minute grid of the local wall clock.
func gridLine(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	m := lt.Minute() - lt.Minute()%int(SlotWidth/time.Minute)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), m, 0, 0, loc)
}

// Expand splits [start, end) into consecutive grid cells. The first cell is
// keyed by the grid line at or before start and the last one is clipped to
// end. Each cell carries its own day, so an interval crossing midnight
// yields keys on both days. The result is a fresh slice on every call.
func Expand(start, end time.Time, loc *time.Location) ([]Cell, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidInterval,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	var cells []Cell
	for line := gridLine(start, loc); line.Before(end); line = line.Add(SlotWidth) {
		c := Cell{
			Key:    SlotKey(fmt.Sprintf("%s_%s", DayKeyOf(line, loc), line.In(loc).Format("1504"))),
			DayKey: DayKeyOf(line, loc),
			Start:  line,
			End:    line.Add(SlotWidth),
		}
		if c.Start.Before(start) {
			c.Start = start
		}
		if c.End.After(end) {
			c.End = end
		}
		cells = append(cells, c)
	}
	return cells, nil
}

// cellKeys returns the keys of cells as a set.
func cellKeys(cells []Cell) map[SlotKey]struct{} {
	set := make(map[SlotKey]struct{}, len(cells))
	for _, c := range cells {
		set[c.Key] = struct{}{}
	}
	return set
}
