// Package availability derives free slot intervals for a resource on a
// calendar date from the occupied reservations in the store.
package availability

import (
	"time"

	"booking-bot/internal/clock"
	"booking-bot/internal/models"
	"booking-bot/internal/timeutil"
)

type Store interface {
	ListBusyOnDate(resourceID int64, date time.Time) ([]models.Reservation, error)
}

type Calculator struct {
	store Store
	clk   clock.Clock

	step         time.Duration
	workingStart time.Duration
	workingEnd   time.Duration
}

func New(store Store, clk clock.Clock, step, workingStart, workingEnd time.Duration) *Calculator {
	return &Calculator{
		store:        store,
		clk:          clk,
		step:         step,
		workingStart: workingStart,
		workingEnd:   workingEnd,
	}
}

// FreeSlots returns the ordered maximal free half-open intervals for the
// resource on date. On the current day the window starts no earlier than
// now rounded up to the grid, so slots already underway are not offered.
// Gaps shorter than one step are suppressed.
func (c *Calculator) FreeSlots(resourceID int64, date time.Time) ([]timeutil.Interval, error) {
	busy, err := c.store.ListBusyOnDate(resourceID, date)
	if err != nil {
		return nil, err
	}

	day := timeutil.Midnight(date)
	window := timeutil.Interval{
		Start: timeutil.At(day, c.workingStart),
		End:   timeutil.At(day, c.workingEnd),
	}

	now := c.clk.Now()
	if timeutil.SameDay(now, day) {
		effective := timeutil.QuantizeUp(now, c.step)
		if effective.After(window.Start) {
			window.Start = effective
		}
	}
	if !window.Start.Before(window.End) {
		return nil, nil
	}

	var free []timeutil.Interval
	cursor := window.Start
	for _, b := range busy {
		// Occupied rows come back sorted and disjoint; anything ending
		// before the cursor was clipped away by the effective start.
		if !b.TimeEnd.After(cursor) {
			continue
		}
		start := b.TimeStart
		if start.After(window.End) {
			break
		}
		if start.After(cursor) {
			gap := timeutil.Interval{Start: cursor, End: start}
			if gap.End.After(window.End) {
				gap.End = window.End
			}
			if gap.Duration() >= c.step {
				free = append(free, gap)
			}
		}
		if b.TimeEnd.After(cursor) {
			cursor = b.TimeEnd
		}
	}

	if cursor.Before(window.End) {
		gap := timeutil.Interval{Start: cursor, End: window.End}
		if gap.Duration() >= c.step {
			free = append(free, gap)
		}
	}

	return free, nil
}
