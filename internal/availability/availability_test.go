package availability

import (
	"testing"
	"time"

	"booking-bot/internal/clock"
	"booking-bot/internal/models"
	"booking-bot/internal/timeutil"
)

type fakeStore struct {
	busy []models.Reservation
}

func (f *fakeStore) ListBusyOnDate(resourceID int64, date time.Time) ([]models.Reservation, error) {
	return f.busy, nil
}

var testLoc = time.UTC

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 3, 12, 0, 0, 0, 0, testLoc)
}

func at(d time.Time, hh, mm int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, d.Location())
}

func reservation(start, end time.Time) models.Reservation {
	return models.Reservation{
		TimeStart: start,
		TimeEnd:   end,
		Status:    models.StatusActive,
	}
}

func newCalc(store Store, now time.Time) *Calculator {
	return New(store, clock.NewFake(now), 30*time.Minute, 9*time.Hour, 18*time.Hour)
}

func TestFreeSlotsEmptyDay(t *testing.T) {
	d := day(t)
	c := newCalc(&fakeStore{}, at(d.AddDate(0, 0, -1), 12, 0))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected one slot, got %v", slots)
	}
	want := timeutil.Interval{Start: at(d, 9, 0), End: at(d, 18, 0)}
	if slots[0] != want {
		t.Errorf("got %v, want %v", slots[0], want)
	}
}

func TestFreeSlotsGapsBetweenReservations(t *testing.T) {
	d := day(t)
	store := &fakeStore{busy: []models.Reservation{
		reservation(at(d, 10, 0), at(d, 11, 0)),
		reservation(at(d, 13, 30), at(d, 15, 0)),
	}}
	c := newCalc(store, at(d.AddDate(0, 0, -1), 12, 0))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	want := []timeutil.Interval{
		{Start: at(d, 9, 0), End: at(d, 10, 0)},
		{Start: at(d, 11, 0), End: at(d, 13, 30)},
		{Start: at(d, 15, 0), End: at(d, 18, 0)},
	}
	if len(slots) != len(want) {
		t.Fatalf("got %v, want %v", slots, want)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slot %d: got %v, want %v", i, slots[i], want[i])
		}
	}
}

func TestFreeSlotsBackToBackProduceNoGap(t *testing.T) {
	d := day(t)
	store := &fakeStore{busy: []models.Reservation{
		reservation(at(d, 9, 0), at(d, 12, 0)),
		reservation(at(d, 12, 0), at(d, 14, 0)),
	}}
	c := newCalc(store, at(d.AddDate(0, 0, -1), 12, 0))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	want := timeutil.Interval{Start: at(d, 14, 0), End: at(d, 18, 0)}
	if len(slots) != 1 || slots[0] != want {
		t.Errorf("got %v, want [%v]", slots, want)
	}
}

func TestFreeSlotsTodayStartsAtQuantizedNow(t *testing.T) {
	d := day(t)
	c := newCalc(&fakeStore{}, at(d, 10, 12))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	want := timeutil.Interval{Start: at(d, 10, 30), End: at(d, 18, 0)}
	if len(slots) != 1 || slots[0] != want {
		t.Errorf("got %v, want [%v]", slots, want)
	}
}

func TestFreeSlotsTodayBeforeOpening(t *testing.T) {
	d := day(t)
	c := newCalc(&fakeStore{}, at(d, 7, 45))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	want := timeutil.Interval{Start: at(d, 9, 0), End: at(d, 18, 0)}
	if len(slots) != 1 || slots[0] != want {
		t.Errorf("got %v, want [%v]", slots, want)
	}
}

func TestFreeSlotsAfterClosing(t *testing.T) {
	d := day(t)
	c := newCalc(&fakeStore{}, at(d, 18, 30))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots after closing, got %v", slots)
	}
}

func TestFreeSlotsReservationPastClosingTruncated(t *testing.T) {
	d := day(t)
	store := &fakeStore{busy: []models.Reservation{
		reservation(at(d, 16, 0), at(d, 19, 0)),
	}}
	c := newCalc(store, at(d.AddDate(0, 0, -1), 12, 0))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	want := timeutil.Interval{Start: at(d, 9, 0), End: at(d, 16, 0)}
	if len(slots) != 1 || slots[0] != want {
		t.Errorf("got %v, want [%v]", slots, want)
	}
}

func TestFreeSlotsGapShorterThanStepSuppressed(t *testing.T) {
	d := day(t)
	store := &fakeStore{busy: []models.Reservation{
		reservation(at(d, 9, 0), at(d, 17, 45)),
	}}
	c := newCalc(store, at(d.AddDate(0, 0, -1), 12, 0))

	slots, err := c.FreeSlots(1, d)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Errorf("expected 15-minute tail suppressed, got %v", slots)
	}
}
