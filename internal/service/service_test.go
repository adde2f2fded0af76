package service

import (
	"errors"
	"testing"
	"time"

	"booking-bot/internal/clock"
	"booking-bot/internal/models"
)

type memStore struct {
	users        map[int64]*models.User
	resources    map[int64]*models.Resource
	reservations map[int64]*models.Reservation
	nextID       int64
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int64]*models.User),
		resources:    make(map[int64]*models.Resource),
		reservations: make(map[int64]*models.Reservation),
		nextID:       1,
	}
}

func (m *memStore) GetUser(userID int64) (*models.User, error) {
	u, ok := m.users[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetResource(resourceID int64) (*models.Resource, error) {
	r, ok := m.resources[resourceID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) findConflict(resourceID int64, start, end time.Time, excludeID int64) *models.Reservation {
	for _, b := range m.reservations {
		if b.ID == excludeID || b.ResourceID != resourceID {
			continue
		}
		if b.Status != models.StatusPendingConfirmation && b.Status != models.StatusActive {
			continue
		}
		if b.TimeStart.Before(end) && b.TimeEnd.After(start) {
			return b
		}
	}
	return nil
}

func (m *memStore) InsertReservation(b *models.Reservation) (*models.Reservation, error) {
	if c := m.findConflict(b.ResourceID, b.TimeStart, b.TimeEnd, 0); c != nil {
		return nil, &models.OverlapError{Conflict: *c, OwnerName: c.UserName}
	}
	cp := *b
	cp.ID = m.nextID
	m.nextID++
	m.reservations[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) FindReservation(reservationID int64) (*models.Reservation, error) {
	b, ok := m.reservations[reservationID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) TransitionStatus(reservationID int64, from, to models.Status) error {
	b, ok := m.reservations[reservationID]
	if !ok || b.Status != from {
		return models.ErrStaleState
	}
	b.Status = to
	return nil
}

func (m *memStore) ExtendEnd(reservationID int64, expectedEnd, newEnd time.Time) error {
	b, ok := m.reservations[reservationID]
	if !ok {
		return models.ErrNotFound
	}
	if c := m.findConflict(b.ResourceID, expectedEnd, newEnd, reservationID); c != nil {
		return &models.OverlapError{Conflict: *c, OwnerName: c.UserName}
	}
	if b.Status != models.StatusActive || !b.TimeEnd.Equal(expectedEnd) {
		return models.ErrStaleState
	}
	b.ExtensionTotal += newEnd.Sub(b.TimeEnd)
	b.TimeEnd = newEnd
	return nil
}

func (m *memStore) ListLiveForUser(userID int64, now time.Time) ([]models.Reservation, error) {
	var out []models.Reservation
	for _, b := range m.reservations {
		if b.UserID != userID || b.Status.Terminal() || !b.TimeEnd.After(now) {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (m *memStore) ListBusyOnDate(resourceID int64, date time.Time) ([]models.Reservation, error) {
	var out []models.Reservation
	for _, b := range m.reservations {
		if b.ResourceID != resourceID || b.Status.Terminal() {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

const (
	ownerID    = int64(100)
	strangerID = int64(200)
	roomID     = int64(1)
)

func testDay() time.Time {
	return time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
}

func at(hh, mm int) time.Time {
	d := testDay()
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, d.Location())
}

func fixture(now time.Time) (*Service, *memStore, *clock.Fake) {
	store := newMemStore()
	store.users[ownerID] = &models.User{ID: ownerID, FullName: "Owner", Approved: true}
	store.users[strangerID] = &models.User{ID: strangerID, FullName: "Stranger", Approved: true}
	store.resources[roomID] = &models.Resource{ID: roomID, Name: "Room A", Category: "rooms", Active: true}

	clk := clock.NewFake(now)
	svc := New(store, clk, Config{
		Step:         30 * time.Minute,
		WorkingStart: 9 * time.Hour,
		WorkingEnd:   18 * time.Hour,
		MaxDuration:  8 * time.Hour,
	})
	return svc, store, clk
}

func TestCreateHappyPath(t *testing.T) {
	svc, _, _ := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != models.StatusPendingConfirmation {
		t.Errorf("status = %s, want pending_confirmation", b.Status)
	}
	if !b.TimeEnd.Equal(at(11, 0)) {
		t.Errorf("end = %v, want 11:00", b.TimeEnd)
	}
	if !b.Date.Equal(testDay()) {
		t.Errorf("date = %v, want midnight of start day", b.Date)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		start    time.Time
		duration time.Duration
		want     error
	}{
		{"unaligned start", at(9, 0), at(10, 10), time.Hour, models.ErrInvalidInput},
		{"unaligned duration", at(9, 0), at(10, 0), 45 * time.Minute, models.ErrInvalidInput},
		{"zero duration", at(9, 0), at(10, 0), 0, models.ErrInvalidInput},
		{"before opening", at(8, 0), at(8, 30), time.Hour, models.ErrOutsideWorkingHours},
		{"past closing", at(9, 0), at(17, 30), time.Hour, models.ErrOutsideWorkingHours},
		{"over max duration", at(9, 0), at(9, 0), 8*time.Hour + 30*time.Minute, models.ErrLimitExceeded},
		{"in the past", at(12, 0), at(11, 0), time.Hour, models.ErrTimeInPast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := fixture(tt.now)
			_, err := svc.Create(ownerID, roomID, tt.start, tt.duration)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateToleratesHalfStepPast(t *testing.T) {
	// now 10:10, start 10:00: ten minutes late is within half a step.
	svc, _, _ := fixture(at(10, 10))

	if _, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour); err != nil {
		t.Fatalf("start within grace rejected: %v", err)
	}
}

func TestCreateInactiveAccounts(t *testing.T) {
	svc, store, _ := fixture(at(9, 0))

	store.users[ownerID].Blocked = true
	if _, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour); !errors.Is(err, models.ErrAccountInactive) {
		t.Errorf("blocked user: got %v, want ErrAccountInactive", err)
	}

	store.users[ownerID].Blocked = false
	store.users[ownerID].Approved = false
	if _, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour); !errors.Is(err, models.ErrAccountInactive) {
		t.Errorf("unapproved user: got %v, want ErrAccountInactive", err)
	}

	store.users[ownerID].Approved = true
	store.resources[roomID].Active = false
	if _, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour); !errors.Is(err, models.ErrResourceInactive) {
		t.Errorf("inactive resource: got %v, want ErrResourceInactive", err)
	}
}

// Deactivated accounts keep their old inline keyboards; presses coming
// through them must be rejected by every lifecycle operation.
func TestLifecycleRejectsInactiveAccounts(t *testing.T) {
	svc, store, _ := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmStart(b.ID, ownerID); err != nil {
		t.Fatal(err)
	}

	store.users[ownerID].Blocked = true

	if _, err := svc.Extend(b.ID, ownerID, 30*time.Minute); !errors.Is(err, models.ErrAccountInactive) {
		t.Errorf("extend by blocked user: got %v, want ErrAccountInactive", err)
	}
	if _, err := svc.Finish(b.ID, ownerID); !errors.Is(err, models.ErrAccountInactive) {
		t.Errorf("finish by blocked user: got %v, want ErrAccountInactive", err)
	}
	if _, err := svc.Cancel(b.ID, ownerID, false); !errors.Is(err, models.ErrAccountInactive) {
		t.Errorf("cancel by blocked user: got %v, want ErrAccountInactive", err)
	}

	store.users[ownerID].Blocked = false
	store.users[ownerID].Approved = false
	if _, err := svc.ConfirmStart(b.ID, ownerID); !errors.Is(err, models.ErrAccountInactive) {
		t.Errorf("confirm by unapproved user: got %v, want ErrAccountInactive", err)
	}
}

func TestCreateOverlapIncludesPending(t *testing.T) {
	svc, _, _ := fixture(at(9, 0))

	if _, err := svc.Create(ownerID, roomID, at(10, 0), 2*time.Hour); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Create(strangerID, roomID, at(11, 0), time.Hour)
	var oe *models.OverlapError
	if !errors.As(err, &oe) {
		t.Fatalf("got %v, want OverlapError", err)
	}
	if !oe.Conflict.TimeStart.Equal(at(10, 0)) {
		t.Errorf("conflict start = %v, want 10:00", oe.Conflict.TimeStart)
	}
}

func TestConfirmStart(t *testing.T) {
	svc, _, _ := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ConfirmStart(b.ID, strangerID); !errors.Is(err, models.ErrNoPermission) {
		t.Errorf("stranger confirm: got %v, want ErrNoPermission", err)
	}

	got, err := svc.ConfirmStart(b.ID, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}

	// Repeated confirm is idempotent success.
	if _, err := svc.ConfirmStart(b.ID, ownerID); err != nil {
		t.Errorf("second confirm: %v", err)
	}
}

func TestConfirmRacesAutoCancel(t *testing.T) {
	svc, _, _ := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.AutoCancelUnconfirmed(b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmStart(b.ID, ownerID); !errors.Is(err, models.ErrStaleState) {
		t.Errorf("confirm after auto-cancel: got %v, want ErrStaleState", err)
	}

	// Other order: confirmation wins, timer loses.
	b2, err := svc.Create(ownerID, roomID, at(12, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmStart(b2.ID, ownerID); err != nil {
		t.Fatal(err)
	}
	if err := svc.AutoCancelUnconfirmed(b2.ID); !errors.Is(err, models.ErrStaleState) {
		t.Errorf("auto-cancel after confirm: got %v, want ErrStaleState", err)
	}
}

func TestCancelPermissions(t *testing.T) {
	svc, _, clk := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Cancel(b.ID, strangerID, false); !errors.Is(err, models.ErrNoPermission) {
		t.Errorf("stranger cancel: got %v, want ErrNoPermission", err)
	}

	// Owner cannot cancel once the slot has begun.
	clk.Set(at(10, 30))
	if _, err := svc.Cancel(b.ID, ownerID, false); !errors.Is(err, models.ErrNoPermission) {
		t.Errorf("cancel after start: got %v, want ErrNoPermission", err)
	}

	// Admin override still works.
	got, err := svc.Cancel(b.ID, strangerID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	if _, err := svc.Cancel(b.ID, strangerID, true); !errors.Is(err, models.ErrStaleState) {
		t.Errorf("cancel terminal: got %v, want ErrStaleState", err)
	}
}

func TestFinishRequiresRunningReservation(t *testing.T) {
	svc, _, clk := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Finish(b.ID, ownerID); !errors.Is(err, models.ErrStaleState) {
		t.Errorf("finish pending: got %v, want ErrStaleState", err)
	}

	if _, err := svc.ConfirmStart(b.ID, ownerID); err != nil {
		t.Fatal(err)
	}

	// Still before time_start.
	if _, err := svc.Finish(b.ID, ownerID); !errors.Is(err, models.ErrNoPermission) {
		t.Errorf("finish before start: got %v, want ErrNoPermission", err)
	}

	clk.Set(at(10, 40))
	got, err := svc.Finish(b.ID, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusFinished {
		t.Errorf("status = %s, want finished", got.Status)
	}
}

func TestExtend(t *testing.T) {
	svc, _, clk := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmStart(b.ID, ownerID); err != nil {
		t.Fatal(err)
	}
	clk.Set(at(10, 50))

	if _, err := svc.Extend(b.ID, ownerID, 20*time.Minute); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("unaligned delta: got %v, want ErrInvalidInput", err)
	}

	got, err := svc.Extend(b.ID, ownerID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !got.TimeEnd.Equal(at(12, 0)) {
		t.Errorf("end = %v, want 12:00", got.TimeEnd)
	}
	if got.ExtensionTotal != time.Hour {
		t.Errorf("extension_total = %v, want 1h", got.ExtensionTotal)
	}
}

func TestExtendRejectsOverlapAndLimits(t *testing.T) {
	svc, _, clk := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmStart(b.ID, ownerID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(strangerID, roomID, at(11, 30), time.Hour); err != nil {
		t.Fatal(err)
	}
	clk.Set(at(10, 50))

	_, err = svc.Extend(b.ID, ownerID, time.Hour)
	var oe *models.OverlapError
	if !errors.As(err, &oe) {
		t.Errorf("extend into occupied slot: got %v, want OverlapError", err)
	}

	if _, err := svc.Extend(b.ID, ownerID, 8*time.Hour); !errors.Is(err, models.ErrOutsideWorkingHours) {
		t.Errorf("extend past closing: got %v, want ErrOutsideWorkingHours", err)
	}
}

func TestCanOfferExtension(t *testing.T) {
	svc, store, _ := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	b, err = svc.ConfirmStart(b.ID, ownerID)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := svc.CanOfferExtension(b)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("free follow-up slot should allow extension")
	}

	// An active reservation starting within one step after the end blocks it.
	next, err := svc.Create(strangerID, roomID, at(11, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmStart(next.ID, strangerID); err != nil {
		t.Fatal(err)
	}
	ok, err = svc.CanOfferExtension(b)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("occupied follow-up slot should block extension")
	}

	// A reservation ending at closing time cannot be extended at all.
	store.reservations[b.ID].TimeEnd = at(18, 0)
	late, _ := store.FindReservation(b.ID)
	ok, err = svc.CanOfferExtension(late)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("reservation ending at closing should not offer extension")
	}
}

func TestExtensionChoices(t *testing.T) {
	svc, _, _ := fixture(at(9, 0))

	b, err := svc.Create(ownerID, roomID, at(10, 0), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	b, err = svc.ConfirmStart(b.ID, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(strangerID, roomID, at(12, 30), time.Hour); err != nil {
		t.Fatal(err)
	}

	choices, err := svc.ExtensionChoices(b)
	if err != nil {
		t.Fatal(err)
	}
	// 11:00 end, next reservation at 12:30: 30, 60, 90 minutes.
	want := []time.Duration{30 * time.Minute, time.Hour, 90 * time.Minute}
	if len(choices) != len(want) {
		t.Fatalf("got %v, want %v", choices, want)
	}
	for i := range want {
		if choices[i] != want[i] {
			t.Errorf("choice %d: got %v, want %v", i, choices[i], want[i])
		}
	}
}
