package scheduler

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"booking-bot/internal/clock"
	"booking-bot/internal/models"
)

type memJobStore struct {
	mu   sync.Mutex
	rows map[jobKey]time.Time
}

func newMemJobStore() *memJobStore {
	return &memJobStore{rows: make(map[jobKey]time.Time)}
}

func (m *memJobStore) UpsertJob(kind models.JobKind, reservationID int64, fireAt time.Time) error {
	m.mu.Lock()
	m.rows[jobKey{kind, reservationID}] = fireAt
	m.mu.Unlock()
	return nil
}

func (m *memJobStore) DeleteJob(kind models.JobKind, reservationID int64) error {
	m.mu.Lock()
	delete(m.rows, jobKey{kind, reservationID})
	m.mu.Unlock()
	return nil
}

func (m *memJobStore) DeleteJobsFor(reservationID int64) error {
	m.mu.Lock()
	for key := range m.rows {
		if key.reservationID == reservationID {
			delete(m.rows, key)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *memJobStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memJobStore) fireAt(kind models.JobKind, reservationID int64) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.rows[jobKey{kind, reservationID}]
	return at, ok
}

type recordingHandler struct {
	mu    sync.Mutex
	fired []jobKey
}

func (h *recordingHandler) HandleJob(kind models.JobKind, reservationID int64) {
	h.mu.Lock()
	h.fired = append(h.fired, jobKey{kind, reservationID})
	h.mu.Unlock()
}

var baseTime = time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		LeadStart:    10 * time.Minute,
		LeadEnd:      10 * time.Minute,
		MisfireGrace: 5 * time.Minute,
	}
}

func fixture(now time.Time) (*Scheduler, *memJobStore, *recordingHandler) {
	store := newMemJobStore()
	handler := &recordingHandler{}
	s := New(store, handler, clock.NewFake(now), zap.NewNop(), testConfig())
	return s, store, handler
}

func liveReservation(id int64, start, end time.Time) models.Reservation {
	return models.Reservation{
		ID:        id,
		TimeStart: start,
		TimeEnd:   end,
		Status:    models.StatusActive,
	}
}

func TestResyncArmsTwoJobsPerReservation(t *testing.T) {
	s, store, _ := fixture(baseTime)
	defer s.Stop()

	s.Resync([]models.Reservation{
		liveReservation(1, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour)),
	})

	if s.JobCount() != 2 {
		t.Fatalf("registry holds %d jobs, want 2", s.JobCount())
	}
	if store.count() != 2 {
		t.Fatalf("store holds %d rows, want 2", store.count())
	}

	jobs := s.JobsFor(1)
	if !jobs[models.JobNotifyStart].Equal(baseTime.Add(50 * time.Minute)) {
		t.Errorf("notify_start at %v, want start-10m", jobs[models.JobNotifyStart])
	}
	if !jobs[models.JobNotifyEnd].Equal(baseTime.Add(110 * time.Minute)) {
		t.Errorf("notify_end at %v, want end-10m", jobs[models.JobNotifyEnd])
	}
}

func TestResyncIsIdempotent(t *testing.T) {
	s, store, _ := fixture(baseTime)
	defer s.Stop()

	live := []models.Reservation{
		liveReservation(1, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour)),
		liveReservation(2, baseTime.Add(3*time.Hour), baseTime.Add(4*time.Hour)),
	}

	s.Resync(live)
	s.Resync(live)
	s.Resync(live)

	if s.JobCount() != 4 {
		t.Errorf("registry holds %d jobs after repeated resync, want 4", s.JobCount())
	}
	if store.count() != 4 {
		t.Errorf("store holds %d rows after repeated resync, want 4", store.count())
	}
}

func TestResyncDropsJobsBeyondGrace(t *testing.T) {
	// notify_start target was 6 minutes ago, past the 5-minute grace:
	// dropped. notify_end is still ahead: armed.
	s, store, _ := fixture(baseTime)
	defer s.Stop()

	s.Resync([]models.Reservation{
		liveReservation(1, baseTime.Add(4*time.Minute), baseTime.Add(time.Hour)),
	})

	if _, ok := store.fireAt(models.JobNotifyStart, 1); ok {
		t.Error("notify_start beyond grace kept in store")
	}
	if _, ok := store.fireAt(models.JobNotifyEnd, 1); !ok {
		t.Error("notify_end missing from store")
	}
	if s.JobCount() != 1 {
		t.Errorf("registry holds %d jobs, want 1", s.JobCount())
	}
}

func TestResyncLateFiresWithinGrace(t *testing.T) {
	// notify_start target was 4 minutes ago, inside the 5-minute grace:
	// rescheduled to fire just after now instead of being dropped.
	s, _, _ := fixture(baseTime)
	defer s.Stop()

	s.Resync([]models.Reservation{
		liveReservation(1, baseTime.Add(6*time.Minute), baseTime.Add(time.Hour)),
	})

	jobs := s.JobsFor(1)
	fireAt, ok := jobs[models.JobNotifyStart]
	if !ok {
		t.Fatal("notify_start not armed")
	}
	if !fireAt.After(baseTime) || fireAt.After(baseTime.Add(2*time.Second)) {
		t.Errorf("late fire at %v, want just after now", fireAt)
	}
}

func TestResyncRestartRecovery(t *testing.T) {
	// A fresh scheduler with an empty registry rebuilds every job from
	// the live set: five reservations produce ten armed jobs.
	s, store, _ := fixture(baseTime)
	defer s.Stop()

	var live []models.Reservation
	for i := int64(1); i <= 5; i++ {
		start := baseTime.Add(time.Duration(i) * time.Hour)
		live = append(live, liveReservation(i, start, start.Add(time.Hour)))
	}

	s.Resync(live)

	if s.JobCount() != 10 {
		t.Errorf("registry holds %d jobs, want 10", s.JobCount())
	}
	if store.count() != 10 {
		t.Errorf("store holds %d rows, want 10", store.count())
	}
}

func TestResyncCleanupCascade(t *testing.T) {
	s, store, _ := fixture(baseTime)
	defer s.Stop()

	live := []models.Reservation{
		liveReservation(1, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour)),
		liveReservation(2, baseTime.Add(3*time.Hour), baseTime.Add(4*time.Hour)),
	}
	s.Resync(live)

	// Reservation 2 got cancelled; the next resync no longer sees it.
	s.Resync(live[:1])

	if s.JobCount() != 2 {
		t.Errorf("registry holds %d jobs, want 2", s.JobCount())
	}
	if store.count() != 2 {
		t.Errorf("store holds %d rows, want 2", store.count())
	}
	if len(s.JobsFor(2)) != 0 {
		t.Error("jobs for cancelled reservation survived cascade")
	}
}

func TestRemoveJobsFor(t *testing.T) {
	s, store, _ := fixture(baseTime)
	defer s.Stop()

	s.Resync([]models.Reservation{
		liveReservation(1, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour)),
	})

	s.RemoveJobsFor(1)

	if s.JobCount() != 0 {
		t.Errorf("registry holds %d jobs, want 0", s.JobCount())
	}
	if store.count() != 0 {
		t.Errorf("store holds %d rows, want 0", store.count())
	}
}

func TestFireClearsBookkeepingBeforeHandler(t *testing.T) {
	s, store, handler := fixture(baseTime)
	defer s.Stop()

	s.Resync([]models.Reservation{
		liveReservation(1, baseTime.Add(time.Hour), baseTime.Add(2*time.Hour)),
	})

	s.fire(jobKey{models.JobNotifyStart, 1})

	handler.mu.Lock()
	fired := len(handler.fired)
	handler.mu.Unlock()
	if fired != 1 {
		t.Fatalf("handler invoked %d times, want 1", fired)
	}
	if _, ok := store.fireAt(models.JobNotifyStart, 1); ok {
		t.Error("fired job row survived in store")
	}
	if s.JobCount() != 1 {
		t.Errorf("registry holds %d jobs, want only notify_end", s.JobCount())
	}

	// A second fire of the same key is a no-op.
	s.fire(jobKey{models.JobNotifyStart, 1})
	handler.mu.Lock()
	fired = len(handler.fired)
	handler.mu.Unlock()
	if fired != 1 {
		t.Errorf("handler invoked %d times after duplicate fire, want 1", fired)
	}
}
