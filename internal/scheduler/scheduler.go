// Package scheduler keeps the wall-clock triggers behind reservation
// notifications. Jobs are persisted so restarts recover pending
// notifications; the in-memory registry holds the armed timers and is
// rebuilt from the database by Resync.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"booking-bot/internal/clock"
	"booking-bot/internal/models"
	"booking-bot/pkg/logger"
)

// JobStore persists the (job_kind, reservation_id) -> fire_at rows.
type JobStore interface {
	UpsertJob(kind models.JobKind, reservationID int64, fireAt time.Time) error
	DeleteJob(kind models.JobKind, reservationID int64) error
	DeleteJobsFor(reservationID int64) error
}

// JobHandler receives fired jobs. Implementations run on the timer
// goroutine and may block on I/O.
type JobHandler interface {
	HandleJob(kind models.JobKind, reservationID int64)
}

type jobKey struct {
	kind          models.JobKind
	reservationID int64
}

type jobEntry struct {
	fireAt time.Time
	timer  *time.Timer
}

type Config struct {
	LeadStart     time.Duration
	LeadEnd       time.Duration
	MisfireGrace  time.Duration
	LateFireDelay time.Duration
}

type Scheduler struct {
	store   JobStore
	handler JobHandler
	clk     clock.Clock
	log     *zap.Logger
	cfg     Config

	mu   sync.Mutex
	jobs map[jobKey]jobEntry
}

func New(store JobStore, handler JobHandler, clk clock.Clock, log *zap.Logger, cfg Config) *Scheduler {
	if cfg.LateFireDelay == 0 {
		cfg.LateFireDelay = time.Second
	}
	return &Scheduler{
		store:   store,
		handler: handler,
		clk:     clk,
		log:     log,
		cfg:     cfg,
		jobs:    make(map[jobKey]jobEntry),
	}
}

// Resync reconciles the registry and the job store against the live
// reservation set. It is idempotent and is called at startup and after
// every mutation; crash between a commit and a Resync is recovered by the
// next call.
//
// Per job key:
//   - target older than the misfire grace: drop the job entirely;
//   - target passed but within grace: late-fire shortly after now;
//   - already armed at the same time: leave it alone;
//   - otherwise: upsert the store row, then (re)arm the timer.
//
// Keys whose reservation is absent from the live set are cascaded away.
// Store failures are aggregated and returned after the whole pass, so one
// bad row does not stall the rest of the schedule.
func (s *Scheduler) Resync(live []models.Reservation) error {
	now := s.clk.Now()

	desired := make(map[jobKey]time.Time, 2*len(live))
	fresh := make(map[int64]bool, len(live))
	for i := range live {
		b := &live[i]
		fresh[b.ID] = true
		desired[jobKey{models.JobNotifyStart, b.ID}] = b.TimeStart.Add(-s.cfg.LeadStart)
		desired[jobKey{models.JobNotifyEnd, b.ID}] = b.TimeEnd.Add(-s.cfg.LeadEnd)
	}

	var errs error
	for key, target := range desired {
		switch {
		case !target.After(now.Add(-s.cfg.MisfireGrace)):
			errs = multierr.Append(errs, s.dropJob(key))

		case !target.After(now):
			errs = multierr.Append(errs, s.armJob(key, target, now.Add(s.cfg.LateFireDelay)))

		case s.armedAt(key, target):
			// no-op

		default:
			errs = multierr.Append(errs, s.armJob(key, target, target))
		}
	}

	// Cleanup cascade: registry entries for reservations no longer live.
	s.mu.Lock()
	var orphans []jobKey
	for key := range s.jobs {
		if !fresh[key.reservationID] {
			orphans = append(orphans, key)
		}
	}
	s.mu.Unlock()

	for _, key := range orphans {
		errs = multierr.Append(errs, s.dropJob(key))
	}

	return errs
}

// armedAt reports whether the registry already holds the key within one
// second of target.
func (s *Scheduler) armedAt(key jobKey, target time.Time) bool {
	s.mu.Lock()
	entry, ok := s.jobs[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	diff := entry.fireAt.Sub(target)
	return diff >= -time.Second && diff <= time.Second
}

// armJob records the store row first; the registry is updated only when
// the row is durable.
func (s *Scheduler) armJob(key jobKey, storeAt, fireAt time.Time) error {
	if err := s.store.UpsertJob(key.kind, key.reservationID, storeAt); err != nil {
		s.log.Error("failed to persist scheduled job",
			zap.String(logger.FieldJob, string(key.kind)),
			zap.Int64(logger.FieldReservationID, key.reservationID),
			zap.Error(err))
		return err
	}

	delay := fireAt.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if old, ok := s.jobs[key]; ok {
		old.timer.Stop()
	}
	s.jobs[key] = jobEntry{
		fireAt: fireAt,
		timer:  time.AfterFunc(delay, func() { s.fire(key) }),
	}
	s.mu.Unlock()

	return nil
}

func (s *Scheduler) dropJob(key jobKey) error {
	s.mu.Lock()
	if entry, ok := s.jobs[key]; ok {
		entry.timer.Stop()
		delete(s.jobs, key)
	}
	s.mu.Unlock()

	if err := s.store.DeleteJob(key.kind, key.reservationID); err != nil {
		s.log.Error("failed to delete scheduled job",
			zap.String(logger.FieldJob, string(key.kind)),
			zap.Int64(logger.FieldReservationID, key.reservationID),
			zap.Error(err))
		return err
	}
	return nil
}

// fire runs on the timer goroutine. Jobs are single-shot: bookkeeping is
// cleared before the handler runs and failures are not retried.
func (s *Scheduler) fire(key jobKey) {
	s.mu.Lock()
	_, ok := s.jobs[key]
	delete(s.jobs, key)
	s.mu.Unlock()

	if !ok {
		return
	}

	if err := s.store.DeleteJob(key.kind, key.reservationID); err != nil {
		s.log.Error("failed to clear fired job",
			zap.String(logger.FieldJob, string(key.kind)),
			zap.Int64(logger.FieldReservationID, key.reservationID),
			zap.Error(err))
	}

	s.handler.HandleJob(key.kind, key.reservationID)
}

// RemoveJobsFor cancels and forgets both jobs of a reservation. Called
// when a reservation leaves the live set outside of a full Resync.
func (s *Scheduler) RemoveJobsFor(reservationID int64) {
	s.mu.Lock()
	for _, kind := range []models.JobKind{models.JobNotifyStart, models.JobNotifyEnd} {
		key := jobKey{kind, reservationID}
		if entry, ok := s.jobs[key]; ok {
			entry.timer.Stop()
			delete(s.jobs, key)
		}
	}
	s.mu.Unlock()

	if err := s.store.DeleteJobsFor(reservationID); err != nil {
		s.log.Error("failed to delete jobs for reservation",
			zap.Int64(logger.FieldReservationID, reservationID),
			zap.Error(err))
	}
}

// Stop cancels every armed timer. Fired handlers already running are not
// interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for key, entry := range s.jobs {
		entry.timer.Stop()
		delete(s.jobs, key)
	}
	s.mu.Unlock()
}

// JobCount returns the number of armed jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// JobsFor returns the armed fire times for a reservation, keyed by kind.
func (s *Scheduler) JobsFor(reservationID int64) map[models.JobKind]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.JobKind]time.Time)
	for key, entry := range s.jobs {
		if key.reservationID == reservationID {
			out[key.kind] = entry.fireAt
		}
	}
	return out
}
