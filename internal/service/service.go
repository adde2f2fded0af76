// Package service implements the reservation lifecycle: create, confirm,
// cancel, finish, extend and the timer-driven auto cancel. All multi-row
// correctness rides on the store's transactional guarantees; this layer
// enforces per-operation validation and permissions.
package service

import (
	"errors"
	"fmt"
	"time"

	"booking-bot/internal/clock"
	"booking-bot/internal/models"
	"booking-bot/internal/timeutil"
)

// Store is the persistence surface the service drives.
type Store interface {
	GetUser(userID int64) (*models.User, error)
	GetResource(resourceID int64) (*models.Resource, error)

	InsertReservation(b *models.Reservation) (*models.Reservation, error)
	FindReservation(reservationID int64) (*models.Reservation, error)
	TransitionStatus(reservationID int64, from, to models.Status) error
	ExtendEnd(reservationID int64, expectedEnd, newEnd time.Time) error

	ListLiveForUser(userID int64, now time.Time) ([]models.Reservation, error)
	ListBusyOnDate(resourceID int64, date time.Time) ([]models.Reservation, error)
}

type Config struct {
	Step         time.Duration
	WorkingStart time.Duration
	WorkingEnd   time.Duration
	MaxDuration  time.Duration
}

type Service struct {
	store Store
	clk   clock.Clock
	cfg   Config
}

func New(store Store, clk clock.Clock, cfg Config) *Service {
	return &Service{store: store, clk: clk, cfg: cfg}
}

// Create validates the requested interval and inserts it as
// pending_confirmation. Starts slightly in the past are tolerated up to
// half a step, so a user picking the slot that just opened is not rejected.
func (s *Service) Create(userID, resourceID int64, start time.Time, duration time.Duration) (*models.Reservation, error) {
	if err := s.requireActive(userID); err != nil {
		return nil, err
	}

	resource, err := s.store.GetResource(resourceID)
	if err != nil {
		return nil, err
	}
	if !resource.Active {
		return nil, models.ErrResourceInactive
	}

	day := timeutil.Midnight(start)
	if err := timeutil.AlignDuration(start.Sub(day), s.cfg.Step); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if err := timeutil.AlignDuration(duration, s.cfg.Step); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if duration > s.cfg.MaxDuration {
		return nil, models.ErrLimitExceeded
	}

	end := start.Add(duration)
	window := timeutil.Interval{
		Start: timeutil.At(day, s.cfg.WorkingStart),
		End:   timeutil.At(day, s.cfg.WorkingEnd),
	}
	if start.Before(window.Start) || end.After(window.End) {
		return nil, models.ErrOutsideWorkingHours
	}

	now := s.clk.Now()
	if start.Before(now.Add(-s.cfg.Step / 2)) {
		return nil, models.ErrTimeInPast
	}

	return s.store.InsertReservation(&models.Reservation{
		UserID:     userID,
		ResourceID: resourceID,
		Date:       day,
		TimeStart:  start,
		TimeEnd:    end,
		Status:     models.StatusPendingConfirmation,
	})
}

// requireActive rejects blocked or unapproved requesters, so lifecycle
// operations cannot be driven through leftover buttons after an account is
// deactivated.
func (s *Service) requireActive(userID int64) error {
	user, err := s.store.GetUser(userID)
	if err != nil {
		return err
	}
	if user.Blocked || !user.Approved {
		return models.ErrAccountInactive
	}
	return nil
}

// ConfirmStart marks the reservation active on the owner's arrival.
// Confirming an already-active reservation is a no-op success; a terminal
// status means the auto-cancel timer won and the caller sees ErrStaleState.
func (s *Service) ConfirmStart(reservationID, userID int64) (*models.Reservation, error) {
	if err := s.requireActive(userID); err != nil {
		return nil, err
	}

	b, err := s.store.FindReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, models.ErrNoPermission
	}

	switch b.Status {
	case models.StatusActive:
		return b, nil
	case models.StatusPendingConfirmation:
	default:
		return nil, models.ErrStaleState
	}

	if err := s.store.TransitionStatus(reservationID, models.StatusPendingConfirmation, models.StatusActive); err != nil {
		return nil, err
	}

	return s.store.FindReservation(reservationID)
}

// AutoCancelUnconfirmed is invoked by the confirmation timer. It races
// ConfirmStart; the compare-and-set in the store lets exactly one side win.
func (s *Service) AutoCancelUnconfirmed(reservationID int64) error {
	return s.store.TransitionStatus(reservationID, models.StatusPendingConfirmation, models.StatusCancelled)
}

// Cancel cancels a live reservation. Owners may cancel their own future
// reservations; admins may cancel anything not yet terminal.
func (s *Service) Cancel(reservationID, requesterID int64, adminOverride bool) (*models.Reservation, error) {
	if err := s.requireActive(requesterID); err != nil {
		return nil, err
	}

	b, err := s.store.FindReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, models.ErrStaleState
	}

	if !adminOverride {
		if b.UserID != requesterID {
			return nil, models.ErrNoPermission
		}
		if !b.TimeStart.After(s.clk.Now()) {
			return nil, models.ErrNoPermission
		}
	}

	if err := s.store.TransitionStatus(reservationID, b.Status, models.StatusCancelled); err != nil {
		return nil, err
	}

	return s.store.FindReservation(reservationID)
}

// Finish ends an active reservation early, freeing the tail of its slot.
func (s *Service) Finish(reservationID, userID int64) (*models.Reservation, error) {
	if err := s.requireActive(userID); err != nil {
		return nil, err
	}

	b, err := s.store.FindReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, models.ErrNoPermission
	}
	if b.Status != models.StatusActive {
		return nil, models.ErrStaleState
	}

	now := s.clk.Now()
	if now.Before(b.TimeStart) || !now.Before(b.TimeEnd) {
		return nil, models.ErrNoPermission
	}

	if err := s.store.TransitionStatus(reservationID, models.StatusActive, models.StatusFinished); err != nil {
		return nil, err
	}

	return s.store.FindReservation(reservationID)
}

// Extend pushes the end of an active reservation forward by delta. The
// guard on the previously seen end means two concurrent extenders produce
// exactly one winner.
func (s *Service) Extend(reservationID, userID int64, delta time.Duration) (*models.Reservation, error) {
	if err := timeutil.AlignDuration(delta, s.cfg.Step); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if err := s.requireActive(userID); err != nil {
		return nil, err
	}

	b, err := s.store.FindReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, models.ErrNoPermission
	}
	if b.Status != models.StatusActive {
		return nil, models.ErrStaleState
	}

	newEnd := b.TimeEnd.Add(delta)
	closing := timeutil.At(b.Date, s.cfg.WorkingEnd)
	if newEnd.After(closing) {
		return nil, models.ErrOutsideWorkingHours
	}
	if newEnd.Sub(b.TimeStart) > s.cfg.MaxDuration {
		return nil, models.ErrLimitExceeded
	}

	if err := s.store.ExtendEnd(reservationID, b.TimeEnd, newEnd); err != nil {
		return nil, err
	}

	return s.store.FindReservation(reservationID)
}

// CanOfferExtension reports whether the end-of-slot prompt should include
// extension buttons: the next step after time_end must be free and still
// inside working hours.
func (s *Service) CanOfferExtension(b *models.Reservation) (bool, error) {
	closing := timeutil.At(b.Date, s.cfg.WorkingEnd)
	if b.TimeEnd.Add(s.cfg.Step).After(closing) {
		return false, nil
	}

	busy, err := s.store.ListBusyOnDate(b.ResourceID, b.Date)
	if err != nil {
		return false, err
	}

	blockedUntil := b.TimeEnd.Add(s.cfg.Step)
	for i := range busy {
		other := &busy[i]
		if other.ID == b.ID || other.Status != models.StatusActive {
			continue
		}
		if !other.TimeStart.Before(b.TimeEnd) && other.TimeStart.Before(blockedUntil) {
			return false, nil
		}
	}

	return true, nil
}

// ExtensionChoices lists the quantized extension amounts available right
// now for the reservation, bounded by the next occupied slot, the working
// window and the duration ceiling.
func (s *Service) ExtensionChoices(b *models.Reservation) ([]time.Duration, error) {
	busy, err := s.store.ListBusyOnDate(b.ResourceID, b.Date)
	if err != nil {
		return nil, err
	}

	limit := timeutil.At(b.Date, s.cfg.WorkingEnd)
	for i := range busy {
		other := &busy[i]
		if other.ID == b.ID {
			continue
		}
		if !other.TimeStart.Before(b.TimeEnd) && other.TimeStart.Before(limit) {
			limit = other.TimeStart
		}
	}
	if maxEnd := b.TimeStart.Add(s.cfg.MaxDuration); maxEnd.Before(limit) {
		limit = maxEnd
	}

	var choices []time.Duration
	for delta := s.cfg.Step; !b.TimeEnd.Add(delta).After(limit); delta += s.cfg.Step {
		choices = append(choices, delta)
	}

	return choices, nil
}

// ListLiveForUser exposes the store query for the dispatcher's listing
// commands.
func (s *Service) ListLiveForUser(userID int64) ([]models.Reservation, error) {
	return s.store.ListLiveForUser(userID, s.clk.Now())
}

// Describe renders a one-line human summary of a reservation for logs.
func Describe(b *models.Reservation) string {
	return fmt.Sprintf("#%d %s %s %s-%s [%s]",
		b.ID, b.ResourceName,
		b.Date.Format(timeutil.DateDisplay),
		b.TimeStart.Format(timeutil.ClockFormat),
		b.TimeEnd.Format(timeutil.ClockFormat),
		b.Status)
}

// IsStale reports whether err is the lost side of a status race.
func IsStale(err error) bool {
	return errors.Is(err, models.ErrStaleState)
}
