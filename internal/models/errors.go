package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrOutsideWorkingHours = errors.New("outside working hours")
	ErrLimitExceeded       = errors.New("duration limit exceeded")
	ErrTimeInPast          = errors.New("time is in the past")
	ErrNotFound            = errors.New("not found")
	ErrStaleState          = errors.New("stale state")
	ErrNoPermission        = errors.New("no permission")
	ErrAccountInactive     = errors.New("account inactive")
	ErrResourceInactive    = errors.New("resource inactive")
)

// OverlapError reports a reservation that blocks the requested interval.
type OverlapError struct {
	Conflict  Reservation
	OwnerName string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("interval overlaps reservation %d (%s-%s)",
		e.Conflict.ID,
		e.Conflict.TimeStart.Format("15:04"),
		e.Conflict.TimeEnd.Format("15:04"))
}

// IsOverlap reports whether err wraps an OverlapError and returns it.
func IsOverlap(err error) (*OverlapError, bool) {
	var oe *OverlapError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
