package models

import "time"

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusActive              Status = "active"
	StatusFinished            Status = "finished"
	StatusCancelled           Status = "cancelled"
)

// Terminal reports whether a reservation in this status can never change
// again.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

// CanTransitionTo encodes the reservation status machine. Self-loops and
// reverse transitions are rejected.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusPendingConfirmation:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		return to == StatusFinished || to == StatusCancelled
	default:
		return false
	}
}

type User struct {
	ID        int64     `db:"id"`
	FullName  string    `db:"full_name"`
	Blocked   bool      `db:"blocked"`
	IsAdmin   bool      `db:"is_admin"`
	Approved  bool      `db:"approved"`
	CreatedAt time.Time `db:"created_at"`
}

type Resource struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Category string `db:"category"`
	Note     string `db:"note"`
	Active   bool   `db:"active"`
}

type Reservation struct {
	ID             int64         `db:"id"`
	UserID         int64         `db:"user_id"`
	ResourceID     int64         `db:"resource_id"`
	Date           time.Time     `db:"date"`
	TimeStart      time.Time     `db:"time_start"`
	TimeEnd        time.Time     `db:"time_end"`
	Status         Status        `db:"status"`
	CreatedAt      time.Time     `db:"created_at"`
	FinishedAt     *time.Time    `db:"finished_at"`
	ExtensionTotal time.Duration `db:"extension_total"`

	// Joined display fields, populated by list queries.
	ResourceName string `db:"resource_name"`
	UserName     string `db:"user_name"`
}

type JobKind string

const (
	JobNotifyStart JobKind = "notify_start"
	JobNotifyEnd   JobKind = "notify_end"
)

// ScheduledJob is a persistent single-shot trigger kept in the database so
// notifications survive process restarts.
type ScheduledJob struct {
	Kind          JobKind   `db:"job_kind"`
	ReservationID int64     `db:"reservation_id"`
	FireAt        time.Time `db:"fire_at"`
}
