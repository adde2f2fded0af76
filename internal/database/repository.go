package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"booking-bot/internal/models"
)

const reservationColumns = `
	b.id, b.user_id, b.resource_id, b.date, b.time_start, b.time_end,
	b.status, b.created_at, b.finished_at,
	COALESCE(EXTRACT(EPOCH FROM b.extension_total), 0),
	r.name, u.full_name`

const reservationTables = `
	FROM reservations b
	JOIN resources r ON r.id = b.resource_id
	JOIN users u ON u.id = b.user_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var b models.Reservation
	var extSeconds float64

	err := row.Scan(
		&b.ID, &b.UserID, &b.ResourceID, &b.Date, &b.TimeStart, &b.TimeEnd,
		&b.Status, &b.CreatedAt, &b.FinishedAt, &extSeconds,
		&b.ResourceName, &b.UserName,
	)
	if err != nil {
		return nil, err
	}

	b.ExtensionTotal = time.Duration(extSeconds) * time.Second
	return &b, nil
}

// User operations

func (db *DB) GetUser(userID int64) (*models.User, error) {
	var user models.User

	err := db.QueryRow(`
		SELECT id, full_name, blocked, is_admin, approved, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&user.ID, &user.FullName, &user.Blocked, &user.IsAdmin,
		&user.Approved, &user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// CreateUser registers a user pending admin approval. Repeated /start from
// the same user keeps the earlier row but refreshes the name.
func (db *DB) CreateUser(userID int64, fullName string, isAdmin bool) error {
	_, err := db.Exec(`
		INSERT INTO users (id, full_name, is_admin, approved)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name
	`, userID, fullName, isAdmin)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (db *DB) ApproveUser(userID int64) error {
	res, err := db.Exec(`UPDATE users SET approved = TRUE WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (db *DB) DeleteUser(userID int64) error {
	res, err := db.Exec(`DELETE FROM users WHERE id = $1 AND approved = FALSE`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (db *DB) SetUserBlocked(userID int64, blocked bool) error {
	_, err := db.Exec(`UPDATE users SET blocked = $2 WHERE id = $1`, userID, blocked)
	return err
}

func (db *DB) ListUsers() ([]models.User, error) {
	rows, err := db.Query(`
		SELECT id, full_name, blocked, is_admin, approved, created_at
		FROM users
		ORDER BY full_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(&u.ID, &u.FullName, &u.Blocked, &u.IsAdmin, &u.Approved, &u.CreatedAt)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *DB) ListAdmins() ([]models.User, error) {
	rows, err := db.Query(`
		SELECT id, full_name, blocked, is_admin, approved, created_at
		FROM users
		WHERE is_admin = TRUE AND blocked = FALSE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(&u.ID, &u.FullName, &u.Blocked, &u.IsAdmin, &u.Approved, &u.CreatedAt)
		if err != nil {
			return nil, err
		}
		admins = append(admins, u)
	}

	return admins, rows.Err()
}

// Resource operations

func (db *DB) ListCategories() ([]string, error) {
	rows, err := db.Query(`
		SELECT DISTINCT category FROM resources
		WHERE active = TRUE
		ORDER BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

func (db *DB) ListResourcesByCategory(category string) ([]models.Resource, error) {
	rows, err := db.Query(`
		SELECT id, name, category, note, active
		FROM resources
		WHERE active = TRUE AND category = $1
		ORDER BY name
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectResources(rows)
}

func (db *DB) ListResources() ([]models.Resource, error) {
	rows, err := db.Query(`
		SELECT id, name, category, note, active
		FROM resources
		WHERE active = TRUE
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectResources(rows)
}

func collectResources(rows *sql.Rows) ([]models.Resource, error) {
	var resources []models.Resource
	for rows.Next() {
		var r models.Resource
		err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.Note, &r.Active)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

func (db *DB) GetResource(resourceID int64) (*models.Resource, error) {
	var r models.Resource

	err := db.QueryRow(`
		SELECT id, name, category, note, active
		FROM resources
		WHERE id = $1
	`, resourceID).Scan(&r.ID, &r.Name, &r.Category, &r.Note, &r.Active)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

func (db *DB) CreateResource(name, category, note string) (*models.Resource, error) {
	var r models.Resource

	err := db.QueryRow(`
		INSERT INTO resources (name, category, note)
		VALUES ($1, $2, $3)
		RETURNING id, name, category, note, active
	`, name, category, note).Scan(&r.ID, &r.Name, &r.Category, &r.Note, &r.Active)

	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return &r, nil
}

// DeactivateResource soft-deletes, keeping history rows intact.
func (db *DB) DeactivateResource(resourceID int64) error {
	res, err := db.Exec(`UPDATE resources SET active = FALSE WHERE id = $1 AND active = TRUE`, resourceID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Reservation operations

// InsertReservation creates a reservation after checking the interval
// against every pending or active row for the same resource and date.
// Writers for a resource are serialized on its row lock before the check,
// so two concurrent inserts for the same slot cannot both succeed; the
// reservations_no_overlap exclusion constraint backstops the invariant at
// the schema level.
func (db *DB) InsertReservation(b *models.Reservation) (*models.Reservation, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockResource(tx, b.ResourceID); err != nil {
		return nil, err
	}

	conflict, err := findConflict(tx, b.ResourceID, b.Date, b.TimeStart, b.TimeEnd, 0)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		return nil, &models.OverlapError{Conflict: *conflict, OwnerName: conflict.UserName}
	}

	created := *b
	err = tx.QueryRow(`
		INSERT INTO reservations (user_id, resource_id, date, time_start, time_end, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, b.UserID, b.ResourceID, b.Date, b.TimeStart, b.TimeEnd, b.Status).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		if overlap := db.overlapFromConstraint(err, b.ResourceID, b.Date, b.TimeStart, b.TimeEnd, 0); overlap != nil {
			return nil, overlap
		}
		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &created, nil
}

// lockResource takes the resource row lock every schedule writer queues on.
// The overlap scan below only sees committed rows, so without this lock two
// concurrent transactions could each miss the other's uncommitted insert.
func lockResource(tx *sql.Tx, resourceID int64) error {
	var id int64
	err := tx.QueryRow(`SELECT id FROM resources WHERE id = $1 FOR UPDATE`, resourceID).Scan(&id)
	if err == sql.ErrNoRows {
		return models.ErrNotFound
	}
	return err
}

const conflictQuery = `
	SELECT` + reservationColumns + reservationTables + `
	WHERE b.resource_id = $1
	  AND b.date = $2
	  AND b.status IN ('pending_confirmation', 'active')
	  AND b.time_start < $4
	  AND b.time_end > $3
	  AND b.id <> $5
	ORDER BY b.time_start
	LIMIT 1`

// findConflict returns the earliest pending or active reservation whose
// half-open interval overlaps [start, end), excluding excludeID. Callers
// hold the resource row lock, which keeps the answer stable until commit.
func findConflict(q rowQuerier, resourceID int64, date, start, end time.Time, excludeID int64) (*models.Reservation, error) {
	row := q.QueryRow(conflictQuery, resourceID, date, start, end, excludeID)

	conflict, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return conflict, nil
}

type rowQuerier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// overlapFromConstraint turns a reservations_no_overlap violation into the
// OverlapError callers expect, re-reading the winning row outside the
// aborted transaction. Nil means err was something else.
func (db *DB) overlapFromConstraint(err error, resourceID int64, date, start, end time.Time, excludeID int64) error {
	if !isExclusionViolation(err) {
		return nil
	}
	conflict, cerr := findConflict(db, resourceID, date, start, end, excludeID)
	if cerr != nil || conflict == nil {
		return &models.OverlapError{}
	}
	return &models.OverlapError{Conflict: *conflict, OwnerName: conflict.UserName}
}

// isExclusionViolation reports whether err is Postgres class 23P01, the
// exclusion constraint firing.
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23P01"
}

func (db *DB) FindReservation(reservationID int64) (*models.Reservation, error) {
	row := db.QueryRow(`
		SELECT`+reservationColumns+reservationTables+`
		WHERE b.id = $1
	`, reservationID)

	b, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return b, nil
}

// TransitionStatus moves a reservation from one status to another with a
// compare-and-set, so a lost race surfaces as ErrStaleState instead of a
// silent double transition. A move to finished stamps finished_at.
func (db *DB) TransitionStatus(reservationID int64, from, to models.Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("transition %s -> %s: %w", from, to, models.ErrInvalidInput)
	}

	res, err := db.Exec(`
		UPDATE reservations
		SET status = $3,
		    finished_at = CASE WHEN $3 = 'finished' THEN CURRENT_TIMESTAMP ELSE finished_at END
		WHERE id = $1 AND status = $2
	`, reservationID, from, to)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

// ExtendEnd pushes time_end of an active reservation forward. The update is
// guarded on the end the caller last saw, and the claimed interval
// [expectedEnd, newEnd) is re-checked for overlaps under the resource row
// lock, in the same lock order as InsertReservation.
func (db *DB) ExtendEnd(reservationID int64, expectedEnd, newEnd time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var resourceID int64
	var date time.Time
	err = tx.QueryRow(`
		SELECT resource_id, date FROM reservations WHERE id = $1
	`, reservationID).Scan(&resourceID, &date)
	if err == sql.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := lockResource(tx, resourceID); err != nil {
		return err
	}

	conflict, err := findConflict(tx, resourceID, date, expectedEnd, newEnd, reservationID)
	if err != nil {
		return err
	}
	if conflict != nil {
		return &models.OverlapError{Conflict: *conflict, OwnerName: conflict.UserName}
	}

	res, err := tx.Exec(`
		UPDATE reservations
		SET time_end = $3,
		    extension_total = COALESCE(extension_total, interval '0') + ($3 - $2)
		WHERE id = $1 AND status = 'active' AND time_end = $2
	`, reservationID, expectedEnd, newEnd)
	if err != nil {
		if overlap := db.overlapFromConstraint(err, resourceID, date, expectedEnd, newEnd, reservationID); overlap != nil {
			return overlap
		}
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	return tx.Commit()
}

// ListLiveForUser returns the user's pending and active reservations whose
// end is still ahead of now.
func (db *DB) ListLiveForUser(userID int64, now time.Time) ([]models.Reservation, error) {
	rows, err := db.Query(`
		SELECT`+reservationColumns+reservationTables+`
		WHERE b.user_id = $1
		  AND b.status IN ('pending_confirmation', 'active')
		  AND b.time_end > $2
		ORDER BY b.time_start
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListLive returns every pending and active reservation still ahead of now,
// across all users and resources. Startup re-sync walks this set.
func (db *DB) ListLive(now time.Time) ([]models.Reservation, error) {
	rows, err := db.Query(`
		SELECT`+reservationColumns+reservationTables+`
		WHERE b.status IN ('pending_confirmation', 'active')
		  AND b.time_end > $1
		ORDER BY b.time_start
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListBusyOnDate returns the intervals that count as occupied for
// availability: every pending or active reservation of the resource on the
// given date.
func (db *DB) ListBusyOnDate(resourceID int64, date time.Time) ([]models.Reservation, error) {
	rows, err := db.Query(`
		SELECT`+reservationColumns+reservationTables+`
		WHERE b.resource_id = $1
		  AND b.date = $2
		  AND b.status IN ('pending_confirmation', 'active')
		ORDER BY b.time_start
	`, resourceID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (db *DB) ListOnDate(date time.Time) ([]models.Reservation, error) {
	rows, err := db.Query(`
		SELECT`+reservationColumns+reservationTables+`
		WHERE b.date = $1
		  AND b.status IN ('pending_confirmation', 'active')
		ORDER BY r.name, b.time_start
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (db *DB) ListUpcomingForResource(resourceID int64, now time.Time) ([]models.Reservation, error) {
	rows, err := db.Query(`
		SELECT`+reservationColumns+reservationTables+`
		WHERE b.resource_id = $1
		  AND b.status IN ('pending_confirmation', 'active')
		  AND b.time_end > $2
		ORDER BY b.time_start
	`, resourceID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListCurrentActive returns reservations running right now.
func (db *DB) ListCurrentActive(now time.Time) ([]models.Reservation, error) {
	rows, err := db.Query(`
		SELECT`+reservationColumns+reservationTables+`
		WHERE b.status = 'active'
		  AND b.time_start <= $1
		  AND b.time_end > $1
		ORDER BY r.name, b.time_start
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

func collectReservations(rows *sql.Rows) ([]models.Reservation, error) {
	var reservations []models.Reservation
	for rows.Next() {
		b, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *b)
	}
	return reservations, rows.Err()
}

// Scheduled job operations

func (db *DB) UpsertJob(kind models.JobKind, reservationID int64, fireAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO scheduled_jobs (job_kind, reservation_id, fire_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_kind, reservation_id) DO UPDATE
		SET fire_at = EXCLUDED.fire_at
	`, kind, reservationID, fireAt)

	return err
}

func (db *DB) DeleteJob(kind models.JobKind, reservationID int64) error {
	_, err := db.Exec(`
		DELETE FROM scheduled_jobs WHERE job_kind = $1 AND reservation_id = $2
	`, kind, reservationID)

	return err
}

func (db *DB) DeleteJobsFor(reservationID int64) error {
	_, err := db.Exec(`
		DELETE FROM scheduled_jobs WHERE reservation_id = $1
	`, reservationID)

	return err
}

func (db *DB) ListJobs() ([]models.ScheduledJob, error) {
	rows, err := db.Query(`
		SELECT job_kind, reservation_id, fire_at FROM scheduled_jobs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ScheduledJob
	for rows.Next() {
		var j models.ScheduledJob
		if err := rows.Scan(&j.Kind, &j.ReservationID, &j.FireAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrStaleState
	}
	return nil
}
