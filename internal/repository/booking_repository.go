package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/pkg/database"
)

// ErrBookingOverlap is returned when a reservation would overlap an occupying booking.
var ErrBookingOverlap = errors.New("booking overlaps an existing booking")

// exclusion_violation raised by bookings_no_overlap.
const pqExclusionViolation = "23P01"

const bookingSelect = `SELECT b.id, b.learner_id, b.instructor_id, i.user_id AS instructor_user_id, b.scheduled_at, b.duration,
b.status, b.lesson_type, b.location, b.notes, b.created_at, b.updated_at, b.cancelled_at
FROM bookings b JOIN instructors i ON i.id = b.instructor_id`

// BookingRepository persists lesson bookings and enforces the per-instructor no-overlap rule.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// FindByID loads a booking with its instructor's user id.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := bookingSelect + ` WHERE b.id = $1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &booking, nil
}

// ListOccupying returns PENDING and CONFIRMED bookings intersecting [from, to).
func (r *BookingRepository) ListOccupying(ctx context.Context, instructorID string, from, to time.Time) ([]models.Booking, error) {
	query := bookingSelect + ` WHERE b.instructor_id = $1 AND b.status IN ('PENDING', 'CONFIRMED')
AND b.scheduled_at < $3 AND b.ends_at > $2
ORDER BY b.scheduled_at`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, instructorID, from, to); err != nil {
		return nil, fmt.Errorf("list occupying bookings: %w", err)
	}
	return bookings, nil
}

// ListInRange returns bookings of any status starting within [from, to).
func (r *BookingRepository) ListInRange(ctx context.Context, instructorID string, from, to time.Time) ([]models.Booking, error) {
	query := bookingSelect + ` WHERE b.instructor_id = $1 AND b.scheduled_at >= $2 AND b.scheduled_at < $3 ORDER BY b.scheduled_at`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, instructorID, from, to); err != nil {
		return nil, fmt.Errorf("list bookings in range: %w", err)
	}
	return bookings, nil
}

// ListUpcoming returns occupying bookings for the instructor starting at or after since.
func (r *BookingRepository) ListUpcoming(ctx context.Context, instructorID string, since time.Time) ([]models.Booking, error) {
	query := bookingSelect + ` WHERE b.instructor_id = $1 AND b.status IN ('PENDING', 'CONFIRMED') AND b.scheduled_at >= $2 ORDER BY b.scheduled_at`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, instructorID, since); err != nil {
		return nil, fmt.Errorf("list upcoming bookings: %w", err)
	}
	return bookings, nil
}

// CreateExclusive inserts booking after verifying no occupying booking overlaps it.
// The check and the insert share one transaction holding the instructor's advisory lock.
func (r *BookingRepository) CreateExclusive(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	return r.reserve(ctx, booking.InstructorID, booking.ScheduledAt, booking.Duration, "", func(tx *sqlx.Tx) error {
		const insert = `
INSERT INTO bookings (id, learner_id, instructor_id, scheduled_at, duration, ends_at, status, lesson_type, location, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		if _, err := tx.ExecContext(ctx, insert,
			booking.ID, booking.LearnerID, booking.InstructorID, booking.ScheduledAt, booking.Duration, booking.End(),
			booking.Status, booking.LessonType, booking.Location, booking.Notes, booking.CreatedAt, booking.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
}

// RescheduleExclusive moves an occupying booking to a new interval, ignoring the
// booking itself during the overlap check.
func (r *BookingRepository) RescheduleExclusive(ctx context.Context, booking *models.Booking, scheduledAt time.Time, duration int) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}
	return r.reserve(ctx, booking.InstructorID, scheduledAt, duration, booking.ID, func(tx *sqlx.Tx) error {
		const update = `UPDATE bookings SET scheduled_at = $2, duration = $3, ends_at = $4, updated_at = $5 WHERE id = $1 AND status IN ('PENDING', 'CONFIRMED')`
		now := time.Now().UTC()
		endsAt := scheduledAt.Add(time.Duration(duration) * time.Minute)
		result, err := tx.ExecContext(ctx, update, booking.ID, scheduledAt, duration, endsAt, now)
		if err != nil {
			return fmt.Errorf("reschedule booking: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("reschedule rows affected: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		booking.ScheduledAt = scheduledAt
		booking.Duration = duration
		booking.UpdatedAt = now
		return nil
	})
}

func (r *BookingRepository) reserve(ctx context.Context, instructorID string, start time.Time, duration int, excludeID string, write func(tx *sqlx.Tx) error) error {
	end := start.Add(time.Duration(duration) * time.Minute)
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, instructorID); err != nil {
			return fmt.Errorf("lock instructor schedule: %w", err)
		}

		const overlap = `SELECT EXISTS (
SELECT 1 FROM bookings WHERE instructor_id = $1 AND status IN ('PENDING', 'CONFIRMED')
AND scheduled_at < $3 AND ends_at > $2
AND ($4 = '' OR id::text <> $4))`
		var exists bool
		if err := tx.GetContext(ctx, &exists, overlap, instructorID, start, end, excludeID); err != nil {
			return fmt.Errorf("check booking overlap: %w", err)
		}
		if exists {
			return ErrBookingOverlap
		}
		return write(tx)
	})
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqExclusionViolation {
		return ErrBookingOverlap
	}
	return err
}

// UpdateStatus moves a booking from one status to another. sql.ErrNoRows signals the
// booking is missing or no longer in from.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus, notes *string) (*models.Booking, error) {
	now := time.Now().UTC()
	const query = `UPDATE bookings SET status = $3, notes = COALESCE($4, notes), updated_at = $5,
cancelled_at = CASE WHEN $3 = 'CANCELLED' THEN $5 ELSE cancelled_at END
WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, notes, now)
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("booking status rows affected: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}
	return r.FindByID(ctx, id)
}
