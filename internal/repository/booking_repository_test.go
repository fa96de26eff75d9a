package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
)

const (
	lockQuery    = "SELECT pg_advisory_xact_lock(hashtext($1))"
	overlapQuery = "SELECT 1 FROM bookings WHERE instructor_id = $1 AND status IN ('PENDING', 'CONFIRMED')"
)

func newBooking(at time.Time) *models.Booking {
	return &models.Booking{
		LearnerID:    "learner-1",
		InstructorID: "ins-1",
		ScheduledAt:  at,
		Duration:     60,
		Status:       models.BookingConfirmed,
		LessonType:   models.LessonPractical,
	}
}

func TestBookingRepositoryCreateExclusive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	at := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WithArgs("ins-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(overlapQuery)).
		WithArgs("ins-1", at, at.Add(time.Hour), "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings (id, learner_id, instructor_id, scheduled_at, duration, ends_at,")).
		WithArgs(sqlmock.AnyArg(), "learner-1", "ins-1", at, 60, at.Add(time.Hour),
			models.BookingConfirmed, models.LessonPractical, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	booking := newBooking(at)
	require.NoError(t, repo.CreateExclusive(context.Background(), booking))
	assert.NotEmpty(t, booking.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreateExclusiveRejectsOverlap(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	at := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WithArgs("ins-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(overlapQuery)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.CreateExclusive(context.Background(), newBooking(at))
	assert.ErrorIs(t, err, ErrBookingOverlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCreateExclusiveMapsExclusionViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	at := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(overlapQuery)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).WillReturnError(&pq.Error{Code: "23P01"})
	mock.ExpectRollback()

	err := repo.CreateExclusive(context.Background(), newBooking(at))
	assert.ErrorIs(t, err, ErrBookingOverlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryRescheduleExcludesSelf(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	at := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	next := at.Add(30 * time.Minute)

	booking := newBooking(at)
	booking.ID = "b-1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WithArgs("ins-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(overlapQuery)).
		WithArgs("ins-1", next, next.Add(90*time.Minute), "b-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET scheduled_at = $2, duration = $3, ends_at = $4")).
		WithArgs("b-1", next, 90, next.Add(90*time.Minute), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RescheduleExclusive(context.Background(), booking, next, 90))
	assert.Equal(t, next, booking.ScheduledAt)
	assert.Equal(t, 90, booking.Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryUpdateStatusStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $3")).
		WithArgs("b-1", models.BookingPending, models.BookingConfirmed, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.UpdateStatus(context.Background(), "b-1", models.BookingPending, models.BookingConfirmed, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListOccupying(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)
	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	rows := sqlmock.NewRows([]string{"id", "learner_id", "instructor_id", "instructor_user_id", "scheduled_at", "duration", "status", "lesson_type", "location", "notes", "created_at", "updated_at", "cancelled_at"}).
		AddRow("b-1", "learner-1", "ins-1", "user-ins", from.Add(10*time.Hour), 60, "CONFIRMED", "PRACTICAL", nil, nil, from, from, nil)
	mock.ExpectQuery(regexp.QuoteMeta("b.scheduled_at < $3 AND b.ends_at > $2")).
		WithArgs("ins-1", from, to).
		WillReturnRows(rows)

	bookings, err := repo.ListOccupying(context.Background(), "ins-1", from, to)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "user-ins", bookings[0].InstructorUserID)
	assert.Equal(t, models.BookingConfirmed, bookings[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
