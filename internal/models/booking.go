package models

import "time"

// BookingStatus tracks the lifecycle of a lesson booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Occupies reports whether a booking in this status blocks its interval.
func (s BookingStatus) Occupies() bool {
	return s == BookingPending || s == BookingConfirmed
}

// CanTransitionTo validates a status change.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCompleted || next == BookingCancelled
	default:
		return false
	}
}

// LessonType defaults to PRACTICAL.
type LessonType string

const (
	LessonPractical LessonType = "PRACTICAL"
	LessonTheory    LessonType = "THEORY"
	LessonTest      LessonType = "TEST"
)

// Booking is a lesson reserved by a learner with an instructor. LearnerID is the
// learner's user id; InstructorUserID is joined from the instructors table.
type Booking struct {
	ID               string        `db:"id" json:"id"`
	LearnerID        string        `db:"learner_id" json:"learner_id"`
	InstructorID     string        `db:"instructor_id" json:"instructor_id"`
	InstructorUserID string        `db:"instructor_user_id" json:"instructor_user_id,omitempty"`
	ScheduledAt      time.Time     `db:"scheduled_at" json:"scheduled_at"`
	Duration         int           `db:"duration" json:"duration"`
	Status           BookingStatus `db:"status" json:"status"`
	LessonType       LessonType    `db:"lesson_type" json:"lesson_type"`
	Location         *string       `db:"location" json:"location,omitempty"`
	Notes            *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
	CancelledAt      *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// End returns the exclusive end of the booked interval.
func (b Booking) End() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.Duration) * time.Minute)
}

// Overlaps tests the booking against [start, end) using half-open intervals.
func (b Booking) Overlaps(start, end time.Time) bool {
	return Overlaps(start, end, b.ScheduledAt, b.End())
}

// Participant reports whether userID is the learner or the instructor of the booking.
func (b Booking) Participant(userID string) bool {
	return userID != "" && (b.LearnerID == userID || b.InstructorUserID == userID)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Assignment pairs a learner with an instructor. Owned by the CRUD service.
type Assignment struct {
	ID               string `db:"id" json:"id"`
	LearnerID        string `db:"learner_id" json:"learner_id"`
	InstructorID     string `db:"instructor_id" json:"instructor_id"`
	InstructorUserID string `db:"instructor_user_id" json:"instructor_user_id"`
	Status           string `db:"status" json:"status"`
}

// Participant reports whether userID is the learner or the instructor on the assignment.
func (a Assignment) Participant(userID string) bool {
	return userID != "" && (a.LearnerID == userID || a.InstructorUserID == userID)
}
