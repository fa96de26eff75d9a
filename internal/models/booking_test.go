package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookingOverlapsIsHalfOpen(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	b := Booking{ScheduledAt: start, Duration: 60}

	assert.Equal(t, start.Add(time.Hour), b.End())
	assert.False(t, b.Overlaps(start.Add(-time.Hour), start))
	assert.False(t, b.Overlaps(start.Add(time.Hour), start.Add(2*time.Hour)))
	assert.True(t, b.Overlaps(start.Add(59*time.Minute), start.Add(2*time.Hour)))
	assert.True(t, b.Overlaps(start.Add(-time.Hour), start.Add(time.Minute)))
}

func TestBookingStatusTransitions(t *testing.T) {
	assert.True(t, BookingPending.CanTransitionTo(BookingConfirmed))
	assert.True(t, BookingPending.CanTransitionTo(BookingCancelled))
	assert.True(t, BookingConfirmed.CanTransitionTo(BookingCompleted))
	assert.False(t, BookingPending.CanTransitionTo(BookingCompleted))
	assert.False(t, BookingCancelled.CanTransitionTo(BookingConfirmed))
	assert.False(t, BookingCompleted.CanTransitionTo(BookingCancelled))

	assert.True(t, BookingPending.Occupies())
	assert.False(t, BookingCancelled.Occupies())
}

func TestBookingParticipant(t *testing.T) {
	b := Booking{LearnerID: "user-l", InstructorUserID: "user-i"}
	assert.True(t, b.Participant("user-l"))
	assert.True(t, b.Participant("user-i"))
	assert.False(t, b.Participant("user-x"))
	assert.False(t, Booking{}.Participant(""))
}
