package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

// occupyingView lets the slot resolver read the bookings held by the booking stub.
type occupyingView struct {
	repo *bookingRepoStub
}

func (v occupyingView) ListOccupying(ctx context.Context, instructorID string, from, to time.Time) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range v.repo.snapshot() {
		if b.InstructorID == instructorID && b.Status.Occupies() && b.Overlaps(from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestSchedulingFlowBookThenResolve(t *testing.T) {
	ctx := context.Background()
	instructors := &instructorReaderStub{items: map[string]*models.Instructor{"inst-1": {ID: "inst-1", UserID: "user-inst-1"}}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	availabilityRepo := newAvailabilityRepoStub()
	bookingRepo := newBookingRepoStub()

	availability := NewAvailabilityService(availabilityRepo, instructors, cache, &availabilityNotifierStub{}, time.UTC, nil, zap.NewNop())
	slots := NewSlotService(availabilityRepo, occupyingView{repo: bookingRepo}, instructors, cache, nil, SlotConfig{Location: time.UTC, DefaultDuration: 60, MaxDuration: 240}, zap.NewNop())
	bookings := NewBookingService(bookingRepo, instructors, cache, &bookingNotifierStub{}, &publisherStub{}, nil, BookingConfig{DefaultDuration: 60, MaxDuration: 240}, nil, zap.NewNop())

	_, err := availability.SetAvailability(ctx, instructorActor, "inst-1", SetAvailabilityRequest{
		DayOfWeek:   intPtr(1),
		StartTime:   "09:00",
		EndTime:     "17:00",
		IsRecurring: true,
	})
	require.NoError(t, err)

	before, err := slots.GetAvailableSlots(ctx, "inst-1", "2030-05-06", 60)
	require.NoError(t, err)
	require.Equal(t, 8, before.TotalSlots)
	assert.Equal(t, "09:00", before.Slots[0].Start.Format("15:04"))

	eleven := time.Date(2030, 5, 6, 11, 0, 0, 0, time.UTC)
	_, err = bookings.Create(ctx, learnerActor, CreateBookingRequest{InstructorID: "inst-1", ScheduledAt: eleven})
	require.NoError(t, err)

	after, err := slots.GetAvailableSlots(ctx, "inst-1", "2030-05-06", 60)
	require.NoError(t, err)
	assert.False(t, after.CacheHit)
	assert.Equal(t, 7, after.TotalSlots)
	assert.NotContains(t, slotStarts(after.Slots), "11:00")
	assert.Contains(t, slotStarts(after.Slots), "10:00")
	assert.Contains(t, slotStarts(after.Slots), "12:00")

	second := &models.Identity{UserID: "learner-2", Role: models.RoleLearner, Status: models.UserStatusActive}
	_, err = bookings.Create(ctx, second, CreateBookingRequest{InstructorID: "inst-1", ScheduledAt: eleven, Duration: 60})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotUnavailable.Code, appErrors.FromError(err).Code)
	assert.Equal(t, "instructor not available at the requested time", appErrors.FromError(err).Message)
}
