package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type calendarAvailabilityStub struct {
	slots []models.AvailabilitySlot
}

func (s *calendarAvailabilityStub) ListActiveInRange(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	return s.slots, nil
}

type calendarBookingStub struct {
	bookings []models.Booking
}

func (s *calendarBookingStub) ListInRange(ctx context.Context, instructorID string, from, to time.Time) ([]models.Booking, error) {
	return s.bookings, nil
}

func newCalendarFixture() *CalendarService {
	availability := &calendarAvailabilityStub{slots: []models.AvailabilitySlot{weeklyWindow(1, "09:00", "12:00")}}
	bookings := &calendarBookingStub{bookings: []models.Booking{
		{ID: "b1", LearnerID: "learner-1", InstructorID: "inst-1", ScheduledAt: time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC), Duration: 60, Status: models.BookingConfirmed, LessonType: models.LessonPractical},
		{ID: "b2", LearnerID: "learner-2", InstructorID: "inst-1", ScheduledAt: time.Date(2030, 5, 7, 8, 0, 0, 0, time.UTC), Duration: 60, Status: models.BookingPending, LessonType: models.LessonTest},
	}}
	instructors := &instructorReaderStub{items: map[string]*models.Instructor{"inst-1": {ID: "inst-1", UserID: "user-inst-1"}}}
	return NewCalendarService(availability, bookings, instructors, time.UTC, zap.NewNop(), nil, nil)
}

func TestCalendarServiceGetCalendar(t *testing.T) {
	svc := newCalendarFixture()

	calendar, err := svc.GetCalendar(context.Background(), instructorActor, "inst-1", "2030-05-06", "2030-05-13")
	require.NoError(t, err)
	assert.Equal(t, 2, calendar.Summary.TotalBookings)
	assert.Equal(t, 1, calendar.Summary.ConfirmedBookings)
	assert.Equal(t, 1, calendar.Summary.PendingBookings)
	assert.Equal(t, 2, calendar.Summary.AvailableWindows)
	require.Len(t, calendar.Events, 4)
	assert.Equal(t, models.CalendarEventAvailability, calendar.Events[0].Type)
	assert.Equal(t, "b1", calendar.Events[1].ID)
	assert.Equal(t, "Driving test", calendar.Events[2].Title)
}

func TestCalendarServiceValidation(t *testing.T) {
	svc := newCalendarFixture()
	ctx := context.Background()

	_, err := svc.GetCalendar(ctx, nil, "inst-1", "2030-05-10", "2030-05-01")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.GetCalendar(ctx, nil, "inst-1", "2030-01-01", "2030-06-01")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	other := &models.Identity{UserID: "user-inst-9", Role: models.RoleInstructor}
	_, err = svc.GetCalendar(ctx, other, "inst-1", "2030-05-06", "2030-05-07")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCalendarServiceExport(t *testing.T) {
	svc := newCalendarFixture()
	ctx := context.Background()

	csvFile, err := svc.ExportCalendar(ctx, nil, "inst-1", "2030-05-06", "2030-05-07", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csvFile.ContentType)
	assert.True(t, strings.HasPrefix(string(csvFile.Data), "Date,Start,End"))
	assert.Contains(t, string(csvFile.Data), "2030-05-06,10:00,11:00,booking,Practical lesson,CONFIRMED,learner-1")

	pdfFile, err := svc.ExportCalendar(ctx, nil, "inst-1", "2030-05-06", "2030-05-07", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfFile.ContentType)
	assert.True(t, strings.HasPrefix(string(pdfFile.Data), "%PDF"))

	_, err = svc.ExportCalendar(ctx, nil, "inst-1", "2030-05-06", "2030-05-07", "xlsx")
	require.Error(t, err)
}
