package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/export"
)

const maxCalendarDays = 62

type calendarAvailabilityReader interface {
	ListActiveInRange(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilitySlot, error)
}

type calendarBookingReader interface {
	ListInRange(ctx context.Context, instructorID string, from, to time.Time) ([]models.Booking, error)
}

type tableRenderer interface {
	Render(data export.Table) ([]byte, error)
}

// CalendarExport is a rendered calendar file.
type CalendarExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CalendarService builds instructor calendars from bookings and availability.
type CalendarService struct {
	availability calendarAvailabilityReader
	bookings     calendarBookingReader
	instructors  instructorReader
	csv          tableRenderer
	pdf          tableRenderer
	location     *time.Location
	logger       *zap.Logger
}

// NewCalendarService constructs the service. Nil renderers default to pkg/export.
func NewCalendarService(availability calendarAvailabilityReader, bookings calendarBookingReader, instructors instructorReader, loc *time.Location, logger *zap.Logger, csv, pdf tableRenderer) *CalendarService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &CalendarService{availability: availability, bookings: bookings, instructors: instructors, csv: csv, pdf: pdf, location: loc, logger: logger}
}

// GetCalendar merges bookings and availability occurrences for the inclusive date
// range [from, to].
func (s *CalendarService) GetCalendar(ctx context.Context, actor *models.Identity, instructorID, from, to string) (*models.InstructorCalendar, error) {
	instructor, err := s.instructors.FindInstructor(ctx, instructorID)
	if err != nil {
		return nil, notFoundOrInternal(err, "instructor not found", "failed to load instructor")
	}
	if actor != nil && !actor.Role.Elevated() && actor.UserID != instructor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot view another instructor's calendar")
	}

	start, err := parseSchoolDate(from, s.location)
	if err != nil {
		return nil, fieldValidation("from", "must be a date in YYYY-MM-DD format")
	}
	last, err := parseSchoolDate(to, s.location)
	if err != nil {
		return nil, fieldValidation("to", "must be a date in YYYY-MM-DD format")
	}
	if last.Before(start) {
		return nil, fieldValidation("to", "must not be before from")
	}
	end := last.AddDate(0, 0, 1)
	if end.Sub(start) > maxCalendarDays*24*time.Hour {
		return nil, fieldValidation("to", fmt.Sprintf("range must not exceed %d days", maxCalendarDays))
	}

	var (
		windows  []models.AvailabilitySlot
		bookings []models.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		windows, err = s.availability.ListActiveInRange(gctx, instructorID, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = s.bookings.ListInRange(gctx, instructorID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
	}

	calendar := &models.InstructorCalendar{InstructorID: instructorID, From: from, To: to, Events: []models.CalendarEvent{}}
	for _, b := range bookings {
		event := models.CalendarEvent{
			ID:        b.ID,
			Type:      models.CalendarEventBooking,
			Title:     lessonTitle(b.LessonType),
			Start:     b.ScheduledAt.In(s.location),
			End:       b.End().In(s.location),
			Status:    string(b.Status),
			LearnerID: b.LearnerID,
		}
		if b.Location != nil {
			event.Location = *b.Location
		}
		calendar.Events = append(calendar.Events, event)
		calendar.Summary.TotalBookings++
		switch b.Status {
		case models.BookingConfirmed:
			calendar.Summary.ConfirmedBookings++
		case models.BookingPending:
			calendar.Summary.PendingBookings++
		}
	}
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		for _, w := range windows {
			if !w.IsActive || !w.AppliesTo(day) {
				continue
			}
			startMin, endMin, ok := w.Window()
			if !ok {
				continue
			}
			calendar.Events = append(calendar.Events, models.CalendarEvent{
				ID:    w.ID + ":" + day.Format("2006-01-02"),
				Type:  models.CalendarEventAvailability,
				Title: "Available",
				Start: wallClock(day, startMin),
				End:   wallClock(day, endMin),
			})
			calendar.Summary.AvailableWindows++
		}
	}
	sort.SliceStable(calendar.Events, func(i, j int) bool {
		return calendar.Events[i].Start.Before(calendar.Events[j].Start)
	})
	return calendar, nil
}

// ExportCalendar renders the calendar as csv or pdf.
func (s *CalendarService) ExportCalendar(ctx context.Context, actor *models.Identity, instructorID, from, to, format string) (*CalendarExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, fieldValidation("format", "must be one of csv pdf")
	}
	calendar, err := s.GetCalendar(ctx, actor, instructorID, from, to)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title:   fmt.Sprintf("Instructor calendar %s to %s", from, to),
		Headers: []string{"Date", "Start", "End", "Type", "Title", "Status", "Learner", "Location"},
	}
	for _, e := range calendar.Events {
		table.Rows = append(table.Rows, []string{
			e.Start.Format("2006-01-02"),
			e.Start.Format("15:04"),
			e.End.Format("15:04"),
			string(e.Type),
			e.Title,
			e.Status,
			e.LearnerID,
			e.Location,
		})
	}

	out := &CalendarExport{Filename: fmt.Sprintf("calendar-%s-%s-%s.%s", instructorID, from, to, format)}
	switch format {
	case "pdf":
		out.ContentType = "application/pdf"
		out.Data, err = s.pdf.Render(table)
	default:
		out.ContentType = "text/csv"
		out.Data, err = s.csv.Render(table)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render calendar")
	}
	return out, nil
}

func lessonTitle(t models.LessonType) string {
	switch t {
	case models.LessonTheory:
		return "Theory lesson"
	case models.LessonTest:
		return "Driving test"
	default:
		return "Practical lesson"
	}
}
