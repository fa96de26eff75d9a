package models

import "time"

// CalendarEventType distinguishes bookings from open availability on the calendar.
type CalendarEventType string

const (
	CalendarEventBooking      CalendarEventType = "booking"
	CalendarEventAvailability CalendarEventType = "availability"
)

// CalendarEvent is a single entry on an instructor calendar.
type CalendarEvent struct {
	ID        string            `json:"id"`
	Type      CalendarEventType `json:"type"`
	Title     string            `json:"title"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Status    string            `json:"status,omitempty"`
	LearnerID string            `json:"learner_id,omitempty"`
	Location  string            `json:"location,omitempty"`
}

// CalendarSummary counts the events in a calendar range.
type CalendarSummary struct {
	TotalBookings     int `json:"total_bookings"`
	ConfirmedBookings int `json:"confirmed_bookings"`
	PendingBookings   int `json:"pending_bookings"`
	AvailableWindows  int `json:"available_windows"`
}

// InstructorCalendar merges bookings and availability for a date range.
type InstructorCalendar struct {
	InstructorID string          `json:"instructor_id"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Events       []CalendarEvent `json:"events"`
	Summary      CalendarSummary `json:"summary"`
}
