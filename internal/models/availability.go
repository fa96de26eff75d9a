package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ClockPattern is the accepted 24-hour HH:MM format for availability times.
var ClockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ParseClock converts HH:MM into minutes since midnight.
func ParseClock(value string) (int, error) {
	if !ClockPattern.MatchString(value) {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	parts := strings.SplitN(value, ":", 2)
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	return hours*60 + minutes, nil
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AvailabilitySlot is a window in which an instructor can be booked. A slot is
// either week-anchored (IsRecurring with DayOfWeek) or date-anchored (SpecificDate).
type AvailabilitySlot struct {
	ID           string     `db:"id" json:"id"`
	InstructorID string     `db:"instructor_id" json:"instructor_id"`
	DayOfWeek    *int       `db:"day_of_week" json:"day_of_week,omitempty"`
	SpecificDate *time.Time `db:"specific_date" json:"specific_date,omitempty"`
	StartTime    string     `db:"start_time" json:"start_time"`
	EndTime      string     `db:"end_time" json:"end_time"`
	IsRecurring  bool       `db:"is_recurring" json:"is_recurring"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// AppliesTo reports whether the slot yields a window on the calendar day of date.
// Recurring slots match on weekday; any slot with SpecificDate matches that exact day.
func (s AvailabilitySlot) AppliesTo(date time.Time) bool {
	if s.IsRecurring && s.DayOfWeek != nil && *s.DayOfWeek == int(date.Weekday()) {
		return true
	}
	if s.SpecificDate != nil && SameDay(*s.SpecificDate, date) {
		return true
	}
	return false
}

// Window returns the slot bounds in minutes since midnight. ok is false for a
// malformed or empty window.
func (s AvailabilitySlot) Window() (start, end int, ok bool) {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return 0, 0, false
	}
	end, err = ParseClock(s.EndTime)
	if err != nil {
		return 0, 0, false
	}
	if start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// Normalized returns the slot with both bounds rewritten as zero-padded HH:MM so
// stored times sort as text in clock order. A malformed window is returned as is.
func (s AvailabilitySlot) Normalized() AvailabilitySlot {
	if start, end, ok := s.Window(); ok {
		s.StartTime, s.EndTime = FormatClock(start), FormatClock(end)
	}
	return s
}

// Anchored checks the slot is unambiguously week-anchored or date-anchored.
func (s AvailabilitySlot) Anchored() error {
	switch {
	case s.IsRecurring && s.DayOfWeek == nil:
		return fmt.Errorf("recurring slot requires day_of_week")
	case s.IsRecurring && s.SpecificDate != nil:
		return fmt.Errorf("recurring slot cannot carry specific_date")
	case !s.IsRecurring && s.SpecificDate == nil:
		return fmt.Errorf("non-recurring slot requires specific_date")
	case !s.IsRecurring && s.DayOfWeek != nil:
		return fmt.Errorf("non-recurring slot cannot carry day_of_week")
	case s.DayOfWeek != nil && (*s.DayOfWeek < 0 || *s.DayOfWeek > 6):
		return fmt.Errorf("day_of_week must be between 0 and 6")
	}
	return nil
}

// SameDay compares the calendar day of a and b, each read in its own location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// WeeklyTemplate groups active recurring slots by weekday, Sunday being 0.
type WeeklyTemplate map[int][]AvailabilitySlot
