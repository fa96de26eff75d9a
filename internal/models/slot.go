package models

import "time"

// TimeSlot is a bookable window of the requested duration.
type TimeSlot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration int       `json:"duration"`
}

// AvailableSlots is the slot resolver result for one instructor day.
type AvailableSlots struct {
	InstructorID      string     `json:"instructor_id"`
	Date              string     `json:"date"`
	RequestedDuration int        `json:"requested_duration"`
	TotalSlots        int        `json:"total_slots"`
	Slots             []TimeSlot `json:"slots"`
	CacheHit          bool       `json:"-"`
}
