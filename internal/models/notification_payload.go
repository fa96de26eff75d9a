package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Payload is the structured body attached to a notification. Each concrete
// payload belongs to exactly one NotificationType.
type Payload interface {
	NotificationType() NotificationType
}

// LessonReminderPayload accompanies reminders derived from a booking.
type LessonReminderPayload struct {
	BookingID   string    `json:"booking_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Offset      string    `json:"offset"`
}

func (LessonReminderPayload) NotificationType() NotificationType { return NotificationLessonReminder }

// BookingDetails is shared by booking notices.
type BookingDetails struct {
	BookingID    string        `json:"booking_id"`
	InstructorID string        `json:"instructor_id"`
	LearnerID    string        `json:"learner_id"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	Duration     int           `json:"duration"`
	Status       BookingStatus `json:"status"`
}

// BookingConfirmationPayload is sent to both participants once a booking is confirmed.
type BookingConfirmationPayload struct {
	BookingDetails
}

func (BookingConfirmationPayload) NotificationType() NotificationType {
	return NotificationBookingConfirmation
}

// BookingCancellationPayload is sent when a booking is cancelled.
type BookingCancellationPayload struct {
	BookingDetails
	Reason string `json:"reason,omitempty"`
}

func (BookingCancellationPayload) NotificationType() NotificationType {
	return NotificationBookingCancellation
}

// AssignmentPayload accompanies assignment notices.
type AssignmentPayload struct {
	AssignmentID string `json:"assignment_id"`
	Action       string `json:"action"`
	InstructorID string `json:"instructor_id"`
	LearnerID    string `json:"learner_id"`
}

func (AssignmentPayload) NotificationType() NotificationType {
	return NotificationInstructorAssignment
}

// AvailabilityChangePayload tells a learner their instructor changed availability.
type AvailabilityChangePayload struct {
	InstructorID string `json:"instructor_id"`
	BookingID    string `json:"booking_id,omitempty"`
	Change       string `json:"change"`
}

func (AvailabilityChangePayload) NotificationType() NotificationType {
	return NotificationAvailabilityChange
}

// AnnouncementPayload accompanies system announcements.
type AnnouncementPayload struct {
	TargetRole UserRole `json:"target_role,omitempty"`
}

func (AnnouncementPayload) NotificationType() NotificationType {
	return NotificationSystemAnnouncement
}

// LessonStatusPayload reports an instructor driven lesson status change.
type LessonStatusPayload struct {
	BookingID string        `json:"booking_id"`
	Status    BookingStatus `json:"status"`
	Notes     string        `json:"notes,omitempty"`
}

func (LessonStatusPayload) NotificationType() NotificationType { return NotificationLessonStatus }

// AssignmentMessagePayload tells a participant about a message posted in an
// assignment room.
type AssignmentMessagePayload struct {
	AssignmentID string `json:"assignment_id"`
	SenderID     string `json:"sender_id"`
	SenderName   string `json:"sender_name"`
}

func (AssignmentMessagePayload) NotificationType() NotificationType {
	return NotificationAssignmentMessage
}

var payloadFactories = map[NotificationType]func() Payload{
	NotificationLessonReminder:       func() Payload { return &LessonReminderPayload{} },
	NotificationBookingConfirmation:  func() Payload { return &BookingConfirmationPayload{} },
	NotificationBookingCancellation:  func() Payload { return &BookingCancellationPayload{} },
	NotificationInstructorAssignment: func() Payload { return &AssignmentPayload{} },
	NotificationAvailabilityChange:   func() Payload { return &AvailabilityChangePayload{} },
	NotificationSystemAnnouncement:   func() Payload { return &AnnouncementPayload{} },
	NotificationLessonStatus:         func() Payload { return &LessonStatusPayload{} },
	NotificationAssignmentMessage:    func() Payload { return &AssignmentMessagePayload{} },
}

type payloadEnvelope struct {
	Type NotificationType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// EncodePayload serialises p into the tagged metadata column. A nil payload
// encodes to an empty object.
func EncodePayload(p Payload) (types.JSONText, error) {
	if p == nil {
		return types.JSONText(`{}`), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.NotificationType(), err)
	}
	raw, err := json.Marshal(payloadEnvelope{Type: p.NotificationType(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode payload envelope: %w", err)
	}
	return types.JSONText(raw), nil
}

// DecodePayload reads a tagged metadata column and checks it belongs to want.
// Empty metadata decodes to a nil payload.
func DecodePayload(want NotificationType, raw types.JSONText) (Payload, error) {
	if len(raw) == 0 || string(raw) == `{}` || string(raw) == "null" {
		return nil, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	if env.Type != want {
		return nil, fmt.Errorf("payload type %q does not match notification type %q", env.Type, want)
	}
	factory, ok := payloadFactories[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown payload type %q", env.Type)
	}
	p := factory()
	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return p, nil
}
