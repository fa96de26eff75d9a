package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationType enumerates the notices the scheduler can deliver.
type NotificationType string

const (
	NotificationLessonReminder       NotificationType = "lesson_reminder"
	NotificationBookingConfirmation  NotificationType = "booking_confirmation"
	NotificationBookingCancellation  NotificationType = "booking_cancellation"
	NotificationAvailabilityChange   NotificationType = "availability_change"
	NotificationInstructorAssignment NotificationType = "instructor_assignment"
	NotificationSystemAnnouncement   NotificationType = "system_announcement"
	NotificationLessonStatus         NotificationType = "lesson_status"
	NotificationAssignmentMessage    NotificationType = "assignment_message"
)

// NotificationPriority orders notices by urgency.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityMedium NotificationPriority = "MEDIUM"
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityUrgent NotificationPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p NotificationPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// JobState is derived from the sent and cancelled flags.
type JobState string

const (
	JobPending   JobState = "pending"
	JobSent      JobState = "sent"
	JobCancelled JobState = "cancelled"
)

// NotificationJob is a persisted notice due at ScheduledAt. Sent and Cancelled are
// mutually exclusive terminal flags.
type NotificationJob struct {
	ID          string               `db:"id" json:"id"`
	Type        NotificationType     `db:"type" json:"type"`
	UserID      string               `db:"user_id" json:"user_id"`
	Title       string               `db:"title" json:"title"`
	Message     string               `db:"message" json:"message"`
	Priority    NotificationPriority `db:"priority" json:"priority"`
	ScheduledAt time.Time            `db:"scheduled_at" json:"scheduled_at"`
	Sent        bool                 `db:"sent" json:"sent"`
	Cancelled   bool                 `db:"cancelled" json:"cancelled"`
	SentAt      *time.Time           `db:"sent_at" json:"sent_at,omitempty"`
	CancelledAt *time.Time           `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ActionURL   *string              `db:"action_url" json:"action_url,omitempty"`
	ReferenceID *string              `db:"reference_id" json:"reference_id,omitempty"`
	Attempts    int                  `db:"attempts" json:"attempts"`
	Metadata    types.JSONText       `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
}

// State returns the lifecycle state of the job.
func (j NotificationJob) State() JobState {
	switch {
	case j.Sent:
		return JobSent
	case j.Cancelled:
		return JobCancelled
	default:
		return JobPending
	}
}

// Notification is an inbox entry persisted when a notice is delivered.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	UserID    string               `db:"user_id" json:"user_id"`
	JobID     *string              `db:"job_id" json:"job_id,omitempty"`
	Type      NotificationType     `db:"type" json:"type"`
	Title     string               `db:"title" json:"title"`
	Message   string               `db:"message" json:"message"`
	Priority  NotificationPriority `db:"priority" json:"priority"`
	ActionURL *string              `db:"action_url" json:"action_url,omitempty"`
	Metadata  types.JSONText       `db:"metadata" json:"metadata,omitempty"`
	Read      bool                 `db:"read" json:"read"`
	ReadAt    *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// NotificationRequest describes a notice before it is persisted.
type NotificationRequest struct {
	Type        NotificationType
	UserID      string
	Title       string
	Message     string
	Priority    NotificationPriority
	ActionURL   string
	ReferenceID string
	Payload     Payload
}

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}
