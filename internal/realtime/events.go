package realtime

import (
	"encoding/json"
	"strings"
	"time"
)

// Client events.
const (
	EventAuthenticate          = "authenticate"
	EventJoinAssignment        = "join-assignment"
	EventLeaveAssignment       = "leave-assignment"
	EventJoinLesson            = "join-lesson"
	EventLeaveLesson           = "leave-lesson"
	EventSendAssignmentMessage = "send-assignment-message"
	EventLessonStatusUpdate    = "lesson-status-update"
	EventMarkNotificationRead  = "mark-notification-read"
	EventGetNotifications      = "get-notifications"
)

// Server events.
const (
	EventAuthenticated     = "authenticated"
	EventJoinedAssignment  = "joined-assignment"
	EventLeftAssignment    = "left-assignment"
	EventJoinedLesson      = "joined-lesson"
	EventLeftLesson        = "left-lesson"
	EventAssignmentMessage = "assignment-message"
	EventNotificationRead  = "notification-read"
	EventNotifications     = "notifications"
	EventError             = "error"
)

// Inbound is a message received from a client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a message pushed to a client.
type Outbound struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorPayload accompanies the error event.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type authRequest struct {
	Token string `json:"token"`
}

type assignmentMessageRequest struct {
	AssignmentID string `json:"assignment_id"`
	Message      string `json:"message"`
}

type lessonStatusRequest struct {
	LessonID string  `json:"lesson_id"`
	Status   string  `json:"status"`
	Notes    *string `json:"notes"`
}

// AssignmentMessage is broadcast to an assignment room.
type AssignmentMessage struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	SenderID     string    `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// idFrom reads an identifier sent either as a bare JSON string or as an object field.
func idFrom(raw json.RawMessage, field string) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if v, ok := obj[field].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
