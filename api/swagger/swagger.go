package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Driving School Scheduling API",
        "description": "Availability, bookings, scheduled notifications and realtime lesson channels",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Availability", "description": "Instructor availability windows and bookable slots"},
        {"name": "Calendar", "description": "Instructor calendar views and exports"},
        {"name": "Bookings", "description": "Lesson booking lifecycle"},
        {"name": "Notifications", "description": "Inbox, scheduled notices and announcements"},
        {"name": "Realtime", "description": "Websocket channel"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "security": [],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "security": [],
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/ws": {
            "get": {
                "tags": ["Realtime"],
                "summary": "Open a realtime session",
                "description": "Token may be passed as a query parameter, a bearer header or an authenticate event sent as the first frame.",
                "security": [],
                "parameters": [
                    {"name": "token", "in": "query", "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching protocols"},
                    "401": {"description": "Invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/instructors/{id}/availability": {
            "get": {
                "tags": ["Availability"],
                "summary": "List availability windows",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Instructor not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Availability"],
                "summary": "Add an availability window",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetAvailabilityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlapping window", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/instructors/{id}/availability/bulk": {
            "put": {
                "tags": ["Availability"],
                "summary": "Replace or extend the weekly template",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkSetAvailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/instructors/{id}/availability/template": {
            "get": {
                "tags": ["Availability"],
                "summary": "Weekly template grouped by day",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/instructors/{id}/available-slots": {
            "get": {
                "tags": ["Availability"],
                "summary": "Bookable slots for a date",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "date", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "duration", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/availability/{slotId}": {
            "delete": {
                "tags": ["Availability"],
                "summary": "Deactivate an availability window",
                "parameters": [
                    {"name": "slotId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Deactivated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the owner", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/instructors/{id}/calendar": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Instructor calendar for a range",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "required": true, "type": "string", "format": "date"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/instructors/{id}/calendar/export": {
            "get": {
                "tags": ["Calendar"],
                "summary": "Export the calendar as CSV or PDF",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "required": true, "type": "string", "format": "date"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/api/v1/bookings": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Create a booking",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBookingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/bookings/{id}": {
            "get": {
                "tags": ["Bookings"],
                "summary": "Get a booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/bookings/{id}/reschedule": {
            "patch": {
                "tags": ["Bookings"],
                "summary": "Move a booking",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RescheduleBookingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/bookings/{id}/status": {
            "patch": {
                "tags": ["Bookings"],
                "summary": "Change the lesson status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateBookingStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's inbox",
                "parameters": [
                    {"name": "unread_only", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/notifications/{id}/read": {
            "patch": {
                "tags": ["Notifications"],
                "summary": "Mark a notification read",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Marked"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/notifications/scheduled": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Schedule a notification",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleNotificationRequest"}}
                ],
                "responses": {"201": {"description": "Scheduled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/notifications/scheduled/{id}": {
            "delete": {
                "tags": ["Notifications"],
                "summary": "Cancel a scheduled notification",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/notifications/announcements": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Send a system announcement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AnnouncementRequest"}}
                ],
                "responses": {"200": {"description": "Sent", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/assignments/{id}/notify": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Notify the parties of an instructor assignment change",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignmentNotifyRequest"}}
                ],
                "responses": {"204": {"description": "Sent"}}
            }
        }
    },
    "definitions": {
        "SetAvailabilityRequest": {
            "type": "object",
            "required": ["start_time", "end_time"],
            "properties": {
                "day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
                "specific_date": {"type": "string", "format": "date"},
                "start_time": {"type": "string", "example": "09:00"},
                "end_time": {"type": "string", "example": "12:00"},
                "is_recurring": {"type": "boolean"}
            }
        },
        "WeeklyWindow": {
            "type": "object",
            "required": ["day_of_week", "start_time", "end_time"],
            "properties": {
                "day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"}
            }
        },
        "BulkSetAvailabilityRequest": {
            "type": "object",
            "properties": {
                "slots": {"type": "array", "items": {"$ref": "#/definitions/WeeklyWindow"}},
                "overwrite_existing": {"type": "boolean"}
            }
        },
        "CreateBookingRequest": {
            "type": "object",
            "required": ["instructor_id", "scheduled_at"],
            "properties": {
                "learner_id": {"type": "string"},
                "instructor_id": {"type": "string"},
                "scheduled_at": {"type": "string", "format": "date-time"},
                "duration": {"type": "integer"},
                "lesson_type": {"type": "string", "enum": ["PRACTICAL", "THEORY", "TEST"]},
                "location": {"type": "string"},
                "notes": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "CONFIRMED"]}
            }
        },
        "RescheduleBookingRequest": {
            "type": "object",
            "required": ["scheduled_at"],
            "properties": {
                "scheduled_at": {"type": "string", "format": "date-time"},
                "duration": {"type": "integer"}
            }
        },
        "UpdateBookingStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["PENDING", "CONFIRMED", "CANCELLED", "COMPLETED"]},
                "notes": {"type": "string"}
            }
        },
        "ScheduleNotificationRequest": {
            "type": "object",
            "required": ["type", "user_id", "title", "message", "scheduled_at"],
            "properties": {
                "type": {"type": "string"},
                "user_id": {"type": "string"},
                "title": {"type": "string"},
                "message": {"type": "string"},
                "priority": {"type": "string", "enum": ["LOW", "MEDIUM", "HIGH", "URGENT"]},
                "action_url": {"type": "string"},
                "reference_id": {"type": "string"},
                "scheduled_at": {"type": "string", "format": "date-time"}
            }
        },
        "AnnouncementRequest": {
            "type": "object",
            "required": ["title", "message"],
            "properties": {
                "title": {"type": "string"},
                "message": {"type": "string"},
                "target_role": {"type": "string", "enum": ["SUPER_ADMIN", "ADMIN", "INSTRUCTOR", "LEARNER"]}
            }
        },
        "AssignmentNotifyRequest": {
            "type": "object",
            "required": ["action"],
            "properties": {
                "action": {"type": "string", "enum": ["assigned", "unassigned", "reassigned", "updated"]}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
