package dto

import "time"

// InboxQuery captures GET /notifications query parameters.
type InboxQuery struct {
	UnreadOnly bool `form:"unread_only"`
	Page       int  `form:"page" binding:"omitempty,min=1"`
	PageSize   int  `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// InboxResponse is one page of a user's notifications.
type InboxResponse struct {
	Items       interface{} `json:"items"`
	UnreadCount int         `json:"unread_count"`
}

// ScheduledNotificationResponse describes a persisted notification job.
type ScheduledNotificationResponse struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// CancelNotificationResponse reports whether a pending job was cancelled.
type CancelNotificationResponse struct {
	JobID     string `json:"job_id"`
	Cancelled bool   `json:"cancelled"`
}

// AnnouncementResponse reports how many users received an announcement.
type AnnouncementResponse struct {
	Recipients int `json:"recipients"`
}

// AssignmentNotifyRequest triggers assignment notices.
type AssignmentNotifyRequest struct {
	Action string `json:"action" binding:"required,oneof=assigned unassigned reassigned updated"`
}
