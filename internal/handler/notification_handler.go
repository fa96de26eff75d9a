package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/dto"
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/service"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

type notificationService interface {
	ListForUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	ScheduleRequest(ctx context.Context, req service.ScheduleNotificationRequest) (*models.NotificationJob, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	SendSystemAnnouncement(ctx context.Context, req service.AnnouncementRequest) (int, error)
	SendAssignmentNotification(ctx context.Context, assignmentID, action string) error
}

// NotificationHandler exposes the inbox and administrative notification endpoints.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param unread_only query bool false "Only unread"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.InboxQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid pagination parameters"))
		return
	}
	items, pagination, unread, err := h.service.ListForUser(c.Request.Context(), identity.UserID, models.NotificationFilter{
		UnreadOnly: query.UnreadOnly,
		Page:       query.Page,
		PageSize:   query.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.InboxResponse{Items: items, UnreadCount: unread}, pagination)
}

// MarkRead godoc
// @Summary Mark a notification read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	identity := identityFromContext(c)
	if identity == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), identity.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Schedule godoc
// @Summary Schedule a notification for later delivery
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.ScheduleNotificationRequest true "Notification"
// @Success 201 {object} response.Envelope
// @Router /notifications/scheduled [post]
func (h *NotificationHandler) Schedule(c *gin.Context) {
	var req service.ScheduleNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid notification payload"))
		return
	}
	job, err := h.service.ScheduleRequest(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.ScheduledNotificationResponse{JobID: job.ID, Status: string(job.State()), ScheduledAt: job.ScheduledAt})
}

// Cancel godoc
// @Summary Cancel a scheduled notification
// @Tags Notifications
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /notifications/scheduled/{id} [delete]
func (h *NotificationHandler) Cancel(c *gin.Context) {
	jobID := c.Param("id")
	cancelled, err := h.service.Cancel(c.Request.Context(), jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CancelNotificationResponse{JobID: jobID, Cancelled: cancelled}, nil)
}

// Announce godoc
// @Summary Send a system announcement
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.AnnouncementRequest true "Announcement"
// @Success 200 {object} response.Envelope
// @Router /notifications/announcements [post]
func (h *NotificationHandler) Announce(c *gin.Context) {
	var req service.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid announcement payload"))
		return
	}
	sent, err := h.service.SendSystemAnnouncement(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AnnouncementResponse{Recipients: sent}, nil)
}

// NotifyAssignment godoc
// @Summary Notify both participants of an assignment change
// @Tags Notifications
// @Accept json
// @Param id path string true "Assignment ID"
// @Param payload body dto.AssignmentNotifyRequest true "Action"
// @Success 204
// @Router /assignments/{id}/notify [post]
func (h *NotificationHandler) NotifyAssignment(c *gin.Context) {
	var req dto.AssignmentNotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "action must be one of assigned, unassigned, reassigned, updated"))
		return
	}
	if err := h.service.SendAssignmentNotification(c.Request.Context(), c.Param("id"), req.Action); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
