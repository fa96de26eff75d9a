package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/service"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type notificationServiceMock struct {
	filter      models.NotificationFilter
	userID      string
	scheduleReq service.ScheduleNotificationRequest
	cancelled   bool
	action      string
	err         error
}

func (m *notificationServiceMock) ListForUser(_ context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, int, error) {
	m.userID, m.filter = userID, filter
	return []models.Notification{{ID: "n1", UserID: userID}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, 3, m.err
}

func (m *notificationServiceMock) MarkRead(_ context.Context, userID, _ string) error {
	m.userID = userID
	return m.err
}

func (m *notificationServiceMock) ScheduleRequest(_ context.Context, req service.ScheduleNotificationRequest) (*models.NotificationJob, error) {
	m.scheduleReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.NotificationJob{ID: "job-1", ScheduledAt: req.ScheduledAt}, nil
}

func (m *notificationServiceMock) Cancel(context.Context, string) (bool, error) {
	return m.cancelled, m.err
}

func (m *notificationServiceMock) SendSystemAnnouncement(context.Context, service.AnnouncementRequest) (int, error) {
	return 12, m.err
}

func (m *notificationServiceMock) SendAssignmentNotification(_ context.Context, _ string, action string) error {
	m.action = action
	return m.err
}

var adminIdentity = &models.Identity{UserID: "user-a1", Role: models.RoleAdmin}

func TestNotificationHandlerListUsesCaller(t *testing.T) {
	svc := &notificationServiceMock{}
	h := NewNotificationHandler(svc)
	c, w := testContext(http.MethodGet, "/notifications?unread_only=true&page=2&page_size=5", nil, learnerIdentity, nil)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-l1", svc.userID)
	assert.Equal(t, models.NotificationFilter{UnreadOnly: true, Page: 2, PageSize: 5}, svc.filter)
	assert.Contains(t, w.Body.String(), `"unread_count":3`)
	assert.Contains(t, w.Body.String(), `"pagination"`)
}

func TestNotificationHandlerListRequiresIdentity(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceMock{})
	c, w := testContext(http.MethodGet, "/notifications", nil, nil, nil)

	h.List(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceMock{})
	c, w := testContext(http.MethodPatch, "/notifications/n1/read", nil, learnerIdentity, gin.Params{{Key: "id", Value: "n1"}})

	h.MarkRead(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNotificationHandlerMarkReadNotFound(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "notification not found")})
	c, w := testContext(http.MethodPatch, "/notifications/other/read", nil, learnerIdentity, gin.Params{{Key: "id", Value: "other"}})

	h.MarkRead(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandlerSchedule(t *testing.T) {
	svc := &notificationServiceMock{}
	h := NewNotificationHandler(svc)
	body := []byte(`{"type":"system_announcement","user_id":"user-l1","title":"Road closure","message":"Test route closed","priority":"HIGH","scheduled_at":"2030-01-01T08:00:00Z"}`)
	c, w := testContext(http.MethodPost, "/notifications/scheduled", body, adminIdentity, nil)

	h.Schedule(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.PriorityHigh, svc.scheduleReq.Priority)
	assert.True(t, svc.scheduleReq.ScheduledAt.Equal(time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)))
	assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)
}

func TestNotificationHandlerCancelReportsOutcome(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceMock{cancelled: false})
	c, w := testContext(http.MethodDelete, "/notifications/scheduled/job-1", nil, adminIdentity, gin.Params{{Key: "id", Value: "job-1"}})

	h.Cancel(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":false`)
}

func TestNotificationHandlerAnnounce(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceMock{})
	c, w := testContext(http.MethodPost, "/notifications/announcements", []byte(`{"title":"Closed Monday","message":"Public holiday"}`), adminIdentity, nil)

	h.Announce(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recipients":12`)
}

func TestNotificationHandlerNotifyAssignmentValidatesAction(t *testing.T) {
	svc := &notificationServiceMock{}
	h := NewNotificationHandler(svc)
	c, w := testContext(http.MethodPost, "/assignments/a1/notify", []byte(`{"action":"deleted"}`), adminIdentity, gin.Params{{Key: "id", Value: "a1"}})

	h.NotifyAssignment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.action)
}

func TestNotificationHandlerNotifyAssignment(t *testing.T) {
	svc := &notificationServiceMock{}
	h := NewNotificationHandler(svc)
	c, w := testContext(http.MethodPost, "/assignments/a1/notify", []byte(`{"action":"assigned"}`), adminIdentity, gin.Params{{Key: "id", Value: "a1"}})

	h.NotifyAssignment(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "assigned", svc.action)
}
