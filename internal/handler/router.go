package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/middleware"
	"github.com/noah-isme/driving-school-api/internal/models"
)

// Routes groups the handlers mounted on the API.
type Routes struct {
	Availability *AvailabilityHandler
	Calendar     *CalendarHandler
	Bookings     *BookingHandler
	Notification *NotificationHandler
	Metrics      *MetricsHandler
	Realtime     gin.HandlerFunc
}

// Register mounts every route. auth must verify the caller and store its identity.
func (r Routes) Register(engine *gin.Engine, prefix string, auth gin.HandlerFunc) {
	if r.Metrics != nil {
		engine.GET("/health", r.Metrics.Health)
		engine.GET("/ready", r.Metrics.Ready)
		engine.GET("/metrics", r.Metrics.Prometheus)
	}
	if r.Realtime != nil {
		engine.GET("/ws", r.Realtime)
	}

	api := engine.Group(prefix, middleware.WithResponseMeta(), auth)
	staff := middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)

	if h := r.Availability; h != nil {
		api.POST("/instructors/:id/availability", staff, h.Set)
		api.PUT("/instructors/:id/availability/bulk", staff, h.BulkSet)
		api.GET("/instructors/:id/availability", h.List)
		api.GET("/instructors/:id/availability/template", h.Template)
		api.GET("/instructors/:id/available-slots", h.AvailableSlots)
		api.DELETE("/availability/:slotId", staff, h.Deactivate)
	}
	if h := r.Calendar; h != nil {
		api.GET("/instructors/:id/calendar", staff, h.Get)
		api.GET("/instructors/:id/calendar/export", staff, h.Export)
	}
	if h := r.Bookings; h != nil {
		api.POST("/bookings", h.Create)
		api.GET("/bookings/:id", h.Get)
		api.PATCH("/bookings/:id/reschedule", h.Reschedule)
		api.PATCH("/bookings/:id/status", staff, h.UpdateStatus)
	}
	if h := r.Notification; h != nil {
		api.GET("/notifications", h.List)
		api.PATCH("/notifications/:id/read", h.MarkRead)
		api.POST("/notifications/scheduled", admin, h.Schedule)
		api.DELETE("/notifications/scheduled/:id", admin, h.Cancel)
		api.POST("/notifications/announcements", admin, h.Announce)
		api.POST("/assignments/:id/notify", admin, h.NotifyAssignment)
	}
}
