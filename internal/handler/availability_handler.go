package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/dto"
	"github.com/noah-isme/driving-school-api/internal/middleware"
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/service"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

type availabilityService interface {
	SetAvailability(ctx context.Context, actor *models.Identity, instructorID string, req service.SetAvailabilityRequest) (*models.AvailabilitySlot, error)
	BulkSetAvailability(ctx context.Context, actor *models.Identity, instructorID string, req service.BulkSetAvailabilityRequest) ([]models.AvailabilitySlot, error)
	Deactivate(ctx context.Context, actor *models.Identity, slotID string) (*models.AvailabilitySlot, error)
	ListActive(ctx context.Context, instructorID string, forDate *time.Time) ([]models.AvailabilitySlot, error)
	WeeklyTemplate(ctx context.Context, instructorID string) (models.WeeklyTemplate, error)
	ParseDate(raw string) (time.Time, error)
}

type slotService interface {
	GetAvailableSlots(ctx context.Context, instructorID, date string, duration int) (*models.AvailableSlots, error)
}

// AvailabilityHandler exposes instructor availability and slot endpoints.
type AvailabilityHandler struct {
	availability availabilityService
	slots        slotService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(availability availabilityService, slots slotService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability, slots: slots}
}

// Set godoc
// @Summary Add an availability window
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body service.SetAvailabilityRequest true "Availability window"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /instructors/{id}/availability [post]
func (h *AvailabilityHandler) Set(c *gin.Context) {
	var req service.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid availability payload"))
		return
	}
	slot, err := h.availability.SetAvailability(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// BulkSet godoc
// @Summary Replace the weekly availability template
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body service.BulkSetAvailabilityRequest true "Weekly windows"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/availability/bulk [put]
func (h *AvailabilityHandler) BulkSet(c *gin.Context) {
	var req service.BulkSetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid availability payload"))
		return
	}
	slots, err := h.availability.BulkSetAvailability(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(slots))
	middleware.SetMeta(c, "overwrite_existing", req.OverwriteExisting)
	response.JSON(c, http.StatusOK, slots, nil, middleware.ExtractMeta(c))
}

// List godoc
// @Summary List active availability
// @Tags Availability
// @Produce json
// @Param id path string true "Instructor ID"
// @Param date query string false "Only windows applying to this date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	var forDate *time.Time
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		date, err := h.availability.ParseDate(raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		forDate = &date
	}
	slots, err := h.availability.ListActive(c.Request.Context(), c.Param("id"), forDate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Template godoc
// @Summary Weekly availability template grouped by weekday
// @Tags Availability
// @Produce json
// @Param id path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/availability/template [get]
func (h *AvailabilityHandler) Template(c *gin.Context) {
	template, err := h.availability.WeeklyTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Deactivate godoc
// @Summary Deactivate an availability window
// @Tags Availability
// @Produce json
// @Param slotId path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /availability/{slotId} [delete]
func (h *AvailabilityHandler) Deactivate(c *gin.Context) {
	slot, err := h.availability.Deactivate(c.Request.Context(), identityFromContext(c), c.Param("slotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// AvailableSlots godoc
// @Summary Bookable start times for an instructor on a date
// @Tags Availability
// @Produce json
// @Param id path string true "Instructor ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param duration query int false "Lesson length in minutes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /instructors/{id}/available-slots [get]
func (h *AvailabilityHandler) AvailableSlots(c *gin.Context) {
	var query dto.SlotQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "date is required and duration must be a positive number of minutes"))
		return
	}
	slots, err := h.slots.GetAvailableSlots(c.Request.Context(), c.Param("id"), query.Date, query.Duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, slots.CacheHit)
	response.JSON(c, http.StatusOK, slots, nil, middleware.ExtractMeta(c))
}
