package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/service"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

type bookingService interface {
	Get(ctx context.Context, actor *models.Identity, id string) (*models.Booking, error)
	Create(ctx context.Context, actor *models.Identity, req service.CreateBookingRequest) (*models.Booking, error)
	Reschedule(ctx context.Context, actor *models.Identity, id string, req service.RescheduleBookingRequest) (*models.Booking, error)
	UpdateStatus(ctx context.Context, actor *models.Identity, id string, req service.UpdateBookingStatusRequest) (*models.Booking, error)
}

// BookingHandler exposes lesson booking endpoints.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(service bookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// Create godoc
// @Summary Book a lesson
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "SLOT_UNAVAILABLE"
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid booking payload"))
		return
	}
	booking, err := h.service.Create(c.Request.Context(), identityFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Get godoc
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), identityFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Reschedule godoc
// @Summary Move a lesson to a new time
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body service.RescheduleBookingRequest true "New time"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "SLOT_UNAVAILABLE"
// @Router /bookings/{id}/reschedule [patch]
func (h *BookingHandler) Reschedule(c *gin.Context) {
	var req service.RescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid reschedule payload"))
		return
	}
	booking, err := h.service.Reschedule(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// UpdateStatus godoc
// @Summary Change a lesson's status
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body service.UpdateBookingStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "INVALID_STATE"
// @Router /bookings/{id}/status [patch]
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid status payload"))
		return
	}
	booking, err := h.service.UpdateStatus(c.Request.Context(), identityFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}
