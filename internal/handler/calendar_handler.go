package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/dto"
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/service"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

type calendarService interface {
	GetCalendar(ctx context.Context, actor *models.Identity, instructorID, from, to string) (*models.InstructorCalendar, error)
	ExportCalendar(ctx context.Context, actor *models.Identity, instructorID, from, to, format string) (*service.CalendarExport, error)
}

// CalendarHandler serves the instructor calendar.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// Get godoc
// @Summary Instructor calendar of lessons and availability
// @Tags Calendar
// @Produce json
// @Param id path string true "Instructor ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD), inclusive"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/calendar [get]
func (h *CalendarHandler) Get(c *gin.Context) {
	var query dto.CalendarQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "from and to are required"))
		return
	}
	calendar, err := h.service.GetCalendar(c.Request.Context(), identityFromContext(c), c.Param("id"), query.From, query.To)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calendar, nil)
}

// Export godoc
// @Summary Download the instructor calendar
// @Tags Calendar
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Instructor ID"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD), inclusive"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /instructors/{id}/calendar/export [get]
func (h *CalendarHandler) Export(c *gin.Context) {
	var query dto.CalendarQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "from and to are required; format must be csv or pdf"))
		return
	}
	if query.Format == "" {
		query.Format = "csv"
	}
	export, err := h.service.ExportCalendar(c.Request.Context(), identityFromContext(c), c.Param("id"), query.From, query.To, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, export.Filename, export.ContentType, export.Data)
}
