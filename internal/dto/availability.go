package dto

// SlotQuery captures GET /instructors/:id/available-slots query parameters.
type SlotQuery struct {
	Date     string `form:"date" binding:"required"`
	Duration int    `form:"duration" binding:"omitempty,min=1"`
}

// CalendarQuery captures the instructor calendar range and export format.
type CalendarQuery struct {
	From   string `form:"from" binding:"required"`
	To     string `form:"to" binding:"required"`
	Format string `form:"format" binding:"omitempty,oneof=csv pdf"`
}
