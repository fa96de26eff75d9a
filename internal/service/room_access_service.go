package service

import (
	"context"
	"strings"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type lessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
}

// RoomAccessService decides which domain rooms a realtime session may join.
type RoomAccessService struct {
	assignments assignmentReader
	lessons     lessonReader
}

// NewRoomAccessService constructs the service.
func NewRoomAccessService(assignments assignmentReader, lessons lessonReader) *RoomAccessService {
	return &RoomAccessService{assignments: assignments, lessons: lessons}
}

// Assignment returns the assignment when identity is a participant or elevated.
func (s *RoomAccessService) Assignment(ctx context.Context, identity models.Identity, assignmentID string) (*models.Assignment, error) {
	if strings.TrimSpace(assignmentID) == "" {
		return nil, fieldValidation("assignment_id", "is required")
	}
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, notFoundOrInternal(err, "assignment not found", "failed to load assignment")
	}
	if !identity.Role.Elevated() && !assignment.Participant(identity.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "permission denied")
	}
	return assignment, nil
}

// Lesson returns the booking when identity is a participant or elevated.
func (s *RoomAccessService) Lesson(ctx context.Context, identity models.Identity, bookingID string) (*models.Booking, error) {
	if strings.TrimSpace(bookingID) == "" {
		return nil, fieldValidation("lesson_id", "is required")
	}
	booking, err := s.lessons.FindByID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOrInternal(err, "lesson not found", "failed to load lesson")
	}
	if !identity.Role.Elevated() && !booking.Participant(identity.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "permission denied")
	}
	return booking, nil
}
