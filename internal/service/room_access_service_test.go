package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

func newRoomAccessFixture() *RoomAccessService {
	assignments := &assignmentStub{items: map[string]*models.Assignment{
		"asg-1": {ID: "asg-1", LearnerID: "learner-1", InstructorID: "inst-1", InstructorUserID: "user-inst-1"},
	}}
	lessons := newBookingRepoStub(models.Booking{ID: "b1", LearnerID: "learner-1", InstructorID: "inst-1", InstructorUserID: "user-inst-1", Status: models.BookingConfirmed})
	return NewRoomAccessService(assignments, lessons)
}

func TestRoomAccessParticipantsAndAdmins(t *testing.T) {
	svc := newRoomAccessFixture()
	ctx := context.Background()

	for _, identity := range []models.Identity{
		{UserID: "learner-1", Role: models.RoleLearner},
		{UserID: "user-inst-1", Role: models.RoleInstructor},
		{UserID: "admin-1", Role: models.RoleAdmin},
		{UserID: "root", Role: models.RoleSuperAdmin},
	} {
		_, err := svc.Assignment(ctx, identity, "asg-1")
		assert.NoError(t, err, identity.UserID)
		_, err = svc.Lesson(ctx, identity, "b1")
		assert.NoError(t, err, identity.UserID)
	}
}

func TestRoomAccessRejectsOutsiders(t *testing.T) {
	svc := newRoomAccessFixture()
	ctx := context.Background()
	outsider := models.Identity{UserID: "learner-2", Role: models.RoleLearner}

	_, err := svc.Assignment(ctx, outsider, "asg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Lesson(ctx, outsider, "b1")
	require.Error(t, err)
	assert.Equal(t, "permission denied", appErrors.FromError(err).Message)

	_, err = svc.Lesson(ctx, outsider, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
