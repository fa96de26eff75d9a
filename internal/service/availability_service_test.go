package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type availabilityRepoStub struct {
	slots     map[string]*models.AvailabilitySlot
	replaced  []models.AvailabilitySlot
	overwrite bool
	seq       int
}

func newAvailabilityRepoStub(slots ...models.AvailabilitySlot) *availabilityRepoStub {
	stub := &availabilityRepoStub{slots: map[string]*models.AvailabilitySlot{}}
	for i := range slots {
		cp := slots[i]
		stub.slots[cp.ID] = &cp
	}
	return stub
}

func (s *availabilityRepoStub) Create(ctx context.Context, slot *models.AvailabilitySlot) error {
	s.seq++
	slot.ID = fmt.Sprintf("slot-new-%d", s.seq)
	slot.IsActive = true
	cp := *slot
	s.slots[slot.ID] = &cp
	return nil
}

func (s *availabilityRepoStub) ReplaceRecurring(ctx context.Context, instructorID string, slots []models.AvailabilitySlot, overwrite bool) ([]models.AvailabilitySlot, error) {
	s.overwrite = overwrite
	if overwrite {
		for _, slot := range s.slots {
			if slot.InstructorID == instructorID && slot.IsRecurring {
				slot.IsActive = false
			}
		}
	}
	out := make([]models.AvailabilitySlot, 0, len(slots))
	for i := range slots {
		slot := slots[i]
		if err := s.Create(ctx, &slot); err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	s.replaced = out
	return out, nil
}

func (s *availabilityRepoStub) Deactivate(ctx context.Context, id string) (*models.AvailabilitySlot, bool, error) {
	slot, ok := s.slots[id]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	changed := slot.IsActive
	slot.IsActive = false
	cp := *slot
	return &cp, changed, nil
}

func (s *availabilityRepoStub) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	slot, ok := s.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *slot
	return &cp, nil
}

func (s *availabilityRepoStub) ListActive(ctx context.Context, instructorID string) ([]models.AvailabilitySlot, error) {
	var out []models.AvailabilitySlot
	for _, slot := range s.slots {
		if slot.InstructorID == instructorID && slot.IsActive {
			out = append(out, *slot)
		}
	}
	return out, nil
}

func (s *availabilityRepoStub) ListActiveForDate(ctx context.Context, instructorID string, date time.Time) ([]models.AvailabilitySlot, error) {
	return s.ListActive(ctx, instructorID)
}

type instructorReaderStub struct {
	items map[string]*models.Instructor
}

func (s *instructorReaderStub) FindInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	if inst, ok := s.items[id]; ok {
		return inst, nil
	}
	return nil, sql.ErrNoRows
}

type availabilityNotifierStub struct {
	changes []string
}

func (s *availabilityNotifierStub) SendAvailabilityChange(ctx context.Context, instructorID, change string) error {
	s.changes = append(s.changes, instructorID+":"+change)
	return nil
}

func intPtr(v int) *int { return &v }

func newAvailabilityServiceFixture(repo *availabilityRepoStub) (*AvailabilityService, *availabilityNotifierStub) {
	instructors := &instructorReaderStub{items: map[string]*models.Instructor{
		"inst-1": {ID: "inst-1", UserID: "user-inst-1"},
		"inst-2": {ID: "inst-2", UserID: "user-inst-2"},
	}}
	notifier := &availabilityNotifierStub{}
	cache := NewCacheService(nil, nil, 0, zap.NewNop(), false)
	return NewAvailabilityService(repo, instructors, cache, notifier, time.UTC, nil, zap.NewNop()), notifier
}

var instructorActor = &models.Identity{UserID: "user-inst-1", Role: models.RoleInstructor, Status: models.UserStatusActive}

func TestAvailabilityServiceSetAvailability(t *testing.T) {
	repo := newAvailabilityRepoStub()
	svc, notifier := newAvailabilityServiceFixture(repo)

	slot, err := svc.SetAvailability(context.Background(), instructorActor, "inst-1", SetAvailabilityRequest{
		DayOfWeek:   intPtr(1),
		StartTime:   "09:00",
		EndTime:     "12:00",
		IsRecurring: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, slot.ID)
	assert.True(t, slot.IsActive)
	assert.Equal(t, []string{"inst-1:availability added"}, notifier.changes)
}

func TestAvailabilityServiceSetAvailabilityValidation(t *testing.T) {
	svc, _ := newAvailabilityServiceFixture(newAvailabilityRepoStub())
	ctx := context.Background()

	cases := map[string]SetAvailabilityRequest{
		"bad clock":        {DayOfWeek: intPtr(1), StartTime: "9am", EndTime: "12:00", IsRecurring: true},
		"end before start": {DayOfWeek: intPtr(1), StartTime: "12:00", EndTime: "09:00", IsRecurring: true},
		"equal bounds":     {DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "09:00", IsRecurring: true},
		"day out of range": {DayOfWeek: intPtr(7), StartTime: "09:00", EndTime: "10:00", IsRecurring: true},
		"recurring no day": {StartTime: "09:00", EndTime: "10:00", IsRecurring: true},
		"one-off no date":  {StartTime: "09:00", EndTime: "10:00"},
		"one-off with day": {DayOfWeek: intPtr(1), SpecificDate: "2030-05-06", StartTime: "09:00", EndTime: "10:00"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SetAvailability(ctx, instructorActor, "inst-1", req)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestAvailabilityServiceRejectsOtherInstructor(t *testing.T) {
	svc, _ := newAvailabilityServiceFixture(newAvailabilityRepoStub())

	_, err := svc.SetAvailability(context.Background(), instructorActor, "inst-2", SetAvailabilityRequest{
		SpecificDate: "2030-05-06",
		StartTime:    "09:00",
		EndTime:      "10:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityServiceBulkSetOverwrite(t *testing.T) {
	repo := newAvailabilityRepoStub(models.AvailabilitySlot{
		ID: "old", InstructorID: "inst-1", DayOfWeek: intPtr(2), StartTime: "08:00", EndTime: "09:00", IsRecurring: true, IsActive: true,
	})
	svc, _ := newAvailabilityServiceFixture(repo)

	created, err := svc.BulkSetAvailability(context.Background(), nil, "inst-1", BulkSetAvailabilityRequest{
		Slots: []WeeklyWindow{
			{DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "12:00"},
			{DayOfWeek: intPtr(3), StartTime: "13:00", EndTime: "17:00"},
		},
		OverwriteExisting: true,
	})
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.True(t, repo.overwrite)
	assert.False(t, repo.slots["old"].IsActive)

	template, err := svc.WeeklyTemplate(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Len(t, template, 7)
	assert.Len(t, template[1], 1)
	assert.Len(t, template[3], 1)
	assert.Empty(t, template[2])
}

func TestAvailabilityServiceBulkSetRequiresSlotsWithoutOverwrite(t *testing.T) {
	svc, _ := newAvailabilityServiceFixture(newAvailabilityRepoStub())

	_, err := svc.BulkSetAvailability(context.Background(), nil, "inst-1", BulkSetAvailabilityRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityServiceDeactivate(t *testing.T) {
	repo := newAvailabilityRepoStub(models.AvailabilitySlot{
		ID: "slot-1", InstructorID: "inst-1", DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "10:00", IsRecurring: true, IsActive: true,
	})
	svc, notifier := newAvailabilityServiceFixture(repo)
	ctx := context.Background()

	slot, err := svc.Deactivate(ctx, instructorActor, "slot-1")
	require.NoError(t, err)
	assert.False(t, slot.IsActive)
	assert.Len(t, notifier.changes, 1)

	_, err = svc.Deactivate(ctx, instructorActor, "slot-1")
	require.NoError(t, err)
	assert.Len(t, notifier.changes, 1)

	_, err = svc.Deactivate(ctx, instructorActor, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityServiceListActiveForDate(t *testing.T) {
	monday := time.Date(2030, 5, 6, 0, 0, 0, 0, time.UTC)
	repo := newAvailabilityRepoStub(
		models.AvailabilitySlot{ID: "late", InstructorID: "inst-1", DayOfWeek: intPtr(1), StartTime: "14:00", EndTime: "16:00", IsRecurring: true, IsActive: true},
		models.AvailabilitySlot{ID: "early", InstructorID: "inst-1", SpecificDate: &monday, StartTime: "08:00", EndTime: "09:00", IsActive: true},
		models.AvailabilitySlot{ID: "tuesday", InstructorID: "inst-1", DayOfWeek: intPtr(2), StartTime: "07:00", EndTime: "08:00", IsRecurring: true, IsActive: true},
	)
	svc, _ := newAvailabilityServiceFixture(repo)

	slots, err := svc.ListActive(context.Background(), "inst-1", &monday)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "early", slots[0].ID)
	assert.Equal(t, "late", slots[1].ID)
}

func TestAvailabilityServiceStoresZeroPaddedTimes(t *testing.T) {
	repo := newAvailabilityRepoStub()
	svc, _ := newAvailabilityServiceFixture(repo)
	ctx := context.Background()

	slot, err := svc.SetAvailability(ctx, instructorActor, "inst-1", SetAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "9:00", EndTime: "9:45", IsRecurring: true})
	require.NoError(t, err)
	assert.Equal(t, "09:00", repo.slots[slot.ID].StartTime)
	assert.Equal(t, "09:45", repo.slots[slot.ID].EndTime)

	created, err := svc.BulkSetAvailability(ctx, instructorActor, "inst-1", BulkSetAvailabilityRequest{
		Slots: []WeeklyWindow{{DayOfWeek: intPtr(2), StartTime: "8:15", EndTime: "10:00"}},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "08:15", created[0].StartTime)
}

func TestAvailabilityServiceOrdersByClockNotText(t *testing.T) {
	date := time.Date(2030, 5, 8, 0, 0, 0, 0, time.UTC)
	repo := newAvailabilityRepoStub(
		models.AvailabilitySlot{ID: "mon-ten", InstructorID: "inst-1", DayOfWeek: intPtr(1), StartTime: "10:00", EndTime: "11:00", IsRecurring: true, IsActive: true},
		models.AvailabilitySlot{ID: "mon-nine", InstructorID: "inst-1", DayOfWeek: intPtr(1), StartTime: "9:00", EndTime: "10:00", IsRecurring: true, IsActive: true},
		models.AvailabilitySlot{ID: "dated", InstructorID: "inst-1", SpecificDate: &date, StartTime: "07:00", EndTime: "08:00", IsActive: true},
		models.AvailabilitySlot{ID: "sun", InstructorID: "inst-1", DayOfWeek: intPtr(0), StartTime: "12:00", EndTime: "13:00", IsRecurring: true, IsActive: true},
	)
	svc, _ := newAvailabilityServiceFixture(repo)
	ctx := context.Background()

	slots, err := svc.ListActive(ctx, "inst-1", nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		ids = append(ids, slot.ID)
	}
	assert.Equal(t, []string{"sun", "mon-nine", "mon-ten", "dated"}, ids)

	template, err := svc.WeeklyTemplate(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, template[1], 2)
	assert.Equal(t, "mon-nine", template[1][0].ID)
	assert.Equal(t, "mon-ten", template[1][1].ID)
}
