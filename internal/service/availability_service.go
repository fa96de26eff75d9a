package service

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type availabilityRepository interface {
	Create(ctx context.Context, slot *models.AvailabilitySlot) error
	ReplaceRecurring(ctx context.Context, instructorID string, slots []models.AvailabilitySlot, overwrite bool) ([]models.AvailabilitySlot, error)
	Deactivate(ctx context.Context, id string) (*models.AvailabilitySlot, bool, error)
	FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	ListActive(ctx context.Context, instructorID string) ([]models.AvailabilitySlot, error)
	ListActiveForDate(ctx context.Context, instructorID string, date time.Time) ([]models.AvailabilitySlot, error)
}

type instructorReader interface {
	FindInstructor(ctx context.Context, instructorID string) (*models.Instructor, error)
}

// AvailabilityChangeNotifier tells learners an instructor's availability moved.
type AvailabilityChangeNotifier interface {
	SendAvailabilityChange(ctx context.Context, instructorID, change string) error
}

// SetAvailabilityRequest describes a single availability window.
type SetAvailabilityRequest struct {
	DayOfWeek    *int   `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	SpecificDate string `json:"specific_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime    string `json:"start_time" validate:"required,hhmm"`
	EndTime      string `json:"end_time" validate:"required,hhmm"`
	IsRecurring  bool   `json:"is_recurring"`
}

// WeeklyWindow is one entry of a weekly template.
type WeeklyWindow struct {
	DayOfWeek *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

// BulkSetAvailabilityRequest replaces or extends the recurring weekly template.
type BulkSetAvailabilityRequest struct {
	Slots             []WeeklyWindow `json:"slots" validate:"dive"`
	OverwriteExisting bool           `json:"overwrite_existing"`
}

// AvailabilityService manages instructor availability windows.
type AvailabilityService struct {
	repo        availabilityRepository
	instructors instructorReader
	cache       *CacheService
	notifier    AvailabilityChangeNotifier
	location    *time.Location
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAvailabilityService constructs the service. loc is the school time zone.
func NewAvailabilityService(repo availabilityRepository, instructors instructorReader, cache *CacheService, notifier AvailabilityChangeNotifier, loc *time.Location, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{repo: repo, instructors: instructors, cache: cache, notifier: notifier, location: loc, validator: validate, logger: logger}
}

// SetAvailability stores one window for the instructor.
func (s *AvailabilityService) SetAvailability(ctx context.Context, actor *models.Identity, instructorID string, req SetAvailabilityRequest) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid availability payload")
	}
	if err := s.authorize(ctx, actor, instructorID); err != nil {
		return nil, err
	}

	slot := models.AvailabilitySlot{
		InstructorID: instructorID,
		DayOfWeek:    req.DayOfWeek,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		IsRecurring:  req.IsRecurring,
	}
	if req.SpecificDate != "" {
		date, err := time.Parse("2006-01-02", req.SpecificDate)
		if err != nil {
			return nil, fieldValidation("specific_date", "must be a date in YYYY-MM-DD format")
		}
		slot.SpecificDate = &date
	}
	if err := checkSlotShape(slot); err != nil {
		return nil, err
	}
	slot = slot.Normalized()

	if err := s.repo.Create(ctx, &slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save availability")
	}
	s.afterWrite(ctx, instructorID, "availability added")
	return &slot, nil
}

// BulkSetAvailability installs a weekly template. With OverwriteExisting the active
// recurring slots are replaced in the same transaction.
func (s *AvailabilityService) BulkSetAvailability(ctx context.Context, actor *models.Identity, instructorID string, req BulkSetAvailabilityRequest) ([]models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid weekly template")
	}
	if len(req.Slots) == 0 && !req.OverwriteExisting {
		return nil, fieldValidation("slots", "is required unless overwrite_existing is set")
	}
	if err := s.authorize(ctx, actor, instructorID); err != nil {
		return nil, err
	}

	slots := make([]models.AvailabilitySlot, 0, len(req.Slots))
	for _, window := range req.Slots {
		slot := models.AvailabilitySlot{
			InstructorID: instructorID,
			DayOfWeek:    window.DayOfWeek,
			StartTime:    window.StartTime,
			EndTime:      window.EndTime,
			IsRecurring:  true,
		}
		if err := checkSlotShape(slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot.Normalized())
	}

	created, err := s.repo.ReplaceRecurring(ctx, instructorID, slots, req.OverwriteExisting)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save weekly template")
	}
	s.afterWrite(ctx, instructorID, "weekly schedule updated")
	return created, nil
}

// Deactivate soft-deletes a slot. Deactivating an inactive slot succeeds without change.
func (s *AvailabilityService) Deactivate(ctx context.Context, actor *models.Identity, slotID string) (*models.AvailabilitySlot, error) {
	existing, err := s.repo.FindByID(ctx, slotID)
	if err != nil {
		return nil, notFoundOrInternal(err, "availability slot not found", "failed to load availability slot")
	}
	if err := s.authorize(ctx, actor, existing.InstructorID); err != nil {
		return nil, err
	}

	slot, changed, err := s.repo.Deactivate(ctx, slotID)
	if err != nil {
		return nil, notFoundOrInternal(err, "availability slot not found", "failed to deactivate availability slot")
	}
	if changed {
		s.afterWrite(ctx, slot.InstructorID, "availability removed")
	}
	return slot, nil
}

// ListActive returns active slots. With forDate only slots applying to that calendar
// day are returned, ordered by start time.
func (s *AvailabilityService) ListActive(ctx context.Context, instructorID string, forDate *time.Time) ([]models.AvailabilitySlot, error) {
	if forDate == nil {
		slots, err := s.repo.ListActive(ctx, instructorID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
		}
		sortByAnchor(slots)
		return slots, nil
	}
	return s.activeForDate(ctx, instructorID, *forDate)
}

func (s *AvailabilityService) activeForDate(ctx context.Context, instructorID string, date time.Time) ([]models.AvailabilitySlot, error) {
	rows, err := s.repo.ListActiveForDate(ctx, instructorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}
	slots := make([]models.AvailabilitySlot, 0, len(rows))
	for _, slot := range rows {
		if slot.IsActive && slot.AppliesTo(date) {
			slots = append(slots, slot)
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return startMinute(slots[i]) < startMinute(slots[j])
	})
	return slots, nil
}

// WeeklyTemplate groups the active recurring slots by weekday.
func (s *AvailabilityService) WeeklyTemplate(ctx context.Context, instructorID string) (models.WeeklyTemplate, error) {
	slots, err := s.repo.ListActive(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly template")
	}
	sortByAnchor(slots)
	template := make(models.WeeklyTemplate, 7)
	for day := 0; day < 7; day++ {
		template[day] = []models.AvailabilitySlot{}
	}
	for _, slot := range slots {
		if !slot.IsRecurring || slot.DayOfWeek == nil {
			continue
		}
		template[*slot.DayOfWeek] = append(template[*slot.DayOfWeek], slot)
	}
	return template, nil
}

// ParseDate reads a YYYY-MM-DD calendar date in the school time zone.
func (s *AvailabilityService) ParseDate(raw string) (time.Time, error) {
	return parseSchoolDate(raw, s.location)
}

func (s *AvailabilityService) authorize(ctx context.Context, actor *models.Identity, instructorID string) error {
	instructor, err := s.instructors.FindInstructor(ctx, instructorID)
	if err != nil {
		return notFoundOrInternal(err, "instructor not found", "failed to load instructor")
	}
	if actor == nil || actor.Role.Elevated() {
		return nil
	}
	if actor.Role != models.RoleInstructor || instructor.UserID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot manage another instructor's availability")
	}
	return nil
}

func (s *AvailabilityService) afterWrite(ctx context.Context, instructorID, change string) {
	s.cache.InvalidateInstructor(ctx, instructorID)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendAvailabilityChange(ctx, instructorID, change); err != nil {
		s.logger.Warn("availability change notice failed", zap.String("instructor_id", instructorID), zap.Error(err))
	}
}

func checkSlotShape(slot models.AvailabilitySlot) error {
	if _, _, ok := slot.Window(); !ok {
		return fieldValidation("end_time", "must be after start_time")
	}
	if err := slot.Anchored(); err != nil {
		return fieldValidation("slot", err.Error())
	}
	return nil
}

// sortByAnchor orders recurring slots by weekday ahead of dated slots by date,
// then by start time as a clock value rather than as text.
func sortByAnchor(slots []models.AvailabilitySlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.IsRecurring != b.IsRecurring {
			return a.IsRecurring
		}
		if da, db := anchorDay(a), anchorDay(b); da != db {
			return da < db
		}
		return startMinute(a) < startMinute(b)
	})
}

func anchorDay(slot models.AvailabilitySlot) int64 {
	switch {
	case slot.DayOfWeek != nil && slot.IsRecurring:
		return int64(*slot.DayOfWeek)
	case slot.SpecificDate != nil:
		return slot.SpecificDate.Unix()
	}
	return 0
}

func startMinute(slot models.AvailabilitySlot) int {
	start, _, _ := slot.Window()
	return start
}

func parseSchoolDate(raw string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fieldValidation("date", "must be a date in YYYY-MM-DD format")
	}
	return date, nil
}
