package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/repository"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type bookingRepository interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	CreateExclusive(ctx context.Context, booking *models.Booking) error
	RescheduleExclusive(ctx context.Context, booking *models.Booking, scheduledAt time.Time, duration int) error
	UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus, notes *string) (*models.Booking, error)
}

// BookingNotifier delivers the notices attached to the booking lifecycle.
type BookingNotifier interface {
	SendBookingConfirmation(ctx context.Context, booking *models.Booking) error
	SendBookingCancellation(ctx context.Context, booking *models.Booking, reason string) error
	SendLessonStatus(ctx context.Context, booking *models.Booking, notes string) error
	ScheduleLessonReminders(ctx context.Context, booking *models.Booking) ([]string, error)
	CancelByReference(ctx context.Context, referenceID string) (int, error)
}

// Publisher pushes events to live realtime sessions.
type Publisher interface {
	SendToUser(userID, event string, payload interface{}) int
	BroadcastToRoom(room, event string, payload interface{}) int
}

// CreateBookingRequest reserves a lesson.
type CreateBookingRequest struct {
	LearnerID    string               `json:"learner_id"`
	InstructorID string               `json:"instructor_id" validate:"required"`
	ScheduledAt  time.Time            `json:"scheduled_at" validate:"required"`
	Duration     int                  `json:"duration" validate:"omitempty,min=1"`
	LessonType   models.LessonType    `json:"lesson_type" validate:"omitempty,oneof=PRACTICAL THEORY TEST"`
	Location     *string              `json:"location"`
	Notes        *string              `json:"notes"`
	Status       models.BookingStatus `json:"status" validate:"omitempty,oneof=PENDING CONFIRMED"`
}

// RescheduleBookingRequest moves a lesson.
type RescheduleBookingRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Duration    int       `json:"duration" validate:"omitempty,min=1"`
}

// UpdateBookingStatusRequest changes the lifecycle status of a lesson.
type UpdateBookingStatusRequest struct {
	Status models.BookingStatus `json:"status" validate:"required,oneof=PENDING CONFIRMED CANCELLED COMPLETED"`
	Notes  *string              `json:"notes"`
}

// BookingConfig bounds lesson durations.
type BookingConfig struct {
	DefaultDuration int
	MaxDuration     int
}

// lessonUpdate is broadcast to the lesson room on every change.
type lessonUpdate struct {
	Booking   *models.Booking `json:"booking"`
	Action    string          `json:"action"`
	UpdatedBy string          `json:"updated_by,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// BookingService owns the booking flows and the per-instructor conflict guard.
type BookingService struct {
	repo        bookingRepository
	instructors instructorReader
	cache       *CacheService
	notifier    BookingNotifier
	publisher   Publisher
	metrics     *MetricsService
	locks       *keyedLocker
	cfg         BookingConfig
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewBookingService constructs the booking service.
func NewBookingService(repo bookingRepository, instructors instructorReader, cache *CacheService, notifier BookingNotifier, publisher Publisher, metrics *MetricsService, cfg BookingConfig, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 60
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 240
	}
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		repo:        repo,
		instructors: instructors,
		cache:       cache,
		notifier:    notifier,
		publisher:   publisher,
		metrics:     metrics,
		locks:       newKeyedLocker(),
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Get returns a booking visible to actor.
func (s *BookingService) Get(ctx context.Context, actor *models.Identity, id string) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "booking not found", "failed to load booking")
	}
	if !canSeeBooking(actor, booking) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this booking")
	}
	return booking, nil
}

// Create reserves a lesson through the conflict guard.
func (s *BookingService) Create(ctx context.Context, actor *models.Identity, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid booking payload")
	}
	if req.Duration == 0 {
		req.Duration = s.cfg.DefaultDuration
	}
	if req.Duration > s.cfg.MaxDuration {
		return nil, fieldValidation("duration", "exceeds the maximum lesson length")
	}
	if req.LessonType == "" {
		req.LessonType = models.LessonPractical
	}
	if req.Status == "" {
		req.Status = models.BookingConfirmed
	}

	instructor, err := s.instructors.FindInstructor(ctx, req.InstructorID)
	if err != nil {
		return nil, notFoundOrInternal(err, "instructor not found", "failed to load instructor")
	}
	if actor != nil && !actor.Role.Elevated() {
		switch actor.Role {
		case models.RoleLearner:
			if req.LearnerID != "" && req.LearnerID != actor.UserID {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "learners can only book for themselves")
			}
			req.LearnerID = actor.UserID
		case models.RoleInstructor:
			if instructor.UserID != actor.UserID {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot book another instructor's schedule")
			}
		}
	}
	if req.LearnerID == "" {
		return nil, fieldValidation("learner_id", "is required")
	}

	booking := &models.Booking{
		LearnerID:        req.LearnerID,
		InstructorID:     req.InstructorID,
		InstructorUserID: instructor.UserID,
		ScheduledAt:      req.ScheduledAt.UTC(),
		Duration:         req.Duration,
		Status:           req.Status,
		LessonType:       req.LessonType,
		Location:         req.Location,
		Notes:            req.Notes,
	}
	if err := s.CheckAndReserve(ctx, booking, ""); err != nil {
		return nil, err
	}

	if booking.Status == models.BookingConfirmed {
		s.afterConfirm(ctx, booking)
	}
	s.broadcast(booking, "created", actor)
	return booking, nil
}

// CheckAndReserve persists booking when its interval is free for the instructor.
// With excludeBookingID the existing booking is moved instead of inserting a new one.
func (s *BookingService) CheckAndReserve(ctx context.Context, booking *models.Booking, excludeBookingID string) error {
	operation := "create"
	if excludeBookingID != "" {
		operation = "reschedule"
	}

	release := s.locks.Lock(booking.InstructorID)
	var err error
	if excludeBookingID == "" {
		err = s.repo.CreateExclusive(ctx, booking)
	} else {
		err = s.repo.RescheduleExclusive(ctx, booking, booking.ScheduledAt, booking.Duration)
	}
	release()

	switch {
	case err == nil:
		s.metrics.RecordBooking(operation, "reserved")
		s.cache.InvalidateInstructor(ctx, booking.InstructorID)
		return nil
	case errors.Is(err, repository.ErrBookingOverlap):
		s.metrics.RecordBooking(operation, "conflict")
		return appErrors.Clone(appErrors.ErrSlotUnavailable, "")
	case errors.Is(err, sql.ErrNoRows):
		s.metrics.RecordBooking(operation, "error")
		return appErrors.Clone(appErrors.ErrInvalidState, "booking is no longer active")
	default:
		s.metrics.RecordBooking(operation, "error")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve booking")
	}
}

// Reschedule moves an occupying booking, replacing its reminders.
func (s *BookingService) Reschedule(ctx context.Context, actor *models.Identity, id string, req RescheduleBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid reschedule payload")
	}
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "booking not found", "failed to load booking")
	}
	if !canSeeBooking(actor, booking) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this booking")
	}
	if !booking.Status.Occupies() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only pending or confirmed bookings can be rescheduled")
	}
	if req.Duration > s.cfg.MaxDuration {
		return nil, fieldValidation("duration", "exceeds the maximum lesson length")
	}

	moved := *booking
	moved.ScheduledAt = req.ScheduledAt.UTC()
	if req.Duration > 0 {
		moved.Duration = req.Duration
	}
	if err := s.CheckAndReserve(ctx, &moved, booking.ID); err != nil {
		return nil, err
	}

	s.cancelReminders(ctx, moved.ID)
	if moved.Status == models.BookingConfirmed {
		s.scheduleReminders(ctx, &moved)
	}
	s.broadcast(&moved, "rescheduled", actor)
	return &moved, nil
}

// UpdateStatus applies a lifecycle transition.
func (s *BookingService) UpdateStatus(ctx context.Context, actor *models.Identity, id string, req UpdateBookingStatusRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "booking not found", "failed to load booking")
	}
	if actor != nil && !actor.Role.Elevated() && actor.UserID != current.InstructorUserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the lesson instructor can change its status")
	}
	if !current.Status.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot move booking from "+string(current.Status)+" to "+string(req.Status))
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, req.Status, req.Notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking status changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update booking status")
	}
	s.cache.InvalidateInstructor(ctx, updated.InstructorID)

	switch updated.Status {
	case models.BookingCancelled:
		s.cancelReminders(ctx, updated.ID)
		if s.notifier != nil {
			reason := ""
			if req.Notes != nil {
				reason = *req.Notes
			}
			if err := s.notifier.SendBookingCancellation(ctx, updated, reason); err != nil {
				s.logger.Warn("booking cancellation notice failed", zap.String("booking_id", updated.ID), zap.Error(err))
			}
		}
	case models.BookingConfirmed:
		s.afterConfirm(ctx, updated)
	case models.BookingCompleted:
		s.cancelReminders(ctx, updated.ID)
		if s.notifier != nil {
			notes := ""
			if req.Notes != nil {
				notes = *req.Notes
			}
			if err := s.notifier.SendLessonStatus(ctx, updated, notes); err != nil {
				s.logger.Warn("lesson status notice failed", zap.String("booking_id", updated.ID), zap.Error(err))
			}
		}
	}
	s.broadcast(updated, "status_changed", actor)
	return updated, nil
}

func (s *BookingService) afterConfirm(ctx context.Context, booking *models.Booking) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendBookingConfirmation(ctx, booking); err != nil {
		s.logger.Warn("booking confirmation notice failed", zap.String("booking_id", booking.ID), zap.Error(err))
	}
	s.scheduleReminders(ctx, booking)
}

func (s *BookingService) scheduleReminders(ctx context.Context, booking *models.Booking) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.ScheduleLessonReminders(ctx, booking); err != nil {
		s.logger.Warn("lesson reminders not scheduled", zap.String("booking_id", booking.ID), zap.Error(err))
	}
}

func (s *BookingService) cancelReminders(ctx context.Context, bookingID string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.CancelByReference(ctx, bookingID); err != nil {
		s.logger.Warn("lesson reminders not cancelled", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func (s *BookingService) broadcast(booking *models.Booking, action string, actor *models.Identity) {
	if s.publisher == nil {
		return
	}
	update := lessonUpdate{Booking: booking, Action: action, Timestamp: s.now().UTC()}
	if actor != nil {
		update.UpdatedBy = actor.UserID
	}
	s.publisher.BroadcastToRoom(models.LessonRoom(booking.ID), "lesson-updated", update)
}

func canSeeBooking(actor *models.Identity, booking *models.Booking) bool {
	return actor == nil || actor.Role.Elevated() || booking.Participant(actor.UserID)
}
