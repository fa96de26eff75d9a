package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/jobs"
	"github.com/noah-isme/driving-school-api/pkg/mailer"
)

const (
	fireJobType  = "notification.fire"
	emailJobType = "notification.email"
)

type notificationJobRepository interface {
	Create(ctx context.Context, job *models.NotificationJob) error
	FindByID(ctx context.Context, id string) (*models.NotificationJob, error)
	ClaimAndRecord(ctx context.Context, id string, now time.Time, inbox *models.Notification) (bool, error)
	RecordFailure(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string, now time.Time) (bool, error)
	CancelByReference(ctx context.Context, referenceID string, now time.Time) ([]string, error)
	ListPendingBefore(ctx context.Context, until time.Time, maxAttempts, limit int) ([]models.NotificationJob, error)
}

type inboxRepository interface {
	ListByUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string, now time.Time) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListActive(ctx context.Context, role *models.UserRole) ([]models.User, error)
	FindInstructor(ctx context.Context, instructorID string) (*models.Instructor, error)
}

type upcomingBookingReader interface {
	ListUpcoming(ctx context.Context, instructorID string, since time.Time) ([]models.Booking, error)
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

// NotificationConfig tunes the scheduler.
type NotificationConfig struct {
	SweepInterval        time.Duration
	SweepBatchSize       int
	Workers              int
	MaxDeliveryAttempts  int
	EscalationPriorities []models.NotificationPriority
	ReminderOffsets      []time.Duration
	EmailWorkers         int
	EmailMaxRetries      int
	RetryDelay           time.Duration
	InboxPageSize        int
	Location             *time.Location
	AppName              string
	FrontendBaseURL      string
}

// ScheduleNotificationRequest is the administrative form of a scheduled notice.
type ScheduleNotificationRequest struct {
	Type        models.NotificationType     `json:"type" validate:"required,oneof=lesson_reminder booking_confirmation booking_cancellation availability_change instructor_assignment system_announcement lesson_status assignment_message"`
	UserID      string                      `json:"user_id" validate:"required"`
	Title       string                      `json:"title" validate:"required,max=200"`
	Message     string                      `json:"message" validate:"required,max=2000"`
	Priority    models.NotificationPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	ActionURL   string                      `json:"action_url" validate:"omitempty,max=500"`
	ReferenceID string                      `json:"reference_id"`
	ScheduledAt time.Time                   `json:"scheduled_at" validate:"required"`
}

// AnnouncementRequest fans a notice out to active users, optionally of one role.
type AnnouncementRequest struct {
	Title      string          `json:"title" validate:"required,max=200"`
	Message    string          `json:"message" validate:"required,max=2000"`
	TargetRole models.UserRole `json:"target_role" validate:"omitempty,oneof=SUPER_ADMIN ADMIN INSTRUCTOR LEARNER"`
}

type emailTask struct {
	UserID    string
	Title     string
	Message   string
	ActionURL string
	Payload   models.Payload
}

type reminderTemplate struct {
	title    string
	priority models.NotificationPriority
	lead     string
}

// NotificationService persists, schedules and fires notification jobs. Persisted jobs
// are the source of truth; timers and the sweep only decide when firing is attempted.
type NotificationService struct {
	jobs        notificationJobRepository
	inbox       inboxRepository
	users       notificationUserReader
	bookings    upcomingBookingReader
	assignments assignmentReader
	publisher   Publisher
	sender      mailer.Sender
	metrics     *MetricsService
	cfg         NotificationConfig
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time

	timers   *TimerArena
	firing   *jobs.Queue
	emails   *jobs.Queue
	escalate map[models.NotificationPriority]struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotificationService wires the scheduler. Start must be called before timers fire.
func NewNotificationService(jobRepo notificationJobRepository, inbox inboxRepository, users notificationUserReader, bookings upcomingBookingReader, assignments assignmentReader, publisher Publisher, sender mailer.Sender, metrics *MetricsService, cfg NotificationConfig, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 200
	}
	if cfg.MaxDeliveryAttempts <= 0 {
		cfg.MaxDeliveryAttempts = 5
	}
	if cfg.ReminderOffsets == nil {
		cfg.ReminderOffsets = []time.Duration{24 * time.Hour, 2 * time.Hour, 30 * time.Minute}
	}
	if cfg.EscalationPriorities == nil {
		cfg.EscalationPriorities = []models.NotificationPriority{models.PriorityHigh, models.PriorityUrgent}
	}
	if cfg.InboxPageSize <= 0 {
		cfg.InboxPageSize = 20
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &NotificationService{
		jobs:        jobRepo,
		inbox:       inbox,
		users:       users,
		bookings:    bookings,
		assignments: assignments,
		publisher:   publisher,
		sender:      sender,
		metrics:     metrics,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
		escalate:    make(map[models.NotificationPriority]struct{}, len(cfg.EscalationPriorities)),
	}
	for _, p := range cfg.EscalationPriorities {
		s.escalate[p] = struct{}{}
	}
	s.timers = NewTimerArena(s.enqueueFire, metrics)
	s.firing = jobs.NewQueue("notification-fire", s.handleFire, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: 0,
		Dedupe:     true,
		Logger:     logger,
	})
	s.emails = jobs.NewQueue("notification-email", s.handleEmail, jobs.QueueConfig{
		Workers:    cfg.EmailWorkers,
		MaxRetries: cfg.EmailMaxRetries,
		RetryDelay: cfg.RetryDelay,
		OnGiveUp:   s.emailGaveUp,
		Logger:     logger,
	})
	return s
}

// Start launches the worker queues and the reconciliation sweep, which runs once
// immediately and then every SweepInterval.
func (s *NotificationService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.firing.Start(runCtx)
	s.emails.Start(runCtx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		s.runSweep(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runSweep(runCtx)
			}
		}
	}()
}

// Stop halts the sweep, disarms timers and drains the worker queues.
func (s *NotificationService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.timers.Stop()
	s.firing.Stop()
	s.emails.Stop()
}

func (s *NotificationService) runSweep(ctx context.Context) {
	fired, armed, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("notification sweep failed", zap.Error(err))
		return
	}
	if fired > 0 || armed > 0 {
		s.logger.Info("notification sweep", zap.Int("due", fired), zap.Int("armed", armed))
	}
}

// Sweep queues every due pending job for firing and arms timers for pending jobs due
// before the next sweep.
func (s *NotificationService) Sweep(ctx context.Context) (due int, armed int, err error) {
	now := s.now()
	pending, err := s.jobs.ListPendingBefore(ctx, now.Add(s.cfg.SweepInterval), s.cfg.MaxDeliveryAttempts, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, job := range pending {
		if job.ScheduledAt.After(now) {
			if s.timers.Arm(job.ID, job.ScheduledAt) {
				armed++
			}
			continue
		}
		s.timers.Cancel(job.ID)
		s.enqueueFire(job.ID)
		due++
	}
	return due, armed, nil
}

// SendNow persists a notice due immediately and delivers it before returning.
func (s *NotificationService) SendNow(ctx context.Context, req models.NotificationRequest) (string, error) {
	job, err := s.persist(ctx, req, s.now())
	if err != nil {
		return "", err
	}
	if err := s.fire(ctx, job.ID); err != nil {
		return job.ID, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "notification saved but delivery failed")
	}
	return job.ID, nil
}

// Schedule persists a notice due at firesAt and arms its timer. A past firesAt fires
// immediately.
func (s *NotificationService) Schedule(ctx context.Context, req models.NotificationRequest, firesAt time.Time) (string, error) {
	job, err := s.persist(ctx, req, firesAt)
	if err != nil {
		return "", err
	}
	s.timers.Arm(job.ID, job.ScheduledAt)
	s.metrics.RecordNotification("scheduled")
	return job.ID, nil
}

// ScheduleRequest validates and schedules an administrative notice.
func (s *NotificationService) ScheduleRequest(ctx context.Context, req ScheduleNotificationRequest) (*models.NotificationJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid notification payload")
	}
	jobID, err := s.Schedule(ctx, models.NotificationRequest{
		Type:        req.Type,
		UserID:      req.UserID,
		Title:       req.Title,
		Message:     req.Message,
		Priority:    req.Priority,
		ActionURL:   req.ActionURL,
		ReferenceID: req.ReferenceID,
	}, req.ScheduledAt)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, notFoundOrInternal(err, "notification job not found", "failed to load notification job")
	}
	return job, nil
}

// Cancel moves a pending job to cancelled and disarms its timer. It reports false for
// a job that was already sent or cancelled.
func (s *NotificationService) Cancel(ctx context.Context, jobID string) (bool, error) {
	s.timers.Cancel(jobID)
	cancelled, err := s.jobs.Cancel(ctx, jobID, s.now().UTC())
	if err != nil {
		return false, notFoundOrInternal(err, "notification job not found", "failed to cancel notification job")
	}
	if cancelled {
		s.metrics.RecordNotification("cancelled")
	}
	return cancelled, nil
}

// CancelByReference cancels every pending job tied to a booking or assignment id.
func (s *NotificationService) CancelByReference(ctx context.Context, referenceID string) (int, error) {
	ids, err := s.jobs.CancelByReference(ctx, referenceID, s.now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel related notifications")
	}
	for _, id := range ids {
		s.timers.Cancel(id)
		s.metrics.RecordNotification("cancelled")
	}
	return len(ids), nil
}

// ScheduleLessonReminders schedules a reminder per configured offset for the learner
// and the instructor, skipping offsets already in the past.
func (s *NotificationService) ScheduleLessonReminders(ctx context.Context, booking *models.Booking) ([]string, error) {
	learner, instructor, err := s.participants(ctx, booking)
	if err != nil {
		return nil, err
	}
	now := s.now()
	when := s.clock(booking.ScheduledAt)
	var ids []string
	for _, offset := range s.cfg.ReminderOffsets {
		firesAt := booking.ScheduledAt.Add(-offset)
		if !firesAt.After(now) {
			continue
		}
		tmpl := reminderFor(offset)
		payload := models.LessonReminderPayload{BookingID: booking.ID, ScheduledAt: booking.ScheduledAt, Offset: offset.String()}

		id, err := s.Schedule(ctx, models.NotificationRequest{
			Type:        models.NotificationLessonReminder,
			UserID:      learner.ID,
			Title:       tmpl.title,
			Message:     fmt.Sprintf("Your driving lesson starts %s at %s", tmpl.lead, when),
			Priority:    tmpl.priority,
			ActionURL:   "/dashboard/bookings/" + booking.ID,
			ReferenceID: booking.ID,
			Payload:     payload,
		}, firesAt)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)

		id, err = s.Schedule(ctx, models.NotificationRequest{
			Type:        models.NotificationLessonReminder,
			UserID:      instructor.ID,
			Title:       "Lesson Reminder - " + learner.FullName(),
			Message:     fmt.Sprintf("Upcoming lesson with %s %s at %s", learner.FullName(), tmpl.lead, when),
			Priority:    tmpl.priority,
			ActionURL:   "/dashboard/schedule/" + booking.ID,
			ReferenceID: booking.ID,
			Payload:     payload,
		}, firesAt)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func reminderFor(offset time.Duration) reminderTemplate {
	switch offset {
	case 24 * time.Hour:
		return reminderTemplate{title: "Lesson Reminder - Tomorrow", priority: models.PriorityMedium, lead: "tomorrow"}
	case 2 * time.Hour:
		return reminderTemplate{title: "Lesson Reminder - 2 Hours", priority: models.PriorityHigh, lead: "in 2 hours"}
	case 30 * time.Minute:
		return reminderTemplate{title: "Lesson Starting Soon", priority: models.PriorityHigh, lead: "in 30 minutes"}
	}
	priority := models.PriorityMedium
	if offset <= 2*time.Hour {
		priority = models.PriorityHigh
	}
	return reminderTemplate{title: "Lesson Reminder", priority: priority, lead: "in " + offset.String()}
}

// SendBookingConfirmation notifies both participants of a confirmed booking.
func (s *NotificationService) SendBookingConfirmation(ctx context.Context, booking *models.Booking) error {
	learner, instructor, err := s.participants(ctx, booking)
	if err != nil {
		return err
	}
	when := s.dateTime(booking.ScheduledAt)
	payload := models.BookingConfirmationPayload{BookingDetails: bookingDetails(booking)}

	if _, err := s.SendNow(ctx, models.NotificationRequest{
		Type:      models.NotificationBookingConfirmation,
		UserID:    learner.ID,
		Title:     "Lesson Booked Successfully",
		Message:   fmt.Sprintf("Your lesson with %s is confirmed for %s", instructor.FullName(), when),
		Priority:  models.PriorityHigh,
		ActionURL: "/dashboard/bookings/" + booking.ID,
		Payload:   payload,
	}); err != nil {
		return err
	}
	_, err = s.SendNow(ctx, models.NotificationRequest{
		Type:      models.NotificationBookingConfirmation,
		UserID:    instructor.ID,
		Title:     "New Lesson Booking",
		Message:   fmt.Sprintf("New lesson booking from %s for %s", learner.FullName(), when),
		Priority:  models.PriorityHigh,
		ActionURL: "/dashboard/schedule/" + booking.ID,
		Payload:   payload,
	})
	return err
}

// SendBookingCancellation notifies both participants of a cancelled booking.
func (s *NotificationService) SendBookingCancellation(ctx context.Context, booking *models.Booking, reason string) error {
	learner, instructor, err := s.participants(ctx, booking)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("The lesson on %s has been cancelled", s.dateTime(booking.ScheduledAt))
	if reason != "" {
		message += ": " + reason
	}
	payload := models.BookingCancellationPayload{BookingDetails: bookingDetails(booking), Reason: reason}
	for _, user := range []*models.User{learner, instructor} {
		if _, err := s.SendNow(ctx, models.NotificationRequest{
			Type:      models.NotificationBookingCancellation,
			UserID:    user.ID,
			Title:     "Lesson Cancelled",
			Message:   message,
			Priority:  models.PriorityHigh,
			ActionURL: "/dashboard/bookings/" + booking.ID,
			Payload:   payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

// SendLessonStatus tells the learner an instructor changed the lesson status.
func (s *NotificationService) SendLessonStatus(ctx context.Context, booking *models.Booking, notes string) error {
	_, err := s.SendNow(ctx, models.NotificationRequest{
		Type:      models.NotificationLessonStatus,
		UserID:    booking.LearnerID,
		Title:     "Lesson Status Updated",
		Message:   "Your lesson status has been updated to: " + string(booking.Status),
		Priority:  models.PriorityMedium,
		ActionURL: "/dashboard/bookings/" + booking.ID,
		Payload:   models.LessonStatusPayload{BookingID: booking.ID, Status: booking.Status, Notes: notes},
	})
	return err
}

// SendAvailabilityChange notifies learners holding upcoming lessons with the instructor.
func (s *NotificationService) SendAvailabilityChange(ctx context.Context, instructorID, change string) error {
	upcoming, err := s.bookings.ListUpcoming(ctx, instructorID, s.now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming bookings")
	}
	notified := make(map[string]struct{})
	for _, booking := range upcoming {
		if _, done := notified[booking.LearnerID]; done {
			continue
		}
		notified[booking.LearnerID] = struct{}{}
		if _, err := s.SendNow(ctx, models.NotificationRequest{
			Type:      models.NotificationAvailabilityChange,
			UserID:    booking.LearnerID,
			Title:     "Instructor Availability Updated",
			Message:   "Your instructor has updated their availability. Please check your upcoming lessons.",
			Priority:  models.PriorityMedium,
			ActionURL: "/dashboard/bookings",
			Payload:   models.AvailabilityChangePayload{InstructorID: instructorID, BookingID: booking.ID, Change: change},
		}); err != nil {
			return err
		}
	}
	return nil
}

// SendSystemAnnouncement delivers an announcement to every active user, or to those
// of TargetRole. It returns the number of recipients.
func (s *NotificationService) SendSystemAnnouncement(ctx context.Context, req AnnouncementRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, validationError(err, "invalid announcement payload")
	}
	var role *models.UserRole
	if req.TargetRole != "" {
		role = &req.TargetRole
	}
	users, err := s.users.ListActive(ctx, role)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipients")
	}
	sent := 0
	for _, user := range users {
		if _, err := s.SendNow(ctx, models.NotificationRequest{
			Type:     models.NotificationSystemAnnouncement,
			UserID:   user.ID,
			Title:    req.Title,
			Message:  req.Message,
			Priority: models.PriorityMedium,
			Payload:  models.AnnouncementPayload{TargetRole: req.TargetRole},
		}); err != nil {
			s.logger.Warn("announcement delivery failed", zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// SendAssignmentNotification notifies both participants of an assignment change and
// broadcasts it to the assignment room.
func (s *NotificationService) SendAssignmentNotification(ctx context.Context, assignmentID, action string) error {
	if strings.TrimSpace(action) == "" {
		return fieldValidation("action", "is required")
	}
	assignment, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return notFoundOrInternal(err, "assignment not found", "failed to load assignment")
	}
	payload := models.AssignmentPayload{AssignmentID: assignment.ID, Action: action, InstructorID: assignment.InstructorID, LearnerID: assignment.LearnerID}

	learnerTitle, instructorTitle := "Assignment Updated", "Assignment Updated"
	learnerMessage := fmt.Sprintf("Your instructor assignment was %s", action)
	instructorMessage := fmt.Sprintf("A learner assignment was %s", action)
	if action == "assigned" {
		learnerTitle, learnerMessage = "Instructor Assigned", "An instructor has been assigned to you"
		instructorTitle, instructorMessage = "New Learner Assigned", "A new learner has been assigned to you"
	}

	if _, err := s.SendNow(ctx, models.NotificationRequest{
		Type:        models.NotificationInstructorAssignment,
		UserID:      assignment.LearnerID,
		Title:       learnerTitle,
		Message:     learnerMessage,
		Priority:    models.PriorityMedium,
		ActionURL:   "/dashboard/assignments/" + assignment.ID,
		ReferenceID: assignment.ID,
		Payload:     payload,
	}); err != nil {
		return err
	}
	if _, err := s.SendNow(ctx, models.NotificationRequest{
		Type:        models.NotificationInstructorAssignment,
		UserID:      assignment.InstructorUserID,
		Title:       instructorTitle,
		Message:     instructorMessage,
		Priority:    models.PriorityMedium,
		ActionURL:   "/dashboard/assignments/" + assignment.ID,
		ReferenceID: assignment.ID,
		Payload:     payload,
	}); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.BroadcastToRoom(models.AssignmentRoom(assignment.ID), "assignment-updated", map[string]interface{}{
			"assignment": assignment,
			"action":     action,
		})
	}
	return nil
}

// SendAssignmentMessage tells the other participant about a message posted in the
// assignment room.
func (s *NotificationService) SendAssignmentMessage(ctx context.Context, assignment *models.Assignment, sender *models.Identity, text string) error {
	recipient := assignment.LearnerID
	if sender.UserID == assignment.LearnerID {
		recipient = assignment.InstructorUserID
	}
	preview := text
	if runes := []rune(preview); len(runes) > 50 {
		preview = string(runes[:50]) + "..."
	}
	_, err := s.SendNow(ctx, models.NotificationRequest{
		Type:     models.NotificationAssignmentMessage,
		UserID:   recipient,
		Title:    "New Message",
		Message:  fmt.Sprintf("New message from %s: %s", sender.FullName, preview),
		Priority: models.PriorityLow,
		Payload:  models.AssignmentMessagePayload{AssignmentID: assignment.ID, SenderID: sender.UserID, SenderName: sender.FullName},
	})
	return err
}

// ListForUser returns a page of the user's inbox.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, int, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = s.cfg.InboxPageSize
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	items, total, err := s.inbox.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	unread, err := s.inbox.CountUnread(ctx, userID)
	if err != nil {
		return nil, nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, unread, nil
}

// MarkRead marks one of the user's inbox entries read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.inbox.MarkRead(ctx, notificationID, userID, s.now().UTC()); err != nil {
		return notFoundOrInternal(err, "notification not found", "failed to mark notification read")
	}
	return nil
}

func (s *NotificationService) persist(ctx context.Context, req models.NotificationRequest, at time.Time) (*models.NotificationJob, error) {
	if req.UserID == "" || req.Title == "" {
		return nil, fieldValidation("user_id", "recipient and title are required")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !req.Priority.Valid() {
		return nil, fieldValidation("priority", "must be one of LOW MEDIUM HIGH URGENT")
	}
	if req.Payload != nil && req.Payload.NotificationType() != req.Type {
		return nil, fieldValidation("metadata", "payload does not match notification type")
	}
	metadata, err := models.EncodePayload(req.Payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode notification payload")
	}
	job := &models.NotificationJob{
		Type:        req.Type,
		UserID:      req.UserID,
		Title:       req.Title,
		Message:     req.Message,
		Priority:    req.Priority,
		ScheduledAt: at.UTC(),
		ActionURL:   optionalString(req.ActionURL),
		ReferenceID: optionalString(req.ReferenceID),
		Metadata:    metadata,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist notification")
	}
	return job, nil
}

func (s *NotificationService) enqueueFire(jobID string) {
	if err := s.firing.Enqueue(jobs.Job{ID: jobID, Type: fireJobType}); err != nil {
		s.logger.Warn("notification fire not queued, sweep will retry", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *NotificationService) handleFire(ctx context.Context, job jobs.Job) error {
	if err := s.fire(ctx, job.ID); err != nil {
		s.logger.Error("notification fire failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	return nil
}

// fire claims a pending job and delivers it. Only the caller that moves the job out
// of pending delivers; every other attempt is a no-op.
func (s *NotificationService) fire(ctx context.Context, jobID string) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification job vanished", zap.String("job_id", jobID))
			return nil
		}
		return err
	}
	if job.State() != models.JobPending {
		s.metrics.RecordNotification("skipped")
		return nil
	}
	// Unreadable metadata does not block delivery; the email just loses its details.
	payload, err := models.DecodePayload(job.Type, job.Metadata)
	if err != nil {
		s.metrics.RecordNotification("payload_invalid")
		s.logger.Warn("notification payload unreadable", zap.String("job_id", job.ID), zap.Error(err))
	}

	now := s.now().UTC()
	inbox := &models.Notification{
		UserID:    job.UserID,
		JobID:     &job.ID,
		Type:      job.Type,
		Title:     job.Title,
		Message:   job.Message,
		Priority:  job.Priority,
		ActionURL: job.ActionURL,
		Metadata:  job.Metadata,
		CreatedAt: now,
	}
	claimed, err := s.jobs.ClaimAndRecord(ctx, job.ID, now, inbox)
	if err != nil {
		s.metrics.RecordNotification("failed")
		if ferr := s.jobs.RecordFailure(ctx, job.ID); ferr != nil {
			s.logger.Error("notification failure not recorded", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return err
	}
	if !claimed {
		s.metrics.RecordNotification("skipped")
		return nil
	}
	s.metrics.RecordNotification("fired")

	if s.publisher != nil {
		s.publisher.SendToUser(job.UserID, "notification", inbox)
	}
	if _, ok := s.escalate[job.Priority]; ok && s.sender != nil {
		task := emailTask{UserID: job.UserID, Title: job.Title, Message: job.Message, Payload: payload}
		if job.ActionURL != nil {
			task.ActionURL = *job.ActionURL
		}
		if err := s.emails.Enqueue(jobs.Job{ID: job.ID, Type: emailJobType, Payload: task}); err != nil {
			s.logger.Warn("escalation email not queued", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			s.metrics.RecordNotification("escalated")
		}
	}
	return nil
}

func (s *NotificationService) handleEmail(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(emailTask)
	if !ok {
		return nil
	}
	user, err := s.users.FindByID(ctx, task.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if user.Email == "" {
		return nil
	}
	return s.sender.Send(ctx, s.composeEmail(user, task))
}

func (s *NotificationService) emailGaveUp(job jobs.Job, err error) {
	s.metrics.RecordNotification("email_failed")
}

func (s *NotificationService) composeEmail(user *models.User, task emailTask) mailer.Message {
	subject := task.Title
	if s.cfg.AppName != "" {
		subject = "[" + s.cfg.AppName + "] " + task.Title
	}
	text := task.Message
	body := "<p>" + html.EscapeString(task.Message) + "</p>"
	if detail := s.emailDetail(task.Payload); detail != "" {
		text += "\n" + detail
		body += "<p>" + html.EscapeString(detail) + "</p>"
	}
	if task.ActionURL != "" {
		link := strings.TrimRight(s.cfg.FrontendBaseURL, "/") + task.ActionURL
		text += "\n\n" + link
		body += `<p><a href="` + html.EscapeString(link) + `">View details</a></p>`
	}
	return mailer.Message{
		To:      []mailer.Address{{Name: user.FullName(), Email: user.Email}},
		Subject: subject,
		Text:    text,
		HTML:    "<h2>" + html.EscapeString(task.Title) + "</h2>" + body,
	}
}

// emailDetail renders the lesson facts a typed payload carries.
func (s *NotificationService) emailDetail(p models.Payload) string {
	switch p := p.(type) {
	case *models.LessonReminderPayload:
		return "Lesson time: " + s.dateTime(p.ScheduledAt)
	case *models.BookingConfirmationPayload:
		return fmt.Sprintf("Lesson time: %s (%d minutes)", s.dateTime(p.ScheduledAt), p.Duration)
	case *models.BookingCancellationPayload:
		if p.Reason != "" {
			return fmt.Sprintf("Lesson time: %s. Reason: %s", s.dateTime(p.ScheduledAt), p.Reason)
		}
		return "Lesson time: " + s.dateTime(p.ScheduledAt)
	case *models.LessonStatusPayload:
		if p.Notes != "" {
			return "Instructor notes: " + p.Notes
		}
	}
	return ""
}

func (s *NotificationService) participants(ctx context.Context, booking *models.Booking) (*models.User, *models.User, error) {
	learner, err := s.users.FindByID(ctx, booking.LearnerID)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "learner not found", "failed to load learner")
	}
	instructorUserID := booking.InstructorUserID
	if instructorUserID == "" {
		inst, err := s.users.FindInstructor(ctx, booking.InstructorID)
		if err != nil {
			return nil, nil, notFoundOrInternal(err, "instructor not found", "failed to load instructor")
		}
		instructorUserID = inst.UserID
	}
	instructor, err := s.users.FindByID(ctx, instructorUserID)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "instructor not found", "failed to load instructor")
	}
	return learner, instructor, nil
}

func (s *NotificationService) clock(t time.Time) string {
	return t.In(s.cfg.Location).Format("15:04")
}

func (s *NotificationService) dateTime(t time.Time) string {
	return t.In(s.cfg.Location).Format("Mon 2 Jan 2006 15:04")
}

func bookingDetails(b *models.Booking) models.BookingDetails {
	return models.BookingDetails{
		BookingID:    b.ID,
		InstructorID: b.InstructorID,
		LearnerID:    b.LearnerID,
		ScheduledAt:  b.ScheduledAt,
		Duration:     b.Duration,
		Status:       b.Status,
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
