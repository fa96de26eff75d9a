package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type slotAvailabilityReader interface {
	ListActiveForDate(ctx context.Context, instructorID string, date time.Time) ([]models.AvailabilitySlot, error)
}

type slotBookingReader interface {
	ListOccupying(ctx context.Context, instructorID string, from, to time.Time) ([]models.Booking, error)
}

// SlotConfig bounds slot resolution requests.
type SlotConfig struct {
	Location        *time.Location
	DefaultDuration int
	MaxDuration     int
}

// SlotService resolves bookable slots for an instructor day.
type SlotService struct {
	availability slotAvailabilityReader
	bookings     slotBookingReader
	instructors  instructorReader
	cache        *CacheService
	metrics      *MetricsService
	cfg          SlotConfig
	logger       *zap.Logger
}

// NewSlotService constructs the resolver.
func NewSlotService(availability slotAvailabilityReader, bookings slotBookingReader, instructors instructorReader, cache *CacheService, metrics *MetricsService, cfg SlotConfig, logger *zap.Logger) *SlotService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 60
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 240
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{availability: availability, bookings: bookings, instructors: instructors, cache: cache, metrics: metrics, cfg: cfg, logger: logger}
}

// GetAvailableSlots lists the free slots of duration minutes on date (YYYY-MM-DD in
// the school time zone). A zero duration uses the default lesson length.
func (s *SlotService) GetAvailableSlots(ctx context.Context, instructorID, date string, duration int) (*models.AvailableSlots, error) {
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}
	if duration < 1 || duration > s.cfg.MaxDuration {
		return nil, fieldValidation("duration", "must be between 1 and the maximum lesson length")
	}
	day, err := parseSchoolDate(date, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	if s.instructors != nil {
		if _, err := s.instructors.FindInstructor(ctx, instructorID); err != nil {
			return nil, notFoundOrInternal(err, "instructor not found", "failed to load instructor")
		}
	}

	// The generation is captured before reading so a write committed during the
	// reads lands its invalidation on a newer generation than this result.
	gen, cacheable := s.cache.Generation(ctx, instructorID)
	key := SlotCacheKey(instructorID, date, duration, gen)
	if cacheable {
		var cached models.AvailableSlots
		if s.cache.Get(ctx, key, &cached) {
			cached.CacheHit = true
			return &cached, nil
		}
	}

	start := time.Now()
	dayEnd := day.AddDate(0, 0, 1)

	var (
		windows  []models.AvailabilitySlot
		bookings []models.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		windows, err = s.availability.ListActiveForDate(gctx, instructorID, day)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = s.bookings.ListOccupying(gctx, instructorID, day, dayEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve available slots")
	}

	slots := ResolveSlots(day, windows, bookings, duration)
	s.metrics.ObserveSlotResolve(time.Since(start))

	result := &models.AvailableSlots{
		InstructorID:      instructorID,
		Date:              date,
		RequestedDuration: duration,
		TotalSlots:        len(slots),
		Slots:             slots,
	}
	if cacheable {
		s.cache.Set(ctx, key, result)
	}
	return result, nil
}

// ResolveSlots cuts every window applying to day into back-to-back candidates of
// duration minutes and drops those overlapping an occupying booking. day must be
// midnight in the school time zone. Malformed windows are skipped.
func ResolveSlots(day time.Time, windows []models.AvailabilitySlot, bookings []models.Booking, duration int) []models.TimeSlot {
	slots := []models.TimeSlot{}
	if duration <= 0 {
		return slots
	}
	step := time.Duration(duration) * time.Minute
	seen := make(map[int64]struct{})
	for _, window := range windows {
		if !window.IsActive || !window.AppliesTo(day) {
			continue
		}
		startMin, endMin, ok := window.Window()
		if !ok {
			continue
		}
		windowEnd := wallClock(day, endMin)
		for candidate := wallClock(day, startMin); !candidate.Add(step).After(windowEnd); candidate = candidate.Add(step) {
			end := candidate.Add(step)
			if occupied(candidate, end, bookings) {
				continue
			}
			if _, dup := seen[candidate.UnixNano()]; dup {
				continue
			}
			seen[candidate.UnixNano()] = struct{}{}
			slots = append(slots, models.TimeSlot{Start: candidate, End: end, Duration: duration})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

func wallClock(day time.Time, minutes int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, day.Location())
}

func occupied(start, end time.Time, bookings []models.Booking) bool {
	for _, b := range bookings {
		if b.Status.Occupies() && b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
