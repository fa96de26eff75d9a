package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/pkg/database"
)

const availabilityColumns = `id, instructor_id, day_of_week, specific_date, start_time, end_time, is_recurring, is_active, created_at, updated_at`

// AvailabilityRepository persists instructor availability windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a single availability slot.
func (r *AvailabilityRepository) Create(ctx context.Context, slot *models.AvailabilitySlot) error {
	return r.create(ctx, nil, slot)
}

func (r *AvailabilityRepository) create(ctx context.Context, exec sqlx.ExtContext, slot *models.AvailabilitySlot) error {
	if slot == nil {
		return fmt.Errorf("availability slot is nil")
	}
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	slot.IsActive = true

	const query = `
INSERT INTO availability_slots (id, instructor_id, day_of_week, specific_date, start_time, end_time, is_recurring, is_active, created_at, updated_at)
VALUES (:id, :instructor_id, :day_of_week, :specific_date, :start_time, :end_time, :is_recurring, :is_active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, slot); err != nil {
		return fmt.Errorf("insert availability slot: %w", err)
	}
	return nil
}

// ReplaceRecurring inserts slots in one transaction, first deactivating every active
// recurring slot of the instructor when overwrite is set.
func (r *AvailabilityRepository) ReplaceRecurring(ctx context.Context, instructorID string, slots []models.AvailabilitySlot, overwrite bool) ([]models.AvailabilitySlot, error) {
	created := make([]models.AvailabilitySlot, 0, len(slots))
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if overwrite {
			const deactivate = `UPDATE availability_slots SET is_active = FALSE, updated_at = $2 WHERE instructor_id = $1 AND is_recurring = TRUE AND is_active = TRUE`
			if _, err := tx.ExecContext(ctx, deactivate, instructorID, time.Now().UTC()); err != nil {
				return fmt.Errorf("deactivate recurring availability: %w", err)
			}
		}
		for i := range slots {
			slot := slots[i]
			slot.InstructorID = instructorID
			if err := r.create(ctx, tx, &slot); err != nil {
				return err
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Deactivate soft-deletes a slot. changed is false when the slot was already inactive;
// sql.ErrNoRows is returned for an unknown id.
func (r *AvailabilityRepository) Deactivate(ctx context.Context, id string) (*models.AvailabilitySlot, bool, error) {
	const query = `UPDATE availability_slots SET is_active = FALSE, updated_at = $2 WHERE id = $1 AND is_active = TRUE RETURNING ` + availabilityColumns
	var slot models.AvailabilitySlot
	err := r.db.GetContext(ctx, &slot, query, id, time.Now().UTC())
	if err == nil {
		return &slot, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("deactivate availability slot: %w", err)
	}
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByID loads a slot regardless of its active flag.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_slots WHERE id = $1`
	var slot models.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find availability slot: %w", err)
	}
	return &slot, nil
}

// ListActive returns every active slot for the instructor.
func (r *AvailabilityRepository) ListActive(ctx context.Context, instructorID string) ([]models.AvailabilitySlot, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_slots
WHERE instructor_id = $1 AND is_active = TRUE
ORDER BY is_recurring DESC, day_of_week NULLS LAST, specific_date NULLS LAST, start_time`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, instructorID); err != nil {
		return nil, fmt.Errorf("list active availability: %w", err)
	}
	return slots, nil
}

// ListActiveForDate returns active slots applying to the calendar day of date.
func (r *AvailabilityRepository) ListActiveForDate(ctx context.Context, instructorID string, date time.Time) ([]models.AvailabilitySlot, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_slots
WHERE instructor_id = $1 AND is_active = TRUE
AND ((is_recurring = TRUE AND day_of_week = $2) OR specific_date = $3)
ORDER BY start_time`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, instructorID, int(date.Weekday()), date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list availability for date: %w", err)
	}
	return slots, nil
}

// ListActiveInRange returns active recurring slots plus date-anchored slots within [from, to].
func (r *AvailabilityRepository) ListActiveInRange(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilitySlot, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability_slots
WHERE instructor_id = $1 AND is_active = TRUE
AND (is_recurring = TRUE OR specific_date BETWEEN $2 AND $3)
ORDER BY start_time`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, instructorID, from.Format("2006-01-02"), to.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list availability in range: %w", err)
	}
	return slots, nil
}
