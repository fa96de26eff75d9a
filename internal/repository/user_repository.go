package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/driving-school-api/internal/models"
)

const userColumns = `id, email, first_name, last_name, role, status, created_at, updated_at`

// UserRepository reads user accounts and instructor profiles owned by the identity service.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ListActive returns active users, optionally restricted to one role.
func (r *UserRepository) ListActive(ctx context.Context, role *models.UserRole) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE status = 'ACTIVE'`
	args := []interface{}{}
	if role != nil {
		query += ` AND role = $1`
		args = append(args, *role)
	}
	query += ` ORDER BY created_at`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

// FindInstructor loads an instructor profile.
func (r *UserRepository) FindInstructor(ctx context.Context, instructorID string) (*models.Instructor, error) {
	const query = `SELECT id, user_id FROM instructors WHERE id = $1`
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, query, instructorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find instructor: %w", err)
	}
	return &instructor, nil
}
