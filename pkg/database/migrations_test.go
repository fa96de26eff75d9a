package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrationsSkipsRecordedVersions(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE bookings").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version, description) VALUES ($1, $2)")).
		WithArgs("0002", "bookings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := ApplyMigrations(context.Background(), sqlx.NewDb(raw, "sqlmock"), []Migration{
		{Version: "0002", Description: "bookings", SQL: "CREATE TABLE bookings (id TEXT)"},
		{Version: "0001", Description: "users", SQL: "CREATE TABLE users (id TEXT)"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrationsStopsOnFailure(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE EXTENSION").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	applied, err := ApplyMigrations(context.Background(), sqlx.NewDb(raw, "sqlmock"), []Migration{
		{Version: "0001", SQL: "CREATE EXTENSION btree_gist"},
		{Version: "0002", SQL: "CREATE TABLE later (id TEXT)"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 0001")
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
