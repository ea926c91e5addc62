package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kudos-web/internal/domain"
	"kudos-web/internal/repository"
)

func newRepoWithMock(t *testing.T) (repository.UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewUserRepository(db), mock
}

const getByIDQuery = `(?s)SELECT.+FROM\s+users\s+WHERE\s+id\s*=\s*\$1::uuid`

const insertQuery = `(?s)^\s*INSERT\s+INTO\s+users\s*\(id,\s*email,\s*password_hash,\s*display_name,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).
		WithArgs("u-1", "a@b.co", "hash", "A", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &domain.User{ID: "u-1", Email: "a@b.co", PasswordHash: "hash", DisplayName: "A"}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &domain.User{ID: "u-1", Email: "a@b.co"})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &domain.User{ID: "u-1", Email: "a@b.co"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrEmailTaken)
	assert.Contains(t, err.Error(), "db down")
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "display_name", "created_at", "updated_at"}).
		AddRow("u-1", "a@b.co", "hash", "A", now, now)
	mock.ExpectQuery(`(?s)SELECT.+FROM\s+users\s+WHERE\s+LOWER\(email\)\s*=\s*LOWER\(\$1\)`).
		WithArgs("a@b.co").
		WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, "A", got.DisplayName)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(getByIDQuery).
		WithArgs("6f1c1e9e-3c1f-4c55-9a57-0d6f8d6f6b21").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "6f1c1e9e-3c1f-4c55-9a57-0d6f8d6f6b21")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetByID_MalformedID(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(getByIDQuery).
		WithArgs("admin").
		WillReturnError(&pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"})

	_, err := repo.GetByID(context.Background(), "admin")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(getByIDQuery).
		WithArgs("6f1c1e9e-3c1f-4c55-9a57-0d6f8d6f6b21").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "6f1c1e9e-3c1f-4c55-9a57-0d6f8d6f6b21")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

func TestExistsByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)SELECT\s+EXISTS`).
		WithArgs("a@b.co").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByEmail(context.Background(), "a@b.co")
	require.NoError(t, err)
	assert.True(t, exists)
}
