package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimin-dev/food-delivery-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestSessionCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{
		UserID:        "u1",
		RefreshToken:  "token",
		AccessTokenID: "jti-1",
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	}
	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionCreateRefreshTokenCollision(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Session{UserID: "u1", RefreshToken: "token", AccessTokenID: "jti-1"})
	assert.ErrorIs(t, err, ErrRefreshTokenTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionFindByRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "refresh_token", "access_token_id", "expires_at", "created_at"}).
		AddRow("s1", "u1", "token", "jti-1", now.Add(24*time.Hour), now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, refresh_token, access_token_id, expires_at, created_at FROM sessions WHERE refresh_token = $1 LIMIT 1")).
		WithArgs("token").
		WillReturnRows(rows)

	session, err := repo.FindByRefreshToken(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "jti-1", session.AccessTokenID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionFindByRefreshTokenMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE refresh_token").
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByRefreshToken(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRotateAccessTokenID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET access_token_id = $3 WHERE id = $1 AND access_token_id = $2")).
		WithArgs("s1", "old-jti", "new-jti").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RotateAccessTokenID(context.Background(), "s1", "old-jti", "new-jti")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRotateStaleLosesRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET access_token_id = $3 WHERE id = $1 AND access_token_id = $2")).
		WithArgs("s1", "already-rotated", "new-jti").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RotateAccessTokenID(context.Background(), "s1", "already-rotated", "new-jti")
	assert.ErrorIs(t, err, ErrStaleSession)
}

func TestSessionDeleteByUserAndAccessTokenID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1 AND access_token_id = $2")).
		WithArgs("u1", "jti-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.DeleteByUserAndAccessTokenID(context.Background(), "u1", "jti-1")
	assert.NoError(t, err)
}

func TestSessionDeleteByUserAndAccessTokenIDMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1 AND access_token_id = $2")).
		WithArgs("u1", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByUserAndAccessTokenID(context.Background(), "u1", "gone")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionDeleteAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeleteAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSessionDeleteExpiredBefore(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	cutoff := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := repo.DeleteExpiredBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
}
