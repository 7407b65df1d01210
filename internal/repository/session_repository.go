package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fimin-dev/food-delivery-api/internal/models"
)

// pgUniqueViolation is the Postgres error code for unique constraint breaches.
const pgUniqueViolation = "23505"

var (
	// ErrRefreshTokenTaken signals a unique collision on the refresh token
	// value. Callers regenerate the token and retry once.
	ErrRefreshTokenTaken = errors.New("refresh token already exists")

	// ErrStaleSession signals that a rotation lost the race: the stored
	// access token id no longer matches the one the caller observed.
	ErrStaleSession = errors.New("session access token id is stale")
)

// SessionRepository provides database access to refresh sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session row. Returns ErrRefreshTokenTaken when the
// refresh token value collides with an existing row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO sessions (id, user_id, refresh_token, access_token_id, expires_at, created_at)
		VALUES (:id, :user_id, :refresh_token, :access_token_id, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrRefreshTokenTaken
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByRefreshToken returns the session bound to the given refresh token.
func (r *SessionRepository) FindByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	const query = `SELECT id, user_id, refresh_token, access_token_id, expires_at, created_at FROM sessions WHERE refresh_token = $1 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, refreshToken); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by refresh token: %w", err)
	}
	return &session, nil
}

// RotateAccessTokenID swaps the bound access token id, guarded by a
// compare-and-swap on the previous value. When two refreshes race on the same
// row, the loser matches zero rows and gets ErrStaleSession.
func (r *SessionRepository) RotateAccessTokenID(ctx context.Context, id, oldAccessTokenID, newAccessTokenID string) error {
	const query = `UPDATE sessions SET access_token_id = $3 WHERE id = $1 AND access_token_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, oldAccessTokenID, newAccessTokenID)
	if err != nil {
		return fmt.Errorf("rotate access token id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate access token id: %w", err)
	}
	if affected == 0 {
		return ErrStaleSession
	}
	return nil
}

// DeleteByUserAndAccessTokenID removes the single session bound to the given
// user and access token id. Returns sql.ErrNoRows when no such session exists.
func (r *SessionRepository) DeleteByUserAndAccessTokenID(ctx context.Context, userID, accessTokenID string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1 AND access_token_id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, accessTokenID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAllForUser removes every session owned by the user.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete sessions for user: %w", err)
	}
	return affected, nil
}

// DeleteExpiredBefore bulk-removes sessions whose expiry precedes the cutoff.
func (r *SessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return affected, nil
}
