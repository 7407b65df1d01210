package models

import "time"

// Session represents one live refresh session. The refresh token value is
// fixed for the lifetime of the row; only AccessTokenID changes on rotation.
type Session struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	RefreshToken  string    `db:"refresh_token" json:"refresh_token"`
	AccessTokenID string    `db:"access_token_id" json:"access_token_id"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the session can no longer be exchanged.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
