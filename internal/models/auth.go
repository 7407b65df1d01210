package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest holds the registration payload.
type RegisterRequest struct {
	FullName    string     `json:"full_name" validate:"required,min=1"`
	Password    string     `json:"password" validate:"required,min=6"`
	Email       string     `json:"email" validate:"required,email"`
	AddressID   *string    `json:"address_id" validate:"omitempty,uuid"`
	BirthDate   *time.Time `json:"birth_date"`
	Gender      Gender     `json:"gender" validate:"required,oneof=Male Female"`
	PhoneNumber *string    `json:"phone_number" validate:"omitempty,e164"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges an expired access token plus its paired refresh
// token for a new access token.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair is returned by register, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Profile describes the authenticated user in responses.
type Profile struct {
	ID          string     `json:"id"`
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	Gender      Gender     `json:"gender"`
	AddressID   *string    `json:"address_id,omitempty"`
	PhoneNumber *string    `json:"phone_number,omitempty"`
}

// EditProfileRequest updates the authenticated user's profile. Email and
// address are revalidated with the same rules as registration.
type EditProfileRequest struct {
	FullName    string     `json:"full_name" validate:"required,min=1"`
	Email       string     `json:"email" validate:"required,email"`
	BirthDate   *time.Time `json:"birth_date"`
	Gender      Gender     `json:"gender" validate:"required,oneof=Male Female"`
	AddressID   *string    `json:"address_id" validate:"omitempty,uuid"`
	PhoneNumber *string    `json:"phone_number" validate:"omitempty,e164"`
}

// AccessClaims represents the JWT payload for access tokens. Subject carries
// the user id and ID the token's unique identifier (jti).
type AccessClaims struct {
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// AccessTokenID returns the jti claim binding the token to a session row.
func (c *AccessClaims) AccessTokenID() string {
	return c.ID
}
