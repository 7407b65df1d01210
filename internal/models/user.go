package models

import "time"

// Gender mirrors the values accepted by the registration endpoint.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	BirthDate    *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender       Gender     `db:"gender" json:"gender"`
	PhoneNumber  *string    `db:"phone_number" json:"phone_number,omitempty"`
	AddressID    *string    `db:"address_id" json:"address_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
