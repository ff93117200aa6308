package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email          string             `bson:"email" json:"email"`
	HashedPassword string             `bson:"hashed_password" json:"-"` // Don't return password in JSON
	IsActive       bool               `bson:"is_active" json:"is_active"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`

	// Profile fields
	FullName   string     `bson:"full_name,omitempty" json:"full_name,omitempty"`
	LastName   string     `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Career     string     `bson:"career,omitempty" json:"career,omitempty"`
	University string     `bson:"university,omitempty" json:"university,omitempty"`
	BirthDate  *time.Time `bson:"birth_date,omitempty" json:"birth_date,omitempty"`
}

// DisplayName joins the trimmed first and last name. It returns "" when the
// user has no first name, so callers can pick their own fallback.
func (u User) DisplayName() string {
	first := strings.TrimSpace(u.FullName)
	if first == "" {
		return ""
	}
	if last := strings.TrimSpace(u.LastName); last != "" {
		return first + " " + last
	}
	return first
}

// ProfileUpdate carries the optional fields of PUT /profile/update.
// Nil means "leave unchanged".
type ProfileUpdate struct {
	FullName   *string    `json:"full_name,omitempty"`
	LastName   *string    `json:"last_name,omitempty"`
	Career     *string    `json:"career,omitempty"`
	University *string    `json:"university,omitempty"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
}
