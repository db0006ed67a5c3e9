package models

import "time"

// Roles accepted at signup.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered account. It is stored under its username, so
// Username is immutable once the document exists.
type User struct {
	ID        string    `json:"id" validate:"omitempty,uuid"`
	Username  string    `json:"username" validate:"required,max=100,excludesall=/\\"`
	Password  string    `json:"password,omitempty" validate:"required"` // bcrypt hash, cleared by Public
	Role      string    `json:"role" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public returns a copy of u that is safe to send to clients.
func (u User) Public() User {
	u.Password = ""
	return u
}
