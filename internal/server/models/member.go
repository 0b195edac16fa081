package models

import "time"

// Member is a dashboard user. Only the minimum needed to gate restricted
// share links: an email (stored lowercase) and a password hash for the
// session login.
type Member struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
