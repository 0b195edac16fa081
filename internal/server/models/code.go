package models

import "time"

// Code is one generated TOTP value. Rows are append-only: every refresh
// inserts a new row, and the latest row by CreatedAt is the one that
// matters for a group.
type Code struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
