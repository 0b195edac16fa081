// Package models contains the server-side domain records persisted in
// Postgres.
package models

import "time"

// Group is the aggregate owning a TOTP secret and its code history.
// Secret is only ever read to derive codes, never mutated by the refresh
// loop. CurrentCode mirrors the latest codes row for cheap point reads.
type Group struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Secret        string    `json:"-"`
	CurrentCode   string    `json:"current_code"`
	CodeUpdatedAt time.Time `json:"code_updated_at"`
}
