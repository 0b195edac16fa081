package models

import "time"

type AccessType string

const (
	AccessAnyone     AccessType = "anyone"
	AccessRestricted AccessType = "restricted"
)

// ShareLink is a capability object granting viewing rights to a group's
// current code. It references the group by ID and is independent of any
// single viewer's session.
type ShareLink struct {
	ID            string     `json:"id"`
	GroupID       string     `json:"group_id"`
	AccessToken   string     `json:"access_token"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	OneTimeView   bool       `json:"one_time_view"`
	ViewsCount    int        `json:"views_count"`
	AccessType    AccessType `json:"access_type"`
	AllowedEmails []string   `json:"allowed_emails,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
