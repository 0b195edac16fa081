// Package notify carries change events (new codes, revoked links) from the
// write path to live viewers. Delivery is best-effort: every consumer also
// re-checks the backend on a timer, so a dropped event delays an update but
// never loses it.
package notify

import (
	"context"

	"github.com/dmitrijs2005/teamcodes/internal/server/models"
)

type EventKind string

const (
	// CodeInserted is published after a new code row lands for a group.
	CodeInserted EventKind = "code.inserted"
	// LinkDeleted is published after a share link is revoked.
	LinkDeleted EventKind = "link.deleted"
)

// Event is one change notification, scoped to a group. Code is set for
// CodeInserted, LinkToken for LinkDeleted.
type Event struct {
	Kind      EventKind    `json:"kind"`
	GroupID   string       `json:"group_id"`
	LinkToken string       `json:"link_token,omitempty"`
	Code      *models.Code `json:"code,omitempty"`
}

// Bus fans change events out to subscribers. Subscribe returns a receive
// channel scoped to one group and a cancel function that must be called
// exactly once; after cancel returns no further events are delivered and
// the channel is closed.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, groupID string) (<-chan Event, func())
	Close() error
}
