package sharelinks

import (
	"context"

	"github.com/dmitrijs2005/teamcodes/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, link *models.ShareLink) (*models.ShareLink, error)
	Get(ctx context.Context, groupID, token string) (*models.ShareLink, error)
	// GetForUpdate locks the link row for the duration of the enclosing
	// transaction. The one-time-view check depends on this lock.
	GetForUpdate(ctx context.Context, groupID, token string) (*models.ShareLink, error)
	IncrementViews(ctx context.Context, id string) (int, error)
	// Delete removes a link (revocation). Returns false when no row matched.
	Delete(ctx context.Context, groupID, token string) (bool, error)
}
