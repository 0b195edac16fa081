package groups

import (
	"context"
	"time"

	"github.com/dmitrijs2005/teamcodes/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, group *models.Group) (*models.Group, error)
	Get(ctx context.Context, id string) (*models.Group, error)
	List(ctx context.Context) ([]*models.Group, error)
	// UpdateCurrentCode persists the freshly generated code for a group.
	// Returns false (not an error) when the group no longer exists.
	UpdateCurrentCode(ctx context.Context, id string, code string, at time.Time) (bool, error)
}
