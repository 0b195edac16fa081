package codes

import (
	"context"

	"github.com/dmitrijs2005/teamcodes/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, code *models.Code) error
	// Latest returns the single most recent code row for a group,
	// common.ErrorNotFound when the group has no codes yet.
	Latest(ctx context.Context, groupID string) (*models.Code, error)
}
