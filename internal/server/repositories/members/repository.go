package members

import (
	"context"

	"github.com/dmitrijs2005/teamcodes/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, member *models.Member) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
}
