package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamcodes/internal/totp"
)

type GroupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewGroupService(db *sql.DB, repomanager repomanager.RepositoryManager) *GroupService {
	return &GroupService{db: db, repomanager: repomanager}
}

// Create registers a group. The secret is checked by deriving a code from
// it once, so a malformed secret is rejected here instead of surfacing as
// an "Error" code later.
func (s *GroupService) Create(ctx context.Context, name, secret string) (*models.Group, error) {
	if _, err := totp.Generate(secret, time.Now()); err != nil {
		return nil, err
	}

	group := &models.Group{
		ID:     uuid.NewString(),
		Name:   name,
		Secret: secret,
	}
	return s.repomanager.Groups(s.db).Create(ctx, group)
}

func (s *GroupService) Get(ctx context.Context, id string) (*models.Group, error) {
	return s.repomanager.Groups(s.db).Get(ctx, id)
}

func (s *GroupService) List(ctx context.Context) ([]*models.Group, error) {
	return s.repomanager.Groups(s.db).List(ctx)
}
