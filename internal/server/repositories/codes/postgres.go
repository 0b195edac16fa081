// Package codes provides the PostgreSQL repository for the append-only
// code history.
package codes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/teamcodes/internal/common"
	"github.com/dmitrijs2005/teamcodes/internal/dbx"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, code *models.Code) error {
	query :=
		`INSERT INTO codes (id, group_id, code, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query,
		code.ID, code.GroupID, code.Code, code.CreatedAt, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Latest(ctx context.Context, groupID string) (*models.Code, error) {
	query :=
		`SELECT id, group_id, code, created_at, expires_at FROM codes
		 WHERE group_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1
		 `

	code := &models.Code{}
	err := r.db.QueryRowContext(ctx, query, groupID).
		Scan(&code.ID, &code.GroupID, &code.Code, &code.CreatedAt, &code.ExpiresAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return code, nil
}
