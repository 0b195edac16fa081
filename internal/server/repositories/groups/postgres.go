// Package groups provides the PostgreSQL repository for group records.
package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, group *models.Group) (*models.Group, error) {
	query :=
		`INSERT INTO groups (id, name, totp_secret)
		 VALUES ($1, $2, $3)
		 `

	_, err := r.db.ExecContext(ctx, query, group.ID, group.Name, group.Secret)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return group, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Group, error) {
	query :=
		`SELECT id, name, totp_secret, current_code, COALESCE(code_updated_at, 'epoch') FROM groups
		 WHERE id = $1
		 `

	group := &models.Group{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&group.ID, &group.Name, &group.Secret, &group.CurrentCode, &group.CodeUpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return group, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Group, error) {
	query :=
		`SELECT id, name, totp_secret, current_code, COALESCE(code_updated_at, 'epoch') FROM groups
		 ORDER BY name
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Secret, &g.CurrentCode, &g.CodeUpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateCurrentCode mirrors the latest code onto the group row. A vanished
// group is a soft failure: the caller keeps showing the generated code and
// retries on the next cycle.
func (r *PostgresRepository) UpdateCurrentCode(ctx context.Context, id string, code string, at time.Time) (bool, error) {
	query :=
		`UPDATE groups SET current_code = $2, code_updated_at = $3
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, code, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}
