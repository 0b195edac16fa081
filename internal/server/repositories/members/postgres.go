// Package members provides the PostgreSQL repository for dashboard members.
package members

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

func (r *PostgresRepository) Create(ctx context.Context, member *models.Member) (*models.Member, error) {
	query :=
		`INSERT INTO members (id, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		member.ID, strings.ToLower(member.Email), member.PasswordHash).Scan(&member.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return member, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	query :=
		`SELECT id, email, password_hash, created_at FROM members
		 WHERE email = $1
		 `

	member := &models.Member{}
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(email)).
		Scan(&member.ID, &member.Email, &member.PasswordHash, &member.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return member, nil
}
