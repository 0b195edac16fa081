// Package sharelinks provides the PostgreSQL repository for share-link
// capability records.
package sharelinks

import (
	"context"
	"database/sql"
	"encoding/json"
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

const selectColumns = `id, group_id, access_token, expires_at, one_time_view, views_count, access_type, allowed_emails, created_at`

func (r *PostgresRepository) Create(ctx context.Context, link *models.ShareLink) (*models.ShareLink, error) {
	var emails []byte
	if link.AllowedEmails != nil {
		var err error
		emails, err = json.Marshal(link.AllowedEmails)
		if err != nil {
			return nil, fmt.Errorf("allowed_emails marshal error: %w", err)
		}
	}

	query :=
		`INSERT INTO share_links (id, group_id, access_token, expires_at, one_time_view, access_type, allowed_emails)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		link.ID, link.GroupID, link.AccessToken, link.ExpiresAt,
		link.OneTimeView, link.AccessType, emails).Scan(&link.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return link, nil
}

func (r *PostgresRepository) Get(ctx context.Context, groupID, token string) (*models.ShareLink, error) {
	query := `SELECT ` + selectColumns + ` FROM share_links
		 WHERE group_id = $1 AND access_token = $2
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, groupID, token))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, groupID, token string) (*models.ShareLink, error) {
	query := `SELECT ` + selectColumns + ` FROM share_links
		 WHERE group_id = $1 AND access_token = $2
		 FOR UPDATE
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, groupID, token))
}

func (r *PostgresRepository) IncrementViews(ctx context.Context, id string) (int, error) {
	query :=
		`UPDATE share_links SET views_count = views_count + 1
		 WHERE id = $1
		 RETURNING views_count
		 `

	var views int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&views)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrLinkNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return views, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, groupID, token string) (bool, error) {
	query :=
		`DELETE FROM share_links
		 WHERE group_id = $1 AND access_token = $2
		 `

	res, err := r.db.ExecContext(ctx, query, groupID, token)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.ShareLink, error) {
	link := &models.ShareLink{}
	var emails []byte

	err := row.Scan(&link.ID, &link.GroupID, &link.AccessToken, &link.ExpiresAt,
		&link.OneTimeView, &link.ViewsCount, &link.AccessType, &emails, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrLinkNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if emails != nil {
		if err := json.Unmarshal(emails, &link.AllowedEmails); err != nil {
			return nil, fmt.Errorf("allowed_emails unmarshal error: %w", err)
		}
	}

	return link, nil
}
