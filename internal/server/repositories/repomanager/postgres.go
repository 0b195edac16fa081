// Package repomanager wires concrete repositories over a shared database
// handle and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/teamcodes/internal/dbx"
	"github.com/dmitrijs2005/teamcodes/internal/server/migrations"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/codes"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/groups"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/members"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/sharelinks"
)

type PostgresRepositoryManager struct {
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Groups(db dbx.DBTX) groups.Repository {
	return groups.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Codes(db dbx.DBTX) codes.Repository {
	return codes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ShareLinks(db dbx.DBTX) sharelinks.Repository {
	return sharelinks.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Members(db dbx.DBTX) members.Repository {
	return members.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}
