package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/teamcodes/internal/dbx"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/codes"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/groups"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/members"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/sharelinks"
)

// RepositoryManager builds repositories bound to a plain connection or to a
// transaction handle, so services can run multi-repo operations atomically
// via dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Groups(db dbx.DBTX) groups.Repository
	Codes(db dbx.DBTX) codes.Repository
	ShareLinks(db dbx.DBTX) sharelinks.Repository
	Members(db dbx.DBTX) members.Repository
}
