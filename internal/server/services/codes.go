package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamcodes/internal/dbx"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/notify"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamcodes/internal/totp"
)

type CodeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	bus         notify.Bus
}

func NewCodeService(db *sql.DB, repomanager repomanager.RepositoryManager, bus notify.Bus) *CodeService {
	return &CodeService{db: db, repomanager: repomanager, bus: bus}
}

// PublishCode appends a code row and mirrors it onto the group inside one
// transaction, then announces the insert on the bus. Returns ok=false (a
// soft failure, no error) when the group no longer exists — the publisher
// keeps displaying the generated code and retries next cycle.
func (s *CodeService) PublishCode(ctx context.Context, groupID, code string, now time.Time) (bool, error) {
	c := &models.Code{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Code:      code,
		CreatedAt: now.UTC(),
		ExpiresAt: totp.NextExpiry(now),
	}

	var ok bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// group first: a vanished group must surface as ok=false, not as
		// an FK violation from the insert
		var err error
		ok, err = s.repomanager.Groups(tx).UpdateCurrentCode(ctx, groupID, code, c.CreatedAt)
		if err != nil || !ok {
			return err
		}
		return s.repomanager.Codes(tx).Insert(ctx, c)
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	_ = s.bus.Publish(ctx, notify.Event{
		Kind:    notify.CodeInserted,
		GroupID: groupID,
		Code:    c,
	})
	return true, nil
}

// Latest returns the single most recent code row for a group.
func (s *CodeService) Latest(ctx context.Context, groupID string) (*models.Code, error) {
	return s.repomanager.Codes(s.db).Latest(ctx, groupID)
}
