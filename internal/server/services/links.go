// Package services contains the server-side business logic between the
// HTTP/websocket surface and the repositories.
package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamcodes/internal/common"
	"github.com/dmitrijs2005/teamcodes/internal/dbx"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/notify"
	"github.com/dmitrijs2005/teamcodes/internal/server/repositories/repomanager"
)

// accessTokenBytes sizes the random share-link token (hex doubles it).
const accessTokenBytes = 24

type LinkService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	bus         notify.Bus
}

func NewLinkService(db *sql.DB, repomanager repomanager.RepositoryManager, bus notify.Bus) *LinkService {
	return &LinkService{db: db, repomanager: repomanager, bus: bus}
}

// Validate classifies a share link for a viewer. Pure: no clock, no I/O.
//
// Precedence: a nil link is ErrLinkNotFound; an expired link is
// ErrLinkExpired regardless of access type; a restricted link without a
// matching viewer email (case-insensitive) is ErrAccessDenied. nil = valid.
func Validate(link *models.ShareLink, viewerEmail string, now time.Time) error {
	if link == nil {
		return common.ErrLinkNotFound
	}
	if link.ExpiresAt != nil && !link.ExpiresAt.After(now) {
		return common.ErrLinkExpired
	}
	if link.AccessType == models.AccessRestricted {
		if viewerEmail == "" {
			return common.ErrAccessDenied
		}
		e := strings.ToLower(viewerEmail)
		for _, allowed := range link.AllowedEmails {
			if strings.ToLower(allowed) == e {
				return nil
			}
		}
		return common.ErrAccessDenied
	}
	return nil
}

func (s *LinkService) Get(ctx context.Context, groupID, token string) (*models.ShareLink, error) {
	return s.repomanager.ShareLinks(s.db).Get(ctx, groupID, token)
}

// RegisterView validates the link and records the view in one transaction.
// The row lock taken by GetForUpdate serializes concurrent viewers, so for
// a one-time link exactly one of two racing calls succeeds; the loser gets
// ErrLinkConsumed.
func (s *LinkService) RegisterView(ctx context.Context, groupID, token, viewerEmail string, now time.Time) (*models.ShareLink, error) {
	var link *models.ShareLink

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.ShareLinks(tx)

		l, err := repo.GetForUpdate(ctx, groupID, token)
		if err != nil {
			return err
		}
		if err := Validate(l, viewerEmail, now); err != nil {
			return err
		}
		if l.OneTimeView && l.ViewsCount >= 1 {
			return common.ErrLinkConsumed
		}

		views, err := repo.IncrementViews(ctx, l.ID)
		if err != nil {
			return err
		}
		l.ViewsCount = views
		link = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}

func (s *LinkService) Create(ctx context.Context, groupID string, expiresAt *time.Time,
	oneTime bool, accessType models.AccessType, allowedEmails []string) (*models.ShareLink, error) {

	token, err := common.MakeRandHexString(accessTokenBytes)
	if err != nil {
		return nil, err
	}

	link := &models.ShareLink{
		ID:            uuid.NewString(),
		GroupID:       groupID,
		AccessToken:   token,
		ExpiresAt:     expiresAt,
		OneTimeView:   oneTime,
		AccessType:    accessType,
		AllowedEmails: allowedEmails,
	}

	return s.repomanager.ShareLinks(s.db).Create(ctx, link)
}

// Revoke deletes the link and announces the deletion. A failed announce is
// tolerated: viewers re-check link existence on a timer anyway.
func (s *LinkService) Revoke(ctx context.Context, groupID, token string) error {
	ok, err := s.repomanager.ShareLinks(s.db).Delete(ctx, groupID, token)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrLinkNotFound
	}

	_ = s.bus.Publish(ctx, notify.Event{
		Kind:      notify.LinkDeleted,
		GroupID:   groupID,
		LinkToken: token,
	})
	return nil
}
