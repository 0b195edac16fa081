// Package sharedview drives the no-login shared code view: it validates
// the share link, registers the view, then keeps the displayed code and
// countdown current through realtime events with a polling fallback.
package sharedview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamcodes/internal/common"
	"github.com/dmitrijs2005/teamcodes/internal/logging"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/notify"
	"github.com/dmitrijs2005/teamcodes/internal/server/services"
	"github.com/dmitrijs2005/teamcodes/internal/totp"
)

type Kind string

const (
	KindLoading Kind = "loading"
	KindError   Kind = "error"
	KindReady   Kind = "ready"
)

// State is one frame of the shared view. Error states are terminal: once
// emitted, no further frames follow and no group data is exposed.
type State struct {
	Kind Kind `json:"kind"`

	// error frames
	Reason  string `json:"reason,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`

	// ready frames
	Group         *models.Group `json:"group,omitempty"`
	Code          *models.Code  `json:"code,omitempty"`
	CodeRemaining int           `json:"code_remaining,omitempty"`
	Countdown     string        `json:"countdown,omitempty"`
}

// LinkAccess is the share-link surface the controller consumes.
type LinkAccess interface {
	Get(ctx context.Context, groupID, token string) (*models.ShareLink, error)
	RegisterView(ctx context.Context, groupID, token, viewerEmail string, now time.Time) (*models.ShareLink, error)
}

// CodeAccess fetches the latest persisted code for a group.
type CodeAccess interface {
	Latest(ctx context.Context, groupID string) (*models.Code, error)
}

// GroupAccess fetches group metadata.
type GroupAccess interface {
	Get(ctx context.Context, id string) (*models.Group, error)
}

type Controller struct {
	links  LinkAccess
	codes  CodeAccess
	groups GroupAccess
	bus    notify.Bus
	logger logging.Logger

	recheckEvery time.Duration
	now          func() time.Time
}

func NewController(links LinkAccess, codes CodeAccess, groups GroupAccess, bus notify.Bus,
	logger logging.Logger, recheckEvery time.Duration) *Controller {
	return &Controller{
		links:        links,
		codes:        codes,
		groups:       groups,
		bus:          bus,
		logger:       logger.With("module", "sharedview"),
		recheckEvery: recheckEvery,
		now:          time.Now,
	}
}

// Session is one viewer's live session. All timers and the bus
// subscription belong to it and are torn down together by Close.
type Session struct {
	updates chan State
	cancel  context.CancelFunc
	done    chan struct{}
}

// Updates delivers state frames in order. The channel is closed after a
// terminal error frame or after Close.
func (s *Session) Updates() <-chan State { return s.updates }

// Close deactivates the session: pending timers are cleared and no frame
// is delivered afterwards. Safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// Open starts a viewer session: validate + register the view atomically,
// fetch the group and its latest code, then watch for changes. The session
// emits Loading first, then either a terminal Error frame or a stream of
// Ready frames.
func (c *Controller) Open(ctx context.Context, groupID, token, viewerEmail string) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		updates: make(chan State, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go c.run(ctx, s, groupID, token, viewerEmail)
	return s
}

func (c *Controller) run(ctx context.Context, s *Session, groupID, token, viewerEmail string) {
	defer close(s.done)
	defer close(s.updates)

	emit := func(st State) bool {
		select {
		case s.updates <- st:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(State{Kind: KindLoading}) {
		return
	}

	link, err := c.links.RegisterView(ctx, groupID, token, viewerEmail, c.now())
	if err != nil {
		emit(errorState(err, viewerEmail))
		return
	}

	group, err := c.groups.Get(ctx, groupID)
	if err != nil {
		emit(errorState(err, viewerEmail))
		return
	}

	code, err := c.codes.Latest(ctx, groupID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		emit(errorState(err, viewerEmail))
		return
	}

	events, unsubscribe := c.bus.Subscribe(ctx, groupID)
	defer unsubscribe()

	recheck := time.NewTicker(c.recheckEvery)
	defer recheck.Stop()
	countdown := time.NewTicker(time.Second)
	defer countdown.Stop()

	ready := func() State {
		now := c.now()
		st := State{
			Kind:          KindReady,
			Group:         group,
			Code:          code,
			CodeRemaining: totp.TimeRemaining(now),
		}
		if link.ExpiresAt != nil {
			st.Countdown = FormatTimeRemaining(link.ExpiresAt.Sub(now))
		}
		return st
	}

	if !emit(ready()) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// bus gone; the polling path keeps the session alive
				events = nil
				continue
			}
			switch ev.Kind {
			case notify.LinkDeleted:
				if ev.LinkToken != token {
					continue
				}
				// verify against the database, not the event alone
				if _, err := c.links.Get(ctx, groupID, token); errors.Is(err, common.ErrLinkNotFound) {
					emit(State{Kind: KindError, Reason: reasonFor(common.ErrLinkNotFound, viewerEmail), Deleted: true})
					return
				}
			case notify.CodeInserted:
				// fetch the single most-recent row rather than trusting
				// the event payload
				if latest, err := c.codes.Latest(ctx, groupID); err == nil {
					code = latest
					if !emit(ready()) {
						return
					}
				}
			}

		case <-recheck.C:
			// fallback for missed realtime events: expiry, revocation and
			// new codes are all picked up here within one interval
			current, err := c.links.Get(ctx, groupID, token)
			if errors.Is(err, common.ErrLinkNotFound) {
				emit(State{Kind: KindError, Reason: reasonFor(common.ErrLinkNotFound, viewerEmail), Deleted: true})
				return
			}
			if err == nil {
				if verr := services.Validate(current, viewerEmail, c.now()); verr != nil {
					emit(errorState(verr, viewerEmail))
					return
				}
				link = current
			}
			if latest, err := c.codes.Latest(ctx, groupID); err == nil && (code == nil || latest.ID != code.ID) {
				code = latest
				if !emit(ready()) {
					return
				}
			}

		case <-countdown.C:
			if link.ExpiresAt != nil && !link.ExpiresAt.After(c.now()) {
				emit(errorState(common.ErrLinkExpired, viewerEmail))
				return
			}
			if !emit(ready()) {
				return
			}
		}
	}
}

func errorState(err error, viewerEmail string) State {
	return State{Kind: KindError, Reason: reasonFor(err, viewerEmail)}
}

func reasonFor(err error, viewerEmail string) string {
	switch {
	case errors.Is(err, common.ErrLinkNotFound):
		return "share link not found"
	case errors.Is(err, common.ErrLinkExpired):
		return "this share link has expired"
	case errors.Is(err, common.ErrLinkConsumed):
		return "this one-time link has already been viewed"
	case errors.Is(err, common.ErrAccessDenied):
		if viewerEmail == "" {
			return "access denied: sign in with an allowed email"
		}
		return fmt.Sprintf("access denied for %s", viewerEmail)
	default:
		return "unable to load the shared code"
	}
}
