package sharedview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamcodes/internal/common"
	"github.com/dmitrijs2005/teamcodes/internal/logging"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/notify"
)

// ---- fakes ----

type fakeLinks struct {
	mu          sync.Mutex
	link        *models.ShareLink
	registerErr error
	getErr      error
}

func (f *fakeLinks) Get(ctx context.Context, groupID, token string) (*models.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.link, nil
}

func (f *fakeLinks) RegisterView(ctx context.Context, groupID, token, viewerEmail string, now time.Time) (*models.ShareLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.link, nil
}

func (f *fakeLinks) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

type fakeCodes struct {
	mu   sync.Mutex
	code *models.Code
	err  error
}

func (f *fakeCodes) Latest(ctx context.Context, groupID string) (*models.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.code, nil
}

func (f *fakeCodes) setCode(c *models.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code = c
	f.err = nil
}

type fakeGroups struct {
	group *models.Group
	err   error
}

func (f *fakeGroups) Get(ctx context.Context, id string) (*models.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.group, nil
}

// ---- helpers ----

func testFixture() (*fakeLinks, *fakeCodes, *fakeGroups, *notify.MemoryBus) {
	links := &fakeLinks{link: &models.ShareLink{
		ID: "l1", GroupID: "g1", AccessToken: "tok", AccessType: models.AccessAnyone,
	}}
	codes := &fakeCodes{code: &models.Code{ID: "c1", GroupID: "g1", Code: "111111"}}
	groups := &fakeGroups{group: &models.Group{ID: "g1", Name: "infra"}}
	return links, codes, groups, notify.NewMemoryBus()
}

func newTestController(links LinkAccess, codes CodeAccess, groups GroupAccess, bus notify.Bus, recheck time.Duration) *Controller {
	return NewController(links, codes, groups, bus, logging.Nop{}, recheck)
}

func nextState(t *testing.T, s *Session) State {
	t.Helper()
	select {
	case st, ok := <-s.Updates():
		require.True(t, ok, "updates channel closed early")
		return st
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state")
		return State{}
	}
}

// waitFor reads frames until pred matches, failing after the deadline.
func waitFor(t *testing.T, s *Session, pred func(State) bool) State {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case st, ok := <-s.Updates():
			require.True(t, ok, "updates channel closed before expected state")
			if pred(st) {
				return st
			}
		case <-deadline:
			t.Fatalf("timed out waiting for expected state")
		}
	}
}

func requireClosed(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("updates channel not closed")
		}
	}
}

// ---- tests ----

func TestOpen_LoadingThenReady(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	st := nextState(t, s)
	assert.Equal(t, KindLoading, st.Kind)

	st = nextState(t, s)
	require.Equal(t, KindReady, st.Kind)
	assert.Equal(t, "infra", st.Group.Name)
	assert.Equal(t, "111111", st.Code.Code)
	assert.GreaterOrEqual(t, st.CodeRemaining, 0)
	assert.LessOrEqual(t, st.CodeRemaining, 30)
	assert.Empty(t, st.Countdown, "no expiry, no countdown")
}

func TestOpen_NoCodeYetIsStillReady(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	codes.err = common.ErrorNotFound
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	st := waitFor(t, s, func(st State) bool { return st.Kind == KindReady })
	assert.Nil(t, st.Code)
}

func TestOpen_RegisterFailureIsTerminal(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	links.registerErr = common.ErrLinkExpired
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	st := waitFor(t, s, func(st State) bool { return st.Kind == KindError })
	assert.Contains(t, st.Reason, "expired")
	assert.False(t, st.Deleted)
	assert.Nil(t, st.Group, "no partial group data in error states")
	requireClosed(t, s)
}

func TestOpen_AccessDeniedNamesEmail(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	links.registerErr = common.ErrAccessDenied
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "bob@x.io")
	defer s.Close()

	st := waitFor(t, s, func(st State) bool { return st.Kind == KindError })
	assert.Contains(t, st.Reason, "bob@x.io")
}

func TestSession_CodeInsertedEventReplacesCode(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	waitFor(t, s, func(st State) bool { return st.Kind == KindReady })

	codes.setCode(&models.Code{ID: "c2", GroupID: "g1", Code: "222222"})
	require.NoError(t, bus.Publish(context.Background(), notify.Event{
		Kind: notify.CodeInserted, GroupID: "g1",
	}))

	st := waitFor(t, s, func(st State) bool {
		return st.Kind == KindReady && st.Code != nil && st.Code.Code == "222222"
	})
	assert.Equal(t, "c2", st.Code.ID)
}

func TestSession_LinkDeletedEventVerifiesThenTerminates(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	waitFor(t, s, func(st State) bool { return st.Kind == KindReady })

	links.setGetErr(common.ErrLinkNotFound)
	require.NoError(t, bus.Publish(context.Background(), notify.Event{
		Kind: notify.LinkDeleted, GroupID: "g1", LinkToken: "tok",
	}))

	st := waitFor(t, s, func(st State) bool { return st.Kind == KindError })
	assert.True(t, st.Deleted)
	requireClosed(t, s)
}

func TestSession_SpuriousDeleteEventIsIgnored(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	waitFor(t, s, func(st State) bool { return st.Kind == KindReady })

	// link still exists in the database: the event alone must not kill
	// the session
	require.NoError(t, bus.Publish(context.Background(), notify.Event{
		Kind: notify.LinkDeleted, GroupID: "g1", LinkToken: "tok",
	}))

	select {
	case st := <-s.Updates():
		assert.NotEqual(t, KindError, st.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSession_PollingFallbackCatchesRevocation(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	// realtime events never arrive in this test; only the 10ms poll runs
	c := newTestController(links, codes, groups, bus, 10*time.Millisecond)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	waitFor(t, s, func(st State) bool { return st.Kind == KindReady })

	links.setGetErr(common.ErrLinkNotFound)

	st := waitFor(t, s, func(st State) bool { return st.Kind == KindError })
	assert.True(t, st.Deleted)
}

func TestSession_PollingFallbackPicksUpNewCode(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	c := newTestController(links, codes, groups, bus, 10*time.Millisecond)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	waitFor(t, s, func(st State) bool { return st.Kind == KindReady })

	codes.setCode(&models.Code{ID: "c3", GroupID: "g1", Code: "333333"})

	waitFor(t, s, func(st State) bool {
		return st.Kind == KindReady && st.Code != nil && st.Code.ID == "c3"
	})
}

func TestSession_CountdownExpiryTerminates(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	exp := time.Now().Add(100 * time.Millisecond)
	links.link.ExpiresAt = &exp
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	defer s.Close()

	waitFor(t, s, func(st State) bool { return st.Kind == KindReady })

	// the 1s countdown tick notices the passed expiry
	st := waitFor(t, s, func(st State) bool { return st.Kind == KindError })
	assert.Contains(t, st.Reason, "expired")
	requireClosed(t, s)
}

func TestSession_CloseStopsFrames(t *testing.T) {
	links, codes, groups, bus := testFixture()
	defer bus.Close()
	c := newTestController(links, codes, groups, bus, time.Hour)

	s := c.Open(context.Background(), "g1", "tok", "")
	waitFor(t, s, func(st State) bool { return st.Kind == KindReady })

	s.Close()
	requireClosed(t, s)
}
