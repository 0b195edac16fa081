package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamcodes/internal/common"
	"github.com/dmitrijs2005/teamcodes/internal/logging"
	"github.com/dmitrijs2005/teamcodes/internal/server/hub"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/notify"
	"github.com/dmitrijs2005/teamcodes/internal/server/publisher"
	"github.com/dmitrijs2005/teamcodes/internal/server/sharedview"
)

// ---- fakes ----

type fakeGroups struct {
	group *models.Group
	err   error
}

func (f *fakeGroups) Create(ctx context.Context, name, secret string) (*models.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Group{ID: "g1", Name: name, Secret: secret}, nil
}

func (f *fakeGroups) Get(ctx context.Context, id string) (*models.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.group == nil || f.group.ID != id {
		return nil, common.ErrorNotFound
	}
	return f.group, nil
}

func (f *fakeGroups) List(ctx context.Context) ([]*models.Group, error) {
	if f.group == nil {
		return nil, nil
	}
	return []*models.Group{f.group}, nil
}

type fakeLinks struct {
	link        *models.ShareLink
	registerErr error
	revokeErr   error
}

func (f *fakeLinks) Create(ctx context.Context, groupID string, expiresAt *time.Time,
	oneTime bool, accessType models.AccessType, allowedEmails []string) (*models.ShareLink, error) {
	return &models.ShareLink{
		ID: "l1", GroupID: groupID, AccessToken: "tok-abc",
		ExpiresAt: expiresAt, OneTimeView: oneTime,
		AccessType: accessType, AllowedEmails: allowedEmails,
	}, nil
}

func (f *fakeLinks) Revoke(ctx context.Context, groupID, token string) error {
	return f.revokeErr
}

func (f *fakeLinks) RegisterView(ctx context.Context, groupID, token, viewerEmail string, now time.Time) (*models.ShareLink, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.link, nil
}

// sharedview needs the read-only half as well
func (f *fakeLinks) Get(ctx context.Context, groupID, token string) (*models.ShareLink, error) {
	if f.link == nil {
		return nil, common.ErrLinkNotFound
	}
	return f.link, nil
}

type fakeCodes struct {
	code *models.Code
	err  error
}

func (f *fakeCodes) Latest(ctx context.Context, groupID string) (*models.Code, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.code, nil
}

type fakeSessions struct{}

func (f *fakeSessions) Login(ctx context.Context, email, password string) (string, error) {
	if email == "alice@x.io" && password == "pw" {
		return "good", nil
	}
	return "", common.ErrorUnauthorized
}

func (f *fakeSessions) EmailFromToken(token string) (string, error) {
	switch token {
	case "":
		return "", nil
	case "good":
		return "alice@x.io", nil
	default:
		return "", common.ErrInvalidToken
	}
}

type fakePublisher struct {
	added map[string]string
	snap  publisher.Snapshot
	has   bool
}

func (f *fakePublisher) Add(ctx context.Context, groupID, secret string) {
	if f.added == nil {
		f.added = map[string]string{}
	}
	f.added[groupID] = secret
}

func (f *fakePublisher) Snapshot(groupID string) (publisher.Snapshot, bool) {
	return f.snap, f.has
}

// ---- fixture ----

type fixture struct {
	groups *fakeGroups
	links  *fakeLinks
	codes  *fakeCodes
	pub    *fakePublisher
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	groups := &fakeGroups{group: &models.Group{ID: "g1", Name: "infra"}}
	links := &fakeLinks{link: &models.ShareLink{
		ID: "l1", GroupID: "g1", AccessToken: "tok-abc", AccessType: models.AccessAnyone,
	}}
	codes := &fakeCodes{code: &models.Code{ID: "c1", GroupID: "g1", Code: "123456"}}
	pub := &fakePublisher{}

	bus := notify.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	wsHub := hub.NewHub(logging.Nop{})
	go wsHub.Run(ctx)

	view := sharedview.NewController(links, codes, groups, bus, logging.Nop{}, time.Hour)

	h := NewHandler(groups, links, codes, &fakeSessions{}, pub, view, wsHub, logging.Nop{})
	srv := httptest.NewServer(NewRouter(h, logging.Nop{}))
	t.Cleanup(srv.Close)

	return &fixture{groups: groups, links: links, codes: codes, pub: pub, srv: srv}
}

func doJSON(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// ---- tests ----

func TestLogin(t *testing.T) {
	f := newFixture(t)

	resp := doJSON(t, http.MethodPost, f.srv.URL+"/api/session", "",
		`{"email":"alice@x.io","password":"pw"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == common.SessionCookieName {
			cookie = c.Value
		}
	}
	assert.Equal(t, "good", cookie)
	assert.Equal(t, "good", decode[LoginResponse](t, resp).Token)

	resp = doJSON(t, http.MethodPost, f.srv.URL+"/api/session", "",
		`{"email":"alice@x.io","password":"wrong"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)

	// no session
	resp := doJSON(t, http.MethodPost, f.srv.URL+"/api/groups", "",
		`{"name":"infra","secret":"JBSWY3DPEHPK3PXP"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, f.srv.URL+"/api/groups", "good",
		`{"name":"infra","secret":"JBSWY3DPEHPK3PXP"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	group := decode[models.Group](t, resp)
	assert.Equal(t, "g1", group.ID)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", f.pub.added["g1"], "publisher starts on create")
}

func TestGroupCode(t *testing.T) {
	f := newFixture(t)
	f.pub.snap = publisher.Snapshot{Code: "654321", Remaining: 12, Stale: true}
	f.pub.has = true

	resp := doJSON(t, http.MethodGet, f.srv.URL+"/api/groups/g1/code", "good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[GroupCodeResponse](t, resp)
	assert.Equal(t, "654321", got.Code)
	assert.Equal(t, 12, got.Remaining)
	assert.True(t, got.Stale)

	f.pub.has = false
	resp = doJSON(t, http.MethodGet, f.srv.URL+"/api/groups/g1/code", "good", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateLink(t *testing.T) {
	f := newFixture(t)

	resp := doJSON(t, http.MethodPost, f.srv.URL+"/api/groups/g1/links", "good",
		`{"expires_in_minutes":60,"one_time_view":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	link := decode[CreateLinkResponse](t, resp)
	assert.Equal(t, "tok-abc", link.Token)
	assert.Equal(t, "/api/share/g1/tok-abc", link.URL)
	assert.True(t, link.OneTimeView)
	require.NotNil(t, link.ExpiresAt)

	// restricted without emails is rejected
	resp = doJSON(t, http.MethodPost, f.srv.URL+"/api/groups/g1/links", "good",
		`{"access_type":"restricted"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unknown group
	resp = doJSON(t, http.MethodPost, f.srv.URL+"/api/groups/missing/links", "good", `{}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRevokeLink(t *testing.T) {
	f := newFixture(t)

	resp := doJSON(t, http.MethodDelete, f.srv.URL+"/api/groups/g1/links/tok-abc", "good", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	f.links.revokeErr = common.ErrLinkNotFound
	resp = doJSON(t, http.MethodDelete, f.srv.URL+"/api/groups/g1/links/tok-abc", "good", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShareView(t *testing.T) {
	f := newFixture(t)
	exp := time.Now().Add(90 * time.Second)
	f.links.link.ExpiresAt = &exp

	resp := doJSON(t, http.MethodGet, f.srv.URL+"/api/share/g1/tok-abc", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	st := decode[sharedview.State](t, resp)
	assert.Equal(t, sharedview.KindReady, st.Kind)
	require.NotNil(t, st.Group)
	assert.Equal(t, "infra", st.Group.Name)
	require.NotNil(t, st.Code)
	assert.Equal(t, "123456", st.Code.Code)
	assert.NotEmpty(t, st.Countdown)
}

func TestShareView_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		token      string
		wantStatus int
		wantInBody string
	}{
		{"expired", common.ErrLinkExpired, "", http.StatusGone, "expired"},
		{"consumed", common.ErrLinkConsumed, "", http.StatusConflict, "already been viewed"},
		{"not found", common.ErrLinkNotFound, "", http.StatusNotFound, "not found"},
		{"denied anonymous", common.ErrAccessDenied, "", http.StatusForbidden, "sign in"},
		{"denied names email", common.ErrAccessDenied, "good", http.StatusForbidden, "alice@x.io"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.links.registerErr = tc.err

			resp := doJSON(t, http.MethodGet, f.srv.URL+"/api/share/g1/tok-abc", tc.token, "")
			require.Equal(t, tc.wantStatus, resp.StatusCode)
			assert.Contains(t, decode[ErrorResponse](t, resp).Error, tc.wantInBody)
		})
	}
}

func TestShareView_InvalidSessionToken(t *testing.T) {
	f := newFixture(t)

	resp := doJSON(t, http.MethodGet, f.srv.URL+"/api/share/g1/tok-abc", "garbage", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestShareSocket_StreamsFrames(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/share/g1/tok-abc/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() sharedview.State {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var st sharedview.State
		require.NoError(t, json.Unmarshal(data, &st))
		return st
	}

	st := readFrame()
	assert.Equal(t, sharedview.KindLoading, st.Kind)

	st = readFrame()
	require.Equal(t, sharedview.KindReady, st.Kind)
	require.NotNil(t, st.Code)
	assert.Equal(t, "123456", st.Code.Code)
}

func TestShareSocket_TerminalErrorClosesSocket(t *testing.T) {
	f := newFixture(t)
	f.links.registerErr = common.ErrLinkExpired

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/share/g1/tok-abc/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var sawError bool
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
				"expected a normal close, got %v", err)
			break
		}
		var st sharedview.State
		require.NoError(t, json.Unmarshal(data, &st))
		if st.Kind == sharedview.KindError {
			sawError = true
			assert.Contains(t, st.Reason, "expired")
		}
	}
	assert.True(t, sawError, "terminal error frame must be delivered before close")
}
