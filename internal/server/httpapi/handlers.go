// Package httpapi exposes the REST and websocket surface: session login,
// group and share-link management, and the public shared-code view.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/teamcodes/internal/common"
	"github.com/dmitrijs2005/teamcodes/internal/logging"
	"github.com/dmitrijs2005/teamcodes/internal/server/hub"
	"github.com/dmitrijs2005/teamcodes/internal/server/models"
	"github.com/dmitrijs2005/teamcodes/internal/server/publisher"
	"github.com/dmitrijs2005/teamcodes/internal/server/sharedview"
	"github.com/dmitrijs2005/teamcodes/internal/totp"
)

type GroupManager interface {
	Create(ctx context.Context, name, secret string) (*models.Group, error)
	Get(ctx context.Context, id string) (*models.Group, error)
	List(ctx context.Context) ([]*models.Group, error)
}

type LinkManager interface {
	Create(ctx context.Context, groupID string, expiresAt *time.Time,
		oneTime bool, accessType models.AccessType, allowedEmails []string) (*models.ShareLink, error)
	Revoke(ctx context.Context, groupID, token string) error
	RegisterView(ctx context.Context, groupID, token, viewerEmail string, now time.Time) (*models.ShareLink, error)
}

type CodeReader interface {
	Latest(ctx context.Context, groupID string) (*models.Code, error)
}

type SessionManager interface {
	Login(ctx context.Context, email, password string) (string, error)
	EmailFromToken(token string) (string, error)
}

// CodePublisher is the running publisher pool: groups are added on create
// and their freshest in-memory snapshot is served to the dashboard.
type CodePublisher interface {
	Add(ctx context.Context, groupID, secret string)
	Snapshot(groupID string) (publisher.Snapshot, bool)
}

// ViewOpener opens live shared-view sessions for the websocket endpoint.
type ViewOpener interface {
	Open(ctx context.Context, groupID, token, viewerEmail string) *sharedview.Session
}

type Handler struct {
	groups   GroupManager
	links    LinkManager
	codes    CodeReader
	sessions SessionManager
	pub      CodePublisher
	view     ViewOpener
	hub      *hub.Hub
	logger   logging.Logger

	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewHandler(groups GroupManager, links LinkManager, codes CodeReader,
	sessions SessionManager, pub CodePublisher, view ViewOpener, h *hub.Hub,
	logger logging.Logger) *Handler {
	return &Handler{
		groups:   groups,
		links:    links,
		codes:    codes,
		sessions: sessions,
		pub:      pub,
		view:     view,
		hub:      h,
		logger:   logger.With("module", "httpapi"),
		upgrader: websocket.Upgrader{
			// share links are opened from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type CreateGroupRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type CreateLinkRequest struct {
	ExpiresInMinutes int      `json:"expires_in_minutes,omitempty"`
	OneTimeView      bool     `json:"one_time_view,omitempty"`
	AccessType       string   `json:"access_type,omitempty"`
	AllowedEmails    []string `json:"allowed_emails,omitempty"`
}

type CreateLinkResponse struct {
	Token       string     `json:"token"`
	URL         string     `json:"url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	OneTimeView bool       `json:"one_time_view"`
	AccessType  string     `json:"access_type"`
}

type GroupCodeResponse struct {
	Code      string `json:"code"`
	Remaining int    `json:"remaining"`
	Stale     bool   `json:"stale"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, r, err, req.Email)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.json(w, http.StatusOK, LoginResponse{Token: token})
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Secret == "" {
		h.error(w, http.StatusBadRequest, "name and secret are required")
		return
	}

	group, err := h.groups.Create(r.Context(), req.Name, req.Secret)
	if err != nil {
		h.handleServiceError(w, r, err, "")
		return
	}

	// start generating codes for the new group right away
	h.pub.Add(context.WithoutCancel(r.Context()), group.ID, req.Secret)

	h.json(w, http.StatusCreated, group)
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "")
		return
	}
	h.json(w, http.StatusOK, groups)
}

// GroupCode serves the publisher's in-memory snapshot for the dashboard.
func (h *Handler) GroupCode(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	s, ok := h.pub.Snapshot(groupID)
	if !ok {
		h.error(w, http.StatusNotFound, "group not found")
		return
	}
	h.json(w, http.StatusOK, GroupCodeResponse{
		Code:      s.Code,
		Remaining: s.Remaining,
		Stale:     s.Stale,
	})
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accessType := models.AccessAnyone
	switch req.AccessType {
	case "", string(models.AccessAnyone):
	case string(models.AccessRestricted):
		accessType = models.AccessRestricted
		if len(req.AllowedEmails) == 0 {
			h.error(w, http.StatusBadRequest, "restricted links need allowed_emails")
			return
		}
	default:
		h.error(w, http.StatusBadRequest, "unknown access_type")
		return
	}

	if _, err := h.groups.Get(r.Context(), groupID); err != nil {
		h.handleServiceError(w, r, err, "")
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInMinutes > 0 {
		t := h.now().Add(time.Duration(req.ExpiresInMinutes) * time.Minute)
		expiresAt = &t
	}

	link, err := h.links.Create(r.Context(), groupID, expiresAt, req.OneTimeView, accessType, req.AllowedEmails)
	if err != nil {
		h.handleServiceError(w, r, err, "")
		return
	}

	h.json(w, http.StatusCreated, CreateLinkResponse{
		Token:       link.AccessToken,
		URL:         fmt.Sprintf("/api/share/%s/%s", groupID, link.AccessToken),
		ExpiresAt:   link.ExpiresAt,
		OneTimeView: link.OneTimeView,
		AccessType:  string(link.AccessType),
	})
}

func (h *Handler) RevokeLink(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	token := chi.URLParam(r, "token")

	if err := h.links.Revoke(r.Context(), groupID, token); err != nil {
		h.handleServiceError(w, r, err, "")
		return
	}

	// drop live sockets now instead of waiting for their next recheck
	h.hub.DisconnectToken(token)

	w.WriteHeader(http.StatusNoContent)
}

// ShareView is the one-shot REST view: register the view, then return the
// same frame shape the websocket streams. Also the polling fallback.
func (h *Handler) ShareView(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	token := chi.URLParam(r, "token")

	email, err := h.sessions.EmailFromToken(h.sessionToken(r))
	if err != nil {
		h.error(w, http.StatusUnauthorized, "invalid session token")
		return
	}

	now := h.now()
	link, err := h.links.RegisterView(r.Context(), groupID, token, email, now)
	if err != nil {
		h.handleServiceError(w, r, err, email)
		return
	}

	group, err := h.groups.Get(r.Context(), groupID)
	if err != nil {
		h.handleServiceError(w, r, err, email)
		return
	}

	st := sharedview.State{
		Kind:          sharedview.KindReady,
		Group:         group,
		CodeRemaining: totp.TimeRemaining(now),
	}
	if code, err := h.codes.Latest(r.Context(), groupID); err == nil {
		st.Code = code
	} else if !errors.Is(err, common.ErrorNotFound) {
		h.handleServiceError(w, r, err, email)
		return
	}
	if link.ExpiresAt != nil {
		st.Countdown = sharedview.FormatTimeRemaining(link.ExpiresAt.Sub(now))
	}

	h.json(w, http.StatusOK, st)
}

// ShareSocket upgrades to a websocket and streams live shared-view frames.
// The session closes when either side disconnects.
func (h *Handler) ShareSocket(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	token := chi.URLParam(r, "token")

	email, err := h.sessions.EmailFromToken(h.sessionToken(r))
	if err != nil {
		h.error(w, http.StatusUnauthorized, "invalid session token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := h.view.Open(ctx, groupID, token, email)
	defer sess.Close()

	client := hub.NewClient(h.hub, conn, token)
	client.Register()
	go client.WritePump()

	go func() {
		// Updates closes after a terminal frame or Close; either way the
		// socket is done
		for st := range sess.Updates() {
			client.Enqueue(st)
		}
		client.Close()
	}()

	client.ReadPump()
}

func (h *Handler) sessionToken(r *http.Request) string {
	if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimPrefix(ah, "Bearer ")
	}
	if c, err := r.Cookie(common.SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, viewerEmail string) {
	switch {
	case errors.Is(err, common.ErrLinkNotFound):
		h.error(w, http.StatusNotFound, "share link not found")
	case errors.Is(err, common.ErrLinkExpired):
		h.error(w, http.StatusGone, "this share link has expired")
	case errors.Is(err, common.ErrLinkConsumed):
		h.error(w, http.StatusConflict, "this one-time link has already been viewed")
	case errors.Is(err, common.ErrAccessDenied):
		if viewerEmail == "" {
			h.error(w, http.StatusForbidden, "access denied: sign in with an allowed email")
		} else {
			h.error(w, http.StatusForbidden, fmt.Sprintf("access denied for %s", viewerEmail))
		}
	case errors.Is(err, common.ErrInvalidSecret):
		h.error(w, http.StatusBadRequest, "secret is not a valid base32 value")
	case errors.Is(err, common.ErrorUnauthorized):
		h.error(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, common.ErrorNotFound):
		h.error(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error(r.Context(), "request failed", "error", err)
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}
