package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/teamcodes/internal/logging"
)

// NewRouter wires the REST and websocket routes. Group and link management
// require a session; the share view endpoints are public (restricted links
// enforce their own email check).
func NewRouter(h *Handler, logger logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.Login)

		r.Route("/groups", func(r chi.Router) {
			r.Use(h.requireSession)
			r.Post("/", h.CreateGroup)
			r.Get("/", h.ListGroups)
			r.Get("/{groupID}/code", h.GroupCode)
			r.Post("/{groupID}/links", h.CreateLink)
			r.Delete("/{groupID}/links/{token}", h.RevokeLink)
		})

		r.Route("/share/{groupID}/{token}", func(r chi.Router) {
			r.Get("/", h.ShareView)
			r.Get("/ws", h.ShareSocket)
		})
	})

	return r
}

// requireSession rejects requests without a valid session token.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := h.sessions.EmailFromToken(h.sessionToken(r))
		if err != nil || email == "" {
			h.error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logger.With("module", "httpapi")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
