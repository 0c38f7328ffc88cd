// Package server exposes the HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"casegen/internal/app"
	"casegen/internal/extract"
	"casegen/internal/ratelimit"
	"casegen/internal/util"
	"casegen/pkg/ai"
	"casegen/pkg/domain"
	"casegen/pkg/usertoken"
)

const defaultMaxUploadBytes = 10 << 20

// Config wires the server's collaborators. Nil limiters disable the
// corresponding rate limit.
type Config struct {
	App    *app.App
	Tokens *usertoken.Manager

	SignupLimiter   *ratelimit.Limiter
	LoginLimiter    *ratelimit.Limiter
	GenerateLimiter *ratelimit.Limiter

	MaxUploadBytes int64
}

// Server handles the JSON API.
type Server struct {
	app    *app.App
	tokens *usertoken.Manager

	signupLimiter   *ratelimit.Limiter
	loginLimiter    *ratelimit.Limiter
	generateLimiter *ratelimit.Limiter

	maxUploadBytes int64
	mux            *http.ServeMux
}

// New builds the server and registers its routes.
func New(cfg Config) *Server {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	s := &Server{
		app:             cfg.App,
		tokens:          cfg.Tokens,
		signupLimiter:   cfg.SignupLimiter,
		loginLimiter:    cfg.LoginLimiter,
		generateLimiter: cfg.GenerateLimiter,
		maxUploadBytes:  maxUpload,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/auth/signup", s.rateLimited(s.signupLimiter, s.handleSignup))
	s.mux.HandleFunc("POST /api/auth/login", s.rateLimited(s.loginLimiter, s.handleLogin))
	s.mux.HandleFunc("POST /api/auth/logout", s.authenticated(s.handleLogout))

	s.mux.HandleFunc("GET /api/users/me", s.authenticated(s.handleGetProfile))
	s.mux.HandleFunc("PATCH /api/users/me", s.authenticated(s.handleUpdateProfile))
	s.mux.HandleFunc("POST /api/users/me/avatar", s.authenticated(s.handleUploadAvatar))

	s.mux.HandleFunc("GET /api/dashboard/summary", s.authenticated(s.handleDashboardSummary))
	s.mux.HandleFunc("GET /api/dashboard/charts", s.authenticated(s.handleDashboardCharts))
	s.mux.HandleFunc("GET /api/metrics", s.authenticated(s.handleMetrics))

	s.mux.HandleFunc("POST /api/chats", s.authenticated(s.handleCreateChat))
	s.mux.HandleFunc("GET /api/chats", s.authenticated(s.handleListChats))
	s.mux.HandleFunc("GET /api/chats/{id}", s.authenticated(s.handleGetChat))
	s.mux.HandleFunc("POST /api/chats/{id}/messages", s.authenticated(s.handleSendMessage))
	s.mux.HandleFunc("GET /api/chats/{id}/stream", s.authenticated(s.handleStreamChat))
	s.mux.HandleFunc("POST /api/chats/{id}/close", s.authenticated(s.handleCloseChat))
	s.mux.HandleFunc("POST /api/chats/{id}/attachments", s.authenticated(s.handleUploadAttachment))
	s.mux.HandleFunc("GET /api/attachments", s.authenticated(s.handleListAttachments))
	s.mux.HandleFunc("DELETE /api/attachments/{id}", s.authenticated(s.handleDeleteAttachment))

	s.mux.HandleFunc("POST /api/projects", s.rateLimitedAuth(s.generateLimiter, s.handleUploadProject))
	s.mux.HandleFunc("GET /api/projects", s.authenticated(s.handleListProjects))
	s.mux.HandleFunc("GET /api/projects/{id}/cases", s.authenticated(s.handleProjectCases))
	s.mux.HandleFunc("GET /api/projects/{id}/cases/pdf", s.authenticated(s.handleProjectCasesPDF))
	s.mux.HandleFunc("DELETE /api/projects/{id}", s.authenticated(s.handleDeleteProject))
	s.mux.HandleFunc("DELETE /api/projects/{id}/file", s.authenticated(s.handleDeleteProjectFile))
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = util.WithSecurityHeaders(handler)
	handler = util.WithCORS(handler)
	handler = util.WithRequestLog("casegen", handler)
	handler = util.WithRequestID(handler)
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

// authenticated resolves the Bearer token to an account before invoking
// the handler.
func (s *Server) authenticated(next authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "autenticacion requerida")
			return
		}
		userID, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token invalido o expirado")
			return
		}
		user, err := s.app.UserByID(userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token invalido o expirado")
			return
		}
		next(w, r, user)
	}
}

// rateLimited applies a per-IP fixed window to an unauthenticated route.
func (s *Server) rateLimited(limiter *ratelimit.Limiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(util.ClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "demasiadas solicitudes, intenta mas tarde")
			return
		}
		next(w, r)
	}
}

// rateLimitedAuth applies a per-user fixed window to an authenticated
// route.
func (s *Server) rateLimitedAuth(limiter *ratelimit.Limiter, next authHandler) http.HandlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if limiter != nil && !limiter.Allow(user.ID) {
			writeError(w, http.StatusTooManyRequests, "demasiadas solicitudes, intenta mas tarde")
			return
		}
		next(w, r, user)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps application sentinels to HTTP statuses with the
// user-facing Spanish messages the web UI shows verbatim.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, app.ErrNotFound.Error())
	case errors.Is(err, app.ErrDuplicateName):
		writeError(w, http.StatusConflict, app.ErrDuplicateName.Error())
	case errors.Is(err, app.ErrEmailTaken):
		writeError(w, http.StatusConflict, app.ErrEmailTaken.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrEmptyMessage), errors.Is(err, app.ErrNotImage), errors.Is(err, app.ErrNoCases):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, extract.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "El archivo no contiene texto suficiente para generar casos de prueba.")
	case errors.Is(err, extract.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "Formato de archivo no soportado.")
	case errors.Is(err, ai.ErrUpstream):
		writeError(w, http.StatusBadGateway, "El servicio de generacion no esta disponible. Intenta nuevamente.")
	default:
		writeError(w, http.StatusInternalServerError, "error interno del servidor")
	}
}
