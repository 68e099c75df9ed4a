package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/credentials"
	"github.com/vulnsphere/console/internal/database"
	"github.com/vulnsphere/console/internal/session"
	"github.com/vulnsphere/console/internal/views"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		s.metrics.ObserveHTTP(r.Method, wrapped.status)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// env is the per-request binding of a browser session to the API.
type env struct {
	store    *credentials.SessionStore
	api      *vulnsphere.API
	views    *views.Views
	identity session.Identity
}

func (e *env) user() vulnsphere.User {
	u, _ := e.identity.User()
	return u
}

type envKey struct{}

func envFrom(ctx context.Context) *env {
	e, _ := ctx.Value(envKey{}).(*env)
	return e
}

func public(path string) bool {
	return path == "/login" ||
		path == "/healthz" ||
		strings.HasPrefix(path, "/static/")
}

// sessionGate resolves the session cookie to stored credentials and the
// caller's identity. Requests without a live session go to /login.
func (s *Server) sessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if public(r.URL.Path) || (s.cfg.Metrics.Enabled && r.URL.Path == s.cfg.Metrics.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			s.toLogin(w, r)
			return
		}
		if _, err := s.db.GetSession(r.Context(), cookie.Value); err != nil {
			if !errors.Is(err, database.ErrSessionNotFound) {
				slog.Error("session lookup failed", "error", err)
			}
			s.toLogin(w, r)
			return
		}

		e := s.newEnv(cookie.Value)
		identity, err := session.NewResolver(e.api).Lookup(r.Context())
		if err != nil {
			if sessionRejected(err) {
				s.toLogin(w, r)
				return
			}
			slog.Error("identity lookup failed", "path", r.URL.Path, "error", err)
			s.unavailable(w, r)
			return
		}
		e.identity = identity
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), envKey{}, e)))
	})
}

// sessionRejected reports whether the API refused the session itself, as
// opposed to being unreachable or failing.
func sessionRejected(err error) bool {
	switch apiclient.StatusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return loginRequired(err)
}

// unavailable keeps the session cookie so a retry can succeed once the API
// is back.
func (s *Server) unavailable(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	s.renderPage(w, r, "error.html", http.StatusServiceUnavailable, pageData{
		Title: "Unavailable",
		Data:  "VulnSphere is not reachable right now. Please try again in a moment.",
	})
}

func (s *Server) newEnv(sessionID string) *env {
	store := credentials.NewSessionStore(s.db, sessionID)
	api := vulnsphere.New(s.client, store)
	return &env{
		store: store,
		api:   api,
		views: views.New(api,
			views.WithMetrics(s.metrics),
			views.WithFanout(s.cfg.API.FanoutLimit, s.cfg.API.RateLimit),
		),
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack is needed for the websocket upgrade.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
