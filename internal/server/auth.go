package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/database"
	"github.com/vulnsphere/console/internal/dialog"
)

const sessionCookie = "vulnsphere_session"

type loginData struct {
	Username string
	Error    string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if _, err := s.db.GetSession(r.Context(), cookie.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}
	s.renderLogin(w, http.StatusOK, loginData{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		s.renderLogin(w, http.StatusUnprocessableEntity, loginData{Username: username, Error: "Please enter your username and password"})
		return
	}

	tokens, err := s.client.Login(r.Context(), username, password)
	if err != nil {
		slog.Info("login failed", "username", username, "status", apiclient.StatusOf(err))
		msg := dialog.Message(dialog.Translate(err, "Unable to sign in. Please try again."))
		s.renderLogin(w, http.StatusUnauthorized, loginData{Username: username, Error: msg})
		return
	}

	now := s.now()
	sess := &database.Session{
		ID:           uuid.NewString(),
		Username:     username,
		AccessToken:  tokens.Access,
		RefreshToken: tokens.Refresh,
		ExpiresAt:    now.Add(s.cfg.Session.TTL),
	}
	if err := s.db.CreateSession(r.Context(), sess); err != nil {
		slog.Error("create session", "error", err)
		s.renderLogin(w, http.StatusInternalServerError, loginData{Username: username, Error: "Unable to sign in. Please try again."})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("login", "username", username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if e := envFrom(r.Context()); e != nil {
		if err := e.store.Clear(context.WithoutCancel(r.Context())); err != nil {
			slog.Error("logout", "error", err)
		}
	}
	s.toLogin(w, r)
}

// toLogin drops the session cookie and sends the browser to /login.
func (s *Server) toLogin(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	if r.URL.Path == "/ws" {
		http.Error(w, "login required", http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, data loginData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.loginTmpl.Execute(w, data); err != nil {
		slog.Error("template render error", "page", "login", "error", err)
	}
}

// loginRequired reports whether err means the session is gone.
func loginRequired(err error) bool {
	return errors.Is(err, apiclient.ErrLoginRequired)
}
