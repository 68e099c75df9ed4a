package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/config"
	"github.com/vulnsphere/console/internal/database"
	"github.com/vulnsphere/console/internal/telemetry"
	"github.com/vulnsphere/console/web"
)

type Server struct {
	cfg       *config.Config
	db        *database.DB
	client    *apiclient.Client
	metrics   *telemetry.Metrics
	hub       *Hub
	mux       *http.ServeMux
	pages     map[string]*template.Template
	loginTmpl *template.Template
	now       func() time.Time
}

func New(cfg *config.Config, db *database.DB, client *apiclient.Client, metrics *telemetry.Metrics) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		db:      db,
		client:  client,
		metrics: metrics,
		hub:     NewHub(),
		mux:     http.NewServeMux(),
		pages:   make(map[string]*template.Template),
		now:     time.Now,
	}

	if err := s.loadTemplates(); err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) loadTemplates() error {
	pageFiles := []string{
		"dashboard.html",
		"companies.html",
		"company.html",
		"projects.html",
		"project.html",
		"vulnerability.html",
		"vulnerabilities.html",
		"reports.html",
		"templates.html",
		"users.html",
		"activity.html",
		"settings.html",
		"error.html",
	}

	funcs := sprig.HtmlFuncMap()
	for name, fn := range templateFuncs() {
		funcs[name] = fn
	}

	for _, page := range pageFiles {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(web.Templates,
			"templates/layout.html", "templates/partials.html", "templates/"+page)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", page, err)
		}
		s.pages[page] = tmpl
	}

	// Login page is standalone (no layout)
	loginTmpl, err := template.New("login.html").Funcs(funcs).ParseFS(web.Templates, "templates/login.html")
	if err != nil {
		return fmt.Errorf("parsing login.html: %w", err)
	}
	s.loginTmpl = loginTmpl

	return nil
}

// Handler is the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(securityHeaders(s.loggingMiddleware(s.sessionGate(s.mux))))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "api", s.cfg.API.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	staticFS, _ := fs.Sub(web.Static, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.Handler())
	}

	// Session
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("POST /logout", s.handleLogout)

	// Pages
	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
	s.mux.HandleFunc("GET /companies", s.handleCompanies)
	s.mux.HandleFunc("GET /companies/{c}", s.handleCompany)
	s.mux.HandleFunc("GET /projects", s.handleProjects)
	s.mux.HandleFunc("GET /projects/{c}/{p}", s.handleProject)
	s.mux.HandleFunc("GET /projects/{c}/{p}/vulnerabilities/{v}", s.handleVuln)
	s.mux.HandleFunc("GET /vulnerabilities", s.handleVulnerabilities)
	s.mux.HandleFunc("GET /reports", s.handleReports)
	s.mux.HandleFunc("GET /templates", s.handleTemplates)
	s.mux.HandleFunc("GET /users", s.handleUsers)
	s.mux.HandleFunc("GET /activity", s.handleActivity)
	s.mux.HandleFunc("GET /settings", s.handleSettings)

	// Forms
	s.mux.HandleFunc("POST /companies/{c}/edit", s.handleCompanyEdit)
	s.mux.HandleFunc("POST /companies/{c}/projects", s.handleProjectCreate)
	s.mux.HandleFunc("POST /companies/{c}/projects/{p}/edit", s.handleProjectEdit)
	s.mux.HandleFunc("POST /companies/{c}/projects/{p}/delete", s.handleProjectDelete)
	s.mux.HandleFunc("POST /companies/{c}/assets", s.handleAssetCreate)
	s.mux.HandleFunc("POST /companies/{c}/assets/{a}/edit", s.handleAssetEdit)
	s.mux.HandleFunc("POST /companies/{c}/assets/{a}/delete", s.handleAssetDelete)
	s.mux.HandleFunc("POST /companies/{c}/assets/import", s.handleAssetImport)
	s.mux.HandleFunc("POST /projects/{c}/{p}/vulnerabilities", s.handleVulnCreate)
	s.mux.HandleFunc("POST /projects/{c}/{p}/vulnerabilities/{v}/edit", s.handleVulnEdit)
	s.mux.HandleFunc("POST /projects/{c}/{p}/vulnerabilities/{v}/delete", s.handleVulnDelete)
	s.mux.HandleFunc("POST /projects/{c}/{p}/vulnerabilities/{v}/retest", s.handleRetest)
	s.mux.HandleFunc("POST /reports/generate", s.handleGenerate)
	s.mux.HandleFunc("POST /reports/{r}/delete", s.handleReportDelete)
	s.mux.HandleFunc("POST /templates", s.handleTemplateUpload)
	s.mux.HandleFunc("POST /templates/{t}/edit", s.handleTemplateEdit)
	s.mux.HandleFunc("POST /templates/{t}/delete", s.handleTemplateDelete)
	s.mux.HandleFunc("POST /users", s.handleUserCreate)
	s.mux.HandleFunc("POST /users/{u}/edit", s.handleUserEdit)
	s.mux.HandleFunc("POST /settings", s.handleProfileEdit)

	// Downloads
	s.mux.HandleFunc("GET /companies/{c}/assets/csv-template", s.handleCSVTemplate)
	s.mux.HandleFunc("GET /reports/{r}/download", s.handleReportDownload)
	s.mux.HandleFunc("GET /templates/{t}/download", s.handleTemplateDownload)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}
