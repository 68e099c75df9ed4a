package server

import (
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

func (s *Server) handleCSVTemplate(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	companyID := r.PathValue("c")
	if !e.identity.CanEdit() {
		s.forbidden(w, r)
		return
	}
	blob, err := e.api.AssetCSVTemplate(r.Context(), companyID)
	if err != nil {
		s.fail(w, r, err, "Failed to download CSV template.")
		return
	}
	writeBlob(w, blob)
}

func (s *Server) handleReportDownload(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	if !e.identity.Nav().Reports {
		s.forbidden(w, r)
		return
	}
	rep := vulnsphere.GeneratedReport{ID: r.PathValue("r"), Format: vulnsphere.ReportFormat(r.URL.Query().Get("format"))}
	blob, err := e.api.DownloadReport(r.Context(), rep)
	if err != nil {
		s.fail(w, r, err, "Failed to download report.")
		return
	}
	writeBlob(w, blob)
}

func (s *Server) handleTemplateDownload(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	if !e.identity.Nav().Templates {
		s.forbidden(w, r)
		return
	}
	t, err := e.api.GetTemplate(r.Context(), r.PathValue("t"))
	if err != nil {
		s.fail(w, r, err, "Failed to download template.")
		return
	}
	blob, err := e.api.DownloadTemplate(r.Context(), t)
	if err != nil {
		s.fail(w, r, err, "Failed to download template.")
		return
	}
	writeBlob(w, blob)
}

func writeBlob(w http.ResponseWriter, b *apiclient.Blob) {
	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": b.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	if _, err := w.Write(b.Data); err != nil {
		slog.Debug("download write error", "error", err)
	}
}
