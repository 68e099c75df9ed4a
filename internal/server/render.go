package server

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/vulnsphere/console/internal/pagination"
	"github.com/vulnsphere/console/internal/session"
	"github.com/vulnsphere/console/internal/views"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

type pageData struct {
	ActivePage string
	Title      string
	Identity   session.Identity
	Nav        session.Nav
	User       vulnsphere.User
	// Dialog reopens a form that failed to submit.
	Dialog *dialogState
	Data   any
}

// dialogState is a failed form: which dialog, which entity, the message and
// the values the user typed.
type dialogState struct {
	Name    string
	Target  string
	Message string
	Field   string
	Values  url.Values
}

func (d *dialogState) Is(name, target string) bool {
	return d != nil && d.Name == name && d.Target == target
}

func (d *dialogState) Value(key string) string {
	if d == nil {
		return ""
	}
	return d.Values.Get(key)
}

// Or is the value the user typed into field key of dialog name/target, or
// fallback when that dialog is not the one being redrawn.
func (d *dialogState) Or(name, target, key string, fallback any) string {
	if d.Is(name, target) {
		return d.Values.Get(key)
	}
	return fmt.Sprint(fallback)
}

func (d *dialogState) Checked(name, target, key string, fallback bool) template.HTMLAttr {
	on := fallback
	if d.Is(name, target) {
		on = d.Values.Get(key) == "on"
	}
	if on {
		return "checked"
	}
	return ""
}

// Selected is the multi-select counterpart of Or.
func (d *dialogState) Selected(name, target, key string, fallback any, v any) template.HTMLAttr {
	list, _ := fallback.([]string)
	if d.Is(name, target) {
		list = d.Values[key]
	}
	if slices.Contains(list, fmt.Sprint(v)) {
		return "selected"
	}
	return ""
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, page string, status int, data pageData) {
	tmpl, ok := s.pages[page]
	if !ok {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}
	if e := envFrom(r.Context()); e != nil {
		data.Identity = e.identity
		data.Nav = e.identity.Nav()
		data.User = e.user()
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		slog.Error("template render error", "page", page, "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// fail renders a load failure. A lost session goes to /login instead.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if loginRequired(err) {
		s.toLogin(w, r)
		return
	}
	slog.Error("request failed", "path", r.URL.Path, "error", err)
	s.renderPage(w, r, "error.html", http.StatusBadGateway, pageData{Title: "Error", Data: msg})
}

func (s *Server) forbidden(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "error.html", http.StatusForbidden, pageData{
		Title: "Forbidden",
		Data:  "You do not have permission to perform this action.",
	})
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// pageURL links to page of a list, keeping its filters. key is the
		// query parameter, "page" unless the view shows several lists.
		"pageURL": func(base url.Values, key string, page int) string {
			if key == "" || key == "page" {
				return pagination.PageURL(base, page)
			}
			q := url.Values{}
			for k, v := range base {
				q[k] = append([]string(nil), v...)
			}
			q.Set(key, strconv.Itoa(page))
			return "?" + q.Encode()
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("Jan 2, 2006")
		},
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("Jan 2, 2006 15:04")
		},
		"tone": func(v interface{ Tone() vulnsphere.Tone }) string {
			return "badge badge-" + string(v.Tone())
		},
		"selected": func(a, b any) template.HTMLAttr {
			if fmt.Sprint(a) == fmt.Sprint(b) {
				return "selected"
			}
			return ""
		},
		"checked": func(v bool) template.HTMLAttr {
			if v {
				return "checked"
			}
			return ""
		},
		"hasString": func(list []string, v any) bool {
			return slices.Contains(list, fmt.Sprint(v))
		},
		"initials": func(name string) string {
			var b strings.Builder
			n := 0
			for _, f := range strings.Fields(name) {
				r, _ := utf8.DecodeRuneInString(f)
				b.WriteRune(unicode.ToUpper(r))
				if n++; n == 2 {
					break
				}
			}
			return b.String()
		},
		"count": func(n int, singular string) string {
			if n == 1 {
				return "1 " + singular
			}
			return fmt.Sprintf("%d %ss", n, singular)
		},
		"entityName":      views.EntityName,
		"visibleMetadata": views.VisibleMetadata,
		"verb":            views.Verb,
		"severities":      func() []vulnsphere.Severity { return vulnsphere.Severities },
		"vulnStatuses":    func() []vulnsphere.VulnStatus { return vulnsphere.VulnStatuses },
		"projectStatuses": func() []vulnsphere.ProjectStatus { return vulnsphere.ProjectStatuses },
		"assetTypes":      func() []vulnsphere.AssetType { return vulnsphere.AssetTypes },
		"roles":           func() []vulnsphere.Role { return vulnsphere.Roles },
	}
}
