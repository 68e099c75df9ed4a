package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnsphere/console/internal/credentials"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/v1"})
}

func TestDoAttachesBearer(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		assert.Equal(t, "/api/v1/companies/", r.URL.Path)
		w.Write([]byte(`[]`))
	}))

	store := credentials.NewMemoryStore(credentials.Tokens{Access: "a1", Refresh: "r1"})
	resp, err := c.Do(context.Background(), store, Request{Method: http.MethodGet, Path: "/companies/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Bearer a1", got)
}

func TestDoRefreshesOnceAndRetries(t *testing.T) {
	var refreshes, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r1", body["refresh"])
		w.Write([]byte(`{"access":"a2"}`))
	})
	mux.HandleFunc("GET /api/v1/users/me/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"u1"}`))
	})
	c := newTestClient(t, mux)

	store := credentials.NewMemoryStore(credentials.Tokens{Access: "expired", Refresh: "r1"})
	resp, err := c.Do(context.Background(), store, Request{Method: http.MethodGet, Path: "/users/me/"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1"}`, string(resp.Body))
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, 2, calls.Load())

	tokens, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", tokens.Access)
	assert.Equal(t, "r1", tokens.Refresh)
}

func TestDoSecond401DoesNotLoop(t *testing.T) {
	var refreshes, calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		w.Write([]byte(`{"access":"a2"}`))
	})
	mux.HandleFunc("GET /api/v1/companies/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	store := credentials.NewMemoryStore(credentials.Tokens{Access: "a1", Refresh: "r1"})
	_, err := c.Do(context.Background(), store, Request{Method: http.MethodGet, Path: "/companies/"})
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, store.Cleared())
}

func TestDoMissingRefreshToken(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
	})
	mux.HandleFunc("GET /api/v1/companies/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	store := credentials.NewMemoryStore(credentials.Tokens{Access: "a1"})
	_, err := c.Do(context.Background(), store, Request{Method: http.MethodGet, Path: "/companies/"})
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.Zero(t, refreshes.Load())
	assert.True(t, store.Cleared())
}

func TestDoRefreshFailureClearsCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Token is invalid or expired"}`))
	})
	mux.HandleFunc("GET /api/v1/companies/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	store := credentials.NewMemoryStore(credentials.Tokens{Access: "a1", Refresh: "stale"})
	_, err := c.Do(context.Background(), store, Request{Method: http.MethodGet, Path: "/companies/"})
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.True(t, store.Cleared())
}

func TestDoPassesThroughOtherErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"forbidden", http.StatusForbidden},
		{"bad request", http.StatusBadRequest},
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail":"nope"}`))
			}))
			store := credentials.NewMemoryStore(credentials.Tokens{Access: "a1", Refresh: "r1"})

			_, err := c.Do(context.Background(), store, Request{Method: http.MethodGet, Path: "/activity-logs/"})
			require.Error(t, err)
			assert.Equal(t, tt.status, StatusOf(err))
			assert.False(t, errors.Is(err, ErrLoginRequired))

			var he *HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, "nope", he.Problem().TopLevel())
			assert.EqualValues(t, 1, calls.Load())
			assert.False(t, store.Cleared())
		})
	}
}

func TestDoRebuildsMultipartOnRetry(t *testing.T) {
	var uploads []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access":"a2"}`))
	})
	mux.HandleFunc("POST /api/v1/report-templates/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		uploads = append(uploads, r.FormValue("name")+":"+string(data))
		if r.Header.Get("Authorization") != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"t1"}`))
	})
	c := newTestClient(t, mux)

	store := credentials.NewMemoryStore(credentials.Tokens{Access: "a1", Refresh: "r1"})
	resp, err := c.Do(context.Background(), store, Request{
		Method: http.MethodPost,
		Path:   "/report-templates/",
		Form:   map[string]string{"name": "Pentest"},
		Files:  []File{{Field: "file", Name: "pentest.docx", Data: []byte("DOCX")}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, []string{"Pentest:DOCX", "Pentest:DOCX"}, uploads)
}

func TestDoAnonymousSkipsRefresh(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
	}))

	_, err := c.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLoginRequired))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login/", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		w.Write([]byte(`{"access":"a","refresh":"r"}`))
	}))

	tokens, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, credentials.Tokens{Access: "a", Refresh: "r"}, tokens)
}

func TestDownloadFilename(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "named") {
			w.Header().Set("Content-Disposition", `attachment; filename="acme-report.docx"`)
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
		w.Write([]byte("PK"))
	}))
	store := credentials.NewMemoryStore(credentials.Tokens{Access: "a"})

	blob, err := c.Download(context.Background(), store, "/generated-reports/named/download/", nil, "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "acme-report.docx", blob.Filename)
	assert.Equal(t, []byte("PK"), blob.Data)

	blob, err = c.Download(context.Background(), store, "/generated-reports/plain/download/", nil, "report.docx")
	require.NoError(t, err)
	assert.Equal(t, "report.docx", blob.Filename)
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{`attachment; filename="assets_template.csv"`, "assets_template.csv"},
		{`attachment; filename="../../etc/passwd"`, "passwd"},
		{`inline`, ""},
		{`garbage;;;`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FilenameFromDisposition(tt.in), tt.in)
	}
}

func TestParseProblem(t *testing.T) {
	p := ParseProblem([]byte(`{"title":["This field is required."],"end_date":["End date must be after start date."],"non_field_errors":["bad"]}`))

	field, msg, ok := p.FieldMessage()
	require.True(t, ok)
	assert.Equal(t, "end_date", field)
	assert.Equal(t, "End date must be after start date.", msg)

	field, msg, ok = p.FieldMessage("title")
	require.True(t, ok)
	assert.Equal(t, "title", field)
	assert.Equal(t, "This field is required.", msg)

	p = ParseProblem([]byte(`{"non_field_errors":["Unable to log in."]}`))
	field, msg, ok = p.FieldMessage()
	require.True(t, ok)
	assert.Empty(t, field)
	assert.Equal(t, "Unable to log in.", msg)

	p = ParseProblem([]byte(`{"error":"File must be CSV"}`))
	_, _, ok = p.FieldMessage()
	assert.False(t, ok)
	assert.Equal(t, "File must be CSV", p.TopLevel())

	assert.Equal(t, Problem{}, ParseProblem([]byte("<html>")))
}
