// Package apiclient is the console's HTTP adapter for the VulnSphere REST API.
//
// Every request carries the stored bearer token. A 401 on a first attempt
// triggers one refresh through /auth/refresh/ and one retry; any other
// failure is returned to the caller unchanged.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vulnsphere/console/internal/credentials"
	"github.com/vulnsphere/console/internal/telemetry"
)

const (
	refreshPath = "/auth/refresh/"
	loginPath   = "/auth/login/"
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type Option func(*Client)

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the underlying transport client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

type Client struct {
	rc         *resty.Client
	httpClient *http.Client
	tracer     trace.Tracer
	metrics    *telemetry.Metrics
}

func New(cfg Config, opts ...Option) *Client {
	c := &Client{tracer: noop.NewTracerProvider().Tracer(telemetry.TracerName)}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient != nil {
		c.rc = resty.NewWithClient(c.httpClient)
	} else {
		c.rc = resty.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "vulnsphere-console"
	}
	c.rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent)
	return c
}

// File is one multipart file part. Data is kept in memory so the body can be
// rebuilt for the retry after a token refresh.
type File struct {
	Field string
	Name  string
	Data  []byte
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is sent as JSON. Ignored when Files is set.
	Body any
	// Form holds plain multipart fields sent alongside Files.
	Form  map[string]string
	Files []File
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Do sends req with the credentials in store. A nil store sends an anonymous
// request and skips the refresh path.
func (c *Client) Do(ctx context.Context, store credentials.Store, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "vulnsphere "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	resp, err := c.do(ctx, store, req, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	return resp, nil
}

func (c *Client) do(ctx context.Context, store credentials.Store, req Request, span trace.Span) (*Response, error) {
	var access string
	if store != nil {
		tokens, err := store.Load(ctx)
		if err != nil && !errors.Is(err, credentials.ErrNoSession) {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		access = tokens.Access
	}

	resp, err := c.send(ctx, req, access)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized || store == nil {
		return checkStatus(req, resp)
	}

	// First 401: refresh once, then retry once.
	tokens, err := store.Load(ctx)
	if err != nil || tokens.Refresh == "" {
		c.metrics.ObserveRefresh("missing")
		span.AddEvent("token.refresh.missing")
		return nil, c.loginRequired(ctx, store, statusError(req, resp))
	}

	fresh, err := c.refresh(ctx, tokens.Refresh)
	if err != nil {
		c.metrics.ObserveRefresh("failed")
		span.AddEvent("token.refresh.failed")
		return nil, c.loginRequired(ctx, store, err)
	}
	if err := store.SetAccess(ctx, fresh); err != nil {
		return nil, c.loginRequired(ctx, store, fmt.Errorf("storing access token: %w", err))
	}
	c.metrics.ObserveRefresh("ok")
	span.AddEvent("token.refresh.ok")

	retried, err := c.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	if retried.Status == http.StatusUnauthorized {
		c.metrics.ObserveRefresh("rejected")
		return nil, c.loginRequired(ctx, store, statusError(req, retried))
	}
	return checkStatus(req, retried)
}

func (c *Client) loginRequired(ctx context.Context, store credentials.Store, cause error) error {
	// The request context may already be done; clearing must still happen.
	if err := store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("%w: %v (clearing credentials: %v)", ErrLoginRequired, cause, err)
	}
	return fmt.Errorf("%w: %v", ErrLoginRequired, cause)
}

func (c *Client) send(ctx context.Context, req Request, access string) (*Response, error) {
	r := c.rc.R().SetContext(ctx)
	if access != "" {
		r.SetAuthToken(access)
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	switch {
	case len(req.Files) > 0:
		if len(req.Form) > 0 {
			r.SetFormData(req.Form)
		}
		for _, f := range req.Files {
			r.SetFileReader(f.Field, f.Name, bytes.NewReader(f.Data))
		}
	case req.Body != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		c.metrics.ObserveAPI(req.Method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	c.metrics.ObserveAPI(req.Method, resp.StatusCode(), time.Since(start))

	return &Response{
		Status: resp.StatusCode(),
		Header: resp.Header(),
		Body:   resp.Body(),
	}, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.send(ctx, Request{
		Method: http.MethodPost,
		Path:   refreshPath,
		Body:   map[string]string{"refresh": refreshToken},
	}, "")
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	if resp.Status < 200 || resp.Status > 299 {
		return "", fmt.Errorf("refreshing token: %w", statusError(Request{Method: http.MethodPost, Path: refreshPath}, resp))
	}
	var out struct {
		Access string `json:"access"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	if out.Access == "" {
		return "", errors.New("refreshing token: empty access token")
	}
	return out.Access, nil
}

// Login exchanges a username (or email) and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (credentials.Tokens, error) {
	resp, err := c.Do(ctx, nil, Request{
		Method: http.MethodPost,
		Path:   loginPath,
		Body:   map[string]string{"username": username, "password": password},
	})
	if err != nil {
		return credentials.Tokens{}, err
	}
	var tokens credentials.Tokens
	if err := resp.Decode(&tokens); err != nil {
		return credentials.Tokens{}, err
	}
	if tokens.Access == "" || tokens.Refresh == "" {
		return credentials.Tokens{}, errors.New("login: incomplete token pair")
	}
	return tokens, nil
}

func checkStatus(req Request, resp *Response) (*Response, error) {
	if resp.Status >= 200 && resp.Status <= 299 {
		return resp, nil
	}
	return nil, statusError(req, resp)
}

func statusError(req Request, resp *Response) *HTTPError {
	return &HTTPError{Method: req.Method, Path: req.Path, Status: resp.Status, Body: resp.Body}
}
