package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vulnsphere/console/internal/listing"
	"github.com/vulnsphere/console/internal/pagination"
	"github.com/vulnsphere/console/internal/views"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

const searchDebounce = 300 * time.Millisecond

// Hub fans refetch notifications out to live views. A mutation on one
// session refreshes every open view of the same topic.
type Hub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

type liveClient struct {
	conn    *websocket.Conn
	refetch chan string
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*liveClient]struct{})}
}

func (h *Hub) subscribe(c *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Refetch asks every live view of topic to reload. Clients that are already
// behind keep their pending notification.
func (h *Hub) Refetch(topic string) {
	if topic == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.refetch <- topic:
		default:
		}
	}
}

// Close disconnects every client and refuses new ones. The close handshake
// runs outside the lock.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// liveRequest is sent by the browser whenever the reports filters change.
type liveRequest struct {
	View    string `json:"view"`
	Page    int    `json:"page"`
	Search  string `json:"search"`
	Company string `json:"company"`
}

type liveFrame struct {
	View    string                       `json:"view"`
	Status  string                       `json:"status"`
	Items   []vulnsphere.GeneratedReport `json:"items"`
	Total   int                          `json:"total"`
	Page    int                          `json:"page"`
	Pages   int                          `json:"pages"`
	Summary string                       `json:"summary"`
	Error   string                       `json:"error,omitempty"`
}

// handleWebSocket serves the live reports list. Search input is debounced;
// page and company changes load immediately. Only the newest load is ever
// written back.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	e := envFrom(r.Context())
	if !e.identity.Nav().Reports {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	client := &liveClient{conn: conn, refetch: make(chan string, 1)}
	if !s.hub.subscribe(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.hub.unsubscribe(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	lv := &liveView{
		conn:     conn,
		ctrl:     listing.NewController(e.views.ReportsFetcher()),
		debounce: listing.NewDebouncer(searchDebounce),
		query:    views.ReportsQuery(),
	}
	defer lv.stop()

	go func() {
		defer cancel()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req liveRequest
			if err := json.Unmarshal(data, &req); err != nil || req.View != "reports" {
				conn.Close(websocket.StatusInvalidFramePayloadData, "invalid request")
				return
			}
			lv.request(ctx, req)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case topic := <-client.refetch:
			if topic == "reports" {
				lv.reload(ctx)
			}
		}
	}
}

type liveView struct {
	conn     *websocket.Conn
	ctrl     *listing.Controller[vulnsphere.GeneratedReport]
	debounce *listing.Debouncer

	mu    sync.Mutex
	query listing.Query[vulnsphere.GeneratedReport]

	// writeMu orders frames; a frame is only sent while its load is newest.
	writeMu sync.Mutex
}

func (lv *liveView) request(ctx context.Context, req liveRequest) {
	lv.mu.Lock()
	prev := lv.query
	next := prev.With("search", req.Search).With("company", req.Company)
	searchChanged := next.Value("search") != prev.Value("search")
	if next.Value("company") == prev.Value("company") && !searchChanged {
		next = next.WithPage(req.Page)
	}
	lv.query = next
	lv.mu.Unlock()

	if searchChanged {
		lv.debounce.Trigger(func() { lv.load(ctx, next) })
		return
	}
	lv.debounce.Stop()
	go lv.load(ctx, next)
}

func (lv *liveView) reload(ctx context.Context) {
	lv.mu.Lock()
	q := lv.query
	lv.mu.Unlock()
	go lv.load(ctx, q)
}

func (lv *liveView) load(ctx context.Context, q listing.Query[vulnsphere.GeneratedReport]) {
	st, err := lv.ctrl.Load(ctx, q)
	if errors.Is(err, listing.ErrStale) || ctx.Err() != nil {
		return
	}
	pager := pagination.New(q.Page(), st.Total, q.PageSize(), false)
	frame := liveFrame{
		View:    "reports",
		Status:  st.Status.String(),
		Items:   st.Items,
		Total:   st.Total,
		Page:    pager.Current,
		Pages:   pager.TotalPages,
		Summary: pager.Summary(),
	}
	if err != nil {
		if loginRequired(err) {
			lv.conn.Close(websocket.StatusPolicyViolation, "login required")
			return
		}
		frame.Error = "Failed to load reports."
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	lv.writeMu.Lock()
	defer lv.writeMu.Unlock()
	if !lv.ctrl.Current(st.Generation) {
		return
	}
	if err := lv.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("ws write error", "error", err)
	}
}

func (lv *liveView) stop() {
	lv.debounce.Stop()
	lv.ctrl.Cancel()
}
