package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/jpalmerr/pulsecast/internal/hub"
)

const (
	// shutdownTimeout bounds the graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "PulseCast"

	// titlePlaceholder is replaced with the HTML-escaped title.
	titlePlaceholder = "{{.Title}}"

	// statusIdle is reported by /api/status before any status was published.
	statusIdle = "idle"
)

// Server exposes the broadcast hub over HTTP.
//
// Endpoints:
//   - GET /: embedded dashboard HTML
//   - GET /ws: WebSocket stream of events
//   - GET /api/sse: Server-Sent Events stream of events
//   - GET /api/status: JSON snapshot of the current state
//
// Every WebSocket and SSE connection is registered with the hub as a
// consumer for the lifetime of the connection.
type Server struct {
	hub        *hub.Hub
	host       string
	port       int
	httpServer *http.Server
	assets     fs.FS
	title      string
	logger     *slog.Logger

	mu   sync.RWMutex
	addr net.Addr
}

// NewServer creates a new HTTP [Server] bound to host:port once started.
// assets may be nil, in which case "/" is not served. A port of 0 picks a
// free port; see [Server.Addr].
func NewServer(h *hub.Hub, host string, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:    h,
		host:   host,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
}

// Addr returns the bound listen address, or "" before [Server.Start].
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Handler returns the request multiplexer. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.Handle("/ws", websocket.Server{Handler: s.serveWS})
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start binds synchronously, so an unavailable port is reported as an error.
// The server shuts down gracefully when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// request contexts derive from ctx so streaming handlers see shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
		s.logger.Debug("server stopped")
	}()

	s.logger.Debug("server started", "addr", ln.Addr().String())
	return nil
}

// handleDashboard serves the dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// statusResponse is the body of GET /api/status.
type statusResponse struct {
	Status     string           `json:"status"`
	Device     string           `json:"device,omitempty"`
	Consumers  int              `json:"consumers"`
	LastSample *hub.SampleEvent `json:"last_sample,omitempty"`
}

// handleStatus returns the latest status and sample as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{Status: statusIdle, Consumers: s.hub.Len()}
	if st, ok := s.hub.LastStatus(); ok {
		resp.Status = st.Status
		resp.Device = st.Device
	}
	if sample, ok := s.hub.LastSample(); ok {
		resp.LastSample = &sample
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status response", "error", err)
	}
}

// primer is a consumer that can write the hub's current status ahead of
// any round that starts while the snapshot is being taken.
type primer interface {
	primeWith(ctx context.Context, current func() ([]byte, bool)) error
}

// prime sends the current status to a newly attached consumer so it does
// not have to wait for the next transition. It runs after Register: a
// status published before the snapshot is read is in the snapshot, and one
// published after it is delivered by its own round, behind the snapshot.
func (s *Server) prime(ctx context.Context, c primer) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.hub.Timeout())
	defer cancel()
	return c.primeWith(sendCtx, func() ([]byte, bool) {
		st, ok := s.hub.LastStatus()
		if !ok {
			return nil, false
		}
		data, err := json.Marshal(st)
		if err != nil {
			s.logger.Error("failed to encode status", "error", err)
			return nil, false
		}
		return data, true
	})
}

func (s *Server) logConnected(kind, id, remote string) {
	s.logger.Info("client connected",
		"transport", kind,
		"client", remote,
		"consumer", id,
		"total", s.hub.Len(),
	)
}

func (s *Server) logDisconnected(kind, id, remote string) {
	s.logger.Info("client disconnected",
		"transport", kind,
		"client", remote,
		"consumer", id,
		"total", s.hub.Len(),
	)
}
