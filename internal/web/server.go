package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/license"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

// DefaultListenAddr is used when Config.ListenAddr is empty.
const DefaultListenAddr = "127.0.0.1:8787"

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Profile    string
	Token      string

	// RatePerSecond and Burst bound inbound requests per client connection.
	// Zero RatePerSecond disables limiting.
	RatePerSecond float64
	Burst         int

	// Activate handles a key submitted by a client. Nil disables activation
	// over the wire.
	Activate func(ctx context.Context, key string) (license.Result, error)
}

// IndexSource answers index queries. *engine.Engine satisfies it.
type IndexSource interface {
	IndexReply(ctx context.Context) (engine.IndexReply, error)
	Search(ctx context.Context, q string) (engine.IndexReply, error)
	Goto(ctx context.Context, id string) (bool, error)
	Changes() <-chan struct{}
	Done() <-chan struct{}
}

var _ IndexSource = (*engine.Engine)(nil)

// Broadcast kinds delivered to SSE and WebSocket subscribers.
const (
	eventIndex              = "index"
	eventValidated          = "validated"
	eventActivationRequired = "activation-required"
)

// Server wraps an HTTP server exposing one page's index.
type Server struct {
	cfg        Config
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
	limiters   *limiterSet

	stateMu sync.RWMutex
	source  IndexSource
	gate    license.Result

	subscribersMu sync.Mutex
	subscribers   map[chan string]struct{}
}

// NewServer creates a web server. Until SetSource is called every index
// request answers with the current license gate.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	s := &Server{
		cfg:         cfg,
		limiters:    newLimiterSet(cfg.RatePerSecond, cfg.Burst),
		gate:        license.Result{Status: license.StatusActivationRequired, Message: license.DefaultMessage},
		subscribers: make(map[chan string]struct{}),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/static/", s.handleStatic)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/index", s.handleAPIIndex)
	mux.HandleFunc("/api/search", s.handleAPISearch)
	mux.HandleFunc("/api/goto", s.handleAPIGoto)
	mux.HandleFunc("/api/activate", s.handleAPIActivate)
	mux.HandleFunc("/events/index", s.handleIndexEvents)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// SetSource installs the engine once indexing is allowed. Subscribers are
// told the page is validated and receive the current index.
func (s *Server) SetSource(src IndexSource) {
	s.stateMu.Lock()
	s.source = src
	s.gate = license.Result{Status: license.StatusValidated}
	s.stateMu.Unlock()

	logging.ForComponent(logging.CompWeb).Info("index_source_attached")
	s.notify(eventValidated)
	s.notify(eventIndex)

	go s.forwardChanges(src)
}

// SetLicense records a validation outcome that did not allow indexing.
func (s *Server) SetLicense(res license.Result) {
	s.stateMu.Lock()
	s.gate = res
	s.stateMu.Unlock()
	if res.Status == license.StatusActivationRequired {
		s.notify(eventActivationRequired)
	}
}

func (s *Server) state() (IndexSource, license.Result) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.source, s.gate
}

func (s *Server) forwardChanges(src IndexSource) {
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-src.Done():
			s.stateMu.Lock()
			if s.source == src {
				s.source = nil
				s.gate = license.Result{Status: license.StatusFailed, Message: "indexing stopped"}
			}
			s.stateMu.Unlock()
			return
		case _, ok := <-src.Changes():
			if !ok {
				return
			}
			s.notify(eventIndex)
		}
	}
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	logging.ForComponent(logging.CompWeb).Info("web_listening", slog.String("addr", s.cfg.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		// Signal long-lived handlers (SSE/WS) to stop promptly.
		s.cancelBase()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	// Hijacked WebSocket connections can outlive the deadline.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}

	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	src, gate := s.state()
	resp := map[string]any{
		"ok":       true,
		"profile":  s.cfg.Profile,
		"indexing": src != nil,
		"license":  gate.Status.String(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompWeb).Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, profile=%s)", s.cfg.ListenAddr, s.cfg.Profile)
}

func (s *Server) subscribe() chan string {
	ch := make(chan string, 8)
	s.subscribersMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subscribersMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan string) {
	if ch == nil {
		return
	}
	s.subscribersMu.Lock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subscribersMu.Unlock()
}

// notify delivers kind to every subscriber. A full subscriber misses it.
func (s *Server) notify(kind string) {
	s.subscribersMu.Lock()
	for ch := range s.subscribers {
		select {
		case ch <- kind:
		default:
		}
	}
	s.subscribersMu.Unlock()
}
