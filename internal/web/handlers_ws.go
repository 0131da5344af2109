package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/license"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 64 << 10
)

// frameSearchResult answers a search request. It is distinct from the
// unfiltered index push so clients never mistake one for the other.
const frameSearchResult = "search-result"

// Client frame types.
const (
	frameGetIndex = "get-index"
	frameGoto     = "goto"
	frameSearch   = "search"
	framePing     = "ping"
	frameActivate = "activate"
)

type wsClientMessage struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Query string `json:"query,omitempty"`
	Key   string `json:"key,omitempty"`
}

type wsServerMessage struct {
	Type    string `json:"type"` // pong, validated, activation-required, error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type wsIndexMessage struct {
	Type string `json:"type"`
	engine.IndexReply
	Query string `json:"query,omitempty"`
}

type wsGotoResult struct {
	Type string `json:"type"`
	OK   bool   `json:"ok"`
	ID   string `json:"id"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes; gorilla allows one concurrent writer.
type wsConnWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	wsLog := logging.ForComponent(logging.CompWeb)
	wsLog.Debug("ws_connected", slog.String("client", clientHost(r)))

	writer := newWSConnWriter(conn)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if _, gate := s.state(); gate.Status == license.StatusActivationRequired {
		_ = writer.WriteJSON(gateMessage(gate))
	}

	changes := s.subscribe()
	defer s.unsubscribe(changes)
	go s.pushFrames(ctx, writer, changes)

	limiter := s.limiters.newLimiter()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				wsLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		if !limiter.Allow() {
			logging.Aggregate(logging.CompWeb, "rate_limited", slog.String("client", clientHost(r)))
			_ = writer.WriteJSON(wsServerMessage{Type: "error", Code: "RATE_LIMITED", Message: "too many requests"})
			continue
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.WriteJSON(wsServerMessage{Type: "error", Code: "INVALID_MESSAGE", Message: "invalid json payload"})
			continue
		}

		if err := writer.WriteJSON(s.answerFrame(ctx, r, msg)); err != nil {
			return
		}
	}
}

// answerFrame builds the reply to one client frame.
func (s *Server) answerFrame(ctx context.Context, r *http.Request, msg wsClientMessage) any {
	switch msg.Type {
	case framePing:
		return wsServerMessage{Type: "pong"}
	case frameActivate:
		if s.cfg.Activate == nil {
			return wsServerMessage{Type: "error", Code: "NOT_SUPPORTED", Message: "activation is not available"}
		}
		res, err := s.activate(r.WithContext(ctx), msg.Key)
		if err != nil {
			return wsServerMessage{Type: "error", Code: "LICENSE_UNAVAILABLE", Message: "license service unavailable"}
		}
		if res.Valid() {
			return wsServerMessage{Type: eventValidated}
		}
		return gateMessage(res)
	case frameGetIndex, frameSearch, frameGoto:
	default:
		return wsServerMessage{
			Type:    "error",
			Code:    "UNSUPPORTED_MESSAGE",
			Message: "supported message types: get-index,goto,search,ping,activate",
		}
	}

	src, gate := s.state()
	if src == nil {
		if gate.Status == license.StatusActivationRequired {
			return gateMessage(gate)
		}
		return wsServerMessage{Type: "error", Code: "NOT_READY", Message: "indexing has not started"}
	}

	switch msg.Type {
	case frameGoto:
		id := strings.TrimSpace(msg.ID)
		if id == "" {
			return wsServerMessage{Type: "error", Code: "INVALID_REQUEST", Message: "id is required"}
		}
		ok, err := src.Goto(ctx, id)
		if err != nil {
			return engineErrorFrame(err)
		}
		return wsGotoResult{Type: "goto-result", OK: ok, ID: id}
	case frameSearch:
		reply, err := src.Search(ctx, msg.Query)
		if err != nil {
			return engineErrorFrame(err)
		}
		return wsIndexMessage{Type: frameSearchResult, IndexReply: reply, Query: msg.Query}
	default:
		reply, err := src.IndexReply(ctx)
		if err != nil {
			return engineErrorFrame(err)
		}
		return wsIndexMessage{Type: eventIndex, IndexReply: reply}
	}
}

// pushFrames forwards broadcasts to one connection until ctx ends.
// Failed writes are dropped.
func (s *Server) pushFrames(ctx context.Context, writer *wsConnWriter, changes <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind, ok := <-changes:
			if !ok {
				return
			}
			src, gate := s.state()
			switch kind {
			case eventValidated:
				_ = writer.WriteJSON(wsServerMessage{Type: eventValidated})
			case eventActivationRequired:
				_ = writer.WriteJSON(gateMessage(gate))
			case eventIndex:
				if src == nil {
					continue
				}
				reply, err := src.IndexReply(ctx)
				if err != nil {
					continue
				}
				_ = writer.WriteJSON(wsIndexMessage{Type: eventIndex, IndexReply: reply})
			}
		}
	}
}

func gateMessage(res license.Result) wsServerMessage {
	msg := res.Message
	if msg == "" {
		msg = license.DefaultMessage
	}
	return wsServerMessage{Type: eventActivationRequired, Message: msg}
}

func engineErrorFrame(err error) wsServerMessage {
	if errors.Is(err, engine.ErrClosed) {
		return wsServerMessage{Type: "error", Code: "ENGINE_CLOSED", Message: "indexing stopped"}
	}
	return wsServerMessage{Type: "error", Code: "INTERNAL_ERROR", Message: err.Error()}
}
