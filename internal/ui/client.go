package ui

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

var uiLog = logging.ForComponent(logging.CompUI)

const clientWriteTimeout = 10 * time.Second

// Request is a client frame sent to the server.
type Request struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Query string `json:"query,omitempty"`
	Key   string `json:"key,omitempty"`
}

// Frame is any server frame; fields unused by a type stay zero.
type Frame struct {
	Type           string                `json:"type"`
	Index          []engine.MessageEntry `json:"index,omitempty"`
	ConversationID string                `json:"conversationId,omitempty"`
	OK             bool                  `json:"ok,omitempty"`
	ID             string                `json:"id,omitempty"`
	Code           string                `json:"code,omitempty"`
	Message        string                `json:"message,omitempty"`
}

// Client is a WebSocket connection to `chatjump serve`.
type Client struct {
	conn   *websocket.Conn
	writeM sync.Mutex
	frames chan Frame
	done   chan struct{}
	once   sync.Once

	errMu sync.Mutex
	err   error
}

// Endpoint builds the /ws URL from "host:port" or an http(s)/ws(s) URL.
func Endpoint(addr, token string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty server address")
	}
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server address %q has no host", addr)
	}
	u.Path = "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr, token string) (*Client, error) {
	endpoint, err := Endpoint(addr, token)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect %s: %s", addr, resp.Status)
		}
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	c := &Client{conn: conn, frames: make(chan Frame, 16), done: make(chan struct{})}
	go c.readLoop()
	uiLog.Info("ui_connected", slog.String("addr", addr))
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			return
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

// Frames yields server frames and is closed when the connection ends.
func (c *Client) Frames() <-chan Frame { return c.frames }

// Err reports why Frames was closed.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send writes one request.
func (c *Client) Send(req Request) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	return c.conn.WriteJSON(req)
}

// Close ends the connection.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	c.writeM.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeM.Unlock()
	return c.conn.Close()
}
