package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asheshgoplani/chatjump/internal/engine"
)

func openIndexStream(t *testing.T, ts *httptest.Server) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events/index", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("expected text/event-stream content-type, got: %s", ct)
	}
	return bufio.NewReader(resp.Body)
}

func TestIndexEventsStreamInitialIndex(t *testing.T) {
	srv, _ := newIndexedServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	event, payload, err := readSSEEvent(openIndexStream(t, ts))
	if err != nil {
		t.Fatalf("failed to read sse event: %v", err)
	}
	if event != "index" {
		t.Fatalf("expected event 'index', got %q", event)
	}
	var reply engine.IndexReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if len(reply.Index) != 2 || reply.ConversationID != "conv-1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestIndexEventsStreamPushesChanges(t *testing.T) {
	origHeartbeat := indexEventsHeartbeatInterval
	indexEventsHeartbeatInterval = 2 * time.Second
	defer func() { indexEventsHeartbeatInterval = origHeartbeat }()

	srv, doc := newIndexedServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	reader := openIndexStream(t, ts)
	if _, _, err := readSSEEvent(reader); err != nil {
		t.Fatalf("failed to read first event: %v", err)
	}

	if err := doc.Append("#thread", userTurn(3, "Why is my channel deadlocking?")); err != nil {
		t.Fatalf("append: %v", err)
	}

	event, payload, err := readSSEEvent(reader)
	if err != nil {
		t.Fatalf("failed to read second event: %v", err)
	}
	if event != "index" || !strings.Contains(payload, "channel deadlocking") {
		t.Fatalf("expected updated index, got %s %s", event, payload)
	}
}

func TestIndexEventsActivationThenValidated(t *testing.T) {
	srv := NewServer(Config{})
	defer srv.Shutdown(context.Background())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	reader := openIndexStream(t, ts)
	event, payload, err := readSSEEvent(reader)
	if err != nil {
		t.Fatalf("read gate event: %v", err)
	}
	if event != "activation-required" || !strings.Contains(payload, "License activation required") {
		t.Fatalf("unexpected gate event %s %s", event, payload)
	}

	doc := newTestPage(t, userTurn(1, "How do I reverse a linked list?"))
	srv.SetSource(newTestEngine(t, doc))

	event, _, err = readSSEEvent(reader)
	if err != nil {
		t.Fatalf("read validated event: %v", err)
	}
	if event != "validated" {
		t.Fatalf("expected validated, got %q", event)
	}
	event, payload, err = readSSEEvent(reader)
	if err != nil {
		t.Fatalf("read index event: %v", err)
	}
	if event != "index" || !strings.Contains(payload, "linked list") {
		t.Fatalf("unexpected index event %s %s", event, payload)
	}
}

func TestIndexFingerprintStable(t *testing.T) {
	a := engine.IndexReply{Index: []engine.MessageEntry{{ID: "m-1", Text: "one"}}, ConversationID: "c"}
	b := engine.IndexReply{Index: []engine.MessageEntry{{ID: "m-1", Text: "one"}}, ConversationID: "c"}
	c := engine.IndexReply{Index: []engine.MessageEntry{{ID: "m-2", Text: "two"}}, ConversationID: "c"}

	if indexFingerprint(a) != indexFingerprint(b) {
		t.Fatal("equal replies should share a fingerprint")
	}
	if indexFingerprint(a) == indexFingerprint(c) {
		t.Fatal("different replies should not share a fingerprint")
	}
}

func readSSEEvent(reader *bufio.Reader) (string, string, error) {
	var event string
	var dataLines []string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if event == "" && len(dataLines) == 0 {
				continue
			}
			return event, strings.Join(dataLines, "\n"), nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}
