package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asheshgoplani/chatjump/internal/dom/htmldoc"
	"github.com/asheshgoplani/chatjump/internal/engine"
	"github.com/asheshgoplani/chatjump/internal/license"
)

func userTurn(n int, text string) string {
	return fmt.Sprintf(`<article data-testid="conversation-turn-%d"><div data-message-author-role="user">%s</div></article>`, n, text)
}

func newTestPage(t *testing.T, turns ...string) *htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.ParseString(
		`<html><body><main id="thread">`+strings.Join(turns, "")+`</main></body></html>`,
		"https://chatgpt.com/c/conv-1",
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func newTestEngine(t *testing.T, doc *htmldoc.Document) *engine.Engine {
	t.Helper()
	e := engine.New(doc, engine.Config{
		ResweepDelays:  []time.Duration{},
		ScrollDebounce: time.Hour,
		Highlight:      20 * time.Millisecond,
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

// newIndexedServer returns a server already serving a page with two questions.
func newIndexedServer(t *testing.T, cfg Config) (*Server, *htmldoc.Document) {
	t.Helper()
	doc := newTestPage(t,
		userTurn(1, "How do I reverse a linked list?"),
		userTurn(2, "Explain goroutine scheduling please"),
	)
	srv := NewServer(cfg)
	srv.SetSource(newTestEngine(t, doc))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, doc
}

func TestHealthzEndpoint(t *testing.T) {
	srv := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
		Profile:    "test",
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{`"ok":true`, `"profile":"test"`, `"indexing":false`, `"license":"activation-required"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected health response to contain %s, got: %s", want, body)
		}
	}
}

func TestHealthzReportsIndexing(t *testing.T) {
	srv, _ := newIndexedServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	if !strings.Contains(body, `"indexing":true`) || !strings.Contains(body, `"license":"validated"`) {
		t.Fatalf("unexpected health body: %s", body)
	}
}

func TestHealthzMethodNotAllowed(t *testing.T) {
	srv := NewServer(Config{
		ListenAddr: "127.0.0.1:0",
	})

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestSidebarPageServed(t *testing.T) {
	srv := NewServer(Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected html content-type, got: %s", ct)
	}
	for _, want := range []string{`id="search"`, `id="list"`, "/static/sidebar.js"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Fatalf("expected %s in sidebar html", want)
		}
	}
}

func TestSidebarScriptServed(t *testing.T) {
	srv := NewServer(Config{})

	req := httptest.NewRequest(http.MethodGet, "/static/sidebar.js", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"No questions indexed yet.", "question(s)", "/events/index"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in sidebar script", want)
		}
	}
}

func TestUnknownPathNotFound(t *testing.T) {
	srv := NewServer(Config{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestSetLicenseStoresMessage(t *testing.T) {
	srv := NewServer(Config{})
	srv.SetLicense(license.Result{Status: license.StatusActivationRequired, Message: "Key expired"})

	req := httptest.NewRequest(http.MethodGet, "/api/index", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"message":"Key expired"`) {
		t.Fatalf("expected gate message, got: %s", rr.Body.String())
	}
}

func TestSourceDetachedWhenEngineCloses(t *testing.T) {
	doc := newTestPage(t, userTurn(1, "How do I reverse a linked list?"))
	e := newTestEngine(t, doc)
	srv := NewServer(Config{})
	srv.SetSource(e)
	e.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if src, _ := srv.state(); src == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected source to be detached after engine close")
}

func TestServerShutdownWithoutStart(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
