package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asheshgoplani/chatjump/internal/dom"
	"github.com/asheshgoplani/chatjump/internal/dom/htmldoc"
)

func userTurn(n int, text string) string {
	return fmt.Sprintf(`<article data-testid="conversation-turn-%d"><div data-message-author-role="user">%s</div></article>`, n, text)
}

func assistantTurn(n int, text string) string {
	return fmt.Sprintf(`<article data-testid="conversation-turn-%d"><div data-message-author-role="assistant">%s</div></article>`, n, text)
}

func newDoc(t *testing.T, body ...string) *htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.ParseString(
		`<html><body><main id="thread">`+strings.Join(body, "")+`</main><div id="lazy"></div></body></html>`,
		"https://chatgpt.com/c/abc-123",
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func firstElement(t *testing.T, doc dom.Document, sel string) dom.Element {
	t.Helper()
	els, err := doc.QuerySelectorAll(sel)
	if err != nil || len(els) == 0 {
		t.Fatalf("no element for %q (err=%v)", sel, err)
	}
	return els[0]
}

// quietConfig disables timers so tests control every sweep.
func quietConfig() Config {
	return Config{
		ResweepDelays:  []time.Duration{},
		ScrollDebounce: time.Hour,
		Highlight:      20 * time.Millisecond,
	}
}

func startEngine(t *testing.T, page dom.Page, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e := New(page, cfg, opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func fixedClock() func() time.Time {
	at := time.UnixMilli(1700000000000)
	return func() time.Time { return at }
}

type memPersister struct {
	mu      sync.Mutex
	loaded  []MessageEntry
	saved   [][]MessageEntry
	loadErr error
}

func (m *memPersister) LoadIndex(ctx context.Context) ([]MessageEntry, error) {
	return m.loaded, m.loadErr
}

func (m *memPersister) SaveIndex(ctx context.Context, entries []MessageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, entries)
	return nil
}

func (m *memPersister) last() []MessageEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

// countingPage counts document queries so tests can tell whether a sweep ran.
type countingPage struct {
	dom.Page
	mu      sync.Mutex
	queries int
}

func (p *countingPage) QuerySelectorAll(sel string) ([]dom.Element, error) {
	p.mu.Lock()
	p.queries++
	p.mu.Unlock()
	return p.Page.QuerySelectorAll(sel)
}

func (p *countingPage) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

// brokenElement fails every call.
type brokenElement struct{}

func (brokenElement) TagName() string                                { return "ARTICLE" }
func (brokenElement) Attr(string) (string, error)                    { return "", dom.ErrDetached }
func (brokenElement) Text() (string, error)                          { return "", dom.ErrDetached }
func (brokenElement) NextElementSibling() (dom.Element, error)       { return nil, dom.ErrDetached }
func (brokenElement) QuerySelector(string) (dom.Element, error)      { return nil, dom.ErrDetached }
func (brokenElement) QuerySelectorAll(string) ([]dom.Element, error) { return nil, dom.ErrDetached }
func (brokenElement) Matches(string) (bool, error)                   { return false, dom.ErrDetached }
func (brokenElement) ScrollIntoView() error                          { return dom.ErrDetached }
func (brokenElement) SetOutline(string) error                        { return dom.ErrDetached }

// panickyElement panics on Text.
type panickyElement struct{ brokenElement }

func (panickyElement) Text() (string, error) { panic("adapter bug") }
