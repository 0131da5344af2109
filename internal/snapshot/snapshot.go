// Package snapshot serves a saved chat page from disk as a dom.Page. When
// watched, rewrites of the file are re-parsed and reported to observers as
// fresh content.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/chatjump/internal/dom/htmldoc"
	"github.com/asheshgoplani/chatjump/internal/logging"
	"github.com/asheshgoplani/chatjump/internal/platform"
)

var snapLog = logging.ForComponent(logging.CompSnapshot)

// DefaultDebounce coalesces the burst of events an editor or browser "save
// page" produces.
const DefaultDebounce = 100 * time.Millisecond

// FilePage is a dom.Page backed by an HTML file.
type FilePage struct {
	*htmldoc.Document

	path     string
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	reloads int
	cancel  context.CancelFunc
	done    chan struct{}
}

// Open parses the file at path. The page location is the document's
// canonical URL when it declares one, otherwise a file:// URL.
func Open(path string) (*FilePage, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	// fsnotify reports resolved paths.
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	doc, err := htmldoc.Parse(bytes.NewReader(data), fileURL(abs))
	if err != nil {
		return nil, err
	}
	if canon := canonicalURL(doc); canon != "" {
		doc.SetLocation(canon)
	}
	return &FilePage{Document: doc, path: abs, debounce: DefaultDebounce}, nil
}

// Path returns the absolute file path.
func (p *FilePage) Path() string { return p.path }

// Reloads counts completed re-reads.
func (p *FilePage) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Watch re-reads the file whenever it changes until ctx is cancelled or
// Close is called. The parent directory is watched so atomic renames are
// seen.
func (p *FilePage) Watch(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.watcher = w
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, w, p.done)

	snapLog.Info("snapshot_watching", slog.String("path", p.path))
	if warn := platform.WatchWarning(p.path); warn != "" {
		snapLog.Warn("snapshot_watch_unreliable", slog.String("path", p.path), slog.String("reason", warn))
	}
	return nil
}

func (p *FilePage) run(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			p.schedule()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			snapLog.Warn("snapshot_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (p *FilePage) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		if err := p.Reload(); err != nil {
			snapLog.Warn("snapshot_reload_failed", slog.String("path", p.path), slog.String("error", err.Error()))
		}
	})
}

// Reload re-reads the file now. A vanished or half-written file leaves the
// current tree in place.
func (p *FilePage) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("read snapshot: empty file")
	}
	if err := p.Replace(bytes.NewReader(data)); err != nil {
		return err
	}

	p.mu.Lock()
	p.reloads++
	n := p.reloads
	p.mu.Unlock()
	snapLog.Debug("snapshot_reloaded", slog.String("path", p.path), slog.Int("reloads", n))
	return nil
}

// Close stops watching.
func (p *FilePage) Close() error {
	p.mu.Lock()
	w, cancel, done := p.watcher, p.cancel, p.done
	p.watcher = nil
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()

	if w == nil {
		return nil
	}
	cancel()
	err := w.Close()
	<-done
	return err
}

func fileURL(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// canonicalURL picks the address a saved page came from.
func canonicalURL(doc *htmldoc.Document) string {
	for _, sel := range []string{`link[rel="canonical"]`, `meta[property="og:url"]`} {
		els, err := doc.QuerySelectorAll(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		attr := "href"
		if els[0].TagName() == "META" {
			attr = "content"
		}
		if v, _ := els[0].Attr(attr); v != "" {
			return v
		}
	}
	return ""
}
