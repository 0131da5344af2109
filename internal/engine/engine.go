// Package engine indexes the user-authored messages of a chat page and
// navigates back to them.
//
// An Engine owns one page. All index reads and writes run on a single event
// loop goroutine; page callbacks, timers and external requests are posted to
// it and run to completion in arrival order.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/asheshgoplani/chatjump/internal/config"
	"github.com/asheshgoplani/chatjump/internal/dom"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("engine closed")

// Defaults.
const (
	DefaultMaxEntries     = 300
	DefaultMinLength      = 10
	DefaultScrollDebounce = 500 * time.Millisecond
	DefaultHighlight      = 1600 * time.Millisecond
	DefaultObserveRoot    = "body"
)

// DefaultSelectors is the discovery chain, strictest first.
var DefaultSelectors = []string{"article[data-testid]", "article", "[data-message-id]"}

// DefaultResweepDelays are the one-shot sweeps after Start.
var DefaultResweepDelays = []time.Duration{2 * time.Second, 5 * time.Second}

// Config tunes an Engine. Zero fields take defaults.
type Config struct {
	MaxEntries     int
	QuestionPolicy string
	MinLength      int
	Selectors      []string
	ResweepDelays  []time.Duration
	ScrollDebounce time.Duration
	Highlight      time.Duration
	ObserveRoot    string
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	var c Config
	c.fill()
	return c
}

// FromSettings converts the [engine] config section.
func FromSettings(s config.EngineSettings) Config {
	c := Config{
		MaxEntries:     s.MaxEntries,
		QuestionPolicy: s.QuestionPolicy,
		MinLength:      s.MinLength,
		Selectors:      s.Selectors,
		ResweepDelays:  s.ResweepDelays(),
		ScrollDebounce: s.ScrollDebounce(),
		Highlight:      s.Highlight(),
	}
	c.fill()
	return c
}

func (c *Config) fill() {
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	if c.QuestionPolicy == "" {
		c.QuestionPolicy = PolicyMinimalLength
	}
	if len(c.Selectors) == 0 {
		c.Selectors = DefaultSelectors
	}
	// nil means defaults; an empty slice disables scheduled sweeps.
	if c.ResweepDelays == nil {
		c.ResweepDelays = DefaultResweepDelays
	}
	if c.ScrollDebounce <= 0 {
		c.ScrollDebounce = DefaultScrollDebounce
	}
	if c.Highlight <= 0 {
		c.Highlight = DefaultHighlight
	}
	if c.ObserveRoot == "" {
		c.ObserveRoot = DefaultObserveRoot
	}
}

// Persister mirrors the index to durable storage as one record.
type Persister interface {
	LoadIndex(ctx context.Context) ([]MessageEntry, error)
	SaveIndex(ctx context.Context, entries []MessageEntry) error
}

// IndexReply is the answer to a get-index request.
type IndexReply struct {
	Index          []MessageEntry `json:"index"`
	ConversationID string         `json:"conversationId"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithPersister mirrors the index through p.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithClock overrides the wall clock used for the ordinal fallback.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the indexing and navigation engine for one page.
type Engine struct {
	page           dom.Page
	cfg            Config
	conversationID string
	persister      Persister
	now            func() time.Time

	index      *Index
	classifier *Classifier
	scanner    *Scanner
	watcher    *Watcher
	navigator  *Navigator

	tasks   chan func()
	done    chan struct{}
	changes chan struct{}
	wg      sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once

	log *slog.Logger
}

// New builds an engine for page and starts its event loop. Call Start to
// begin indexing and Close to release it.
func New(page dom.Page, cfg Config, opts ...Option) *Engine {
	cfg.fill()
	e := &Engine{
		page:           page,
		cfg:            cfg,
		conversationID: ConversationID(page.Location()),
		now:            time.Now,
		index:          NewIndex(cfg.MaxEntries),
		tasks:          make(chan func(), 256),
		done:           make(chan struct{}),
		changes:        make(chan struct{}, 1),
		log:            logging.ForComponent(logging.CompEngine),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.classifier = NewClassifier(NewQuestionPolicy(cfg.QuestionPolicy, cfg.MinLength), func() time.Time { return e.now() })
	e.scanner = NewScanner(page, cfg.Selectors)
	e.watcher = newWatcher(page, e.scanner, cfg, e.post, e.ingest, e.sweepReason)
	e.navigator = newNavigator(e.scanner, e.classifier, e.index, cfg.Highlight)

	e.wg.Add(1)
	go e.loop()
	return e
}

func (e *Engine) loop() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.done:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the engine is closed.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.tasks <- fn:
		return true
	case <-e.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !e.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

// Start hydrates the index from the persister and starts watching the page.
// Cancelling ctx closes the engine.
func (e *Engine) Start(ctx context.Context) error {
	var startErr error
	e.startOnce.Do(func() {
		entries := 0
		err := e.call(ctx, func() {
			e.hydrate(ctx)
			startErr = e.watcher.start()
			entries = e.index.Len()
		})
		if err != nil {
			startErr = err
			return
		}
		if startErr != nil {
			return
		}
		go func() {
			select {
			case <-ctx.Done():
				e.Close()
			case <-e.done:
			}
		}()
		e.log.Info("engine_started",
			slog.String("conversation_id", e.conversationID),
			slog.Int("entries", entries),
		)
	})
	return startErr
}

func (e *Engine) hydrate(ctx context.Context) {
	if e.persister == nil {
		return
	}
	entries, err := e.persister.LoadIndex(ctx)
	if err != nil {
		e.log.Warn("index_load_failed", slog.String("error", err.Error()))
		return
	}
	if n := e.index.Load(entries); n > 0 {
		e.log.Info("index_hydrated", slog.Int("entries", n))
		e.notifyChange()
	}
}

// Close stops watching, cancels timers and ends the loop. Safe to call more
// than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		_ = e.call(context.Background(), func() {
			e.watcher.stop()
			e.navigator.stop()
		})
		close(e.done)
		e.wg.Wait()
		e.log.Info("engine_closed")
	})
}

// Done is closed once the engine is closed.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Changes fires (coalesced) after the index gains entries.
func (e *Engine) Changes() <-chan struct{} { return e.changes }

// ConversationID is derived once from the page location.
func (e *Engine) ConversationID() string { return e.conversationID }

// IndexReply returns a copy of the index.
func (e *Engine) IndexReply(ctx context.Context) (IndexReply, error) {
	var reply IndexReply
	err := e.call(ctx, func() {
		reply = IndexReply{Index: e.index.Entries(), ConversationID: e.conversationID}
	})
	return reply, err
}

// Search returns the entries whose text contains q, ignoring case.
func (e *Engine) Search(ctx context.Context, q string) (IndexReply, error) {
	var reply IndexReply
	err := e.call(ctx, func() {
		reply = IndexReply{Index: e.index.Filter(q), ConversationID: e.conversationID}
	})
	return reply, err
}

// Goto navigates to id. ok is false when no live node matches.
func (e *Engine) Goto(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := e.call(ctx, func() {
		ok = e.navigator.GotoByID(id)
	})
	return ok, err
}

// Sweep runs a full scan now and returns how many entries were added.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	var added int
	err := e.call(ctx, func() {
		added = e.sweep("manual")
	})
	return added, err
}

// WatcherState reports the watcher lifecycle.
func (e *Engine) WatcherState(ctx context.Context) (WatcherState, error) {
	var st WatcherState
	err := e.call(ctx, func() { st = e.watcher.State() })
	return st, err
}

func (e *Engine) sweepReason(reason string) { e.sweep(reason) }

func (e *Engine) sweep(reason string) int {
	nodes := e.scanner.ScanAll()
	added := 0
	for _, el := range nodes {
		if e.ingest(el) {
			added++
		}
	}
	logging.Aggregate(logging.CompWatcher, "sweep", slog.String("reason", reason))
	if added > 0 {
		e.log.Debug("sweep_added",
			slog.String("reason", reason),
			slog.Int("found", len(nodes)),
			slog.Int("added", added),
		)
	}
	return added
}

// ingest classifies el and records it on acceptance.
func (e *Engine) ingest(el dom.Element) bool {
	entry, ok := e.classifier.Classify(el, e.index)
	if !ok {
		return false
	}
	if !e.index.Insert(entry) {
		return false
	}
	e.persist()
	e.notifyChange()
	return true
}

func (e *Engine) persist() {
	if e.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.persister.SaveIndex(ctx, e.index.Entries()); err != nil {
		e.log.Warn("index_save_failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) notifyChange() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}
