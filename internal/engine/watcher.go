package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/asheshgoplani/chatjump/internal/dom"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

// WatcherState is the lifecycle of a Watcher.
type WatcherState int

const (
	WatcherIdle WatcherState = iota
	WatcherObserving
	WatcherStopped
)

func (s WatcherState) String() string {
	switch s {
	case WatcherIdle:
		return "idle"
	case WatcherObserving:
		return "observing"
	case WatcherStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WatcherState(%d)", int(s))
	}
}

// Watcher feeds newly attached nodes to the engine and schedules full
// sweeps for content that shows up without a mutation. Every method except
// the adapter callbacks runs on the engine loop.
type Watcher struct {
	page     dom.Page
	scanner  *Scanner
	root     string
	resweeps []time.Duration
	debounce time.Duration

	// post schedules fn on the engine loop; false once the engine is closed.
	post   func(fn func()) bool
	ingest func(el dom.Element) bool
	sweep  func(reason string)

	state       WatcherState
	timers      []*time.Timer
	scrollTimer *time.Timer
	stopObserve func()
	stopScroll  func()

	log *slog.Logger
}

func newWatcher(page dom.Page, scanner *Scanner, cfg Config, post func(func()) bool, ingest func(dom.Element) bool, sweep func(string)) *Watcher {
	return &Watcher{
		page:     page,
		scanner:  scanner,
		root:     cfg.ObserveRoot,
		resweeps: cfg.ResweepDelays,
		debounce: cfg.ScrollDebounce,
		post:     post,
		ingest:   ingest,
		sweep:    sweep,
		log:      logging.ForComponent(logging.CompWatcher),
	}
}

// State returns the current lifecycle state.
func (w *Watcher) State() WatcherState { return w.state }

// start subscribes to mutations and scrolling, sweeps once and arms the
// scheduled re-sweeps.
func (w *Watcher) start() error {
	if w.state != WatcherIdle {
		return nil
	}

	stop, err := w.page.Observe(w.root, func(added []dom.Element) {
		w.post(func() { w.handleAdded(added) })
	})
	if err != nil {
		return fmt.Errorf("observe %s: %w", w.root, err)
	}
	w.stopObserve = stop
	w.state = WatcherObserving

	w.sweep("initial")

	for _, d := range w.resweeps {
		w.timers = append(w.timers, time.AfterFunc(d, func() {
			w.post(func() {
				if w.state == WatcherObserving {
					w.sweep("scheduled")
				}
			})
		}))
	}

	stopScroll, err := w.page.OnScroll(func() {
		w.post(w.onScroll)
	})
	if err != nil {
		w.log.Warn("scroll_subscribe_failed", slog.String("error", err.Error()))
	} else {
		w.stopScroll = stopScroll
	}

	w.log.Info("watcher_started",
		slog.String("root", w.root),
		slog.Int("resweeps", len(w.resweeps)),
	)
	return nil
}

func (w *Watcher) onScroll() {
	if w.state != WatcherObserving {
		return
	}
	if w.scrollTimer != nil {
		w.scrollTimer.Stop()
	}
	w.scrollTimer = time.AfterFunc(w.debounce, func() {
		w.post(func() {
			if w.state == WatcherObserving {
				w.sweep("scroll")
			}
		})
	})
}

// handleAdded classifies each added container and every article below it.
// A failing node is skipped.
func (w *Watcher) handleAdded(added []dom.Element) {
	if w.state != WatcherObserving {
		return
	}
	for _, el := range added {
		w.handleNode(el)
	}
}

func (w *Watcher) handleNode(el dom.Element) {
	defer func() {
		if r := recover(); r != nil {
			logging.Aggregate(logging.CompWatcher, "mutation_node_failed")
		}
	}()

	if w.scanner.IsContainer(el) {
		w.ingest(el)
	}
	nested, err := w.scanner.Descendants(el)
	if err != nil {
		logging.Aggregate(logging.CompWatcher, "mutation_node_failed")
		return
	}
	for _, n := range nested {
		w.ingest(n)
	}
}

// stop cancels pending timers and detaches from the page.
func (w *Watcher) stop() {
	if w.state == WatcherStopped {
		return
	}
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = nil
	if w.scrollTimer != nil {
		w.scrollTimer.Stop()
		w.scrollTimer = nil
	}
	if w.stopObserve != nil {
		w.stopObserve()
		w.stopObserve = nil
	}
	if w.stopScroll != nil {
		w.stopScroll()
		w.stopScroll = nil
	}
	w.state = WatcherStopped
	w.log.Info("watcher_stopped")
}
