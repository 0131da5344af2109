package engine

import (
	"log/slog"
	"time"

	"github.com/asheshgoplani/chatjump/internal/dom"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

// HighlightStyle is the outline applied to the navigation target.
const HighlightStyle = "3px solid #ffd54f"

// Navigator resolves an id against the live document and brings the node
// into view. Matching always re-scans; only the node currently outlined is
// held, until its highlight timer fires or is stopped.
type Navigator struct {
	scanner    *Scanner
	classifier *Classifier
	index      *Index
	highlight  time.Duration
	log        *slog.Logger

	// Owned by the engine loop.
	timer  *time.Timer
	target dom.Element
}

func newNavigator(scanner *Scanner, classifier *Classifier, index *Index, highlight time.Duration) *Navigator {
	return &Navigator{
		scanner:    scanner,
		classifier: classifier,
		index:      index,
		highlight:  highlight,
		log:        logging.ForComponent(logging.CompNavigator),
	}
}

// GotoByID scrolls to the first node whose recomputed id equals id, or whose
// text equals the indexed text for id, and outlines it briefly. It returns
// false and touches nothing when no node matches.
func (n *Navigator) GotoByID(id string) bool {
	stored, hasStored := n.index.Get(id)

	for _, el := range n.scanner.ScanAll() {
		guess, text, err := n.classifier.candidate(el)
		if err != nil || text == "" {
			continue
		}
		if guess != id && !(hasStored && text == stored.Text) {
			continue
		}

		if err := el.ScrollIntoView(); err != nil {
			n.log.Debug("scroll_failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		n.clearHighlight()
		if err := el.SetOutline(HighlightStyle); err != nil {
			n.log.Debug("outline_failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		target := el
		n.target = target
		n.timer = time.AfterFunc(n.highlight, func() {
			_ = target.SetOutline("")
		})

		n.log.Info("goto_matched", slog.String("id", id), slog.Bool("by_text", guess != id))
		return true
	}

	n.log.Info("goto_missed", slog.String("id", id))
	return false
}

// clearHighlight removes the outline left by the previous goto, if its
// timer has not fired yet.
func (n *Navigator) clearHighlight() {
	if n.timer == nil {
		return
	}
	if n.timer.Stop() {
		_ = n.target.SetOutline("")
	}
	n.timer = nil
	n.target = nil
}

// stop cancels a pending highlight clear. The outline stays on the page.
func (n *Navigator) stop() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
		n.target = nil
	}
}
