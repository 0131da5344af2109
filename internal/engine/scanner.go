package engine

import (
	"log/slog"

	"github.com/asheshgoplani/chatjump/internal/dom"
	"github.com/asheshgoplani/chatjump/internal/logging"
)

// Scanner enumerates message containers with a selector fallback chain:
// the first tier that matches anything wins.
type Scanner struct {
	doc   dom.Document
	tiers []string
	log   *slog.Logger
}

// NewScanner creates a scanner over doc. Empty tiers use DefaultSelectors.
func NewScanner(doc dom.Document, tiers []string) *Scanner {
	if len(tiers) == 0 {
		tiers = DefaultSelectors
	}
	return &Scanner{
		doc:   doc,
		tiers: tiers,
		log:   logging.ForComponent(logging.CompEngine),
	}
}

// ScanAll re-queries the document and returns the current containers. A tier
// whose query fails is treated as empty.
func (s *Scanner) ScanAll() []dom.Element {
	for _, sel := range s.tiers {
		found, err := s.doc.QuerySelectorAll(sel)
		if err != nil {
			s.log.Debug("tier_query_failed", slog.String("selector", sel), slog.String("error", err.Error()))
			continue
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// Descendants returns the containers nested under el, using the first tier
// that matches inside it and falling back to plain articles. el itself is
// never included, and each node appears at most once.
func (s *Scanner) Descendants(el dom.Element) ([]dom.Element, error) {
	var lastErr error
	for _, sel := range s.descendantTiers() {
		found, err := el.QuerySelectorAll(sel)
		if err != nil {
			lastErr = err
			continue
		}
		if len(found) > 0 {
			return found, nil
		}
	}
	return nil, lastErr
}

func (s *Scanner) descendantTiers() []string {
	for _, sel := range s.tiers {
		if sel == "article" {
			return s.tiers
		}
	}
	return append(s.tiers[:len(s.tiers):len(s.tiers)], "article")
}

// IsContainer reports whether el is an article or matches any tier.
func (s *Scanner) IsContainer(el dom.Element) bool {
	if el.TagName() == "ARTICLE" {
		return true
	}
	for _, sel := range s.tiers {
		if ok, err := el.Matches(sel); err == nil && ok {
			return true
		}
	}
	return false
}
