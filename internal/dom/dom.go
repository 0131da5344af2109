// Package dom describes the small slice of a browser document the indexing
// engine needs. Implementations exist for a live Chrome tab (internal/browser)
// and for parsed HTML (internal/dom/htmldoc).
package dom

import "errors"

// ErrDetached is returned by element operations once the node has left the
// document or its handle is no longer valid.
var ErrDetached = errors.New("element detached")

// Element is a handle to one element node. Handles are short-lived: callers
// re-query the document instead of keeping them across sweeps.
type Element interface {
	// TagName is upper-case, as in the DOM ("ARTICLE").
	TagName() string

	// Attr returns the attribute value, or "" when it is absent.
	Attr(name string) (string, error)

	// Text returns the rendered text, untrimmed.
	Text() (string, error)

	// NextElementSibling returns nil when there is none.
	NextElementSibling() (Element, error)

	// QuerySelector returns the first matching descendant or nil.
	QuerySelector(selector string) (Element, error)

	// QuerySelectorAll returns matching descendants in document order.
	QuerySelectorAll(selector string) ([]Element, error)

	// Matches reports whether the element itself matches selector.
	Matches(selector string) (bool, error)

	// ScrollIntoView scrolls smoothly with the element centered.
	ScrollIntoView() error

	// SetOutline sets the inline outline style; "" clears it.
	SetOutline(style string) error
}

// Document is a queryable tree with an address.
type Document interface {
	// QuerySelectorAll runs selector against the whole document.
	QuerySelectorAll(selector string) ([]Element, error)

	// Location is the page URL.
	Location() string
}

// Page is a Document that reports changes.
type Page interface {
	Document

	// Observe reports elements attached anywhere under the element matched by
	// root. The callback may run on any goroutine. stop detaches.
	Observe(root string, onAdded func(added []Element)) (stop func(), err error)

	// OnScroll reports scroll activity. The callback may run on any goroutine.
	OnScroll(fn func()) (stop func(), err error)
}
