package htmldoc

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/asheshgoplani/chatjump/internal/dom"
)

type element struct {
	doc *Document
	n   *html.Node
}

var _ dom.Element = (*element)(nil)

func (e *element) TagName() string {
	return strings.ToUpper(e.n.Data)
}

func (e *element) Attr(name string) (string, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return getAttr(e.n, name), nil
}

func (e *element) Text() (string, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return textContent(e.n), nil
}

func (e *element) NextElementSibling() (dom.Element, error) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for s := e.n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return &element{doc: e.doc, n: s}, nil
		}
	}
	return nil, nil
}

func (e *element) QuerySelector(selector string) (dom.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if n := cascadia.Query(e.n, sel); n != nil {
		return &element{doc: e.doc, n: n}, nil
	}
	return nil, nil
}

func (e *element) QuerySelectorAll(selector string) ([]dom.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.wrap(cascadia.QueryAll(e.n, sel)), nil
}

func (e *element) Matches(selector string) (bool, error) {
	sel, err := compile(selector)
	if err != nil {
		return false, err
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return sel.Match(e.n), nil
}

func (e *element) ScrollIntoView() error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !e.doc.attached(e.n) {
		return dom.ErrDetached
	}
	e.doc.scrolled = append(e.doc.scrolled, e.n)
	return nil
}

func (e *element) SetOutline(style string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if style == "" {
		setAttr(e.n, "style", "")
		return nil
	}
	if !e.doc.attached(e.n) {
		return dom.ErrDetached
	}
	setAttr(e.n, "style", "outline: "+style)
	return nil
}
