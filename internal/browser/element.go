package browser

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/asheshgoplani/chatjump/internal/dom"
)

type element struct {
	el  *rod.Element
	tag string
}

var _ dom.Element = (*element)(nil)

func wrap(el *rod.Element) *element {
	return &element{el: el}
}

func wrapAll(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, wrap(el))
	}
	return out
}

func (e *element) TagName() string {
	if e.tag != "" {
		return e.tag
	}
	res, err := e.el.Eval(`function() { return this.tagName || ""; }`)
	if err != nil {
		return ""
	}
	e.tag = res.Value.Str()
	return e.tag
}

func (e *element) Attr(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", fmt.Errorf("attribute %s: %w", name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *element) Text() (string, error) {
	res, err := e.el.Eval(`function() { return this.innerText || ""; }`)
	if err != nil {
		return "", fmt.Errorf("inner text: %w", err)
	}
	return res.Value.Str(), nil
}

func (e *element) NextElementSibling() (dom.Element, error) {
	res, err := e.el.Eval(`function() { return this.nextElementSibling !== null; }`)
	if err != nil {
		return nil, fmt.Errorf("next sibling: %w", err)
	}
	if !res.Value.Bool() {
		return nil, nil
	}
	next, err := e.el.Next()
	if err != nil {
		return nil, fmt.Errorf("next sibling: %w", err)
	}
	return wrap(next), nil
}

func (e *element) QuerySelector(selector string) (dom.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return wrap(els[0]), nil
}

func (e *element) QuerySelectorAll(selector string) ([]dom.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapAll(els), nil
}

func (e *element) Matches(selector string) (bool, error) {
	ok, err := e.el.Matches(selector)
	if err != nil {
		return false, fmt.Errorf("matches %q: %w", selector, err)
	}
	return ok, nil
}

func (e *element) ScrollIntoView() error {
	if _, err := e.el.Eval(`function() { this.scrollIntoView({ behavior: "smooth", block: "center" }); }`); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	return nil
}

func (e *element) SetOutline(style string) error {
	if _, err := e.el.Eval(`function(s) { this.style.outline = s; }`, style); err != nil {
		return fmt.Errorf("set outline: %w", err)
	}
	return nil
}
