// Package htmldoc is an in-memory dom.Page backed by golang.org/x/net/html
// and cascadia selectors. It serves saved snapshots and tests; mutations
// made through Append, Remove and Replace are reported to observers the way
// a MutationObserver would report them.
package htmldoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/asheshgoplani/chatjump/internal/dom"
)

// Document is a parsed HTML tree. It is safe for concurrent use.
type Document struct {
	mu       sync.RWMutex
	root     *html.Node
	location string

	subMu     sync.Mutex
	nextSub   int
	observers map[int]observer
	scrollers map[int]func()

	scrolled []*html.Node
}

type observer struct {
	root string
	fn   func([]dom.Element)
}

var _ dom.Page = (*Document)(nil)

// Parse reads an HTML document.
func Parse(r io.Reader, location string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		root:      root,
		location:  location,
		observers: make(map[int]observer),
		scrollers: make(map[int]func()),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(s, location string) (*Document, error) {
	return Parse(strings.NewReader(s), location)
}

// Location implements dom.Document.
func (d *Document) Location() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.location
}

// SetLocation changes the page address.
func (d *Document) SetLocation(loc string) {
	d.mu.Lock()
	d.location = loc
	d.mu.Unlock()
}

// QuerySelectorAll implements dom.Document.
func (d *Document) QuerySelectorAll(selector string) ([]dom.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrap(cascadia.QueryAll(d.root, sel)), nil
}

// HTML renders the current tree.
func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

// Observe implements dom.Page.
func (d *Document) Observe(root string, onAdded func([]dom.Element)) (func(), error) {
	sel, err := compile(root)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	found := cascadia.Query(d.root, sel) != nil
	d.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("observe: no element matches %q", root)
	}

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.observers[id] = observer{root: root, fn: onAdded}
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		delete(d.observers, id)
		d.subMu.Unlock()
	}, nil
}

// OnScroll implements dom.Page.
func (d *Document) OnScroll(fn func()) (func(), error) {
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.scrollers[id] = fn
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		delete(d.scrollers, id)
		d.subMu.Unlock()
	}, nil
}

// Scroll simulates a user scroll.
func (d *Document) Scroll() {
	d.subMu.Lock()
	fns := make([]func(), 0, len(d.scrollers))
	for _, fn := range d.scrollers {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Append parses fragment and appends it to the first element matching
// parent, then notifies observers.
func (d *Document) Append(parent, fragment string) error {
	sel, err := compile(parent)
	if err != nil {
		return err
	}

	d.mu.Lock()
	p := cascadia.Query(d.root, sel)
	if p == nil {
		d.mu.Unlock()
		return fmt.Errorf("append: no element matches %q", parent)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), p)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("parse fragment: %w", err)
	}
	var added []*html.Node
	for _, n := range nodes {
		p.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, n)
		}
	}
	d.mu.Unlock()

	d.notify(p, added)
	return nil
}

// Remove detaches every element matching selector.
func (d *Document) Remove(selector string) (int, error) {
	sel, err := compile(selector)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := cascadia.QueryAll(d.root, sel)
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return len(nodes), nil
}

// Replace swaps the whole tree for a newly parsed document. The children of
// the new body are reported as added.
func (d *Document) Replace(r io.Reader) error {
	root, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	d.mu.Lock()
	d.root = root
	body := findBody(root)
	var added []*html.Node
	if body != nil {
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				added = append(added, c)
			}
		}
	}
	d.mu.Unlock()

	if body != nil {
		d.notify(body, added)
	}
	return nil
}

// Scrolled returns the trimmed text of every element scrolled into view, in
// order.
func (d *Document) Scrolled() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.scrolled))
	for _, n := range d.scrolled {
		out = append(out, strings.TrimSpace(textContent(n)))
	}
	return out
}

func (d *Document) notify(parent *html.Node, added []*html.Node) {
	if len(added) == 0 {
		return
	}

	d.subMu.Lock()
	obs := make([]observer, 0, len(d.observers))
	for _, o := range d.observers {
		obs = append(obs, o)
	}
	d.subMu.Unlock()

	for _, o := range obs {
		sel, err := compile(o.root)
		if err != nil {
			continue
		}
		d.mu.RLock()
		root := cascadia.Query(d.root, sel)
		inside := root != nil && (root == parent || contains(root, parent))
		elems := d.wrap(added)
		d.mu.RUnlock()
		if inside {
			o.fn(elems)
		}
	}
}

func (d *Document) wrap(nodes []*html.Node) []dom.Element {
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{doc: d, n: n})
	}
	return out
}

// attached reports whether n is still part of the current tree. Caller holds
// d.mu.
func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func compile(selector string) (cascadia.SelectorGroup, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel, nil
}

func contains(ancestor, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Key == name {
			if val == "" {
				n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			} else {
				n.Attr[i].Val = val
			}
			return
		}
	}
	if val != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
	}
}
