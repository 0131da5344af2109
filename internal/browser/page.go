package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/asheshgoplani/chatjump/internal/dom"
)

// Binding names installed on window.
const (
	addedBinding  = "__chatjumpAdded"
	scrollBinding = "__chatjumpScroll"
	batchAttr     = "data-chatjump-batch"
)

// ReadyPoll is the readiness polling interval.
const ReadyPoll = 300 * time.Millisecond

// Page adapts a rod page to dom.Page.
type Page struct {
	rod *rod.Page

	mu       sync.Mutex
	observed bool
	scroll   bool
}

var _ dom.Page = (*Page)(nil)

func newPage(p *rod.Page) *Page {
	return &Page{rod: p}
}

// Rod returns the underlying page.
func (p *Page) Rod() *rod.Page { return p.rod }

// Location implements dom.Document.
func (p *Page) Location() string {
	res, err := p.rod.Eval(`() => location.href`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// QuerySelectorAll implements dom.Document.
func (p *Page) QuerySelectorAll(selector string) ([]dom.Element, error) {
	els, err := p.rod.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapAll(els), nil
}

// WaitReady polls until the document finished loading or already shows an
// article, whichever comes first.
func (p *Page) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(ReadyPoll)
	defer ticker.Stop()
	for {
		res, err := p.rod.Context(ctx).Eval(
			`() => document.readyState === "complete" || !!document.querySelector("article")`)
		if err == nil && res.Value.Bool() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for page ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Observe implements dom.Page. A MutationObserver in the page tags each
// batch of added elements and reports the batch number through a binding;
// the tagged elements are then fetched and handed to onAdded.
func (p *Page) Observe(root string, onAdded func([]dom.Element)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.observed {
		return nil, errors.New("observe: page already observed")
	}

	stopBinding, err := p.rod.Expose(addedBinding, func(arg gson.JSON) (interface{}, error) {
		batch := arg.Int()
		els, err := p.rod.Elements(`[` + batchAttr + `="` + strconv.Itoa(batch) + `"]`)
		if err != nil {
			browserLog.Debug("batch_fetch_failed", slog.Int("batch", batch), slog.String("error", err.Error()))
			return nil, nil
		}
		if len(els) > 0 {
			onAdded(wrapAll(els))
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("expose %s: %w", addedBinding, err)
	}

	res, err := p.rod.Eval(observerJS, root, addedBinding, batchAttr)
	if err != nil {
		_ = stopBinding()
		return nil, fmt.Errorf("install observer: %w", err)
	}
	if !res.Value.Bool() {
		_ = stopBinding()
		return nil, fmt.Errorf("observe: no element matches %q", root)
	}
	p.observed = true
	browserLog.Info("observer_installed", slog.String("root", root))

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		_, _ = p.rod.Eval(`() => { if (window.__chatjumpObserver) { window.__chatjumpObserver.disconnect(); window.__chatjumpObserver = null; } }`)
		_ = stopBinding()
		p.observed = false
	}, nil
}

// OnScroll implements dom.Page.
func (p *Page) OnScroll(fn func()) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scroll {
		return nil, errors.New("on scroll: already subscribed")
	}

	stopBinding, err := p.rod.Expose(scrollBinding, func(gson.JSON) (interface{}, error) {
		fn()
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("expose %s: %w", scrollBinding, err)
	}
	if _, err := p.rod.Eval(scrollJS, scrollBinding); err != nil {
		_ = stopBinding()
		return nil, fmt.Errorf("install scroll listener: %w", err)
	}
	p.scroll = true

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		_, _ = p.rod.Eval(`() => { if (window.__chatjumpScrollOff) { window.__chatjumpScrollOff(); } }`)
		_ = stopBinding()
		p.scroll = false
	}, nil
}

// observerJS reports childList additions under root. Each batch gets a
// fresh number written to batchAttr on the added elements.
const observerJS = `(root, binding, attr) => {
	const target = document.querySelector(root);
	if (!target) return false;
	if (window.__chatjumpObserver) window.__chatjumpObserver.disconnect();
	let seq = 0;
	const obs = new MutationObserver((mutations) => {
		const batch = ++seq;
		let tagged = 0;
		for (const m of mutations) {
			for (const n of m.addedNodes) {
				if (n.nodeType !== 1) continue;
				n.setAttribute(attr, String(batch));
				tagged++;
			}
		}
		if (tagged > 0 && typeof window[binding] === "function") {
			window[binding](batch);
		}
	});
	obs.observe(target, { childList: true, subtree: true });
	window.__chatjumpObserver = obs;
	return true;
}`

// scrollJS forwards scroll activity, at most every 100ms. Capture mode sees
// scrolling of inner containers too.
const scrollJS = `(binding) => {
	if (window.__chatjumpScrollOff) window.__chatjumpScrollOff();
	let last = 0;
	const handler = () => {
		const now = Date.now();
		if (now - last < 100) return;
		last = now;
		if (typeof window[binding] === "function") window[binding](now);
	};
	document.addEventListener("scroll", handler, { capture: true, passive: true });
	window.__chatjumpScrollOff = () => {
		document.removeEventListener("scroll", handler, { capture: true });
		window.__chatjumpScrollOff = null;
	};
	return true;
}`
