// Package browser drives a Chrome tab over the DevTools protocol with go-rod
// and exposes it as a dom.Page.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/asheshgoplani/chatjump/internal/logging"
)

var browserLog = logging.ForComponent(logging.CompBrowser)

// DefaultPageURL is opened when no tab matches and no URL is configured.
const DefaultPageURL = "https://chatgpt.com/"

// chatTabPattern finds an already open chat tab.
const chatTabPattern = `chatgpt\.com|chat\.openai\.com`

// Options selects how Chrome is reached.
type Options struct {
	// DebuggerURL attaches to a running Chrome (ws://host:port/devtools/browser/...).
	DebuggerURL string
	// Bin is the Chrome binary used when launching.
	Bin string
	// Headless launches without a window.
	Headless bool
}

// Browser is a connected Chrome instance.
type Browser struct {
	rod      *rod.Browser
	launched *launcher.Launcher
	cancel   context.CancelFunc
}

// Connect attaches to opts.DebuggerURL or launches a new Chrome.
func Connect(ctx context.Context, opts Options) (*Browser, error) {
	controlURL := opts.DebuggerURL
	var l *launcher.Launcher

	if controlURL == "" {
		l = launcher.New().Context(ctx).Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
		browserLog.Info("chrome_launched", slog.String("control_url", controlURL), slog.Bool("headless", opts.Headless))
	}

	ctx, cancel := context.WithCancel(ctx)
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		cancel()
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	browserLog.Info("chrome_connected", slog.String("control_url", controlURL))
	return &Browser{rod: b, launched: l, cancel: cancel}, nil
}

// OpenPage returns the tab to index. With a URL it reuses a tab already on
// that URL or opens one; without, it picks the first chat tab or opens
// DefaultPageURL.
func (b *Browser) OpenPage(ctx context.Context, url string) (*Page, error) {
	pages, err := b.rod.Pages()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}

	pattern := chatTabPattern
	if url != "" {
		pattern = regexp.QuoteMeta(strings.TrimSuffix(url, "/"))
	}
	if p, err := pages.FindByURL(pattern); err == nil && p != nil {
		browserLog.Info("tab_reused", slog.String("pattern", pattern))
		return newPage(p.Context(ctx)), nil
	}

	target := url
	if target == "" {
		target = DefaultPageURL
	}
	p, err := b.rod.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	if err := p.WaitLoad(); err != nil {
		browserLog.Warn("tab_wait_load_failed", slog.String("url", target), slog.String("error", err.Error()))
	}
	browserLog.Info("tab_opened", slog.String("url", target))
	return newPage(p.Context(ctx)), nil
}

// Close shuts Chrome down when this process launched it. An attached Chrome
// keeps running; only the connection is dropped.
func (b *Browser) Close() error {
	defer b.cancel()
	if b.launched == nil {
		return nil
	}
	err := b.rod.Close()
	b.launched.Kill()
	return err
}
