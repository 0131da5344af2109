package ui

import (
	"context"
	"log/slog"
	"sync"

	dark "github.com/thiagokokada/dark-mode-go"
)

type darkModeSource func(ctx context.Context) (<-chan bool, <-chan error, error)

// ThemeWatcher follows the OS dark mode setting while the theme is "system".
type ThemeWatcher struct {
	changeCh  chan bool // true=dark; buffered, latest value wins
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewThemeWatcher starts watching. Returns nil when the OS offers no
// notifications; callers keep the theme resolved at startup.
func NewThemeWatcher(parent context.Context) *ThemeWatcher {
	return newThemeWatcher(parent, dark.WatchDarkMode)
}

func newThemeWatcher(parent context.Context, source darkModeSource) *ThemeWatcher {
	ctx, cancel := context.WithCancel(parent)
	events, errs, err := source(ctx)
	if err != nil {
		cancel()
		uiLog.Warn("theme_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}

	tw := &ThemeWatcher{
		changeCh: make(chan bool, 1),
		closeCh:  make(chan struct{}),
	}
	go tw.loop(ctx, cancel, events, errs)
	return tw
}

func (tw *ThemeWatcher) loop(ctx context.Context, cancel context.CancelFunc, events <-chan bool, errs <-chan error) {
	defer cancel()
	for {
		select {
		case <-tw.closeCh:
			return
		case <-ctx.Done():
			return
		case isDark, ok := <-events:
			if !ok {
				return
			}
			select {
			case <-tw.changeCh:
			default:
			}
			tw.changeCh <- isDark
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				uiLog.Warn("theme_watcher_error", slog.String("error", err.Error()))
			}
		}
	}
}

// Changes delivers dark mode flips.
func (tw *ThemeWatcher) Changes() <-chan bool {
	return tw.changeCh
}

// Close stops the watcher. Safe to call more than once.
func (tw *ThemeWatcher) Close() {
	tw.closeOnce.Do(func() { close(tw.closeCh) })
}

func themeName(isDark bool) string {
	if isDark {
		return string(ThemeDark)
	}
	return string(ThemeLight)
}
