package logging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Components used as the "component" field on every record.
const (
	CompEngine    = "engine"
	CompWatcher   = "watcher"
	CompNavigator = "navigator"
	CompBrowser   = "browser"
	CompSnapshot  = "snapshot"
	CompStorage   = "storage"
	CompWeb       = "web"
	CompLicense   = "license"
	CompUI        = "ui"
	CompCLI       = "cli"
)

// LogFileName is the rotated log file created inside Config.LogDir.
const LogFileName = "debug.log"

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for the log file (e.g. ~/.chatjump)
	LogDir string

	// Level is "debug", "info", "warn" or "error"
	Level string

	// Format is "json" (default) or "text"
	Format string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// RecentRecords is how many records DumpRecent keeps (default: 2000)
	RecentRecords int

	// CountWindow is how often Aggregate counts are flushed (default: 30s)
	CountWindow time.Duration

	// PprofEnabled serves net/http/pprof on PprofAddr.
	PprofEnabled bool
	PprofAddr    string

	// Debug forces file logging even without an explicit LogDir decision.
	Debug bool
}

var (
	globalMu     sync.RWMutex
	globalLogger *slog.Logger
	globalRecent *recentRecords
	globalCount  *eventCounter
	rotator      *lumberjack.Logger
	pprofServer  *http.Server
)

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the process-wide logger. Without Debug and without a LogDir
// every record is discarded.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 7
	}
	if cfg.RecentRecords <= 0 {
		cfg.RecentRecords = 2000
	}
	if cfg.CountWindow <= 0 {
		cfg.CountWindow = 30 * time.Second
	}

	if !cfg.Debug && cfg.LogDir == "" {
		globalLogger = discardLogger()
		return
	}

	rotator = &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, LogFileName),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	globalRecent = newRecentRecords(cfg.RecentRecords)
	out := io.MultiWriter(rotator, globalRecent)

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	globalLogger = slog.New(handler)

	globalCount = newEventCounter(globalLogger, cfg.CountWindow)

	if cfg.PprofEnabled {
		startPprof(cfg.PprofAddr)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// current returns the installed logger, or a discarding one before Init.
func current() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return discardLogger()
	}
	return globalLogger
}

// ForComponent returns a logger tagged with component=name. The handler is
// resolved at log time, so package-level loggers created before Init still
// reach the real output.
func ForComponent(name string) *slog.Logger {
	return slog.New(&componentHandler{component: name})
}

type componentHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return current().Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := current().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &componentHandler{component: h.component, attrs: merged, group: h.group}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{component: h.component, attrs: h.attrs, group: name}
}

// Aggregate counts a high-frequency event; counts are flushed periodically as
// one "event_batch" record instead of one record per occurrence.
func Aggregate(component, event string, fields ...slog.Attr) {
	globalMu.RLock()
	counter := globalCount
	globalMu.RUnlock()
	if counter != nil {
		counter.add(component, event, fields)
	}
}

// Shutdown flushes batched counters and closes the rotated file.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalCount != nil {
		globalCount.stop()
		globalCount = nil
	}
	if pprofServer != nil {
		_ = pprofServer.Close()
		pprofServer = nil
	}
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
	globalLogger = nil
	globalRecent = nil
}
