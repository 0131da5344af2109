// Package config loads ~/.chatjump/config.toml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"
)

const (
	// FileName is the TOML config file inside the base directory.
	FileName = "config.toml"
	// DefaultProfile is used when -p is not given.
	DefaultProfile = "default"
	// StateDBFileName is the SQLite file inside a profile directory.
	StateDBFileName = "state.db"
)

// Config is the user-facing configuration.
type Config struct {
	Engine  EngineSettings  `toml:"engine"`
	Browser BrowserSettings `toml:"browser"`
	Web     WebSettings     `toml:"web"`
	Storage StorageSettings `toml:"storage"`
	License LicenseSettings `toml:"license"`
	Logs    LogSettings     `toml:"logs"`
	UI      UISettings      `toml:"ui"`
}

// EngineSettings tunes indexing and navigation.
type EngineSettings struct {
	// MaxEntries bounds the index (default 300)
	MaxEntries int `toml:"max_entries"`

	// QuestionPolicy is "minimal-length" (default) or "interrogative-pattern"
	QuestionPolicy string `toml:"question_policy"`

	// MinLength is the text length a message must exceed (default 10)
	MinLength int `toml:"min_length"`

	// Selectors is the discovery fallback chain, strictest first
	Selectors []string `toml:"selectors"`

	// ResweepDelaysMs are one-shot full sweeps after start (default 2000, 5000)
	ResweepDelaysMs []int `toml:"resweep_delays_ms"`

	// ScrollDebounceMs delays the sweep after the last scroll (default 500)
	ScrollDebounceMs int `toml:"scroll_debounce_ms"`

	// HighlightMs is how long the navigation outline stays (default 1600)
	HighlightMs int `toml:"highlight_ms"`
}

// BrowserSettings controls how the live page is reached.
type BrowserSettings struct {
	// DebuggerURL attaches to an already running Chrome (ws://...)
	DebuggerURL string `toml:"debugger_url"`

	// Bin overrides the Chrome binary used when launching
	Bin string `toml:"bin"`

	// Headless launches Chrome without a window
	Headless bool `toml:"headless"`

	// URL is the page to open or pick among existing tabs
	URL string `toml:"url"`

	// ReadyTimeoutSecs bounds the readiness wait (default 60)
	ReadyTimeoutSecs int `toml:"ready_timeout_secs"`
}

// WebSettings configures the query server.
type WebSettings struct {
	// Listen is the server address (default 127.0.0.1:8787)
	Listen string `toml:"listen"`

	// Token enables bearer auth when set
	Token string `toml:"token"`

	// RatePerSecond limits inbound requests per connection (default 20)
	RatePerSecond float64 `toml:"rate_per_second"`

	// Burst is the limiter burst (default 40)
	Burst int `toml:"burst"`
}

// StorageSettings locates the state database.
type StorageSettings struct {
	// Path overrides the default <base>/profiles/<profile>/state.db
	Path string `toml:"path"`

	// Disabled turns off index persistence
	Disabled bool `toml:"disabled"`
}

// LicenseSettings configures the activation gate.
type LicenseSettings struct {
	// Enabled gates serve behind validation (default true when unset)
	Enabled *bool `toml:"enabled"`

	// Key is the license key
	Key string `toml:"key"`

	// APIURL is the validation endpoint
	APIURL string `toml:"api_url"`

	// TimeoutSecs bounds the validation call (default 10)
	TimeoutSecs int `toml:"timeout_secs"`
}

// LogSettings mirrors logging.Config.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
	Pprof      bool   `toml:"pprof"`
	PprofAddr  string `toml:"pprof_addr"`
}

// UISettings configures the terminal sidebar.
type UISettings struct {
	// Theme is "dark" (default), "light" or "system"
	Theme string `toml:"theme"`

	// Addr is the server the sidebar connects to (default Web.Listen)
	Addr string `toml:"addr"`
}

// Defaults used when a value is unset.
const (
	DefaultMaxEntries       = 300
	DefaultMinLength        = 10
	DefaultQuestionPolicy   = "minimal-length"
	DefaultScrollDebounceMs = 500
	DefaultHighlightMs      = 1600
	DefaultListen           = "127.0.0.1:8787"
	DefaultRatePerSecond    = 20
	DefaultBurst            = 40
	DefaultReadyTimeoutSecs = 60
	DefaultLicenseTimeout   = 10
	DefaultLicenseAPIURL    = "https://chatjump.netlify.app/.netlify/functions/validate-license"
)

// DefaultSelectors is the discovery fallback chain.
var DefaultSelectors = []string{"article[data-testid]", "article", "[data-message-id]"}

// DefaultResweepDelaysMs are the scheduled re-sweeps after start.
var DefaultResweepDelaysMs = []int{2000, 5000}

var (
	cache   *Config
	cacheMu sync.RWMutex
)

// BaseDir returns $CHATJUMP_HOME or ~/.chatjump.
func BaseDir() (string, error) {
	if dir := os.Getenv("CHATJUMP_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".chatjump"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// ProfileDir returns the per-profile state directory.
func ProfileDir(profile string) (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	if profile == "" {
		profile = DefaultProfile
	}
	return filepath.Join(dir, "profiles", profile), nil
}

// EffectiveProfile resolves the profile to use. Priority: the -p flag,
// then CHATJUMP_PROFILE, then "default".
func EffectiveProfile(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("CHATJUMP_PROFILE")); p != "" {
		return p
	}
	return DefaultProfile
}

// DebugEnabled reports whether CHATJUMP_DEBUG is set to a truthy value.
func DebugEnabled() bool {
	switch strings.ToLower(os.Getenv("CHATJUMP_DEBUG")) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Load returns the cached config, reading it on first use. A missing file
// yields defaults. A parse error is returned alongside defaults so callers
// can report it and continue.
func Load() (*Config, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return cache, nil
	}

	path, err := Path()
	if err != nil {
		cache = Default()
		return cache, nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		cache = Default()
		return cache, err
	}
	cache = cfg
	return cache, nil
}

// LoadFile decodes path without touching the cache.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.applyDefaults()
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config.toml parse error: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Parse decodes TOML text.
func Parse(data string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse error: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ClearCache forgets the cached config.
func ClearCache() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	e := &c.Engine
	if e.MaxEntries <= 0 {
		e.MaxEntries = DefaultMaxEntries
	}
	if e.MinLength <= 0 {
		e.MinLength = DefaultMinLength
	}
	switch e.QuestionPolicy {
	case "minimal-length", "interrogative-pattern":
	default:
		e.QuestionPolicy = DefaultQuestionPolicy
	}
	if len(e.Selectors) == 0 {
		e.Selectors = append([]string(nil), DefaultSelectors...)
	}
	if e.ResweepDelaysMs == nil {
		e.ResweepDelaysMs = append([]int(nil), DefaultResweepDelaysMs...)
	}
	if e.ScrollDebounceMs <= 0 {
		e.ScrollDebounceMs = DefaultScrollDebounceMs
	}
	if e.HighlightMs <= 0 {
		e.HighlightMs = DefaultHighlightMs
	}

	if c.Browser.ReadyTimeoutSecs <= 0 {
		c.Browser.ReadyTimeoutSecs = DefaultReadyTimeoutSecs
	}

	if c.Web.Listen == "" {
		c.Web.Listen = DefaultListen
	}
	if c.Web.RatePerSecond <= 0 {
		c.Web.RatePerSecond = DefaultRatePerSecond
	}
	if c.Web.Burst <= 0 {
		c.Web.Burst = DefaultBurst
	}

	if c.License.APIURL == "" {
		c.License.APIURL = DefaultLicenseAPIURL
	}
	if c.License.TimeoutSecs <= 0 {
		c.License.TimeoutSecs = DefaultLicenseTimeout
	}

	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
	if c.Logs.Format == "" {
		c.Logs.Format = "json"
	}

	switch c.UI.Theme {
	case "dark", "light", "system":
	default:
		c.UI.Theme = "dark"
	}
	if c.UI.Addr == "" {
		c.UI.Addr = c.Web.Listen
	}
}

// LicenseEnabled defaults to true.
func (l LicenseSettings) LicenseEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// Timeout returns the validation timeout.
func (l LicenseSettings) Timeout() time.Duration {
	return time.Duration(l.TimeoutSecs) * time.Second
}

// ResweepDelays converts the configured milliseconds.
func (e EngineSettings) ResweepDelays() []time.Duration {
	out := make([]time.Duration, 0, len(e.ResweepDelaysMs))
	for _, ms := range e.ResweepDelaysMs {
		if ms > 0 {
			out = append(out, time.Duration(ms)*time.Millisecond)
		}
	}
	return out
}

// ScrollDebounce converts ScrollDebounceMs.
func (e EngineSettings) ScrollDebounce() time.Duration {
	return time.Duration(e.ScrollDebounceMs) * time.Millisecond
}

// Highlight converts HighlightMs.
func (e EngineSettings) Highlight() time.Duration {
	return time.Duration(e.HighlightMs) * time.Millisecond
}

// StatePath resolves the state database for profile.
func (c *Config) StatePath(profile string) (string, error) {
	if c.Storage.Path != "" {
		return expandHome(c.Storage.Path), nil
	}
	dir, err := ProfileDir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, StateDBFileName), nil
}

// ResolveTheme maps the configured theme to "dark" or "light", asking the OS
// when the theme is "system".
func (c *Config) ResolveTheme() string {
	if c.UI.Theme != "system" {
		return c.UI.Theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil || isDark {
		return "dark"
	}
	return "light"
}

// Save writes cfg to the config path atomically and clears the cache.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# chatjump configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}
	ClearCache()
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
