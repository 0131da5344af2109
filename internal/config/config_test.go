package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Engine.MaxEntries != 300 {
		t.Fatalf("max_entries = %d", cfg.Engine.MaxEntries)
	}
	if cfg.Engine.QuestionPolicy != "minimal-length" || cfg.Engine.MinLength != 10 {
		t.Fatalf("policy = %q/%d", cfg.Engine.QuestionPolicy, cfg.Engine.MinLength)
	}
	if !reflect.DeepEqual(cfg.Engine.Selectors, DefaultSelectors) {
		t.Fatalf("selectors = %v", cfg.Engine.Selectors)
	}
	want := []time.Duration{2 * time.Second, 5 * time.Second}
	if !reflect.DeepEqual(cfg.Engine.ResweepDelays(), want) {
		t.Fatalf("resweeps = %v", cfg.Engine.ResweepDelays())
	}
	if cfg.Engine.ScrollDebounce() != 500*time.Millisecond {
		t.Fatalf("debounce = %v", cfg.Engine.ScrollDebounce())
	}
	if cfg.Engine.Highlight() != 1600*time.Millisecond {
		t.Fatalf("highlight = %v", cfg.Engine.Highlight())
	}
	if !cfg.License.LicenseEnabled() {
		t.Fatal("license should default to enabled")
	}
	if cfg.UI.Addr != cfg.Web.Listen {
		t.Fatalf("ui addr %q should follow listen %q", cfg.UI.Addr, cfg.Web.Listen)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(`
[engine]
max_entries = 200
question_policy = "interrogative-pattern"
selectors = ["div.msg"]
resweep_delays_ms = []

[web]
listen = ":9000"
token = "secret"

[license]
enabled = false

[ui]
theme = "neon"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Engine.MaxEntries != 200 {
		t.Errorf("max_entries = %d", cfg.Engine.MaxEntries)
	}
	if cfg.Engine.QuestionPolicy != "interrogative-pattern" {
		t.Errorf("policy = %q", cfg.Engine.QuestionPolicy)
	}
	if !reflect.DeepEqual(cfg.Engine.Selectors, []string{"div.msg"}) {
		t.Errorf("selectors = %v", cfg.Engine.Selectors)
	}
	if len(cfg.Engine.ResweepDelays()) != 0 {
		t.Errorf("explicit empty resweep list should stay empty, got %v", cfg.Engine.ResweepDelays())
	}
	if cfg.Web.Listen != ":9000" || cfg.Web.Token != "secret" {
		t.Errorf("web = %+v", cfg.Web)
	}
	if cfg.License.LicenseEnabled() {
		t.Error("license should be disabled")
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("unknown theme should fall back to dark, got %q", cfg.UI.Theme)
	}
}

func TestParseUnknownPolicyFallsBack(t *testing.T) {
	cfg, err := Parse("[engine]\nquestion_policy = \"regex\"\n")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.QuestionPolicy != DefaultQuestionPolicy {
		t.Fatalf("policy = %q", cfg.Engine.QuestionPolicy)
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse("[engine\nmax_entries = "); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadCachesAndHonorsHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATJUMP_HOME", dir)
	ClearCache()
	defer ClearCache()

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[engine]\nmax_entries = 42\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.MaxEntries != 42 {
		t.Fatalf("max_entries = %d", cfg.Engine.MaxEntries)
	}

	// Cached until cleared.
	_ = os.WriteFile(filepath.Join(dir, FileName), []byte("[engine]\nmax_entries = 7\n"), 0o600)
	again, _ := Load()
	if again.Engine.MaxEntries != 42 {
		t.Fatalf("expected cached value, got %d", again.Engine.MaxEntries)
	}
	ClearCache()
	fresh, _ := Load()
	if fresh.Engine.MaxEntries != 7 {
		t.Fatalf("expected reloaded value, got %d", fresh.Engine.MaxEntries)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Setenv("CHATJUMP_HOME", t.TempDir())
	ClearCache()
	defer ClearCache()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Listen != DefaultListen {
		t.Fatalf("listen = %q", cfg.Web.Listen)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("CHATJUMP_HOME", t.TempDir())
	ClearCache()
	defer ClearCache()

	cfg := Default()
	cfg.Web.Token = "abc"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Web.Token != "abc" {
		t.Fatalf("token = %q", loaded.Web.Token)
	}
}

func TestStatePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATJUMP_HOME", dir)

	cfg := Default()
	got, err := cfg.StatePath("work")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "profiles", "work", StateDBFileName); got != want {
		t.Fatalf("StatePath = %q, want %q", got, want)
	}

	cfg.Storage.Path = "/tmp/custom.db"
	if got, _ := cfg.StatePath("work"); got != "/tmp/custom.db" {
		t.Fatalf("override ignored: %q", got)
	}
}

func TestDebugEnabled(t *testing.T) {
	t.Setenv("CHATJUMP_DEBUG", "true")
	if !DebugEnabled() {
		t.Fatal("expected debug on")
	}
	t.Setenv("CHATJUMP_DEBUG", "0")
	if DebugEnabled() {
		t.Fatal("expected debug off")
	}
}

func TestEffectiveProfile(t *testing.T) {
	t.Setenv("CHATJUMP_PROFILE", "")
	if got := EffectiveProfile(""); got != DefaultProfile {
		t.Fatalf("EffectiveProfile() = %q, want %q", got, DefaultProfile)
	}

	t.Setenv("CHATJUMP_PROFILE", "work")
	if got := EffectiveProfile(""); got != "work" {
		t.Fatalf("env profile = %q, want work", got)
	}
	if got := EffectiveProfile(" home "); got != "home" {
		t.Fatalf("explicit profile = %q, want home", got)
	}
}
