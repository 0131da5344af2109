package ui

import (
	"context"
	"errors"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Options configures Run.
type Options struct {
	Addr  string
	Token string
	// Theme is "dark" or "light"; FollowSystem keeps it in sync with the OS.
	Theme        string
	FollowSystem bool
}

// Run connects to the server and shows the sidebar until the user quits
// or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	InitColorProfile()
	InitTheme(opts.Theme)

	client, err := Dial(ctx, opts.Addr, opts.Token)
	if err != nil {
		return err
	}
	defer client.Close()

	var themes <-chan bool
	if opts.FollowSystem {
		if tw := NewThemeWatcher(ctx); tw != nil {
			defer tw.Close()
			themes = tw.Changes()
		}
	}

	model := NewSidebar(client, client.Frames(), themes)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// InitColorProfile picks the lipgloss color profile. CHATJUMP_COLOR
// (truecolor, 256, 16, none) overrides detection.
func InitColorProfile() {
	lipgloss.SetColorProfile(colorProfile(os.Getenv))
}

func colorProfile(getenv func(string) string) termenv.Profile {
	switch strings.ToLower(getenv("CHATJUMP_COLOR")) {
	case "truecolor", "true", "24bit":
		return termenv.TrueColor
	case "256", "ansi256":
		return termenv.ANSI256
	case "16", "ansi", "basic":
		return termenv.ANSI
	case "none", "off", "ascii":
		return termenv.Ascii
	}

	if ct := getenv("COLORTERM"); ct == "truecolor" || ct == "24bit" {
		return termenv.TrueColor
	}
	term := getenv("TERM")
	for _, t := range []string{"256color", "xterm-direct", "alacritty", "kitty", "wezterm"} {
		if strings.Contains(term, t) {
			return termenv.TrueColor
		}
	}
	if getenv("WT_SESSION") != "" || getenv("ITERM_SESSION_ID") != "" || getenv("KONSOLE_VERSION") != "" {
		return termenv.TrueColor
	}
	return termenv.ANSI256
}
