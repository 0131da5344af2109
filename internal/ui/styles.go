package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the active color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

type palette struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Highlight, Green, Red      lipgloss.Color
}

// Tokyo Night.
var darkColors = palette{
	Bg:        lipgloss.Color("#1a1b26"),
	Surface:   lipgloss.Color("#24283b"),
	Border:    lipgloss.Color("#414868"),
	Text:      lipgloss.Color("#c0caf5"),
	TextDim:   lipgloss.Color("#787fa0"),
	Accent:    lipgloss.Color("#7aa2f7"),
	Highlight: lipgloss.Color("#ffd54f"),
	Green:     lipgloss.Color("#9ece6a"),
	Red:       lipgloss.Color("#f7768e"),
}

// Tokyo Night Light.
var lightColors = palette{
	Bg:        lipgloss.Color("#d5d6db"),
	Surface:   lipgloss.Color("#e9e9ec"),
	Border:    lipgloss.Color("#9699a3"),
	Text:      lipgloss.Color("#343b58"),
	TextDim:   lipgloss.Color("#6a6d7c"),
	Accent:    lipgloss.Color("#34548a"),
	Highlight: lipgloss.Color("#8f5e15"),
	Green:     lipgloss.Color("#485e30"),
	Red:       lipgloss.Color("#8c4351"),
}

var (
	themeMu      sync.RWMutex
	currentTheme = ThemeDark
	colors       = darkColors
)

// Styles used by the sidebar. Rebuilt by InitTheme.
var (
	TitleStyle        lipgloss.Style
	DimStyle          lipgloss.Style
	ErrorStyle        lipgloss.Style
	SuccessStyle      lipgloss.Style
	ItemStyle         lipgloss.Style
	SelectedItemStyle lipgloss.Style
	SearchBoxStyle    lipgloss.Style
	GateBoxStyle      lipgloss.Style
	HelpKeyStyle      lipgloss.Style
)

func init() {
	InitTheme("dark")
}

// InitTheme switches the palette. Anything other than "light" is dark.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if theme == string(ThemeLight) {
		currentTheme, colors = ThemeLight, lightColors
	} else {
		currentTheme, colors = ThemeDark, darkColors
	}
	initStyles(colors)
}

// GetCurrentTheme returns the active theme.
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

func initStyles(c palette) {
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(c.Accent)
	DimStyle = lipgloss.NewStyle().Foreground(c.TextDim)
	ErrorStyle = lipgloss.NewStyle().Foreground(c.Red)
	SuccessStyle = lipgloss.NewStyle().Foreground(c.Green)
	ItemStyle = lipgloss.NewStyle().Foreground(c.Text).PaddingLeft(2)
	SelectedItemStyle = lipgloss.NewStyle().
		Foreground(c.Bg).
		Background(c.Highlight).
		Bold(true).
		PaddingLeft(1).
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(c.Accent)
	SearchBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c.Accent).
		Padding(0, 1)
	GateBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c.Highlight).
		Padding(0, 1)
	HelpKeyStyle = lipgloss.NewStyle().Foreground(c.Accent).Bold(true)
}

// HelpKey renders "key desc" for the footer.
func HelpKey(key, desc string) string {
	return HelpKeyStyle.Render(key) + " " + DimStyle.Render(desc)
}
