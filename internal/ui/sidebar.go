// Package ui is the terminal sidebar: a live list of the questions indexed
// by a running `chatjump serve`, with filtering and jump-to-message.
package ui

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/asheshgoplani/chatjump/internal/clipboard"
	"github.com/asheshgoplani/chatjump/internal/engine"
)

// Sender delivers requests to the server. *Client satisfies it.
type Sender interface {
	Send(req Request) error
}

type (
	frameMsg        Frame
	disconnectedMsg struct{ err error }
	themeMsg        bool
	noticeMsg       struct {
		text string
		err  bool
	}
)

// Sidebar is the bubbletea model.
type Sidebar struct {
	sender Sender
	frames <-chan Frame
	themes <-chan bool

	filter   textinput.Model
	keyInput textinput.Model

	entries        []engine.MessageEntry
	visible        []engine.MessageEntry
	conversationID string
	cursor         int
	offset         int
	width          int
	height         int

	loaded    bool
	gate      string // activation message; empty once validated
	notice    string
	noticeErr bool
	closed    bool

	copy func(string) (*clipboard.Result, error)
}

// NewSidebar builds the model. frames is typically Client.Frames(); themes
// may be nil.
func NewSidebar(sender Sender, frames <-chan Frame, themes <-chan bool) *Sidebar {
	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "filter questions"
	filter.CharLimit = 200

	key := textinput.New()
	key.Prompt = "key: "
	key.Placeholder = "license key"
	key.CharLimit = 200

	return &Sidebar{
		sender:   sender,
		frames:   frames,
		themes:   themes,
		filter:   filter,
		keyInput: key,
		width:    60,
		height:   20,
		copy: func(text string) (*clipboard.Result, error) {
			return clipboard.Copy(text, true)
		},
	}
}

// Init requests the index and starts listening.
func (m *Sidebar) Init() tea.Cmd {
	return tea.Batch(m.send(Request{Type: "get-index"}), m.waitFrame(), m.waitTheme())
}

func (m *Sidebar) waitFrame() tea.Cmd {
	frames := m.frames
	if frames == nil {
		return nil
	}
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return disconnectedMsg{}
		}
		return frameMsg(f)
	}
}

func (m *Sidebar) waitTheme() tea.Cmd {
	themes := m.themes
	if themes == nil {
		return nil
	}
	return func() tea.Msg {
		isDark, ok := <-themes
		if !ok {
			return nil
		}
		return themeMsg(isDark)
	}
}

func (m *Sidebar) send(req Request) tea.Cmd {
	sender := m.sender
	return func() tea.Msg {
		if err := sender.Send(req); err != nil {
			return noticeMsg{text: "send failed: " + err.Error(), err: true}
		}
		return nil
	}
}

// Update handles one message.
func (m *Sidebar) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.filter.Width = max(10, msg.Width-8)
		m.keyInput.Width = max(10, msg.Width-10)
		m.clampCursor()
		return m, nil

	case frameMsg:
		m.applyFrame(Frame(msg))
		return m, m.waitFrame()

	case disconnectedMsg:
		m.closed = true
		m.setNotice("disconnected from server", true)
		return m, nil

	case themeMsg:
		InitTheme(themeName(bool(msg)))
		return m, m.waitTheme()

	case noticeMsg:
		m.setNotice(msg.text, msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Sidebar) applyFrame(f Frame) {
	switch f.Type {
	case "index":
		m.loaded = true
		m.gate = ""
		m.entries = f.Index
		m.conversationID = f.ConversationID
		m.refilter()
	case "goto-result":
		if f.OK {
			m.setNotice("jumped to message", false)
		} else {
			m.setNotice("message is not on the page any more", true)
		}
	case "activation-required":
		m.gate = f.Message
		if m.gate == "" {
			m.gate = "License activation required"
		}
		m.keyInput.Focus()
	case "validated":
		m.gate = ""
		m.keyInput.Blur()
		m.keyInput.SetValue("")
		m.setNotice("license validated", false)
	case "error":
		m.setNotice(f.Code+": "+f.Message, true)
	}
}

func (m *Sidebar) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.gate != "" {
		switch msg.String() {
		case "esc":
			return m, tea.Quit
		case "enter":
			key := strings.TrimSpace(m.keyInput.Value())
			if key == "" {
				return m, nil
			}
			m.setNotice("validating…", false)
			return m, m.send(Request{Type: "activate", Key: key})
		}
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}

	if m.filter.Focused() {
		switch msg.String() {
		case "esc":
			m.filter.SetValue("")
			m.filter.Blur()
			m.refilter()
			return m, nil
		case "enter":
			m.filter.Blur()
			return m, nil
		case "up", "down":
			m.filter.Blur()
			return m.handleKey(msg)
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.refilter()
		return m, cmd
	}

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "/":
		m.filter.Focus()
		return m, textinput.Blink
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "home", "g":
		m.cursor = 0
		m.clampCursor()
	case "end", "G":
		m.cursor = len(m.visible) - 1
		m.clampCursor()
	case "r":
		return m, m.send(Request{Type: "get-index"})
	case "enter":
		if e, ok := m.Selected(); ok {
			return m, m.send(Request{Type: "goto", ID: e.ID})
		}
	case "y":
		if e, ok := m.Selected(); ok {
			res, err := m.copy(e.Text)
			if err != nil {
				uiLog.Warn("copy_failed", slog.String("error", err.Error()))
				m.setNotice("copy failed: "+err.Error(), true)
			} else {
				m.setNotice("copied via "+res.Method, false)
			}
		}
	}
	return m, nil
}

// Selected returns the entry under the cursor.
func (m *Sidebar) Selected() (engine.MessageEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return engine.MessageEntry{}, false
	}
	return m.visible[m.cursor], true
}

// Visible returns the filtered entries in display order.
func (m *Sidebar) Visible() []engine.MessageEntry {
	return m.visible
}

func (m *Sidebar) refilter() {
	m.visible = engine.FilterEntries(m.entries, m.filter.Value())
	m.clampCursor()
}

func (m *Sidebar) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Sidebar) clampCursor() {
	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	rows := m.listRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// listRows is the height left for list items after the chrome.
func (m *Sidebar) listRows() int {
	return max(1, m.height-8)
}

func (m *Sidebar) setNotice(text string, isErr bool) {
	m.notice, m.noticeErr = text, isErr
}

// View renders the sidebar.
func (m *Sidebar) View() string {
	var b strings.Builder

	title := "ChatJump"
	if m.closed {
		title += ErrorStyle.Render(" (offline)")
	}
	if m.conversationID != "" {
		title += DimStyle.Render(" · " + m.conversationID)
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	if m.gate != "" {
		box := lipgloss.JoinVertical(lipgloss.Left,
			ErrorStyle.Render(m.gate),
			m.keyInput.View(),
			DimStyle.Render("enter activate · esc quit"),
		)
		b.WriteString(GateBoxStyle.Width(max(20, m.width-4)).Render(box))
		b.WriteString("\n")
		b.WriteString(m.noticeLine())
		return b.String()
	}

	b.WriteString(SearchBoxStyle.Width(max(20, m.width-4)).Render(m.filter.View()))
	b.WriteString("\n")

	switch {
	case !m.loaded:
		b.WriteString(DimStyle.Render("Loading..."))
	default:
		b.WriteString(DimStyle.Render(CountLine(len(m.visible))))
	}
	b.WriteString("\n")

	rows := m.listRows()
	end := min(len(m.visible), m.offset+rows)
	for i := m.offset; i < end; i++ {
		text := fit(Label(m.visible[i].Text), max(1, m.width-4))
		if i == m.cursor {
			b.WriteString(SelectedItemStyle.Render(text))
		} else {
			b.WriteString(ItemStyle.Render(text))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Join([]string{
		HelpKey("↑↓", "move"),
		HelpKey("enter", "jump"),
		HelpKey("/", "filter"),
		HelpKey("y", "copy"),
		HelpKey("r", "refresh"),
		HelpKey("q", "quit"),
	}, DimStyle.Render(" · ")))
	b.WriteString("\n")
	b.WriteString(m.noticeLine())
	return b.String()
}

func (m *Sidebar) noticeLine() string {
	if m.notice == "" {
		return ""
	}
	if m.noticeErr {
		return ErrorStyle.Render(m.notice)
	}
	return SuccessStyle.Render(m.notice)
}
