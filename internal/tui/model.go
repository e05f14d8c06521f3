// Package tui is the terminal presentation of a chat thread.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashureev/neonnexus-chat/internal/chat"
	"github.com/ashureev/neonnexus-chat/internal/domain"
)

const (
	headerTitle      = "NeonNexus Chat"
	clearTimeout     = 5 * time.Second
	defaultWidth     = 80
	defaultHeight    = 24
	chromeHeight     = 9
	maxMessageLength = 2000
)

// Config wires the model to the rest of the client.
type Config struct {
	// ThreadFile keeps the thread id between runs.
	ThreadFile string
	// NewController builds a controller for a thread.
	NewController func(threadID string) *chat.Controller
	// ClearSession asks the agent to forget a thread. Optional.
	ClearSession func(ctx context.Context, threadID string) error
	// Styles defaults to DefaultStyles.
	Styles *Styles
}

// Model is the Bubble Tea model of the terminal client.
type Model struct {
	cfg    Config
	styles Styles

	ctrl        *chat.Controller
	updates     <-chan chat.Snapshot
	unsubscribe func()
	snap        chat.Snapshot

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
	status string
}

// New creates the model for threadID.
func New(cfg Config, threadID string) Model {
	styles := DefaultStyles()
	if cfg.Styles != nil {
		styles = *cfg.Styles
	}

	in := textinput.New()
	in.Placeholder = "Enter the void..."
	in.CharLimit = maxMessageLength
	in.Prompt = "> "
	in.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Points))
	sp.Style = styles.Spinner

	m := Model{
		cfg:      cfg,
		styles:   styles,
		input:    in,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight),
		spinner:  sp,
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.attach(cfg.NewController(threadID))
	return m
}

func (m *Model) attach(ctrl *chat.Controller) {
	m.ctrl = ctrl
	m.updates, m.unsubscribe = ctrl.Subscribe()
	m.snap = ctrl.Snapshot()
	m.refresh()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		mountCmd(m.ctrl),
		waitForSnapshot(m.updates),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-chromeHeight)
		m.input.Width = max(10, msg.Width-8)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.ctrl.Close()
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyCtrlR:
			return m.reset()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		if m.snap.Loading {
			return m, nil
		}
		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if after := m.input.Value(); after != before {
			m.ctrl.SetInput(after)
		}
		cmds = append(cmds, cmd)

	case snapshotMsg:
		// Late snapshots of a replaced thread end their wait loop here.
		if msg.snap.ThreadID != m.ctrl.ThreadID() {
			break
		}
		if msg.snap.Version > m.snap.Version {
			m.snap = msg.snap
			m.refresh()
		}
		cmds = append(cmds, waitForSnapshot(m.updates))

	case subscriptionClosedMsg:
		// The controller was replaced; the new subscription is already waited on.

	case mountedMsg:
		m.snap = m.ctrl.Snapshot()
		m.refresh()

	case submitDoneMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, chat.ErrBusy):
			m.status = "Waiting for the agent..."
		default:
			m.status = msg.err.Error()
		}

	case resetDoneMsg:
		if msg.err != nil {
			m.status = "Reset failed: " + msg.err.Error()
			break
		}
		m.status = "Started a new conversation"
		m.attach(m.cfg.NewController(msg.threadID))
		cmds = append(cmds, mountCmd(m.ctrl), waitForSnapshot(m.updates))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.Loading {
			m.refresh()
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if m.snap.Loading || strings.TrimSpace(text) == "" {
		return m, nil
	}
	m.input.Reset()
	m.status = ""
	return m, submitCmd(m.ctrl, text)
}

func (m Model) reset() (tea.Model, tea.Cmd) {
	if m.snap.Loading {
		m.status = "Wait for the reply before starting a new conversation"
		return m, nil
	}

	old := m.ctrl
	m.unsubscribe()
	old.Close()
	m.input.Reset()

	threadFile := m.cfg.ThreadFile
	clearSession := m.cfg.ClearSession
	return m, func() tea.Msg {
		if clearSession != nil {
			ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
			defer cancel()
			if err := clearSession(ctx, old.ThreadID()); err != nil {
				slog.Warn("Failed to clear agent session", "thread_id", old.ThreadID(), "error", err)
			}
		}
		id, err := ResetThreadID(threadFile)
		return resetDoneMsg{threadID: id, err: err}
	}
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m Model) renderMessages() string {
	width := max(20, m.viewport.Width)
	bubbleWidth := max(10, width*3/4)

	rows := make([]string, 0, len(m.snap.Messages)+1)
	for _, msg := range m.snap.Messages {
		rows = append(rows, m.renderMessage(msg, width, bubbleWidth))
	}
	if m.snap.Loading {
		placeholder := m.styles.AgentAvatar.Render("[AI] ") + m.styles.AgentBubble.Render(m.spinner.View())
		rows = append(rows, placeholder)
	}
	return strings.Join(rows, "\n\n")
}

func (m Model) renderMessage(msg domain.Message, width, bubbleWidth int) string {
	if msg.IsAgent() {
		bubble := m.styles.AgentBubble.MaxWidth(bubbleWidth).Render(wrap(msg.Content, bubbleWidth-2))
		return lipgloss.JoinHorizontal(lipgloss.Top, m.styles.AgentAvatar.Render("[AI] "), bubble)
	}
	bubble := m.styles.UserBubble.MaxWidth(bubbleWidth).Render(wrap(msg.Content, bubbleWidth-2))
	row := lipgloss.JoinHorizontal(lipgloss.Top, bubble, m.styles.UserAvatar.Render(" [You]"))
	return lipgloss.PlaceHorizontal(width, lipgloss.Right, row)
}

// View implements tea.Model.
func (m Model) View() string {
	header := m.styles.Header.Width(m.width).Render(headerTitle)

	tip := ""
	if m.snap.Tip != nil && !m.snap.Loading {
		tip = m.styles.Tip.Render("Tip: " + *m.snap.Tip)
	}

	input := m.styles.Input.Width(max(10, m.width-2)).Render(m.input.View())

	help := "enter send | ctrl+r new chat | pgup/pgdn scroll | esc quit"
	if m.status != "" {
		help = m.status + " | " + help
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		tip,
		input,
		m.styles.Help.Render(help),
	)
}

// wrap breaks text on spaces so no line exceeds width runes.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		var current []rune
		for _, word := range strings.Fields(line) {
			w := []rune(word)
			if len(current) > 0 && len(current)+1+len(w) > width {
				out = append(out, string(current))
				current = current[:0]
			}
			if len(current) > 0 {
				current = append(current, ' ')
			}
			current = append(current, w...)
		}
		out = append(out, string(current))
	}
	return strings.Join(out, "\n")
}
