package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// InputMode is what the composer is collecting.
type InputMode int

const (
	InputModeNone InputMode = iota
	InputModeMessage
	InputModeNewConversation
)

const (
	maxHistorySize = 100
	maxInputLines  = 5
)

// InputModel is the message composer. Sent messages are kept in a history
// browsable with up and down while the composer is empty or browsing.
type InputModel struct {
	textarea     textarea.Model
	mode         InputMode
	history      []string
	historyIndex int // -1 = not browsing
	saved        string
}

// NewInputModel creates an inactive composer.
func NewInputModel() InputModel {
	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.SetHeight(1)
	ta.SetWidth(60)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Blur()

	return InputModel{
		textarea:     ta,
		history:      make([]string, 0, maxHistorySize),
		historyIndex: -1,
	}
}

// SetMode switches the composer to mode and focuses it; value pre-fills it.
func (m *InputModel) SetMode(mode InputMode, value string) tea.Cmd {
	m.mode = mode
	m.historyIndex = -1
	m.saved = ""

	switch mode {
	case InputModeMessage:
		m.textarea.Placeholder = "Type a message... (Enter to send, Alt+Enter for a new line)"
		m.textarea.Prompt = inputPromptStyle.Render("› ")
	case InputModeNewConversation:
		m.textarea.Placeholder = "Name of the new conversation..."
		m.textarea.Prompt = inputPromptStyle.Render("+ ")
	default:
		m.textarea.Placeholder = ""
		m.textarea.Prompt = ""
	}
	m.SetValue(value)

	if mode == InputModeNone {
		m.textarea.Blur()
		return nil
	}
	return m.textarea.Focus()
}

// Mode returns the current mode.
func (m InputModel) Mode() InputMode {
	return m.mode
}

// Value returns the current text.
func (m InputModel) Value() string {
	return m.textarea.Value()
}

// SetValue replaces the text and moves the cursor to its end.
func (m *InputModel) SetValue(s string) {
	m.textarea.SetValue(s)
	m.textarea.CursorEnd()
	m.fit()
}

// IsActive reports whether the composer takes key input.
func (m InputModel) IsActive() bool {
	return m.mode != InputModeNone
}

var historyKeys = struct {
	Up   key.Binding
	Down key.Binding
}{
	Up:   key.NewBinding(key.WithKeys("up")),
	Down: key.NewBinding(key.WithKeys("down")),
}

// Update handles composer keys.
func (m InputModel) Update(msg tea.Msg) (InputModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && m.mode == InputModeMessage {
		browsing := m.historyIndex != -1 || m.textarea.Value() == ""
		switch {
		case browsing && key.Matches(keyMsg, historyKeys.Up):
			m.navigateHistory(1)
			return m, nil
		case browsing && key.Matches(keyMsg, historyKeys.Down):
			m.navigateHistory(-1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.fit()
	return m, cmd
}

// navigateHistory moves through the history: 1 = older, -1 = newer.
func (m *InputModel) navigateHistory(direction int) {
	if len(m.history) == 0 {
		return
	}
	if m.historyIndex == -1 && direction == 1 {
		m.saved = m.textarea.Value()
	}

	m.historyIndex = max(-1, min(len(m.history)-1, m.historyIndex+direction))

	if m.historyIndex == -1 {
		m.SetValue(m.saved)
		return
	}
	m.SetValue(m.history[len(m.history)-1-m.historyIndex])
}

// fit grows the composer with its content up to maxInputLines.
func (m *InputModel) fit() {
	lines := max(1, min(maxInputLines, m.textarea.LineCount()))
	if m.textarea.Height() != lines {
		m.textarea.SetHeight(lines)
	}
}

// Height returns the rendered height including the border.
func (m InputModel) Height() int {
	return m.textarea.Height() + 2
}

// View renders the composer.
func (m InputModel) View(width int) string {
	if m.mode == InputModeNone {
		return inputStyle.Width(width - 2).Render(dimmedStyle.Render("Press 'n' for a new conversation, Enter to open one..."))
	}
	return inputStyle.Width(width - 2).Render(m.textarea.View())
}

// Reset clears the text and leaves the current mode.
func (m *InputModel) Reset() {
	m.textarea.Reset()
	m.historyIndex = -1
	m.saved = ""
	m.fit()
}

// Deactivate clears the composer and blurs it.
func (m *InputModel) Deactivate() {
	m.Reset()
	m.mode = InputModeNone
	m.textarea.Blur()
}

// AddToHistory records a sent message, skipping consecutive duplicates.
func (m *InputModel) AddToHistory(message string) {
	if message == "" {
		return
	}
	if len(m.history) > 0 && m.history[len(m.history)-1] == message {
		return
	}
	m.history = append(m.history, message)
	if len(m.history) > maxHistorySize {
		m.history = m.history[len(m.history)-maxHistorySize:]
	}
}

// SetWidth sets the outer width of the composer.
func (m *InputModel) SetWidth(width int) {
	m.textarea.SetWidth(max(10, width-6))
}
