package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type helpItem struct {
	key  string
	desc string
}

var helpItems = []helpItem{
	{"Ctrl+C", "Quit"},
	{"q", "Quit (conversation list)"},
	{"↑ / ↓", "Select conversation / Browse sent messages"},
	{"Enter", "Open conversation / Send message"},
	{"n", "New conversation"},
	{"r", "Refresh conversations"},
	{"Alt+Enter", "New line in message"},
	{"Ctrl+R", "Retry the message that timed out"},
	{"Ctrl+E", "Restore the message that failed to send"},
	{"Ctrl+L", "Reload conversation"},
	{"PgUp / PgDn", "Scroll conversation"},
	{"End", "Go to bottom (auto-scroll)"},
	{"Esc", "Back / Cancel"},
	{"? / F1", "Toggle help"},
}

// RenderHelp renders the help overlay.
func RenderHelp(width, height int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("⌨ Keyboard Shortcuts"))
	lines = append(lines, "")

	maxKeyLen := 0
	for _, item := range helpItems {
		maxKeyLen = max(maxKeyLen, lipgloss.Width(item.key))
	}

	for _, item := range helpItems {
		key := helpKeyStyle.Render(padRight(item.key, maxKeyLen))
		desc := helpDescStyle.Render(item.desc)
		lines = append(lines, key+"  "+desc)
	}

	box := helpStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
