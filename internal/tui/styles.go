package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xonecas/parley/internal/chat"
)

var (
	colorBrand    = lipgloss.Color("#7C5CFF")
	colorTeal     = lipgloss.Color("#2DD4BF")
	colorBrandDim = lipgloss.Color("#4B3A99")

	colorUser      = lipgloss.Color("#34D399")
	colorAssistant = lipgloss.Color("#F472B6")
	colorAdmin     = lipgloss.Color("#38BDF8")

	colorWarning = lipgloss.Color("#FB923C")
	colorError   = lipgloss.Color("#F43F5E")
	colorMuted   = lipgloss.Color("#6B6B99")

	colorBgAlt   = lipgloss.Color("#101018")
	colorBgPanel = lipgloss.Color("#14141F")
	colorBorder  = lipgloss.Color("#2A2A55")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBrand).
			Background(colorBgAlt)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBrand)

	listStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorBrandDim)

	itemStyle = lipgloss.NewStyle().
			Foreground(colorTeal).
			Padding(0, 1)

	itemSelectedStyle = lipgloss.NewStyle().
				Foreground(colorBgAlt).
				Background(colorBrand).
				Bold(true).
				Padding(0, 1)

	logStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBrandDim)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTeal).
			Padding(0, 1)

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(colorBrand).
				Bold(true)

	helpStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorBrand).
			Background(colorBgPanel).
			Padding(1, 2).
			Margin(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorTeal).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(colorTeal).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Background(colorBgPanel)

	dimmedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	noticeInfoStyle = lipgloss.NewStyle().
			Foreground(colorTeal)

	noticeWarningStyle = lipgloss.NewStyle().
				Foreground(colorWarning).
				Bold(true)

	noticeErrorStyle = lipgloss.NewStyle().
				Foreground(colorError).
				Bold(true)

	sourceStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)
)

// RoleColor returns the foreground color for a message role.
func RoleColor(role chat.Role) lipgloss.Color {
	switch role {
	case chat.RoleUser:
		return colorUser
	case chat.RoleAssistant:
		return colorAssistant
	default:
		return colorAdmin
	}
}

// StateStyle returns the style of a message state badge.
func StateStyle(state chat.State) lipgloss.Style {
	switch state {
	case chat.StateProcessing, chat.StateCreated:
		return dimmedStyle
	case chat.StateTimeout, chat.StateCanceled:
		return noticeWarningStyle
	case chat.StateError:
		return noticeErrorStyle
	default:
		return noticeInfoStyle
	}
}

// renderSectionTitle renders a title line that spans width.
func renderSectionTitle(title string, width int) string {
	return renderSectionTitleWithSuffix(title, "", width)
}

// renderSectionTitleWithSuffix renders a title line followed by suffix, such as a scroll position.
func renderSectionTitleWithSuffix(title, suffix string, width int) string {
	titleWithSpaces := " " + title + " "
	available := width - lipgloss.Width(titleWithSpaces) - 4 - lipgloss.Width(suffix)
	if available < 2 {
		available = 2
	}
	left := available / 2
	right := available - left

	line := "⬧─" + strings.Repeat("─", left) + titleWithSpaces + strings.Repeat("─", right) + "─⬧" + suffix
	return panelTitleStyle.Width(width).Render(line)
}

// truncateToWidth cuts s to at most maxWidth display columns without splitting runes.
func truncateToWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	currentWidth := 0
	for i, r := range s {
		charWidth := lipgloss.Width(string(r))
		if currentWidth+charWidth > maxWidth {
			return s[:i]
		}
		currentWidth += charWidth
	}
	return s
}

func truncateWithEllipsis(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return truncateToWidth(s, maxWidth)
	}
	return truncateToWidth(s, maxWidth-3) + "..."
}

func padRight(s string, length int) string {
	if w := lipgloss.Width(s); w < length {
		return s + strings.Repeat(" ", length-w)
	}
	return s
}
