package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/constants"
)

// wrapText wraps text to maxWidth display columns, preserving words.
// Words longer than maxWidth are hard-wrapped.
func wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		current := ""
		for _, word := range words {
			wordWidth := lipgloss.Width(word)
			if wordWidth > maxWidth {
				if current != "" {
					lines = append(lines, current)
					current = ""
				}
				for word != "" {
					chunk := truncateToWidth(word, maxWidth)
					if chunk == "" {
						// A single rune wider than maxWidth.
						chunk = string([]rune(word)[:1])
					}
					lines = append(lines, chunk)
					word = word[len(chunk):]
				}
				continue
			}

			switch {
			case current == "":
				current = word
			case lipgloss.Width(current)+1+wordWidth <= maxWidth:
				current += " " + word
			default:
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}

func rolePrefix(role chat.Role) string {
	switch role {
	case chat.RoleUser:
		return "YOU:"
	case chat.RoleAssistant:
		return "AI:"
	case chat.RoleAdmin:
		return "ADMIN:"
	default:
		return "???:"
	}
}

// stateBadge describes states other than a settled reply.
func stateBadge(m chat.Message) string {
	switch {
	case m.IsLocal():
		return "sending"
	case m.State == chat.StateProcessing && m.Role == chat.RoleAssistant:
		return "thinking"
	case m.State == chat.StateFinished:
		return ""
	default:
		return string(m.State)
	}
}

// renderMessage renders one message as prefixed, wrapped lines of maxWidth.
func renderMessage(m chat.Message, maxWidth int) []string {
	timePrefix := "--:--:--"
	if !m.CreatedAt.IsZero() {
		timePrefix = m.CreatedAt.Local().Format("15:04:05")
	}
	prefix := timePrefix + " " + rolePrefix(m.Role)
	prefixStyle := lipgloss.NewStyle().Foreground(RoleColor(m.Role)).Bold(m.Role == chat.RoleUser)

	prefixWidth := lipgloss.Width(prefix) + 1
	contentWidth := max(20, maxWidth-prefixWidth-2)
	indent := strings.Repeat(" ", prefixWidth)

	content := m.Content
	if m.Role == chat.RoleAssistant && m.State == chat.StateProcessing && strings.TrimSpace(content) == "" {
		content = constants.AssistantPlaceholder
	}

	result := []string{""}
	for i, line := range wrapText(content, contentWidth) {
		if i == 0 {
			result = append(result, " "+prefixStyle.Render(prefix)+" "+line)
		} else {
			result = append(result, " "+indent+line)
		}
	}

	if badge := stateBadge(m); badge != "" {
		result = append(result, " "+indent+StateStyle(m.State).Render("["+badge+"]"))
	}

	for _, src := range m.Sources {
		label := src.DocumentName
		if label == "" {
			label = src.DocumentID.String()
		}
		if src.Page != nil {
			label = fmt.Sprintf("%s, p. %d", label, *src.Page)
		}
		result = append(result, " "+indent+sourceStyle.Render(truncateWithEllipsis("↳ "+label, contentWidth)))
	}
	return result
}

// renderMessages renders the whole conversation for the viewport.
func renderMessages(msgs []chat.Message, width int, loaded bool) string {
	if len(msgs) == 0 {
		if !loaded {
			return dimmedStyle.Render("Loading conversation...")
		}
		return dimmedStyle.Render("No messages yet. Say hello.")
	}
	var lines []string
	for _, m := range msgs {
		lines = append(lines, renderMessage(m, width)...)
	}
	return strings.Join(lines, "\n")
}

// ChatInfo is the header state of the chat view.
type ChatInfo struct {
	ID         string
	Name       string
	Responding bool
	Retry      string
	RetryOK    bool
	Failed     bool
	AutoScroll bool
	TotalLines int
}

// RenderFocusView renders the active conversation: header, scrollable log and hints.
func RenderFocusView(info ChatInfo, vp viewport.Model, indicator string, width int) string {
	var sections []string
	sections = append(sections, renderFocusHeader(info.Name, info.ID, width))

	status := []string{indicator}
	if info.Responding {
		status = append(status, noticeInfoStyle.Render("assistant is replying"))
	}
	if info.RetryOK {
		status = append(status, noticeWarningStyle.Render(fmt.Sprintf("%q timed out · [ ctrl+r ] retry", truncateWithEllipsis(info.Retry, 24))))
	}
	if info.Failed {
		status = append(status, noticeErrorStyle.Render("send failed · [ ctrl+e ] restore"))
	}
	sections = append(sections, statusBarStyle.Width(width).Render(strings.Join(status, "  ")))

	scrollInfo := ""
	if !info.AutoScroll && info.TotalLines > 0 {
		scrollInfo = fmt.Sprintf("  LINE %d/%d", min(vp.YOffset+1, info.TotalLines), info.TotalLines)
	}
	sections = append(sections, renderSectionTitleWithSuffix("CONVERSATION", scrollInfo, width))

	body := withScrollbar(vp.View(), vp.Height, info.TotalLines, vp.YOffset)
	sections = append(sections, logStyle.Width(width-2).Padding(0, 1).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderFocusHeader renders the conversation name across the full width.
func renderFocusHeader(name, id string, width int) string {
	title := " ⬡ " + truncateWithEllipsis(name, max(8, width-20)) + " #" + id + " ⬡ "
	available := max(4, width-lipgloss.Width(title)-3)
	left := available / 2
	right := available - left
	line := " ⬥" + strings.Repeat("─", left) + title + strings.Repeat("─", right) + "⬥"
	return headerStyle.Width(width).Render(line)
}

// chatFooter lists the keys of the chat view.
func chatFooter() string {
	return dimmedStyle.Render("[ ESC ] BACK  ·  [ ENTER ] SEND  ·  [ PGUP/PGDN ] SCROLL  ·  [ ctrl+l ] RELOAD  ·  [ F1 ] HELP")
}
