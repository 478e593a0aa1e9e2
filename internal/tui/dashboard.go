package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xonecas/parley/internal/chat"
)

// RenderDashboard renders the conversation picker.
func RenderDashboard(convs []chat.Conversation, selectedIdx int, user *chat.User, width, height int) string {
	if width < 20 {
		width = 20
	}
	var sections []string

	topLine := "◆" + strings.Repeat("═", width-2) + "◆"
	titleText := " ⬡ P A R L E Y ⬡ "
	titlePadding := max(0, (width-lipgloss.Width(titleText))/2)
	titleLine := padRight(strings.Repeat(" ", titlePadding)+titleText, width)
	sections = append(sections, headerStyle.Width(width).Render(topLine+"\n"+titleLine+"\n"+topLine))

	who := dimmedStyle.Render("not signed in")
	if user != nil {
		who = noticeInfoStyle.Render(user.Email)
	}
	stats := fmt.Sprintf("%s  %s %d", who, dimmedStyle.Render("conversations:"), len(convs))
	sections = append(sections, statusBarStyle.Width(width).Render(stats))

	sections = append(sections, renderSectionTitle("CONVERSATIONS", width))

	// header (3) + stats (1) + title (1) + footer (1) + list border (2)
	listHeight := max(3, height-8)
	contentWidth := max(20, width-4)

	var body string
	if len(convs) == 0 {
		body = dimmedStyle.Render("No conversations. Press 'n' to start one.")
	} else {
		start := 0
		if selectedIdx >= listHeight {
			start = selectedIdx - listHeight + 1
		}
		end := min(len(convs), start+listHeight)
		lines := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			lines = append(lines, renderConversationLine(convs[i], i == selectedIdx, contentWidth))
		}
		body = strings.Join(lines, "\n")
	}
	sections = append(sections, listStyle.Width(width-2).Height(listHeight).Render(body))

	footer := "[ ? ] HELP  ·  [ ENTER ] OPEN  ·  [ n ] NEW  ·  [ r ] REFRESH  ·  [ q ] QUIT"
	sections = append(sections, dimmedStyle.Render(truncateWithEllipsis(footer, width)))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderConversationLine(c chat.Conversation, selected bool, width int) string {
	id := dimmedStyle.Render(fmt.Sprintf("#%-5s", c.ID))
	name := truncateWithEllipsis(strings.ReplaceAll(c.Name, "\n", " "), width-10)
	line := id + " " + name
	if selected {
		return itemSelectedStyle.Width(width).Render(line)
	}
	return itemStyle.Width(width).Render(line)
}
