package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	scrollbarThumb = "█"
	scrollbarTrack = "│"
)

var (
	scrollTrackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	scrollThumbStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// scrollbarLines returns one rendered cell per viewport line. The thumb is
// proportional to height/totalLines and placed by offset, the first visible line.
func scrollbarLines(height, totalLines, offset int) []string {
	if height <= 0 {
		return nil
	}

	lines := make([]string, height)
	if totalLines <= height {
		for i := range lines {
			lines[i] = scrollTrackStyle.Render(scrollbarTrack)
		}
		return lines
	}

	thumbSize := max(1, min(height, height*height/totalLines))
	ratio := float64(offset) / float64(totalLines-height)
	ratio = max(0, min(1, ratio))
	thumbPos := int(ratio * float64(height-thumbSize))

	for i := range lines {
		if i >= thumbPos && i < thumbPos+thumbSize {
			lines[i] = scrollThumbStyle.Render(scrollbarThumb)
		} else {
			lines[i] = scrollTrackStyle.Render(scrollbarTrack)
		}
	}
	return lines
}

// withScrollbar appends the scrollbar to each line of content, padding missing lines.
func withScrollbar(content string, height, totalLines, offset int) string {
	bar := scrollbarLines(height, totalLines, offset)
	contentLines := strings.Split(content, "\n")
	out := make([]string, height)
	for i := 0; i < height; i++ {
		var line string
		if i < len(contentLines) {
			line = contentLines[i]
		}
		out[i] = line + " " + bar[i]
	}
	return strings.Join(out, "\n")
}
