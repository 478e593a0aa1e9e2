package tui

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xonecas/parley/internal/chat"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// testTime is today at noon, so rendered clocks are stable.
func testTime() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.Local)
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "hello world", 20, []string{"hello world"}},
		{"wraps at word", "hello wide world", 10, []string{"hello wide", "world"}},
		{"keeps blank lines", "a\n\nb", 10, []string{"a", "", "b"}},
		{"hard wraps long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"wide runes", "日本語テキスト", 6, []string{"日本語", "テキス", "ト"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.text, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
			for _, line := range got {
				if w := lipgloss.Width(line); w > tt.width {
					t.Errorf("line %q is %d columns, limit %d", line, w, tt.width)
				}
			}
		})
	}
}

func TestScrollbarLines(t *testing.T) {
	lines := scrollbarLines(4, 2, 0)
	for i, l := range lines {
		if stripANSI(l) != scrollbarTrack {
			t.Errorf("line %d = %q, want track when content fits", i, l)
		}
	}

	thumbAt := func(lines []string) []int {
		var idx []int
		for i, l := range lines {
			if stripANSI(l) == scrollbarThumb {
				idx = append(idx, i)
			}
		}
		return idx
	}

	top := thumbAt(scrollbarLines(10, 100, 0))
	if len(top) != 1 || top[0] != 0 {
		t.Errorf("thumb at top = %v", top)
	}
	bottom := thumbAt(scrollbarLines(10, 100, 90))
	if len(bottom) != 1 || bottom[0] != 9 {
		t.Errorf("thumb at bottom = %v", bottom)
	}
	if scrollbarLines(0, 10, 0) != nil {
		t.Error("expected no lines for zero height")
	}
}

func TestRenderMessage(t *testing.T) {
	page := 3
	tests := []struct {
		name    string
		msg     chat.Message
		want    []string
		notWant []string
	}{
		{
			name: "finished user message",
			msg:  chat.Message{ID: "1", Role: chat.RoleUser, Content: "hello", State: chat.StateFinished, CreatedAt: testTime()},
			want: []string{"12:00:00 YOU: hello"},
			notWant: []string{
				"[",
			},
		},
		{
			name: "optimistic entry",
			msg:  chat.Message{ID: "local-abc", Role: chat.RoleUser, Content: "hi", State: chat.StateCreated},
			want: []string{"--:--:-- YOU: hi", "[sending]"},
		},
		{
			name: "processing placeholder",
			msg:  chat.Message{ID: "2", Role: chat.RoleAssistant, Content: "", State: chat.StateProcessing},
			want: []string{"AI: ...", "[thinking]"},
		},
		{
			name: "timed out user message",
			msg:  chat.Message{ID: "3", Role: chat.RoleUser, Content: "slow", State: chat.StateTimeout},
			want: []string{"YOU: slow", "[timeout]"},
		},
		{
			name: "sources",
			msg: chat.Message{ID: "4", Role: chat.RoleAssistant, Content: "answer", State: chat.StateFinished, Sources: []chat.Source{
				{DocumentID: "7", DocumentName: "manual.pdf", Page: &page},
				{DocumentID: "8"},
			}},
			want: []string{"↳ manual.pdf, p. 3", "↳ 8"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := stripANSI(strings.Join(renderMessage(tt.msg, 80), "\n"))
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderMessagesEmpty(t *testing.T) {
	if got := stripANSI(renderMessages(nil, 80, false)); !strings.Contains(got, "Loading") {
		t.Errorf("unloaded = %q", got)
	}
	if got := stripANSI(renderMessages(nil, 80, true)); !strings.Contains(got, "No messages yet") {
		t.Errorf("loaded = %q", got)
	}
}

func TestRenderDashboard(t *testing.T) {
	convs := []chat.Conversation{{ID: "2", Name: "second"}, {ID: "1", Name: "first"}}
	out := stripANSI(RenderDashboard(convs, 1, &chat.User{Email: "me@example.com"}, 80, 20))

	for _, want := range []string{"P A R L E Y", "me@example.com", "conversations: 2", "#2", "second", "first"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q:\n%s", want, out)
		}
	}

	empty := stripANSI(RenderDashboard(nil, 0, nil, 80, 20))
	if !strings.Contains(empty, "not signed in") || !strings.Contains(empty, "No conversations") {
		t.Errorf("unexpected empty dashboard:\n%s", empty)
	}
}

func TestRenderDashboardNarrow(t *testing.T) {
	convs := []chat.Conversation{{ID: "1", Name: strings.Repeat("long name ", 20)}}
	out := RenderDashboard(convs, 0, nil, 30, 12)
	for i, line := range strings.Split(out, "\n") {
		if w := lipgloss.Width(line); w > 30 {
			t.Errorf("line %d is %d columns wide", i, w)
		}
	}
}

func TestNetIndicator(t *testing.T) {
	n := NewNetIndicator()
	if !strings.Contains(stripANSI(n.View()), "IDLE") {
		t.Errorf("idle view = %q", n.View())
	}

	n.SetActivity(NetActivityReply)
	before := n.position
	n, cmd := n.Update(NetIndicatorTickMsg(time.Now()))
	if cmd == nil {
		t.Error("expected next tick")
	}
	if n.position == before {
		t.Error("expected the indicator to move while busy")
	}
	if !strings.Contains(stripANSI(n.ViewCompact()), "REPLY") {
		t.Errorf("compact view = %q", n.ViewCompact())
	}
}
