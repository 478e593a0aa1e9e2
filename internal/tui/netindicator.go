package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// NetActivity is what the client is currently waiting for.
type NetActivity int

const (
	NetActivityIdle    NetActivity = iota
	NetActivityLoading             // fetching history
	NetActivitySending             // create-message request in flight
	NetActivityReply               // assistant reply processing
)

// NetIndicator is a bouncing progress bar shown while the client waits on the server.
type NetIndicator struct {
	activity  NetActivity
	position  int
	direction int
	width     int
}

// NetIndicatorTickMsg advances the animation.
type NetIndicatorTickMsg time.Time

// NewNetIndicator creates an idle indicator.
func NewNetIndicator() NetIndicator {
	return NetIndicator{direction: 1, width: 12}
}

// SetActivity sets the current activity.
func (n *NetIndicator) SetActivity(activity NetActivity) {
	n.activity = activity
}

// Activity returns the current activity.
func (n NetIndicator) Activity() NetActivity {
	return n.activity
}

// Update moves the ball on every tick while the indicator is busy.
func (n NetIndicator) Update(msg tea.Msg) (NetIndicator, tea.Cmd) {
	if _, ok := msg.(NetIndicatorTickMsg); !ok {
		return n, nil
	}
	if n.activity != NetActivityIdle {
		n.position += n.direction
		if n.position >= n.width-1 {
			n.position = n.width - 1
			n.direction = -1
		} else if n.position <= 0 {
			n.position = 0
			n.direction = 1
		}
	}
	return n, n.tick()
}

func (n NetIndicator) tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return NetIndicatorTickMsg(t)
	})
}

// Init starts the animation.
func (n NetIndicator) Init() tea.Cmd {
	return n.tick()
}

func (n NetIndicator) label() (string, lipgloss.Style) {
	switch n.activity {
	case NetActivityLoading:
		return "⬥ LOAD", lipgloss.NewStyle().Foreground(colorTeal).Bold(true)
	case NetActivitySending:
		return "⬥ SEND", lipgloss.NewStyle().Foreground(colorUser).Bold(true)
	case NetActivityReply:
		return "⬥ REPLY", lipgloss.NewStyle().Foreground(colorAssistant).Bold(true)
	default:
		return "⬦ IDLE", lipgloss.NewStyle().Foreground(colorMuted)
	}
}

// View renders the label and the bar.
func (n NetIndicator) View() string {
	const (
		barEmpty  = "░"
		barFilled = "█"
	)

	label, style := n.label()
	bar := "▐"
	for i := 0; i < n.width; i++ {
		if n.activity != NetActivityIdle && i >= n.position-1 && i <= n.position+1 {
			bar += barFilled
		} else {
			bar += barEmpty
		}
	}
	bar += "▌"
	return style.Render(label + " " + bar)
}

// ViewCompact renders the label alone, for narrow terminals.
func (n NetIndicator) ViewCompact() string {
	label, style := n.label()
	return style.Render(label)
}
