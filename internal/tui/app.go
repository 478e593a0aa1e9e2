// Package tui provides the terminal chat client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/core"
)

// View represents the current view mode.
type View int

const (
	ViewConversations View = iota
	ViewChat
)

// Conversations lists and creates the user's conversations.
type Conversations interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	CreateConversation(ctx context.Context, name string) (*chat.Conversation, error)
}

// Model is the main TUI model.
type Model struct {
	ctx     context.Context
	engine  *core.Engine
	convs   Conversations
	eventCh <-chan core.Event

	view     View
	width    int
	height   int
	showHelp bool

	user          *chat.User
	conversations []chat.Conversation
	selectedIdx   int
	active        chat.Conversation

	input      InputModel
	viewport   viewport.Model
	autoScroll bool
	totalLines int
	indicator  NetIndicator
	sending    bool

	notice  *core.NotificationData
	err     error
	startID string
}

// EventMsg wraps an engine event for the TUI.
type EventMsg struct {
	Event core.Event
}

type identityMsg struct {
	user *chat.User
	err  error
}

type conversationsMsg struct {
	convs []chat.Conversation
	err   error
}

type conversationCreatedMsg struct {
	conv *chat.Conversation
	err  error
}

type switchDoneMsg struct {
	id  string
	err error
}

type sendDoneMsg struct {
	content string
	outcome core.Outcome
}

type retryDoneMsg struct {
	outcome core.Outcome
}

// New creates the TUI model. eventCh must be subscribed to engine's bus.
func New(ctx context.Context, engine *core.Engine, convs Conversations, eventCh <-chan core.Event) Model {
	return Model{
		ctx:        ctx,
		engine:     engine,
		convs:      convs,
		eventCh:    eventCh,
		view:       ViewConversations,
		input:      NewInputModel(),
		viewport:   viewport.New(80, 10),
		autoScroll: true,
		indicator:  NewNetIndicator(),
	}
}

// OpenOnStart makes the model open conversation id once the list has loaded.
func (m Model) OpenOnStart(id string) Model {
	m.startID = id
	return m
}

// Init starts identity verification, the conversation list and the event loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.verifyIdentity(),
		m.loadConversations(),
		m.listenForEvents(),
		m.indicator.Init(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width)
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.view == ViewChat {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			m.autoScroll = m.viewport.AtBottom()
			return m, cmd
		}
		return m, nil

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, m.listenForEvents()

	case NetIndicatorTickMsg:
		m.updateActivity()
		var cmd tea.Cmd
		m.indicator, cmd = m.indicator.Update(msg)
		return m, cmd

	case identityMsg:
		m.user = msg.user
		if msg.err != nil {
			m.err = fmt.Errorf("sign in: %w", msg.err)
		}
		return m, nil

	case conversationsMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("list conversations: %w", msg.err)
			return m, nil
		}
		m.conversations = msg.convs
		m.selectedIdx = max(0, min(m.selectedIdx, len(m.conversations)-1))
		if m.startID != "" {
			conv := chat.Conversation{ID: chat.ID(m.startID)}
			for i, c := range m.conversations {
				if c.ID.String() == m.startID {
					conv, m.selectedIdx = c, i
				}
			}
			m.startID = ""
			return m.openConversation(conv)
		}
		return m, nil

	case conversationCreatedMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("create conversation: %w", msg.err)
			return m, nil
		}
		m.conversations = append([]chat.Conversation{*msg.conv}, m.conversations...)
		m.selectedIdx = 0
		return m.openConversation(*msg.conv)

	case switchDoneMsg:
		return m.handleSwitchDone(msg)

	case sendDoneMsg:
		m.sending = false
		if msg.outcome == core.OutcomeSkipped && m.view == ViewChat && m.input.Value() == "" {
			m.input.SetValue(msg.content)
		}
		m.updateActivity()
		return m, nil

	case retryDoneMsg:
		m.sending = false
		m.updateActivity()
		return m, nil
	}

	return m, nil
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return RenderHelp(m.width, m.height)
	}

	var sections []string
	if m.view == ViewChat {
		sections = append(sections,
			RenderFocusView(m.chatInfo(), m.viewport, m.indicator.View(), m.width),
			m.input.View(m.width),
		)
	} else {
		sections = append(sections, RenderDashboard(m.conversations, m.selectedIdx, m.user, m.width, m.listHeight()))
		if m.input.IsActive() {
			sections = append(sections, m.input.View(m.width))
		}
	}

	if line := m.statusLine(); line != "" {
		sections = append(sections, line)
	}
	if m.view == ViewChat {
		sections = append(sections, chatFooter())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) statusLine() string {
	switch {
	case m.err != nil:
		return noticeErrorStyle.Render("Error: " + m.err.Error())
	case m.notice == nil:
		return ""
	case m.notice.Level == core.NoticeError:
		return noticeErrorStyle.Render(m.notice.Text)
	case m.notice.Level == core.NoticeWarning:
		return noticeWarningStyle.Render(m.notice.Text)
	default:
		return noticeInfoStyle.Render(m.notice.Text)
	}
}

func (m Model) listHeight() int {
	h := m.height - 1
	if m.input.IsActive() {
		h -= m.input.Height()
	}
	return h
}

func (m Model) chatInfo() ChatInfo {
	retry, retryOK := m.engine.RetryAvailable()
	return ChatInfo{
		ID:         m.active.ID.String(),
		Name:       m.active.Name,
		Responding: m.engine.AwaitingReply(),
		Retry:      retry,
		RetryOK:    retryOK,
		Failed:     m.engine.SendFailed(m.active.ID.String()),
		AutoScroll: m.autoScroll,
		TotalLines: m.totalLines,
	}
}

// layout sizes the viewport to what the chat chrome leaves over.
func (m *Model) layout() {
	// header, status, title, log border (2), status line, footer
	chrome := 7 + m.input.Height()
	m.viewport.Width = max(20, m.width-6)
	m.viewport.Height = max(3, m.height-chrome)
	m.refresh()
}

// refresh re-renders the active conversation into the viewport.
func (m *Model) refresh() {
	if m.view != ViewChat {
		return
	}
	content := renderMessages(m.engine.Snapshot(), m.viewport.Width, m.engine.Loaded())
	m.viewport.SetContent(content)
	m.totalLines = strings.Count(content, "\n") + 1
	if m.autoScroll {
		m.viewport.GotoBottom()
	}
	m.updateActivity()
}

func (m *Model) updateActivity() {
	switch {
	case m.view != ViewChat:
		m.indicator.SetActivity(NetActivityIdle)
	case !m.engine.Loaded():
		m.indicator.SetActivity(NetActivityLoading)
	case m.sending:
		m.indicator.SetActivity(NetActivitySending)
	case m.engine.AwaitingReply():
		m.indicator.SetActivity(NetActivityReply)
	default:
		m.indicator.SetActivity(NetActivityIdle)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		m.saveDraft()
		return m, tea.Quit
	}
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if key.Matches(msg, keys.HelpAlways) || (key.Matches(msg, keys.Help) && m.view == ViewConversations && !m.input.IsActive()) {
		m.showHelp = true
		return m, nil
	}

	if m.view == ViewChat {
		return m.handleChatKey(msg)
	}
	if m.input.IsActive() {
		return m.handleNameKey(msg)
	}
	return m.handleDashboardKey(msg)
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.QuitList):
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}

	case key.Matches(msg, keys.Down):
		if m.selectedIdx < len(m.conversations)-1 {
			m.selectedIdx++
		}

	case key.Matches(msg, keys.Enter):
		if m.selectedIdx < len(m.conversations) {
			return m.openConversation(m.conversations[m.selectedIdx])
		}

	case key.Matches(msg, keys.New):
		m.err = nil
		return m, m.input.SetMode(InputModeNewConversation, "")

	case key.Matches(msg, keys.Refresh):
		m.err = nil
		return m, m.loadConversations()
	}
	return m, nil
}

func (m Model) handleNameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		m.input.Deactivate()
		return m, nil
	case key.Matches(msg, keys.Enter):
		name := strings.TrimSpace(m.input.Value())
		m.input.Deactivate()
		return m, m.createConversation(name)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.active.ID.String()

	switch {
	case key.Matches(msg, keys.Escape):
		m.saveDraft()
		m.engine.Reset()
		m.view = ViewConversations
		m.notice = nil
		m.input.Deactivate()
		m.updateActivity()
		return m, m.loadConversations()

	case key.Matches(msg, keys.Enter):
		return m.send()

	case key.Matches(msg, keys.Retry):
		if _, ok := m.engine.RetryAvailable(); !ok {
			return m, nil
		}
		m.notice = nil
		m.sending = true
		m.updateActivity()
		return m, m.retry()

	case key.Matches(msg, keys.Restore):
		if content, ok := m.engine.LastFailedContent(id); ok {
			m.input.SetValue(content)
			m.engine.SetDraft(id, content)
			m.layout()
		}
		return m, nil

	case key.Matches(msg, keys.Reload):
		m.notice = nil
		m.autoScroll = true
		return m, m.reload()

	case key.Matches(msg, keys.PageUp):
		m.viewport.SetYOffset(m.viewport.YOffset - m.viewport.Height)
		m.autoScroll = false
		return m, nil

	case key.Matches(msg, keys.PageDown):
		m.viewport.SetYOffset(m.viewport.YOffset + m.viewport.Height)
		m.autoScroll = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, keys.Bottom):
		m.viewport.GotoBottom()
		m.autoScroll = true
		return m, nil
	}

	height := m.input.Height()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.engine.SetDraft(id, m.input.Value())
	if m.input.Height() != height {
		m.layout()
	}
	return m, cmd
}

func (m Model) send() (tea.Model, tea.Cmd) {
	content := m.input.Value()
	if strings.TrimSpace(content) == "" {
		return m, nil
	}
	m.engine.SetDraft(m.active.ID.String(), content)
	m.input.AddToHistory(content)
	m.input.Reset()
	m.notice = nil
	m.sending = true
	m.autoScroll = true
	m.layout()

	engine, ctx := m.engine, m.ctx
	return m, func() tea.Msg {
		return sendDoneMsg{content: content, outcome: engine.Send(ctx, content)}
	}
}

func (m Model) openConversation(conv chat.Conversation) (tea.Model, tea.Cmd) {
	m.active = conv
	m.view = ViewChat
	m.notice = nil
	m.err = nil
	m.autoScroll = true
	cmd := m.input.SetMode(InputModeMessage, m.engine.Draft(conv.ID.String()))
	m.layout()

	engine, ctx, id := m.engine, m.ctx, conv.ID.String()
	return m, tea.Batch(cmd, func() tea.Msg {
		return switchDoneMsg{id: id, err: engine.SwitchConversation(ctx, id)}
	})
}

func (m Model) handleSwitchDone(msg switchDoneMsg) (tea.Model, tea.Cmd) {
	if msg.id != m.active.ID.String() || m.view != ViewChat {
		return m, nil
	}
	switch {
	case msg.err == nil, errors.Is(msg.err, core.ErrViewClosed):
	case errors.Is(msg.err, core.ErrConversationNotFound):
		m.leaveAbandoned()
		return m, m.loadConversations()
	default:
		log.Error().Err(msg.err).Str("conversation_id", msg.id).Msg("Failed to open conversation")
		m.err = msg.err
	}
	m.refresh()
	return m, nil
}

// leaveAbandoned returns to the list after the active conversation vanished.
func (m *Model) leaveAbandoned() {
	m.view = ViewConversations
	m.input.Deactivate()
	m.updateActivity()
}

func (m *Model) saveDraft() {
	if m.view == ViewChat && m.input.Mode() == InputModeMessage {
		m.engine.SetDraft(m.active.ID.String(), m.input.Value())
	}
}

func (m *Model) handleEvent(event core.Event) {
	if event.ConversationID != "" && event.ConversationID != m.active.ID.String() {
		return
	}

	switch event.Type {
	case core.EventMessagesChanged, core.EventHistoryLoaded, core.EventRetryAvailable, core.EventSendFailed:
		m.refresh()

	case core.EventHistoryFailed, core.EventStreamError:
		m.refresh()

	case core.EventConversationAbandoned:
		if m.view == ViewChat {
			m.leaveAbandoned()
		}

	case core.EventNotification:
		if data, ok := event.Data.(core.NotificationData); ok {
			m.notice = &data
		}
	}
}

func (m Model) verifyIdentity() tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		user, err := engine.VerifyIdentity(ctx)
		return identityMsg{user: user, err: err}
	}
}

func (m Model) loadConversations() tea.Cmd {
	convs, ctx := m.convs, m.ctx
	return func() tea.Msg {
		list, err := convs.ListConversations(ctx)
		return conversationsMsg{convs: list, err: err}
	}
}

func (m Model) createConversation(name string) tea.Cmd {
	convs, ctx := m.convs, m.ctx
	return func() tea.Msg {
		conv, err := convs.CreateConversation(ctx, name)
		return conversationCreatedMsg{conv: conv, err: err}
	}
}

func (m Model) retry() tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		return retryDoneMsg{outcome: engine.Retry(ctx)}
	}
}

func (m Model) reload() tea.Cmd {
	engine, ctx, id := m.engine, m.ctx, m.active.ID.String()
	return func() tea.Msg {
		return switchDoneMsg{id: id, err: engine.Reload(ctx)}
	}
}

func (m Model) listenForEvents() tea.Cmd {
	ch := m.eventCh
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return EventMsg{Event: event}
	}
}

var keys = struct {
	Quit       key.Binding
	QuitList   key.Binding
	Help       key.Binding
	HelpAlways key.Binding
	Escape     key.Binding
	Enter      key.Binding
	Up         key.Binding
	Down       key.Binding
	New        key.Binding
	Refresh    key.Binding
	Retry      key.Binding
	Restore    key.Binding
	Reload     key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Bottom     key.Binding
}{
	Quit:       key.NewBinding(key.WithKeys("ctrl+c")),
	QuitList:   key.NewBinding(key.WithKeys("q")),
	Help:       key.NewBinding(key.WithKeys("?")),
	HelpAlways: key.NewBinding(key.WithKeys("f1")),
	Escape:     key.NewBinding(key.WithKeys("esc")),
	Enter:      key.NewBinding(key.WithKeys("enter")),
	Up:         key.NewBinding(key.WithKeys("up", "k")),
	Down:       key.NewBinding(key.WithKeys("down", "j")),
	New:        key.NewBinding(key.WithKeys("n")),
	Refresh:    key.NewBinding(key.WithKeys("r")),
	Retry:      key.NewBinding(key.WithKeys("ctrl+r")),
	Restore:    key.NewBinding(key.WithKeys("ctrl+e")),
	Reload:     key.NewBinding(key.WithKeys("ctrl+l")),
	PageUp:     key.NewBinding(key.WithKeys("pgup")),
	PageDown:   key.NewBinding(key.WithKeys("pgdown")),
	Bottom:     key.NewBinding(key.WithKeys("end")),
}
