package tui

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/config"
	"github.com/xonecas/parley/internal/core"
	"github.com/xonecas/parley/internal/devserver"
	"github.com/xonecas/parley/internal/provider"
	"github.com/xonecas/parley/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// flakyBackend fails create-message calls while failCreate is set.
type flakyBackend struct {
	*api.Client
	failCreate atomic.Bool
}

func (b *flakyBackend) CreateMessage(ctx context.Context, conversationID, content string) ([]chat.Message, error) {
	if b.failCreate.Load() {
		return nil, errors.New("connection reset")
	}
	return b.Client.CreateMessage(ctx, conversationID, content)
}

type harness struct {
	t       *testing.T
	model   Model
	engine  *core.Engine
	client  *api.Client
	backend *flakyBackend
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	cfg := config.DefaultConfig().Server
	cfg.ResponseTimeout = config.Duration{Duration: 5 * time.Second}
	srv, err := devserver.New(cfg, st, provider.NewEcho(0))
	if err != nil {
		t.Fatalf("devserver.New() error: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())

	client := api.NewClient(ts.URL)
	backend := &flakyBackend{Client: client}
	bus := core.NewEventBus(256)
	engine := core.NewEngine(backend, bus)
	eventCh := bus.Subscribe()

	t.Cleanup(func() {
		engine.Close()
		bus.Close()
		srv.Close()
		ts.Close()
		st.Close()
	})

	h := &harness{
		t:       t,
		model:   New(context.Background(), engine, client, eventCh),
		engine:  engine,
		client:  client,
		backend: backend,
	}
	h.update(tea.WindowSizeMsg{Width: 100, Height: 40})
	h.update(h.model.verifyIdentity()())
	if h.model.user == nil {
		t.Fatalf("identity not verified: %v", h.model.err)
	}
	return h
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	h.t.Helper()
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

func (h *harness) key(k tea.KeyType) tea.Cmd {
	return h.update(tea.KeyMsg{Type: k})
}

func (h *harness) typeText(s string) {
	h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) conversation(name string) chat.Conversation {
	h.t.Helper()
	conv, err := h.client.CreateConversation(context.Background(), name)
	if err != nil {
		h.t.Fatalf("CreateConversation() error: %v", err)
	}
	return *conv
}

// listConversations runs the list command the way the program would.
func (h *harness) listConversations() {
	h.update(h.model.loadConversations()())
}

// open selects the first conversation and performs the switch synchronously.
func (h *harness) open() string {
	h.t.Helper()
	h.key(tea.KeyEnter)
	if h.model.view != ViewChat {
		h.t.Fatalf("view = %v after enter, want chat", h.model.view)
	}
	id := h.model.active.ID.String()
	err := h.engine.SwitchConversation(context.Background(), id)
	h.update(switchDoneMsg{id: id, err: err})
	return id
}

func (h *harness) view() string {
	return stripANSI(h.model.View())
}

func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestModelSendAndReceiveReply(t *testing.T) {
	h := setupHarness(t)
	h.conversation("greetings")
	h.listConversations()

	if !strings.Contains(h.view(), "greetings") {
		t.Fatalf("list does not show the conversation:\n%s", h.view())
	}

	id := h.open()
	if !strings.Contains(h.view(), "No messages yet") {
		t.Errorf("empty conversation view:\n%s", h.view())
	}

	h.typeText("hello")
	if got := h.engine.Draft(id); got != "hello" {
		t.Errorf("draft = %q, want hello", got)
	}

	cmd := h.key(tea.KeyEnter)
	if cmd == nil {
		t.Fatal("expected a send command")
	}
	if h.model.input.Value() != "" {
		t.Errorf("input = %q after send, want empty", h.model.input.Value())
	}
	done := cmd().(sendDoneMsg)
	if done.outcome != core.OutcomeSent {
		t.Fatalf("outcome = %v, want sent", done.outcome)
	}
	h.update(done)

	h.waitFor("the assistant reply", func() bool {
		for _, m := range h.engine.Snapshot() {
			if m.Role == chat.RoleAssistant && m.State == chat.StateFinished {
				return true
			}
		}
		return false
	})
	h.update(EventMsg{Event: core.Event{Type: core.EventMessagesChanged, ConversationID: id}})

	out := h.view()
	for _, want := range []string{"YOU: hello", "AI: You said: hello"} {
		if !strings.Contains(out, want) {
			t.Errorf("chat view missing %q:\n%s", want, out)
		}
	}
	if h.engine.Draft(id) != "" {
		t.Errorf("draft = %q after a successful send", h.engine.Draft(id))
	}
}

func TestModelSkippedSendRestoresInput(t *testing.T) {
	h := setupHarness(t)
	h.conversation("c")
	h.listConversations()
	h.open()

	h.update(sendDoneMsg{content: "not yet", outcome: core.OutcomeSkipped})
	if got := h.model.input.Value(); got != "not yet" {
		t.Errorf("input = %q, want the skipped content back", got)
	}

	// Text typed since is not overwritten.
	h.model.input.SetValue("newer")
	h.update(sendDoneMsg{content: "older", outcome: core.OutcomeSkipped})
	if got := h.model.input.Value(); got != "newer" {
		t.Errorf("input = %q, want newer", got)
	}
}

func TestModelFailedSendCanBeRestored(t *testing.T) {
	h := setupHarness(t)
	h.conversation("c")
	h.listConversations()
	id := h.open()

	h.backend.failCreate.Store(true)
	h.typeText("lost words")
	done := h.key(tea.KeyEnter)().(sendDoneMsg)
	if done.outcome != core.OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", done.outcome)
	}
	h.update(done)
	h.update(EventMsg{Event: core.Event{Type: core.EventSendFailed, ConversationID: id}})

	if !strings.Contains(h.view(), "send failed") {
		t.Errorf("view does not report the failure:\n%s", h.view())
	}
	if h.model.input.Value() != "" {
		t.Fatalf("input = %q before restore", h.model.input.Value())
	}

	h.key(tea.KeyCtrlE)
	if got := h.model.input.Value(); got != "lost words" {
		t.Errorf("input = %q after restore, want lost words", got)
	}
}

func TestModelEscapeKeepsDraft(t *testing.T) {
	h := setupHarness(t)
	h.conversation("c")
	h.listConversations()
	id := h.open()

	h.typeText("half a thought")
	h.key(tea.KeyEsc)

	if h.model.view != ViewConversations {
		t.Fatalf("view = %v after esc, want list", h.model.view)
	}
	if h.engine.ActiveConversation() != "" {
		t.Errorf("active conversation = %q after esc, want none", h.engine.ActiveConversation())
	}
	if got := h.engine.Draft(id); got != "half a thought" {
		t.Errorf("draft = %q", got)
	}

	h.open()
	if got := h.model.input.Value(); got != "half a thought" {
		t.Errorf("input = %q after reopening, want the draft", got)
	}
}

func TestModelMissingConversationReturnsToList(t *testing.T) {
	h := setupHarness(t)
	h.update(conversationsMsg{convs: []chat.Conversation{{ID: "999", Name: "ghost"}}})

	h.key(tea.KeyEnter)
	err := h.engine.SwitchConversation(context.Background(), "999")
	if !errors.Is(err, core.ErrConversationNotFound) {
		t.Fatalf("SwitchConversation() error = %v, want not found", err)
	}
	cmd := h.update(switchDoneMsg{id: "999", err: err})

	if h.model.view != ViewConversations {
		t.Errorf("view = %v, want list", h.model.view)
	}
	if cmd == nil {
		t.Error("expected the list to be reloaded")
	}
	if h.model.input.IsActive() {
		t.Error("composer should be inactive on the list")
	}
}

func TestModelNewConversation(t *testing.T) {
	h := setupHarness(t)
	h.listConversations()

	h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if h.model.input.Mode() != InputModeNewConversation {
		t.Fatalf("mode = %v, want new conversation", h.model.input.Mode())
	}
	h.typeText("plans")
	cmd := h.key(tea.KeyEnter)
	if cmd == nil {
		t.Fatal("expected a create command")
	}
	h.update(cmd())

	if h.model.view != ViewChat {
		t.Fatalf("view = %v, want chat", h.model.view)
	}
	if h.model.active.Name != "plans" {
		t.Errorf("active = %+v", h.model.active)
	}
	if len(h.model.conversations) != 1 || h.model.selectedIdx != 0 {
		t.Errorf("conversations = %+v, selected %d", h.model.conversations, h.model.selectedIdx)
	}
}

func TestModelHelpToggle(t *testing.T) {
	h := setupHarness(t)

	h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	if !h.model.showHelp {
		t.Fatal("? should open help on the list")
	}
	h.key(tea.KeyEsc)
	if h.model.showHelp {
		t.Error("any key should close help")
	}
}

func TestModelIgnoresOtherConversationEvents(t *testing.T) {
	h := setupHarness(t)
	h.conversation("c")
	h.listConversations()
	h.open()

	h.update(EventMsg{Event: core.Event{
		Type:           core.EventNotification,
		ConversationID: "other",
		Data:           core.NotificationData{Level: core.NoticeError, Text: "not for you"},
	}})
	if strings.Contains(h.view(), "not for you") {
		t.Error("notification of another conversation was shown")
	}
}

func TestModelOpenOnStart(t *testing.T) {
	h := setupHarness(t)
	h.conversation("first")
	second := h.conversation("second")
	h.model = h.model.OpenOnStart(second.ID.String())

	h.listConversations()
	if h.model.view != ViewChat {
		t.Fatalf("view = %v, want chat", h.model.view)
	}
	if h.model.active.Name != "second" {
		t.Errorf("active = %+v, want second", h.model.active)
	}
	if h.model.conversations[h.model.selectedIdx].ID != second.ID {
		t.Errorf("selected %d does not point at the opened conversation", h.model.selectedIdx)
	}

	// Only the first list load opens it.
	h.key(tea.KeyEsc)
	h.listConversations()
	if h.model.view != ViewConversations {
		t.Error("a later reload reopened the conversation")
	}
}
