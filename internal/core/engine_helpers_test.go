package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/chat"
)

type fakeStream struct {
	records chan []byte
	once    sync.Once
	mu      sync.Mutex
	err     error
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{records: make(chan []byte, 64)}
}

func (s *fakeStream) Records() <-chan []byte { return s.records }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.records) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// end simulates the server dropping the connection.
func (s *fakeStream) end(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.records) })
}

func (s *fakeStream) push(t *testing.T, m chat.Message) {
	t.Helper()
	data, err := json.Marshal(wire(m))
	if err != nil {
		t.Fatalf("marshal push record: %v", err)
	}
	s.records <- data
}

func (s *fakeStream) pushRaw(data string) {
	s.records <- []byte(data)
}

// wire renders a message the way the chat service does.
func wire(m chat.Message) map[string]interface{} {
	out := map[string]interface{}{
		"id":      m.ID,
		"chat_id": m.ConversationID,
		"role":    m.Role,
		"content": m.Content,
		"state":   m.State,
	}
	if len(m.Sources) > 0 {
		out["sources"] = m.Sources
	}
	return out
}

type createCall struct {
	conversationID string
	content        string
}

type fakeBackend struct {
	mu          sync.Mutex
	history     map[string][]chat.Message
	historyErr  map[string]error
	historyGate map[string]chan struct{}
	// historyHold makes FetchHistory wait for its context instead of a gate.
	historyHold map[string]bool
	fetchErrs   chan error
	fetching    chan string
	createFn    func(conversationID, content string) ([]chat.Message, error)
	createCtxFn func(ctx context.Context, conversationID, content string) ([]chat.Message, error)
	creates     []createCall
	streams     map[string][]*fakeStream
	user        *chat.User
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history:     make(map[string][]chat.Message),
		historyErr:  make(map[string]error),
		historyGate: make(map[string]chan struct{}),
		historyHold: make(map[string]bool),
		fetchErrs:   make(chan error, 16),
		fetching:    make(chan string, 16),
		streams:     make(map[string][]*fakeStream),
		user:        &chat.User{ID: "u1", Email: "user@example.com", Role: chat.RoleUser, Valid: true},
	}
}

func (f *fakeBackend) FetchHistory(ctx context.Context, conversationID string) ([]chat.Message, error) {
	f.mu.Lock()
	gate := f.historyGate[conversationID]
	msgs := append([]chat.Message(nil), f.history[conversationID]...)
	err := f.historyErr[conversationID]
	hold := f.historyHold[conversationID]
	f.mu.Unlock()

	f.fetching <- conversationID
	if hold {
		<-ctx.Done()
		f.fetchErrs <- ctx.Err()
		return nil, ctx.Err()
	}
	if gate != nil {
		// Ignores ctx on purpose: a late response must still be discarded.
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (f *fakeBackend) CreateMessage(ctx context.Context, conversationID, content string) ([]chat.Message, error) {
	f.mu.Lock()
	f.creates = append(f.creates, createCall{conversationID: conversationID, content: content})
	fn, ctxFn := f.createFn, f.createCtxFn
	f.mu.Unlock()

	if ctxFn != nil {
		return ctxFn(ctx, conversationID, content)
	}

	if fn == nil {
		return nil, nil
	}
	return fn(conversationID, content)
}

func (f *fakeBackend) Subscribe(ctx context.Context, conversationID string) (api.Stream, error) {
	s := newFakeStream()
	f.mu.Lock()
	f.streams[conversationID] = append(f.streams[conversationID], s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeBackend) VerifyIdentity(ctx context.Context) (*chat.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return nil, &api.Error{Kind: api.KindUnauthorized, Status: 401, Detail: "Not authenticated"}
	}
	return f.user, nil
}

func (f *fakeBackend) createCalls() []createCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createCall(nil), f.creates...)
}

func (f *fakeBackend) stream(t *testing.T, conversationID string) *fakeStream {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	streams := f.streams[conversationID]
	if len(streams) == 0 {
		t.Fatalf("no stream opened for %s", conversationID)
	}
	return streams[len(streams)-1]
}

func setupEngineTest(t *testing.T) (*Engine, *fakeBackend, <-chan Event) {
	t.Helper()
	backend := newFakeBackend()
	bus := NewEventBus(256)
	events := bus.Subscribe()
	engine := NewEngine(backend, bus)
	t.Cleanup(func() {
		engine.Close()
		bus.Close()
	})

	if _, err := engine.VerifyIdentity(context.Background()); err != nil {
		t.Fatalf("VerifyIdentity() error: %v", err)
	}
	return engine, backend, events
}

func activate(t *testing.T, e *Engine, id string) {
	t.Helper()
	if err := e.SwitchConversation(context.Background(), id); err != nil {
		t.Fatalf("SwitchConversation(%s) error: %v", id, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitEvent returns the first event of type typ, skipping others.
func waitEvent(t *testing.T, events <-chan Event, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

// waitNotice returns the text of the next notification.
func waitNotice(t *testing.T, events <-chan Event) NotificationData {
	t.Helper()
	ev := waitEvent(t, events, EventNotification)
	data, ok := ev.Data.(NotificationData)
	if !ok {
		t.Fatalf("unexpected notification data %T", ev.Data)
	}
	return data
}

func drain(events <-chan Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
