package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/constants"
)

// Engine keeps one consistent, ordered view of the active conversation, fed by
// the history fetch, the send cycle and the push stream.
type Engine struct {
	backend  Backend
	bus      *EventBus
	identity *Identity
	drafts   *Drafts
	failed   *FailedFlags

	history  *HistoryLoader
	receiver *LiveEventReceiver
	sender   *SendCoordinator

	ctx    context.Context
	cancel context.CancelFunc

	// switchMu serializes changes of the active view and of the push subscription.
	switchMu sync.Mutex
	mu       sync.RWMutex
	active   *ConversationView
}

// NewEngine creates an engine on top of backend, publishing to bus.
func NewEngine(backend Backend, bus *EventBus) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	identity := &Identity{}
	drafts := NewDrafts()
	failed := NewFailedFlags()
	return &Engine{
		backend:  backend,
		bus:      bus,
		identity: identity,
		drafts:   drafts,
		failed:   failed,
		history:  NewHistoryLoader(backend, bus),
		receiver: NewLiveEventReceiver(backend, bus),
		sender:   NewSendCoordinator(backend, bus, identity, drafts, failed),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *EventBus { return e.bus }

// Identity returns the identity holder.
func (e *Engine) Identity() *Identity { return e.identity }

// VerifyIdentity asks the backend for the current user and records the result.
func (e *Engine) VerifyIdentity(ctx context.Context) (*chat.User, error) {
	user, err := e.backend.VerifyIdentity(ctx)
	if err != nil {
		if api.IsUnauthorized(err) {
			e.identity.Set(nil)
		}
		return nil, fmt.Errorf("verify identity: %w", err)
	}
	e.identity.Set(user)
	log.Info().Str("user_id", user.ID.String()).Msg("Identity verified")
	return user, nil
}

func (e *Engine) activeView() *ConversationView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

func (e *Engine) isActive(v *ConversationView) bool {
	return e.activeView() == v
}

// ActiveConversation returns the id of the active conversation, or "".
func (e *Engine) ActiveConversation() string {
	if v := e.activeView(); v != nil {
		return v.id
	}
	return ""
}

// SwitchConversation activates conversationID: the previous view is closed and
// its subscription torn down, the history is fetched, and only then is the push
// stream opened. Switching to the active conversation is a no-op; use Reload to
// start it over.
//
// A conversation that does not exist is abandoned and ErrConversationNotFound
// returned. If another switch supersedes this one while it runs, ErrViewClosed is
// returned.
func (e *Engine) SwitchConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		e.Reset()
		return nil
	}
	if e.ActiveConversation() == conversationID {
		return nil
	}
	return e.activate(ctx, conversationID)
}

// Reload discards the active view and activates the same conversation again.
func (e *Engine) Reload(ctx context.Context) error {
	id := e.ActiveConversation()
	if id == "" {
		return nil
	}
	return e.activate(ctx, id)
}

func (e *Engine) activate(ctx context.Context, conversationID string) error {
	v := newConversationView(e.ctx, conversationID, e.sender, e.viewChanged)

	e.switchMu.Lock()
	e.deactivateLocked()
	e.mu.Lock()
	e.active = v
	e.mu.Unlock()
	e.switchMu.Unlock()

	log.Info().Str("conversation_id", conversationID).Msg("Conversation activated")
	e.bus.Publish(Event{Type: EventConversationActivated, ConversationID: conversationID})
	e.bus.Publish(Event{Type: EventMessagesChanged, ConversationID: conversationID})

	hctx, stop := context.WithCancel(v.ctx)
	defer stop()
	unwatch := context.AfterFunc(ctx, stop)
	defer unwatch()

	if err := e.history.Load(hctx, v); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			e.abandon(v)
		}
		return err
	}

	e.switchMu.Lock()
	defer e.switchMu.Unlock()
	if !e.isActive(v) || v.Closed() {
		return ErrViewClosed
	}
	if err := e.receiver.Open(v.ctx, v); err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to open push subscription")
		e.bus.Publish(Event{
			Type:           EventStreamError,
			ConversationID: conversationID,
			Data:           ErrorData{Error: err.Error()},
		})
		e.bus.Notify(conversationID, NoticeWarning, constants.NoticeStreamLost)
		return nil
	}
	return nil
}

// deactivateLocked closes the active view and the subscription. switchMu must be held.
func (e *Engine) deactivateLocked() *ConversationView {
	e.mu.Lock()
	old := e.active
	e.active = nil
	e.mu.Unlock()

	if old != nil {
		old.close()
	}
	e.receiver.Close()
	return old
}

func (e *Engine) abandon(v *ConversationView) {
	e.switchMu.Lock()
	if e.isActive(v) {
		e.deactivateLocked()
	} else {
		v.close()
	}
	e.switchMu.Unlock()

	log.Warn().Str("conversation_id", v.id).Msg("Conversation abandoned")
	e.bus.Publish(Event{Type: EventConversationAbandoned, ConversationID: v.id})
	e.bus.Notify(v.id, NoticeError, constants.NoticeConversationNotFound)
}

// Reset drops the active view and returns to the empty default state.
// Drafts and failed flags are kept.
func (e *Engine) Reset() {
	e.switchMu.Lock()
	old := e.deactivateLocked()
	e.switchMu.Unlock()

	if old != nil {
		e.bus.Publish(Event{Type: EventMessagesChanged})
	}
}

// Close resets the engine and cancels every outstanding request.
func (e *Engine) Close() {
	e.Reset()
	e.cancel()
}

func (e *Engine) viewChanged(v *ConversationView, retryAvailable bool) {
	if !e.isActive(v) {
		return
	}
	e.bus.Publish(Event{Type: EventMessagesChanged, ConversationID: v.id})
	if retryAvailable {
		content, _ := v.retry.Enabled()
		e.bus.Publish(Event{
			Type:           EventRetryAvailable,
			ConversationID: v.id,
			Data:           RetryData{Content: content},
		})
	}
}

// Send submits content to the active conversation. See SendCoordinator.Send.
func (e *Engine) Send(ctx context.Context, content string) Outcome {
	v := e.activeView()
	if v == nil {
		return OutcomeSkipped
	}
	return e.sender.Send(ctx, v, content, false)
}

// Retry resends the timed-out tail message of the active conversation.
func (e *Engine) Retry(ctx context.Context) Outcome {
	v := e.activeView()
	if v == nil {
		return OutcomeSkipped
	}
	return v.retry.Retry(ctx)
}

// RetryAvailable returns the payload a retry would resend, if any.
func (e *Engine) RetryAvailable() (string, bool) {
	v := e.activeView()
	if v == nil {
		return "", false
	}
	return v.retry.Enabled()
}

// Snapshot returns the ordered messages of the active conversation.
func (e *Engine) Snapshot() []chat.Message {
	v := e.activeView()
	if v == nil {
		return nil
	}
	return v.store.Snapshot()
}

// AssistantResponding reports whether the tail of the active conversation is an
// assistant message still being processed.
func (e *Engine) AssistantResponding() bool {
	v := e.activeView()
	return v != nil && v.store.AssistantResponding()
}

// AwaitingReply reports whether the tail of the active conversation, of any
// role, is still being processed. Sends are refused while it is.
func (e *Engine) AwaitingReply() bool {
	v := e.activeView()
	return v != nil && v.store.TailProcessing()
}

// Loaded reports whether the active conversation's history load has completed.
func (e *Engine) Loaded() bool {
	v := e.activeView()
	return v != nil && v.Loaded()
}

// SendFailed reports whether the last send to conversationID failed.
func (e *Engine) SendFailed(conversationID string) bool {
	return e.failed.Failed(conversationID)
}

// LastFailedContent returns the content of the failed send to conversationID.
func (e *Engine) LastFailedContent(conversationID string) (string, bool) {
	return e.failed.Content(conversationID)
}

// Draft returns the unsent input of conversationID.
func (e *Engine) Draft(conversationID string) string {
	return e.drafts.Get(conversationID)
}

// SetDraft stores the unsent input of conversationID.
func (e *Engine) SetDraft(conversationID, text string) {
	e.drafts.Set(conversationID, text)
}
