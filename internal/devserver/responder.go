package devserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/constants"
	"github.com/xonecas/parley/internal/provider"
	"github.com/xonecas/parley/internal/store"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("responder stopped")

// CanceledReply is stored on a reply abandoned because the server stopped.
const CanceledReply = "Request was cancelled."

// Responder stores user messages and produces assistant replies in the background.
//
// In placeholder mode the user message is stored finished next to an assistant
// placeholder that is processing; the reply later replaces the placeholder.
// In deferred mode only the user message is stored, processing; the reply
// finishes it and adds a new assistant message.
type Responder struct {
	store       *store.Store
	broker      *Broker
	provider    provider.Provider
	metrics     *Metrics
	timeout     time.Duration
	placeholder bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewResponder creates a responder. A non-positive timeout disables the bound.
func NewResponder(st *store.Store, broker *Broker, p provider.Provider, metrics *Metrics, timeout time.Duration, placeholder bool) *Responder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Responder{
		store:       st,
		broker:      broker,
		provider:    p,
		metrics:     metrics,
		timeout:     timeout,
		placeholder: placeholder,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Accepted is a stored user message whose reply has not started yet.
type Accepted struct {
	// Records are the messages to return to the sender.
	Records []chat.Message

	user    chat.Message
	pending chat.Message
}

// Submit stores content as a user message of conversationID and returns the
// records created so far. The reply begins with Start.
func (r *Responder) Submit(conversationID chat.ID, content string) (*Accepted, error) {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()
	if stopped {
		return nil, ErrStopped
	}

	userState := chat.StateProcessing
	if r.placeholder {
		userState = chat.StateFinished
	}
	userMsg, err := r.store.CreateMessage(conversationID, chat.RoleUser, content, userState)
	if err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}
	r.metrics.messageCreated(string(chat.RoleUser))

	accepted := &Accepted{
		Records: []chat.Message{*userMsg},
		user:    *userMsg,
		pending: *userMsg,
	}
	if r.placeholder {
		placeholder, err := r.store.CreateMessage(conversationID, chat.RoleAssistant, constants.AssistantPlaceholder, chat.StateProcessing)
		if err != nil {
			return nil, fmt.Errorf("store placeholder: %w", err)
		}
		r.metrics.messageCreated(string(chat.RoleAssistant))
		accepted.Records = append(accepted.Records, *placeholder)
		accepted.pending = *placeholder
	}
	return accepted, nil
}

// Start produces the reply to an accepted message in the background.
func (r *Responder) Start(a *Accepted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		r.settle(a.pending, chat.StateCanceled, canceledContent(a.pending), time.Now())
		return
	}
	r.wg.Add(1)
	go r.reply(a.user, a.pending)
}

// reply asks the provider for an answer and settles pending, which is the
// placeholder in placeholder mode and the user message otherwise.
func (r *Responder) reply(userMsg, pending chat.Message) {
	defer r.wg.Done()

	start := time.Now()
	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	logger := log.With().
		Str("conversation_id", userMsg.ConversationID.String()).
		Str("message_id", pending.ID.String()).
		Logger()

	prompt, err := r.prompt(userMsg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build reply context")
		r.settle(pending, chat.StateError, errorContent(pending), start)
		return
	}

	answer, err := r.provider.Chat(ctx, prompt)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Dur("timeout", r.timeout).Msg("Reply timed out")
		r.settle(pending, chat.StateTimeout, timeoutContent(pending), start)
		return
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("Reply canceled")
		r.settle(pending, chat.StateCanceled, canceledContent(pending), start)
		return
	default:
		logger.Error().Err(err).Str("provider", r.provider.Name()).Msg("Reply failed")
		r.settle(pending, chat.StateError, errorContent(pending), start)
		return
	}

	if pending.Role == chat.RoleAssistant {
		r.settle(pending, chat.StateFinished, answer, start)
		return
	}

	r.settle(pending, chat.StateFinished, pending.Content, start)
	assistant, err := r.store.CreateMessage(userMsg.ConversationID, chat.RoleAssistant, answer, chat.StateFinished)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store reply")
		return
	}
	r.metrics.messageCreated(string(chat.RoleAssistant))
	r.publish(*assistant)
}

// prompt is the earlier finished messages of the conversation followed by userMsg.
func (r *Responder) prompt(userMsg chat.Message) ([]provider.Message, error) {
	earlier, err := r.store.RecentMessages(userMsg.ConversationID, userMsg.ID, constants.HistoryContextMessages)
	if err != nil {
		return nil, err
	}
	prompt := make([]provider.Message, 0, len(earlier)+1)
	for _, m := range earlier {
		if m.Role == chat.RoleAdmin {
			continue
		}
		prompt = append(prompt, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(prompt, provider.Message{Role: string(chat.RoleUser), Content: userMsg.Content}), nil
}

func (r *Responder) settle(pending chat.Message, state chat.State, content string, start time.Time) {
	updated, err := r.store.UpdateMessage(pending.ID, content, state, nil)
	if err != nil {
		log.Error().Err(err).Str("message_id", pending.ID.String()).Msg("Failed to update message")
		return
	}
	r.metrics.replyFinished(string(state), time.Since(start))
	r.publish(*updated)
}

func (r *Responder) publish(m chat.Message) {
	if err := r.broker.Publish(m); err != nil {
		log.Error().Err(err).Str("message_id", m.ID.String()).Msg("Failed to publish update")
	}
}

// A user message keeps its content whatever happens to its reply.
func timeoutContent(pending chat.Message) string {
	if pending.Role == chat.RoleUser {
		return pending.Content
	}
	return constants.TimeoutReply
}

func errorContent(pending chat.Message) string {
	if pending.Role == chat.RoleUser {
		return pending.Content
	}
	return constants.ErrorReply
}

func canceledContent(pending chat.Message) string {
	if pending.Role == chat.RoleUser {
		return pending.Content
	}
	return CanceledReply
}

// Stop cancels the replies in flight and waits for them to settle.
func (r *Responder) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}
