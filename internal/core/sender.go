package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/constants"
)

// SendCoordinator runs the create-message cycle of a view.
type SendCoordinator struct {
	backend  Backend
	bus      *EventBus
	identity *Identity
	drafts   *Drafts
	failed   *FailedFlags
}

func NewSendCoordinator(backend Backend, bus *EventBus, identity *Identity, drafts *Drafts, failed *FailedFlags) *SendCoordinator {
	return &SendCoordinator{
		backend:  backend,
		bus:      bus,
		identity: identity,
		drafts:   drafts,
		failed:   failed,
	}
}

// Send submits content to the conversation of v.
//
// It is a no-op, with a warning where the user can act on it, when the content is
// empty or whitespace only (silently; content is otherwise sent untrimmed), no
// identity is established, the history has not loaded yet, another send
// is in flight or the tail message is still processing. A non-resend clears the
// draft; every send clears the failed flag before the request is issued.
//
// While the request is in flight an optimistic user entry sits at the tail. On
// success the returned records supersede it; on failure it is dropped, the error
// is reported and the failed flag keeps the content.
func (s *SendCoordinator) Send(ctx context.Context, v *ConversationView, content string, resend bool) Outcome {
	if v == nil || v.id == "" || strings.TrimSpace(content) == "" {
		return OutcomeSkipped
	}
	if !s.identity.Established() {
		s.bus.Notify(v.id, NoticeWarning, constants.NoticeNotSignedIn)
		return OutcomeSkipped
	}

	localID := chat.ID(chat.LocalIDPrefix + uuid.NewString())
	notice := ""

	v.mu.Lock()
	switch {
	case v.closed:
		v.mu.Unlock()
		return OutcomeSkipped
	case !v.loaded:
		notice = constants.NoticeHistoryLoading
	case v.sending:
		notice = constants.NoticeSendInFlight
	case v.store.TailProcessing():
		notice = constants.NoticeWaitForReply
	}
	if notice != "" {
		v.mu.Unlock()
		s.bus.Notify(v.id, NoticeWarning, notice)
		return OutcomeSkipped
	}

	v.sending = true
	if !resend {
		s.drafts.Clear(v.id)
	}
	s.failed.Clear(v.id)
	v.store.Upsert(chat.Message{
		ID:             localID,
		ConversationID: chat.ID(v.id),
		Role:           chat.RoleUser,
		Content:        content,
		State:          chat.StateCreated,
		CreatedAt:      time.Now().UTC(),
	})
	available := v.retry.Observe(v.store)
	v.mu.Unlock()
	v.changed(available)

	log.Debug().Str("conversation_id", v.id).Bool("resend", resend).Int("content_len", len(content)).Msg("Sending message")
	records, err := s.backend.CreateMessage(ctx, v.id, content)

	if err != nil {
		v.apply(func() {
			v.sending = false
			v.store.Remove(localID)
		})
		s.fail(v.id, content, err)
		return OutcomeFailed
	}

	confirmed := make([]chat.Message, 0, len(records))
	for _, m := range records {
		if m.ConversationID != "" && string(m.ConversationID) != v.id {
			log.Warn().
				Str("conversation_id", v.id).
				Str("message_id", m.ID.String()).
				Msg("Dropping send record of another conversation")
			continue
		}
		confirmed = append(confirmed, m)
	}

	applied := v.apply(func() {
		v.sending = false
		if len(confirmed) == 0 {
			v.store.Remove(localID)
			return
		}
		v.store.Resolve(localID, confirmed)
	})
	if !applied {
		log.Debug().Str("conversation_id", v.id).Msg("Send completed for inactive conversation")
		return OutcomeSent
	}
	if len(confirmed) == 0 {
		log.Warn().Str("conversation_id", v.id).Msg("Send returned no records")
		s.bus.Notify(v.id, NoticeWarning, constants.UnexpectedEmptyReply)
	}
	return OutcomeSent
}

func (s *SendCoordinator) fail(conversationID, content string, err error) {
	text := api.Describe(err, constants.DefaultSendError)
	log.Error().Err(err).Str("conversation_id", conversationID).Msg("Send failed")

	s.failed.Set(conversationID, content)
	s.bus.Publish(Event{
		Type:           EventSendFailed,
		ConversationID: conversationID,
		Data:           ErrorData{Error: text},
	})
	s.bus.Notify(conversationID, NoticeError, text)
}
