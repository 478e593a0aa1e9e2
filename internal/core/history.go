package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/constants"
)

// HistoryLoader performs the one-shot history fetch of an activated view.
type HistoryLoader struct {
	backend Backend
	bus     *EventBus
}

func NewHistoryLoader(backend Backend, bus *EventBus) *HistoryLoader {
	return &HistoryLoader{backend: backend, bus: bus}
}

// Load fetches the history of v and installs it with ReplaceAll. A result that
// arrives after v closed is discarded and ErrViewClosed returned.
//
// A not-found failure returns ErrConversationNotFound and leaves v untouched; the
// caller abandons the view. Any other failure is reported as a notification and
// the view becomes usable but empty; Load then returns nil.
func (h *HistoryLoader) Load(ctx context.Context, v *ConversationView) error {
	msgs, err := h.backend.FetchHistory(ctx, v.id)
	if v.Closed() {
		log.Debug().Str("conversation_id", v.id).Msg("Discarding history for inactive conversation")
		return ErrViewClosed
	}

	if err != nil {
		if api.IsNotFound(err) {
			return fmt.Errorf("load history of %s: %w", v.id, ErrConversationNotFound)
		}

		log.Warn().Err(err).Str("conversation_id", v.id).Msg("History load failed")
		applied := v.apply(func() { v.loaded = true })
		if !applied {
			return ErrViewClosed
		}
		text := fmt.Sprintf("%s: %s", constants.NoticeHistoryFailed, api.Describe(err, "request failed"))
		h.bus.Publish(Event{
			Type:           EventHistoryFailed,
			ConversationID: v.id,
			Data:           ErrorData{Error: err.Error()},
		})
		h.bus.Notify(v.id, NoticeError, text)
		return nil
	}

	kept := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ConversationID != "" && string(m.ConversationID) != v.id {
			log.Warn().
				Str("conversation_id", v.id).
				Str("message_id", m.ID.String()).
				Str("message_conversation_id", m.ConversationID.String()).
				Msg("Dropping history record of another conversation")
			continue
		}
		kept = append(kept, m)
	}

	if !v.apply(func() {
		v.store.ReplaceAll(kept)
		v.loaded = true
	}) {
		return ErrViewClosed
	}

	log.Debug().Str("conversation_id", v.id).Int("messages", len(kept)).Msg("History loaded")
	h.bus.Publish(Event{Type: EventHistoryLoaded, ConversationID: v.id})
	return nil
}
