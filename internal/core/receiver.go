package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/chat"
	"github.com/xonecas/parley/internal/constants"
)

// LiveEventReceiver holds the single push subscription of the engine.
// At most one handle is open at a time; it must be closed before a
// subscription for another conversation is opened.
type LiveEventReceiver struct {
	backend Backend
	bus     *EventBus

	mu     sync.Mutex
	view   *ConversationView
	stream api.Stream
	done   chan struct{}
}

func NewLiveEventReceiver(backend Backend, bus *EventBus) *LiveEventReceiver {
	return &LiveEventReceiver{backend: backend, bus: bus}
}

// Open subscribes to the push stream of v. Opening the conversation that is
// already open is a no-op; opening another one while a handle is open fails with
// ErrSubscriptionOpen.
func (r *LiveEventReceiver) Open(ctx context.Context, v *ConversationView) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		if r.view == v {
			return nil
		}
		return fmt.Errorf("open %s while %s is open: %w", v.id, r.view.id, ErrSubscriptionOpen)
	}
	if v.Closed() {
		return ErrViewClosed
	}

	stream, err := r.backend.Subscribe(ctx, v.id)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", v.id, err)
	}

	r.view = v
	r.stream = stream
	r.done = make(chan struct{})
	go r.pump(v, stream, r.done)

	log.Debug().Str("conversation_id", v.id).Msg("Push subscription opened")
	return nil
}

// OpenConversation returns the id of the conversation with an open handle, or "".
func (r *LiveEventReceiver) OpenConversation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.view == nil {
		return ""
	}
	return r.view.id
}

// Close tears down the open handle, if any, and waits for its reader to exit.
func (r *LiveEventReceiver) Close() {
	r.mu.Lock()
	stream, done, v := r.stream, r.done, r.view
	r.stream, r.done, r.view = nil, nil, nil
	r.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		log.Warn().Err(err).Str("conversation_id", v.id).Msg("Failed to close push subscription")
	}
	<-done
	log.Debug().Str("conversation_id", v.id).Msg("Push subscription closed")
}

func (r *LiveEventReceiver) pump(v *ConversationView, stream api.Stream, done chan struct{}) {
	defer close(done)

	for record := range stream.Records() {
		m, err := chat.DecodeMessage(record)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", v.id).Int("bytes", len(record)).Msg("Dropping malformed push record")
			continue
		}
		if m.ConversationID != "" && string(m.ConversationID) != v.id {
			log.Warn().
				Str("conversation_id", v.id).
				Str("message_id", m.ID.String()).
				Str("message_conversation_id", m.ConversationID.String()).
				Msg("Dropping push record of another conversation")
			continue
		}
		if !v.apply(func() { v.store.Upsert(m) }) {
			return
		}
	}

	err := stream.Err()
	if err == nil || v.Closed() {
		return
	}
	log.Error().Err(err).Str("conversation_id", v.id).Msg("Push stream ended")
	r.bus.Publish(Event{
		Type:           EventStreamError,
		ConversationID: v.id,
		Data:           ErrorData{Error: err.Error()},
	})
	r.bus.Notify(v.id, NoticeWarning, constants.NoticeStreamLost)
}
