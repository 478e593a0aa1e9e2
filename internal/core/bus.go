package core

import (
	"sync"
	"time"

	"github.com/xonecas/parley/internal/constants"
)

type subscriber struct {
	ch    chan Event
	types map[EventType]bool
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// EventBus distributes engine events to subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	bufferSize  int
	closed      bool
}

// NewEventBus creates a new event bus.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize < constants.MinEventBusBufferSize {
		bufferSize = constants.MinEventBusBufferSize
	}
	return &EventBus{
		bufferSize: bufferSize,
	}
}

// Subscribe returns a channel that receives events of the given types, or all
// events when no type is given.
// The caller is responsible for reading from the channel to avoid drops.
func (b *EventBus) Subscribe(types ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscriber channel.
func (b *EventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.ch == ch {
			close(sub.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all interested subscribers.
// Non-blocking: drops the event for a subscriber whose buffer is full.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Notify publishes a user-visible notification.
func (b *EventBus) Notify(conversationID string, level NoticeLevel, text string) {
	b.Publish(Event{
		Type:           EventNotification,
		ConversationID: conversationID,
		Data:           NotificationData{Level: level, Text: text},
	})
}

// Close closes all subscriber channels. Later subscriptions receive a closed channel.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
	b.closed = true
}
