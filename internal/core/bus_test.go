package core

import (
	"testing"
	"time"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus(10)

	// Subscribe
	ch := bus.Subscribe()

	bus.Publish(Event{Type: EventMessagesChanged, ConversationID: "c1"})

	select {
	case received := <-ch:
		if received.Type != EventMessagesChanged {
			t.Errorf("expected type=%s, got %s", EventMessagesChanged, received.Type)
		}
		if received.ConversationID != "c1" {
			t.Errorf("expected conversation_id=c1, got %s", received.ConversationID)
		}
		if received.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	// Unsubscribe
	bus.Unsubscribe(ch)

	// Channel should be closed
	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed")
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(Event{Type: EventMessagesChanged, ConversationID: "c1"})

	// Both should receive
	select {
	case <-ch1:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("ch1 timeout")
	}

	select {
	case <-ch2:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("ch2 timeout")
	}

	bus.Close()
}

func TestEventBusTypeFilter(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventNotification)

	bus.Publish(Event{Type: EventMessagesChanged})
	bus.Notify("c1", NoticeWarning, "careful")

	select {
	case received := <-ch:
		if received.Type != EventNotification {
			t.Fatalf("expected notification, got %s", received.Type)
		}
		data, ok := received.Data.(NotificationData)
		if !ok || data.Level != NoticeWarning || data.Text != "careful" {
			t.Errorf("unexpected data: %+v", received.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for notification")
	}

	if len(ch) != 0 {
		t.Errorf("expected filtered event to be skipped, %d queued", len(ch))
	}
	bus.Close()
}

func TestEventBusNonBlocking(t *testing.T) {
	// Small buffer
	bus := NewEventBus(1)
	ch := bus.Subscribe()

	for len(ch) < cap(ch) {
		bus.Publish(Event{Type: EventMessagesChanged})
	}

	// This should not block (event dropped)
	done := make(chan bool)
	go func() {
		bus.Publish(Event{Type: EventNotification})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked")
	}

	// Drain the buffer
	<-ch
	bus.Close()
}

func TestEventBusClose(t *testing.T) {
	bus := NewEventBus(10)

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Close()

	// Both channels should be closed
	_, ok1 := <-ch1
	_, ok2 := <-ch2

	if ok1 || ok2 {
		t.Error("expected all channels to be closed")
	}

	if _, ok := <-bus.Subscribe(); ok {
		t.Error("expected subscription after Close to be closed")
	}
}
