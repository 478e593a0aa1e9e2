package core

import (
	"context"
	"sync"
)

// ConversationView is the state of one activated conversation. It is created on
// activation and discarded on deactivation; nothing is reused across switches.
// Every asynchronous completion carries the view that started it and is applied
// only while that view is open.
type ConversationView struct {
	id    string
	store *MessageStore
	retry *RetryController

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	loaded  bool
	sending bool
	closed  bool

	// onChange receives the view and whether a retry just became available.
	onChange func(v *ConversationView, retryAvailable bool)
}

func newConversationView(parent context.Context, id string, sender *SendCoordinator, onChange func(*ConversationView, bool)) *ConversationView {
	ctx, cancel := context.WithCancel(parent)
	v := &ConversationView{
		id:       id,
		store:    NewMessageStore(),
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}
	v.retry = &RetryController{view: v, sender: sender}
	return v
}

// ID returns the conversation id.
func (v *ConversationView) ID() string { return v.id }

// Store returns the view's message store.
func (v *ConversationView) Store() *MessageStore { return v.store }

// Retry returns the view's retry controller.
func (v *ConversationView) Retry() *RetryController { return v.retry }

// Context is cancelled when the view closes.
func (v *ConversationView) Context() context.Context { return v.ctx }

// Loaded reports whether the history load has completed, successfully or not.
func (v *ConversationView) Loaded() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Closed reports whether the view has been deactivated.
func (v *ConversationView) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// apply runs fn under the view lock unless the view is closed, then reports
// the change. It returns false when the result was discarded.
func (v *ConversationView) apply(fn func()) bool {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	fn()
	available := v.retry.Observe(v.store)
	v.mu.Unlock()

	v.changed(available)
	return true
}

// changed reports a change. Retry state is observed under mu by the caller, so
// overlapping changes cannot leave it behind the store.
func (v *ConversationView) changed(retryAvailable bool) {
	if v.onChange != nil {
		v.onChange(v, retryAvailable)
	}
}

// refresh re-evaluates derived state of an open view and reports it as a change.
func (v *ConversationView) refresh() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	available := v.retry.Observe(v.store)
	v.mu.Unlock()
	v.changed(available)
}

// close marks the view closed and cancels its context. It is idempotent.
func (v *ConversationView) close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.cancel()
}
