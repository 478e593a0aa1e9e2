package core

import (
	"context"
	"sync"

	"github.com/xonecas/parley/internal/chat"
)

// RetryController offers a resend when the tail of a view is a user message that timed out.
type RetryController struct {
	view   *ConversationView
	sender *SendCoordinator

	mu      sync.Mutex
	content string
	enabled bool
}

// Observe re-evaluates the tail of store. It reports whether retry went from
// disabled to enabled.
func (r *RetryController) Observe(store *MessageStore) bool {
	tail, ok := store.Tail()
	enable := ok && tail.Role == chat.RoleUser && tail.State == chat.StateTimeout

	r.mu.Lock()
	defer r.mu.Unlock()

	was := r.enabled
	r.enabled = enable
	if enable {
		r.content = tail.Content
	} else {
		r.content = ""
	}
	return enable && !was
}

// Enabled returns the retained payload and whether retry is available.
func (r *RetryController) Enabled() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content, r.enabled
}

func (r *RetryController) take() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.content, r.enabled
	r.content = ""
	r.enabled = false
	return content, ok
}

// Retry resends the retained payload as a new message and consumes it. The
// draft of the conversation is left alone. The payload is only sent while the
// tail is still the timed-out user message it was taken from. Afterwards the tail
// is observed again, so a failed or skipped resend leaves retry available.
func (r *RetryController) Retry(ctx context.Context) Outcome {
	content, ok := r.take()
	if !ok || content == "" {
		return OutcomeSkipped
	}
	if !r.tailTimedOut(content) {
		r.view.refresh()
		return OutcomeSkipped
	}
	outcome := r.sender.Send(ctx, r.view, content, true)
	r.view.refresh()
	return outcome
}

func (r *RetryController) tailTimedOut(content string) bool {
	r.view.mu.Lock()
	defer r.view.mu.Unlock()
	tail, ok := r.view.store.Tail()
	return ok && tail.Role == chat.RoleUser && tail.State == chat.StateTimeout && tail.Content == content
}
