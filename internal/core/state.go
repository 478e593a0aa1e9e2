package core

import (
	"context"
	"errors"
	"sync"

	"github.com/xonecas/parley/internal/api"
	"github.com/xonecas/parley/internal/chat"
)

var (
	// ErrConversationNotFound is returned when the active conversation no longer exists.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrSubscriptionOpen is returned when a push subscription is opened while
	// another conversation's subscription is still open.
	ErrSubscriptionOpen = errors.New("a subscription for another conversation is still open")
	// ErrViewClosed is returned when work is attempted on a view that is no longer active.
	ErrViewClosed = errors.New("conversation view closed")
)

// Backend is the chat service as seen by the engine. *api.Client implements it.
type Backend interface {
	FetchHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
	CreateMessage(ctx context.Context, conversationID, content string) ([]chat.Message, error)
	Subscribe(ctx context.Context, conversationID string) (api.Stream, error)
	VerifyIdentity(ctx context.Context) (*chat.User, error)
}

// Identity holds the verified user, if any.
type Identity struct {
	mu   sync.RWMutex
	user *chat.User
}

// Set records user as the established identity. A nil user clears it.
func (i *Identity) Set(user *chat.User) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.user = user
}

// Current returns the established identity, or nil.
func (i *Identity) Current() *chat.User {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.user
}

// Established reports whether a user identity is set.
func (i *Identity) Established() bool {
	return i.Current() != nil
}

// Drafts keeps unsent input per conversation.
type Drafts struct {
	mu     sync.Mutex
	drafts map[string]string
}

func NewDrafts() *Drafts {
	return &Drafts{drafts: make(map[string]string)}
}

func (d *Drafts) Get(conversationID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drafts[conversationID]
}

func (d *Drafts) Set(conversationID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == "" {
		delete(d.drafts, conversationID)
		return
	}
	d.drafts[conversationID] = text
}

func (d *Drafts) Clear(conversationID string) {
	d.Set(conversationID, "")
}

// FailedFlags tracks, per conversation, whether the last send failed and what it carried.
type FailedFlags struct {
	mu     sync.Mutex
	failed map[string]string
}

func NewFailedFlags() *FailedFlags {
	return &FailedFlags{failed: make(map[string]string)}
}

// Set marks the conversation's last send as failed with content.
func (f *FailedFlags) Set(conversationID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[conversationID] = content
}

func (f *FailedFlags) Clear(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failed, conversationID)
}

// Failed reports whether the conversation's last send failed.
func (f *FailedFlags) Failed(conversationID string) bool {
	_, ok := f.Content(conversationID)
	return ok
}

// Content returns the content of the failed send, if any.
func (f *FailedFlags) Content(conversationID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.failed[conversationID]
	return c, ok
}
