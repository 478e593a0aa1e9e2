package core

import (
	"sync"

	"github.com/xonecas/parley/internal/chat"
)

// MessageStore is the ordered, id-keyed message collection of one conversation view.
// Order is insertion order; replacing a record by id never moves it.
// It performs no I/O and is safe for concurrent use.
type MessageStore struct {
	mu    sync.RWMutex
	order []chat.Message
	index map[chat.ID]int
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{index: make(map[chat.ID]int)}
}

// ReplaceAll discards the current contents and installs msgs in order.
// Duplicate ids within msgs collapse onto the first position, last record wins.
func (s *MessageStore) ReplaceAll(msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]chat.Message, 0, len(msgs))
	s.index = make(map[chat.ID]int, len(msgs))
	for _, m := range msgs {
		s.upsertLocked(m)
	}
}

// Upsert replaces the record with the same id in place, or appends m to the tail.
// It reports whether m was appended.
func (s *MessageStore) Upsert(m chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(m)
}

func (s *MessageStore) upsertLocked(m chat.Message) bool {
	m = m.Normalized()
	if i, ok := s.index[m.ID]; ok {
		s.order[i] = m
		return false
	}
	s.index[m.ID] = len(s.order)
	s.order = append(s.order, m)
	return true
}

// Append routes every record through the upsert rule, in order.
func (s *MessageStore) Append(msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		s.upsertLocked(m)
	}
}

// Resolve supersedes the optimistic entry localID with confirmed records.
// The first confirmed record takes the entry's position unless the server record
// already arrived through another path, in which case the entry is dropped.
// The remaining records go through the upsert rule.
func (s *MessageStore) Resolve(localID chat.ID, confirmed []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[localID]
	if !ok {
		for _, m := range confirmed {
			s.upsertLocked(m)
		}
		return
	}

	if len(confirmed) > 0 {
		first := confirmed[0].Normalized()
		if _, exists := s.index[first.ID]; !exists {
			delete(s.index, localID)
			s.order[i] = first
			s.index[first.ID] = i
			confirmed = confirmed[1:]
		} else {
			s.removeLocked(localID)
		}
	} else {
		s.removeLocked(localID)
	}

	for _, m := range confirmed {
		s.upsertLocked(m)
	}
}

// Remove drops an optimistic entry that never reached the server.
// Server records are never removed; it reports whether anything was dropped.
func (s *MessageStore) Remove(localID chat.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !(chat.Message{ID: localID}).IsLocal() {
		return false
	}
	return s.removeLocked(localID)
}

func (s *MessageStore) removeLocked(id chat.ID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.order = append(s.order[:i], s.order[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j].ID] = j
	}
	return true
}

// Snapshot returns a copy of the current ordered sequence.
func (s *MessageStore) Snapshot() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Message, len(s.order))
	copy(out, s.order)
	return out
}

// Tail returns the last message, if any.
func (s *MessageStore) Tail() (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return chat.Message{}, false
	}
	return s.order[len(s.order)-1], true
}

// Get returns the message with the given id.
func (s *MessageStore) Get(id chat.ID) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.order[i], true
}

// Len returns the number of messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// AssistantResponding reports whether the tail is an assistant message still processing.
func (s *MessageStore) AssistantResponding() bool {
	tail, ok := s.Tail()
	return ok && tail.Role == chat.RoleAssistant && tail.State == chat.StateProcessing
}

// TailProcessing reports whether the tail message is in state processing.
func (s *MessageStore) TailProcessing() bool {
	tail, ok := s.Tail()
	return ok && tail.State == chat.StateProcessing
}
