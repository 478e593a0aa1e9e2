// Package chat defines the conversation message model shared by the client
// engine and the development server, together with its wire encoding.
package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedMessage is returned when a record cannot be decoded into a valid Message.
var ErrMalformedMessage = errors.New("malformed message")

// LocalIDPrefix marks client-only ids of optimistic entries.
const LocalIDPrefix = "local-"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleAdmin:
		return true
	}
	return false
}

// State is the server-authoritative processing state of a message.
//
//	created -> processing -> finished | timeout | error | canceled
type State string

const (
	StateCreated    State = "created"
	StateProcessing State = "processing"
	StateFinished   State = "finished"
	StateTimeout    State = "timeout"
	StateCanceled   State = "canceled"
	StateError      State = "error"
)

// stateCompleted is what some backends emit instead of "finished".
const stateCompleted = "completed"

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateProcessing, StateFinished, StateTimeout, StateCanceled, StateError:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected for s.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateTimeout, StateCanceled, StateError:
		return true
	}
	return false
}

// UnmarshalJSON accepts the known states case-insensitively and maps "completed" to finished.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == stateCompleted {
		raw = string(StateFinished)
	}
	*s = State(raw)
	return nil
}

// ID is an opaque identifier. On the wire it may be a JSON number or a string.
type ID string

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// numeric reports whether the id consists of decimal digits only.
func (id ID) numeric() bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MarshalJSON emits numeric ids as JSON numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*id = ID(n.String())
		return nil
	}
}

// Source is a citation attached to a finished assistant message.
type Source struct {
	DocumentID   ID     `json:"file_id"`
	DocumentName string `json:"file_name,omitempty"`
	Page         *int   `json:"page,omitempty"`
}

// Message is a single record of a conversation.
type Message struct {
	ID             ID        `json:"id"`
	ConversationID ID        `json:"chat_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	State          State     `json:"state"`
	Sources        []Source  `json:"sources"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsLocal reports whether m is a client-only optimistic entry.
func (m Message) IsLocal() bool {
	return strings.HasPrefix(string(m.ID), LocalIDPrefix)
}

// Normalized returns a copy of m whose sources are dropped unless the message is finished.
func (m Message) Normalized() Message {
	if m.State != StateFinished {
		m.Sources = nil
		return m
	}
	if len(m.Sources) > 0 {
		m.Sources = append([]Source(nil), m.Sources...)
	}
	return m
}

// Validate checks the fields every record must carry.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrMalformedMessage, m.Role)
	}
	if !m.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrMalformedMessage, m.State)
	}
	return nil
}

// wireMessage mirrors Message with a loosely typed timestamp.
type wireMessage struct {
	ID             ID       `json:"id"`
	ConversationID ID       `json:"chat_id"`
	Role           Role     `json:"role"`
	Content        string   `json:"content"`
	State          State    `json:"state"`
	Sources        []Source `json:"sources"`
	CreatedAt      string   `json:"created_at"`
}

// UnmarshalJSON decodes a message, tolerating timestamps without a zone.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	created, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return err
	}
	*m = Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		Role:           Role(strings.ToLower(string(w.Role))),
		Content:        w.Content,
		State:          w.State,
		Sources:        w.Sources,
		CreatedAt:      created,
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at: unrecognized timestamp %q", s)
}

// DecodeMessage decodes and validates one wire record.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m.Normalized(), nil
}

// DecodeMessages decodes and validates a JSON array of records.
func DecodeMessages(data []byte) ([]Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	out := make([]Message, 0, len(raw))
	for i, r := range raw {
		m, err := DecodeMessage(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}
