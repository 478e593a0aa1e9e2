// Package core provides the conversation message-reconciliation engine.
package core

import (
	"time"
)

// EventType identifies the type of event.
type EventType string

const (
	EventMessagesChanged       EventType = "messages_changed"
	EventNotification          EventType = "notification"
	EventConversationActivated EventType = "conversation_activated"
	EventConversationAbandoned EventType = "conversation_abandoned"
	EventHistoryLoaded         EventType = "history_loaded"
	EventHistoryFailed         EventType = "history_failed"
	EventStreamError           EventType = "stream_error"
	EventRetryAvailable        EventType = "retry_available"
	EventSendFailed            EventType = "send_failed"
)

// Event represents something that happened to a conversation view.
type Event struct {
	Type           EventType
	ConversationID string
	Data           interface{}
	Timestamp      time.Time
}

// NoticeLevel is the severity of a user-visible notification.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// NotificationData is carried by EventNotification.
type NotificationData struct {
	Level NoticeLevel
	Text  string
}

// ErrorData contains data for error events.
type ErrorData struct {
	Error string
}

// RetryData is carried by EventRetryAvailable.
type RetryData struct {
	Content string
}

// Outcome reports what a send or retry action did.
type Outcome int

const (
	// OutcomeSkipped means a precondition failed and no request was issued.
	OutcomeSkipped Outcome = iota
	// OutcomeSent means the request succeeded and its records were applied.
	OutcomeSent
	// OutcomeFailed means the request was issued and failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}
