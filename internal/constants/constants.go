package constants

import "time"

// NoticeWaitForReply is shown when a send is attempted while a reply is still processing.
const NoticeWaitForReply = "Wait for the reply before sending another message."

// NoticeSendInFlight is shown when a send is attempted while the previous one is still in flight.
const NoticeSendInFlight = "Your previous message is still being sent."

// NoticeHistoryLoading is shown when a send is attempted before the history has loaded.
const NoticeHistoryLoading = "The conversation is still loading."

// NoticeNotSignedIn is shown when a send is attempted without an established identity.
const NoticeNotSignedIn = "Sign in to send messages."

// NoticeConversationNotFound is shown when the active conversation no longer exists.
const NoticeConversationNotFound = "Conversation not found."

// NoticeHistoryFailed prefixes non-fatal history load failures.
const NoticeHistoryFailed = "Could not load the conversation history"

// NoticeStreamLost is shown when the live update stream drops.
const NoticeStreamLost = "Live updates stopped. Reopen the conversation to resume."

// DefaultSendError is used when no message can be extracted from a failed send.
const DefaultSendError = "Failed to send the message."

// UnexpectedEmptyReply is used when a send succeeds but the server returns no records.
const UnexpectedEmptyReply = "Something went wrong."

// AssistantPlaceholder is the content of an assistant message that is still processing.
const AssistantPlaceholder = "..."

// TimeoutReply is stored on an assistant placeholder whose reply timed out.
const TimeoutReply = "The assistant took too long to reply."

// ErrorReply is stored on an assistant placeholder whose reply failed.
const ErrorReply = "Failed to respond. Please try again later."

// MinEventBusBufferSize is the minimum buffer per subscriber channel.
const MinEventBusBufferSize = 64

// StreamBufferSize is the buffer of decoded push records between the reader and the store.
const StreamBufferSize = 256

// StreamMaxRecordBytes caps a single push record.
const StreamMaxRecordBytes = 1024 * 1024

// StreamKeepAliveInterval is how often the development server writes keep-alive comments.
const StreamKeepAliveInterval = 15 * time.Second

// HistoryContextMessages limits how many earlier messages are sent to the responder.
const HistoryContextMessages = 20

// ShutdownTimeout bounds graceful shutdown of the development server.
const ShutdownTimeout = 10 * time.Second
