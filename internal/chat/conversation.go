package chat

// Conversation is a named thread of messages.
type Conversation struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	UserID ID     `json:"user_id"`
}

// User is the identity returned by the verification endpoint.
type User struct {
	ID    ID     `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Valid bool   `json:"valid"`
}

// CreateMessageRequest is the body of a create-message call.
type CreateMessageRequest struct {
	ConversationID ID     `json:"chat_id"`
	Content        string `json:"content"`
}

// CreateConversationRequest is the body of a create-conversation call.
type CreateConversationRequest struct {
	Name string `json:"name"`
}
