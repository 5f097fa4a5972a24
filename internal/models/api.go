package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// --- Response Structs ---

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Conversation DTOs ---

// CreateConversationRequest defines the payload for creating a conversation.
// Model is optional; the configured default model is used when absent.
type CreateConversationRequest struct {
	Model *string `json:"model,omitempty"`
}

// ConversationResponse is the standard representation of a conversation in
// API responses, with the message log decoded from its stored form.
type ConversationResponse struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Title          string    `json:"title"`
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	TotalTokens    int64     `json:"total_tokens"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConversationSummary is the list-view representation: metadata without the
// message log.
type ConversationSummary struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Model          string    `json:"model"`
	TotalTokens    int64     `json:"total_tokens"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListConversationsResponse defines the response structure for listing
// conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

// SendMessageRequest defines the payload for sending a user message to a
// conversation. Stream selects delivery mode: false buffers the full reply,
// true streams it token by token. Model, when set, overrides the
// conversation's model for this request only.
type SendMessageRequest struct {
	Message string  `json:"message"`
	Stream  bool    `json:"stream,omitempty"`
	Model   *string `json:"model,omitempty"`
}

// ListModelsResponse returns the configured model catalog. Identifiers are
// opaque to this service.
type ListModelsResponse struct {
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
}

// --- Stream Events ---

// StreamEventType identifies what a StreamEvent carries.
type StreamEventType string

const (
	// StreamEventMessage carries a full persisted message (e.g. the user
	// message echoed to other viewers, or a non-streamed assistant reply).
	StreamEventMessage StreamEventType = "message"
	// StreamEventDelta carries an incremental fragment of assistant output.
	StreamEventDelta StreamEventType = "delta"
	// StreamEventDone terminates a streaming run and carries the fully
	// assembled, persisted assistant message.
	StreamEventDone StreamEventType = "done"
	// StreamEventError terminates a streaming run after an upstream failure.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is the unit of delivery on the relay: every live viewer of a
// conversation receives these, and the streaming HTTP response is a sequence
// of them. Deltas are never persisted; only the assembled message is.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Message        *Message        `json:"message,omitempty"` // for "message" and "done"
	Content        string          `json:"content,omitempty"` // for "delta"
	Error          string          `json:"error,omitempty"`   // for "error"
}
