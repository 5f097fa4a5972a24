package models

import (
	"time"

	"github.com/google/uuid"
)

// Message roles form a closed set. Anything else is rejected at append time.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single entry in a conversation's message log.
// Messages are immutable once appended; the log itself is append-only.
// This structure is what's stored in the JSONB 'messages' column of the
// 'conversations' table.
type Message struct {
	ID        uuid.UUID `json:"id"`              // Unique per message; the de-duplication key for clients
	Role      string    `json:"role"`            // "user", "assistant" or "system"
	Content   string    `json:"content"`         // The text content of the message
	Model     string    `json:"model,omitempty"` // Set if and only if Role == "assistant"
	Tokens    int       `json:"tokens"`          // Token count (estimated when the provider gave no usage)
	CreatedAt time.Time `json:"created_at"`      // Time the message was recorded
}

// ValidRole reports whether role belongs to the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
