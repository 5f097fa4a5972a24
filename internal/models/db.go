package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents a user in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DefaultConversationTitle is the placeholder a conversation carries until the
// first user message is appended and a real title is derived from it.
const DefaultConversationTitle = "New Conversation"

// Conversation represents a persisted conversation row. The full message log
// lives in the Messages JSONB column; TotalTokens is maintained by the store
// so that it always equals the sum of the per-message token counts.
type Conversation struct {
	ID             uuid.UUID       `db:"id"`
	UserID         uuid.UUID       `db:"user_id"`
	Title          string          `db:"title"`
	Model          string          `db:"model"`
	Messages       json.RawMessage `db:"messages"` // JSONB array of Message
	TotalTokens    int64           `db:"total_tokens"`
	LastActivityAt time.Time       `db:"last_activity_at"`
	IsActive       bool            `db:"is_active"` // false once soft-deleted
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}
