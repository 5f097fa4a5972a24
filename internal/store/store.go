package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"relaychat-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found. For
// conversations this also covers rows owned by another user and soft-deleted
// rows: callers cannot distinguish "missing" from "not yours" from "deleted".
var ErrNotFound = errors.New("record not found")

// CreateConversationParams contains parameters for creating a conversation.
type CreateConversationParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Title  string // usually models.DefaultConversationTitle
	Model  string
}

// AppendMessageParams contains parameters for appending one message to a
// conversation's log.
//
// Title, when non-empty, is a derived title to install in place of the
// default placeholder. The store applies it only while the conversation's
// title still equals the placeholder, so the derivation happens at most once
// per conversation no matter how many appends race.
type AppendMessageParams struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Message        models.Message
	Title          string
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
//
// Append semantics are the load-bearing part of this contract: AppendMessage
// must be atomic with respect to other concurrent appends to the same
// conversation. Two concurrent appenders must both land their message; a
// read-then-write-whole-document implementation is not acceptable.
type Store interface {
	// User operations
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// Conversation operations
	CreateConversation(ctx context.Context, arg CreateConversationParams) (*models.Conversation, error)
	// GetConversationByID returns ErrNotFound for missing, foreign and
	// soft-deleted conversations alike.
	GetConversationByID(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Conversation, error)
	// AppendMessage inserts the message at the tail of the log, adds its
	// token count to total_tokens and bumps last_activity_at, all in one
	// serialized step. It returns the conversation as it stands immediately
	// after the append, which callers use as a consistent snapshot for
	// building the provider context window.
	AppendMessage(ctx context.Context, arg AppendMessageParams) (*models.Conversation, error)
	// SoftDeleteConversation clears the liveness flag. Idempotent: deleting
	// an already-deleted conversation succeeds; deleting a missing or
	// foreign one returns ErrNotFound.
	SoftDeleteConversation(ctx context.Context, id, userID uuid.UUID) error
}
