package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"relaychat-backend/internal/models"
	"relaychat-backend/internal/store"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetUserByEmail retrieves a user by their email address.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `
		SELECT id, email, hashed_password, created_at, updated_at
		FROM users
		WHERE email = $1`

	user := &models.User{}
	err := s.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}

	return user, nil
}

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	const query = `
		INSERT INTO users (id, email, hashed_password)
		VALUES ($1, $2, $3)`
	// created_at and updated_at have database defaults (NOW())

	_, err := s.db.Exec(ctx, query, user.ID, user.Email, user.HashedPassword)
	if err != nil {
		log.Error().Err(err).Str("email", user.Email).Msg("failed to insert user")
		return fmt.Errorf("database error creating user: %w", err)
	}

	return nil
}

// --- Conversation Methods ---

const conversationColumns = `id, user_id, title, model, messages, total_tokens, last_activity_at, is_active, created_at, updated_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.Model,
		&c.Messages,
		&c.TotalTokens,
		&c.LastActivityAt,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const createConversation = `-- name: CreateConversation :one
INSERT INTO conversations (
    id, user_id, title, model, messages, total_tokens, last_activity_at
) VALUES (
    $1, $2, $3, $4, '[]'::jsonb, 0, NOW()
)
RETURNING ` + conversationColumns + `;
`

func (s *PostgresStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	conv, err := scanConversation(s.db.QueryRow(ctx, createConversation, id, arg.UserID, arg.Title, arg.Model))
	if err != nil {
		return nil, fmt.Errorf("error scanning created conversation: %w", err)
	}
	return conv, nil
}

const getConversationByID = `-- name: GetConversationByID :one
SELECT ` + conversationColumns + `
FROM conversations
WHERE id = $1 AND user_id = $2 AND is_active = TRUE;
`

func (s *PostgresStore) GetConversationByID(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(ctx, getConversationByID, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning conversation: %w", err)
	}
	return conv, nil
}

const listConversationsByUser = `-- name: ListConversationsByUser :many
SELECT ` + conversationColumns + `
FROM conversations
WHERE user_id = $1 AND is_active = TRUE
ORDER BY last_activity_at DESC
LIMIT $2 OFFSET $3;
`

func (s *PostgresStore) ListConversationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	rows, err := s.db.Query(ctx, listConversationsByUser, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	return conversations, nil
}

// AppendMessage appends one message to the conversation's JSONB log in a
// single UPDATE. The append, the token-total bump, the activity timestamp and
// the conditional title install all happen in one statement, so concurrent
// appends to the same conversation serialize on the row and none are lost.
const appendMessage = `-- name: AppendMessage :one
UPDATE conversations
SET messages = messages || $3::jsonb,
    total_tokens = total_tokens + $4,
    last_activity_at = NOW(),
    updated_at = NOW(),
    title = CASE WHEN $5 <> '' AND title = $6 THEN $5 ELSE title END
WHERE id = $1 AND user_id = $2 AND is_active = TRUE
RETURNING ` + conversationColumns + `;
`

func (s *PostgresStore) AppendMessage(ctx context.Context, arg store.AppendMessageParams) (*models.Conversation, error) {
	if !models.ValidRole(arg.Message.Role) {
		return nil, fmt.Errorf("invalid message role: %s", arg.Message.Role)
	}

	messageJSON, err := json.Marshal(arg.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	conv, err := scanConversation(s.db.QueryRow(ctx, appendMessage,
		arg.ConversationID,
		arg.UserID,
		messageJSON,
		arg.Message.Tokens,
		arg.Title,
		models.DefaultConversationTitle,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error appending message: %w", err)
	}

	return conv, nil
}

// SoftDeleteConversation clears the liveness flag but keeps the log. The
// filter deliberately omits is_active so repeating the delete is a no-op
// rather than ErrNotFound.
const softDeleteConversation = `-- name: SoftDeleteConversation :exec
UPDATE conversations
SET is_active = FALSE, updated_at = NOW()
WHERE id = $1 AND user_id = $2;
`

func (s *PostgresStore) SoftDeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, softDeleteConversation, id, userID)
	if err != nil {
		return fmt.Errorf("failed to soft delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
