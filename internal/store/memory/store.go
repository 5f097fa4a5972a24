// Package memory provides an in-memory store.Store implementation. It backs
// the server when no DATABASE_URL is configured and doubles as the test
// double, so it honors the same append-serialization contract as the
// Postgres store: appends to one conversation go through that conversation's
// mutex, never through a read-modify-write of shared state.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"relaychat-backend/internal/models"
	"relaychat-backend/internal/store"
)

// Compile-time check to ensure MemoryStore implements store.Store
var _ store.Store = (*MemoryStore)(nil)

type conversationRecord struct {
	mu   sync.Mutex // serializes appends and soft-delete for this conversation
	conv models.Conversation
	msgs []models.Message
}

type MemoryStore struct {
	mu            sync.RWMutex
	usersByEmail  map[string]*models.User
	conversations map[uuid.UUID]*conversationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByEmail:  make(map[string]*models.User),
		conversations: make(map[uuid.UUID]*conversationRecord),
	}
}

// GetUserByEmail retrieves a user by email, or store.ErrNotFound.
func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := *u
	return &result, nil
}

// CreateUser stores a new user.
func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := *user
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
		u.UpdatedAt = now
	}
	m.usersByEmail[u.Email] = &u
	return nil
}

// CreateConversation stores a new, empty conversation.
func (m *MemoryStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now()

	rec := &conversationRecord{
		conv: models.Conversation{
			ID:             id,
			UserID:         arg.UserID,
			Title:          arg.Title,
			Model:          arg.Model,
			Messages:       json.RawMessage("[]"),
			TotalTokens:    0,
			LastActivityAt: now,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}

	m.mu.Lock()
	m.conversations[id] = rec
	m.mu.Unlock()

	return snapshot(rec), nil
}

// GetConversationByID returns ErrNotFound for missing, foreign and
// soft-deleted conversations alike, matching the Postgres store.
func (m *MemoryStore) GetConversationByID(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	rec, err := m.record(id, userID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.conv.IsActive {
		return nil, store.ErrNotFound
	}
	return snapshotLocked(rec), nil
}

// ListConversationsByUser returns active conversations ordered by last
// activity, newest first.
func (m *MemoryStore) ListConversationsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Conversation, error) {
	m.mu.RLock()
	records := make([]*conversationRecord, 0, len(m.conversations))
	for _, rec := range m.conversations {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	var result []models.Conversation
	for _, rec := range records {
		rec.mu.Lock()
		if rec.conv.UserID == userID && rec.conv.IsActive {
			result = append(result, *snapshotLocked(rec))
		}
		rec.mu.Unlock()
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivityAt.After(result[j].LastActivityAt)
	})

	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// AppendMessage inserts the message at the tail under the conversation's
// mutex, recomputes the token total and bumps the activity timestamp.
func (m *MemoryStore) AppendMessage(ctx context.Context, arg store.AppendMessageParams) (*models.Conversation, error) {
	if !models.ValidRole(arg.Message.Role) {
		return nil, fmt.Errorf("invalid message role: %s", arg.Message.Role)
	}

	rec, err := m.record(arg.ConversationID, arg.UserID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.conv.IsActive {
		return nil, store.ErrNotFound
	}

	rec.msgs = append(rec.msgs, arg.Message)
	rec.conv.TotalTokens += int64(arg.Message.Tokens)
	now := time.Now()
	if now.After(rec.conv.LastActivityAt) {
		rec.conv.LastActivityAt = now
	}
	rec.conv.UpdatedAt = now
	if arg.Title != "" && rec.conv.Title == models.DefaultConversationTitle {
		rec.conv.Title = arg.Title
	}

	return snapshotLocked(rec), nil
}

// SoftDeleteConversation clears the liveness flag; idempotent.
func (m *MemoryStore) SoftDeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	rec, err := m.record(id, userID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.conv.IsActive = false
	rec.conv.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) record(id, userID uuid.UUID) (*conversationRecord, error) {
	m.mu.RLock()
	rec, ok := m.conversations[id]
	m.mu.RUnlock()
	if !ok || rec.conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func snapshot(rec *conversationRecord) *models.Conversation {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return snapshotLocked(rec)
}

// snapshotLocked copies the record into a detached Conversation with the
// message log re-encoded as JSON, mirroring what a row scan returns.
func snapshotLocked(rec *conversationRecord) *models.Conversation {
	conv := rec.conv
	if len(rec.msgs) == 0 {
		conv.Messages = json.RawMessage("[]")
		return &conv
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, msg := range rec.msgs {
		if i > 0 {
			sb.WriteByte(',')
		}
		b, _ := json.Marshal(msg)
		sb.Write(b)
	}
	sb.WriteByte(']')
	conv.Messages = json.RawMessage(sb.String())
	return &conv
}
