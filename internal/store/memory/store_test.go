package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat-backend/internal/models"
	"relaychat-backend/internal/store"
)

func newTestConversation(t *testing.T, s *MemoryStore, userID uuid.UUID) *models.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), store.CreateConversationParams{
		UserID: userID,
		Title:  models.DefaultConversationTitle,
		Model:  "test-model",
	})
	require.NoError(t, err)
	return conv
}

func userMessage(content string, tokens int) models.Message {
	return models.Message{
		ID:        uuid.New(),
		Role:      models.RoleUser,
		Content:   content,
		Tokens:    tokens,
		CreatedAt: time.Now().UTC(),
	}
}

func decode(t *testing.T, conv *models.Conversation) []models.Message {
	t.Helper()
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(conv.Messages, &msgs))
	return msgs
}

func TestCreateAndGetConversation(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()

	created := newTestConversation(t, s, userID)
	assert.Equal(t, models.DefaultConversationTitle, created.Title)
	assert.Equal(t, "test-model", created.Model)
	assert.True(t, created.IsActive)
	assert.Equal(t, json.RawMessage("[]"), created.Messages)

	got, err := s.GetConversationByID(context.Background(), created.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Empty(t, decode(t, got))
}

func TestGetConversationNotFound(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	conv := newTestConversation(t, s, userID)

	_, err := s.GetConversationByID(context.Background(), uuid.New(), userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Another user's lookup of an existing conversation is indistinguishable
	// from a missing one.
	_, err = s.GetConversationByID(context.Background(), conv.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppendMessage(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	conv := newTestConversation(t, s, userID)

	msg := userMessage("hello there", 3)
	updated, err := s.AppendMessage(context.Background(), store.AppendMessageParams{
		ConversationID: conv.ID,
		UserID:         userID,
		Message:        msg,
	})
	require.NoError(t, err)

	msgs := decode(t, updated)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, int64(3), updated.TotalTokens)
}

func TestAppendMessageTitleExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	conv := newTestConversation(t, s, userID)

	updated, err := s.AppendMessage(context.Background(), store.AppendMessageParams{
		ConversationID: conv.ID,
		UserID:         userID,
		Message:        userMessage("first", 1),
		Title:          "First message title",
	})
	require.NoError(t, err)
	assert.Equal(t, "First message title", updated.Title)

	// A later derived title must not displace the installed one.
	updated, err = s.AppendMessage(context.Background(), store.AppendMessageParams{
		ConversationID: conv.ID,
		UserID:         userID,
		Message:        userMessage("second", 1),
		Title:          "Second message title",
	})
	require.NoError(t, err)
	assert.Equal(t, "First message title", updated.Title)
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	conv := newTestConversation(t, s, userID)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessage(context.Background(), store.AppendMessageParams{
				ConversationID: conv.ID,
				UserID:         userID,
				Message:        userMessage(fmt.Sprintf("message %d", i), 2),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetConversationByID(context.Background(), conv.ID, userID)
	require.NoError(t, err)

	msgs := decode(t, got)
	assert.Len(t, msgs, writers)
	assert.Equal(t, int64(writers*2), got.TotalTokens)

	seen := make(map[uuid.UUID]bool)
	for _, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate message %s", m.ID)
		seen[m.ID] = true
	}
}

func TestAppendToDeletedConversation(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	conv := newTestConversation(t, s, userID)

	require.NoError(t, s.SoftDeleteConversation(context.Background(), conv.ID, userID))

	_, err := s.AppendMessage(context.Background(), store.AppendMessageParams{
		ConversationID: conv.ID,
		UserID:         userID,
		Message:        userMessage("too late", 1),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSoftDeleteIdempotent(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	conv := newTestConversation(t, s, userID)

	require.NoError(t, s.SoftDeleteConversation(context.Background(), conv.ID, userID))
	require.NoError(t, s.SoftDeleteConversation(context.Background(), conv.ID, userID))

	_, err := s.GetConversationByID(context.Background(), conv.ID, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// But deleting something that never existed is still an error.
	err = s.SoftDeleteConversation(context.Background(), uuid.New(), userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListConversations(t *testing.T) {
	s := NewMemoryStore()
	userID := uuid.New()
	otherUser := uuid.New()

	first := newTestConversation(t, s, userID)
	second := newTestConversation(t, s, userID)
	newTestConversation(t, s, otherUser)
	deleted := newTestConversation(t, s, userID)
	require.NoError(t, s.SoftDeleteConversation(context.Background(), deleted.ID, userID))

	// Touch the first conversation so it becomes the most recent.
	time.Sleep(5 * time.Millisecond)
	_, err := s.AppendMessage(context.Background(), store.AppendMessageParams{
		ConversationID: first.ID,
		UserID:         userID,
		Message:        userMessage("bump", 1),
	})
	require.NoError(t, err)

	convs, err := s.ListConversationsByUser(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)

	// Pagination.
	convs, err = s.ListConversationsByUser(context.Background(), userID, 1, 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, second.ID, convs[0].ID)

	convs, err = s.ListConversationsByUser(context.Background(), userID, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestUserRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	user := &models.User{
		ID:             uuid.New(),
		Email:          "someone@example.com",
		HashedPassword: "not-a-real-hash",
	}
	require.NoError(t, s.CreateUser(context.Background(), user))

	got, err := s.GetUserByEmail(context.Background(), "someone@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}
