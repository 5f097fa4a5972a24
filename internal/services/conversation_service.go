package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relaychat-backend/internal/config"
	"relaychat-backend/internal/models"
	"relaychat-backend/internal/provider"
	"relaychat-backend/internal/relay"
	"relaychat-backend/internal/store"
	"relaychat-backend/internal/tokens"
)

// placeholderReply is persisted as the assistant turn when the upstream
// provider fails, so the conversation log never ends on an unanswered user
// message.
const placeholderReply = "The assistant is temporarily unavailable. Please try again."

// titleMaxRunes bounds auto-generated conversation titles.
const titleMaxRunes = 50

// persistTimeout bounds the detached writes that happen after the caller's
// request context is no longer authoritative (final append of a completed
// stream, placeholder persistence).
const persistTimeout = 10 * time.Second

var ErrInvalidModel = errors.New("unknown model")

// ConversationService owns conversation lifecycle and the two message paths:
// blocking completion and incremental streaming. Every persisted change is
// also published on the relay so live viewers of the conversation stay in
// sync regardless of which path produced it.
type ConversationService struct {
	store     store.Store
	provider  provider.Provider
	relay     *relay.Broadcaster
	estimator *tokens.Estimator
	cfg       *config.Config
}

func NewConversationService(s store.Store, p provider.Provider, r *relay.Broadcaster, est *tokens.Estimator, cfg *config.Config) *ConversationService {
	return &ConversationService{
		store:     s,
		provider:  p,
		relay:     r,
		estimator: est,
		cfg:       cfg,
	}
}

// CreateConversation creates an empty conversation. An absent model selects
// the configured default; an unknown model is rejected.
func (s *ConversationService) CreateConversation(ctx context.Context, userID uuid.UUID, req models.CreateConversationRequest) (*models.ConversationResponse, error) {
	model := s.cfg.DefaultModel
	if req.Model != nil && *req.Model != "" {
		if !s.cfg.ValidModel(*req.Model) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidModel, *req.Model)
		}
		model = *req.Model
	}

	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		UserID: userID,
		Title:  models.DefaultConversationTitle,
		Model:  model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	log.Info().
		Str("conversation_id", conv.ID.String()).
		Str("user_id", userID.String()).
		Str("model", model).
		Msg("conversation created")

	return mapConversationToResponse(conv)
}

// GetConversation returns the full conversation including its message log.
func (s *ConversationService) GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (*models.ConversationResponse, error) {
	conv, err := s.store.GetConversationByID(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return mapConversationToResponse(conv)
}

// ListConversations returns metadata summaries ordered by last activity.
func (s *ConversationService) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.ConversationSummary, error) {
	convs, err := s.store.ListConversationsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, models.ConversationSummary{
			ID:             c.ID,
			Title:          c.Title,
			Model:          c.Model,
			TotalTokens:    c.TotalTokens,
			LastActivityAt: c.LastActivityAt,
			CreatedAt:      c.CreatedAt,
		})
	}
	return summaries, nil
}

// DeleteConversation soft-deletes; the log is retained but the conversation
// disappears from every read path.
func (s *ConversationService) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	return s.store.SoftDeleteConversation(ctx, conversationID, userID)
}

// SendMessage is the blocking path: append the user message, call the
// provider once, append the assistant reply, return the updated conversation.
// On upstream failure the placeholder reply is persisted and published, and
// the provider error is returned so the transport layer can report it.
func (s *ConversationService) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, req models.SendMessageRequest) (*models.ConversationResponse, error) {
	override, err := s.modelOverride(req.Model)
	if err != nil {
		return nil, err
	}

	conv, err := s.appendUserMessage(ctx, userID, conversationID, req.Message)
	if err != nil {
		return nil, err
	}
	model := conv.Model
	if override != "" {
		model = override
	}

	window, err := s.contextWindow(conv)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.Complete(ctx, provider.ChatRequest{Model: model, Messages: window})
	if err != nil {
		log.Warn().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("completion failed, persisting placeholder reply")
		if _, perr := s.persistAssistantReply(ctx, userID, conversationID, placeholderReply, model, 0); perr != nil {
			log.Error().Err(perr).
				Str("conversation_id", conversationID.String()).
				Msg("placeholder reply not persisted, conversation ends on a user turn")
		}
		return nil, err
	}

	tokenCount := resp.Usage.CompletionTokens
	conv, err = s.persistAssistantReply(ctx, userID, conversationID, resp.Content, resp.Model, tokenCount)
	if err != nil {
		return nil, err
	}
	return mapConversationToResponse(conv)
}

// StreamMessage is the incremental path. The front half (user-message append,
// relay publish) runs synchronously; the returned channel then carries delta
// events as fragments arrive and is closed after a terminal done or error
// event. If ctx is cancelled mid-stream the upstream connection is torn down
// and the partial reply is discarded.
func (s *ConversationService) StreamMessage(ctx context.Context, userID, conversationID uuid.UUID, req models.SendMessageRequest) (<-chan models.StreamEvent, error) {
	override, err := s.modelOverride(req.Model)
	if err != nil {
		return nil, err
	}

	conv, err := s.appendUserMessage(ctx, userID, conversationID, req.Message)
	if err != nil {
		return nil, err
	}
	model := conv.Model
	if override != "" {
		model = override
	}

	window, err := s.contextWindow(conv)
	if err != nil {
		return nil, err
	}

	events := make(chan models.StreamEvent, 64)
	go s.runStream(ctx, userID, conv, model, window, events)
	return events, nil
}

func (s *ConversationService) runStream(ctx context.Context, userID uuid.UUID, conv *models.Conversation, model string, window []provider.ChatMessage, events chan<- models.StreamEvent) {
	defer close(events)

	stream, err := s.provider.Stream(ctx, provider.ChatRequest{Model: model, Messages: window})
	if err != nil {
		s.failStream(ctx, userID, conv, model, events, err)
		return
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				// Caller went away: discard the partial reply entirely.
				log.Info().
					Str("conversation_id", conv.ID.String()).
					Int("partial_bytes", reply.Len()).
					Msg("caller disconnected mid-stream, discarding partial reply")
				return
			}
			s.failStream(ctx, userID, conv, model, events, err)
			return
		}

		reply.WriteString(fragment)
		event := models.StreamEvent{
			Type:           models.StreamEventDelta,
			ConversationID: conv.ID,
			Content:        fragment,
		}
		s.relay.Publish(conv.ID, event)
		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}

	// The sentinel arrived, so the reply is complete; persist it even if the
	// caller disconnects during the write.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	updated, err := s.persistAssistantReply(persistCtx, userID, conv.ID, reply.String(), model, 0)
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", conv.ID.String()).
			Msg("failed to persist streamed reply")
		errEvent := models.StreamEvent{
			Type:           models.StreamEventError,
			ConversationID: conv.ID,
			Error:          "failed to persist reply",
		}
		s.relay.Publish(conv.ID, errEvent)
		s.emit(ctx, events, errEvent)
		return
	}

	final, err := lastMessage(updated)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("failed to decode persisted reply")
		return
	}
	done := models.StreamEvent{
		Type:           models.StreamEventDone,
		ConversationID: conv.ID,
		Message:        final,
	}
	s.relay.Publish(conv.ID, done)
	s.emit(ctx, events, done)
}

// failStream handles an upstream failure on the streaming path: a terminal
// error event for everyone watching, then the same placeholder persistence as
// the blocking path so both paths leave an identical log shape behind.
func (s *ConversationService) failStream(ctx context.Context, userID uuid.UUID, conv *models.Conversation, model string, events chan<- models.StreamEvent, cause error) {
	if ctx.Err() != nil {
		return
	}

	log.Warn().Err(cause).
		Str("conversation_id", conv.ID.String()).
		Msg("stream failed, persisting placeholder reply")

	errEvent := models.StreamEvent{
		Type:           models.StreamEventError,
		ConversationID: conv.ID,
		Error:          cause.Error(),
	}
	s.relay.Publish(conv.ID, errEvent)
	s.emit(ctx, events, errEvent)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if _, perr := s.persistAssistantReply(persistCtx, userID, conv.ID, placeholderReply, model, 0); perr != nil {
		log.Error().Err(perr).
			Str("conversation_id", conv.ID.String()).
			Msg("placeholder reply not persisted, conversation ends on a user turn")
	}
}

// modelOverride validates an optional per-request model selection. Returns
// the empty string when no override was requested.
func (s *ConversationService) modelOverride(model *string) (string, error) {
	if model == nil || *model == "" {
		return "", nil
	}
	if !s.cfg.ValidModel(*model) {
		return "", fmt.Errorf("%w: %s", ErrInvalidModel, *model)
	}
	return *model, nil
}

// appendUserMessage validates, atomically appends the user turn (installing a
// derived title while the conversation is still untitled) and publishes it to
// live viewers. The returned snapshot is the context-window source.
func (s *ConversationService) appendUserMessage(ctx context.Context, userID, conversationID uuid.UUID, text string) (*models.Conversation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}

	msg := models.Message{
		ID:        uuid.New(),
		Role:      models.RoleUser,
		Content:   text,
		Tokens:    s.estimator.Count(text),
		CreatedAt: time.Now().UTC(),
	}

	conv, err := s.store.AppendMessage(ctx, store.AppendMessageParams{
		ConversationID: conversationID,
		UserID:         userID,
		Message:        msg,
		Title:          deriveTitle(text),
	})
	if err != nil {
		return nil, err
	}

	s.relay.Publish(conv.ID, models.StreamEvent{
		Type:           models.StreamEventMessage,
		ConversationID: conv.ID,
		Message:        &msg,
	})
	return conv, nil
}

// persistAssistantReply appends one assistant message and publishes it. A
// zero tokenCount falls back to the local estimate, which also covers
// streamed replies where the provider reports no usage.
func (s *ConversationService) persistAssistantReply(ctx context.Context, userID, conversationID uuid.UUID, content, model string, tokenCount int) (*models.Conversation, error) {
	if tokenCount <= 0 {
		tokenCount = s.estimator.Count(content)
	}

	msg := models.Message{
		ID:        uuid.New(),
		Role:      models.RoleAssistant,
		Content:   content,
		Model:     model,
		Tokens:    tokenCount,
		CreatedAt: time.Now().UTC(),
	}

	conv, err := s.store.AppendMessage(ctx, store.AppendMessageParams{
		ConversationID: conversationID,
		UserID:         userID,
		Message:        msg,
	})
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("failed to append assistant message")
		return nil, err
	}

	s.relay.Publish(conv.ID, models.StreamEvent{
		Type:           models.StreamEventMessage,
		ConversationID: conv.ID,
		Message:        &msg,
	})
	return conv, nil
}

// contextWindow builds the provider request from the conversation snapshot:
// the trailing N non-system messages in their original order.
func (s *ConversationService) contextWindow(conv *models.Conversation) ([]provider.ChatMessage, error) {
	msgs, err := decodeMessages(conv)
	if err != nil {
		return nil, err
	}

	window := make([]provider.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			continue
		}
		window = append(window, provider.ChatMessage{Role: m.Role, Content: m.Content})
	}

	max := s.cfg.ContextWindowMessages
	if max > 0 && len(window) > max {
		window = window[len(window)-max:]
	}
	return window, nil
}

func (s *ConversationService) emit(ctx context.Context, events chan<- models.StreamEvent, event models.StreamEvent) {
	select {
	case events <- event:
	case <-ctx.Done():
	}
}

// deriveTitle produces the auto-generated title from the first user message:
// the leading runes, with an ellipsis only when truncated.
func deriveTitle(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= titleMaxRunes {
		return string(runes)
	}
	return string(runes[:titleMaxRunes]) + "…"
}

func decodeMessages(conv *models.Conversation) ([]models.Message, error) {
	var msgs []models.Message
	if len(conv.Messages) > 0 {
		if err := json.Unmarshal(conv.Messages, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode conversation messages: %w", err)
		}
	}
	return msgs, nil
}

func lastMessage(conv *models.Conversation) (*models.Message, error) {
	msgs, err := decodeMessages(conv)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, errors.New("conversation has no messages")
	}
	return &msgs[len(msgs)-1], nil
}

func mapConversationToResponse(conv *models.Conversation) (*models.ConversationResponse, error) {
	msgs, err := decodeMessages(conv)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return &models.ConversationResponse{
		ID:             conv.ID,
		UserID:         conv.UserID,
		Title:          conv.Title,
		Model:          conv.Model,
		Messages:       msgs,
		TotalTokens:    conv.TotalTokens,
		LastActivityAt: conv.LastActivityAt,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}, nil
}
