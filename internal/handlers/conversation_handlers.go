package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relaychat-backend/internal/config"
	"relaychat-backend/internal/models"
	"relaychat-backend/internal/services"
	"relaychat-backend/internal/store"
	"relaychat-backend/pkg/httputil"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ConversationService defines what the conversation handlers need from the
// service layer.
type ConversationService interface {
	CreateConversation(ctx context.Context, userID uuid.UUID, req models.CreateConversationRequest) (*models.ConversationResponse, error)
	GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (*models.ConversationResponse, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error
	SendMessage(ctx context.Context, userID, conversationID uuid.UUID, req models.SendMessageRequest) (*models.ConversationResponse, error)
	StreamMessage(ctx context.Context, userID, conversationID uuid.UUID, req models.SendMessageRequest) (<-chan models.StreamEvent, error)
}

type ConversationHandlers struct {
	service ConversationService
	cfg     *config.Config
}

func NewConversationHandlers(svc ConversationService, cfg *config.Config) *ConversationHandlers {
	return &ConversationHandlers{
		service: svc,
		cfg:     cfg,
	}
}

// HandleListModels handles GET /v1/models.
func (h *ConversationHandlers) HandleListModels(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, models.ListModelsResponse{
		Models:       h.cfg.Models,
		DefaultModel: h.cfg.DefaultModel,
	})
}

// HandleCreateConversation handles POST /v1/conversations.
func (h *ConversationHandlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.CreateConversationRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}
	defer r.Body.Close()

	conv, err := h.service.CreateConversation(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidModel) {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to create conversation")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, conv)
}

// HandleListConversations handles GET /v1/conversations.
func (h *ConversationHandlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := queryInt(r, "offset", 0)

	summaries, err := h.service.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list conversations")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}

	httputil.RespondJSON(w, http.StatusOK, models.ListConversationsResponse{Conversations: summaries})
}

// HandleGetConversation handles GET /v1/conversations/{conversationID}.
func (h *ConversationHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	conversationID, err := conversationIDFromRequest(r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.GetConversation(r.Context(), userID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("failed to get conversation")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conv)
}

// HandleDeleteConversation handles DELETE /v1/conversations/{conversationID}.
func (h *ConversationHandlers) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	conversationID, err := conversationIDFromRequest(r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.DeleteConversation(r.Context(), userID, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("failed to delete conversation")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
