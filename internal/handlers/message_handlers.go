package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"relaychat-backend/internal/models"
	"relaychat-backend/internal/provider"
	"relaychat-backend/internal/services"
	"relaychat-backend/internal/store"
	"relaychat-backend/pkg/httputil"
)

// HandleSendMessage handles POST /v1/conversations/{conversationID}/messages.
// The stream flag in the body selects the response mode: a single JSON
// document with the updated conversation, or a text/event-stream of
// StreamEvents terminated by a done or error frame.
func (h *ConversationHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
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

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.Stream {
		h.streamMessage(w, r, userID, conversationID, req)
		return
	}

	conv, err := h.service.SendMessage(r.Context(), userID, conversationID, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
		case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidModel):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, provider.ErrUnavailable):
			httputil.RespondError(w, http.StatusBadGateway, "Upstream provider unavailable")
		default:
			log.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("send message failed")
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to send message")
		}
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandlers) streamMessage(w http.ResponseWriter, r *http.Request, userID, conversationID uuid.UUID, req models.SendMessageRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.RespondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	events, err := h.service.StreamMessage(r.Context(), userID, conversationID, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
		case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidModel):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, provider.ErrUnavailable):
			httputil.RespondError(w, http.StatusBadGateway, "Upstream provider unavailable")
		default:
			log.Error().Err(err).Msg("stream message failed")
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to send message")
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode stream event")
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(payload); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}
