package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"relaychat-backend/internal/relay"
	"relaychat-backend/internal/store"
	"relaychat-backend/pkg/httputil"
)

const socketWriteTimeout = 10 * time.Second

// StreamHandlers serves the live-view websocket: one connection observes one
// conversation and receives every StreamEvent published for it.
type StreamHandlers struct {
	service  ConversationService
	relay    *relay.Broadcaster
	upgrader websocket.Upgrader
}

func NewStreamHandlers(svc ConversationService, broadcaster *relay.Broadcaster) *StreamHandlers {
	return &StreamHandlers{
		service: svc,
		relay:   broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth already gates the route; cross-origin browser
			// clients are expected.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConversationSocket handles GET /v1/conversations/{conversationID}/ws.
// Ownership is checked before the upgrade so an unauthorized caller gets a
// plain HTTP error rather than a half-open socket.
func (h *StreamHandlers) HandleConversationSocket(w http.ResponseWriter, r *http.Request) {
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

	if _, err := h.service.GetConversation(r.Context(), userID, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Error().Err(err).Str("conversation_id", conversationID.String()).Msg("failed to verify conversation access")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to open stream")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.relay.Subscribe(r.Context(), conversationID)
	defer unsubscribe()

	log.Info().
		Str("conversation_id", conversationID.String()).
		Str("user_id", userID.String()).
		Msg("stream session opened")

	// Read pump: the client sends nothing we act on, but reading is how we
	// learn the peer closed. An error tears down the subscription, which
	// closes the events channel and ends the write loop.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				unsubscribe()
				return
			}
		}
	}()

	for event := range events {
		conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			log.Debug().Err(err).Str("conversation_id", conversationID.String()).Msg("socket write failed")
			break
		}
	}

	log.Info().
		Str("conversation_id", conversationID.String()).
		Msg("stream session closed")
}
