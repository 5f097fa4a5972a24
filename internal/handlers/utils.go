package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"relaychat-backend/internal/auth"
)

// userIDFromRequest extracts the authenticated user's ID from the request
// context set by the JWT middleware.
func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("user ID not found in request context")
	}
	return userID, nil
}

// conversationIDFromRequest parses the {conversationID} URL parameter.
func conversationIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "conversationID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid conversation ID %q", raw)
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def when absent
// or unparseable.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
