package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"relaychat-backend/internal/config"
	"relaychat-backend/internal/handlers"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler         *handlers.AuthHandler
	ConversationHandler *handlers.ConversationHandlers
	StreamHandler       *handlers.StreamHandlers
	Config              *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// No blanket timeout: the streaming endpoints hold their connections open
	// for as long as the upstream stream or the viewer does.

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1/auth", func(r chi.Router) {
		if deps.AuthHandler == nil {
			panic("AuthHandler dependency is nil in router setup")
		}
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
	})

	// --- Authenticated Routes (JWT Required) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

		if deps.ConversationHandler == nil {
			panic("ConversationHandler dependency is nil in router setup")
		}

		r.Get("/models", deps.ConversationHandler.HandleListModels)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", deps.ConversationHandler.HandleCreateConversation)
			r.Get("/", deps.ConversationHandler.HandleListConversations)
			r.Get("/{conversationID}", deps.ConversationHandler.HandleGetConversation)
			r.Delete("/{conversationID}", deps.ConversationHandler.HandleDeleteConversation)

			r.Post("/{conversationID}/messages", deps.ConversationHandler.HandleSendMessage)

			if deps.StreamHandler != nil {
				r.Get("/{conversationID}/ws", deps.StreamHandler.HandleConversationSocket)
			}
		})
	})

	return r
}
