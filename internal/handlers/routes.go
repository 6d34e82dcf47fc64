package handlers

import (
	"net/http"
	"time"

	"memories-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Routes groups every handler the router mounts
type Routes struct {
	Users     *UserHandler
	Friends   *FriendshipHandler
	Media     *MediaHandler
	History   *HistoryHandler
	WebSocket *WebSocketHandler
	Health    *HealthHandler

	Auth      func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
	Metrics   http.Handler
	// Blobs serves payloads stored in process memory, mounted at /blobs/
	// behind Auth
	Blobs http.Handler
}

// NewRouter builds the HTTP router
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS)
	r.Use(middleware.Metrics)

	r.Get("/health", rt.Health.Health)
	if rt.Blobs != nil {
		r.Group(func(r chi.Router) {
			r.Use(rt.Auth)
			r.Method(http.MethodGet, "/blobs/*", http.StripPrefix("/blobs", rt.Blobs))
		})
	}
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}
	r.Get("/ws", rt.WebSocket.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(60 * time.Second))
		if rt.RateLimit != nil {
			r.Use(rt.RateLimit)
		}

		r.Post("/users", rt.Users.CreateUser)

		r.Group(func(r chi.Router) {
			r.Use(rt.Auth)

			r.Get("/users/me", rt.Users.GetMe)
			r.Patch("/users/me", rt.Users.UpdateMe)
			r.Put("/users/me/push-token", rt.Users.UpdatePushToken)
			r.Get("/users/by-code/{code}", rt.Users.GetByCode)

			r.Get("/friends", rt.Friends.ListFriends)
			r.Get("/friends/count", rt.Friends.CountFriends)
			r.Post("/friends", rt.Friends.AddFriend)
			r.Delete("/friends/{friend_id}", rt.Friends.RemoveFriend)

			r.Post("/media", rt.Media.SendMedia)
			r.Post("/media/{media_id}/seen", rt.Media.MarkSeen)

			r.Get("/history", rt.History.GetHistory)
		})
	})

	return r
}
