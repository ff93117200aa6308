package routes

import (
	"net/http"

	"github.com/Alvaro1251/Learnify/internal/handlers"
	"github.com/Alvaro1251/Learnify/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// SetupRoutes mounts every endpoint on r. loginLimit guards the credential
// endpoints and may be nil.
func SetupRoutes(r chi.Router, h *handlers.Handler, authn middleware.Authenticator, loginLimit func(http.Handler) http.Handler) {
	requireAuth := middleware.RequireAuth(authn)
	optionalAuth := middleware.OptionalAuth(authn)
	if loginLimit == nil {
		loginLimit = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/health", h.Health)

	r.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/register", h.Register)
		r.With(loginLimit).Post("/login", h.Login)
		r.With(requireAuth).Get("/me", h.Me)
		r.With(requireAuth).Post("/logout", h.Logout)
	})

	r.Route("/profile", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", h.GetProfile)
		r.Put("/update", h.UpdateProfile)
	})

	r.Route("/study-groups", func(r chi.Router) {
		// The WebSocket route authenticates itself so browsers can pass ?token=.
		r.Get("/ws/{group_id}", h.ChatWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/public", h.GetPublicGroups)
			r.Get("/{group_id}", h.GetGroup)
			r.Get("/{group_id}/messages", h.GetMessages)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/create", h.CreateGroup)
			r.Get("/my/groups", h.GetMyGroups)
			r.Post("/{group_id}/join", h.JoinGroup)
			r.Post("/{group_id}/accept-request/{user_id}", h.AcceptJoinRequest)
			r.Post("/{group_id}/leave", h.LeaveGroup)
			r.Post("/{group_id}/share-file", h.ShareFile)
		})
	})

	r.Route("/posts", func(r chi.Router) {
		r.Get("/latest", h.GetLatestPosts)
		r.Get("/{post_id}", h.GetPost)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/create", h.CreatePost)
			r.Get("/my/posts", h.GetMyPosts)
			r.Post("/{post_id}/response", h.AddPostResponse)
			r.Delete("/{post_id}", h.DeletePost)
		})
	})
}
