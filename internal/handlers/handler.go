// Package handlers exposes the HTTP and WebSocket endpoints.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/Alvaro1251/Learnify/internal/config"
	"github.com/Alvaro1251/Learnify/internal/middleware"
	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/Alvaro1251/Learnify/internal/services"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChatHistory is the read side of the chat log.
type ChatHistory interface {
	CanRead(ctx context.Context, groupID, userID string) (bool, error)
	RecentMessages(ctx context.Context, groupID string, limit int) ([]models.ChatMessage, error)
}

// HealthCheck returns nil when a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators a Handler serves requests with. Fields a given
// route does not touch may be left nil.
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Auth     *services.AuthService
	Authn    middleware.Authenticator
	Users    *services.UserService
	Groups   *services.GroupService
	Posts    *services.PostService
	History  ChatHistory
	Chat     *services.ChatService
	Registry *services.ConnectionRegistry
	Checks   map[string]HealthCheck
}

type Handler struct {
	cfg      *config.Config
	log      *zap.Logger
	auth     *services.AuthService
	authn    middleware.Authenticator
	users    *services.UserService
	groups   *services.GroupService
	posts    *services.PostService
	history  ChatHistory
	chat     *services.ChatService
	registry *services.ConnectionRegistry
	checks   map[string]HealthCheck
	upgrader websocket.Upgrader
}

func New(d Deps) *Handler {
	h := &Handler{
		cfg:      d.Config,
		log:      d.Logger,
		auth:     d.Auth,
		authn:    d.Authn,
		users:    d.Users,
		groups:   d.Groups,
		posts:    d.Posts,
		history:  d.History,
		chat:     d.Chat,
		registry: d.Registry,
		checks:   d.Checks,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Non-browser clients send no Origin and are allowed.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}
