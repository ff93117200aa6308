package handlers

import (
	"net/http"
	"time"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/Alvaro1251/Learnify/internal/services"
	"github.com/Alvaro1251/Learnify/pkg/auth"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// wsConn bounds every write with a deadline so one stalled peer cannot hold
// a group's broadcast.
type wsConn struct {
	*websocket.Conn
	writeTimeout time.Duration
}

func (c *wsConn) WriteJSON(v interface{}) error {
	_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.Conn.WriteJSON(v)
}

// ChatWebSocket handles GET /study-groups/ws/{group_id}.
//
// A bearer token (Authorization header or ?token=) is optional unless
// CHAT_REQUIRE_AUTH is set. When present, every frame's sender_id must be
// the authenticated user. Membership is checked per message, at write time.
func (h *Handler) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	var userID string
	if token, err := auth.ExtractToken(r); err == nil {
		userID, err = h.authn.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
	} else if h.cfg.ChatRequireAuth {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		h.log.Debug("websocket upgrade failed", zap.String("group_id", groupID), zap.Error(err))
		return
	}
	defer conn.Close()

	client := services.NewChatClient(groupID, userID,
		&wsConn{Conn: conn, writeTimeout: h.cfg.ChatWriteTimeout},
		rate.NewLimiter(rate.Limit(h.cfg.ChatRatePerSecond), h.cfg.ChatRateBurst))
	if err := h.registry.Admit(client); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		return
	}
	defer h.registry.Release(client)

	log := h.log.With(zap.String("group_id", groupID), zap.String("conn_id", client.ID))
	log.Debug("chat connection open", zap.String("user_id", userID))

	pongWait := 2 * h.cfg.ChatPingInterval
	conn.SetReadLimit(h.cfg.ChatMaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(conn, done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("chat connection closed", zap.Error(err))
			}
			return
		}
		// Any frame from the peer proves it is alive.
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			h.registry.Unicast(client, models.NewChatError(services.ChatErrMalformed))
			continue
		}
		h.chat.HandleRaw(r.Context(), client, data)
	}
}

func (h *Handler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.ChatPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.ChatWriteTimeout)); err != nil {
				return
			}
		}
	}
}
