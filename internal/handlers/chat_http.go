package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/go-chi/chi/v5"
)

// ChatHistoryResponse is returned when loading persisted messages.
type ChatHistoryResponse struct {
	Success  bool                     `json:"success"`
	Messages []models.ChatMessageView `json:"messages"`
}

// GetMessages handles GET /study-groups/{group_id}/messages.
// Query params:
//
//	limit (optional, default CHAT_HISTORY_DEFAULT_LIMIT, capped at CHAT_HISTORY_MAX_LIMIT)
//
// Messages are returned oldest first. An unknown group has no messages.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	limit := h.cfg.ChatHistoryDefault
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		parsed, err := strconv.Atoi(lStr)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > h.cfg.ChatHistoryMax {
		limit = h.cfg.ChatHistoryMax
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.DBTimeout)
	defer cancel()

	ok, err := h.history.CanRead(ctx, groupID, currentUser(r))
	if err != nil {
		h.writeServiceError(w, err, "check chat access")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "You are not a member of this group")
		return
	}

	msgs, err := h.history.RecentMessages(ctx, groupID, limit)
	if err != nil {
		h.writeServiceError(w, err, "load chat history")
		return
	}

	views := make([]models.ChatMessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, m.View())
	}
	writeJSON(w, http.StatusOK, ChatHistoryResponse{Success: true, Messages: views})
}
