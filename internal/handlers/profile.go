package handlers

import (
	"net/http"

	"github.com/Alvaro1251/Learnify/internal/models"
)

// GetProfile handles GET /profile/me
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.FindByID(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, err, "load profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "profile": u})
}

// UpdateProfile handles PUT /profile/update. Omitted fields stay unchanged.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), currentUser(r), req)
	if err != nil {
		h.writeServiceError(w, err, "update profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Profile updated successfully",
		"profile": u,
	})
}
