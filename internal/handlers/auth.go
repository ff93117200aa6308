package handlers

import (
	"net/http"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/Alvaro1251/Learnify/pkg/auth"
)

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries an access token and the user it belongs to.
type AuthResponse struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        models.User `json:"user"`
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	u, token, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "register")
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{
		Success:     true,
		Message:     "User created successfully",
		AccessToken: token,
		TokenType:   "bearer",
		User:        u,
	})
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err, "login")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{
		Success:     true,
		Message:     "Login successful",
		AccessToken: token,
		TokenType:   "bearer",
		User:        u,
	})
}

// Me handles GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.FindByID(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, err, "load current user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": u})
}

// Logout handles POST /auth/logout. The presented token stops working
// immediately when Redis is configured.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractTokenFromHeader(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.writeServiceError(w, err, "logout")
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "Logged out"})
}
