package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Alvaro1251/Learnify/internal/middleware"
	"github.com/Alvaro1251/Learnify/internal/services"
	"github.com/Alvaro1251/Learnify/pkg/auth"
	"github.com/Alvaro1251/Learnify/pkg/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ActionResponse is the body of endpoints that only report an outcome.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ActionResponse{Success: false, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Request body is required")
		} else {
			writeError(w, http.StatusBadRequest, "Invalid request body")
		}
		return false
	}
	return true
}

// currentUser returns the authenticated user ID set by the auth middleware.
func currentUser(r *http.Request) string {
	id, _ := middleware.UserIDFromContext(r.Context())
	return id
}

// writeServiceError maps service errors to status codes. Anything unknown
// is logged and hidden behind a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, services.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, "Study group not found")
	case errors.Is(err, services.ErrPostNotFound):
		writeError(w, http.StatusNotFound, "Post not found")
	case errors.Is(err, services.ErrInvalidPostFields):
		writeError(w, http.StatusBadRequest, "Title, description and subject are required")
	case errors.Is(err, services.ErrEmptyResponse):
		writeError(w, http.StatusBadRequest, "Response content is required")
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "Join request not found")
	case errors.Is(err, services.ErrNotMember):
		writeError(w, http.StatusForbidden, "You are not a member of this group")
	case errors.Is(err, services.ErrNotOwner):
		writeError(w, http.StatusForbidden, "Only the group owner can do this")
	case errors.Is(err, services.ErrOwnerCannotLeave):
		writeError(w, http.StatusBadRequest, "The owner cannot leave the group")
	case errors.Is(err, services.ErrInvalidGroupFields):
		writeError(w, http.StatusBadRequest, "Name and description are required")
	case errors.Is(err, services.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "Invalid identifier")
	case errors.Is(err, services.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "Invalid email address")
	case errors.Is(err, utils.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, services.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
	case errors.Is(err, services.ErrInactiveUser):
		writeError(w, http.StatusForbidden, "Inactive user")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, services.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, "Could not validate credentials")
	default:
		h.log.Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// parsePaging reads skip and limit; bad values fall back to the defaults.
func parsePaging(r *http.Request, defLimit, maxLimit int64) (skip, limit int64) {
	limit = defLimit
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.ParseInt(r.URL.Query().Get("skip"), 10, 64); err == nil && v > 0 {
		skip = v
	}
	return skip, limit
}
