package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/Alvaro1251/Learnify/internal/services"
	"github.com/go-chi/chi/v5"
)

const (
	defaultGroupPageSize = 20
	maxGroupPageSize     = 100
)

// GroupResponse wraps a single group.
type GroupResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message,omitempty"`
	Group   models.StudyGroupDetail `json:"group"`
}

// GroupListResponse wraps one page of groups.
type GroupListResponse struct {
	Success bool `json:"success"`
	models.StudyGroupPage
}

// ShareFileRequest is the body of POST /study-groups/{group_id}/share-file.
type ShareFileRequest struct {
	FileURL string `json:"file_url"`
}

// CreateGroup handles POST /study-groups/create
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req models.StudyGroupCreate
	if !decodeJSON(w, r, &req) {
		return
	}

	g, err := h.groups.Create(r.Context(), currentUser(r), req)
	if err != nil {
		h.writeServiceError(w, err, "create group")
		return
	}
	detail, err := h.groups.Detail(r.Context(), g)
	if err != nil {
		h.writeServiceError(w, err, "load group detail")
		return
	}
	writeJSON(w, http.StatusCreated, GroupResponse{Success: true, Message: "Study group created", Group: detail})
}

// GetPublicGroups handles GET /study-groups/public. With exclude_mine=true
// and a bearer token, groups the caller already belongs to are hidden.
func (h *Handler) GetPublicGroups(w http.ResponseWriter, r *http.Request) {
	skip, limit := parsePaging(r, defaultGroupPageSize, maxGroupPageSize)

	exclude := ""
	if mine, _ := strconv.ParseBool(r.URL.Query().Get("exclude_mine")); mine {
		exclude = currentUser(r)
	}

	groups, total, err := h.groups.ListPublic(r.Context(), skip, limit, exclude)
	if err != nil {
		h.writeServiceError(w, err, "list public groups")
		return
	}
	h.writeGroupPage(w, r, groups, total, skip, limit)
}

// GetMyGroups handles GET /study-groups/my/groups
func (h *Handler) GetMyGroups(w http.ResponseWriter, r *http.Request) {
	skip, limit := parsePaging(r, defaultGroupPageSize, maxGroupPageSize)

	groups, total, err := h.groups.ListForUser(r.Context(), currentUser(r), skip, limit)
	if err != nil {
		h.writeServiceError(w, err, "list user groups")
		return
	}
	h.writeGroupPage(w, r, groups, total, skip, limit)
}

func (h *Handler) writeGroupPage(w http.ResponseWriter, r *http.Request, groups []models.StudyGroup, total, skip, limit int64) {
	summaries, err := h.groups.Summaries(r.Context(), groups)
	if err != nil {
		h.writeServiceError(w, err, "summarize groups")
		return
	}
	writeJSON(w, http.StatusOK, GroupListResponse{
		Success: true,
		StudyGroupPage: models.StudyGroupPage{
			Groups:     summaries,
			Total:      total,
			Page:       skip/limit + 1,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

// GetGroup handles GET /study-groups/{group_id}. Private groups are only
// visible to their members.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "group_id")

	ok, err := h.groups.CanRead(r.Context(), groupID, currentUser(r))
	if err != nil {
		h.writeServiceError(w, err, "check group access")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "You are not a member of this group")
		return
	}

	g, err := h.groups.GetByID(r.Context(), groupID)
	if err != nil {
		h.writeServiceError(w, err, "load group")
		return
	}
	detail, err := h.groups.Detail(r.Context(), g)
	if err != nil {
		h.writeServiceError(w, err, "load group detail")
		return
	}
	writeJSON(w, http.StatusOK, GroupResponse{Success: true, Group: detail})
}

// JoinGroup handles POST /study-groups/{group_id}/join
func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	res, err := h.groups.RequestJoin(r.Context(), chi.URLParam(r, "group_id"), currentUser(r))
	if err != nil {
		h.writeServiceError(w, err, "join group")
		return
	}

	msg := map[services.JoinResult]string{
		services.JoinAdded:          "Successfully joined the group",
		services.JoinRequested:      "Join request sent. Waiting for owner approval.",
		services.JoinAlreadyMember:  "You are already a member of this group",
		services.JoinAlreadyPending: "Your join request is already pending",
	}[res]
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": msg, "status": res})
}

// AcceptJoinRequest handles POST /study-groups/{group_id}/accept-request/{user_id}
func (h *Handler) AcceptJoinRequest(w http.ResponseWriter, r *http.Request) {
	err := h.groups.AcceptRequest(r.Context(), chi.URLParam(r, "group_id"), currentUser(r), chi.URLParam(r, "user_id"))
	if err != nil {
		h.writeServiceError(w, err, "accept join request")
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "Join request accepted"})
}

// LeaveGroup handles POST /study-groups/{group_id}/leave
func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.groups.Leave(r.Context(), chi.URLParam(r, "group_id"), currentUser(r)); err != nil {
		h.writeServiceError(w, err, "leave group")
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "Successfully left the group"})
}

// ShareFile handles POST /study-groups/{group_id}/share-file
func (h *Handler) ShareFile(w http.ResponseWriter, r *http.Request) {
	var req ShareFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fileURL := strings.TrimSpace(req.FileURL)
	if u, err := url.Parse(fileURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "file_url must be an http(s) URL")
		return
	}

	f, err := h.groups.ShareFile(r.Context(), chi.URLParam(r, "group_id"), currentUser(r), fileURL)
	if err != nil {
		h.writeServiceError(w, err, "share file")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "File shared successfully",
		"file":    f,
	})
}
