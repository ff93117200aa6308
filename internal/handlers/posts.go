package handlers

import (
	"net/http"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPostPageSize = 10
	maxPostPageSize     = 100
)

// PostResponse wraps a single post.
type PostResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Post    models.PostDetail `json:"post"`
}

// PostListResponse wraps a list of post summaries.
type PostListResponse struct {
	Success bool                 `json:"success"`
	Posts   []models.PostSummary `json:"posts"`
}

// PostDetailListResponse wraps a list of full posts.
type PostDetailListResponse struct {
	Success bool                `json:"success"`
	Posts   []models.PostDetail `json:"posts"`
}

// CreatePost handles POST /posts/create
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req models.PostCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.posts.Create(r.Context(), currentUser(r), req)
	if err != nil {
		h.writeServiceError(w, err, "create post")
		return
	}
	h.writePost(w, r, http.StatusCreated, "Post created", p)
}

// GetLatestPosts handles GET /posts/latest
func (h *Handler) GetLatestPosts(w http.ResponseWriter, r *http.Request) {
	skip, limit := parsePaging(r, defaultPostPageSize, maxPostPageSize)
	posts, err := h.posts.Latest(r.Context(), skip, limit)
	if err != nil {
		h.writeServiceError(w, err, "list latest posts")
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Success: true, Posts: posts})
}

// GetPost handles GET /posts/{post_id}
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.posts.GetByID(r.Context(), chi.URLParam(r, "post_id"))
	if err != nil {
		h.writeServiceError(w, err, "load post")
		return
	}
	h.writePost(w, r, http.StatusOK, "", p)
}

// AddPostResponse handles POST /posts/{post_id}/response
func (h *Handler) AddPostResponse(w http.ResponseWriter, r *http.Request) {
	var req models.PostResponseCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.posts.AddResponse(r.Context(), chi.URLParam(r, "post_id"), currentUser(r), req.Content)
	if err != nil {
		h.writeServiceError(w, err, "add post response")
		return
	}
	h.writePost(w, r, http.StatusOK, "Response added", p)
}

// GetMyPosts handles GET /posts/my/posts
func (h *Handler) GetMyPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListForUser(r.Context(), currentUser(r))
	if err != nil {
		h.writeServiceError(w, err, "list user posts")
		return
	}
	details, err := h.posts.Details(r.Context(), posts)
	if err != nil {
		h.writeServiceError(w, err, "load post details")
		return
	}
	writeJSON(w, http.StatusOK, PostDetailListResponse{Success: true, Posts: details})
}

// DeletePost handles DELETE /posts/{post_id}. Only the owner may delete.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.posts.Delete(r.Context(), chi.URLParam(r, "post_id"), currentUser(r)); err != nil {
		h.writeServiceError(w, err, "delete post")
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: "Post deleted"})
}

func (h *Handler) writePost(w http.ResponseWriter, r *http.Request, status int, msg string, p models.Post) {
	detail, err := h.posts.Detail(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, err, "load post detail")
		return
	}
	writeJSON(w, status, PostResponse{Success: true, Message: msg, Post: detail})
}
