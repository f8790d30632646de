package post

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/socialstream/platform/internal/faults"
	"github.com/socialstream/platform/internal/httpapi"
)

// Handler exposes the post/comment/like write surface. The upstream gateway
// authenticates callers and attaches the user id as an opaque header.
type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpapi.RequireCaller)

	r.Route("/api/v1/posts", func(r chi.Router) {
		r.Post("/", h.handleCreatePost)
		r.Get("/", h.handleListPosts)
		r.Get("/{postID}", h.handleGetPost)
		r.Delete("/{postID}", h.handleDeletePost)
		r.Post("/{postID}/comments", h.handleCreateComment)
		r.Post("/{postID}/likes", h.handleLike)
		r.Delete("/{postID}/likes", h.handleUnlike)
		r.Get("/{postID}/likes", h.handleGetLikes)
	})
	return r
}

type createCommentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, faults.New(faults.Validation, "invalid JSON payload"))
		return
	}
	p, err := h.Service.CreatePost(r.Context(), httpapi.CallerFromContext(r.Context()), req)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleListPosts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	posts, err := h.Service.ListPosts(r.Context(), page, size)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, posts)
}

func (h *Handler) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetPost(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeletePost(r.Context(), chi.URLParam(r, "postID"), httpapi.CallerFromContext(r.Context()))
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, faults.New(faults.Validation, "invalid JSON payload"))
		return
	}
	c, err := h.Service.CreateComment(r.Context(), chi.URLParam(r, "postID"), httpapi.CallerFromContext(r.Context()), req.Content)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleLike(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	count, err := h.Service.Like(r.Context(), postID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, LikeSnapshot{PostID: postID, Likes: count})
}

func (h *Handler) handleUnlike(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")
	count, err := h.Service.Unlike(r.Context(), postID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, LikeSnapshot{PostID: postID, Likes: count})
}

func (h *Handler) handleGetLikes(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.GetLikes(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, snap)
}
