package search

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/socialstream/platform/internal/httpapi"
)

type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpapi.RequireCaller)
	r.Get("/api/v1/search", h.handleSearch)
	return r
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.Service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, results)
}
