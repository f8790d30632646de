package media

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/socialstream/platform/internal/faults"
	"github.com/socialstream/platform/internal/httpapi"
)

const maxUploadBytes = 16 << 20

type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpapi.RequireCaller)

	r.Route("/api/v1/media", func(r chi.Router) {
		r.Post("/", h.handleUpload)
		r.Get("/", h.handleList)
	})
	return r
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpapi.WriteError(w, faults.New(faults.Validation, "invalid multipart payload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpapi.WriteError(w, faults.New(faults.Validation, "no file uploaded"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		httpapi.WriteError(w, faults.New(faults.Validation, "unreadable file"))
		return
	}
	if len(data) > maxUploadBytes {
		httpapi.WriteError(w, faults.New(faults.Validation, "file exceeds upload limit"))
		return
	}

	m, err := h.Service.Upload(
		r.Context(),
		httpapi.CallerFromContext(r.Context()),
		header.Filename,
		header.Header.Get("Content-Type"),
		data,
	)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, map[string]string{
		"media_id": m.ID,
		"url":      m.URL,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.ListForUser(r.Context(), httpapi.CallerFromContext(r.Context()))
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, items)
}
