// internal/catalog/handler.go
package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bookswap/internal/auth"
	"bookswap/internal/httpx"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Mount registers the catalog routes behind authenticate.
func (h *Handler) Mount(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Route("/books", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/", h.HandleListBooks)
		r.Post("/", h.HandleCreateBook)
		r.Get("/search", h.HandleSearch)
		r.Put("/{id}/status", h.HandleUpdateStatus)
	})
}

func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFrom(r.Context())

	books, err := h.service.ListBooks(r.Context(), caller.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Author string `json:"author"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	book, err := h.service.CreateBook(r.Context(), caller.ID, req.Title, req.Author)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	book, err := h.service.UpdateStatus(r.Context(), caller.ID, id, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyQuery):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFoundOrUnauthorized):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("catalog request failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
