// internal/exchange/handler.go
package exchange

import (
	"context"
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

// Mount registers the exchange routes behind authenticate.
func (h *Handler) Mount(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Route("/exchange-requests", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleListMine)
		r.Put("/{id}/approve", h.transitionHandler(h.service.Approve))
		r.Put("/{id}/complete", h.transitionHandler(h.service.Complete))
		r.Put("/{id}/reject", h.transitionHandler(h.service.Reject))
		r.Get("/{id}/history", h.HandleHistory)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID      int64 `json:"book_id"`
		RecipientID int64 `json:"recipient_id"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	created, err := h.service.Create(r.Context(), caller.ID, req.BookID, req.RecipientID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFrom(r.Context())

	reqs, err := h.service.ListMine(r.Context(), caller.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reqs)
}

type transitionFunc func(ctx context.Context, actorID, id int64) (*ExchangeRequest, error)

func (h *Handler) transitionHandler(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.ParseID(r, "id")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		caller, _ := auth.PrincipalFrom(r.Context())

		updated, err := fn(r.Context(), caller.ID, id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, updated)
	}
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(r, "id")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, _ := auth.PrincipalFrom(r.Context())

	facts, err := h.service.History(r.Context(), caller.ID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, facts)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFoundOrUnauthorized):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("exchange request failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
