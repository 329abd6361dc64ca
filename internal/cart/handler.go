package cart

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/artmarket/backend/internal/domain"
)

type Handler struct {
	repo   *CartRepository
	logger *slog.Logger
}

func NewHandler(repo *CartRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type createCartRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cart, err := h.repo.Create(r.Context(), req.UserID)
	if err != nil {
		h.respondStoreError(w, err, "failed to create cart")
		return
	}

	h.logger.Info("cart created", "cart_id", cart.ID, "user_id", cart.UserID)
	h.writeJSON(w, http.StatusCreated, cart)
}

func (h *Handler) HandleGetByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	cart, err := h.repo.GetByUserID(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, err, "failed to get cart")
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

type addItemRequest struct {
	ArtworkID string `json:"artwork_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("id")
	if cartID == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart id")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ArtworkID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.AddItem(r.Context(), cartID, req.ArtworkID, req.Quantity); err != nil {
		h.respondStoreError(w, err, "failed to add cart item")
		return
	}

	cart, err := h.repo.GetByID(r.Context(), cartID)
	if err != nil {
		h.respondStoreError(w, err, "failed to reload cart")
		return
	}

	h.logger.Info("cart item added", "cart_id", cartID, "artwork_id", req.ArtworkID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, cart)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.UpdateItemQuantity(r.Context(), itemID, req.Quantity); err != nil {
		h.respondStoreError(w, err, "failed to update cart item")
		return
	}

	h.logger.Info("cart item updated", "item_id", itemID, "quantity", req.Quantity)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	if err := h.repo.RemoveItem(r.Context(), itemID); err != nil {
		h.respondStoreError(w, err, "failed to remove cart item")
		return
	}

	h.logger.Info("cart item removed", "item_id", itemID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("id")
	if cartID == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart id")
		return
	}

	if err := h.repo.Delete(r.Context(), cartID); err != nil {
		h.respondStoreError(w, err, "failed to delete cart")
		return
	}

	h.logger.Info("cart deleted", "cart_id", cartID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidQuantity):
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, "user already has a cart")
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
