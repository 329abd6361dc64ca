package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/artmarket/backend/internal/domain"
)

type Handler struct {
	repo   *OrderRepository
	logger *slog.Logger
}

func NewHandler(repo *OrderRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type createOrderRequest struct {
	UserID    string `json:"user_id"`
	ArtworkID string `json:"artwork_id"`
	Quantity  int    `json:"quantity"`
	Address   string `json:"address"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.ArtworkID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id and artwork_id are required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	order, err := h.repo.Create(r.Context(), req.UserID, req.ArtworkID, req.Quantity, req.Address)
	if err != nil {
		h.respondStoreError(w, err, "failed to create order")
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "price", order.Price)
	h.writeJSON(w, http.StatusCreated, order)
}

type checkoutRequest struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	placed, err := h.repo.Checkout(r.Context(), req.UserID, req.Address)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuantity) {
			h.writeError(w, http.StatusBadRequest, "cart is empty")
			return
		}
		h.respondStoreError(w, err, "failed to check out cart")
		return
	}

	h.logger.Info("cart checked out", "user_id", req.UserID, "orders", len(placed))
	h.writeJSON(w, http.StatusCreated, placed)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "failed to get order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondStoreError(w, err, "failed to update order status")
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
}

type updateOrderRequest struct {
	Price   int64              `json:"price"`
	Address string             `json:"address"`
	Status  domain.OrderStatus `json:"status"`
}

// HandleUpdate is the administrative correction endpoint. It cannot be used
// to bypass the lifecycle: status values still go through the transition
// table in the repository.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}

	order, err := h.repo.Update(r.Context(), id, req.Price, req.Address, req.Status)
	if err != nil {
		h.respondStoreError(w, err, "failed to update order")
		return
	}

	h.logger.Info("order updated", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		orders []domain.Order
		err    error
	)

	switch {
	case r.URL.Query().Get("user_id") != "":
		orders, err = h.repo.ListByUser(r.Context(), r.URL.Query().Get("user_id"))
	case r.URL.Query().Get("status") != "":
		status := domain.OrderStatus(r.URL.Query().Get("status"))
		if !status.Valid() {
			h.writeError(w, http.StatusBadRequest, "unknown order status")
			return
		}
		orders, err = h.repo.ListByStatus(r.Context(), status)
	default:
		orders, err = h.repo.List(r.Context())
	}

	if err != nil {
		h.respondStoreError(w, err, "failed to list orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrIllegalTransition):
		h.writeError(w, http.StatusBadRequest, "illegal status transition")
	case errors.Is(err, domain.ErrInvalidQuantity):
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
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
