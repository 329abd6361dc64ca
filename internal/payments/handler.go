package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/artmarket/backend/internal/domain"
	"github.com/artmarket/backend/internal/orders"
)

type Handler struct {
	repo      *PaymentRepository
	orderRepo *orders.OrderRepository
	intents   *IntentClient
	logger    *slog.Logger
}

func NewHandler(repo *PaymentRepository, orderRepo *orders.OrderRepository, intents *IntentClient, logger *slog.Logger) *Handler {
	return &Handler{
		repo:      repo,
		orderRepo: orderRepo,
		intents:   intents,
		logger:    logger,
	}
}

type createPaymentRequest struct {
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Method        string               `json:"method"`
	Status        domain.PaymentStatus `json:"status"`
	TransactionID string               `json:"transaction_id"`
}

// HandleCreate is the direct creation path for payment records. Success and
// failed are reserved for reconciliation and rejected here.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" || req.UserID == "" || req.TransactionID == "" {
		h.writeError(w, http.StatusBadRequest, "order_id, user_id and transaction_id are required")
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown payment status")
		return
	}
	if req.Status == domain.PaymentStatusSuccess || req.Status == domain.PaymentStatusFailed {
		h.writeError(w, http.StatusBadRequest, "status is set by payment reconciliation only")
		return
	}

	payment := &domain.Payment{
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        req.Method,
		Status:        req.Status,
		TransactionID: req.TransactionID,
	}

	if err := h.repo.Create(r.Context(), payment); err != nil {
		h.respondStoreError(w, err, "failed to create payment")
		return
	}

	h.logger.Info("payment recorded", "payment_id", payment.ID, "transaction_id", payment.TransactionID)
	h.writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) HandleGetByTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("transactionId")
	if transactionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing transaction id")
		return
	}

	payment, err := h.repo.GetByTransactionID(r.Context(), transactionID)
	if err != nil {
		h.respondStoreError(w, err, "failed to get payment")
		return
	}

	h.writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		payments []domain.Payment
		err      error
	)

	switch {
	case r.URL.Query().Get("order_id") != "":
		payments, err = h.repo.ListByOrder(r.Context(), r.URL.Query().Get("order_id"))
	case r.URL.Query().Get("user_id") != "":
		payments, err = h.repo.ListByUser(r.Context(), r.URL.Query().Get("user_id"))
	case r.URL.Query().Get("status") != "":
		status := domain.PaymentStatus(r.URL.Query().Get("status"))
		if !status.Valid() {
			h.writeError(w, http.StatusBadRequest, "unknown payment status")
			return
		}
		payments, err = h.repo.ListByStatus(r.Context(), status)
	default:
		h.writeError(w, http.StatusBadRequest, "one of order_id, user_id or status is required")
		return
	}

	if err != nil {
		h.respondStoreError(w, err, "failed to list payments")
		return
	}

	h.writeJSON(w, http.StatusOK, payments)
}

type createIntentRequest struct {
	OrderID  string `json:"order_id"`
	Currency string `json:"currency"`
}

type createIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

// HandleCreateIntent obtains a payment handle from the gateway for a pending
// order. The amount always comes from the stored order, never the caller.
func (h *Handler) HandleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Currency == "" {
		req.Currency = "eur"
	}

	order, err := h.orderRepo.GetByID(r.Context(), req.OrderID)
	if err != nil {
		h.respondStoreError(w, err, "failed to load order")
		return
	}
	if order.Status != domain.OrderStatusPending {
		h.writeError(w, http.StatusConflict, "order is not awaiting payment")
		return
	}

	secret, err := h.intents.CreateIntent(r.Context(), order.ID, order.UserID, order.Price, req.Currency)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			h.writeError(w, http.StatusBadRequest, "invalid payment amount")
			return
		}
		h.logger.Error("failed to create payment intent", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		return
	}

	h.logger.Info("payment intent created", "order_id", order.ID, "amount", order.Price)
	h.writeJSON(w, http.StatusOK, createIntentResponse{ClientSecret: secret})
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, "transaction id already recorded")
	case errors.Is(err, ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, "unknown payment status")
	case errors.Is(err, domain.ErrIllegalTransition):
		h.writeError(w, http.StatusBadRequest, "illegal status transition")
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
