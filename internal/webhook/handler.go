package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/artmarket/backend/internal/domain"
)

// SignatureHeader carries the gateway's signature token.
const SignatureHeader = "Gateway-Signature"

const maxPayloadBytes = 64 << 10

type reconciler interface {
	ApplySuccess(ctx context.Context, ev Event) (Outcome, *domain.OrderConfirmedEvent, error)
	ApplyFailure(ctx context.Context, transactionID string) (bool, error)
}

type publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Handler is the inbound boundary for payment reconciliation. The gateway is
// an untrusted at-least-once event source: the handler authenticates every
// delivery, acknowledges what it deliberately ignores so the gateway stops
// retrying, and answers 5xx only when redelivery can actually help.
type Handler struct {
	verifier   *Verifier
	reconciler reconciler
	producer   publisher
	logger     *slog.Logger
}

// NewHandler wires the webhook endpoint. producer may be nil; confirmation
// events are then skipped.
func NewHandler(verifier *Verifier, rec reconciler, producer publisher, logger *slog.Logger) *Handler {
	return &Handler{
		verifier:   verifier,
		reconciler: rec,
		producer:   producer,
		logger:     logger,
	}
}

func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get(SignatureHeader)); err != nil {
		// Discarded, not processed, not logged as a business event. The
		// gateway retries its own deliveries.
		h.writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		h.logger.Warn("discarding malformed event payload", "error", err)
		h.acknowledge(w)
		return
	}

	switch ev.Type {
	case EventPaymentSucceeded:
		h.handleSuccess(w, r, ev)
	case EventPaymentFailed:
		h.handleFailure(w, r, ev)
	default:
		h.logger.Info("ignoring unhandled event type", "type", ev.Type, "event_id", ev.ID)
		h.acknowledge(w)
	}
}

func (h *Handler) handleSuccess(w http.ResponseWriter, r *http.Request, ev Event) {
	if _, _, ok := ev.CorrelationKeys(); !ok {
		// Intent creation always sets both keys, so a missing one points at
		// a misconfigured gateway account. Surface it, but acknowledge: a
		// redelivery would carry the same broken metadata.
		h.logger.Error("event missing correlation metadata", "event_id", ev.ID, "transaction_id", ev.Data.TransactionID)
		h.acknowledge(w)
		return
	}

	outcome, confirmed, err := h.reconciler.ApplySuccess(r.Context(), ev)
	if err != nil {
		h.logger.Error("failed to reconcile success event", "error", err, "event_id", ev.ID)
		h.writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	switch outcome {
	case OutcomeApplied:
		h.logger.Info("payment reconciled", "event_id", ev.ID,
			"order_id", confirmed.OrderID, "transaction_id", confirmed.TransactionID)
		h.publishConfirmed(r.Context(), confirmed)
	case OutcomeDuplicate:
		h.logger.Info("duplicate delivery, already reconciled", "event_id", ev.ID,
			"transaction_id", ev.Data.TransactionID)
	case OutcomeStale:
		h.logger.Info("order no longer pending, ignoring success event", "event_id", ev.ID,
			"transaction_id", ev.Data.TransactionID)
	}

	h.acknowledge(w)
}

func (h *Handler) handleFailure(w http.ResponseWriter, r *http.Request, ev Event) {
	applied, err := h.reconciler.ApplyFailure(r.Context(), ev.Data.TransactionID)
	if err != nil {
		h.logger.Error("failed to reconcile failure event", "error", err, "event_id", ev.ID)
		h.writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	if applied {
		h.logger.Info("payment marked failed", "event_id", ev.ID, "transaction_id", ev.Data.TransactionID)
	}

	h.acknowledge(w)
}

func (h *Handler) publishConfirmed(ctx context.Context, confirmed *domain.OrderConfirmedEvent) {
	if h.producer == nil {
		return
	}
	// Best effort: reconciliation already committed, a lost notification
	// must not fail the webhook.
	if err := h.producer.Publish(ctx, confirmed.OrderID, confirmed); err != nil {
		h.logger.Error("failed to publish order confirmed event", "error", err, "order_id", confirmed.OrderID)
	}
}

func (h *Handler) acknowledge(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
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
