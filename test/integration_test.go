//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/artmarket/backend/internal/artworks"
	"github.com/artmarket/backend/internal/cart"
	"github.com/artmarket/backend/internal/domain"
	"github.com/artmarket/backend/internal/messaging"
	"github.com/artmarket/backend/internal/orders"
	"github.com/artmarket/backend/internal/payments"
	"github.com/artmarket/backend/internal/users"
	"github.com/artmarket/backend/internal/webhook"
)

const webhookSecret = "whsec_integration"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createUser(ctx context.Context, t *testing.T, db *sql.DB, email string) *domain.User {
	t.Helper()

	user, err := users.NewUserRepository(db).Create(ctx, "Test Buyer", email)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func createArtwork(ctx context.Context, t *testing.T, db *sql.DB, price int64) *domain.Artwork {
	t.Helper()

	artwork := &domain.Artwork{
		Title:    "Morning Field",
		Category: "painting",
		Price:    price,
	}
	if err := artworks.NewArtworkRepository(db).Create(ctx, artwork); err != nil {
		t.Fatalf("failed to create artwork: %v", err)
	}
	return artwork
}

func TestCartMerge(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	user := createUser(ctx, t, db, "merge@example.com")
	artwork := createArtwork(ctx, t, db, 2500)

	repo := cart.NewCartRepository(db)
	created, err := repo.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to create cart: %v", err)
	}

	if err := repo.AddItem(ctx, created.ID, artwork.ID, 2); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if err := repo.AddItem(ctx, created.ID, artwork.ID, 3); err != nil {
		t.Fatalf("failed to re-add item: %v", err)
	}

	loaded, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to load cart: %v", err)
	}

	if len(loaded.Items) != 1 {
		t.Fatalf("expected 1 merged line, got %d", len(loaded.Items))
	}
	if loaded.Items[0].Quantity != 5 {
		t.Errorf("expected merged quantity 5, got %d", loaded.Items[0].Quantity)
	}
	if loaded.TotalItems != 5 {
		t.Errorf("expected total items 5, got %d", loaded.TotalItems)
	}
	if loaded.TotalPrice != 5*2500 {
		t.Errorf("expected total price %d, got %d", 5*2500, loaded.TotalPrice)
	}
}

func TestCheckoutFreezesPrice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	user := createUser(ctx, t, db, "freeze@example.com")
	artwork := createArtwork(ctx, t, db, 10000)

	cartRepo := cart.NewCartRepository(db)
	created, err := cartRepo.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to create cart: %v", err)
	}
	if err := cartRepo.AddItem(ctx, created.ID, artwork.ID, 2); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	orderRepo := orders.NewOrderRepository(db)
	placed, err := orderRepo.Checkout(ctx, user.ID, "1 Canal Street")
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(placed) != 1 {
		t.Fatalf("expected 1 order, got %d", len(placed))
	}
	if placed[0].Price != 2*10000 {
		t.Fatalf("expected frozen price %d, got %d", 2*10000, placed[0].Price)
	}

	artwork.Price = 99999
	if err := artworks.NewArtworkRepository(db).Update(ctx, artwork); err != nil {
		t.Fatalf("failed to reprice artwork: %v", err)
	}

	reloaded, err := orderRepo.GetByID(ctx, placed[0].ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if reloaded.Price != 2*10000 {
		t.Errorf("order price must stay frozen at %d, got %d", 2*10000, reloaded.Price)
	}

	emptied, err := cartRepo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to reload cart: %v", err)
	}
	if len(emptied.Items) != 0 || emptied.TotalItems != 0 {
		t.Errorf("cart should be empty after checkout, got %d items", len(emptied.Items))
	}
}

func TestArtworkDeleteRecomputesCartTotals(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	user := createUser(ctx, t, db, "cascade@example.com")
	kept := createArtwork(ctx, t, db, 1000)
	removed := createArtwork(ctx, t, db, 2500)

	cartRepo := cart.NewCartRepository(db)
	created, err := cartRepo.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to create cart: %v", err)
	}
	if err := cartRepo.AddItem(ctx, created.ID, kept.ID, 1); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if err := cartRepo.AddItem(ctx, created.ID, removed.ID, 2); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	// Deleting the listing cascades its cart line away; the totals must
	// follow the surviving lines, not the pre-delete state.
	if err := artworks.NewArtworkRepository(db).Delete(ctx, removed.ID); err != nil {
		t.Fatalf("failed to delete artwork: %v", err)
	}

	loaded, err := cartRepo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to reload cart: %v", err)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].ArtworkID != kept.ID {
		t.Fatalf("expected only the surviving line, got %+v", loaded.Items)
	}
	if loaded.TotalItems != 1 {
		t.Errorf("expected total items 1, got %d", loaded.TotalItems)
	}
	if loaded.TotalPrice != 1000 {
		t.Errorf("expected total price 1000, got %d", loaded.TotalPrice)
	}
}

func placePendingOrder(ctx context.Context, t *testing.T, db *sql.DB, email string) (*domain.User, *domain.Order) {
	t.Helper()

	user := createUser(ctx, t, db, email)
	artwork := createArtwork(ctx, t, db, 15000)

	order, err := orders.NewOrderRepository(db).Create(ctx, user.ID, artwork.ID, 1, "2 Harbor Road")
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	return user, order
}

func deliverEvent(t *testing.T, handler *webhook.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/payment-events", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign(webhookSecret, []byte(body), time.Now()))
	rr := httptest.NewRecorder()
	handler.HandleEvent(rr, req)
	return rr
}

func successBody(orderID, userID, transactionID string) string {
	return fmt.Sprintf(`{
		"id": "evt_%s",
		"type": "payment_succeeded",
		"data": {
			"transaction_id": "%s",
			"amount": 15000,
			"currency": "eur",
			"method": "card",
			"metadata": {"order_id": "%s", "user_id": "%s"}
		}
	}`, transactionID, transactionID, orderID, userID)
}

func TestPaymentReconciliation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	user, order := placePendingOrder(ctx, t, db, "reconcile@example.com")

	verifier := webhook.NewVerifier(webhook.Config{Secret: webhookSecret})
	handler := webhook.NewHandler(verifier, webhook.NewReconciler(db), nil, discardLogger())
	orderRepo := orders.NewOrderRepository(db)

	body := successBody(order.ID, user.ID, "txn_int_1")

	// First delivery confirms the order and records the payment.
	if rr := deliverEvent(t, handler, body); rr.Code != http.StatusOK {
		t.Fatalf("first delivery failed with %d: %s", rr.Code, rr.Body.String())
	}

	confirmed, err := orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %s", confirmed.Status)
	}

	// Redelivery of the same event must be acknowledged without a second
	// payment row.
	if rr := deliverEvent(t, handler, body); rr.Code != http.StatusOK {
		t.Fatalf("redelivery failed with %d: %s", rr.Code, rr.Body.String())
	}

	var paymentCount int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE transaction_id = $1`, "txn_int_1",
	).Scan(&paymentCount); err != nil {
		t.Fatalf("failed to count payments: %v", err)
	}
	if paymentCount != 1 {
		t.Fatalf("expected exactly 1 payment, got %d", paymentCount)
	}

	// A failure event arriving after success must not regress the payment.
	failureBody := `{"id": "evt_f1", "type": "payment_failed", "data": {"transaction_id": "txn_int_1"}}`
	if rr := deliverEvent(t, handler, failureBody); rr.Code != http.StatusOK {
		t.Fatalf("failure delivery failed with %d: %s", rr.Code, rr.Body.String())
	}

	var status string
	if err := db.QueryRowContext(ctx,
		`SELECT status FROM payments WHERE transaction_id = $1`, "txn_int_1",
	).Scan(&status); err != nil {
		t.Fatalf("failed to read payment status: %v", err)
	}
	if status != string(domain.PaymentStatusSuccess) {
		t.Errorf("payment must stay success after a late failure event, got %s", status)
	}
}

func TestRecordedTransactionOnPendingOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	user, order := placePendingOrder(ctx, t, db, "duplicate@example.com")

	// A payment with this transaction id already exists while the order is
	// still pending, as after a direct record that never confirmed.
	if err := payments.NewPaymentRepository(db).Create(ctx, &domain.Payment{
		OrderID:       order.ID,
		UserID:        user.ID,
		Amount:        15000,
		Currency:      "eur",
		Method:        "card",
		TransactionID: "txn_dup_1",
	}); err != nil {
		t.Fatalf("failed to record payment: %v", err)
	}

	verifier := webhook.NewVerifier(webhook.Config{Secret: webhookSecret})
	handler := webhook.NewHandler(verifier, webhook.NewReconciler(db), nil, discardLogger())

	body := successBody(order.ID, user.ID, "txn_dup_1")
	if rr := deliverEvent(t, handler, body); rr.Code != http.StatusOK {
		t.Fatalf("duplicate transaction must be acknowledged, got %d: %s", rr.Code, rr.Body.String())
	}

	// The duplicate branch leaves both the payment and the order untouched.
	reloaded, err := orders.NewOrderRepository(db).GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if reloaded.Status != domain.OrderStatusPending {
		t.Errorf("order must stay pending, got %s", reloaded.Status)
	}

	var count int
	var status string
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(status) FROM payments WHERE transaction_id = $1`, "txn_dup_1",
	).Scan(&count, &status); err != nil {
		t.Fatalf("failed to inspect payments: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 payment, got %d", count)
	}
	if status != string(domain.PaymentStatusPending) {
		t.Errorf("payment must keep its recorded status, got %s", status)
	}
}

func TestOrphanFailureEvent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	verifier := webhook.NewVerifier(webhook.Config{Secret: webhookSecret})
	handler := webhook.NewHandler(verifier, webhook.NewReconciler(db), nil, discardLogger())

	body := `{"id": "evt_f2", "type": "payment_failed", "data": {"transaction_id": "txn_never_seen"}}`
	if rr := deliverEvent(t, handler, body); rr.Code != http.StatusOK {
		t.Fatalf("orphan failure must be acknowledged, got %d", rr.Code)
	}

	var paymentCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`).Scan(&paymentCount); err != nil {
		t.Fatalf("failed to count payments: %v", err)
	}
	if paymentCount != 0 {
		t.Errorf("orphan failure must not create payments, found %d", paymentCount)
	}
}

func TestOrderTransitionGuard(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	_, order := placePendingOrder(ctx, t, db, "transitions@example.com")
	repo := orders.NewOrderRepository(db)

	if _, err := repo.UpdateStatus(ctx, order.ID, domain.OrderStatusDelivered); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("pending -> delivered must be rejected, got %v", err)
	}

	for _, next := range []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		if _, err := repo.UpdateStatus(ctx, order.ID, next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}

	if _, err := repo.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("delivered orders are terminal, got %v", err)
	}
}

func TestSweeperGuard(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()
	db := OpenDB(t, pg.ConnStr)

	repo := users.NewUserRepository(db)

	expired := createUser(ctx, t, db, "expired@example.com")
	racer := createUser(ctx, t, db, "racer@example.com")

	for _, u := range []*domain.User{expired, racer} {
		if _, err := repo.IssueCode(ctx, u.ID, -time.Minute); err != nil {
			t.Fatalf("failed to issue code: %v", err)
		}
		if _, err := db.ExecContext(ctx,
			`UPDATE users SET created_at = created_at - INTERVAL '3 days' WHERE id = $1`, u.ID,
		); err != nil {
			t.Fatalf("failed to backdate user: %v", err)
		}
	}

	now := time.Now().UTC()
	candidates, err := repo.ExpiredUnverified(ctx, now, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to query candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	// The racer verifies after being selected but before the delete runs;
	// the guarded delete must spare them.
	if _, err := db.ExecContext(ctx, `UPDATE users SET verified = TRUE WHERE id = $1`, racer.ID); err != nil {
		t.Fatalf("failed to verify racer: %v", err)
	}

	deleted, err := repo.PurgeUnverified(ctx, racer.ID)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if deleted {
		t.Fatal("account verified mid-sweep must not be deleted")
	}

	deleted, err = repo.PurgeUnverified(ctx, expired.ID)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if !deleted {
		t.Fatal("expired unverified account should be deleted")
	}

	if _, err := repo.GetByID(ctx, racer.ID); err != nil {
		t.Errorf("racer should survive the sweep: %v", err)
	}
	if _, err := repo.GetByID(ctx, expired.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expired account should be gone, got %v", err)
	}

	var codeCount int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verification_codes WHERE user_id = $1`, expired.ID,
	).Scan(&codeCount); err != nil {
		t.Fatalf("failed to count codes: %v", err)
	}
	if codeCount != 0 {
		t.Errorf("verification code should cascade with the account, found %d", codeCount)
	}
}

func TestKafkaRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderConfirmed)
	defer func() { _ = producer.Close() }()

	sent := domain.OrderConfirmedEvent{
		OrderID:       "order-rt",
		UserID:        "user-rt",
		Email:         "rt@example.com",
		TransactionID: "txn_rt",
		Amount:        4200,
		Currency:      "eur",
		Timestamp:     time.Now().UTC(),
	}
	if err := producer.Publish(ctx, sent.OrderID, sent); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderConfirmed, "round-trip",
		messaging.WithStartOffset(kafkago.FirstOffset),
	)
	defer func() { _ = consumer.Close() }()

	received := make(chan domain.OrderConfirmedEvent, 1)
	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()

	go func() {
		_ = consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
			var event domain.OrderConfirmedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return err
			}
			received <- event
			stopConsuming()
			return nil
		})
	}()

	select {
	case event := <-received:
		if event.OrderID != sent.OrderID || event.TransactionID != sent.TransactionID {
			t.Errorf("round trip mismatch: %+v", event)
		}
	case <-time.After(90 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
