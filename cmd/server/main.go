package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/artmarket/backend/internal/artworks"
	"github.com/artmarket/backend/internal/cart"
	"github.com/artmarket/backend/internal/email"
	"github.com/artmarket/backend/internal/messaging"
	"github.com/artmarket/backend/internal/orders"
	"github.com/artmarket/backend/internal/payments"
	"github.com/artmarket/backend/internal/telemetry"
	"github.com/artmarket/backend/internal/users"
	"github.com/artmarket/backend/internal/webhook"
)

const (
	serviceName    = "artmarket-server"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Error("WEBHOOK_SECRET environment variable is required")
		os.Exit(1)
	}

	gatewayURL := os.Getenv("PAYMENT_GATEWAY_URL")
	if gatewayURL == "" {
		logger.Error("PAYMENT_GATEWAY_URL environment variable is required")
		os.Exit(1)
	}
	gatewayAPIKey := os.Getenv("PAYMENT_GATEWAY_API_KEY")
	if gatewayAPIKey == "" {
		logger.Error("PAYMENT_GATEWAY_API_KEY environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var producer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(kafkaBrokers, ","), messaging.TopicOrderConfirmed)
		defer func() { _ = producer.Close() }()
	}

	var mailClient *email.Client
	if emailServiceURL := os.Getenv("EMAIL_SERVICE_URL"); emailServiceURL != "" {
		mailClient = email.NewClient(emailServiceURL, httpClient)
	}

	userRepo := users.NewUserRepository(db)
	artworkRepo := artworks.NewArtworkRepository(db)
	cartRepo := cart.NewCartRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	paymentRepo := payments.NewPaymentRepository(db)

	intentClient := payments.NewIntentClient(payments.GatewayConfig{
		BaseURL: gatewayURL,
		APIKey:  gatewayAPIKey,
	}, httpClient)

	var userHandler *users.Handler
	if mailClient != nil {
		userHandler = users.NewHandler(userRepo, mailClient, logger)
	} else {
		userHandler = users.NewHandler(userRepo, nil, logger)
	}
	artworkHandler := artworks.NewHandler(artworkRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, logger)
	orderHandler := orders.NewHandler(orderRepo, logger)
	paymentHandler := payments.NewHandler(paymentRepo, orderRepo, intentClient, logger)

	verifier := webhook.NewVerifier(webhook.Config{Secret: webhookSecret})
	reconciler := webhook.NewReconciler(db)
	var webhookHandler *webhook.Handler
	if producer != nil {
		webhookHandler = webhook.NewHandler(verifier, reconciler, producer, logger)
	} else {
		webhookHandler = webhook.NewHandler(verifier, reconciler, nil, logger)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", telemetry.WithHTTPRoute(userHandler.HandleRegister))
	mux.HandleFunc("POST /users/verify", telemetry.WithHTTPRoute(userHandler.HandleVerify))
	mux.HandleFunc("POST /users/resend-code", telemetry.WithHTTPRoute(userHandler.HandleResendCode))
	mux.HandleFunc("GET /users/{id}", telemetry.WithHTTPRoute(userHandler.HandleGet))

	mux.HandleFunc("GET /artworks", telemetry.WithHTTPRoute(artworkHandler.HandleList))
	mux.HandleFunc("POST /artworks", telemetry.WithHTTPRoute(artworkHandler.HandleCreate))
	mux.HandleFunc("GET /artworks/{id}", telemetry.WithHTTPRoute(artworkHandler.HandleGet))
	mux.HandleFunc("PUT /artworks/{id}", telemetry.WithHTTPRoute(artworkHandler.HandleUpdate))
	mux.HandleFunc("DELETE /artworks/{id}", telemetry.WithHTTPRoute(artworkHandler.HandleDelete))

	mux.HandleFunc("POST /carts", telemetry.WithHTTPRoute(cartHandler.HandleCreate))
	mux.HandleFunc("GET /carts/user/{userId}", telemetry.WithHTTPRoute(cartHandler.HandleGetByUser))
	mux.HandleFunc("POST /carts/{id}/items", telemetry.WithHTTPRoute(cartHandler.HandleAddItem))
	mux.HandleFunc("PATCH /carts/items/{itemId}", telemetry.WithHTTPRoute(cartHandler.HandleUpdateItem))
	mux.HandleFunc("DELETE /carts/items/{itemId}", telemetry.WithHTTPRoute(cartHandler.HandleRemoveItem))
	mux.HandleFunc("DELETE /carts/{id}", telemetry.WithHTTPRoute(cartHandler.HandleDelete))

	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("POST /orders/checkout", telemetry.WithHTTPRoute(orderHandler.HandleCheckout))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("PUT /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleUpdate))

	mux.HandleFunc("GET /payments", telemetry.WithHTTPRoute(paymentHandler.HandleList))
	mux.HandleFunc("POST /payments", telemetry.WithHTTPRoute(paymentHandler.HandleCreate))
	mux.HandleFunc("GET /payments/transaction/{transactionId}", telemetry.WithHTTPRoute(paymentHandler.HandleGetByTransaction))
	mux.HandleFunc("POST /payments/intent", telemetry.WithHTTPRoute(paymentHandler.HandleCreateIntent))

	mux.HandleFunc("POST /payment-events", telemetry.WithHTTPRoute(webhookHandler.HandleEvent))

	mux.Handle("GET /metrics", metricsHandler)

	sweepInterval := 24 * time.Hour
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			logger.Error("invalid SWEEP_INTERVAL", "error", err)
			os.Exit(1)
		}
		sweepInterval = parsed
	}

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go users.NewSweeper(userRepo, sweepInterval, logger).Run(sweeperCtx)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
