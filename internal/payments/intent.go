package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// GatewayConfig carries the payment gateway credentials. It is constructed in
// main and injected; nothing reads it from process-wide state.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
}

var ErrInvalidAmount = errors.New("payment amount must be positive")

// IntentClient asks the external gateway for a client-side payment handle.
// The order id and user id ride along as metadata so the webhook processor
// can correlate the gateway's asynchronous result back to local state.
type IntentClient struct {
	cfg        GatewayConfig
	httpClient *http.Client
}

func NewIntentClient(cfg GatewayConfig, client *http.Client) *IntentClient {
	return &IntentClient{
		cfg:        cfg,
		httpClient: client,
	}
}

type intentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type intentResponse struct {
	ClientSecret string `json:"client_secret"`
}

// CreateIntent registers a payment intent with the gateway and returns the
// client secret the frontend needs to collect the payment. Amount is in
// minor currency units.
func (c *IntentClient) CreateIntent(ctx context.Context, orderID, userID string, amount int64, currency string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}

	body := intentRequest{
		Amount:   amount,
		Currency: currency,
		Metadata: map[string]string{
			"order_id": orderID,
			"user_id":  userID,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/payment_intents", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call payment gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var out intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode intent response: %w", err)
	}

	return out.ClientSecret, nil
}
