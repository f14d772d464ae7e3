package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig configures the Paddle Billing provider. Paddle charges catalog
// prices, so UnitPriceID must reference a one-off price of one minor unit;
// the quantity carries the amount.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	UnitPriceID   string `env:"PADDLE_UNIT_PRICE_ID"`
	CheckoutURL   string `env:"PADDLE_CHECKOUT_URL"`
}

// PaddleProvider implements Provider and StatusQuerier for Paddle Billing and
// parses its signed webhooks.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	cfg      PaddleConfig
}

func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" || cfg.WebhookSecret == "" || cfg.UnitPriceID == "" {
		return nil, fmt.Errorf("%w: PADDLE_API_KEY, PADDLE_WEBHOOK_SECRET and PADDLE_UNIT_PRICE_ID", ErrMissingCredentials)
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		cfg:      cfg,
	}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

// CreateSession creates a Paddle transaction and returns its hosted checkout
// URL. Our transaction reference travels in custom_data so webhooks can be
// matched back to the attempt.
func (p *PaddleProvider) CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.cfg.UnitPriceID,
		Quantity: int(req.AmountMinor),
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"transaction_reference": req.TransactionReference,
			"payment_request_id":    req.PaymentRequestID.String(),
			"email":                 req.CustomerEmail,
			"success_url":           req.SuccessURL,
		},
	}
	if p.cfg.CheckoutURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(p.cfg.CheckoutURL),
		}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &ProviderSession{CheckoutURL: *tx.Checkout.URL, ProviderReference: tx.ID}, nil
}

// QueryStatus asks Paddle for the transaction behind attempt. Transactions
// still in progress report an empty outcome.
func (p *PaddleProvider) QueryStatus(ctx context.Context, attempt *Attempt) (Outcome, error) {
	if attempt.ProviderReference == "" {
		return "", fmt.Errorf("attempt %s has no paddle transaction id", attempt.TransactionReference)
	}

	tx, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: attempt.ProviderReference,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get paddle transaction: %w", err)
	}
	return paddleOutcome(string(tx.Status)), nil
}

func paddleOutcome(status string) Outcome {
	switch strings.ToLower(status) {
	case "completed", "paid":
		return OutcomeSuccess
	case "canceled", "cancelled":
		return OutcomeCancelled
	case "past_due":
		return OutcomeFailed
	default:
		return ""
	}
}

// ParseWebhook verifies the Paddle-Signature header and extracts the
// settlement carried by transaction events.
func (p *PaddleProvider) ParseWebhook(req *http.Request) (*ProviderEvent, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	valid, err := p.verifier.Verify(req)
	if err != nil || !valid {
		return nil, ErrWebhookVerification
	}

	var payload struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		Data      struct {
			ID         string         `json:"id"`
			Status     string         `json:"status"`
			CustomData map[string]any `json:"custom_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	ev := &ProviderEvent{
		ID:                payload.EventID,
		Type:              payload.EventType,
		ProviderReference: payload.Data.ID,
	}
	if ref, ok := payload.Data.CustomData["transaction_reference"].(string); ok {
		ev.TransactionReference = ref
	}

	switch payload.EventType {
	case "transaction.completed", "transaction.paid":
		ev.Outcome = OutcomeSuccess
	case "transaction.payment_failed":
		ev.Outcome = OutcomeFailed
	case "transaction.canceled":
		ev.Outcome = OutcomeCancelled
	}
	if ev.Outcome != "" && ev.TransactionReference == "" {
		return nil, fmt.Errorf("%w: missing transaction_reference", ErrInvalidWebhookPayload)
	}
	return ev, nil
}
