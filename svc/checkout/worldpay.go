package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const worldpayMediaType = "application/vnd.worldpay.payment_pages-v1.hal+json"

// WorldpayConfig configures the Worldpay Hosted Payment Pages client.
type WorldpayConfig struct {
	BaseURL   string        `env:"WORLDPAY_BASE_URL" envDefault:"https://try.access.worldpay.com"`
	Username  string        `env:"WORLDPAY_USERNAME"`
	Password  string        `env:"WORLDPAY_PASSWORD"`
	Entity    string        `env:"WORLDPAY_ENTITY" envDefault:"default"`
	Narrative string        `env:"WORLDPAY_NARRATIVE" envDefault:"Telecom services"`
	Timeout   time.Duration `env:"WORLDPAY_TIMEOUT" envDefault:"15s"`
}

// WorldpayProvider opens Hosted Payment Pages. Worldpay HPP has no status
// query for the page itself, so it does not implement StatusQuerier and
// redirect outcomes are settled uncorroborated.
type WorldpayProvider struct {
	cfg    WorldpayConfig
	client *http.Client
}

type WorldpayOption func(*WorldpayProvider)

// WithWorldpayHTTPClient replaces the default client, e.g. in tests.
func WithWorldpayHTTPClient(c *http.Client) WorldpayOption {
	return func(p *WorldpayProvider) {
		if c != nil {
			p.client = c
		}
	}
}

func NewWorldpayProvider(cfg WorldpayConfig, opts ...WorldpayOption) (*WorldpayProvider, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: WORLDPAY_USERNAME and WORLDPAY_PASSWORD", ErrMissingCredentials)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	p := &WorldpayProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *WorldpayProvider) Name() string { return "worldpay" }

type worldpayPageRequest struct {
	TransactionReference string `json:"transactionReference"`
	Merchant             struct {
		Entity string `json:"entity"`
	} `json:"merchant"`
	Narrative struct {
		Line1 string `json:"line1"`
	} `json:"narrative"`
	Value struct {
		Currency string `json:"currency"`
		Amount   int64  `json:"amount"`
	} `json:"value"`
	Description string `json:"description,omitempty"`
	ResultURLs  struct {
		SuccessURL string `json:"successURL"`
		FailureURL string `json:"failureURL"`
		CancelURL  string `json:"cancelURL"`
		ErrorURL   string `json:"errorURL"`
		ExpiryURL  string `json:"expiryURL"`
	} `json:"resultURLs"`
}

type worldpayPageResponse struct {
	URL string `json:"url"`
}

// CreateSession requests a hosted payment page for req.
func (p *WorldpayProvider) CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error) {
	var body worldpayPageRequest
	body.TransactionReference = req.TransactionReference
	body.Merchant.Entity = p.cfg.Entity
	body.Narrative.Line1 = truncate(p.cfg.Narrative, 24)
	body.Value.Currency = req.Currency
	body.Value.Amount = req.AmountMinor
	body.Description = req.Description
	body.ResultURLs.SuccessURL = req.SuccessURL
	body.ResultURLs.FailureURL = req.FailureURL
	body.ResultURLs.CancelURL = req.CancelURL
	body.ResultURLs.ErrorURL = req.FailureURL
	body.ResultURLs.ExpiryURL = req.CancelURL

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/payment_pages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	httpReq.Header.Set("Content-Type", worldpayMediaType)
	httpReq.Header.Set("Accept", worldpayMediaType)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worldpay request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("worldpay response unreadable: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("worldpay returned %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var page worldpayPageResponse
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, fmt.Errorf("worldpay response malformed: %w", err)
	}
	if page.URL == "" {
		return nil, errors.New("worldpay response has no url")
	}

	return &ProviderSession{CheckoutURL: page.URL, ProviderReference: req.TransactionReference}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
