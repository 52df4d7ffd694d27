package wallet

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

	"github.com/cyberbrief/cyberbrief-backend/pkg/config"
)

const (
	apiKeyHeader    = "x-api-key"
	maxErrorBodyLen = 512
	defaultTimeout  = 15 * time.Second
)

var (
	errEndpointRequired = errors.New("wallet endpoint is required")
	errAPIKeyRequired   = errors.New("wallet api key is required")
	errSecretRequired   = errors.New("wallet api secret is required")
)

// LinkRequest is the body sent to the provider to open a payment link.
type LinkRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	Ref         string `json:"ref"`
	RedirectURL string `json:"redirectUrl"`
}

type linkResponse struct {
	PaymentLink string `json:"paymentLink"`
	OrderID     string `json:"orderId,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Link is a successfully created payment link. OrderID is set only when the
// provider assigns one synchronously.
type Link struct {
	URL     string
	OrderID string
}

// ProviderError describes a non-successful provider response.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("wallet provider returned status %d: %s", e.StatusCode, e.Message)
}

// Client calls the wallet provider's payment-link endpoint. It also carries the
// credentials used to verify the provider's webhook signatures.
type Client struct {
	endpoint  string
	apiKey    string
	apiSecret string
	http      *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// NewClient validates the provider credentials and builds a client.
func NewClient(cfg config.WalletConfig, opts ...Option) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errEndpointRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	apiSecret := strings.TrimSpace(cfg.APISecret)
	if apiSecret == "" {
		return nil, errSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// APIKey returns the key that also participates in webhook signatures.
func (c *Client) APIKey() string {
	if c == nil {
		return ""
	}
	return c.apiKey
}

// APISecret returns the HMAC key for webhook signatures.
func (c *Client) APISecret() string {
	if c == nil {
		return ""
	}
	return c.apiSecret
}

// CreatePaymentLink asks the provider for a hosted payment page. A 2xx response
// without a paymentLink is treated as a failure.
func (c *Client) CreatePaymentLink(ctx context.Context, req LinkRequest) (*Link, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment link request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment link request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call wallet provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read wallet provider response: %w", err)
	}

	var decoded linkResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: errorMessage(decoded, raw, decodeErr)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode wallet provider response: %w", decodeErr)
	}
	link := strings.TrimSpace(decoded.PaymentLink)
	if link == "" {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: errorMessage(decoded, raw, nil)}
	}

	return &Link{URL: link, OrderID: strings.TrimSpace(decoded.OrderID)}, nil
}

func errorMessage(decoded linkResponse, raw []byte, decodeErr error) string {
	if decodeErr == nil {
		if decoded.Error != "" {
			return decoded.Error
		}
		if decoded.Message != "" {
			return decoded.Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxErrorBodyLen {
		msg = msg[:maxErrorBodyLen]
	}
	return msg
}
