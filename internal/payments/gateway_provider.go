package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GatewayLogger defines the logging contract for gateway provider operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

// GatewayProviderConfig configures the REST payment gateway adapter.
type GatewayProviderConfig struct {
	KeyID      string
	Secret     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     GatewayLogger
	Clock      func() time.Time
}

// GatewayProvider opens orders against the hosted payment gateway over its
// REST API using basic auth credentials.
type GatewayProvider struct {
	keyID   string
	secret  string
	baseURL string
	client  *http.Client
	logger  GatewayLogger
	clock   func() time.Time
}

// NewGatewayProvider constructs the gateway adapter.
func NewGatewayProvider(cfg GatewayProviderConfig) (*GatewayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.Secret)
	if keyID == "" || secret == "" {
		return nil, ErrNotConfigured
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("payments: gateway base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("payments: invalid gateway base url: %w", err)
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &GatewayProvider{
		keyID:   keyID,
		secret:  secret,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
		clock:   func() time.Time { return clock().UTC() },
	}, nil
}

type gatewayOrderPayload struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type gatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type gatewayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens a gateway order for the given storefront order.
func (p *GatewayProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if p == nil {
		return GatewayOrder{}, errors.New("payments: gateway provider is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("payments: amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return GatewayOrder{}, errors.New("payments: currency is required")
	}

	payload := gatewayOrderPayload{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  strings.TrimSpace(req.OrderNumber),
		Notes:    req.Notes,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payments: marshal gateway order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payments: build gateway request: %w", err)
	}
	httpReq.SetBasicAuth(p.keyID, p.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payments: gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payments: read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gatewayErr gatewayErrorResponse
		_ = json.Unmarshal(respBody, &gatewayErr)
		p.logger(ctx, "payments.gateway.order_failed", map[string]any{
			"status": resp.StatusCode,
			"code":   gatewayErr.Error.Code,
		})
		if gatewayErr.Error.Description != "" {
			return GatewayOrder{}, fmt.Errorf("payments: gateway rejected order: %s", gatewayErr.Error.Description)
		}
		return GatewayOrder{}, fmt.Errorf("payments: gateway returned status %d", resp.StatusCode)
	}

	var parsed gatewayOrderResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return GatewayOrder{}, fmt.Errorf("payments: decode gateway response: %w", err)
	}
	if parsed.ID == "" {
		return GatewayOrder{}, errors.New("payments: gateway response missing order id")
	}

	p.logger(ctx, "payments.gateway.order_created", map[string]any{
		"reference": parsed.ID,
		"amount":    parsed.Amount,
		"currency":  parsed.Currency,
	})

	raw := map[string]any{}
	_ = json.Unmarshal(respBody, &raw)

	return GatewayOrder{
		Reference: parsed.ID,
		Provider:  "gateway",
		Amount:    parsed.Amount,
		Currency:  strings.ToUpper(parsed.Currency),
		Status:    StatusCreated,
		CreatedAt: p.clock(),
		Raw:       raw,
	}, nil
}
