package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

// DefaultProviderKey is the provider key used when callers do not name one.
const DefaultProviderKey = "gateway"

const (
	// StatusCreated indicates the gateway order exists and awaits customer action.
	StatusCreated Status = "created"
	// StatusSucceeded indicates the provider reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider reports a terminal failure.
	StatusFailed Status = "failed"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrNotConfigured is returned when a provider is registered without credentials.
	ErrNotConfigured = errors.New("payments: provider not configured")
)

// CreateOrderRequest captures the payload required to open a gateway order for
// an existing storefront order.
type CreateOrderRequest struct {
	OrderID     string
	OrderNumber string
	Amount      int64
	Currency    string
	CustomerID  string
	Notes       map[string]string
}

// GatewayOrder is the provider-side order the customer completes payment
// against. Reference is the value later echoed back during verification.
type GatewayOrder struct {
	Reference    string
	Provider     string
	Amount       int64
	Currency     string
	Status       Status
	ClientSecret string
	CreatedAt    time.Time
	Raw          map[string]any
}

// Provider defines the contract for payment service adapters.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
}

// Manager routes payment intents to the registered providers.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when the caller does not
// name one.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.TrimSpace(strings.ToLower(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap[DefaultProviderKey]; ok {
		m.defaultProvider = DefaultProviderKey
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Providers lists the registered provider keys.
func (m *Manager) Providers() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.providers))
	for k := range m.providers {
		keys = append(keys, k)
	}
	return keys
}

func (m *Manager) resolveProvider(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, ErrUnsupportedProvider
	}
	if def := m.defaultProvider; def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateOrder opens a gateway order with the resolved provider.
func (m *Manager) CreateOrder(ctx context.Context, preferred string, req CreateOrderRequest) (GatewayOrder, error) {
	key, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return GatewayOrder{}, err
	}
	order, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return GatewayOrder{}, err
	}
	order.Provider = key
	return order, nil
}
