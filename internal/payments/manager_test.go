package payments

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	createOrderFn func(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
}

func (s *stubProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if s.createOrderFn == nil {
		return GatewayOrder{}, errors.New("unexpected CreateOrder call")
	}
	return s.createOrderFn(ctx, req)
}

func TestManagerRoutesToNamedProvider(t *testing.T) {
	called := ""
	manager, err := NewManager(map[string]Provider{
		"gateway": &stubProvider{createOrderFn: func(context.Context, CreateOrderRequest) (GatewayOrder, error) {
			called = "gateway"
			return GatewayOrder{Reference: "order_G1"}, nil
		}},
		"stripe": &stubProvider{createOrderFn: func(context.Context, CreateOrderRequest) (GatewayOrder, error) {
			called = "stripe"
			return GatewayOrder{Reference: "pi_S1"}, nil
		}},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	order, err := manager.CreateOrder(context.Background(), "stripe", CreateOrderRequest{Amount: 1000, Currency: "INR"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if called != "stripe" {
		t.Fatalf("expected stripe provider, called %q", called)
	}
	if order.Provider != "stripe" {
		t.Fatalf("expected provider field stripe, got %q", order.Provider)
	}
}

func TestManagerDefaultsToGateway(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"gateway": &stubProvider{createOrderFn: func(context.Context, CreateOrderRequest) (GatewayOrder, error) {
			return GatewayOrder{Reference: "order_G1"}, nil
		}},
		"stripe": &stubProvider{},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	order, err := manager.CreateOrder(context.Background(), "", CreateOrderRequest{Amount: 1000, Currency: "INR"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Provider != "gateway" {
		t.Fatalf("expected default gateway provider, got %q", order.Provider)
	}
}

func TestManagerRejectsUnknownProvider(t *testing.T) {
	manager, err := NewManager(map[string]Provider{
		"gateway": &stubProvider{},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := manager.CreateOrder(context.Background(), "paypal", CreateOrderRequest{Amount: 100}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesRegistrations(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{" ": &stubProvider{}}); err == nil {
		t.Fatalf("expected error for blank provider key")
	}
	if _, err := NewManager(map[string]Provider{"gateway": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}
