package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
)

func newTestCartService(t *testing.T, registry *memRegistry, now time.Time) CartService {
	t.Helper()
	service, err := NewCartService(CartServiceDeps{
		Carts:   registry.carts,
		Catalog: registry.catalog,
		Clock:   fixedClock(now),
		IDGen:   sequenceIDs("line"),
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return service
}

func TestAddLineSnapshotsPriceAndMerges(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newMemRegistry()
	registry.catalog.items["item-1"] = domain.CatalogItem{ID: "item-1", SKU: "SKU-1", Name: "Milk 1L", Price: 60, Stock: 10}
	service := newTestCartService(t, registry, now)

	cart, err := service.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ItemID: "item-1", Quantity: 2})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].UnitPrice != 60 {
		t.Fatalf("cart = %+v, want one line at 60", cart)
	}
	if cart.Total != 120 {
		t.Fatalf("total = %d, want 120", cart.Total)
	}

	cart, err = service.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ItemID: "item-1", Quantity: 3})
	if err != nil {
		t.Fatalf("second AddLine: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 5 {
		t.Fatalf("cart after merge = %+v, want single line qty 5", cart)
	}
	if cart.Total != 300 {
		t.Fatalf("total after merge = %d, want 300", cart.Total)
	}
}

func TestAddLineResolvesPackPricing(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newMemRegistry()
	registry.catalog.items["item-1"] = domain.CatalogItem{
		ID:    "item-1",
		Price: 100,
		Stock: 10,
		Pack:  &domain.PackOption{Size: 2, SavingsPercent: 10},
	}
	service := newTestCartService(t, registry, now)

	cart, err := service.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ItemID: "item-1", Quantity: 2, PackSize: 2})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	line := cart.Lines[0]
	if line.UnitPrice != 90 {
		t.Fatalf("unit price = %d, want 90", line.UnitPrice)
	}
	if line.Pack == nil || line.Pack.Size != 2 || line.Pack.UnitPrice != 90 {
		t.Fatalf("pack selection = %+v", line.Pack)
	}
	if cart.Total != 180 {
		t.Fatalf("total = %d, want 180", cart.Total)
	}

	if _, err := service.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ItemID: "item-1", Quantity: 1, PackSize: 5}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown pack error = %v, want ErrValidation", err)
	}
}

func TestAddLineEnforcesStock(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newMemRegistry()
	registry.catalog.items["item-1"] = domain.CatalogItem{ID: "item-1", Price: 60, Stock: 3}
	service := newTestCartService(t, registry, now)

	if _, err := service.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ItemID: "item-1", Quantity: 4}); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("error = %v, want ErrInsufficientStock", err)
	}
	if _, err := service.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ItemID: "missing", Quantity: 1}); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("error = %v, want ErrItemNotFound", err)
	}
}

func TestUpdateAndRemoveLine(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newMemRegistry()
	registry.catalog.items["item-1"] = domain.CatalogItem{ID: "item-1", Price: 60, Stock: 10}
	service := newTestCartService(t, registry, now)

	cart, err := service.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ItemID: "item-1", Quantity: 1})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	lineID := cart.Lines[0].ID

	cart, err = service.UpdateLine(context.Background(), UpdateCartLineCommand{UserID: "user-1", LineID: lineID, Quantity: 4})
	if err != nil {
		t.Fatalf("UpdateLine: %v", err)
	}
	if cart.Lines[0].Quantity != 4 || cart.Total != 240 {
		t.Fatalf("cart after update = %+v", cart)
	}

	if _, err := service.UpdateLine(context.Background(), UpdateCartLineCommand{UserID: "user-1", LineID: "missing", Quantity: 1}); !errors.Is(err, ErrCartLineNotFound) {
		t.Fatalf("unknown line error = %v, want ErrCartLineNotFound", err)
	}

	cart, err = service.RemoveLine(context.Background(), "user-1", lineID)
	if err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if len(cart.Lines) != 0 || cart.Total != 0 {
		t.Fatalf("cart after remove = %+v", cart)
	}
}

func TestGetReturnsEmptyCartForNewUser(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newMemRegistry()
	service := newTestCartService(t, registry, now)

	cart, err := service.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cart.UserID != "user-1" || len(cart.Lines) != 0 {
		t.Fatalf("cart = %+v, want empty cart", cart)
	}
}
