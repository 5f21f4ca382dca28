package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/greenbasket/api/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestResolver(t *testing.T, coupons couponEvaluator) PricingResolver {
	t.Helper()
	resolver, err := NewPricingResolver(PricingResolverDeps{
		Coupons:            coupons,
		DefaultShippingFee: 4000,
	})
	if err != nil {
		t.Fatalf("NewPricingResolver: %v", err)
	}
	return resolver
}

func TestQuotePacksScaleSavingsBeforeQuantity(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"item-1": {
			ID:           "item-1",
			SKU:          "RICE-1KG",
			Name:         "Basmati Rice 1kg",
			Price:        100,
			Stock:        10,
			FreeShipping: true,
			Pack:         &domain.PackOption{Size: 2, SavingsPercent: 10},
		},
	}

	resolver := newTestResolver(t, nil)
	quote, err := resolver.Quote(context.Background(), []CartLine{
		{ItemID: "item-1", Quantity: 2, Pack: &domain.PackSelection{Size: 2}},
	}, snapshot, "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	if got := quote.Lines[0].UnitPrice; got != 90 {
		t.Fatalf("unit price = %d, want 90", got)
	}
	if got := quote.Lines[0].LineTotal; got != 180 {
		t.Fatalf("line total = %d, want 180", got)
	}
	if quote.Subtotal != 180 {
		t.Fatalf("subtotal = %d, want 180", quote.Subtotal)
	}
}

func TestQuotePackKeepsFractionalSavings(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"item-1": {
			ID:           "item-1",
			Price:        100,
			Stock:        10,
			FreeShipping: true,
			Pack:         &domain.PackOption{Size: 2, SavingsPercent: 12.5},
		},
	}

	resolver := newTestResolver(t, nil)
	quote, err := resolver.Quote(context.Background(), []CartLine{
		{ItemID: "item-1", Quantity: 2, Pack: &domain.PackSelection{Size: 2}},
	}, snapshot, "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}

	// 12.5% off 200 is a pack total of 175, so the unit price is 87, not
	// the 88 a whole-percent truncation would give.
	if got := quote.Lines[0].UnitPrice; got != 87 {
		t.Fatalf("unit price = %d, want 87", got)
	}
	if got := quote.Lines[0].LineTotal; got != 174 {
		t.Fatalf("line total = %d, want 174", got)
	}
}

func TestQuoteExplicitPackPriceOverridesSavings(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"item-1": {
			ID:           "item-1",
			Price:        100,
			Stock:        10,
			FreeShipping: true,
			Pack:         &domain.PackOption{Size: 3, Price: int64Ptr(240), SavingsPercent: 50},
		},
	}

	resolver := newTestResolver(t, nil)
	quote, err := resolver.Quote(context.Background(), []CartLine{
		{ItemID: "item-1", Quantity: 1, Pack: &domain.PackSelection{Size: 3}},
	}, snapshot, "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got := quote.Lines[0].UnitPrice; got != 80 {
		t.Fatalf("unit price = %d, want 80", got)
	}
}

func TestQuoteUsesDiscountPriceWhenLower(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"item-1": {ID: "item-1", Price: 500, DiscountPrice: int64Ptr(450), Stock: 5, FreeShipping: true},
	}

	resolver := newTestResolver(t, nil)
	quote, err := resolver.Quote(context.Background(), []CartLine{
		{ItemID: "item-1", Quantity: 1},
	}, snapshot, "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Subtotal != 450 {
		t.Fatalf("subtotal = %d, want 450", quote.Subtotal)
	}
}

func TestQuoteRejectsUnknownItemAndBadQuantity(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"item-1": {ID: "item-1", Price: 100, Stock: 5},
	}
	resolver := newTestResolver(t, nil)

	_, err := resolver.Quote(context.Background(), []CartLine{{ItemID: "missing", Quantity: 1}}, snapshot, "")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("unknown item error = %v, want ErrItemNotFound", err)
	}

	_, err = resolver.Quote(context.Background(), []CartLine{{ItemID: "item-1", Quantity: 0}}, snapshot, "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("zero quantity error = %v, want ErrValidation", err)
	}

	_, err = resolver.Quote(context.Background(), nil, snapshot, "")
	if !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("empty cart error = %v, want ErrCartEmpty", err)
	}
}

func TestQuoteRejectsInsufficientStock(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"item-1": {ID: "item-1", Price: 100, Stock: 2},
	}
	resolver := newTestResolver(t, nil)

	_, err := resolver.Quote(context.Background(), []CartLine{{ItemID: "item-1", Quantity: 3}}, snapshot, "")
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("error = %v, want ErrInsufficientStock", err)
	}
}

func TestQuoteShippingDefaultsAndThreshold(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"chargeable": {ID: "chargeable", Price: 300, Stock: 10},
		"threshold":  {ID: "threshold", Price: 300, Stock: 10, FreeShippingAbove: int64Ptr(500)},
	}
	resolver := newTestResolver(t, nil)

	quote, err := resolver.Quote(context.Background(), []CartLine{
		{ItemID: "chargeable", Quantity: 1},
	}, snapshot, "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.ShippingCost != 4000 {
		t.Fatalf("shipping = %d, want default 4000", quote.ShippingCost)
	}

	quote, err = resolver.Quote(context.Background(), []CartLine{
		{ItemID: "chargeable", Quantity: 1},
		{ItemID: "threshold", Quantity: 1},
	}, snapshot, "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.ShippingCost != 0 {
		t.Fatalf("shipping = %d, want 0 above threshold", quote.ShippingCost)
	}
	if quote.Total != 600 {
		t.Fatalf("total = %d, want 600", quote.Total)
	}
}

type stubEvaluator struct {
	evaluateFn func(ctx context.Context, code string, identityKey string, subtotal int64, itemIDs []string) (CouponEvaluation, error)
}

func (s *stubEvaluator) Evaluate(ctx context.Context, code string, identityKey string, subtotal int64, itemIDs []string) (CouponEvaluation, error) {
	return s.evaluateFn(ctx, code, identityKey, subtotal, itemIDs)
}

func TestQuoteAppliesAndClampsCouponDiscount(t *testing.T) {
	snapshot := domain.CatalogSnapshot{
		"item-1": {ID: "item-1", Price: 1000, Stock: 10, FreeShipping: true},
	}

	evaluator := &stubEvaluator{
		evaluateFn: func(_ context.Context, code string, _ string, subtotal int64, _ []string) (CouponEvaluation, error) {
			if code != "SAVE10" {
				t.Fatalf("code = %q, want SAVE10", code)
			}
			return CouponEvaluation{Discount: subtotal + 500}, nil
		},
	}
	resolver := newTestResolver(t, evaluator)

	quote, err := resolver.Quote(context.Background(), []CartLine{
		{ItemID: "item-1", Quantity: 1},
	}, snapshot, " save10 ")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Discount != 1000 {
		t.Fatalf("discount = %d, want clamped 1000", quote.Discount)
	}
	if quote.Total != 0 {
		t.Fatalf("total = %d, want 0", quote.Total)
	}
	if quote.CouponCode != "SAVE10" {
		t.Fatalf("coupon code = %q, want SAVE10", quote.CouponCode)
	}
}
