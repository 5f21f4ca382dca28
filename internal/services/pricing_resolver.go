package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	domain "github.com/greenbasket/api/internal/domain"
)

// couponEvaluator is the slice of CouponService the pricing pass needs.
type couponEvaluator interface {
	Evaluate(ctx context.Context, code string, identityKey string, subtotal int64, itemIDs []string) (CouponEvaluation, error)
}

// PricingResolverDeps wires the pricing resolver dependencies.
type PricingResolverDeps struct {
	Coupons            couponEvaluator
	DefaultShippingFee int64
	Logger             Logger
}

type pricingResolver struct {
	coupons            couponEvaluator
	defaultShippingFee int64
	logger             Logger
}

// NewPricingResolver constructs the pricing resolver. The resolver holds no
// repositories; callers load the catalog snapshot and pass it to Quote.
func NewPricingResolver(deps PricingResolverDeps) (PricingResolver, error) {
	if deps.DefaultShippingFee < 0 {
		return nil, errors.New("pricing resolver requires non-negative default shipping fee")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingResolver{
		coupons:            deps.Coupons,
		defaultShippingFee: deps.DefaultShippingFee,
		logger:             logger,
	}, nil
}

// Quote re-prices the lines against the supplied snapshot. Client supplied
// unit prices are ignored; only item ids, quantities, and pack selections
// are trusted.
func (r *pricingResolver) Quote(ctx context.Context, lines []CartLine, snapshot domain.CatalogSnapshot, couponCode string) (PriceQuote, error) {
	if len(lines) == 0 {
		return PriceQuote{}, ErrCartEmpty
	}

	itemIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		itemIDs = append(itemIDs, line.ItemID)
	}

	quote := PriceQuote{Lines: make([]PricedLine, 0, len(lines))}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return PriceQuote{}, fmt.Errorf("%w: quantity for item %s must be positive", ErrValidation, line.ItemID)
		}
		item, ok := snapshot[line.ItemID]
		if !ok {
			return PriceQuote{}, fmt.Errorf("%w: %s", ErrItemNotFound, line.ItemID)
		}
		if item.Stock < line.Quantity {
			return PriceQuote{}, fmt.Errorf("%w: item %s has %d in stock, requested %d",
				ErrInsufficientStock, line.ItemID, item.Stock, line.Quantity)
		}

		unitPrice, err := resolveUnitPrice(item, line.Pack)
		if err != nil {
			return PriceQuote{}, err
		}
		if unitPrice > 0 && int64(line.Quantity) > math.MaxInt64/unitPrice {
			return PriceQuote{}, fmt.Errorf("%w: line total overflow for item %s", ErrValidation, line.ItemID)
		}
		lineTotal := unitPrice * int64(line.Quantity)
		if quote.Subtotal > math.MaxInt64-lineTotal {
			return PriceQuote{}, fmt.Errorf("%w: subtotal overflow", ErrValidation)
		}

		priced := PricedLine{
			ItemID:    item.ID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		}
		if line.Pack != nil && line.Pack.Size > 1 {
			priced.Pack = &domain.PackSelection{
				Size:           line.Pack.Size,
				UnitPrice:      unitPrice,
				SavingsPercent: item.Pack.SavingsPercent,
			}
		}
		quote.Lines = append(quote.Lines, priced)
		quote.Subtotal += lineTotal
	}

	quote.ShippingCost = r.shippingCost(snapshot, quote.Lines, quote.Subtotal)

	if code := strings.ToUpper(strings.TrimSpace(couponCode)); code != "" {
		if r.coupons == nil {
			return PriceQuote{}, fmt.Errorf("%w: coupon evaluation is not available", ErrValidation)
		}
		// Identity eligibility is re-checked at redemption inside the order
		// transaction, so pricing evaluates the coupon without an identity.
		evaluation, err := r.coupons.Evaluate(ctx, code, "", quote.Subtotal, itemIDs)
		if err != nil {
			return PriceQuote{}, err
		}
		discount := evaluation.Discount
		if discount < 0 {
			discount = 0
		}
		if discount > quote.Subtotal {
			r.logger(ctx, "pricing_discount_clamped", map[string]any{
				"coupon":   code,
				"discount": discount,
				"subtotal": quote.Subtotal,
			})
			discount = quote.Subtotal
		}
		quote.Discount = discount
		quote.CouponCode = code
	}

	quote.Total = quote.Subtotal - quote.Discount + quote.ShippingCost
	return quote, nil
}

// resolveUnitPrice computes the per-unit price, applying pack pricing when a
// pack size is selected. The pack total is either the explicit pack price or
// the base price scaled by the pack savings percentage.
func resolveUnitPrice(item domain.CatalogItem, pack *domain.PackSelection) (int64, error) {
	base := item.Price
	if item.DiscountPrice != nil && *item.DiscountPrice > 0 && *item.DiscountPrice < base {
		base = *item.DiscountPrice
	}
	if base < 0 {
		return 0, fmt.Errorf("%w: item %s has negative price", ErrValidation, item.ID)
	}
	if pack == nil || pack.Size <= 1 {
		return base, nil
	}

	option := item.Pack
	if option == nil || option.Size != pack.Size {
		return 0, fmt.Errorf("%w: item %s has no pack of size %d", ErrValidation, item.ID, pack.Size)
	}

	size := int64(option.Size)
	var packTotal int64
	if option.Price != nil {
		packTotal = *option.Price
	} else {
		savings := option.SavingsPercent
		if savings < 0 || savings > 100 {
			return 0, fmt.Errorf("%w: item %s pack savings out of range", ErrValidation, item.ID)
		}
		// Basis points keep fractional savings percentages exact.
		payableBps := 10000 - int64(math.Round(savings*100))
		if base > 0 && size > math.MaxInt64/base {
			return 0, fmt.Errorf("%w: pack total overflow for item %s", ErrValidation, item.ID)
		}
		gross := base * size
		if payableBps > 0 && gross > math.MaxInt64/payableBps {
			return 0, fmt.Errorf("%w: pack total overflow for item %s", ErrValidation, item.ID)
		}
		packTotal = gross * payableBps / 10000
	}
	if packTotal < 0 {
		return 0, fmt.Errorf("%w: item %s pack price is negative", ErrValidation, item.ID)
	}
	return packTotal / size, nil
}

// shippingCost sums item level charges. Items flagged free never contribute,
// and a free-shipping threshold on any item waives the whole fee once the
// subtotal clears it.
func (r *pricingResolver) shippingCost(snapshot domain.CatalogSnapshot, lines []PricedLine, subtotal int64) int64 {
	var threshold int64
	for _, line := range lines {
		item := snapshot[line.ItemID]
		if item.FreeShippingAbove != nil && *item.FreeShippingAbove > threshold {
			threshold = *item.FreeShippingAbove
		}
	}
	if threshold > 0 && subtotal >= threshold {
		return 0
	}

	var total int64
	chargeable := false
	for _, line := range lines {
		item := snapshot[line.ItemID]
		if item.FreeShipping {
			continue
		}
		chargeable = true
		if item.ShippingCost != nil && *item.ShippingCost > 0 {
			total += *item.ShippingCost
		}
	}
	if !chargeable {
		return 0
	}
	if total == 0 {
		return r.defaultShippingFee
	}
	return total
}
