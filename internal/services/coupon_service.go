package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/repositories"
)

// CouponServiceDeps wires the coupon service dependencies.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Claims  repositories.CouponClaimRepository
	Catalog repositories.CatalogRepository
	Clock   Clock
	Logger  Logger
}

type couponService struct {
	coupons repositories.CouponRepository
	claims  repositories.CouponClaimRepository
	catalog repositories.CatalogRepository
	clock   Clock
	logger  Logger
}

// NewCouponService constructs the coupon ledger service.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service requires coupon repository")
	}
	if deps.Claims == nil {
		return nil, errors.New("coupon service requires claim repository")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		coupons: deps.Coupons,
		claims:  deps.Claims,
		catalog: deps.Catalog,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Evaluate validates the coupon against the subtotal, cart items, and the
// identity's remaining allowance, and returns the discount it would grant.
// The discount is clamped to the configured cap and never exceeds the
// subtotal. An empty identityKey skips the eligibility check; redemption
// re-checks it before any mutation.
func (s *couponService) Evaluate(ctx context.Context, code string, identityKey string, subtotal int64, itemIDs []string) (CouponEvaluation, error) {
	coupon, err := s.loadValidCoupon(ctx, code)
	if err != nil {
		return CouponEvaluation{}, err
	}

	if subtotal < coupon.MinPurchase {
		return CouponEvaluation{}, fmt.Errorf("%w: need %d, have %d", ErrCouponMinPurchase, coupon.MinPurchase, subtotal)
	}

	if err := s.checkScope(ctx, coupon, itemIDs); err != nil {
		return CouponEvaluation{}, err
	}

	if identityKey = strings.TrimSpace(identityKey); identityKey != "" {
		if err := s.checkEligibility(ctx, coupon, identityKey); err != nil {
			return CouponEvaluation{}, err
		}
	}

	discount := computeDiscount(coupon, subtotal)
	return CouponEvaluation{Coupon: coupon, Discount: discount}, nil
}

// checkEligibility verifies the identity's ledger entry, if any, still allows
// the coupon. An identity with no entry is always eligible.
func (s *couponService) checkEligibility(ctx context.Context, coupon Coupon, identityKey string) error {
	claim, err := s.claims.FindByIdentity(ctx, identityKey)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return mapRepositoryError(err, nil)
	}
	if !strings.EqualFold(claim.Code, coupon.Code) {
		return fmt.Errorf("%w: claim held for %s", ErrCouponNotClaimed, claim.Code)
	}
	if coupon.PerIdentityLimit > 0 && claim.UsedCount >= coupon.PerIdentityLimit {
		return fmt.Errorf("%w: identity used %d of %d", ErrCouponLimitReached, claim.UsedCount, coupon.PerIdentityLimit)
	}
	return nil
}

// Claim records the one claim an identity may hold. The claim document is
// keyed by identity, so the repository conditional insert is the uniqueness
// guard under concurrency.
func (s *couponService) Claim(ctx context.Context, cmd ClaimCouponCommand) (CouponClaim, error) {
	identityKey := strings.TrimSpace(cmd.IdentityKey)
	if identityKey == "" {
		return CouponClaim{}, fmt.Errorf("%w: identity key is required", ErrValidation)
	}

	coupon, err := s.loadValidCoupon(ctx, cmd.Code)
	if err != nil {
		return CouponClaim{}, err
	}

	claim := CouponClaim{
		IdentityKey: identityKey,
		Code:        coupon.Code,
		ClaimedAt:   s.clock().UTC(),
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		if isConflict(err) {
			return CouponClaim{}, ErrCouponAlreadyClaimed
		}
		return CouponClaim{}, mapRepositoryError(err, nil)
	}

	s.logger(ctx, "coupon_claimed", map[string]any{
		"code":        coupon.Code,
		"identityKey": identityKey,
	})
	return claim, nil
}

// StageRedeem performs the reads and checks of a redemption and returns the
// commit that applies its writes, creating the identity's ledger entry when
// none exists yet. Order creation stages the redemption before any
// transactional write and commits it afterwards, keeping every read ahead of
// the first write as Firestore transactions require.
func (s *couponService) StageRedeem(ctx context.Context, code string, identityKey string) (RedeemCommit, error) {
	coupon, err := s.loadValidCoupon(ctx, code)
	if err != nil {
		return nil, err
	}

	identityKey = strings.TrimSpace(identityKey)
	if identityKey == "" {
		return nil, fmt.Errorf("%w: identity key is required", ErrValidation)
	}

	claim, err := s.claims.FindByIdentity(ctx, identityKey)
	switch {
	case err == nil:
		// The one ledger slot per identity must be held for this coupon.
		if !strings.EqualFold(claim.Code, coupon.Code) {
			return nil, fmt.Errorf("%w: claim held for %s", ErrCouponNotClaimed, claim.Code)
		}
		if coupon.PerIdentityLimit > 0 && claim.UsedCount >= coupon.PerIdentityLimit {
			return nil, fmt.Errorf("%w: identity used %d of %d", ErrCouponLimitReached, claim.UsedCount, coupon.PerIdentityLimit)
		}
		claim.UsedCount++
	case isNotFound(err):
		claim = CouponClaim{
			IdentityKey: identityKey,
			Code:        coupon.Code,
			ClaimedAt:   s.clock().UTC(),
			UsedCount:   1,
		}
	default:
		return nil, mapRepositoryError(err, nil)
	}

	coupon.UsageCount++
	coupon.UpdatedAt = s.clock().UTC()

	return func(ctx context.Context) error {
		if err := s.claims.Save(ctx, claim); err != nil {
			return mapRepositoryError(err, nil)
		}
		if err := s.coupons.Update(ctx, coupon); err != nil {
			return mapRepositoryError(err, ErrCouponNotFound)
		}
		s.logger(ctx, "coupon_redeemed", map[string]any{
			"code":        coupon.Code,
			"identityKey": identityKey,
			"usedCount":   claim.UsedCount,
		})
		return nil
	}, nil
}

// Redeem stages a redemption and commits it immediately.
func (s *couponService) Redeem(ctx context.Context, code string, identityKey string) error {
	commit, err := s.StageRedeem(ctx, code, identityKey)
	if err != nil {
		return err
	}
	return commit(ctx)
}

func (s *couponService) loadValidCoupon(ctx context.Context, code string) (Coupon, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return Coupon{}, fmt.Errorf("%w: coupon code is required", ErrValidation)
	}

	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		return Coupon{}, mapRepositoryError(err, ErrCouponNotFound)
	}
	if !coupon.Active {
		return Coupon{}, ErrCouponInactive
	}

	now := s.clock().UTC()
	if !coupon.ValidFrom.IsZero() && now.Before(coupon.ValidFrom) {
		return Coupon{}, ErrCouponExpired
	}
	if !coupon.ValidUntil.IsZero() && now.After(coupon.ValidUntil) {
		return Coupon{}, ErrCouponExpired
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return Coupon{}, ErrCouponLimitReached
	}
	return coupon, nil
}

// checkScope enforces product and category restrictions. Category checks load
// the catalog snapshot; a coupon without restrictions applies to everything.
func (s *couponService) checkScope(ctx context.Context, coupon Coupon, itemIDs []string) error {
	if len(coupon.ProductIDs) == 0 && len(coupon.CategoryIDs) == 0 {
		return nil
	}

	if len(coupon.ProductIDs) > 0 {
		allowed := make(map[string]struct{}, len(coupon.ProductIDs))
		for _, id := range coupon.ProductIDs {
			allowed[id] = struct{}{}
		}
		for _, id := range itemIDs {
			if _, ok := allowed[id]; ok {
				return nil
			}
		}
	}

	if len(coupon.CategoryIDs) > 0 && s.catalog != nil {
		snapshot, err := s.catalog.GetItems(ctx, itemIDs)
		if err != nil {
			return mapRepositoryError(err, ErrItemNotFound)
		}
		allowed := make(map[string]struct{}, len(coupon.CategoryIDs))
		for _, id := range coupon.CategoryIDs {
			allowed[id] = struct{}{}
		}
		for _, item := range snapshot {
			if _, ok := allowed[item.CategoryID]; ok {
				return nil
			}
		}
	}

	return ErrCouponNotApplicable
}

func computeDiscount(coupon Coupon, subtotal int64) int64 {
	var discount int64
	switch coupon.Kind {
	case domain.CouponKindPercentage:
		discount = subtotal * coupon.Value / 100
		if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
			discount = *coupon.MaxDiscount
		}
	case domain.CouponKindFixed:
		discount = coupon.Value
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}
