package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/greenbasket/api/internal/domain"
	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
)

const (
	couponsCollection      = "coupons"
	couponClaimsCollection = "coupon_claims"
)

// CouponRepository stores coupon definitions keyed by normalised code.
type CouponRepository struct {
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{provider: provider}, nil
}

func (r *CouponRepository) docRef(ctx context.Context, code string) (*firestore.DocumentRef, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, pfirestore.NewNotFoundError("coupons", errors.New("coupon code is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(couponsCollection).Doc(normalized), nil
}

// Insert creates a coupon, failing on duplicate codes.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	ref, err := r.docRef(ctx, coupon.Code)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("coupons.insert", tx.Create(ref, coupon))
	}
	_, err = ref.Create(ctx, coupon)
	return pfirestore.WrapError("coupons.insert", err)
}

// Update overwrites the coupon document.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	ref, err := r.docRef(ctx, coupon.Code)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("coupons.update", tx.Set(ref, coupon))
	}
	_, err = ref.Set(ctx, coupon)
	return pfirestore.WrapError("coupons.update", err)
}

// FindByCode loads a coupon by its normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	ref, err := r.docRef(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.find", err)
	}

	var coupon domain.Coupon
	if err := snap.DataTo(&coupon); err != nil {
		return domain.Coupon{}, fmt.Errorf("coupons decode %s: %w", code, err)
	}
	return coupon, nil
}

// CouponClaimRepository stores the per-identity claim ledger. The document id
// is the identity key, so Create doubles as the uniqueness guard.
type CouponClaimRepository struct {
	provider *pfirestore.Provider
}

// NewCouponClaimRepository constructs a Firestore-backed claim repository.
func NewCouponClaimRepository(provider *pfirestore.Provider) (*CouponClaimRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon claim repository requires firestore provider")
	}
	return &CouponClaimRepository{provider: provider}, nil
}

func (r *CouponClaimRepository) docRef(ctx context.Context, identityKey string) (*firestore.DocumentRef, error) {
	key := strings.TrimSpace(identityKey)
	if key == "" {
		return nil, pfirestore.NewNotFoundError("coupon_claims", errors.New("identity key is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(couponClaimsCollection).Doc(key), nil
}

// Create conditionally inserts the claim. A concurrent duplicate surfaces as
// an AlreadyExists conflict, which is exactly the one-claim rule.
func (r *CouponClaimRepository) Create(ctx context.Context, claim domain.CouponClaim) error {
	ref, err := r.docRef(ctx, claim.IdentityKey)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("coupon_claims.create", tx.Create(ref, claim))
	}
	_, err = ref.Create(ctx, claim)
	return pfirestore.WrapError("coupon_claims.create", err)
}

// FindByIdentity loads the claim held by the identity, if any.
func (r *CouponClaimRepository) FindByIdentity(ctx context.Context, identityKey string) (domain.CouponClaim, error) {
	ref, err := r.docRef(ctx, identityKey)
	if err != nil {
		return domain.CouponClaim{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.CouponClaim{}, pfirestore.WrapError("coupon_claims.find", err)
	}

	var claim domain.CouponClaim
	if err := snap.DataTo(&claim); err != nil {
		return domain.CouponClaim{}, fmt.Errorf("coupon_claims decode %s: %w", identityKey, err)
	}
	return claim, nil
}

// Save overwrites the claim entry, used when redemption bumps usedCount.
func (r *CouponClaimRepository) Save(ctx context.Context, claim domain.CouponClaim) error {
	ref, err := r.docRef(ctx, claim.IdentityKey)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("coupon_claims.save", tx.Set(ref, claim))
	}
	_, err = ref.Set(ctx, claim)
	return pfirestore.WrapError("coupon_claims.save", err)
}
