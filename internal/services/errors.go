package services

import (
	"errors"

	"github.com/greenbasket/api/internal/repositories"
)

var (
	// ErrValidation wraps rejected input across services.
	ErrValidation = errors.New("services: validation failed")
	// ErrUnavailable signals a transient backend failure the caller may retry.
	ErrUnavailable = errors.New("services: backend unavailable")

	// ErrCartEmpty is returned when order creation finds no cart lines.
	ErrCartEmpty = errors.New("services: cart is empty")
	// ErrCartLineNotFound is returned when a cart line id does not exist.
	ErrCartLineNotFound = errors.New("services: cart line not found")

	// ErrItemNotFound is returned when a catalog item cannot be resolved.
	ErrItemNotFound = errors.New("services: catalog item not found")
	// ErrInsufficientStock is returned when requested quantity exceeds stock.
	ErrInsufficientStock = errors.New("services: insufficient stock")

	// ErrCouponNotFound is returned for unknown coupon codes.
	ErrCouponNotFound = errors.New("services: coupon not found")
	// ErrCouponInactive is returned for disabled coupons.
	ErrCouponInactive = errors.New("services: coupon is not active")
	// ErrCouponExpired is returned outside the coupon validity window.
	ErrCouponExpired = errors.New("services: coupon expired or not yet valid")
	// ErrCouponMinPurchase is returned when the subtotal is below the floor.
	ErrCouponMinPurchase = errors.New("services: subtotal below coupon minimum purchase")
	// ErrCouponNotApplicable is returned when no cart item matches the coupon scope.
	ErrCouponNotApplicable = errors.New("services: coupon not applicable to cart items")
	// ErrCouponLimitReached is returned when aggregate or per-identity usage is exhausted.
	ErrCouponLimitReached = errors.New("services: coupon usage limit reached")
	// ErrCouponAlreadyClaimed is returned when the identity already holds a claim.
	ErrCouponAlreadyClaimed = errors.New("services: coupon already claimed for this identity")
	// ErrCouponNotClaimed is returned when redemption finds no claim for the identity.
	ErrCouponNotClaimed = errors.New("services: coupon has not been claimed by this identity")

	// ErrOrderNotFound is returned for unknown order ids.
	ErrOrderNotFound = errors.New("services: order not found")
	// ErrNotOrderOwner is returned when a caller operates on another user's order.
	ErrNotOrderOwner = errors.New("services: order belongs to another user")
	// ErrOrderTerminal is returned for operations on delivered or cancelled orders.
	ErrOrderTerminal = errors.New("services: order is in a terminal state")
	// ErrInvalidTransition is returned for disallowed status transitions.
	ErrInvalidTransition = errors.New("services: invalid order status transition")
	// ErrCancelReasonRequired is returned when cancellation lacks a usable reason.
	ErrCancelReasonRequired = errors.New("services: cancellation reason is required")

	// ErrPaymentSignature is returned when the gateway signature fails verification.
	ErrPaymentSignature = errors.New("services: payment signature verification failed")
	// ErrPaymentRefMismatch is returned when the confirmed order ref does not match the stored one.
	ErrPaymentRefMismatch = errors.New("services: payment reference does not match order")
	// ErrPaymentNotOpen is returned when an intent is requested for a settled order.
	ErrPaymentNotOpen = errors.New("services: order payment is not open")
	// ErrPaymentProvider is returned when the gateway rejects or fails a request.
	ErrPaymentProvider = errors.New("services: payment provider request failed")
)

// mapRepositoryError converts categorised persistence failures into service
// sentinels so callers never depend on the storage backend.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return notFound
			}
		case repoErr.IsUnavailable():
			return ErrUnavailable
		}
	}
	return err
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
