package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/greenbasket/api/internal/platform/httpx"
	"github.com/greenbasket/api/internal/services"
)

// writeServiceError translates service sentinels into the shared error
// envelope. Unknown errors collapse to a 500 without leaking internals.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrCartEmpty),
		errors.Is(err, services.ErrCancelReasonRequired),
		errors.Is(err, services.ErrCouponInactive),
		errors.Is(err, services.ErrCouponExpired),
		errors.Is(err, services.ErrCouponMinPurchase),
		errors.Is(err, services.ErrCouponNotApplicable),
		errors.Is(err, services.ErrPaymentSignature),
		errors.Is(err, services.ErrPaymentRefMismatch):
		httpx.WriteError(ctx, w, httpx.Validation(err.Error()))

	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrItemNotFound),
		errors.Is(err, services.ErrCartLineNotFound),
		errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound(err.Error()))

	case errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrOrderTerminal),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrCouponAlreadyClaimed),
		errors.Is(err, services.ErrCouponLimitReached),
		errors.Is(err, services.ErrCouponNotClaimed),
		errors.Is(err, services.ErrPaymentNotOpen):
		httpx.WriteError(ctx, w, httpx.Conflict(err.Error()))

	case errors.Is(err, services.ErrNotOrderOwner):
		httpx.WriteError(ctx, w, httpx.Forbidden(err.Error()))

	case errors.Is(err, services.ErrPaymentProvider):
		httpx.WriteError(ctx, w, httpx.ExternalService("payment gateway request failed"))

	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "backend temporarily unavailable", http.StatusServiceUnavailable))

	default:
		httpx.WriteError(ctx, w, httpx.Internal())
	}
}
