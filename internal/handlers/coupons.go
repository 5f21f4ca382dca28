package handlers

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenbasket/api/internal/platform/auth"
	"github.com/greenbasket/api/internal/platform/httpx"
	"github.com/greenbasket/api/internal/services"
)

// phonePattern matches Indian mobile numbers, which key the claim ledger.
var phonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

// CouponHandlers exposes coupon claim and validation endpoints.
type CouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
}

// NewCouponHandlers constructs handlers enforcing authentication before
// invoking the coupon service.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService) *CouponHandlers {
	return &CouponHandlers{authn: authn, coupons: coupons}
}

// Routes wires the /coupons endpoints onto the provided router.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/claim", h.claimCoupon)
	r.Post("/validate", h.validateCoupon)
}

type claimCouponRequest struct {
	Code  string `json:"code"`
	Phone string `json:"phone"`
}

type claimCouponResponse struct {
	Code      string    `json:"code"`
	Phone     string    `json:"phone"`
	ClaimedAt time.Time `json:"claimed_at"`
}

func (h *CouponHandlers) claimCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	var req claimCouponRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	phone := strings.TrimSpace(req.Phone)
	if !phonePattern.MatchString(phone) {
		httpx.WriteError(ctx, w, httpx.Validation("phone must be a 10 digit mobile number starting with 6-9"))
		return
	}

	claim, err := h.coupons.Claim(ctx, services.ClaimCouponCommand{
		IdentityKey: phone,
		Code:        req.Code,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, claimCouponResponse{
		Code:      claim.Code,
		Phone:     claim.IdentityKey,
		ClaimedAt: claim.ClaimedAt,
	})
}

type validateCouponRequest struct {
	Code     string   `json:"code"`
	Phone    string   `json:"phone,omitempty"`
	Subtotal int64    `json:"subtotal"`
	ItemIDs  []string `json:"item_ids,omitempty"`
}

type validateCouponResponse struct {
	Valid       bool   `json:"valid"`
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	Discount    int64  `json:"discount"`
	FinalAmount int64  `json:"final_amount"`
}

func (h *CouponHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(w, r); !ok {
		return
	}

	var req validateCouponRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}
	if req.Subtotal < 0 {
		httpx.WriteError(ctx, w, httpx.Validation("subtotal must be non-negative"))
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if phone != "" && !phonePattern.MatchString(phone) {
		httpx.WriteError(ctx, w, httpx.Validation("phone must be a 10 digit mobile number starting with 6-9"))
		return
	}

	evaluation, err := h.coupons.Evaluate(ctx, req.Code, phone, req.Subtotal, req.ItemIDs)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, validateCouponResponse{
		Valid:       true,
		Code:        evaluation.Coupon.Code,
		Kind:        string(evaluation.Coupon.Kind),
		Discount:    evaluation.Discount,
		FinalAmount: req.Subtotal - evaluation.Discount,
	})
}
