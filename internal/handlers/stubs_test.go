package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/platform/auth"
	"github.com/greenbasket/api/internal/repositories"
	"github.com/greenbasket/api/internal/services"
)

type stubOrderService struct {
	createFn       func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	getFn          func(ctx context.Context, orderID, userID string, isAdmin bool) (services.Order, error)
	listFn         func(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[services.Order], error)
	updateStatusFn func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
	cancelFn       func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	deleteFn       func(ctx context.Context, orderID string) error
	markPaidFn     func(ctx context.Context, orderID string, paidAt time.Time) (services.Order, bool, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, orderID, userID string, isAdmin bool) (services.Order, error) {
	return s.getFn(ctx, orderID, userID, isAdmin)
}

func (s *stubOrderService) List(ctx context.Context, query services.ListOrdersQuery) (domain.CursorPage[services.Order], error) {
	return s.listFn(ctx, query)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	return s.updateStatusFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	return s.cancelFn(ctx, cmd)
}

func (s *stubOrderService) Delete(ctx context.Context, orderID string) error {
	return s.deleteFn(ctx, orderID)
}

func (s *stubOrderService) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (services.Order, bool, error) {
	return s.markPaidFn(ctx, orderID, paidAt)
}

type stubCouponService struct {
	evaluateFn    func(ctx context.Context, code string, identityKey string, subtotal int64, itemIDs []string) (services.CouponEvaluation, error)
	claimFn       func(ctx context.Context, cmd services.ClaimCouponCommand) (services.CouponClaim, error)
	stageRedeemFn func(ctx context.Context, code, identityKey string) (services.RedeemCommit, error)
	redeemFn      func(ctx context.Context, code, identityKey string) error
}

func (s *stubCouponService) Evaluate(ctx context.Context, code string, identityKey string, subtotal int64, itemIDs []string) (services.CouponEvaluation, error) {
	return s.evaluateFn(ctx, code, identityKey, subtotal, itemIDs)
}

func (s *stubCouponService) Claim(ctx context.Context, cmd services.ClaimCouponCommand) (services.CouponClaim, error) {
	return s.claimFn(ctx, cmd)
}

func (s *stubCouponService) StageRedeem(ctx context.Context, code, identityKey string) (services.RedeemCommit, error) {
	return s.stageRedeemFn(ctx, code, identityKey)
}

func (s *stubCouponService) Redeem(ctx context.Context, code, identityKey string) error {
	return s.redeemFn(ctx, code, identityKey)
}

type stubPaymentService struct {
	createIntentFn func(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error)
	verifyFn       func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error)
}

func (s *stubPaymentService) CreateIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
	return s.createIntentFn(ctx, cmd)
}

func (s *stubPaymentService) Verify(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	return s.verifyFn(ctx, cmd)
}

type stubCartService struct {
	getFn        func(ctx context.Context, userID string) (services.Cart, error)
	addLineFn    func(ctx context.Context, cmd services.AddCartLineCommand) (services.Cart, error)
	updateLineFn func(ctx context.Context, cmd services.UpdateCartLineCommand) (services.Cart, error)
	removeLineFn func(ctx context.Context, userID, lineID string) (services.Cart, error)
	clearFn      func(ctx context.Context, userID string) error
}

func (s *stubCartService) Get(ctx context.Context, userID string) (services.Cart, error) {
	return s.getFn(ctx, userID)
}

func (s *stubCartService) AddLine(ctx context.Context, cmd services.AddCartLineCommand) (services.Cart, error) {
	return s.addLineFn(ctx, cmd)
}

func (s *stubCartService) UpdateLine(ctx context.Context, cmd services.UpdateCartLineCommand) (services.Cart, error) {
	return s.updateLineFn(ctx, cmd)
}

func (s *stubCartService) RemoveLine(ctx context.Context, userID, lineID string) (services.Cart, error) {
	return s.removeLineFn(ctx, userID, lineID)
}

func (s *stubCartService) Clear(ctx context.Context, userID string) error {
	return s.clearFn(ctx, userID)
}

type stubInventoryService struct {
	decrementFn func(ctx context.Context, adjustments []repositories.StockAdjustment) error
	restoreFn   func(ctx context.Context, adjustments []repositories.StockAdjustment) error
	getFn       func(ctx context.Context, itemID string) (services.Stock, error)
}

func (s *stubInventoryService) Decrement(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	return s.decrementFn(ctx, adjustments)
}

func (s *stubInventoryService) Restore(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	return s.restoreFn(ctx, adjustments)
}

func (s *stubInventoryService) Get(ctx context.Context, itemID string) (services.Stock, error) {
	return s.getFn(ctx, itemID)
}

func newAuthedRequest(t *testing.T, method, target, body string, roles ...string) *http.Request {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	identity := &auth.Identity{UID: "user-1", Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
