package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/repositories"
)

func testAddress() Address {
	return Address{
		Name:       "Asha Rao",
		Phone:      "9876543210",
		Line1:      "12 Market Street",
		City:       "Bengaluru",
		PostalCode: "560001",
	}
}

type orderFixture struct {
	registry *memRegistry
	events   *capturePublisher
	orders   OrderService
	coupons  CouponService
	now      time.Time
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	registry := newMemRegistry()
	events := &capturePublisher{}

	coupons := newTestCouponService(t, registry, now)
	resolver, err := NewPricingResolver(PricingResolverDeps{
		Coupons:            coupons,
		DefaultShippingFee: 4000,
	})
	if err != nil {
		t.Fatalf("NewPricingResolver: %v", err)
	}
	orders, err := NewOrderService(OrderServiceDeps{
		Registry: registry,
		Pricing:  resolver,
		Coupons:  coupons,
		Events:   events,
		Clock:    fixedClock(now),
		IDGen:    sequenceIDs("order"),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return &orderFixture{registry: registry, events: events, orders: orders, coupons: coupons, now: now}
}

func (f *orderFixture) seedItem(itemID string, price int64, stock int) {
	f.registry.catalog.items[itemID] = domain.CatalogItem{
		ID:           itemID,
		SKU:          "SKU-" + itemID,
		Name:         "Item " + itemID,
		Price:        price,
		Stock:        stock,
		FreeShipping: true,
	}
	f.registry.inventory.stock[itemID] = stock
}

func (f *orderFixture) seedCart(userID string, lines ...CartLine) {
	f.registry.carts.carts[userID] = domain.Cart{UserID: userID, Lines: lines, UpdatedAt: f.now}
}

func TestCreateOrderDecrementsStockAndClearsCart(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 3})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.Number != "GB-2025-000001" {
		t.Fatalf("order number = %q, want GB-2025-000001", order.Number)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("new order state = %s/%s, want pending/pending", order.Status, order.PaymentStatus)
	}
	if order.FinalAmount != 300 {
		t.Fatalf("final amount = %d, want 300", order.FinalAmount)
	}
	if got := f.registry.inventory.stock["item-1"]; got != 0 {
		t.Fatalf("stock after create = %d, want 0", got)
	}
	if got := len(f.registry.carts.carts["user-1"].Lines); got != 0 {
		t.Fatalf("cart lines after create = %d, want 0", got)
	}
	if got := len(f.events.byType("order.created")); got != 1 {
		t.Fatalf("order.created events = %d, want 1", got)
	}
}

func TestCreateOrderRejectsInsufficientStock(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 2)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 3})

	_, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("error = %v, want ErrInsufficientStock", err)
	}
	if got := f.registry.inventory.stock["item-1"]; got != 2 {
		t.Fatalf("stock after failed create = %d, want 2", got)
	}
}

func TestCreateOrderRejectsEmptyCart(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
		ShippingAddress: testAddress(),
	})
	if !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("error = %v, want ErrCartEmpty", err)
	}
}

func TestCreateOrderRedeemsClaimedCoupon(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 1000, 5)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})
	seedSave10(f.registry, f.now)

	if _, err := f.coupons.Claim(context.Background(), ClaimCouponCommand{IdentityKey: "9876543210", Code: "SAVE10"}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
		CouponCode:      "SAVE10",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.Discount != 50 {
		t.Fatalf("discount = %d, want 50", order.Discount)
	}
	if order.FinalAmount != 950 {
		t.Fatalf("final amount = %d, want 950", order.FinalAmount)
	}
	if got := f.registry.coupons.coupons["SAVE10"].UsageCount; got != 1 {
		t.Fatalf("coupon usage = %d, want 1", got)
	}
	if got := f.registry.claims.claims["9876543210"].UsedCount; got != 1 {
		t.Fatalf("claim used count = %d, want 1", got)
	}
}

func TestCreateOrderRedeemsUnclaimedCouponByCreatingLedgerEntry(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 1000, 5)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})
	seedSave10(f.registry, f.now)

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
		CouponCode:      "SAVE10",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.Discount != 50 {
		t.Fatalf("discount = %d, want 50", order.Discount)
	}

	entry := f.registry.claims.claims["9876543210"]
	if entry.Code != "SAVE10" || entry.UsedCount != 1 {
		t.Fatalf("ledger entry = %+v, want SAVE10 used once", entry)
	}
}

func TestCreateOrderNormalisesNotificationLocale(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 5)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
		Locale:          " EN-us ",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.NotificationLocale != "en-US" {
		t.Fatalf("locale = %q, want en-US", order.NotificationLocale)
	}

	events := f.events.byType("order.created")
	if len(events) != 1 || events[0].Locale != "en-US" {
		t.Fatalf("events = %+v, want one order.created with locale en-US", events)
	}

	f.seedCart("user-1", CartLine{ID: "line-2", ItemID: "item-1", Quantity: 1})
	order, err = f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
		Locale:          "not a locale!!",
	})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if order.NotificationLocale != "" {
		t.Fatalf("locale = %q, want empty for unparseable tag", order.NotificationLocale)
	}
}

// txOpLog captures repository operations issued while a transaction runs.
// Firestore rejects any read issued after the first buffered write, so order
// creation must keep every read ahead of every write.
type txOpLog struct {
	mu   sync.Mutex
	inTx bool
	ops  []string
}

func (l *txOpLog) setInTx(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inTx = v
}

func (l *txOpLog) record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inTx {
		l.ops = append(l.ops, op)
	}
}

type loggedRegistry struct {
	*memRegistry
	log *txOpLog
}

func (r *loggedRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.log.setInTx(true)
	defer r.log.setInTx(false)
	return r.memRegistry.RunInTx(ctx, fn)
}

func (r *loggedRegistry) Orders() repositories.OrderRepository {
	return &loggedOrders{OrderRepository: r.memRegistry.Orders(), log: r.log}
}

func (r *loggedRegistry) Inventory() repositories.InventoryRepository {
	return &loggedInventory{InventoryRepository: r.memRegistry.Inventory(), log: r.log}
}

func (r *loggedRegistry) Carts() repositories.CartRepository {
	return &loggedCarts{CartRepository: r.memRegistry.Carts(), log: r.log}
}

func (r *loggedRegistry) Coupons() repositories.CouponRepository {
	return &loggedCoupons{CouponRepository: r.memRegistry.Coupons(), log: r.log}
}

func (r *loggedRegistry) CouponClaims() repositories.CouponClaimRepository {
	return &loggedClaims{CouponClaimRepository: r.memRegistry.CouponClaims(), log: r.log}
}

type loggedOrders struct {
	repositories.OrderRepository
	log *txOpLog
}

func (o *loggedOrders) Insert(ctx context.Context, order domain.Order) error {
	o.log.record("write orders.insert")
	return o.OrderRepository.Insert(ctx, order)
}

type loggedInventory struct {
	repositories.InventoryRepository
	log *txOpLog
}

// Decrement reads every stock document before writing any of them, so the
// log marks the read side on entry and the write side on completion.
func (i *loggedInventory) Decrement(ctx context.Context, adjustments []repositories.StockAdjustment, now time.Time) error {
	i.log.record("read inventory.stock")
	err := i.InventoryRepository.Decrement(ctx, adjustments, now)
	i.log.record("write inventory.stock")
	return err
}

type loggedCarts struct {
	repositories.CartRepository
	log *txOpLog
}

func (c *loggedCarts) Clear(ctx context.Context, userID string, now time.Time) error {
	c.log.record("write carts.clear")
	return c.CartRepository.Clear(ctx, userID, now)
}

type loggedCoupons struct {
	repositories.CouponRepository
	log *txOpLog
}

func (c *loggedCoupons) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	c.log.record("read coupons.find")
	return c.CouponRepository.FindByCode(ctx, code)
}

func (c *loggedCoupons) Update(ctx context.Context, coupon domain.Coupon) error {
	c.log.record("write coupons.update")
	return c.CouponRepository.Update(ctx, coupon)
}

type loggedClaims struct {
	repositories.CouponClaimRepository
	log *txOpLog
}

func (c *loggedClaims) FindByIdentity(ctx context.Context, identityKey string) (domain.CouponClaim, error) {
	c.log.record("read coupon_claims.find")
	return c.CouponClaimRepository.FindByIdentity(ctx, identityKey)
}

func (c *loggedClaims) Save(ctx context.Context, claim domain.CouponClaim) error {
	c.log.record("write coupon_claims.save")
	return c.CouponClaimRepository.Save(ctx, claim)
}

func TestCreateOrderTransactionReadsPrecedeWrites(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	opLog := &txOpLog{}
	registry := &loggedRegistry{memRegistry: newMemRegistry(), log: opLog}

	coupons, err := NewCouponService(CouponServiceDeps{
		Coupons: registry.Coupons(),
		Claims:  registry.CouponClaims(),
		Catalog: registry.Catalog(),
		Clock:   fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewCouponService: %v", err)
	}
	resolver, err := NewPricingResolver(PricingResolverDeps{
		Coupons:            coupons,
		DefaultShippingFee: 4000,
	})
	if err != nil {
		t.Fatalf("NewPricingResolver: %v", err)
	}
	orders, err := NewOrderService(OrderServiceDeps{
		Registry: registry,
		Pricing:  resolver,
		Coupons:  coupons,
		Clock:    fixedClock(now),
		IDGen:    sequenceIDs("order"),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	registry.memRegistry.catalog.items["item-1"] = domain.CatalogItem{
		ID: "item-1", Price: 1000, Stock: 5, FreeShipping: true,
	}
	registry.memRegistry.inventory.stock["item-1"] = 5
	registry.memRegistry.carts.carts["user-1"] = domain.Cart{
		UserID:    "user-1",
		Lines:     []CartLine{{ID: "line-1", ItemID: "item-1", Quantity: 1}},
		UpdatedAt: now,
	}
	seedSave10(registry.memRegistry, now)
	registry.memRegistry.claims.claims["9876543210"] = domain.CouponClaim{
		IdentityKey: "9876543210",
		Code:        "SAVE10",
		ClaimedAt:   now,
	}

	if _, err := orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
		CouponCode:      "SAVE10",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(opLog.ops) == 0 {
		t.Fatalf("no transactional operations recorded")
	}
	firstWrite := -1
	for i, op := range opLog.ops {
		if strings.HasPrefix(op, "write") && firstWrite == -1 {
			firstWrite = i
		}
		if strings.HasPrefix(op, "read") && firstWrite != -1 {
			t.Fatalf("transaction issued %q after %q: %v", op, opLog.ops[firstWrite], opLog.ops)
		}
	}
	for _, want := range []string{
		"read coupons.find",
		"read coupon_claims.find",
		"write orders.insert",
		"write coupons.update",
		"write coupon_claims.save",
		"write carts.clear",
	} {
		found := false
		for _, op := range opLog.ops {
			if op == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("transaction log missing %q: %v", want, opLog.ops)
		}
	}
}

func TestCancelRestoresStockExactlyOnce(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 3})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := f.registry.inventory.stock["item-1"]; got != 0 {
		t.Fatalf("stock after create = %d, want 0", got)
	}

	cancelled, err := f.orders.Cancel(context.Background(), CancelOrderCommand{
		OrderID: order.ID,
		UserID:  "user-1",
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if got := f.registry.inventory.stock["item-1"]; got != 3 {
		t.Fatalf("stock after cancel = %d, want 3", got)
	}

	_, err = f.orders.Cancel(context.Background(), CancelOrderCommand{
		OrderID: order.ID,
		UserID:  "user-1",
		Reason:  "again",
	})
	if !errors.Is(err, ErrOrderTerminal) {
		t.Fatalf("second Cancel error = %v, want ErrOrderTerminal", err)
	}
	if got := f.registry.inventory.stock["item-1"]; got != 3 {
		t.Fatalf("stock after second cancel = %d, want 3", got)
	}
	if got := len(f.events.byType("order.cancelled")); got != 1 {
		t.Fatalf("order.cancelled events = %d, want 1", got)
	}
}

func TestCancelRequiresReasonAndOwnership(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.orders.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-1", Reason: "  "})
	if !errors.Is(err, ErrCancelReasonRequired) {
		t.Fatalf("blank reason error = %v, want ErrCancelReasonRequired", err)
	}

	_, err = f.orders.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-2", Reason: "not mine"})
	if !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("other user error = %v, want ErrNotOrderOwner", err)
	}
}

func TestUpdateStatusWalksLifecycleAndSettlesOnDelivery(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	} {
		order, err = f.orders.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: status})
		if err != nil {
			t.Fatalf("UpdateStatus(%s): %v", status, err)
		}
	}

	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status after delivery = %s, want paid", order.PaymentStatus)
	}
	if order.PaidAt == nil || order.DeliveredAt == nil {
		t.Fatalf("delivery timestamps missing: paidAt=%v deliveredAt=%v", order.PaidAt, order.DeliveredAt)
	}
}

func TestUpdateStatusRejectsSkippedAndTerminalTransitions(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.orders.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusDelivered})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending->delivered error = %v, want ErrInvalidTransition", err)
	}

	if _, err := f.orders.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, UserID: "user-1", Reason: "done"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err = f.orders.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: order.ID, Status: domain.OrderStatusProcessing})
	if !errors.Is(err, ErrOrderTerminal) {
		t.Fatalf("cancelled->processing error = %v, want ErrOrderTerminal", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.orders.Get(context.Background(), order.ID, "user-2", false); !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("other user Get error = %v, want ErrNotOrderOwner", err)
	}
	if _, err := f.orders.Get(context.Background(), order.ID, "user-2", true); err != nil {
		t.Fatalf("admin Get: %v", err)
	}
	if _, err := f.orders.Get(context.Background(), "missing", "user-1", false); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("missing order error = %v, want ErrOrderNotFound", err)
	}
}

func TestDeleteRestoresStockForOpenOrders(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 2})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := f.registry.inventory.stock["item-1"]; got != 1 {
		t.Fatalf("stock after create = %d, want 1", got)
	}

	if err := f.orders.Delete(context.Background(), order.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.registry.inventory.stock["item-1"]; got != 3 {
		t.Fatalf("stock after delete = %d, want 3", got)
	}
	if _, err := f.orders.Get(context.Background(), order.ID, "user-1", true); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("Get after delete error = %v, want ErrOrderNotFound", err)
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newOrderFixture(t)
	f.seedItem("item-1", 100, 3)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})

	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	paid, applied, err := f.orders.MarkPaid(context.Background(), order.ID, f.now)
	if err != nil {
		t.Fatalf("first MarkPaid: %v", err)
	}
	if !applied {
		t.Fatalf("first MarkPaid applied = false, want true")
	}
	if paid.PaymentStatus != domain.PaymentStatusPaid || paid.Status != domain.OrderStatusProcessing {
		t.Fatalf("paid order state = %s/%s, want processing/paid", paid.Status, paid.PaymentStatus)
	}

	again, applied, err := f.orders.MarkPaid(context.Background(), order.ID, f.now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second MarkPaid: %v", err)
	}
	if applied {
		t.Fatalf("second MarkPaid applied = true, want false")
	}
	if !again.PaidAt.Equal(f.now) {
		t.Fatalf("paidAt changed on replay: %v", again.PaidAt)
	}
	if got := len(f.events.byType("order.paid")); got != 1 {
		t.Fatalf("order.paid events = %d, want 1", got)
	}
}
