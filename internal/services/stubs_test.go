package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/repositories"
)

// stubRepoError is a categorised persistence error for tests.
type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(format string, args ...any) error {
	return &stubRepoError{msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflictErr(format string, args ...any) error {
	return &stubRepoError{msg: fmt.Sprintf(format, args...), conflict: true}
}

type memCatalog struct {
	items map[string]domain.CatalogItem
}

func (c *memCatalog) GetItem(_ context.Context, itemID string) (domain.CatalogItem, error) {
	item, ok := c.items[itemID]
	if !ok {
		return domain.CatalogItem{}, notFoundErr("catalog item %s not found", itemID)
	}
	return item, nil
}

func (c *memCatalog) GetItems(_ context.Context, itemIDs []string) (domain.CatalogSnapshot, error) {
	snapshot := domain.CatalogSnapshot{}
	for _, id := range itemIDs {
		if item, ok := c.items[id]; ok {
			snapshot[id] = item
		}
	}
	return snapshot, nil
}

type memInventory struct {
	mu    sync.Mutex
	stock map[string]int
}

func (i *memInventory) Decrement(_ context.Context, adjustments []repositories.StockAdjustment, _ time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, adj := range adjustments {
		onHand, ok := i.stock[adj.ItemID]
		if !ok {
			return notFoundErr("stock for %s not found", adj.ItemID)
		}
		if onHand < adj.Quantity {
			return conflictErr("stock for %s is %d, need %d", adj.ItemID, onHand, adj.Quantity)
		}
	}
	for _, adj := range adjustments {
		i.stock[adj.ItemID] -= adj.Quantity
	}
	return nil
}

func (i *memInventory) Restore(_ context.Context, adjustments []repositories.StockAdjustment, _ time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, adj := range adjustments {
		if _, ok := i.stock[adj.ItemID]; !ok {
			return notFoundErr("stock for %s not found", adj.ItemID)
		}
	}
	for _, adj := range adjustments {
		i.stock[adj.ItemID] += adj.Quantity
	}
	return nil
}

func (i *memInventory) Get(_ context.Context, itemID string) (domain.Stock, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	onHand, ok := i.stock[itemID]
	if !ok {
		return domain.Stock{}, notFoundErr("stock for %s not found", itemID)
	}
	return domain.Stock{ItemID: itemID, OnHand: onHand}, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func (o *memOrders) Insert(_ context.Context, order domain.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.orders[order.ID]; ok {
		return conflictErr("order %s already exists", order.ID)
	}
	o.orders[order.ID] = order
	return nil
}

func (o *memOrders) Update(_ context.Context, order domain.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.orders[order.ID]; !ok {
		return notFoundErr("order %s not found", order.ID)
	}
	o.orders[order.ID] = order
	return nil
}

func (o *memOrders) Delete(_ context.Context, orderID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.orders[orderID]; !ok {
		return notFoundErr("order %s not found", orderID)
	}
	delete(o.orders, orderID)
	return nil
}

func (o *memOrders) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order %s not found", orderID)
	}
	return order, nil
}

func (o *memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var page domain.CursorPage[domain.Order]
	for _, order := range o.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		page.Items = append(page.Items, order)
	}
	return page, nil
}

func (o *memOrders) MarkPaid(_ context.Context, req repositories.MarkPaidRequest) (repositories.MarkPaidResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[req.OrderID]
	if !ok {
		return repositories.MarkPaidResult{}, notFoundErr("order %s not found", req.OrderID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return repositories.MarkPaidResult{Order: order, Applied: false}, nil
	}
	paidAt := req.PaidAt
	order.PaymentStatus = domain.PaymentStatusPaid
	order.PaidAt = &paidAt
	if order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusProcessing
	}
	order.UpdatedAt = paidAt
	o.orders[req.OrderID] = order
	return repositories.MarkPaidResult{Order: order, Applied: true}, nil
}

type memCoupons struct {
	mu      sync.Mutex
	coupons map[string]domain.Coupon
}

func (c *memCoupons) Insert(_ context.Context, coupon domain.Coupon) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.coupons[coupon.Code]; ok {
		return conflictErr("coupon %s already exists", coupon.Code)
	}
	c.coupons[coupon.Code] = coupon
	return nil
}

func (c *memCoupons) Update(_ context.Context, coupon domain.Coupon) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupons[coupon.Code] = coupon
	return nil
}

func (c *memCoupons) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coupon, ok := c.coupons[code]
	if !ok {
		return domain.Coupon{}, notFoundErr("coupon %s not found", code)
	}
	return coupon, nil
}

type memClaims struct {
	mu     sync.Mutex
	claims map[string]domain.CouponClaim
}

func (c *memClaims) Create(_ context.Context, claim domain.CouponClaim) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.claims[claim.IdentityKey]; ok {
		return conflictErr("claim for %s already exists", claim.IdentityKey)
	}
	c.claims[claim.IdentityKey] = claim
	return nil
}

func (c *memClaims) FindByIdentity(_ context.Context, identityKey string) (domain.CouponClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	claim, ok := c.claims[identityKey]
	if !ok {
		return domain.CouponClaim{}, notFoundErr("claim for %s not found", identityKey)
	}
	return claim, nil
}

func (c *memClaims) Save(_ context.Context, claim domain.CouponClaim) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims[claim.IdentityKey] = claim
	return nil
}

type memCarts struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

func (c *memCarts) Get(_ context.Context, userID string) (domain.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[userID]
	if !ok {
		return domain.Cart{}, notFoundErr("cart for %s not found", userID)
	}
	return cart, nil
}

func (c *memCarts) Save(_ context.Context, cart domain.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[cart.UserID] = cart
	return nil
}

func (c *memCarts) Clear(_ context.Context, userID string, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[userID] = domain.Cart{UserID: userID, UpdatedAt: now}
	return nil
}

type memRecords struct {
	mu      sync.Mutex
	records map[string]domain.PaymentRecord
}

func (r *memRecords) Insert(_ context.Context, record domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; ok {
		return conflictErr("payment record %s already exists", record.ID)
	}
	r.records[record.ID] = record
	return nil
}

func (r *memRecords) Update(_ context.Context, record domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; !ok {
		return notFoundErr("payment record %s not found", record.ID)
	}
	r.records[record.ID] = record
	return nil
}

func (r *memRecords) FindByOrderAndProvider(_ context.Context, orderID string, provider string) (domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.OrderID == orderID && record.Provider == provider {
			return record, nil
		}
	}
	return domain.PaymentRecord{}, notFoundErr("payment record for %s/%s not found", orderID, provider)
}

func (r *memRecords) ListByOrder(_ context.Context, orderID string) ([]domain.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentRecord
	for _, record := range r.records {
		if record.OrderID == orderID {
			out = append(out, record)
		}
	}
	return out, nil
}

type memCounters struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (c *memCounters) Next(_ context.Context, counterID string, step int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[counterID] += step
	return c.counters[counterID], nil
}

// memRegistry aggregates the in-memory fakes. RunInTx runs the function
// directly; the fakes apply writes immediately.
type memRegistry struct {
	catalog   *memCatalog
	inventory *memInventory
	orders    *memOrders
	coupons   *memCoupons
	claims    *memClaims
	carts     *memCarts
	records   *memRecords
	counters  *memCounters
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		catalog:   &memCatalog{items: map[string]domain.CatalogItem{}},
		inventory: &memInventory{stock: map[string]int{}},
		orders:    &memOrders{orders: map[string]domain.Order{}},
		coupons:   &memCoupons{coupons: map[string]domain.Coupon{}},
		claims:    &memClaims{claims: map[string]domain.CouponClaim{}},
		carts:     &memCarts{carts: map[string]domain.Cart{}},
		records:   &memRecords{records: map[string]domain.PaymentRecord{}},
		counters:  &memCounters{counters: map[string]int64{}},
	}
}

func (r *memRegistry) Close(context.Context) error { return nil }

func (r *memRegistry) Carts() repositories.CartRepository                  { return r.carts }
func (r *memRegistry) Orders() repositories.OrderRepository               { return r.orders }
func (r *memRegistry) Coupons() repositories.CouponRepository             { return r.coupons }
func (r *memRegistry) CouponClaims() repositories.CouponClaimRepository   { return r.claims }
func (r *memRegistry) Inventory() repositories.InventoryRepository        { return r.inventory }
func (r *memRegistry) PaymentRecords() repositories.PaymentRecordRepository { return r.records }
func (r *memRegistry) Catalog() repositories.CatalogRepository            { return r.catalog }
func (r *memRegistry) Counters() repositories.CounterRepository           { return r.counters }

func (r *memRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// capturePublisher records published order events.
type capturePublisher struct {
	mu       sync.Mutex
	messages []OrderEventMessage
}

func (p *capturePublisher) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

func (p *capturePublisher) byType(eventType string) []OrderEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []OrderEventMessage
	for _, m := range p.messages {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func sequenceIDs(prefix string) IDGenerator {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
