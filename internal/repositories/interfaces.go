package repositories

import (
	"context"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Coupons() CouponRepository
	CouponClaims() CouponClaimRepository
	Inventory() InventoryRepository
	PaymentRecords() PaymentRecordRepository
	Catalog() CatalogRepository
	Counters() CounterRepository

	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns the single cart document per identity.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Clear(ctx context.Context, userID string, now time.Time) error
}

// OrderRepository persists order documents and provides query helpers for
// users and admins. MarkPaid is the conditional write guarding payment
// capture: it succeeds without mutating anything when the order is already
// paid and reports that through the applied flag.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (MarkPaidResult, error)
}

// MarkPaidRequest carries the conditional paid-transition inputs.
type MarkPaidRequest struct {
	OrderID string
	PaidAt  time.Time
}

// MarkPaidResult reports the order after the conditional write. Applied is
// false when the order was already paid and the write was skipped.
type MarkPaidResult struct {
	Order   domain.Order
	Applied bool
}

// CouponRepository maintains coupon definitions. Usage counters are bumped
// through Update with a coupon read earlier in the same transaction, keeping
// the write phase free of reads.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
}

// CouponClaimRepository records per-identity claim ledger entries. Create is
// a conditional insert keyed by identity so concurrent duplicate claims
// collapse to a single winner.
type CouponClaimRepository interface {
	Create(ctx context.Context, claim domain.CouponClaim) error
	FindByIdentity(ctx context.Context, identityKey string) (domain.CouponClaim, error)
	Save(ctx context.Context, claim domain.CouponClaim) error
}

// InventoryRepository is the only component allowed to mutate stock counts.
// Adjustments run inside the ambient transaction when one is present.
type InventoryRepository interface {
	Decrement(ctx context.Context, adjustments []StockAdjustment, now time.Time) error
	Restore(ctx context.Context, adjustments []StockAdjustment, now time.Time) error
	Get(ctx context.Context, itemID string) (domain.Stock, error)
}

// StockAdjustment names one item and the quantity to add or remove.
type StockAdjustment struct {
	ItemID   string
	Quantity int
}

// PaymentRecordRepository stores gateway reconciliation records per order.
type PaymentRecordRepository interface {
	Insert(ctx context.Context, record domain.PaymentRecord) error
	Update(ctx context.Context, record domain.PaymentRecord) error
	FindByOrderAndProvider(ctx context.Context, orderID string, provider string) (domain.PaymentRecord, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error)
}

// CatalogRepository serves the read-only item snapshot the pricing pass
// consumes. Catalog management itself lives outside this system.
type CatalogRepository interface {
	GetItem(ctx context.Context, itemID string) (domain.CatalogItem, error)
	GetItems(ctx context.Context, itemIDs []string) (domain.CatalogSnapshot, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// OrderListFilter narrows order queries for user and admin listings.
type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
