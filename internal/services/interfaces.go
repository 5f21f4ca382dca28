package services

import (
	"context"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/repositories"
)

// Type aliases re-export domain types so handlers depend on the services
// package alone.
type (
	Cart          = domain.Cart
	CartLine      = domain.CartLine
	Order         = domain.Order
	OrderLine     = domain.OrderLine
	Address       = domain.Address
	Coupon        = domain.Coupon
	CouponClaim   = domain.CouponClaim
	PaymentRecord = domain.PaymentRecord
	CatalogItem   = domain.CatalogItem
	Stock         = domain.Stock
)

// Logger captures structured event logging without binding services to a
// specific logging backend.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// IDGenerator produces unique identifiers for new entities.
type IDGenerator func() string

// OrderEventMessage is the payload published for order lifecycle changes.
type OrderEventMessage struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// OrderEventPublisher emits order lifecycle events after state changes
// commit. Publish failures must never fail the originating operation.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// PricedLine is one cart line after catalog resolution and pack pricing.
type PricedLine struct {
	ItemID    string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	LineTotal int64
	Pack      *domain.PackSelection
}

// PriceQuote is the result of a full pricing pass over a cart.
type PriceQuote struct {
	Lines        []PricedLine
	Subtotal     int64
	Discount     int64
	ShippingCost int64
	Total        int64
	CouponCode   string
}

// PricingResolver re-prices cart lines against a caller-supplied catalog
// snapshot and applies shipping and coupon rules. The resolver issues no
// repository reads of its own; client supplied prices are never trusted.
type PricingResolver interface {
	Quote(ctx context.Context, lines []CartLine, snapshot domain.CatalogSnapshot, couponCode string) (PriceQuote, error)
}

// CouponEvaluation reports the effect of a coupon on a given subtotal.
type CouponEvaluation struct {
	Coupon   Coupon
	Discount int64
}

// ClaimCouponCommand claims a coupon for an identity. IdentityKey is the
// normalised phone number that scopes the one-claim rule.
type ClaimCouponCommand struct {
	IdentityKey string
	Code        string
}

// RedeemCommit applies the writes of a staged redemption. Firestore
// transactions require every read to precede the first write, so redemption
// splits into a read phase (StageRedeem) and a write phase (the commit).
type RedeemCommit func(ctx context.Context) error

// CouponService owns coupon definitions, claims, and redemption accounting.
type CouponService interface {
	Evaluate(ctx context.Context, code string, identityKey string, subtotal int64, itemIDs []string) (CouponEvaluation, error)
	Claim(ctx context.Context, cmd ClaimCouponCommand) (CouponClaim, error)
	StageRedeem(ctx context.Context, code string, identityKey string) (RedeemCommit, error)
	Redeem(ctx context.Context, code string, identityKey string) error
}

// CreateOrderCommand captures the typed input for order creation. Lines are
// read from the stored cart, never from the request body. Locale is the
// caller's BCP 47 notification preference; unparseable tags are dropped.
type CreateOrderCommand struct {
	UserID          string
	PaymentMethod   domain.PaymentMethod
	ShippingAddress Address
	CouponCode      string
	Locale          string
}

// CancelOrderCommand cancels an order on behalf of its owner or an admin.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	IsAdmin bool
	Reason  string
}

// UpdateOrderStatusCommand applies an admin driven status transition.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
}

// ListOrdersQuery narrows order listings.
type ListOrdersQuery struct {
	UserID    string
	Status    []string
	From      *time.Time
	To        *time.Time
	PageSize  int
	PageToken string
}

// OrderService drives the order state machine and owns order persistence.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string, userID string, isAdmin bool) (Order, error)
	List(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Delete(ctx context.Context, orderID string) error
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (Order, bool, error)
}

// CreatePaymentIntentCommand opens a gateway order for an existing order.
type CreatePaymentIntentCommand struct {
	OrderID  string
	UserID   string
	Provider string
}

// PaymentIntent is returned to the client to complete checkout.
type PaymentIntent struct {
	OrderID      string
	Reference    string
	Provider     string
	Amount       int64
	Currency     string
	ClientSecret string
}

// VerifyPaymentCommand carries the gateway confirmation for validation.
type VerifyPaymentCommand struct {
	UserID     string
	OrderID    string
	OrderRef   string
	PaymentRef string
	Signature  string
}

// PaymentService creates gateway intents and verifies confirmations.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// AddCartLineCommand adds or merges a line in the caller's cart. PackSize
// selects a catalog pack option when greater than one.
type AddCartLineCommand struct {
	UserID   string
	ItemID   string
	Quantity int
	PackSize int
}

// UpdateCartLineCommand replaces the quantity of an existing line.
type UpdateCartLineCommand struct {
	UserID   string
	LineID   string
	Quantity int
}

// CartService owns the single cart per identity.
type CartService interface {
	Get(ctx context.Context, userID string) (Cart, error)
	AddLine(ctx context.Context, cmd AddCartLineCommand) (Cart, error)
	UpdateLine(ctx context.Context, cmd UpdateCartLineCommand) (Cart, error)
	RemoveLine(ctx context.Context, userID string, lineID string) (Cart, error)
	Clear(ctx context.Context, userID string) error
}

// InventoryService exposes stock reads and the decrement/restore pair used
// by the order lifecycle.
type InventoryService interface {
	Decrement(ctx context.Context, adjustments []repositories.StockAdjustment) error
	Restore(ctx context.Context, adjustments []repositories.StockAdjustment) error
	Get(ctx context.Context, itemID string) (Stock, error)
}

// CatalogService serves read-only catalog lookups for pricing and carts.
type CatalogService interface {
	GetItem(ctx context.Context, itemID string) (CatalogItem, error)
	Snapshot(ctx context.Context, itemIDs []string) (domain.CatalogSnapshot, error)
}

// ReceiptArchiver persists a settlement receipt after successful capture.
// Archive failures are logged, never surfaced to the payer.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, order Order, record PaymentRecord) (string, error)
}
