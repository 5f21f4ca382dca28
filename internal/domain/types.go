package domain

import "time"

// OrderStatus enumerates the lifecycle states an order moves through.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus tracks the payment axis independently of order status.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

const (
	PaymentMethodGateway        PaymentMethod = "gateway"
	PaymentMethodCashOnDelivery PaymentMethod = "cod"
)

// CouponKind distinguishes percentage from fixed-amount discounts.
type CouponKind string

const (
	CouponKindPercentage CouponKind = "percentage"
	CouponKindFixed      CouponKind = "fixed"
)

// PaymentRecordStatus tracks reconciliation state for a gateway payment.
type PaymentRecordStatus string

const (
	PaymentRecordCreated PaymentRecordStatus = "created"
	PaymentRecordSuccess PaymentRecordStatus = "success"
	PaymentRecordFailed  PaymentRecordStatus = "failed"
)

// PackSelection is a bundled-quantity purchase option frozen onto a line.
type PackSelection struct {
	Size           int     `firestore:"size" json:"size"`
	UnitPrice      int64   `firestore:"unitPrice" json:"unitPrice"`
	SavingsPercent float64 `firestore:"savingsPercent" json:"savingsPercent"`
}

// CartLine references a catalog item with a quantity and a price snapshot.
// The unit price is resolved when the line is added and only recomputed on
// an explicit update, never on read.
type CartLine struct {
	ID        string         `firestore:"id"`
	ItemID    string         `firestore:"itemId"`
	SKU       string         `firestore:"sku"`
	Name      string         `firestore:"name"`
	Quantity  int            `firestore:"quantity"`
	UnitPrice int64          `firestore:"unitPrice"`
	Pack      *PackSelection `firestore:"pack,omitempty"`
}

// Cart holds one identity's pending lines. The total is derived and
// recomputed on every mutation.
type Cart struct {
	UserID    string     `firestore:"userId"`
	Lines     []CartLine `firestore:"lines"`
	Total     int64      `firestore:"total"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
}

// Address captures the shipping destination recorded on an order.
type Address struct {
	Name       string `firestore:"name" json:"name"`
	Phone      string `firestore:"phone" json:"phone"`
	Line1      string `firestore:"line1" json:"line1"`
	Line2      string `firestore:"line2,omitempty" json:"line2,omitempty"`
	City       string `firestore:"city,omitempty" json:"city,omitempty"`
	State      string `firestore:"state,omitempty" json:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty" json:"postalCode,omitempty"`
	Notes      string `firestore:"notes,omitempty" json:"notes,omitempty"`
}

// OrderLine is a cart line frozen at order time. Prices never change after
// creation.
type OrderLine struct {
	ItemID    string         `firestore:"itemId"`
	SKU       string         `firestore:"sku"`
	Name      string         `firestore:"name"`
	Quantity  int            `firestore:"quantity"`
	UnitPrice int64          `firestore:"unitPrice"`
	Total     int64          `firestore:"total"`
	Pack      *PackSelection `firestore:"pack,omitempty"`
}

// Order is the aggregate the lifecycle state machine governs.
type Order struct {
	ID              string        `firestore:"id"`
	Number          string        `firestore:"number"`
	UserID          string        `firestore:"userId"`
	Status          OrderStatus   `firestore:"status"`
	PaymentStatus   PaymentStatus `firestore:"paymentStatus"`
	PaymentMethod   PaymentMethod `firestore:"paymentMethod"`
	Lines           []OrderLine   `firestore:"lines"`
	TotalAmount     int64         `firestore:"totalAmount"`
	Discount        int64         `firestore:"discount"`
	ShippingCost    int64         `firestore:"shippingCost"`
	FinalAmount     int64         `firestore:"finalAmount"`
	CouponCode      *string       `firestore:"couponCode,omitempty"`
	ShippingAddress Address       `firestore:"shippingAddress"`
	// NotificationLocale is the canonical BCP 47 tag notification consumers
	// render messages in. Empty when the caller supplied none or an
	// unparseable tag.
	NotificationLocale string     `firestore:"notificationLocale,omitempty"`
	GatewayOrderRef    *string    `firestore:"gatewayOrderRef,omitempty"`
	CancelReason       *string    `firestore:"cancelReason,omitempty"`
	CancelledAt        *time.Time `firestore:"cancelledAt,omitempty"`
	PaidAt             *time.Time `firestore:"paidAt,omitempty"`
	ShippedAt          *time.Time `firestore:"shippedAt,omitempty"`
	DeliveredAt        *time.Time `firestore:"deliveredAt,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
	UpdatedAt          time.Time  `firestore:"updatedAt"`
}

// Terminal reports whether no further status transition is possible.
func (o Order) Terminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// PaymentRecord tracks one gateway-side payment per (order, provider) pair
// so reconciliation can proceed independently of the order document.
type PaymentRecord struct {
	ID                string              `firestore:"id"`
	OrderID           string              `firestore:"orderId"`
	Provider          string              `firestore:"provider"`
	GatewayOrderRef   string              `firestore:"gatewayOrderRef"`
	GatewayPaymentRef string              `firestore:"gatewayPaymentRef,omitempty"`
	Status            PaymentRecordStatus `firestore:"status"`
	Amount            int64               `firestore:"amount"`
	Currency          string              `firestore:"currency"`
	Signature         string              `firestore:"signature,omitempty"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
}

// Coupon is an administrator-owned discount definition. Usage counters are
// mutated only through redemption.
type Coupon struct {
	Code             string     `firestore:"code"`
	Description      string     `firestore:"description,omitempty"`
	Kind             CouponKind `firestore:"kind"`
	Value            int64      `firestore:"value"`
	MinPurchase      int64      `firestore:"minPurchase"`
	MaxDiscount      *int64     `firestore:"maxDiscount,omitempty"`
	ValidFrom        time.Time  `firestore:"validFrom"`
	ValidUntil       time.Time  `firestore:"validUntil"`
	UsageLimit       *int       `firestore:"usageLimit,omitempty"`
	UsageCount       int        `firestore:"usageCount"`
	PerIdentityLimit int        `firestore:"perIdentityLimit"`
	ProductIDs       []string   `firestore:"productIds,omitempty"`
	CategoryIDs      []string   `firestore:"categoryIds,omitempty"`
	Active           bool       `firestore:"active"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
}

// CouponClaim is a ledger entry tying a coupon reservation to an identity.
// The document id is the identity key, which is what enforces the
// one-claim-per-identity rule as a conditional insert.
type CouponClaim struct {
	IdentityKey string    `firestore:"identityKey"`
	Code        string    `firestore:"code"`
	ClaimedAt   time.Time `firestore:"claimedAt"`
	UsedCount   int       `firestore:"usedCount"`
}

// Stock is the single inventory pool count for a catalog item.
type Stock struct {
	ItemID    string    `firestore:"itemId"`
	OnHand    int       `firestore:"onHand"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// PackOption is the catalog-side pack configuration for an item. Price, when
// set, overrides the savings-percent derivation.
type PackOption struct {
	Size           int     `firestore:"size"`
	Price          *int64  `firestore:"price,omitempty"`
	SavingsPercent float64 `firestore:"savingsPercent"`
}

// CatalogItem is the read-only collaborator view the pricing resolver
// consumes. Lookups happen before pricing; the resolver never issues reads.
type CatalogItem struct {
	ID                string      `firestore:"id"`
	SKU               string      `firestore:"sku"`
	Name              string      `firestore:"name"`
	CategoryID        string      `firestore:"categoryId"`
	Price             int64       `firestore:"price"`
	DiscountPrice     *int64      `firestore:"discountPrice,omitempty"`
	Stock             int         `firestore:"stock"`
	FreeShipping      bool        `firestore:"freeShipping"`
	ShippingCost      *int64      `firestore:"shippingCost,omitempty"`
	FreeShippingAbove *int64      `firestore:"freeShippingAbove,omitempty"`
	Pack              *PackOption `firestore:"pack,omitempty"`
}

// CatalogSnapshot indexes catalog items by id for a single pricing pass.
type CatalogSnapshot map[string]CatalogItem

// Pagination carries cursor paging inputs through list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a result slice with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery bounds a filter between optional endpoints.
type RangeQuery[T any] struct {
	From *T
	To   *T
}
