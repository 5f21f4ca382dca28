package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/platform/textutil"
	"github.com/greenbasket/api/internal/repositories"
)

const (
	orderNumberCounter = "orders"
	cancelReasonLimit  = 500
)

// orderStatusTransitions defines the allowed forward edges of the order state
// machine. Terminal states have no outgoing edges.
var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

func canTransition(from, to domain.OrderStatus) bool {
	allowed, ok := orderStatusTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// OrderServiceDeps wires the order service dependencies.
type OrderServiceDeps struct {
	Registry repositories.Registry
	Pricing  PricingResolver
	Coupons  CouponService
	Events   OrderEventPublisher
	Clock    Clock
	IDGen    IDGenerator
	Logger   Logger
}

type orderService struct {
	registry repositories.Registry
	pricing  PricingResolver
	coupons  CouponService
	events   OrderEventPublisher
	clock    Clock
	idgen    IDGenerator
	logger   Logger
}

// NewOrderService constructs the order lifecycle service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Registry == nil {
		return nil, errors.New("order service requires repository registry")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service requires pricing resolver")
	}
	if deps.IDGen == nil {
		return nil, errors.New("order service requires id generator")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		registry: deps.Registry,
		pricing:  deps.Pricing,
		coupons:  deps.Coupons,
		events:   deps.Events,
		clock:    clock,
		idgen:    deps.IDGen,
		logger:   logger,
	}, nil
}

// Create prices the stored cart and commits the order, the stock decrement,
// the coupon redemption, and the cart clear in a single transaction. The
// order number is allocated up front; a failed transaction wastes the number
// but never leaks a partial order.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if cmd.PaymentMethod != domain.PaymentMethodGateway && cmd.PaymentMethod != domain.PaymentMethodCashOnDelivery {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, cmd.PaymentMethod)
	}
	address, err := normaliseAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, err
	}

	cart, err := s.registry.Carts().Get(ctx, userID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrCartEmpty)
	}
	if len(cart.Lines) == 0 {
		return Order{}, ErrCartEmpty
	}

	itemIDs := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	snapshot, err := s.registry.Catalog().GetItems(ctx, itemIDs)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrItemNotFound)
	}

	quote, err := s.pricing.Quote(ctx, cart.Lines, snapshot, cmd.CouponCode)
	if err != nil {
		return Order{}, err
	}

	now := s.clock().UTC()
	sequence, err := s.registry.Counters().Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return Order{}, mapRepositoryError(err, nil)
	}

	order := Order{
		ID:                 s.idgen(),
		Number:             fmt.Sprintf("GB-%d-%06d", now.Year(), sequence),
		UserID:             userID,
		Status:             domain.OrderStatusPending,
		PaymentStatus:      domain.PaymentStatusPending,
		PaymentMethod:      cmd.PaymentMethod,
		Lines:              orderLinesFromQuote(quote),
		TotalAmount:        quote.Subtotal,
		Discount:           quote.Discount,
		ShippingCost:       quote.ShippingCost,
		FinalAmount:        quote.Total,
		ShippingAddress:    address,
		NotificationLocale: textutil.NormalizeLocale(cmd.Locale),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if quote.CouponCode != "" {
		code := quote.CouponCode
		order.CouponCode = &code
	}

	err = s.registry.RunInTx(ctx, func(ctx context.Context) error {
		// Firestore rejects any read issued after the first buffered write in
		// a transaction. The coupon redemption is staged first so its reads,
		// and then the stock reads inside Decrement, all land before the
		// writes that follow.
		var commitRedeem RedeemCommit
		if order.CouponCode != nil && s.coupons != nil {
			commit, err := s.coupons.StageRedeem(ctx, *order.CouponCode, address.Phone)
			if err != nil {
				return err
			}
			commitRedeem = commit
		}
		if err := s.registry.Inventory().Decrement(ctx, stockAdjustments(order.Lines), now); err != nil {
			if isConflict(err) {
				return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
			}
			return mapRepositoryError(err, ErrItemNotFound)
		}
		if err := s.registry.Orders().Insert(ctx, order); err != nil {
			return mapRepositoryError(err, nil)
		}
		if commitRedeem != nil {
			if err := commitRedeem(ctx); err != nil {
				return err
			}
		}
		if err := s.registry.Carts().Clear(ctx, userID, now); err != nil {
			return mapRepositoryError(err, nil)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, "order.created", order)
	return order, nil
}

// Get loads an order, enforcing ownership for non-admin callers.
func (s *orderService) Get(ctx context.Context, orderID string, userID string, isAdmin bool) (Order, error) {
	order, err := s.registry.Orders().FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if !isAdmin && order.UserID != userID {
		return Order{}, ErrNotOrderOwner
	}
	return order, nil
}

// List queries orders with the supplied filters.
func (s *orderService) List(ctx context.Context, query ListOrdersQuery) (domain.CursorPage[Order], error) {
	filter := repositories.OrderListFilter{
		UserID: strings.TrimSpace(query.UserID),
		Status: query.Status,
		DateRange: domain.RangeQuery[time.Time]{
			From: query.From,
			To:   query.To,
		},
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: query.PageToken,
		},
	}
	page, err := s.registry.Orders().List(ctx, filter)
	if err != nil {
		if isConflict(err) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: invalid page token", ErrValidation)
		}
		return domain.CursorPage[Order]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

// UpdateStatus applies an admin driven transition. Delivery settles payment;
// cancellation restores stock.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if _, ok := orderStatusTransitions[cmd.Status]; !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.Status)
	}
	if cmd.Status == domain.OrderStatusCancelled {
		return s.Cancel(ctx, CancelOrderCommand{
			OrderID: cmd.OrderID,
			IsAdmin: true,
			Reason:  "cancelled by store",
		})
	}

	var updated Order
	err := s.registry.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.registry.Orders().FindByID(ctx, cmd.OrderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if order.Terminal() {
			return fmt.Errorf("%w: order is %s", ErrOrderTerminal, order.Status)
		}
		if !canTransition(order.Status, cmd.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, cmd.Status)
		}

		now := s.clock().UTC()
		order.Status = cmd.Status
		order.UpdatedAt = now
		switch cmd.Status {
		case domain.OrderStatusShipped:
			order.ShippedAt = &now
		case domain.OrderStatusDelivered:
			order.DeliveredAt = &now
			// Delivery settles cash-on-delivery balances.
			if order.PaymentStatus != domain.PaymentStatusPaid {
				order.PaymentStatus = domain.PaymentStatusPaid
				order.PaidAt = &now
			}
		}

		if err := s.registry.Orders().Update(ctx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, "order.status_changed", updated)
	return updated, nil
}

// Cancel moves a non-terminal order to cancelled and restores its stock. The
// order is re-read inside the transaction so a concurrent cancellation can
// only restore stock once.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	reason := textutil.SanitizeFreeText(cmd.Reason, cancelReasonLimit)
	if reason == "" {
		return Order{}, ErrCancelReasonRequired
	}

	var cancelled Order
	err := s.registry.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.registry.Orders().FindByID(ctx, cmd.OrderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if !cmd.IsAdmin && order.UserID != strings.TrimSpace(cmd.UserID) {
			return ErrNotOrderOwner
		}
		if order.Terminal() {
			return fmt.Errorf("%w: order is %s", ErrOrderTerminal, order.Status)
		}

		now := s.clock().UTC()
		if err := s.registry.Inventory().Restore(ctx, stockAdjustments(order.Lines), now); err != nil {
			return mapRepositoryError(err, ErrItemNotFound)
		}

		order.Status = domain.OrderStatusCancelled
		order.CancelReason = &reason
		order.CancelledAt = &now
		order.UpdatedAt = now
		if err := s.registry.Orders().Update(ctx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, "order.cancelled", cancelled)
	return cancelled, nil
}

// Delete removes an order entirely. Stock is restored first when the order
// never reached a terminal state, so deletion cannot strand reserved stock.
func (s *orderService) Delete(ctx context.Context, orderID string) error {
	err := s.registry.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.registry.Orders().FindByID(ctx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if !order.Terminal() {
			now := s.clock().UTC()
			if err := s.registry.Inventory().Restore(ctx, stockAdjustments(order.Lines), now); err != nil {
				return mapRepositoryError(err, ErrItemNotFound)
			}
		}
		if err := s.registry.Orders().Delete(ctx, order.ID); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "order_deleted", map[string]any{"orderId": orderID})
	return nil
}

// MarkPaid performs the conditional paid transition. The applied flag is
// false when the order was already paid, which callers treat as success so
// duplicate gateway confirmations stay idempotent.
func (s *orderService) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (Order, bool, error) {
	result, err := s.registry.Orders().MarkPaid(ctx, repositories.MarkPaidRequest{
		OrderID: orderID,
		PaidAt:  paidAt,
	})
	if err != nil {
		return Order{}, false, mapRepositoryError(err, ErrOrderNotFound)
	}
	if result.Applied {
		s.publishEvent(ctx, "order.paid", result.Order)
	}
	return result.Order, result.Applied, nil
}

// publishEvent emits the lifecycle event after commit. Failures are logged
// and swallowed; event delivery never fails the operation.
func (s *orderService) publishEvent(ctx context.Context, eventType string, order Order) {
	if s.events == nil {
		return
	}
	message := OrderEventMessage{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Amount:      order.FinalAmount,
		Locale:      order.NotificationLocale,
		OccurredAt:  s.clock().UTC(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"type":    eventType,
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func orderLinesFromQuote(quote PriceQuote) []OrderLine {
	lines := make([]OrderLine, 0, len(quote.Lines))
	for _, priced := range quote.Lines {
		lines = append(lines, OrderLine{
			ItemID:    priced.ItemID,
			SKU:       priced.SKU,
			Name:      priced.Name,
			Quantity:  priced.Quantity,
			UnitPrice: priced.UnitPrice,
			Total:     priced.LineTotal,
			Pack:      priced.Pack,
		})
	}
	return lines
}

func stockAdjustments(lines []OrderLine) []repositories.StockAdjustment {
	adjustments := make([]repositories.StockAdjustment, 0, len(lines))
	for _, line := range lines {
		adjustments = append(adjustments, repositories.StockAdjustment{
			ItemID:   line.ItemID,
			Quantity: line.Quantity,
		})
	}
	return adjustments
}

func normaliseAddress(address Address) (Address, error) {
	address.Name = strings.TrimSpace(address.Name)
	address.Phone = strings.TrimSpace(address.Phone)
	address.Line1 = strings.TrimSpace(address.Line1)
	address.Line2 = strings.TrimSpace(address.Line2)
	address.City = strings.TrimSpace(address.City)
	address.State = strings.TrimSpace(address.State)
	address.PostalCode = strings.TrimSpace(address.PostalCode)
	address.Notes = textutil.SanitizeFreeText(address.Notes, 300)

	var missing []string
	if address.Name == "" {
		missing = append(missing, "name")
	}
	if address.Phone == "" {
		missing = append(missing, "phone")
	}
	if address.Line1 == "" {
		missing = append(missing, "line1")
	}
	if address.City == "" {
		missing = append(missing, "city")
	}
	if address.PostalCode == "" {
		missing = append(missing, "postalCode")
	}
	if len(missing) > 0 {
		return Address{}, fmt.Errorf("%w: shipping address missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return address, nil
}
