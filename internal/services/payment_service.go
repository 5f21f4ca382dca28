package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/payments"
	"github.com/greenbasket/api/internal/platform/textutil"
	"github.com/greenbasket/api/internal/repositories"
)

// PaymentVerifier checks a gateway confirmation signature. It matches the
// payments package verifier.
type PaymentVerifier interface {
	Verify(orderRef, paymentRef, signature string) error
}

// PaymentProviderManager opens gateway orders. It matches the payments
// package manager.
type PaymentProviderManager interface {
	CreateOrder(ctx context.Context, provider string, req payments.CreateOrderRequest) (payments.GatewayOrder, error)
}

// PaymentServiceDeps wires the payment service dependencies.
type PaymentServiceDeps struct {
	Registry repositories.Registry
	Orders   OrderService
	Manager  PaymentProviderManager
	Verifier PaymentVerifier
	Archiver ReceiptArchiver
	Clock    Clock
	IDGen    IDGenerator
	Logger   Logger
	Currency string
}

type paymentService struct {
	registry repositories.Registry
	orders   OrderService
	manager  PaymentProviderManager
	verifier PaymentVerifier
	archiver ReceiptArchiver
	clock    Clock
	idgen    IDGenerator
	logger   Logger
	currency string
}

// NewPaymentService constructs the payment verification service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Registry == nil {
		return nil, errors.New("payment service requires repository registry")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service requires order service")
	}
	if deps.Manager == nil {
		return nil, errors.New("payment service requires provider manager")
	}
	if deps.Verifier == nil {
		return nil, errors.New("payment service requires signature verifier")
	}
	if deps.IDGen == nil {
		return nil, errors.New("payment service requires id generator")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("payment service requires currency")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		registry: deps.Registry,
		orders:   deps.Orders,
		manager:  deps.Manager,
		verifier: deps.Verifier,
		archiver: deps.Archiver,
		clock:    clock,
		idgen:    deps.IDGen,
		logger:   logger,
		currency: currency,
	}, nil
}

// CreateIntent opens a gateway order for the payable amount and records the
// reference on both the order and a payment record.
func (s *paymentService) CreateIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	order, err := s.registry.Orders().FindByID(ctx, cmd.OrderID)
	if err != nil {
		return PaymentIntent{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if order.UserID != cmd.UserID {
		return PaymentIntent{}, ErrNotOrderOwner
	}
	if order.PaymentMethod != domain.PaymentMethodGateway {
		return PaymentIntent{}, fmt.Errorf("%w: order is %s", ErrValidation, order.PaymentMethod)
	}
	if order.Terminal() || order.PaymentStatus != domain.PaymentStatusPending {
		return PaymentIntent{}, fmt.Errorf("%w: payment status is %s", ErrPaymentNotOpen, order.PaymentStatus)
	}

	gatewayOrder, err := s.manager.CreateOrder(ctx, cmd.Provider, payments.CreateOrderRequest{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Amount:      order.FinalAmount,
		Currency:    s.currency,
		CustomerID:  order.UserID,
		Notes: textutil.NormalizeStringMap(map[string]string{
			"orderNumber": order.Number,
			"customer":    order.ShippingAddress.Name,
		}),
	})
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) || errors.Is(err, payments.ErrNotConfigured) {
			return PaymentIntent{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return PaymentIntent{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	now := s.clock().UTC()
	order.GatewayOrderRef = &gatewayOrder.Reference
	order.UpdatedAt = now
	if err := s.registry.Orders().Update(ctx, order); err != nil {
		return PaymentIntent{}, mapRepositoryError(err, ErrOrderNotFound)
	}

	record := PaymentRecord{
		ID:              s.idgen(),
		OrderID:         order.ID,
		Provider:        gatewayOrder.Provider,
		GatewayOrderRef: gatewayOrder.Reference,
		Status:          domain.PaymentRecordCreated,
		Amount:          order.FinalAmount,
		Currency:        s.currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.registry.PaymentRecords().Insert(ctx, record); err != nil {
		return PaymentIntent{}, mapRepositoryError(err, nil)
	}

	s.logger(ctx, "payment_intent_created", map[string]any{
		"orderId":  order.ID,
		"provider": gatewayOrder.Provider,
		"ref":      gatewayOrder.Reference,
	})
	return PaymentIntent{
		OrderID:      order.ID,
		Reference:    gatewayOrder.Reference,
		Provider:     gatewayOrder.Provider,
		Amount:       order.FinalAmount,
		Currency:     s.currency,
		ClientSecret: gatewayOrder.ClientSecret,
	}, nil
}

// Verify checks the gateway confirmation and applies the paid transition.
// The transition is conditional, so replaying the same confirmation returns
// the settled order without touching stock, records, or events again.
func (s *paymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	order, err := s.registry.Orders().FindByID(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if order.UserID != cmd.UserID {
		return Order{}, ErrNotOrderOwner
	}
	if order.GatewayOrderRef == nil || *order.GatewayOrderRef != cmd.OrderRef {
		return Order{}, ErrPaymentRefMismatch
	}

	if err := s.verifier.Verify(cmd.OrderRef, cmd.PaymentRef, cmd.Signature); err != nil {
		s.recordOutcome(ctx, order.ID, cmd, domain.PaymentRecordFailed)
		return Order{}, fmt.Errorf("%w: %v", ErrPaymentSignature, err)
	}

	paid, applied, err := s.orders.MarkPaid(ctx, order.ID, s.clock().UTC())
	if err != nil {
		return Order{}, err
	}

	if applied {
		record := s.recordOutcome(ctx, paid.ID, cmd, domain.PaymentRecordSuccess)
		s.archiveReceipt(ctx, paid, record)
	}
	s.logger(ctx, "payment_verified", map[string]any{
		"orderId": paid.ID,
		"applied": applied,
	})
	return paid, nil
}

// recordOutcome updates the payment record matching the confirmed gateway
// order reference. Record upkeep is reconciliation bookkeeping; failures are
// logged and the verification result stands.
func (s *paymentService) recordOutcome(ctx context.Context, orderID string, cmd VerifyPaymentCommand, status domain.PaymentRecordStatus) PaymentRecord {
	records, err := s.registry.PaymentRecords().ListByOrder(ctx, orderID)
	if err != nil {
		s.logger(ctx, "payment_record_lookup_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return PaymentRecord{}
	}

	var record PaymentRecord
	found := false
	for _, candidate := range records {
		if candidate.GatewayOrderRef == cmd.OrderRef {
			record = candidate
			found = true
			break
		}
	}
	if !found {
		record = PaymentRecord{
			ID:              s.idgen(),
			OrderID:         orderID,
			Provider:        payments.DefaultProviderKey,
			GatewayOrderRef: cmd.OrderRef,
			Currency:        s.currency,
			CreatedAt:       s.clock().UTC(),
		}
		if err := s.registry.PaymentRecords().Insert(ctx, record); err != nil {
			s.logger(ctx, "payment_record_insert_failed", map[string]any{
				"orderId": orderID,
				"error":   err.Error(),
			})
			return PaymentRecord{}
		}
	}

	record.Status = status
	record.GatewayPaymentRef = cmd.PaymentRef
	record.Signature = cmd.Signature
	record.UpdatedAt = s.clock().UTC()
	if err := s.registry.PaymentRecords().Update(ctx, record); err != nil {
		s.logger(ctx, "payment_record_update_failed", map[string]any{
			"orderId": orderID,
			"status":  string(status),
			"error":   err.Error(),
		})
	}
	return record
}

// archiveReceipt stores the settlement receipt. Archive failures never fail
// the capture.
func (s *paymentService) archiveReceipt(ctx context.Context, order Order, record PaymentRecord) {
	if s.archiver == nil {
		return
	}
	if _, err := s.archiver.ArchiveReceipt(ctx, order, record); err != nil {
		s.logger(ctx, "receipt_archive_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}
