package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/payments"
)

type stubManager struct {
	createOrderFn func(ctx context.Context, provider string, req payments.CreateOrderRequest) (payments.GatewayOrder, error)
}

func (m *stubManager) CreateOrder(ctx context.Context, provider string, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
	return m.createOrderFn(ctx, provider, req)
}

type captureArchiver struct {
	mu    sync.Mutex
	calls []string
}

func (a *captureArchiver) ArchiveReceipt(_ context.Context, order Order, _ PaymentRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, order.ID)
	return fmt.Sprintf("receipts/%s.json", order.ID), nil
}

type paymentFixture struct {
	*orderFixture
	payments   PaymentService
	verifier   *payments.SignatureVerifier
	archiver   *captureArchiver
	gatewayReq *payments.CreateOrderRequest
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	base := newOrderFixture(t)

	verifier, err := payments.NewSignatureVerifier("secret-key")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}
	archiver := &captureArchiver{}
	fixture := &paymentFixture{orderFixture: base, verifier: verifier, archiver: archiver}
	manager := &stubManager{
		createOrderFn: func(_ context.Context, _ string, req payments.CreateOrderRequest) (payments.GatewayOrder, error) {
			fixture.gatewayReq = &req
			return payments.GatewayOrder{
				Reference: "gw_" + req.OrderID,
				Provider:  payments.DefaultProviderKey,
				Amount:    req.Amount,
				Currency:  req.Currency,
				Status:    payments.StatusCreated,
			}, nil
		},
	}
	service, err := NewPaymentService(PaymentServiceDeps{
		Registry: base.registry,
		Orders:   base.orders,
		Manager:  manager,
		Verifier: verifier,
		Archiver: archiver,
		Clock:    fixedClock(base.now),
		IDGen:    sequenceIDs("pay"),
		Currency: "INR",
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	fixture.payments = service
	return fixture
}

func (f *paymentFixture) createGatewayOrder(t *testing.T) Order {
	t.Helper()
	f.seedItem("item-1", 500, 5)
	f.seedCart("user-1", CartLine{ID: "line-1", ItemID: "item-1", Quantity: 1})
	order, err := f.orders.Create(context.Background(), CreateOrderCommand{
		UserID:          "user-1",
		PaymentMethod:   domain.PaymentMethodGateway,
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return order
}

func TestCreateIntentStoresReferenceAndRecord(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createGatewayOrder(t)

	intent, err := f.payments.CreateIntent(context.Background(), CreatePaymentIntentCommand{
		OrderID: order.ID,
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.Reference != "gw_"+order.ID {
		t.Fatalf("reference = %q, want gw_%s", intent.Reference, order.ID)
	}
	if intent.Amount != order.FinalAmount || intent.Currency != "INR" {
		t.Fatalf("intent = %+v", intent)
	}

	stored, err := f.orders.Get(context.Background(), order.ID, "user-1", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.GatewayOrderRef == nil || *stored.GatewayOrderRef != intent.Reference {
		t.Fatalf("gateway order ref not stored: %v", stored.GatewayOrderRef)
	}

	records, err := f.registry.records.ListByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("ListByOrder: %v", err)
	}
	if len(records) != 1 || records[0].Status != domain.PaymentRecordCreated {
		t.Fatalf("records = %+v, want one created record", records)
	}

	if f.gatewayReq == nil || f.gatewayReq.Notes["orderNumber"] != order.Number {
		t.Fatalf("gateway notes = %+v, want orderNumber %s", f.gatewayReq, order.Number)
	}
	for key := range f.gatewayReq.Notes {
		if key == "" {
			t.Fatalf("gateway notes carry an empty key: %+v", f.gatewayReq.Notes)
		}
	}
}

func TestCreateIntentRejectsWrongStateAndOwner(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createGatewayOrder(t)

	if _, err := f.payments.CreateIntent(context.Background(), CreatePaymentIntentCommand{OrderID: order.ID, UserID: "user-2"}); !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("other user error = %v, want ErrNotOrderOwner", err)
	}

	if _, _, err := f.orders.MarkPaid(context.Background(), order.ID, f.now); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if _, err := f.payments.CreateIntent(context.Background(), CreatePaymentIntentCommand{OrderID: order.ID, UserID: "user-1"}); !errors.Is(err, ErrPaymentNotOpen) {
		t.Fatalf("settled order error = %v, want ErrPaymentNotOpen", err)
	}
}

func TestVerifyAppliesPaidTransitionOnce(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createGatewayOrder(t)
	intent, err := f.payments.CreateIntent(context.Background(), CreatePaymentIntentCommand{OrderID: order.ID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	signature := f.verifier.Sign(intent.Reference, "pay_123")
	cmd := VerifyPaymentCommand{
		UserID:     "user-1",
		OrderID:    order.ID,
		OrderRef:   intent.Reference,
		PaymentRef: "pay_123",
		Signature:  signature,
	}

	paid, err := f.payments.Verify(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if paid.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", paid.PaymentStatus)
	}
	if paid.Status != domain.OrderStatusProcessing {
		t.Fatalf("order status = %s, want processing", paid.Status)
	}

	records, err := f.registry.records.ListByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("ListByOrder: %v", err)
	}
	if len(records) != 1 || records[0].Status != domain.PaymentRecordSuccess || records[0].GatewayPaymentRef != "pay_123" {
		t.Fatalf("records = %+v, want one success record for pay_123", records)
	}
	if len(f.archiver.calls) != 1 {
		t.Fatalf("receipt archives = %d, want 1", len(f.archiver.calls))
	}

	// Replaying the same confirmation succeeds without new side effects.
	again, err := f.payments.Verify(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if again.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("replay payment status = %s, want paid", again.PaymentStatus)
	}
	if len(f.archiver.calls) != 1 {
		t.Fatalf("receipt archives after replay = %d, want 1", len(f.archiver.calls))
	}
	if got := len(f.events.byType("order.paid")); got != 1 {
		t.Fatalf("order.paid events = %d, want 1", got)
	}
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createGatewayOrder(t)
	intent, err := f.payments.CreateIntent(context.Background(), CreatePaymentIntentCommand{OrderID: order.ID, UserID: "user-1"})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	forged, err := payments.NewSignatureVerifier("wrong-secret")
	if err != nil {
		t.Fatalf("NewSignatureVerifier: %v", err)
	}
	_, err = f.payments.Verify(context.Background(), VerifyPaymentCommand{
		UserID:     "user-1",
		OrderID:    order.ID,
		OrderRef:   intent.Reference,
		PaymentRef: "pay_123",
		Signature:  forged.Sign(intent.Reference, "pay_123"),
	})
	if !errors.Is(err, ErrPaymentSignature) {
		t.Fatalf("error = %v, want ErrPaymentSignature", err)
	}

	stored, err := f.orders.Get(context.Background(), order.ID, "user-1", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("payment status after forged verify = %s, want pending", stored.PaymentStatus)
	}

	records, err := f.registry.records.ListByOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("ListByOrder: %v", err)
	}
	if len(records) != 1 || records[0].Status != domain.PaymentRecordFailed {
		t.Fatalf("records = %+v, want one failed record", records)
	}
}

func TestVerifyRejectsMismatchedOrderRef(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createGatewayOrder(t)
	if _, err := f.payments.CreateIntent(context.Background(), CreatePaymentIntentCommand{OrderID: order.ID, UserID: "user-1"}); err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}

	_, err := f.payments.Verify(context.Background(), VerifyPaymentCommand{
		UserID:     "user-1",
		OrderID:    order.ID,
		OrderRef:   "gw_other",
		PaymentRef: "pay_123",
		Signature:  f.verifier.Sign("gw_other", "pay_123"),
	})
	if !errors.Is(err, ErrPaymentRefMismatch) {
		t.Fatalf("error = %v, want ErrPaymentRefMismatch", err)
	}
}

func TestCreateIntentSurfacesProviderFailure(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.createGatewayOrder(t)

	failing := &stubManager{
		createOrderFn: func(context.Context, string, payments.CreateOrderRequest) (payments.GatewayOrder, error) {
			return payments.GatewayOrder{}, errors.New("gateway timeout")
		},
	}
	service, err := NewPaymentService(PaymentServiceDeps{
		Registry: f.registry,
		Orders:   f.orders,
		Manager:  failing,
		Verifier: f.verifier,
		Clock:    fixedClock(f.now),
		IDGen:    sequenceIDs("pay"),
		Currency: "INR",
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	if _, err := service.CreateIntent(context.Background(), CreatePaymentIntentCommand{OrderID: order.ID, UserID: "user-1"}); !errors.Is(err, ErrPaymentProvider) {
		t.Fatalf("error = %v, want ErrPaymentProvider", err)
	}
}
