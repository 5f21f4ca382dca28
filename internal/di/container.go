package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/greenbasket/api/internal/payments"
	"github.com/greenbasket/api/internal/platform/config"
	"github.com/greenbasket/api/internal/repositories"
	"github.com/greenbasket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Catalog   services.CatalogService
	Cart      services.CartService
	Pricing   services.PricingResolver
	Coupons   services.CouponService
	Orders    services.OrderService
	Inventory services.InventoryService
	Payments  services.PaymentService
}

// Deps carries the infrastructure the container wires into the services.
// Production wiring supplies the Firestore registry and Pub/Sub publisher;
// tests can substitute in-memory implementations.
type Deps struct {
	Config   config.Config
	Registry repositories.Registry
	Events   services.OrderEventPublisher
	Payments *payments.Manager
	Verifier *payments.SignatureVerifier
	Archiver services.ReceiptArchiver
	Clock    services.Clock
	IDGen    services.IDGenerator
	Logger   services.Logger
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry
	cfg := deps.Config

	catalogSvc, err := services.NewCatalogService(reg.Catalog())
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Clock:     deps.Clock,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons: reg.Coupons(),
		Claims:  reg.CouponClaims(),
		Catalog: reg.Catalog(),
		Clock:   deps.Clock,
		Logger:  deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = couponSvc

	pricing, err := services.NewPricingResolver(services.PricingResolverDeps{
		Coupons:            couponSvc,
		DefaultShippingFee: cfg.Pricing.DefaultShippingFee,
		Logger:             deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing resolver: %w", err)
	}
	svc.Pricing = pricing

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:   reg.Carts(),
		Catalog: reg.Catalog(),
		Clock:   deps.Clock,
		IDGen:   deps.IDGen,
		Logger:  deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Registry: reg,
		Pricing:  pricing,
		Coupons:  couponSvc,
		Events:   deps.Events,
		Clock:    deps.Clock,
		IDGen:    deps.IDGen,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if deps.Payments != nil && deps.Verifier != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Registry: reg,
			Orders:   orderSvc,
			Manager:  deps.Payments,
			Verifier: deps.Verifier,
			Archiver: deps.Archiver,
			Clock:    deps.Clock,
			IDGen:    deps.IDGen,
			Logger:   deps.Logger,
			Currency: cfg.Pricing.Currency,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	return svc, nil
}
