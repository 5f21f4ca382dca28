package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
	"github.com/greenbasket/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface and provides the shared unit of work.
type Registry struct {
	provider *pfirestore.Provider

	carts    *CartRepository
	orders   *OrderRepository
	coupons  *CouponRepository
	claims   *CouponClaimRepository
	stocks   *InventoryRepository
	payments *PaymentRecordRepository
	catalog  *CatalogRepository
	counters *CounterRepository
}

// NewRegistry wires the repository set against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	return &Registry{
		provider: provider,
		carts:    &CartRepository{provider: provider},
		orders:   &OrderRepository{provider: provider},
		coupons:  &CouponRepository{provider: provider},
		claims:   &CouponClaimRepository{provider: provider},
		stocks:   &InventoryRepository{provider: provider},
		payments: &PaymentRecordRepository{provider: provider},
		catalog:  &CatalogRepository{provider: provider},
		counters: &CounterRepository{provider: provider},
	}, nil
}

// Close releases the underlying client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Carts() repositories.CartRepository             { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository           { return r.orders }
func (r *Registry) Coupons() repositories.CouponRepository         { return r.coupons }
func (r *Registry) CouponClaims() repositories.CouponClaimRepository {
	return r.claims
}
func (r *Registry) Inventory() repositories.InventoryRepository { return r.stocks }
func (r *Registry) PaymentRecords() repositories.PaymentRecordRepository {
	return r.payments
}
func (r *Registry) Catalog() repositories.CatalogRepository   { return r.catalog }
func (r *Registry) Counters() repositories.CounterRepository  { return r.counters }

// RunInTx executes fn inside a single Firestore transaction. The transaction
// is carried on the context so nested repository calls join it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := pfirestore.TxFromContext(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.ContextWithTx(ctx, tx))
	})
}
