package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/greenbasket/api/internal/domain"
	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
)

const cartsCollection = "carts"

// CartRepository stores one cart document per identity.
type CartRepository struct {
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{provider: provider}, nil
}

func (r *CartRepository) docRef(ctx context.Context, userID string) (*firestore.DocumentRef, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, pfirestore.NewNotFoundError("carts", errors.New("user id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(cartsCollection).Doc(id), nil
}

// Get loads the cart owned by the identity.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	ref, err := r.docRef(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.get", err)
	}

	var cart domain.Cart
	if err := snap.DataTo(&cart); err != nil {
		return domain.Cart{}, fmt.Errorf("carts decode %s: %w", userID, err)
	}
	if cart.UserID == "" {
		cart.UserID = strings.TrimSpace(userID)
	}
	return cart, nil
}

// Save upserts the cart document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ref, err := r.docRef(ctx, cart.UserID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("carts.save", tx.Set(ref, cart))
	}
	_, err = ref.Set(ctx, cart)
	return pfirestore.WrapError("carts.save", err)
}

// Clear empties the cart lines but keeps the document, matching the
// cleared-not-deleted lifecycle after order creation.
func (r *CartRepository) Clear(ctx context.Context, userID string, now time.Time) error {
	ref, err := r.docRef(ctx, userID)
	if err != nil {
		return err
	}
	cleared := domain.Cart{
		UserID:    strings.TrimSpace(userID),
		Lines:     nil,
		Total:     0,
		UpdatedAt: now.UTC(),
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("carts.clear", tx.Set(ref, cleared))
	}
	_, err = ref.Set(ctx, cleared)
	return pfirestore.WrapError("carts.clear", err)
}
