package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/greenbasket/api/internal/domain"
	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
	"github.com/greenbasket/api/internal/repositories"
)

const inventoryCollection = "inventory"

// InventoryRepository implements stock decrement/restore on Firestore. All
// adjustments run inside a transaction, either the ambient one carried on
// the context or a dedicated one opened here.
type InventoryRepository struct {
	provider *pfirestore.Provider
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{provider: provider}, nil
}

// Decrement removes stock for each adjustment, rejecting any line that would
// drive a count negative. The error carries the remaining quantity so
// callers can surface an actionable message.
func (r *InventoryRepository) Decrement(ctx context.Context, adjustments []repositories.StockAdjustment, now time.Time) error {
	return r.adjust(ctx, adjustments, now, false)
}

// Restore adds stock back for each adjustment.
func (r *InventoryRepository) Restore(ctx context.Context, adjustments []repositories.StockAdjustment, now time.Time) error {
	return r.adjust(ctx, adjustments, now, true)
}

func (r *InventoryRepository) adjust(ctx context.Context, adjustments []repositories.StockAdjustment, now time.Time, restore bool) error {
	aggregated, err := aggregateAdjustments(adjustments)
	if err != nil {
		return err
	}
	if len(aggregated) == 0 {
		return nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	apply := func(tx *firestore.Transaction) error {
		type pending struct {
			ref *firestore.DocumentRef
			doc domain.Stock
		}
		writes := make([]pending, 0, len(aggregated))

		// Firestore requires all transaction reads before any write.
		for _, adj := range aggregated {
			ref := client.Collection(inventoryCollection).Doc(adj.ItemID)
			snap, err := tx.Get(ref)
			if err != nil {
				return pfirestore.WrapError("inventory.adjust", err)
			}
			var stock domain.Stock
			if err := snap.DataTo(&stock); err != nil {
				return fmt.Errorf("inventory decode %s: %w", adj.ItemID, err)
			}
			if stock.ItemID == "" {
				stock.ItemID = adj.ItemID
			}

			if restore {
				stock.OnHand += adj.Quantity
			} else {
				if stock.OnHand < adj.Quantity {
					return pfirestore.NewConflictError("inventory.adjust",
						fmt.Errorf("item %s: only %d in stock, requested %d", adj.ItemID, stock.OnHand, adj.Quantity))
				}
				stock.OnHand -= adj.Quantity
			}
			stock.UpdatedAt = now.UTC()
			writes = append(writes, pending{ref: ref, doc: stock})
		}

		for _, w := range writes {
			if err := tx.Set(w.ref, w.doc); err != nil {
				return pfirestore.WrapError("inventory.adjust", err)
			}
		}
		return nil
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return apply(tx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return apply(tx)
	})
}

// Get loads the stock document for an item.
func (r *InventoryRepository) Get(ctx context.Context, itemID string) (domain.Stock, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.Stock{}, pfirestore.NewNotFoundError("inventory", errors.New("item id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Stock{}, err
	}

	ref := client.Collection(inventoryCollection).Doc(id)
	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Stock{}, pfirestore.WrapError("inventory.get", err)
	}

	var stock domain.Stock
	if err := snap.DataTo(&stock); err != nil {
		return domain.Stock{}, fmt.Errorf("inventory decode %s: %w", id, err)
	}
	if stock.ItemID == "" {
		stock.ItemID = id
	}
	return stock, nil
}

func aggregateAdjustments(adjustments []repositories.StockAdjustment) ([]repositories.StockAdjustment, error) {
	byItem := make(map[string]int, len(adjustments))
	for _, adj := range adjustments {
		itemID := strings.TrimSpace(adj.ItemID)
		if itemID == "" {
			return nil, pfirestore.NewConflictError("inventory.adjust", errors.New("adjustment item id is required"))
		}
		if adj.Quantity <= 0 {
			return nil, pfirestore.NewConflictError("inventory.adjust", fmt.Errorf("quantity for %s must be positive", itemID))
		}
		byItem[itemID] += adj.Quantity
	}

	result := make([]repositories.StockAdjustment, 0, len(byItem))
	for itemID, qty := range byItem {
		result = append(result, repositories.StockAdjustment{ItemID: itemID, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ItemID < result[j].ItemID })
	return result, nil
}
