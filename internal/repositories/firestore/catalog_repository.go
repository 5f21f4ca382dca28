package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/greenbasket/api/internal/domain"
	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
)

const catalogCollection = "catalog_items"

// CatalogRepository reads the item snapshot consumed by pricing. Catalog
// writes happen through a separate admin surface, so this repository stays
// read-only.
type CatalogRepository struct {
	provider *pfirestore.Provider
}

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{provider: provider}, nil
}

// GetItem loads a single catalog item.
func (r *CatalogRepository) GetItem(ctx context.Context, itemID string) (domain.CatalogItem, error) {
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.CatalogItem{}, pfirestore.NewNotFoundError("catalog", errors.New("item id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CatalogItem{}, err
	}

	ref := client.Collection(catalogCollection).Doc(id)
	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.CatalogItem{}, pfirestore.WrapError("catalog.getItem", err)
	}

	var item domain.CatalogItem
	if err := snap.DataTo(&item); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("catalog decode %s: %w", id, err)
	}
	if item.ID == "" {
		item.ID = id
	}
	return item, nil
}

// GetItems loads the snapshot for a set of item ids. Missing documents are
// omitted rather than failing the whole batch; callers decide whether an
// absent item is an error.
func (r *CatalogRepository) GetItems(ctx context.Context, itemIDs []string) (domain.CatalogSnapshot, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(itemIDs))
	refs := make([]*firestore.DocumentRef, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		id := strings.TrimSpace(itemID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(catalogCollection).Doc(id))
	}

	snapshot := make(domain.CatalogSnapshot, len(refs))
	if len(refs) == 0 {
		return snapshot, nil
	}

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		snaps, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, pfirestore.WrapError("catalog.getItems", err)
	}

	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var item domain.CatalogItem
		if err := snap.DataTo(&item); err != nil {
			return nil, fmt.Errorf("catalog decode %s: %w", snap.Ref.ID, err)
		}
		if item.ID == "" {
			item.ID = snap.Ref.ID
		}
		snapshot[snap.Ref.ID] = item
	}
	return snapshot, nil
}
