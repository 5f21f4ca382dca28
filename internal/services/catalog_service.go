package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/repositories"
)

type catalogService struct {
	catalog repositories.CatalogRepository
}

// NewCatalogService constructs the read-only catalog lookup service.
func NewCatalogService(catalog repositories.CatalogRepository) (CatalogService, error) {
	if catalog == nil {
		return nil, errors.New("catalog service requires catalog repository")
	}
	return &catalogService{catalog: catalog}, nil
}

func (s *catalogService) GetItem(ctx context.Context, itemID string) (CatalogItem, error) {
	if itemID == "" {
		return CatalogItem{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return CatalogItem{}, mapRepositoryError(err, ErrItemNotFound)
	}
	return item, nil
}

func (s *catalogService) Snapshot(ctx context.Context, itemIDs []string) (domain.CatalogSnapshot, error) {
	if len(itemIDs) == 0 {
		return domain.CatalogSnapshot{}, nil
	}
	snapshot, err := s.catalog.GetItems(ctx, itemIDs)
	if err != nil {
		return nil, mapRepositoryError(err, ErrItemNotFound)
	}
	return snapshot, nil
}
