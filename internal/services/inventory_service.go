package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/greenbasket/api/internal/repositories"
)

// InventoryServiceDeps wires the inventory service dependencies.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Clock     Clock
	Logger    Logger
}

type inventoryService struct {
	inventory repositories.InventoryRepository
	clock     Clock
	logger    Logger
}

// NewInventoryService constructs the stock reconciliation service.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service requires inventory repository")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryService{inventory: deps.Inventory, clock: clock, logger: logger}, nil
}

func validateAdjustments(adjustments []repositories.StockAdjustment) error {
	if len(adjustments) == 0 {
		return fmt.Errorf("%w: no stock adjustments supplied", ErrValidation)
	}
	for _, adjustment := range adjustments {
		if adjustment.ItemID == "" {
			return fmt.Errorf("%w: stock adjustment missing item id", ErrValidation)
		}
		if adjustment.Quantity <= 0 {
			return fmt.Errorf("%w: stock adjustment for %s must be positive", ErrValidation, adjustment.ItemID)
		}
	}
	return nil
}

func (s *inventoryService) Decrement(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	if err := validateAdjustments(adjustments); err != nil {
		return err
	}
	if err := s.inventory.Decrement(ctx, adjustments, s.clock().UTC()); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
		}
		return mapRepositoryError(err, ErrItemNotFound)
	}
	s.logger(ctx, "stock_decremented", map[string]any{"items": len(adjustments)})
	return nil
}

func (s *inventoryService) Restore(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	if err := validateAdjustments(adjustments); err != nil {
		return err
	}
	if err := s.inventory.Restore(ctx, adjustments, s.clock().UTC()); err != nil {
		return mapRepositoryError(err, ErrItemNotFound)
	}
	s.logger(ctx, "stock_restored", map[string]any{"items": len(adjustments)})
	return nil
}

func (s *inventoryService) Get(ctx context.Context, itemID string) (Stock, error) {
	if itemID == "" {
		return Stock{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}
	stock, err := s.inventory.Get(ctx, itemID)
	if err != nil {
		return Stock{}, mapRepositoryError(err, ErrItemNotFound)
	}
	return stock, nil
}
