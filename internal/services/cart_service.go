package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/repositories"
)

// CartServiceDeps wires the cart service dependencies.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog repositories.CatalogRepository
	Clock   Clock
	IDGen   IDGenerator
	Logger  Logger
}

type cartService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	clock   Clock
	idgen   IDGenerator
	logger  Logger
}

// NewCartService constructs the per-identity cart service.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service requires cart repository")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service requires catalog repository")
	}
	if deps.IDGen == nil {
		return nil, errors.New("cart service requires id generator")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		clock:   clock,
		idgen:   deps.IDGen,
		logger:  logger,
	}, nil
}

// Get returns the caller's cart, or an empty cart when none exists yet.
func (s *cartService) Get(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return Cart{UserID: userID}, nil
		}
		return Cart{}, mapRepositoryError(err, nil)
	}
	return cart, nil
}

// AddLine snapshots the catalog price onto a new line, or merges quantities
// when a line with the same item and pack selection already exists.
func (s *cartService) AddLine(ctx context.Context, cmd AddCartLineCommand) (Cart, error) {
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if strings.TrimSpace(cmd.ItemID) == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrValidation)
	}

	item, err := s.catalog.GetItem(ctx, cmd.ItemID)
	if err != nil {
		return Cart{}, mapRepositoryError(err, ErrItemNotFound)
	}

	var selection *domain.PackSelection
	if cmd.PackSize > 1 {
		if item.Pack == nil || item.Pack.Size != cmd.PackSize {
			return Cart{}, fmt.Errorf("%w: item %s has no pack of size %d", ErrValidation, item.ID, cmd.PackSize)
		}
		selection = &domain.PackSelection{
			Size:           item.Pack.Size,
			SavingsPercent: item.Pack.SavingsPercent,
		}
	}
	unitPrice, err := resolveUnitPrice(item, selection)
	if err != nil {
		return Cart{}, err
	}
	if selection != nil {
		selection.UnitPrice = unitPrice
	}

	cart, err := s.Get(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	merged := false
	for i, line := range cart.Lines {
		if line.ItemID == item.ID && samePack(line.Pack, selection) {
			cart.Lines[i].Quantity += cmd.Quantity
			cart.Lines[i].UnitPrice = unitPrice
			merged = true
			break
		}
	}
	if !merged {
		cart.Lines = append(cart.Lines, CartLine{
			ID:        s.idgen(),
			ItemID:    item.ID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  cmd.Quantity,
			UnitPrice: unitPrice,
			Pack:      selection,
		})
	}

	if item.Stock < cartQuantity(cart, item.ID) {
		return Cart{}, fmt.Errorf("%w: item %s has %d in stock", ErrInsufficientStock, item.ID, item.Stock)
	}

	return s.save(ctx, cart)
}

// UpdateLine replaces the quantity of an existing line.
func (s *cartService) UpdateLine(ctx context.Context, cmd UpdateCartLineCommand) (Cart, error) {
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	cart, err := s.Get(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	index := -1
	for i, line := range cart.Lines {
		if line.ID == cmd.LineID {
			index = i
			break
		}
	}
	if index < 0 {
		return Cart{}, ErrCartLineNotFound
	}

	item, err := s.catalog.GetItem(ctx, cart.Lines[index].ItemID)
	if err != nil {
		return Cart{}, mapRepositoryError(err, ErrItemNotFound)
	}
	cart.Lines[index].Quantity = cmd.Quantity
	if item.Stock < cartQuantity(cart, item.ID) {
		return Cart{}, fmt.Errorf("%w: item %s has %d in stock", ErrInsufficientStock, item.ID, item.Stock)
	}

	return s.save(ctx, cart)
}

// RemoveLine drops one line from the cart.
func (s *cartService) RemoveLine(ctx context.Context, userID string, lineID string) (Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	kept := cart.Lines[:0]
	found := false
	for _, line := range cart.Lines {
		if line.ID == lineID {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return Cart{}, ErrCartLineNotFound
	}
	cart.Lines = kept

	return s.save(ctx, cart)
}

// Clear empties the cart.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if err := s.carts.Clear(ctx, userID, s.clock().UTC()); err != nil {
		return mapRepositoryError(err, nil)
	}
	return nil
}

func (s *cartService) save(ctx context.Context, cart Cart) (Cart, error) {
	cart.Total = 0
	for _, line := range cart.Lines {
		cart.Total += line.UnitPrice * int64(line.Quantity)
	}
	cart.UpdatedAt = s.clock().UTC()
	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, mapRepositoryError(err, nil)
	}
	return cart, nil
}

// cartQuantity sums the units of an item across lines. Quantity is always
// counted in units; a pack selection only affects the unit price.
func cartQuantity(cart Cart, itemID string) int {
	var total int
	for _, line := range cart.Lines {
		if line.ItemID == itemID {
			total += line.Quantity
		}
	}
	return total
}

func samePack(a, b *domain.PackSelection) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Size == b.Size
}
