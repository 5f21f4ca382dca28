package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenbasket/api/internal/services"
)

// CatalogHandlers exposes read-only catalog and stock lookups.
type CatalogHandlers struct {
	catalog   services.CatalogService
	inventory services.InventoryService
}

// NewCatalogHandlers constructs the catalog lookup handlers.
func NewCatalogHandlers(catalog services.CatalogService, inventory services.InventoryService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, inventory: inventory}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/items/{itemId}", h.getItem)
	r.Get("/items/{itemId}/stock", h.getStock)
}

type packOptionPayload struct {
	Size           int     `json:"size"`
	Price          *int64  `json:"price,omitempty"`
	SavingsPercent float64 `json:"savings_percent,omitempty"`
}

type catalogItemPayload struct {
	ID            string             `json:"id"`
	SKU           string             `json:"sku"`
	Name          string             `json:"name"`
	CategoryID    string             `json:"category_id,omitempty"`
	Price         int64              `json:"price"`
	DiscountPrice *int64             `json:"discount_price,omitempty"`
	Stock         int                `json:"stock"`
	FreeShipping  bool               `json:"free_shipping"`
	Pack          *packOptionPayload `json:"pack,omitempty"`
}

func (h *CatalogHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := h.catalog.GetItem(ctx, chi.URLParam(r, "itemId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := catalogItemPayload{
		ID:            item.ID,
		SKU:           item.SKU,
		Name:          item.Name,
		CategoryID:    item.CategoryID,
		Price:         item.Price,
		DiscountPrice: item.DiscountPrice,
		Stock:         item.Stock,
		FreeShipping:  item.FreeShipping,
	}
	if item.Pack != nil {
		payload.Pack = &packOptionPayload{
			Size:           item.Pack.Size,
			Price:          item.Pack.Price,
			SavingsPercent: item.Pack.SavingsPercent,
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type stockPayload struct {
	ItemID string `json:"item_id"`
	OnHand int    `json:"on_hand"`
}

func (h *CatalogHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stock, err := h.inventory.Get(ctx, chi.URLParam(r, "itemId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockPayload{
		ItemID: stock.ItemID,
		OnHand: stock.OnHand,
	})
}
