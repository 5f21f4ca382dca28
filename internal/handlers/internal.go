package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/repositories"
	"github.com/greenbasket/api/internal/services"
)

// InternalHandlers exposes the service-to-service surface used by
// fulfilment and warehouse systems. Authentication is enforced by the
// router through the OIDC middleware, not per handler.
type InternalHandlers struct {
	orders    services.OrderService
	inventory services.InventoryService
}

// NewInternalHandlers constructs handlers for the internal route group.
func NewInternalHandlers(orders services.OrderService, inventory services.InventoryService) *InternalHandlers {
	return &InternalHandlers{orders: orders, inventory: inventory}
}

// Routes wires the internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Put("/orders/{orderId}/status", h.updateOrderStatus)
	r.Post("/inventory/restock", h.restock)
	r.Get("/inventory/{itemId}", h.getStock)
}

func (h *InternalHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type restockAdjustmentPayload struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type restockRequest struct {
	Adjustments []restockAdjustmentPayload `json:"adjustments"`
}

func (h *InternalHandlers) restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req restockRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	adjustments := make([]repositories.StockAdjustment, 0, len(req.Adjustments))
	for _, adj := range req.Adjustments {
		adjustments = append(adjustments, repositories.StockAdjustment{
			ItemID:   adj.ItemID,
			Quantity: adj.Quantity,
		})
	}

	if err := h.inventory.Restore(ctx, adjustments); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InternalHandlers) getStock(w http.ResponseWriter, r *http.Request) {
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
