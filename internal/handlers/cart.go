package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenbasket/api/internal/platform/auth"
	"github.com/greenbasket/api/internal/services"
)

// CartHandlers exposes the authenticated cart endpoints.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing authentication before
// invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addLine)
	r.Put("/items/{lineId}", h.updateLine)
	r.Delete("/items/{lineId}", h.removeLine)
	r.Delete("/", h.clearCart)
}

type cartLinePayload struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	PackSize  int    `json:"pack_size,omitempty"`
	LineTotal int64  `json:"line_total"`
}

type cartPayload struct {
	UserID    string            `json:"user_id"`
	Lines     []cartLinePayload `json:"lines"`
	Total     int64             `json:"total"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		UserID: cart.UserID,
		Lines:  make([]cartLinePayload, 0, len(cart.Lines)),
		Total:  cart.Total,
	}
	if !cart.UpdatedAt.IsZero() {
		updatedAt := cart.UpdatedAt.UTC()
		payload.UpdatedAt = &updatedAt
	}
	for _, line := range cart.Lines {
		item := cartLinePayload{
			ID:        line.ID,
			ItemID:    line.ItemID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.UnitPrice * int64(line.Quantity),
		}
		if line.Pack != nil {
			item.PackSize = line.Pack.Size
		}
		payload.Lines = append(payload.Lines, item)
	}
	return payload
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	cart, err := h.carts.Get(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

type addCartLineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	PackSize int    `json:"pack_size,omitempty"`
}

func (h *CartHandlers) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addCartLineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cart, err := h.carts.AddLine(ctx, services.AddCartLineCommand{
		UserID:   identity.UID,
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		PackSize: req.PackSize,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

type updateCartLineRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) updateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateCartLineRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cart, err := h.carts.UpdateLine(ctx, services.UpdateCartLineCommand{
		UserID:   identity.UID,
		LineID:   chi.URLParam(r, "lineId"),
		Quantity: req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveLine(ctx, identity.UID, chi.URLParam(r, "lineId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}
