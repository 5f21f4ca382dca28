package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/greenbasket/api/internal/domain"
	"github.com/greenbasket/api/internal/platform/auth"
	"github.com/greenbasket/api/internal/platform/httpx"
	"github.com/greenbasket/api/internal/platform/pagination"
	"github.com/greenbasket/api/internal/services"
)

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

var orderListOptions = pagination.Options{
	DefaultPageSize: 20,
	MaxPageSize:     100,
}

// NewOrderHandlers constructs handlers enforcing authentication before
// invoking the order service.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Put("/{orderId}/status", h.updateStatus)
	r.Put("/{orderId}/cancel", h.cancelOrder)
	r.Delete("/{orderId}", h.deleteOrder)
}

type addressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func (p addressPayload) toDomain() services.Address {
	return services.Address{
		Name:       p.Name,
		Phone:      p.Phone,
		Line1:      p.Line1,
		Line2:      p.Line2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Notes:      p.Notes,
	}
}

func addressFromDomain(a services.Address) addressPayload {
	return addressPayload{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Notes:      a.Notes,
	}
}

type orderLinePayload struct {
	ItemID    string `json:"item_id"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
	PackSize  int    `json:"pack_size,omitempty"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	UserID          string             `json:"user_id"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"payment_status"`
	PaymentMethod   string             `json:"payment_method"`
	Lines           []orderLinePayload `json:"lines"`
	TotalAmount     int64              `json:"total_amount"`
	Discount        int64              `json:"discount"`
	ShippingCost    int64              `json:"shipping_cost"`
	FinalAmount     int64              `json:"final_amount"`
	CouponCode      string             `json:"coupon_code,omitempty"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	Locale          string             `json:"locale,omitempty"`
	CancelReason    string             `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	ShippedAt       *time.Time         `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time         `json:"delivered_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		Number:          order.Number,
		UserID:          order.UserID,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   string(order.PaymentMethod),
		Lines:           make([]orderLinePayload, 0, len(order.Lines)),
		TotalAmount:     order.TotalAmount,
		Discount:        order.Discount,
		ShippingCost:    order.ShippingCost,
		FinalAmount:     order.FinalAmount,
		ShippingAddress: addressFromDomain(order.ShippingAddress),
		Locale:          order.NotificationLocale,
		CancelledAt:     order.CancelledAt,
		PaidAt:          order.PaidAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if order.CouponCode != nil {
		payload.CouponCode = *order.CouponCode
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	for _, line := range order.Lines {
		item := orderLinePayload{
			ItemID:    line.ItemID,
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		}
		if line.Pack != nil {
			item.PackSize = line.Pack.Size
		}
		payload.Lines = append(payload.Lines, item)
	}
	return payload
}

type createOrderRequest struct {
	PaymentMethod   string         `json:"payment_method"`
	ShippingAddress addressPayload `json:"shipping_address"`
	CouponCode      string         `json:"coupon_code,omitempty"`
	Locale          string         `json:"locale,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		UserID:          identity.UID,
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		ShippingAddress: req.ShippingAddress.toDomain(),
		CouponCode:      req.CouponCode,
		Locale:          req.Locale,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, orderListOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.Validation(err.Error()))
		return
	}

	query := services.ListOrdersQuery{
		UserID:    identity.UID,
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		query.Status = strings.Split(status, ",")
	}

	// Admins may list any user's orders, or all orders with no user filter.
	if identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		query.UserID = strings.TrimSpace(r.URL.Query().Get("userId"))
		if from, ok := parseTimeParam(r, "from"); ok {
			query.From = from
		}
		if to, ok := parseTimeParam(r, "to"); ok {
			query.To = to
		}
	}

	page, err := h.orders.List(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	response := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		response.Orders = append(response.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func parseTimeParam(r *http.Request, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderId"), identity.UID, identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

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

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderId"),
		UserID:  identity.UID,
		IsAdmin: identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin),
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	if err := h.orders.Delete(ctx, chi.URLParam(r, "orderId")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusNoContent, nil)
}
