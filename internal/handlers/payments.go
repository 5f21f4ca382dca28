package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenbasket/api/internal/platform/auth"
	"github.com/greenbasket/api/internal/services"
)

// PaymentHandlers exposes the payment intent and verification endpoints.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs handlers enforcing authentication before
// invoking the payment service.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/intent", h.createIntent)
	r.Post("/verify", h.verifyPayment)
}

type createIntentRequest struct {
	OrderID  string `json:"order_id"`
	Provider string `json:"provider,omitempty"`
}

type paymentIntentResponse struct {
	OrderID      string `json:"order_id"`
	Reference    string `json:"reference"`
	Provider     string `json:"provider"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ClientSecret string `json:"client_secret,omitempty"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createIntentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	intent, err := h.payments.CreateIntent(ctx, services.CreatePaymentIntentCommand{
		OrderID:  req.OrderID,
		UserID:   identity.UID,
		Provider: req.Provider,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, paymentIntentResponse{
		OrderID:      intent.OrderID,
		Reference:    intent.Reference,
		Provider:     intent.Provider,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		ClientSecret: intent.ClientSecret,
	})
}

type verifyPaymentRequest struct {
	OrderID    string `json:"order_id"`
	OrderRef   string `json:"order_ref"`
	PaymentRef string `json:"payment_ref"`
	Signature  string `json:"signature"`
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.payments.Verify(ctx, services.VerifyPaymentCommand{
		UserID:     identity.UID,
		OrderID:    req.OrderID,
		OrderRef:   req.OrderRef,
		PaymentRef: req.PaymentRef,
		Signature:  req.Signature,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
