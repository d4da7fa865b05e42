package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/darzi-atelier/api/internal/platform/auth"
	"github.com/darzi-atelier/api/internal/platform/httpx"
	"github.com/darzi-atelier/api/internal/services"
)

const (
	maxPaymentBodySize         = 16 * 1024
	defaultPaymentRatePerMin   = 30
	defaultPaymentLimitWindow  = time.Minute
	errorPaymentRateLimitedMsg = "too many payment requests, retry later"
)

type checkoutRequest struct {
	OrderID string `json:"order_id"`
}

type verifyPaymentRequest struct {
	OrderID          string `json:"order_id"`
	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// PaymentHandlers exposes checkout and verification endpoints for
// authenticated customers.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	limiter  rateLimiter
}

// PaymentHandlersOption customises handler construction.
type PaymentHandlersOption func(*PaymentHandlers)

// WithPaymentRateLimit throttles payment endpoints per authenticated user.
func WithPaymentRateLimit(perMinute int) PaymentHandlersOption {
	return func(h *PaymentHandlers) {
		h.limiter = newSimpleRateLimiter(perMinute, defaultPaymentLimitWindow, nil)
	}
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentHandlersOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
		limiter:  newSimpleRateLimiter(defaultPaymentRatePerMin, defaultPaymentLimitWindow, nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/checkout", h.createCheckout)
	r.Post("/verify", h.verifyPayment)
}

func (h *PaymentHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.payments != nil)
	if !ok {
		return
	}
	if !h.allow(ctx, w, access.UserID) {
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	intent, err := h.payments.CreateCheckout(ctx, services.CreateCheckoutCommand{
		Access:  access,
		OrderID: strings.TrimSpace(req.OrderID),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutResponse{Checkout: buildCheckoutPayload(intent)})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.payments != nil)
	if !ok {
		return
	}
	if !h.allow(ctx, w, access.UserID) {
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.payments.Verify(ctx, services.VerifyPaymentCommand{
		Access:           access,
		OrderID:          strings.TrimSpace(req.OrderID),
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *PaymentHandlers) allow(ctx context.Context, w http.ResponseWriter, userID string) bool {
	if h.limiter == nil || h.limiter.Allow(userID) {
		return true
	}
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", errorPaymentRateLimitedMsg, http.StatusTooManyRequests))
	return false
}

type checkoutResponse struct {
	Checkout checkoutPayload `json:"checkout"`
}

type checkoutPayload struct {
	OrderID         string `json:"order_id"`
	GatewayOrderID  string `json:"gateway_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	KeyID           string `json:"key_id"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerContact string `json:"customer_contact,omitempty"`
	Description     string `json:"description,omitempty"`
}

func buildCheckoutPayload(intent services.CheckoutIntent) checkoutPayload {
	return checkoutPayload{
		OrderID:         intent.OrderID,
		GatewayOrderID:  intent.GatewayOrderID,
		Amount:          intent.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(intent.Currency)),
		KeyID:           intent.KeyID,
		CustomerName:    intent.CustomerName,
		CustomerEmail:   intent.CustomerEmail,
		CustomerContact: intent.CustomerContact,
		Description:     intent.Description,
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access denied", http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotApplicable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_applicable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
