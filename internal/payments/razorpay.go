package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayConfig configures the RazorpayGateway.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	Logger    GatewayLogger

	// Orders overrides the SDK order API, primarily for tests.
	Orders razorpayOrderAPI
}

// RazorpayGateway implements Gateway using the Razorpay Orders API.
type RazorpayGateway struct {
	orders    razorpayOrderAPI
	keyID     string
	keySecret string
	logger    GatewayLogger
}

// NewRazorpayGateway constructs a Razorpay-backed Gateway.
func NewRazorpayGateway(cfg RazorpayConfig) (*RazorpayGateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and key secret are required")
	}

	orders := cfg.Orders
	if orders == nil {
		client := razorpay.NewClient(keyID, keySecret)
		orders = client.Order
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayGateway{
		orders:    orders,
		keyID:     keyID,
		keySecret: keySecret,
		logger:    logger,
	}, nil
}

// CreateIntent opens a gateway order for the given amount. The SDK call is
// synchronous and does not accept a context; ctx is honoured for logging only.
func (g *RazorpayGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if g == nil || g.orders == nil {
		return Intent{}, errors.New("razorpay: gateway is not initialised")
	}
	if req.Amount <= 0 {
		return Intent{}, errors.New("razorpay: amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Intent{}, errors.New("razorpay: currency is required")
	}

	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		data["receipt"] = receipt
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := g.orders.Create(data, nil)
	if err != nil {
		g.logger(ctx, "razorpay.order.create.failed", map[string]any{"error": err.Error()})
		return Intent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	orderID, _ := body["id"].(string)
	if orderID == "" {
		g.logger(ctx, "razorpay.order.create.malformed", map[string]any{"keys": mapKeys(body)})
		return Intent{}, fmt.Errorf("%w: response missing order id", ErrGatewayUnavailable)
	}

	intent := Intent{
		GatewayOrderID: orderID,
		Amount:         amountFromResponse(body["amount"], req.Amount),
		Currency:       currency,
		Raw:            body,
	}

	g.logger(ctx, "razorpay.order.created", map[string]any{
		"gateway_order_id": intent.GatewayOrderID,
		"amount":           intent.Amount,
		"currency":         intent.Currency,
	})
	return intent, nil
}

// VerifySignature checks the checkout callback signature against
// HMAC-SHA256(orderID|paymentID) keyed with the secret, in constant time.
func (g *RazorpayGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if g == nil {
		return false
	}
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	signature = strings.TrimSpace(signature)
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// KeyID returns the public key identifier clients embed in the checkout form.
func (g *RazorpayGateway) KeyID() string {
	if g == nil {
		return ""
	}
	return g.keyID
}

func amountFromResponse(raw any, fallback int64) int64 {
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed
		}
	}
	return fallback
}

func mapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
