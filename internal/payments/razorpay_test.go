package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

type stubOrderAPI struct {
	createFn func(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	received map[string]interface{}
}

func (s *stubOrderAPI) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	s.received = data
	if s.createFn != nil {
		return s.createFn(data, extraHeaders)
	}
	return map[string]interface{}{"id": "order_stub", "amount": float64(100)}, nil
}

func newTestGateway(t *testing.T, orders razorpayOrderAPI) *RazorpayGateway {
	t.Helper()
	gateway, err := NewRazorpayGateway(RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		Orders:    orders,
	})
	if err != nil {
		t.Fatalf("NewRazorpayGateway returned error: %v", err)
	}
	return gateway
}

func signPayload(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNewRazorpayGatewayRequiresCredentials(t *testing.T) {
	if _, err := NewRazorpayGateway(RazorpayConfig{KeyID: "key"}); err == nil {
		t.Fatalf("expected error without key secret")
	}
	if _, err := NewRazorpayGateway(RazorpayConfig{KeySecret: "secret"}); err == nil {
		t.Fatalf("expected error without key id")
	}
}

func TestCreateIntent(t *testing.T) {
	orders := &stubOrderAPI{
		createFn: func(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
			return map[string]interface{}{
				"id":       "order_abc123",
				"amount":   float64(250000),
				"currency": "INR",
			}, nil
		},
	}
	gateway := newTestGateway(t, orders)

	intent, err := gateway.CreateIntent(context.Background(), IntentRequest{
		Amount:   250000,
		Currency: "inr",
		Receipt:  "ORD-1700000000000-123",
		Notes:    map[string]string{"orderId": "01HZX"},
	})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}

	if intent.GatewayOrderID != "order_abc123" {
		t.Fatalf("unexpected gateway order id: %s", intent.GatewayOrderID)
	}
	if intent.Amount != 250000 {
		t.Fatalf("unexpected amount: %d", intent.Amount)
	}
	if intent.Currency != "INR" {
		t.Fatalf("expected currency normalised to INR, got %s", intent.Currency)
	}

	if orders.received["amount"] != int64(250000) {
		t.Fatalf("expected amount forwarded to gateway, got %v", orders.received["amount"])
	}
	if orders.received["currency"] != "INR" {
		t.Fatalf("expected upper-case currency, got %v", orders.received["currency"])
	}
	if orders.received["receipt"] != "ORD-1700000000000-123" {
		t.Fatalf("expected receipt forwarded, got %v", orders.received["receipt"])
	}
}

func TestCreateIntentGatewayFailure(t *testing.T) {
	orders := &stubOrderAPI{
		createFn: func(map[string]interface{}, map[string]string) (map[string]interface{}, error) {
			return nil, errors.New("BAD_REQUEST_ERROR")
		},
	}
	gateway := newTestGateway(t, orders)

	_, err := gateway.CreateIntent(context.Background(), IntentRequest{Amount: 100, Currency: "INR"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestCreateIntentMissingOrderID(t *testing.T) {
	orders := &stubOrderAPI{
		createFn: func(map[string]interface{}, map[string]string) (map[string]interface{}, error) {
			return map[string]interface{}{"amount": float64(100)}, nil
		},
	}
	gateway := newTestGateway(t, orders)

	_, err := gateway.CreateIntent(context.Background(), IntentRequest{Amount: 100, Currency: "INR"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable for malformed response, got %v", err)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	gateway := newTestGateway(t, &stubOrderAPI{})

	if _, err := gateway.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "INR"}); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if _, err := gateway.CreateIntent(context.Background(), IntentRequest{Amount: 100}); err == nil {
		t.Fatalf("expected error for missing currency")
	}
}

func TestVerifySignature(t *testing.T) {
	gateway := newTestGateway(t, &stubOrderAPI{})

	valid := signPayload("rzp_test_secret", "order_abc", "pay_def")
	if !gateway.VerifySignature("order_abc", "pay_def", valid) {
		t.Fatalf("expected valid signature to verify")
	}

	if gateway.VerifySignature("order_abc", "pay_def", signPayload("wrong-secret", "order_abc", "pay_def")) {
		t.Fatalf("signature from wrong secret must not verify")
	}
	if gateway.VerifySignature("order_other", "pay_def", valid) {
		t.Fatalf("signature over different order must not verify")
	}
	if gateway.VerifySignature("order_abc", "pay_def", "") {
		t.Fatalf("empty signature must not verify")
	}
	if gateway.VerifySignature("", "pay_def", valid) {
		t.Fatalf("empty order id must not verify")
	}
}
