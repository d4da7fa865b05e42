package payments

import (
	"context"
	"errors"
)

// ErrGatewayUnavailable is returned when the PSP rejects or fails a request.
var ErrGatewayUnavailable = errors.New("payments: gateway unavailable")

// IntentRequest captures the payload required to open a gateway order for an
// online payment. Amount is in the smallest currency unit.
type IntentRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Intent represents the gateway order the client completes checkout against.
type Intent struct {
	GatewayOrderID string
	Amount         int64
	Currency       string
	Raw            map[string]any
}

// Gateway defines the contract payment adapters implement. Signature
// verification happens locally with the key secret, so the secret never
// travels past this package.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	KeyID() string
}
