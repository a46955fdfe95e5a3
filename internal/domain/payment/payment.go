// Package payment opens gateway payment sessions and verifies payments
// reported by clients against the gateway before any order is reconciled.
package payment

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrGatewayUnavailable is returned when the gateway cannot be reached,
// rejects our credentials, or times out.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// SessionRequest asks the gateway for a payment session covering a
// server-computed amount.
type SessionRequest struct {
	// OrderID is passed to the gateway as receipt / idempotency key.
	OrderID string
	// Amount is in currency minor units.
	Amount   int64
	Currency string
}

// Session is a gateway-issued payment session.
type Session struct {
	ID       string
	Provider string
	// ClientSecret is set by gateways whose client SDK needs it (Stripe).
	ClientSecret string
}

// VerifyRequest describes a payment claimed by a client together with the
// expectations recorded on the order.
type VerifyRequest struct {
	SessionID string
	PaymentID string
	// Signature is the gateway-issued signature relayed by the client, if
	// the gateway uses one.
	Signature string
	Amount    int64
	Currency  string
}

// Verification is the gateway's verdict on a claimed payment.
type Verification struct {
	Verified bool
	// Reason explains a negative verdict for logs.
	Reason string
}

// Gateway is a third-party payment processor.
type Gateway interface {
	Name() string
	PublicKey() string
	OpenSession(ctx context.Context, req SessionRequest) (Session, error)
	// Verify asks the gateway whether the payment completed for the session.
	// A definite "no" is a Verification with Verified=false and a nil error.
	Verify(ctx context.Context, req VerifyRequest) (Verification, error)
}
