// Package stripe adapts Stripe PaymentIntents to the payment.Gateway
// contract.
package stripe

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/xenking/fruitsmith-checkout/internal/domain/payment"
)

// Name identifies the gateway on persisted orders.
const Name = "stripe"

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Config configures the Gateway.
type Config struct {
	SecretKey      string
	PublishableKey string
	Backends       *stripe.Backends

	intents paymentIntentAPI
}

var _ payment.Gateway = (*Gateway)(nil)

// Gateway opens one PaymentIntent per order and verifies payments by
// retrieving the intent from Stripe.
type Gateway struct {
	publishableKey string
	intents        paymentIntentAPI
}

// New creates a Stripe gateway.
func New(cfg Config) (*Gateway, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" && cfg.intents == nil {
		return nil, errors.New("stripe: secret key is required")
	}

	intents := cfg.intents
	if intents == nil {
		intents = client.New(secret, cfg.Backends).PaymentIntents
	}
	return &Gateway{
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		intents:        intents,
	}, nil
}

// Name implements payment.Gateway.
func (g *Gateway) Name() string { return Name }

// PublicKey returns the publishable key for Stripe.js.
func (g *Gateway) PublicKey() string { return g.publishableKey }

// OpenSession creates a PaymentIntent. The order id is the idempotency key,
// so a retried creation reuses the same intent.
func (g *Gateway) OpenSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.OrderID)
	params.AddMetadata("order_id", req.OrderID)

	intent, err := g.intents.New(params)
	if err != nil {
		return payment.Session{}, errors.Wrap(err, "stripe: create payment intent")
	}
	return payment.Session{
		ID:           intent.ID,
		Provider:     Name,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// Verify retrieves the intent and accepts the payment only when it
// succeeded for the expected amount and the reported id is the intent or its
// latest charge.
func (g *Gateway) Verify(ctx context.Context, req payment.VerifyRequest) (payment.Verification, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	intent, err := g.intents.Get(req.SessionID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return payment.Verification{Reason: "payment intent not found"}, nil
		}
		return payment.Verification{}, errors.Wrap(err, "stripe: get payment intent")
	}
	return checkIntent(intent, req), nil
}

func checkIntent(intent *stripe.PaymentIntent, req payment.VerifyRequest) payment.Verification {
	chargeID := ""
	if intent.LatestCharge != nil {
		chargeID = intent.LatestCharge.ID
	}
	if req.PaymentID != intent.ID && req.PaymentID != chargeID {
		return payment.Verification{Reason: "payment does not belong to the intent"}
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return payment.Verification{Reason: "payment intent status " + string(intent.Status)}
	}
	if intent.Amount != req.Amount {
		return payment.Verification{Reason: "amount mismatch"}
	}
	if !strings.EqualFold(string(intent.Currency), req.Currency) {
		return payment.Verification{Reason: "currency mismatch"}
	}
	return payment.Verification{Verified: true}
}
