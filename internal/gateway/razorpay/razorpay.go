// Package razorpay adapts the Razorpay Orders and Payments APIs to the
// payment.Gateway contract.
package razorpay

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-faster/errors"
	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/xenking/fruitsmith-checkout/internal/domain/payment"
)

// Name identifies the gateway on persisted orders.
const Name = "razorpay"

type ordersAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentsAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Config configures the Gateway.
type Config struct {
	KeyID     string
	KeySecret string
	// Timeout bounds each HTTP request the SDK makes. The SDK call outlives a
	// cancelled context by at most this long. Zero keeps the SDK default of
	// 10s.
	Timeout time.Duration

	orders   ordersAPI
	payments paymentsAPI
}

var _ payment.Gateway = (*Gateway)(nil)

// Gateway opens Razorpay orders and verifies checkout payments by signature
// and by fetching the payment from Razorpay.
type Gateway struct {
	keyID    string
	secret   string
	orders   ordersAPI
	payments paymentsAPI
}

// New creates a Razorpay gateway.
func New(cfg Config) (*Gateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || secret == "" {
		return nil, errors.New("razorpay: key id and key secret are required")
	}

	g := &Gateway{
		keyID:    keyID,
		secret:   secret,
		orders:   cfg.orders,
		payments: cfg.payments,
	}
	if g.orders == nil || g.payments == nil {
		client := razorpay.NewClient(keyID, secret)
		if cfg.Timeout > 0 {
			client.SetTimeout(timeoutSeconds(cfg.Timeout))
		}
		g.orders = client.Order
		g.payments = client.Payment
	}
	return g, nil
}

// Name implements payment.Gateway.
func (g *Gateway) Name() string { return Name }

// PublicKey returns the key id used by Razorpay Checkout.
func (g *Gateway) PublicKey() string { return g.keyID }

// OpenSession creates a Razorpay order for the amount in paise.
func (g *Gateway) OpenSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": strings.ToUpper(req.Currency),
		"receipt":  receipt(req.OrderID),
		"notes": map[string]interface{}{
			"order_id": req.OrderID,
		},
	}

	body, err := call(ctx, func() (map[string]interface{}, error) {
		return g.orders.Create(data, nil)
	})
	if err != nil {
		return payment.Session{}, errors.Wrap(err, "razorpay: create order")
	}

	id, _ := body["id"].(string)
	if id == "" {
		return payment.Session{}, errors.New("razorpay: order response without id")
	}
	return payment.Session{ID: id, Provider: Name}, nil
}

// Verify checks the checkout signature and then confirms with Razorpay that
// the payment belongs to the order and was authorized or captured for the
// expected amount.
func (g *Gateway) Verify(ctx context.Context, req payment.VerifyRequest) (payment.Verification, error) {
	if req.Signature == "" {
		return payment.Verification{Reason: "missing signature"}, nil
	}
	params := map[string]interface{}{
		"razorpay_order_id":   req.SessionID,
		"razorpay_payment_id": req.PaymentID,
	}
	if !utils.VerifyPaymentSignature(params, req.Signature, g.secret) {
		return payment.Verification{Reason: "signature mismatch"}, nil
	}

	body, err := call(ctx, func() (map[string]interface{}, error) {
		return g.payments.Fetch(req.PaymentID, nil, nil)
	})
	if err != nil {
		return payment.Verification{}, errors.Wrap(err, "razorpay: fetch payment")
	}
	return checkPayment(body, req), nil
}

func checkPayment(body map[string]interface{}, req payment.VerifyRequest) payment.Verification {
	if orderID, _ := body["order_id"].(string); orderID != req.SessionID {
		return payment.Verification{Reason: "payment belongs to another order"}
	}
	switch status, _ := body["status"].(string); status {
	case "captured", "authorized":
	default:
		return payment.Verification{Reason: "payment status " + status}
	}
	if amount, ok := body["amount"].(float64); !ok || int64(amount) != req.Amount {
		return payment.Verification{Reason: "amount mismatch"}
	}
	if currency, _ := body["currency"].(string); !strings.EqualFold(currency, req.Currency) {
		return payment.Verification{Reason: "currency mismatch"}
	}
	return payment.Verification{Verified: true}
}

// receipt derives the Razorpay receipt from the order id. Razorpay caps
// receipts at 40 characters.
func receipt(orderID string) string {
	r := "rcpt_" + strings.ReplaceAll(orderID, "-", "")
	if len(r) > 40 {
		r = r[:40]
	}
	return r
}

// timeoutSeconds rounds d up to whole seconds, the SDK's timeout unit.
func timeoutSeconds(d time.Duration) int16 {
	s := math.Ceil(d.Seconds())
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(max(1, s))
}

// call runs a blocking SDK call, returning early when ctx is done. The SDK
// takes no context, so the abandoned request keeps running in the background
// until the client's HTTP timeout fires.
func call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}
