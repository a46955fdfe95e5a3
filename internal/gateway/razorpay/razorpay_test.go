package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/fruitsmith-checkout/internal/domain/payment"
)

const testSecret = "rzp_secret"

type mockOrders struct {
	last  map[string]interface{}
	body  map[string]interface{}
	err   error
	delay time.Duration
}

func (m *mockOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.last = data
	return m.body, m.err
}

type mockPayments struct {
	body    map[string]interface{}
	err     error
	fetched []string
}

func (m *mockPayments) Fetch(id string, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	m.fetched = append(m.fetched, id)
	return m.body, m.err
}

func newTestGateway(t *testing.T, orders *mockOrders, payments *mockPayments) *Gateway {
	t.Helper()
	g, err := New(Config{
		KeyID:     "rzp_test_key",
		KeySecret: testSecret,
		orders:    orders,
		payments:  payments,
	})
	require.NoError(t, err)
	return g
}

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{KeyID: "key"})
	require.Error(t, err)
}

func TestNew_Timeout(t *testing.T) {
	g, err := New(Config{KeyID: "key", KeySecret: "secret", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.NotNil(t, g.orders)
	assert.NotNil(t, g.payments)
}

func TestTimeoutSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int16
	}{
		{in: 10 * time.Second, want: 10},
		{in: 1500 * time.Millisecond, want: 2},
		{in: time.Millisecond, want: 1},
		{in: 100 * time.Hour, want: math.MaxInt16},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, timeoutSeconds(tt.in))
		})
	}
}

func TestOpenSession(t *testing.T) {
	orders := &mockOrders{body: map[string]interface{}{"id": "order_Nx1", "status": "created"}}
	g := newTestGateway(t, orders, &mockPayments{})

	sess, err := g.OpenSession(context.Background(), payment.SessionRequest{
		OrderID:  "3f2c9a1e-7b7d-4d55-9d0c-8f1f0e2b6a11",
		Amount:   55000,
		Currency: "inr",
	})
	require.NoError(t, err)

	assert.Equal(t, "order_Nx1", sess.ID)
	assert.Equal(t, Name, sess.Provider)
	assert.Equal(t, "rzp_test_key", g.PublicKey())
	assert.Equal(t, int64(55000), orders.last["amount"])
	assert.Equal(t, "INR", orders.last["currency"])
	assert.LessOrEqual(t, len(orders.last["receipt"].(string)), 40)
}

func TestOpenSession_Errors(t *testing.T) {
	g := newTestGateway(t, &mockOrders{err: errors.New("BAD_REQUEST_ERROR")}, &mockPayments{})
	_, err := g.OpenSession(context.Background(), payment.SessionRequest{OrderID: "o", Amount: 1, Currency: "INR"})
	require.Error(t, err)

	g = newTestGateway(t, &mockOrders{body: map[string]interface{}{}}, &mockPayments{})
	_, err = g.OpenSession(context.Background(), payment.SessionRequest{OrderID: "o", Amount: 1, Currency: "INR"})
	require.Error(t, err)

	g = newTestGateway(t, &mockOrders{delay: 200 * time.Millisecond}, &mockPayments{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.OpenSession(ctx, payment.SessionRequest{OrderID: "o", Amount: 1, Currency: "INR"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerify(t *testing.T) {
	captured := func() map[string]interface{} {
		return map[string]interface{}{
			"id":       "pay_1",
			"order_id": "order_1",
			"status":   "captured",
			"amount":   float64(55000),
			"currency": "INR",
		}
	}
	with := func(k string, v interface{}) map[string]interface{} {
		b := captured()
		b[k] = v
		return b
	}

	tests := []struct {
		name      string
		signature string
		body      map[string]interface{}
		want      bool
		reason    string
		fetches   int
	}{
		{name: "valid", signature: sign("order_1", "pay_1"), body: captured(), want: true, fetches: 1},
		{name: "authorized counts", signature: sign("order_1", "pay_1"), body: with("status", "authorized"), want: true, fetches: 1},
		{name: "missing signature", signature: "", body: captured(), reason: "missing signature"},
		{name: "forged signature", signature: sign("order_1", "pay_2"), body: captured(), reason: "signature mismatch"},
		{name: "failed payment", signature: sign("order_1", "pay_1"), body: with("status", "failed"), reason: "payment status failed", fetches: 1},
		{name: "other order", signature: sign("order_1", "pay_1"), body: with("order_id", "order_2"), reason: "payment belongs to another order", fetches: 1},
		{name: "short amount", signature: sign("order_1", "pay_1"), body: with("amount", float64(100)), reason: "amount mismatch", fetches: 1},
		{name: "wrong currency", signature: sign("order_1", "pay_1"), body: with("currency", "USD"), reason: "currency mismatch", fetches: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &mockPayments{body: tt.body}
			g := newTestGateway(t, &mockOrders{}, payments)

			v, err := g.Verify(context.Background(), payment.VerifyRequest{
				SessionID: "order_1",
				PaymentID: "pay_1",
				Signature: tt.signature,
				Amount:    55000,
				Currency:  "INR",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Verified)
			assert.Equal(t, tt.reason, v.Reason)
			assert.Len(t, payments.fetched, tt.fetches)
		})
	}
}

func TestVerify_FetchError(t *testing.T) {
	g := newTestGateway(t, &mockOrders{}, &mockPayments{err: errors.New("SERVER_ERROR")})

	_, err := g.Verify(context.Background(), payment.VerifyRequest{
		SessionID: "order_1",
		PaymentID: "pay_1",
		Signature: sign("order_1", "pay_1"),
		Amount:    1,
		Currency:  "INR",
	})
	require.Error(t, err)
}
