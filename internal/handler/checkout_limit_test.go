package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/fruitsmith-checkout/internal/domain/auth"
	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
	"github.com/xenking/fruitsmith-checkout/internal/domain/payment"
	"github.com/xenking/fruitsmith-checkout/pkg/httpmiddleware"
)

func TestCheckoutLimit_PerPrincipal(t *testing.T) {
	var placed int
	svc := &mockOrderService{
		placeOrder: func(context.Context, auth.Principal, order.PlaceOrderRequest) (*order.PlaceOrderResult, error) {
			placed++
			return &order.PlaceOrderResult{
				Order:   sampleOrder(),
				Session: payment.Session{ID: "order_abc", Provider: "razorpay"},
			}, nil
		},
		verifyPayment: func(context.Context, auth.Principal, order.VerifyPaymentRequest) (*order.VerifyPaymentResult, error) {
			t.Fatal("verify must be limited")
			return nil, nil
		},
		listOrders: func(context.Context, auth.Principal, order.Page) ([]order.Order, error) {
			return nil, nil
		},
	}

	sec, err := NewSecurityHandler([]byte(testSecret), "fruitsmith")
	require.NoError(t, err)
	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Name:    "checkout",
		Max:     1,
		Window:  time.Hour,
		KeyFunc: PrincipalKey,
	})
	r := chi.NewRouter()
	r.Mount("/api", NewHandler(svc, WithCheckoutLimit(limiter.Middleware)).Routes(sec))
	s := &testServer{router: r, sec: sec}

	w := s.do(t, &alice, http.MethodPost, "/api/orders", placeOrderBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "checkout", w.Header().Get("X-RateLimit-Scope"))

	w = s.do(t, &alice, http.MethodPost, "/api/orders", placeOrderBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeEnvelope(t, w).Reason)

	w = s.do(t, &alice, http.MethodPost, "/api/orders/8d3b7c6e-2f1a-4a9b-bc7d-1e2f3a4b5c6d/verify-payment", `{"gatewayPaymentId":"pay_1"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "verify shares the checkout budget")

	w = s.do(t, &alice, http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusOK, w.Code, "reads are not charged")

	bob := auth.Principal{ID: "bob", Role: auth.RoleUser}
	w = s.do(t, &bob, http.MethodPost, "/api/orders", placeOrderBody)
	assert.Equal(t, http.StatusCreated, w.Code, "budgets are per principal")

	assert.Equal(t, 2, placed)
}

func TestPrincipalKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, PrincipalKey(r))

	r = r.WithContext(auth.WithPrincipal(r.Context(), alice))
	assert.Equal(t, "principal:alice", PrincipalKey(r))
}
