// Package handler exposes the order API over HTTP.
package handler

import (
	"context"
	"html"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/microcosm-cc/bluemonday"

	"github.com/xenking/fruitsmith-checkout/internal/domain/auth"
	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// OrderService is the order lifecycle used by the handlers.
type OrderService interface {
	PlaceOrder(ctx context.Context, p auth.Principal, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	VerifyPayment(ctx context.Context, p auth.Principal, req order.VerifyPaymentRequest) (*order.VerifyPaymentResult, error)
	CancelOrder(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
	GetOrder(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
	ListOrders(ctx context.Context, p auth.Principal, page order.Page) ([]order.Order, error)
	AdminListOrders(ctx context.Context, p auth.Principal, filter order.Filter, page order.Page) (*order.OrderPage, error)
	AdminGetOrder(ctx context.Context, p auth.Principal, id string) (*order.AdminOrder, error)
	UpdateStatus(ctx context.Context, p auth.Principal, req order.UpdateStatusRequest) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// Handler serves the order endpoints.
type Handler struct {
	orders OrderService
	// text strips markup from free-form user input.
	text *bluemonday.Policy
	// checkoutLimit guards the endpoints that call the payment gateway.
	checkoutLimit func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithCheckoutLimit wraps order placement and payment verification, which
// reach the payment gateway, in mw. It runs after authentication, so mw can
// charge requests to the principal (see PrincipalKey).
func WithCheckoutLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.checkoutLimit = mw
	}
}

// NewHandler creates a Handler.
func NewHandler(orders OrderService, opts ...Option) *Handler {
	h := &Handler{
		orders:        orders,
		text:          bluemonday.StrictPolicy(),
		checkoutLimit: func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PrincipalKey identifies the authenticated caller of r for per-user rate
// limits. It is empty for anonymous requests.
func PrincipalKey(r *http.Request) string {
	p, ok := principal(r)
	if !ok || p.ID == "" {
		return ""
	}
	return "principal:" + p.ID
}

// Routes returns the API router. Every route requires a bearer token; the
// admin subtree additionally requires the admin role.
func (h *Handler) Routes(sec *SecurityHandler) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "route_not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Group(func(r chi.Router) {
		r.Use(sec.Middleware)

		r.With(h.checkoutLimit).Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.With(h.checkoutLimit).Post("/orders/{id}/verify-payment", h.VerifyPayment)
		r.Post("/orders/{id}/cancel", h.CancelOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/orders", h.AdminListOrders)
			r.Get("/orders/{id}", h.AdminGetOrder)
			r.Patch("/orders/{id}/status", h.UpdateStatus)
		})
	})
	return r
}

// principal returns the authenticated caller. The security middleware
// guarantees one is present on every routed request.
func principal(r *http.Request) (auth.Principal, bool) {
	return auth.PrincipalFromContext(r.Context())
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("body too large")
	}
	return data, nil
}

// plain returns s with markup removed. Entities escaped by the policy are
// decoded back so stored text stays human-readable.
func (h *Handler) plain(s string) string {
	return html.UnescapeString(h.text.Sanitize(s))
}

func (h *Handler) sanitizeAddress(a order.Address) order.Address {
	return order.Address{
		Name:    h.plain(a.Name),
		Mobile:  h.plain(a.Mobile),
		Street:  h.plain(a.Street),
		City:    h.plain(a.City),
		State:   h.plain(a.State),
		Zip:     h.plain(a.Zip),
		Country: h.plain(a.Country),
	}
}
