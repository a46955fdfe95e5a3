package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
)

// PlaceOrder prices the cart, opens a payment session and stores a Pending
// order. The client total is never read.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := principal(r)
	if !ok {
		writeError(ctx, w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	data, err := readBody(r)
	if err != nil {
		fail(ctx, w, badRequest("invalid_body", err.Error()))
		return
	}
	req, err := decodePlaceOrder(data)
	if err != nil {
		fail(ctx, w, badRequest("invalid_body", err.Error()))
		return
	}
	req.ShippingAddress = h.sanitizeAddress(req.ShippingAddress)

	res, err := h.orders.PlaceOrder(ctx, p, req)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, func(e *jx.Encoder) { encodePlaceOrder(e, res) })
}

// VerifyPayment reconciles a client-reported gateway payment.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := principal(r)
	if !ok {
		writeError(ctx, w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	data, err := readBody(r)
	if err != nil {
		fail(ctx, w, badRequest("invalid_body", err.Error()))
		return
	}
	body, err := decodeVerify(data)
	if err != nil {
		fail(ctx, w, badRequest("invalid_body", err.Error()))
		return
	}
	if body.PaymentID == "" {
		fail(ctx, w, badRequest("invalid_body", "gatewayPaymentId is required"))
		return
	}

	res, err := h.orders.VerifyPayment(ctx, p, order.VerifyPaymentRequest{
		OrderID:   chi.URLParam(r, "id"),
		PaymentID: body.PaymentID,
		Signature: body.Signature,
	})
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, func(e *jx.Encoder) { encodeVerify(e, res) })
}

// CancelOrder cancels one of the caller's unpaid orders.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := principal(r)
	if !ok {
		writeError(ctx, w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	o, err := h.orders.CancelOrder(ctx, p, chi.URLParam(r, "id"))
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder returns one of the caller's orders. Orders of other users are
// reported as missing.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := principal(r)
	if !ok {
		writeError(ctx, w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	o, err := h.orders.GetOrder(ctx, p, chi.URLParam(r, "id"))
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := principal(r)
	if !ok {
		writeError(ctx, w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	page, err := parsePage(r)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	orders, err := h.orders.ListOrders(ctx, p, page)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, func(e *jx.Encoder) { encodeOrderList(e, orders) })
}

func parsePage(r *http.Request) (order.Page, error) {
	q := r.URL.Query()
	var (
		page order.Page
		err  error
	)
	if v := q.Get("page"); v != "" {
		if page.Number, err = strconv.Atoi(v); err != nil {
			return page, badRequest("invalid_query", "page must be an integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if page.Limit, err = strconv.Atoi(v); err != nil {
			return page, badRequest("invalid_query", "limit must be an integer")
		}
	}
	return page, nil
}
