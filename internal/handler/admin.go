package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/conv"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
)

// AdminListOrders lists all orders with filters:
//
//	status     exact status
//	search     substring of order id, owner id, owner name or email
//	startDate  created on or after this date
//	endDate    created on or before this date (whole day included)
//	page,limit pagination
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)

	filter, err := parseFilter(r)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		fail(ctx, w, err)
		return
	}

	res, err := h.orders.AdminListOrders(ctx, p, filter, page)
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, func(e *jx.Encoder) { encodeOrderPage(e, res) })
}

// AdminGetOrder returns any order with its owner.
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)

	o, err := h.orders.AdminGetOrder(ctx, p, chi.URLParam(r, "id"))
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, func(e *jx.Encoder) { encodeAdminOrder(e, o) })
}

// UpdateStatus applies an admin status change.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principal(r)

	data, err := readBody(r)
	if err != nil {
		fail(ctx, w, badRequest("invalid_body", err.Error()))
		return
	}
	body, err := decodeStatus(data)
	if err != nil {
		fail(ctx, w, badRequest("invalid_body", err.Error()))
		return
	}

	o, err := h.orders.UpdateStatus(ctx, p, order.UpdateStatusRequest{
		OrderID:  chi.URLParam(r, "id"),
		Status:   body.Status,
		Override: body.Override,
	})
	if err != nil {
		fail(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func parseFilter(r *http.Request) (order.Filter, error) {
	q := r.URL.Query()
	var f order.Filter

	if v := q.Get("status"); v != "" {
		s, err := order.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	f.Search = q.Get("search")

	if v := q.Get("startDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, badRequest("invalid_query", "startDate must be YYYY-MM-DD")
		}
		f.From = t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, badRequest("invalid_query", "endDate must be YYYY-MM-DD")
		}
		f.Until = t.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.Until.IsZero() && !f.From.Before(f.Until) {
		return f, badRequest("invalid_query", "startDate is after endDate")
	}
	return f, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp truncated to
// its UTC day.
func parseDate(s string) (time.Time, error) {
	if t, err := conv.ToDate(s); err == nil {
		return t.UTC(), nil
	}
	t, err := conv.ToDateTime(s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
