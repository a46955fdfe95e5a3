package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
	"github.com/xenking/fruitsmith-checkout/internal/domain/payment"
)

// apiError is the error envelope returned by every endpoint.
type apiError struct {
	Code    int
	Reason  string
	Message string
}

func (e *apiError) Error() string {
	return e.Message
}

func badRequest(reason, message string) *apiError {
	return &apiError{Code: http.StatusBadRequest, Reason: reason, Message: message}
}

// mapError converts domain errors to the envelope. Unknown errors become 500
// and keep their detail out of the response.
func mapError(err error) *apiError {
	var (
		api *apiError
		pnf *order.ProductNotFoundError
		iq  *order.InvalidQuantityError
		ae  *order.AddressError
	)
	switch {
	case errors.As(err, &api):
		return api
	case errors.As(err, &pnf):
		return &apiError{Code: http.StatusNotFound, Reason: "product_not_found", Message: pnf.Error()}
	case errors.As(err, &iq):
		return badRequest("invalid_quantity", iq.Error())
	case errors.As(err, &ae):
		return badRequest("invalid_address", ae.Error())
	case errors.Is(err, order.ErrEmptyCart):
		return badRequest("empty_cart", err.Error())
	case errors.Is(err, order.ErrInvalidStatus):
		return badRequest("invalid_status", err.Error())
	case errors.Is(err, order.ErrNotFound):
		return &apiError{Code: http.StatusNotFound, Reason: "order_not_found", Message: "order not found"}
	case errors.Is(err, order.ErrForbidden):
		return &apiError{Code: http.StatusForbidden, Reason: "forbidden", Message: "denied"}
	case errors.Is(err, order.ErrNotPending):
		return &apiError{Code: http.StatusConflict, Reason: "order_not_pending", Message: err.Error()}
	case errors.Is(err, order.ErrPaymentReused):
		return &apiError{Code: http.StatusConflict, Reason: "payment_reused", Message: err.Error()}
	case errors.Is(err, order.ErrInvalidTransition):
		return &apiError{Code: http.StatusConflict, Reason: "invalid_transition", Message: err.Error()}
	case errors.Is(err, order.ErrStatusConflict):
		return &apiError{Code: http.StatusConflict, Reason: "status_conflict", Message: err.Error()}
	case errors.Is(err, order.ErrPaymentRequired):
		return &apiError{Code: http.StatusConflict, Reason: "payment_required", Message: err.Error()}
	case errors.Is(err, order.ErrPaymentNotVerified):
		return &apiError{Code: http.StatusUnprocessableEntity, Reason: "payment_not_verified", Message: err.Error()}
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return &apiError{Code: http.StatusBadGateway, Reason: "gateway_unavailable", Message: "payment gateway unavailable"}
	default:
		return &apiError{Code: http.StatusInternalServerError, Reason: "internal", Message: "internal server error"}
	}
}

// fail writes the envelope for err.
func fail(ctx context.Context, w http.ResponseWriter, err error) {
	e := mapError(err)
	if e.Code >= http.StatusInternalServerError {
		zctx.From(ctx).Error("Request failed", zap.Error(err), zap.String("reason", e.Reason))
	}
	writeError(ctx, w, e.Code, e.Reason, e.Message)
}

func writeError(ctx context.Context, w http.ResponseWriter, code int, reason, message string) {
	writeJSON(ctx, w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		e.ObjEnd()
	})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(ctx).Debug("Write response", zap.Error(err))
	}
}
