package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNotFound           = errors.New("order not found")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStatusConflict     = errors.New("order status changed concurrently")
	ErrNotPending         = errors.New("order is not pending payment")
	ErrPaymentNotVerified = errors.New("payment could not be verified")
	ErrPaymentReused      = errors.New("payment already settles another order")
	ErrPaymentRequired    = errors.New("status requires a recorded payment")
	ErrForbidden          = errors.New("denied")
)

// ProductNotFoundError indicates a cart line references a product missing
// from the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// AddressError indicates a missing or malformed shipping address field.
type AddressError struct {
	Field string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("shipping address: %s is required", e.Field)
}
