package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a priced, immutable purchase record together with its payment
// reference and lifecycle status.
type Order struct {
	ID              string
	OwnerID         string
	Items           []LineItem
	ShippingAddress Address
	Subtotal        decimal.Decimal
	DeliveryFee     decimal.Decimal
	TotalAmount     decimal.Decimal
	Currency        string
	Status          Status
	Payment         PaymentRef
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Totals returns the stored monetary breakdown of the order.
func (o *Order) Totals() Totals {
	return Totals{
		Subtotal:    o.Subtotal,
		DeliveryFee: o.DeliveryFee,
		Total:       o.TotalAmount,
	}
}

// Paid reports whether a gateway payment has been recorded on the order.
func (o *Order) Paid() bool {
	return o.Payment.PaymentID != ""
}

// LineItem is a product snapshot frozen at order creation. Catalog changes
// after creation never alter it.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"qty"`
	Image     []string        `json:"image"`
}

// CartLine is a client-supplied request to buy qty of a product.
type CartLine struct {
	ProductID string
	Quantity  int
}

// Address is the shipping destination of an order.
type Address struct {
	Name    string
	Mobile  string
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

// PaymentRef links an order to its gateway session and, once reconciled, to
// the settled gateway payment.
type PaymentRef struct {
	Provider  string
	SessionID string
	PaymentID string
}

// Owner carries the identity fields of the order owner shown to admins.
type Owner struct {
	ID    string
	Name  string
	Email string
}

// AdminOrder is an order row annotated with its owner for admin listings.
type AdminOrder struct {
	Order
	Owner Owner
}

// Page selects a window of a listing. Page numbers start at 1.
type Page struct {
	Number int
	Limit  int
}

// Listing defaults.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page to valid bounds, applying defaults.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset is the number of rows skipped before the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// Pages returns ceil(count/limit).
func (p Page) Pages(count int) int {
	if count <= 0 || p.Limit <= 0 {
		return 0
	}
	return (count + p.Limit - 1) / p.Limit
}

// Filter narrows the admin order listing. Zero values match everything.
type Filter struct {
	Status Status
	// Search is matched case-insensitively against the order id and the
	// owner's id, name and email.
	Search string
	// From is inclusive.
	From time.Time
	// Until is exclusive.
	Until time.Time
}

// Repository defines persistence operations for orders. Owner-scoped methods
// enforce scoping in the query itself.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*AdminOrder, error)
	GetForOwner(ctx context.Context, id, ownerID string) (*Order, error)
	ListByOwner(ctx context.Context, ownerID string, page Page) ([]Order, error)
	ListAll(ctx context.Context, filter Filter, page Page) ([]AdminOrder, int, error)
	// SetStatus moves the order from -> to only if its current status is
	// still from. It returns ErrStatusConflict when the guard fails.
	SetStatus(ctx context.Context, id string, from, to Status) (*Order, error)
	// SetPaymentID records the settled payment and moves an owner's Pending
	// order to the given status in one conditional write.
	SetPaymentID(ctx context.Context, id, ownerID, paymentID string, to Status) (*Order, error)
}
