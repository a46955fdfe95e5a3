package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/fruitsmith-checkout/internal/domain/auth"
	"github.com/xenking/fruitsmith-checkout/internal/domain/payment"
	"github.com/xenking/fruitsmith-checkout/internal/domain/product"
)

// PaymentSessions opens and verifies gateway payments.
type PaymentSessions interface {
	Provider() string
	PublicKey() string
	OpenSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error)
	Verify(ctx context.Context, req payment.VerifyRequest) (bool, error)
}

// Notifier is told about orders whose payment was reconciled. It must not
// block and must not fail the caller.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Cart            []CartLine
	ShippingAddress Address
}

// PlaceOrderResult holds the persisted order and the session the client
// uses to pay.
type PlaceOrderResult struct {
	Order            *Order
	Session          payment.Session
	PublicKey        string
	AmountMinorUnits int64
}

// VerifyPaymentRequest is a client report that it completed payment.
type VerifyPaymentRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// VerifyPaymentResult is the outcome of a reconciliation attempt.
type VerifyPaymentResult struct {
	Order *Order
	// Replayed is set when the order had already been reconciled with the
	// same payment and nothing changed.
	Replayed bool
}

// UpdateStatusRequest is an admin status change.
type UpdateStatusRequest struct {
	OrderID string
	Status  string
	// Override skips the transition table. Statuses implying payment still
	// require a recorded payment.
	Override bool
}

// OrderPage is one page of the admin listing.
type OrderPage struct {
	Orders []AdminOrder
	Count  int
	Pages  int
	Page   int
}

// ServiceConfig holds non-dependency settings of the Service.
type ServiceConfig struct {
	Currency string
	Delivery DeliveryPolicy
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithMeterProvider sets the provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) ServiceOption {
	return func(s *Service) {
		s.meterProvider = mp
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// Service encapsulates the order lifecycle: placement, payment
// reconciliation, owner reads and admin transitions.
type Service struct {
	products product.Repository
	orders   Repository
	payments PaymentSessions
	notifier Notifier

	currency string
	delivery DeliveryPolicy

	meterProvider metric.MeterProvider
	metrics       *serviceMetrics
	now           func() time.Time
	newID         func() string
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	cfg ServiceConfig,
	products product.Repository,
	orders Repository,
	payments PaymentSessions,
	notifier Notifier,
	opts ...ServiceOption,
) (*Service, error) {
	if cfg.Currency == "" {
		return nil, errors.New("currency is required")
	}
	s := &Service{
		products: products,
		orders:   orders,
		payments: payments,
		notifier: notifier,
		currency: cfg.Currency,
		delivery: cfg.Delivery,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := newServiceMetrics(s.meterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	s.metrics = m
	return s, nil
}

// PlaceOrder snapshots the cart from the catalog, prices it, opens a gateway
// session for the server-computed total and persists a Pending order. No
// order is stored when any step fails.
func (s *Service) PlaceOrder(ctx context.Context, p auth.Principal, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Cart) == 0 {
		return nil, ErrEmptyCart
	}
	addr := req.ShippingAddress.Normalize()
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	items, err := BuildSnapshot(ctx, req.Cart, s.products)
	if err != nil {
		return nil, err
	}
	totals := ComputeTotals(items, s.delivery)

	id := s.newID()
	amount := totals.MinorUnits()
	sess, err := s.payments.OpenSession(ctx, payment.SessionRequest{
		OrderID:  id,
		Amount:   amount,
		Currency: s.currency,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open payment session")
	}

	now := s.now().UTC()
	o := &Order{
		ID:              id,
		OwnerID:         p.ID,
		Items:           items,
		ShippingAddress: addr,
		Subtotal:        totals.Subtotal,
		DeliveryFee:     totals.DeliveryFee,
		TotalAmount:     totals.Total,
		Currency:        s.currency,
		Status:          StatusPending,
		Payment: PaymentRef{
			Provider:  sess.Provider,
			SessionID: sess.ID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	s.metrics.created.Add(ctx, 1)

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("owner_id", o.OwnerID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.String("session_id", sess.ID),
	)

	return &PlaceOrderResult{
		Order:            o,
		Session:          sess,
		PublicKey:        s.payments.PublicKey(),
		AmountMinorUnits: amount,
	}, nil
}

// VerifyPayment reconciles a client-reported payment onto the caller's
// order. The payment is verified with the gateway first; the Pending to
// Processing move is a single conditional write, so among concurrent calls
// exactly one wins and only the winner notifies.
func (s *Service) VerifyPayment(ctx context.Context, p auth.Principal, req VerifyPaymentRequest) (*VerifyPaymentResult, error) {
	if req.PaymentID == "" {
		return nil, ErrPaymentNotVerified
	}

	o, err := s.orders.GetForOwner(ctx, req.OrderID, p.ID)
	if err != nil {
		return nil, err
	}
	if res, ok := s.replayed(ctx, o, req.PaymentID); ok {
		return res, nil
	}
	if o.Status != StatusPending {
		return nil, ErrNotPending
	}

	ok, err := s.payments.Verify(ctx, payment.VerifyRequest{
		SessionID: o.Payment.SessionID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    o.Totals().MinorUnits(),
		Currency:  o.Currency,
	})
	if err != nil {
		return nil, errors.Wrap(err, "verify payment")
	}
	if !ok {
		s.metrics.rejected.Add(ctx, 1)
		return nil, ErrPaymentNotVerified
	}

	updated, err := s.orders.SetPaymentID(ctx, o.ID, p.ID, req.PaymentID, StatusProcessing)
	if err != nil {
		if !errors.Is(err, ErrStatusConflict) {
			return nil, err
		}
		// Lost the race: someone else reconciled first.
		current, getErr := s.orders.GetForOwner(ctx, o.ID, p.ID)
		if getErr != nil {
			return nil, getErr
		}
		if res, ok := s.replayed(ctx, current, req.PaymentID); ok {
			return res, nil
		}
		return nil, ErrNotPending
	}

	s.metrics.reconciled.Add(ctx, 1)
	zctx.From(ctx).Info("Payment reconciled",
		zap.String("order_id", updated.ID),
		zap.String("payment_id", req.PaymentID),
	)
	s.notifier.OrderConfirmed(ctx, updated)

	return &VerifyPaymentResult{Order: updated}, nil
}

func (s *Service) replayed(ctx context.Context, o *Order, paymentID string) (*VerifyPaymentResult, bool) {
	if o.Status == StatusPending || o.Payment.PaymentID != paymentID {
		return nil, false
	}
	s.metrics.replays.Add(ctx, 1)
	return &VerifyPaymentResult{Order: o, Replayed: true}, true
}

// CancelOrder cancels one of the caller's unpaid orders. Cancelling an
// already cancelled order is a no-op.
func (s *Service) CancelOrder(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetForOwner(ctx, id, p.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case o.Status == StatusCancelled:
		return o, nil
	case o.Status != StatusPending, o.Paid():
		// Paid orders are cancelled or refunded by an admin.
		return nil, ErrInvalidTransition
	}

	updated, err := s.orders.SetStatus(ctx, o.ID, StatusPending, StatusCancelled)
	if err != nil {
		return nil, err
	}
	s.recordStatusChange(ctx, StatusPending, StatusCancelled)
	return updated, nil
}

// GetOrder returns one of the caller's orders.
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	return s.orders.GetForOwner(ctx, id, p.ID)
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, p auth.Principal, page Page) ([]Order, error) {
	return s.orders.ListByOwner(ctx, p.ID, page.Normalize())
}

// AdminListOrders returns a filtered page over all orders.
func (s *Service) AdminListOrders(ctx context.Context, p auth.Principal, filter Filter, page Page) (*OrderPage, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	page = page.Normalize()
	orders, count, err := s.orders.ListAll(ctx, filter, page)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &OrderPage{
		Orders: orders,
		Count:  count,
		Pages:  page.Pages(count),
		Page:   page.Number,
	}, nil
}

// AdminGetOrder returns any order with its owner.
func (s *Service) AdminGetOrder(ctx context.Context, p auth.Principal, id string) (*AdminOrder, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.orders.Get(ctx, id)
}

// UpdateStatus applies an admin transition. The write is conditional on the
// status read here, so a concurrent change yields ErrStatusConflict.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, req UpdateStatusRequest) (*Order, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	target, err := ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}

	current, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if current.Status == target {
		return &current.Order, nil
	}
	if target.RequiresPayment() && !current.Paid() {
		return nil, ErrPaymentRequired
	}
	// Processing is reached through payment reconciliation only, and a paid
	// order never reopens for another payment.
	if target == StatusProcessing || (target == StatusPending && current.Paid()) {
		return nil, ErrInvalidTransition
	}
	if !req.Override && !CanTransition(current.Status, target) {
		return nil, ErrInvalidTransition
	}
	if req.Override {
		zctx.From(ctx).Warn("Status override",
			zap.String("order_id", current.ID),
			zap.String("admin_id", p.ID),
			zap.String("from", string(current.Status)),
			zap.String("to", string(target)),
		)
	}

	updated, err := s.orders.SetStatus(ctx, current.ID, current.Status, target)
	if err != nil {
		return nil, err
	}
	s.recordStatusChange(ctx, current.Status, target)
	return updated, nil
}

func (s *Service) recordStatusChange(ctx context.Context, from, to Status) {
	s.metrics.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}
