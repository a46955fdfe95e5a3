package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Manager is the single entry point to the configured gateway. Every call is
// bounded by a timeout and traced.
type Manager struct {
	gateway Gateway
	timeout time.Duration
	tracer  trace.Tracer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds each gateway call.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithTracerProvider sets the provider used for gateway spans.
func WithTracerProvider(tp trace.TracerProvider) ManagerOption {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer("fruitsmith/payment")
		}
	}
}

// NewManager wraps gateway.
func NewManager(gateway Gateway, opts ...ManagerOption) *Manager {
	m := &Manager{
		gateway: gateway,
		timeout: defaultTimeout,
		tracer:  noop.NewTracerProvider().Tracer("fruitsmith/payment"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the gateway name recorded on orders.
func (m *Manager) Provider() string {
	return m.gateway.Name()
}

// PublicKey returns the publishable key handed to checkout clients.
func (m *Manager) PublicKey() string {
	return m.gateway.PublicKey()
}

// OpenSession opens a payment session for a server-computed amount. Any
// gateway failure is reported as ErrGatewayUnavailable.
func (m *Manager) OpenSession(ctx context.Context, req SessionRequest) (Session, error) {
	if req.Amount <= 0 {
		return Session{}, errors.Errorf("invalid session amount %d", req.Amount)
	}

	ctx, span := m.tracer.Start(ctx, "payment.OpenSession", trace.WithAttributes(
		attribute.String("payment.provider", m.gateway.Name()),
		attribute.String("order.id", req.OrderID),
		attribute.Int64("payment.amount", req.Amount),
		attribute.String("payment.currency", req.Currency),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	sess, err := m.gateway.OpenSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open session")
		zctx.From(ctx).Warn("Open payment session failed",
			zap.String("provider", m.gateway.Name()),
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		return Session{}, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	if sess.Provider == "" {
		sess.Provider = m.gateway.Name()
	}
	span.SetAttributes(attribute.String("payment.session_id", sess.ID))
	return sess, nil
}

// Verify confirms with the gateway that req.PaymentID completed for
// req.SessionID with the expected amount. The result is false whenever the
// gateway does not positively confirm the payment.
func (m *Manager) Verify(ctx context.Context, req VerifyRequest) (bool, error) {
	if req.SessionID == "" || req.PaymentID == "" {
		return false, nil
	}

	ctx, span := m.tracer.Start(ctx, "payment.Verify", trace.WithAttributes(
		attribute.String("payment.provider", m.gateway.Name()),
		attribute.String("payment.session_id", req.SessionID),
		attribute.String("payment.id", req.PaymentID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	v, err := m.gateway.Verify(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify")
		return false, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	span.SetAttributes(attribute.Bool("payment.verified", v.Verified))
	if !v.Verified {
		zctx.From(ctx).Warn("Payment verification rejected",
			zap.String("provider", m.gateway.Name()),
			zap.String("session_id", req.SessionID),
			zap.String("payment_id", req.PaymentID),
			zap.String("reason", v.Reason),
		)
	}
	return v.Verified, nil
}
