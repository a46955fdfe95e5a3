// Package notify delivers best-effort order notifications. Failures are
// logged and never reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
	"github.com/xenking/fruitsmith-checkout/internal/domain/user"
)

// Message is a rendered email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Sender transports a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Renderer builds the confirmation message for an order.
type Renderer interface {
	OrderConfirmation(recipient *user.User, o *order.Order) (Message, error)
}

var _ order.Notifier = (*Dispatcher)(nil)

// Dispatcher sends order confirmations in the background.
type Dispatcher struct {
	users    user.Repository
	renderer Renderer
	sender   Sender
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. timeout bounds a single delivery.
func NewDispatcher(users user.Repository, renderer Renderer, sender Sender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		users:    users,
		renderer: renderer,
		sender:   sender,
		timeout:  timeout,
	}
}

// OrderConfirmed schedules the confirmation email for o and returns
// immediately. The delivery outlives the request context.
func (d *Dispatcher) OrderConfirmed(ctx context.Context, o *order.Order) {
	snapshot := *o
	detached := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		lg := zctx.From(sendCtx).With(zap.String("order_id", snapshot.ID))
		defer func() {
			if rec := recover(); rec != nil {
				lg.Error("Order confirmation panicked", zap.Any("panic", rec), zap.Stack("stack"))
			}
		}()
		if err := d.deliver(sendCtx, &snapshot); err != nil {
			lg.Warn("Order confirmation not delivered", zap.Error(err))
			return
		}
		lg.Info("Order confirmation sent")
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, o *order.Order) error {
	recipient, err := d.users.GetByID(ctx, o.OwnerID)
	if err != nil {
		return errors.Wrap(err, "resolve recipient")
	}
	if recipient.Email == "" {
		return errors.Errorf("user %s has no email", recipient.ID)
	}

	msg, err := d.renderer.OrderConfirmation(recipient, o)
	if err != nil {
		return errors.Wrap(err, "render")
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "send")
	}
	return nil
}
