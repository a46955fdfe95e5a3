package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
	"github.com/xenking/fruitsmith-checkout/internal/domain/user"
)

type mockUsers struct {
	byID map[string]user.User
}

func (m *mockUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

type mockRenderer struct {
	err error
}

func (m *mockRenderer) OrderConfirmation(recipient *user.User, o *order.Order) (Message, error) {
	if m.err != nil {
		return Message{}, m.err
	}
	return Message{To: recipient.Email, Subject: "order " + o.ID}, nil
}

type mockSender struct {
	mu      sync.Mutex
	sent    []Message
	err     error
	block   bool
	ctxErrs []error
}

func (m *mockSender) Send(ctx context.Context, msg Message) error {
	if m.block {
		<-ctx.Done()
		m.mu.Lock()
		m.ctxErrs = append(m.ctxErrs, ctx.Err())
		m.mu.Unlock()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newUsers() *mockUsers {
	return &mockUsers{byID: map[string]user.User{
		"u1": {ID: "u1", Name: "Asha", Email: "asha@example.com"},
		"u2": {ID: "u2", Name: "No Mail"},
	}}
}

func TestDispatcher_OrderConfirmed(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(newUsers(), &mockRenderer{}, sender, time.Second)

	d.OrderConfirmed(context.Background(), &order.Order{ID: "o1", OwnerID: "u1"})
	d.Wait()

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "asha@example.com", sender.sent[0].To)
	assert.Equal(t, "order o1", sender.sent[0].Subject)
}

func TestDispatcher_OutlivesRequestContext(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(newUsers(), &mockRenderer{}, sender, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.OrderConfirmed(ctx, &order.Order{ID: "o1", OwnerID: "u1"})
	cancel()
	d.Wait()

	assert.Len(t, sender.sent, 1)
}

func TestDispatcher_SnapshotsOrder(t *testing.T) {
	sender := &mockSender{}
	d := NewDispatcher(newUsers(), &mockRenderer{}, sender, time.Second)

	o := &order.Order{ID: "o1", OwnerID: "u1"}
	d.OrderConfirmed(context.Background(), o)
	o.ID = "mutated"
	d.Wait()

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "order o1", sender.sent[0].Subject)
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name     string
		ownerID  string
		renderer *mockRenderer
		sender   *mockSender
	}{
		{name: "unknown user", ownerID: "missing", renderer: &mockRenderer{}, sender: &mockSender{}},
		{name: "no email", ownerID: "u2", renderer: &mockRenderer{}, sender: &mockSender{}},
		{name: "render error", ownerID: "u1", renderer: &mockRenderer{err: errors.New("boom")}, sender: &mockSender{}},
		{name: "send error", ownerID: "u1", renderer: &mockRenderer{}, sender: &mockSender{err: errors.New("smtp down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(newUsers(), tt.renderer, tt.sender, time.Second)
			assert.NotPanics(t, func() {
				d.OrderConfirmed(context.Background(), &order.Order{ID: "o1", OwnerID: tt.ownerID})
				d.Wait()
			})
			assert.Empty(t, tt.sender.sent)
		})
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	sender := &mockSender{block: true}
	d := NewDispatcher(newUsers(), &mockRenderer{}, sender, 20*time.Millisecond)

	start := time.Now()
	d.OrderConfirmed(context.Background(), &order.Order{ID: "o1", OwnerID: "u1"})
	d.Wait()

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, sender.ctxErrs, 1)
	assert.ErrorIs(t, sender.ctxErrs[0], context.DeadlineExceeded)
}

type panicRenderer struct{}

func (panicRenderer) OrderConfirmation(*user.User, *order.Order) (Message, error) {
	panic("template exploded")
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher(newUsers(), panicRenderer{}, &mockSender{}, time.Second)
	assert.NotPanics(t, func() {
		d.OrderConfirmed(context.Background(), &order.Order{ID: "o1", OwnerID: "u1"})
		d.Wait()
	})
}
