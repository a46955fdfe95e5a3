//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
	"github.com/xenking/fruitsmith-checkout/internal/domain/product"
	"github.com/xenking/fruitsmith-checkout/internal/domain/user"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	err = dc.
		WaitForService("postgres", wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute)).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	pg, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Fatalf("postgres container: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://fruitsmith:fruitsmith@%s:%s/fruitsmith?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations must be re-runnable on every start.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE orders, products, users`)
	require.NoError(t, err)
}

func seedOrder(t *testing.T, repo *OrderRepository, ownerID string, createdAt time.Time) *order.Order {
	t.Helper()
	o := &order.Order{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Items: []order.LineItem{{
			ProductID: "mango",
			Name:      "Mango",
			UnitPrice: decimal.RequireFromString("149.50"),
			Quantity:  2,
			Image:     []string{"mango.jpg"},
		}},
		ShippingAddress: order.Address{
			Name: "Asha", Mobile: "98765", Street: "MG Road", City: "Pune",
			State: "MH", Zip: "411001", Country: "India",
		},
		Subtotal:    decimal.RequireFromString("299.00"),
		DeliveryFee: decimal.RequireFromString("50.00"),
		TotalAmount: decimal.RequireFromString("349.00"),
		Currency:    "INR",
		Status:      order.StatusPending,
		Payment:     order.PaymentRef{Provider: "razorpay", SessionID: "order_" + uuid.NewString()[:8]},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), o))
	return o
}

func TestProductRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewProductRepository(testPool)

	n, err := repo.Upsert(ctx, []product.Product{
		{ID: "mango", Name: "Mango", Price: decimal.RequireFromString("149.50"), Category: "fruit", Images: []string{"a.jpg", "b.jpg"}},
		{ID: "kiwi", Name: "Kiwi", Price: decimal.RequireFromString("35"), Category: "fruit"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.GetByIDs(ctx, []string{"mango", "kiwi", "ghost"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	p, err := repo.GetByID(ctx, "mango")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, p.Images)
	assert.True(t, decimal.RequireFromString("149.50").Equal(p.Price))

	_, err = repo.GetByID(ctx, "ghost")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	users := NewUserRepository(testPool)
	require.NoError(t, users.Upsert(ctx, []user.User{{ID: "alice", Name: "Alice", Email: "alice@example.com"}}))

	o := seedOrder(t, repo, "alice", time.Now().UTC().Truncate(time.Microsecond))

	got, err := repo.GetForOwner(ctx, o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, o.Items[0].Image, got.Items[0].Image)
	assert.True(t, o.Items[0].UnitPrice.Equal(got.Items[0].UnitPrice))
	assert.True(t, o.TotalAmount.Equal(got.TotalAmount))
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	assert.Empty(t, got.Payment.PaymentID)

	_, err = repo.GetForOwner(ctx, o.ID, "bob")
	require.ErrorIs(t, err, order.ErrNotFound)

	_, err = repo.GetForOwner(ctx, "not-a-uuid", "alice")
	require.ErrorIs(t, err, order.ErrNotFound)

	admin, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", admin.Owner.Name)
	assert.Equal(t, "alice@example.com", admin.Owner.Email)
}

func TestOrderRepository_SetPaymentID(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := seedOrder(t, repo, "alice", time.Now().UTC())

	_, err := repo.SetPaymentID(ctx, o.ID, "bob", "pay_1", order.StatusProcessing)
	require.ErrorIs(t, err, order.ErrNotFound)

	got, err := repo.SetPaymentID(ctx, o.ID, "alice", "pay_1", order.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, "pay_1", got.Payment.PaymentID)

	_, err = repo.SetPaymentID(ctx, o.ID, "alice", "pay_1", order.StatusProcessing)
	require.ErrorIs(t, err, order.ErrStatusConflict)

	other := seedOrder(t, repo, "alice", time.Now().UTC())
	_, err = repo.SetPaymentID(ctx, other.ID, "alice", "pay_1", order.StatusProcessing)
	require.ErrorIs(t, err, order.ErrPaymentReused)
}

func TestOrderRepository_SetPaymentID_OnlyOnce(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := seedOrder(t, repo, "alice", time.Now().UTC())

	_, err := repo.SetPaymentID(ctx, o.ID, "alice", "pay_1", order.StatusProcessing)
	require.NoError(t, err)

	// Force the paid order back to Pending underneath the service rules.
	_, err = testPool.Exec(ctx, `UPDATE orders SET status = 'Pending' WHERE id = $1`, o.ID)
	require.NoError(t, err)

	_, err = repo.SetPaymentID(ctx, o.ID, "alice", "pay_2", order.StatusProcessing)
	require.ErrorIs(t, err, order.ErrStatusConflict)

	got, err := repo.GetForOwner(ctx, o.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", got.Payment.PaymentID)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestOrderRepository_SetPaymentID_Concurrent(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := seedOrder(t, repo, "alice", time.Now().UTC())

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.SetPaymentID(ctx, o.ID, "alice", "pay_race", order.StatusProcessing)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, order.ErrStatusConflict):
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, conflicts)
}

func TestOrderRepository_SetStatus(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := seedOrder(t, repo, "alice", time.Now().UTC())

	got, err := repo.SetStatus(ctx, o.ID, order.StatusPending, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	_, err = repo.SetStatus(ctx, o.ID, order.StatusPending, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrStatusConflict)

	_, err = repo.SetStatus(ctx, uuid.NewString(), order.StatusPending, order.StatusCancelled)
	require.ErrorIs(t, err, order.ErrNotFound)

	// The schema refuses paid statuses without a payment.
	other := seedOrder(t, repo, "alice", time.Now().UTC())
	_, err = repo.SetStatus(ctx, other.ID, order.StatusPending, order.StatusShipped)
	require.Error(t, err)
}

func TestOrderRepository_Listings(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	users := NewUserRepository(testPool)
	require.NoError(t, users.Upsert(ctx, []user.User{
		{ID: "alice", Name: "Alice Liddell", Email: "alice@example.com"},
		{ID: "bob", Name: "Bob Stone", Email: "bob@fruits.test"},
	}))

	day := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a1 := seedOrder(t, repo, "alice", day)
	a2 := seedOrder(t, repo, "alice", day.Add(24*time.Hour))
	b1 := seedOrder(t, repo, "bob", day.Add(48*time.Hour))
	_, err := repo.SetPaymentID(ctx, b1.ID, "bob", "pay_b1", order.StatusProcessing)
	require.NoError(t, err)

	mine, err := repo.ListByOwner(ctx, "alice", order.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, a2.ID, mine[0].ID, "newest first")
	assert.Equal(t, a1.ID, mine[1].ID)

	tests := []struct {
		name   string
		filter order.Filter
		want   []string
	}{
		{name: "all", filter: order.Filter{}, want: []string{b1.ID, a2.ID, a1.ID}},
		{name: "status", filter: order.Filter{Status: order.StatusProcessing}, want: []string{b1.ID}},
		{name: "search by name", filter: order.Filter{Search: "liddell"}, want: []string{a2.ID, a1.ID}},
		{name: "search by email", filter: order.Filter{Search: "FRUITS.test"}, want: []string{b1.ID}},
		{name: "search by order id", filter: order.Filter{Search: a1.ID[:13]}, want: []string{a1.ID}},
		{name: "like metacharacters are literal", filter: order.Filter{Search: "%"}, want: nil},
		{
			name:   "date range",
			filter: order.Filter{From: day.Add(24 * time.Hour).Truncate(24 * time.Hour), Until: day.Add(48 * time.Hour).Truncate(24 * time.Hour)},
			want:   []string{a2.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, count, err := repo.ListAll(ctx, tt.filter, order.Page{Number: 1, Limit: 20})
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), count)
			var ids []string
			for _, r := range rows {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	rows, count, err := repo.ListAll(ctx, order.Filter{}, order.Page{Number: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.Len(t, rows, 1)
	assert.Equal(t, a1.ID, rows[0].ID)
	assert.Equal(t, "Alice Liddell", rows[0].Owner.Name)
}
