package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/fruitsmith-checkout/internal/domain/order"
)

const paymentIDIndex = "orders_gateway_payment_id_idx"

const orderColumns = `o.id::text, o.owner_id, o.items,
	o.ship_name, o.ship_mobile, o.ship_street, o.ship_city, o.ship_state, o.ship_zip, o.ship_country,
	o.subtotal, o.delivery_fee, o.total_amount, o.currency, o.status,
	o.payment_provider, o.gateway_session_id, COALESCE(o.gateway_payment_id, ''),
	o.created_at, o.updated_at`

const ownerColumns = `COALESCE(u.name, ''), COALESCE(u.email, '')`

const (
	createOrderSQL = `INSERT INTO orders (
		id, owner_id, items,
		ship_name, ship_mobile, ship_street, ship_city, ship_state, ship_zip, ship_country,
		subtotal, delivery_fee, total_amount, currency, status,
		payment_provider, gateway_session_id, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	getOrderSQL = `SELECT ` + orderColumns + `, ` + ownerColumns + `
		FROM orders o LEFT JOIN users u ON u.id = o.owner_id
		WHERE o.id = $1`

	getOwnerOrderSQL = `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.id = $1 AND o.owner_id = $2`

	listOwnerOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.owner_id = $1
		ORDER BY o.created_at DESC, o.id
		LIMIT $2 OFFSET $3`

	setStatusSQL = `UPDATE orders AS o SET status = $3, updated_at = now()
		WHERE o.id = $1 AND o.status = $2
		RETURNING ` + orderColumns

	setPaymentIDSQL = `UPDATE orders AS o SET status = $4, gateway_payment_id = $3, updated_at = now()
		WHERE o.id = $1 AND o.owner_id = $2 AND o.status = 'Pending'
			AND o.gateway_payment_id IS NULL
		RETURNING ` + orderColumns

	orderExistsSQL      = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
	ownerOrderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1 AND owner_id = $2)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The line items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	a := o.ShippingAddress
	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OwnerID, itemsJSON,
		a.Name, a.Mobile, a.Street, a.City, a.State, a.Zip, a.Country,
		o.Subtotal, o.DeliveryFee, o.TotalAmount, o.Currency, string(o.Status),
		o.Payment.Provider, o.Payment.SessionID, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns any order with its owner's name and email.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.AdminOrder, error) {
	if !validID(id) {
		return nil, order.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanAdminOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// GetForOwner returns the order only if ownerID owns it.
func (r *OrderRepository) GetForOwner(ctx context.Context, id, ownerID string) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getOwnerOrderSQL, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByOwner returns a page of the owner's orders, newest first.
func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID string, page order.Page) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOwnerOrdersSQL, ownerID, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", ownerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListAll returns a filtered page over all orders, newest first, together
// with the number of orders matching the filter.
func (r *OrderRepository) ListAll(ctx context.Context, filter order.Filter, page order.Page) ([]order.AdminOrder, int, error) {
	where, args := filterClause(filter)

	var count int
	countSQL := `SELECT count(*) FROM orders o LEFT JOIN users u ON u.id = o.owner_id` + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	if count == 0 {
		return []order.AdminOrder{}, 0, nil
	}

	n := len(args)
	listSQL := `SELECT ` + orderColumns + `, ` + ownerColumns + `
		FROM orders o LEFT JOIN users u ON u.id = o.owner_id` + where + `
		ORDER BY o.created_at DESC, o.id
		LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.pool.Query(ctx, listSQL, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanAdminOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, count, nil
}

// filterClause renders filter as a WHERE clause with positional arguments.
func filterClause(filter order.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		conds = append(conds, "o.status = "+arg(string(filter.Status)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		p := arg("%" + escapeLike(s) + "%")
		conds = append(conds, "(o.id::text ILIKE "+p+
			" OR o.owner_id ILIKE "+p+
			" OR u.name ILIKE "+p+
			" OR u.email ILIKE "+p+")")
	}
	if !filter.From.IsZero() {
		conds = append(conds, "o.created_at >= "+arg(filter.From))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "o.created_at < "+arg(filter.Until))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SetStatus moves the order from -> to in one conditional UPDATE.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, setStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}
	return nil, r.missOrConflict(ctx, orderExistsSQL, id)
}

// SetPaymentID records the payment and moves the owner's Pending order to
// the given status in one conditional UPDATE. The partial unique index on
// gateway_payment_id keeps a payment from settling two orders.
func (r *OrderRepository) SetPaymentID(ctx context.Context, id, ownerID, paymentID string, to order.Status) (*order.Order, error) {
	if !validID(id) {
		return nil, order.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, setPaymentIDSQL, id, ownerID, paymentID, string(to))
	if err != nil {
		return nil, fmt.Errorf("recording payment on order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if isUniqueViolation(err, paymentIDIndex) {
		return nil, order.ErrPaymentReused
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("recording payment on order %q: %w", id, err)
	}
	return nil, r.missOrConflict(ctx, ownerOrderExistsSQL, id, ownerID)
}

// missOrConflict explains a conditional UPDATE that matched no row.
func (r *OrderRepository) missOrConflict(ctx context.Context, existsSQL string, args ...any) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, existsSQL, args...).Scan(&exists); err != nil {
		return fmt.Errorf("checking order: %w", err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

func validID(id string) bool {
	return uuid.Validate(id) == nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		items  []byte
		status string
		a      = &o.ShippingAddress
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &items,
		&a.Name, &a.Mobile, &a.Street, &a.City, &a.State, &a.Zip, &a.Country,
		&o.Subtotal, &o.DeliveryFee, &o.TotalAmount, &o.Currency, &status,
		&o.Payment.Provider, &o.Payment.SessionID, &o.Payment.PaymentID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}

func scanAdminOrder(row pgx.CollectableRow) (order.AdminOrder, error) {
	var (
		o      order.AdminOrder
		items  []byte
		status string
		a      = &o.ShippingAddress
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &items,
		&a.Name, &a.Mobile, &a.Street, &a.City, &a.State, &a.Zip, &a.Country,
		&o.Subtotal, &o.DeliveryFee, &o.TotalAmount, &o.Currency, &status,
		&o.Payment.Provider, &o.Payment.SessionID, &o.Payment.PaymentID,
		&o.CreatedAt, &o.UpdatedAt,
		&o.Owner.Name, &o.Owner.Email,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.Owner.ID = o.OwnerID
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}
