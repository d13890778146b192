package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, order_status, order_type, table_id, customer_id,
	subtotal, tax_amount, discount_amount, total_amount, food_cost,
	payment_status, payment_method, inventory_updated, special_instructions,
	estimated_ready_time, order_date, completed_at, cancelled_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.OrderStatus, &o.OrderType, &o.TableID, &o.CustomerID,
		&o.Subtotal, &o.TaxAmount, &o.DiscountAmount, &o.TotalAmount, &o.FoodCost,
		&o.PaymentStatus, &o.PaymentMethod, &o.InventoryUpdated, &o.SpecialInstructions,
		&o.EstimatedReadyTime, &o.OrderDate, &o.CompletedAt, &o.CancelledAt,
	)
	return o, err
}

// GetNextOrderNumber returns the next per-day sequence number. Two
// concurrent transactions can observe the same MAX; the unique
// constraint on order_number catches the loser and the service retries.
const getNextOrderNumber = `
SELECT COALESCE(MAX(split_part(order_number, '-', 3)::int), 0) + 1
FROM orders
WHERE order_number LIKE 'ORD-' || to_char(now(), 'YYYYMMDD') || '-%'
`

func (q *Queries) GetNextOrderNumber(ctx context.Context) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber).Scan(&n)
	return n, err
}

const createOrder = `
INSERT INTO orders (
	order_number, order_status, order_type, table_id, customer_id,
	payment_status, special_instructions
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber         string
	OrderStatus         string
	OrderType           string
	TableID             pgtype.UUID
	CustomerID          pgtype.UUID
	PaymentStatus       string
	SpecialInstructions pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.OrderStatus, arg.OrderType, arg.TableID, arg.CustomerID,
		arg.PaymentStatus, arg.SpecialInstructions,
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

// GetOrderForUpdate locks the order row, serializing every mutating
// workflow (add items, confirm, cancel, discount) per order id.
const getOrderForUpdate = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR NO KEY UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text IS NULL OR order_status = $1)
  AND ($2::text IS NULL OR order_type = $2)
ORDER BY order_date DESC
LIMIT $3 OFFSET $4
`

type ListOrdersParams struct {
	OrderStatus pgtype.Text
	OrderType   pgtype.Text
	Limit       int32
	Offset      int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.OrderStatus, arg.OrderType, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus applies a status transition plus its optional
// companions. Only the enumerated columns here are reachable from the
// API; there is deliberately no generic column-update path.
const updateOrderStatus = `
UPDATE orders SET
	order_status = $2,
	estimated_ready_time = COALESCE($3, estimated_ready_time),
	payment_method = COALESCE($4, payment_method),
	payment_status = CASE WHEN $4::text IS NOT NULL THEN 'paid' ELSE payment_status END,
	completed_at = COALESCE($5, completed_at),
	cancelled_at = COALESCE($6, cancelled_at)
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID                 uuid.UUID
	OrderStatus        string
	EstimatedReadyTime pgtype.Timestamptz
	PaymentMethod      pgtype.Text
	CompletedAt        pgtype.Timestamptz
	CancelledAt        pgtype.Timestamptz
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus,
		arg.ID, arg.OrderStatus, arg.EstimatedReadyTime, arg.PaymentMethod,
		arg.CompletedAt, arg.CancelledAt,
	)
	return scanOrder(row)
}

// MarkInventoryDeducted flips the one-shot deduction flag and moves the
// order to confirmed. The inventory_updated guard makes a double
// confirm fail with no rows even if a caller slips past the row lock.
const markInventoryDeducted = `
UPDATE orders SET
	inventory_updated = true,
	order_status = $2,
	estimated_ready_time = COALESCE($3, estimated_ready_time)
WHERE id = $1 AND inventory_updated = false
RETURNING ` + orderColumns

type MarkInventoryDeductedParams struct {
	ID                 uuid.UUID
	OrderStatus        string
	EstimatedReadyTime pgtype.Timestamptz
}

func (q *Queries) MarkInventoryDeducted(ctx context.Context, arg MarkInventoryDeductedParams) (Order, error) {
	row := q.db.QueryRow(ctx, markInventoryDeducted, arg.ID, arg.OrderStatus, arg.EstimatedReadyTime)
	return scanOrder(row)
}

const updateOrderTotals = `
UPDATE orders SET
	subtotal = $2,
	tax_amount = $3,
	discount_amount = $4,
	total_amount = $5,
	food_cost = $6
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID             uuid.UUID
	Subtotal       pgtype.Numeric
	TaxAmount      pgtype.Numeric
	DiscountAmount pgtype.Numeric
	TotalAmount    pgtype.Numeric
	FoodCost       pgtype.Numeric
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID, arg.Subtotal, arg.TaxAmount, arg.DiscountAmount, arg.TotalAmount, arg.FoodCost,
	)
	return scanOrder(row)
}

const getTodaysSummary = `
SELECT
	COUNT(*) AS total_orders,
	COUNT(*) FILTER (WHERE order_status = 'pending') AS pending_orders,
	COUNT(*) FILTER (WHERE order_status = 'preparing') AS preparing_orders,
	COUNT(*) FILTER (WHERE order_status = 'ready') AS ready_orders,
	COUNT(*) FILTER (WHERE order_status = 'completed') AS completed_orders,
	COALESCE(SUM(total_amount) FILTER (WHERE order_status = 'completed'), 0) AS total_revenue,
	COALESCE(AVG(total_amount) FILTER (WHERE order_status = 'completed'), 0) AS avg_order_value
FROM orders
WHERE order_date::date = CURRENT_DATE
`

type TodaysSummaryRow struct {
	TotalOrders     int64
	PendingOrders   int64
	PreparingOrders int64
	ReadyOrders     int64
	CompletedOrders int64
	TotalRevenue    pgtype.Numeric
	AvgOrderValue   pgtype.Numeric
}

func (q *Queries) GetTodaysSummary(ctx context.Context) (TodaysSummaryRow, error) {
	var s TodaysSummaryRow
	err := q.db.QueryRow(ctx, getTodaysSummary).Scan(
		&s.TotalOrders, &s.PendingOrders, &s.PreparingOrders, &s.ReadyOrders,
		&s.CompletedOrders, &s.TotalRevenue, &s.AvgOrderValue,
	)
	return s, err
}
