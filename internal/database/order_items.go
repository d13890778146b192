package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, menu_item_id, quantity, unit_price, total_price,
	unit_food_cost, total_food_cost, special_notes`

func scanOrderItem(row interface{ Scan(dest ...any) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID, &i.OrderID, &i.MenuItemID, &i.Quantity, &i.UnitPrice, &i.TotalPrice,
		&i.UnitFoodCost, &i.TotalFoodCost, &i.SpecialNotes,
	)
	return i, err
}

const createOrderItem = `
INSERT INTO order_items (
	order_id, menu_item_id, quantity, unit_price, total_price,
	unit_food_cost, total_food_cost, special_notes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID       uuid.UUID
	MenuItemID    uuid.UUID
	Quantity      int32
	UnitPrice     pgtype.Numeric
	TotalPrice    pgtype.Numeric
	UnitFoodCost  pgtype.Numeric
	TotalFoodCost pgtype.Numeric
	SpecialNotes  pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.Quantity, arg.UnitPrice, arg.TotalPrice,
		arg.UnitFoodCost, arg.TotalFoodCost, arg.SpecialNotes,
	)
	return scanOrderItem(row)
}

const listOrderItemsByOrder = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
