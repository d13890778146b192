package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ListMenuItemsForOrder batch-resolves the menu items of an order
// request. unit_food_cost is the recipe cost of one unit, derived at
// read time so line items can snapshot it alongside the sale price.
const listMenuItemsForOrder = `
SELECT m.id, m.name, m.price, m.is_available,
	COALESCE(SUM(r.quantity_required * i.cost_per_unit), 0) AS unit_food_cost
FROM menu_items m
LEFT JOIN recipes r ON r.menu_item_id = m.id
LEFT JOIN ingredients i ON i.id = r.ingredient_id
WHERE m.id = ANY($1::uuid[])
GROUP BY m.id, m.name, m.price, m.is_available
`

type MenuItemForOrderRow struct {
	ID           uuid.UUID
	Name         string
	Price        pgtype.Numeric
	IsAvailable  bool
	UnitFoodCost pgtype.Numeric
}

func (q *Queries) ListMenuItemsForOrder(ctx context.Context, ids []uuid.UUID) ([]MenuItemForOrderRow, error) {
	rows, err := q.db.Query(ctx, listMenuItemsForOrder, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItemForOrderRow
	for rows.Next() {
		var m MenuItemForOrderRow
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.IsAvailable, &m.UnitFoodCost); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
