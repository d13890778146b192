package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// LockOrderIngredients acquires row locks on every ingredient the
// order's recipes touch, in id order so concurrent confirmations over
// overlapping ingredient sets cannot deadlock. FOR UPDATE cannot ride
// on the aggregate query below, hence the separate locking pass.
const lockOrderIngredients = `
SELECT i.id
FROM ingredients i
WHERE i.id IN (
	SELECT r.ingredient_id
	FROM order_items oi
	JOIN recipes r ON r.menu_item_id = oi.menu_item_id
	WHERE oi.order_id = $1
)
ORDER BY i.id
FOR UPDATE
`

func (q *Queries) LockOrderIngredients(ctx context.Context, orderID uuid.UUID) error {
	rows, err := q.db.Query(ctx, lockOrderIngredients, orderID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

const getOrderIngredientRequirements = `
SELECT i.id, i.name, SUM(r.quantity_required * oi.quantity) AS required_quantity, i.current_stock
FROM order_items oi
JOIN recipes r ON r.menu_item_id = oi.menu_item_id
JOIN ingredients i ON i.id = r.ingredient_id
WHERE oi.order_id = $1
GROUP BY i.id, i.name, i.current_stock
ORDER BY i.id
`

type OrderIngredientRequirementRow struct {
	ID               uuid.UUID
	Name             string
	RequiredQuantity pgtype.Numeric
	CurrentStock     pgtype.Numeric
}

func (q *Queries) GetOrderIngredientRequirements(ctx context.Context, orderID uuid.UUID) ([]OrderIngredientRequirementRow, error) {
	rows, err := q.db.Query(ctx, getOrderIngredientRequirements, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reqs []OrderIngredientRequirementRow
	for rows.Next() {
		var r OrderIngredientRequirementRow
		if err := rows.Scan(&r.ID, &r.Name, &r.RequiredQuantity, &r.CurrentStock); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// AdjustIngredientStock moves current_stock by delta (negative to
// deduct, positive to restore). The CHECK (current_stock >= 0)
// constraint backstops the service-level sufficiency check.
const adjustIngredientStock = `
UPDATE ingredients
SET current_stock = current_stock + $2
WHERE id = $1
RETURNING id, name, unit_id, current_stock, minimum_stock, cost_per_unit
`

type AdjustIngredientStockParams struct {
	ID    uuid.UUID
	Delta pgtype.Numeric
}

func (q *Queries) AdjustIngredientStock(ctx context.Context, arg AdjustIngredientStockParams) (Ingredient, error) {
	var i Ingredient
	err := q.db.QueryRow(ctx, adjustIngredientStock, arg.ID, arg.Delta).Scan(
		&i.ID, &i.Name, &i.UnitID, &i.CurrentStock, &i.MinimumStock, &i.CostPerUnit,
	)
	return i, err
}
