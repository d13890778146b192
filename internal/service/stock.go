package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tandoor-pos/api/internal/database"
)

// IngredientRequirement is one row of the availability report: how
// much of an ingredient the order needs versus what is in stock.
type IngredientRequirement struct {
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Name         string          `json:"name"`
	Required     decimal.Decimal `json:"required_quantity"`
	Available    decimal.Decimal `json:"available_quantity"`
	IsSufficient bool            `json:"is_sufficient"`
}

func buildRequirements(rows []database.OrderIngredientRequirementRow) []IngredientRequirement {
	reqs := make([]IngredientRequirement, len(rows))
	for i, r := range rows {
		required := numericToDecimal(r.RequiredQuantity)
		available := numericToDecimal(r.CurrentStock)
		reqs[i] = IngredientRequirement{
			IngredientID: r.ID,
			Name:         r.Name,
			Required:     required,
			Available:    available,
			IsSufficient: available.GreaterThanOrEqual(required),
		}
	}
	return reqs
}

// deductOrderStock checks sufficiency for every ingredient the order
// needs before touching any row, then decrements them all. Must run
// inside the caller's transaction with the order row already locked;
// it takes the ingredient row locks itself (in stable id order).
func deductOrderStock(ctx context.Context, store Store, orderID uuid.UUID) error {
	if err := store.LockOrderIngredients(ctx, orderID); err != nil {
		return fmt.Errorf("lock ingredients: %w", err)
	}
	rows, err := store.GetOrderIngredientRequirements(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get ingredient requirements: %w", err)
	}

	var shortages []StockShortage
	for _, req := range buildRequirements(rows) {
		if !req.IsSufficient {
			shortages = append(shortages, StockShortage{
				IngredientID: req.IngredientID,
				Name:         req.Name,
				Required:     req.Required,
				Available:    req.Available,
				Short:        req.Required.Sub(req.Available),
			})
		}
	}
	if len(shortages) > 0 {
		return &InsufficientStockError{Shortages: shortages}
	}

	for _, r := range rows {
		required := numericToDecimal(r.RequiredQuantity)
		if _, err := store.AdjustIngredientStock(ctx, database.AdjustIngredientStockParams{
			ID:    r.ID,
			Delta: quantityToNumeric(required.Neg()),
		}); err != nil {
			return fmt.Errorf("deduct ingredient %s: %w", r.Name, err)
		}
	}
	return nil
}

// restoreOrderStock re-adds the quantities a confirmed order deducted.
// Only reachable from the cancellation branch while the order row lock
// is held and inventory_updated is true, so it cannot run twice.
func restoreOrderStock(ctx context.Context, store Store, orderID uuid.UUID) error {
	if err := store.LockOrderIngredients(ctx, orderID); err != nil {
		return fmt.Errorf("lock ingredients: %w", err)
	}
	rows, err := store.GetOrderIngredientRequirements(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get ingredient requirements: %w", err)
	}
	for _, r := range rows {
		required := numericToDecimal(r.RequiredQuantity)
		if _, err := store.AdjustIngredientStock(ctx, database.AdjustIngredientStockParams{
			ID:    r.ID,
			Delta: quantityToNumeric(required),
		}); err != nil {
			return fmt.Errorf("restore ingredient %s: %w", r.Name, err)
		}
	}
	return nil
}
