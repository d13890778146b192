package service

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tandoor-pos/api/internal/database"
)

// Pricing computes line totals and order aggregates. The tax rate is
// configuration, injected once at construction.
type Pricing struct {
	taxRate decimal.Decimal
}

func NewPricing(taxRate decimal.Decimal) Pricing {
	return Pricing{taxRate: taxRate}
}

// LineTotal is the frozen unit price times quantity, at currency
// precision (2 decimal places).
func LineTotal(unitPrice decimal.Decimal, quantity int32) (decimal.Decimal, error) {
	if quantity < 1 {
		return decimal.Zero, ErrInvalidQuantity
	}
	return unitPrice.Mul(decimal.NewFromInt32(quantity)).Round(2), nil
}

// OrderTotals is the recomputed aggregate state of an order.
type OrderTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	FoodCost       decimal.Decimal
}

// Recompute derives every aggregate from the order's line items. The
// original system did this in a database trigger; keeping it here as
// an ordinary function makes the arithmetic independently testable
// while the enclosing transaction preserves the atomicity.
//
//	subtotal  = Σ line.total_price
//	tax       = subtotal × rate
//	total     = subtotal − discount + tax
//	food_cost = Σ line.total_food_cost
func (p Pricing) Recompute(items []database.OrderItem, discount decimal.Decimal) OrderTotals {
	subtotal := decimal.Zero
	foodCost := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(numericToDecimal(it.TotalPrice))
		foodCost = foodCost.Add(numericToDecimal(it.TotalFoodCost))
	}
	tax := subtotal.Mul(p.taxRate).Round(2)
	total := subtotal.Sub(discount).Add(tax)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return OrderTotals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    total,
		FoodCost:       foodCost,
	}
}

// ResolveDiscount turns an absolute amount or a percentage into the
// final discount figure and validates it against the subtotal.
// Exactly one of amount/percentage must be set.
func ResolveDiscount(subtotal decimal.Decimal, amount, percentage *decimal.Decimal) (decimal.Decimal, error) {
	if (amount == nil) == (percentage == nil) {
		return decimal.Zero, fmt.Errorf("%w: provide exactly one of amount or percentage", ErrInvalidDiscount)
	}
	var d decimal.Decimal
	if percentage != nil {
		d = subtotal.Mul(*percentage).Div(decimal.NewFromInt(100)).Round(2)
	} else {
		d = *amount
	}
	if d.IsNegative() || d.GreaterThan(subtotal) {
		return decimal.Zero, ErrInvalidDiscount
	}
	return d, nil
}

// --- pgtype.Numeric bridging ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

// quantityToNumeric keeps three fractional digits, matching the
// NUMERIC(12,3) stock and recipe columns.
func quantityToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(3))
	return n
}
