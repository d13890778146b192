package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors returned by the order service. Handlers map these onto HTTP
// statuses; everything here is a business rejection, not a transient
// fault, so nothing is retryable by the caller as-is.
var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrTableNotFound    = errors.New("table not found")
	ErrMenuItemNotFound = errors.New("menu item not found")
	ErrCustomerNotFound = errors.New("customer not found")

	ErrTableUnavailable = errors.New("table is not available")
	ErrOrderClosed      = errors.New("order is completed or cancelled")
	ErrOrderLocked      = errors.New("ingredients already committed, items can no longer be added")
	ErrAlreadyConfirmed = errors.New("order already confirmed")

	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidOrderType     = errors.New("invalid order_type")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidQuantity      = errors.New("quantity must be >= 1")
	ErrEmptyItems           = errors.New("items are required")
	ErrTableRequired        = errors.New("table_id is required for dine_in orders")
	ErrMenuItemUnavailable  = errors.New("menu item is not available")

	ErrInvalidDiscount    = errors.New("discount must be between 0 and the order subtotal")
	ErrDiscountNotAllowed = errors.New("discount can only be applied to pending, confirmed or preparing orders")

	ErrInsufficientStock = errors.New("insufficient ingredient stock")
)

// StockShortage reports one ingredient that cannot cover an order.
type StockShortage struct {
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Name         string          `json:"name"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
	Short        decimal.Decimal `json:"short"`
}

// InsufficientStockError carries the full shortage list so the caller
// can adjust the order instead of blindly retrying.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s (need %s, have %s)", s.Name, s.Required, s.Available)
	}
	return "insufficient ingredient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
