package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Order struct {
	ID                  uuid.UUID
	OrderNumber         string
	OrderStatus         string
	OrderType           string
	TableID             pgtype.UUID
	CustomerID          pgtype.UUID
	Subtotal            pgtype.Numeric
	TaxAmount           pgtype.Numeric
	DiscountAmount      pgtype.Numeric
	TotalAmount         pgtype.Numeric
	FoodCost            pgtype.Numeric
	PaymentStatus       string
	PaymentMethod       pgtype.Text
	InventoryUpdated    bool
	SpecialInstructions pgtype.Text
	EstimatedReadyTime  pgtype.Timestamptz
	OrderDate           time.Time
	CompletedAt         pgtype.Timestamptz
	CancelledAt         pgtype.Timestamptz
}

type OrderItem struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	MenuItemID    uuid.UUID
	Quantity      int32
	UnitPrice     pgtype.Numeric
	TotalPrice    pgtype.Numeric
	UnitFoodCost  pgtype.Numeric
	TotalFoodCost pgtype.Numeric
	SpecialNotes  pgtype.Text
}

type MenuItem struct {
	ID          uuid.UUID
	CategoryID  pgtype.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	IsAvailable bool
	CreatedAt   time.Time
}

type Ingredient struct {
	ID           uuid.UUID
	Name         string
	UnitID       pgtype.UUID
	CurrentStock pgtype.Numeric
	MinimumStock pgtype.Numeric
	CostPerUnit  pgtype.Numeric
}

type RestaurantTable struct {
	ID          uuid.UUID
	TableNumber string
	Capacity    int32
	Location    pgtype.Text
	IsAvailable bool
}
