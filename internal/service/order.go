package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tandoor-pos/api/internal/database"
	"github.com/tandoor-pos/api/internal/enum"
)

const maxOrderNumberRetries = 3

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods the order workflows need.
// Satisfied by *database.Queries (pool- or tx-bound).
type Store interface {
	GetTable(ctx context.Context, id uuid.UUID) (database.RestaurantTable, error)
	ReserveTable(ctx context.Context, id uuid.UUID) (database.RestaurantTable, error)
	ReleaseTable(ctx context.Context, id uuid.UUID) error

	GetNextOrderNumber(ctx context.Context) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	MarkInventoryDeducted(ctx context.Context, arg database.MarkInventoryDeductedParams) (database.Order, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)

	ListMenuItemsForOrder(ctx context.Context, ids []uuid.UUID) ([]database.MenuItemForOrderRow, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)

	LockOrderIngredients(ctx context.Context, orderID uuid.UUID) error
	GetOrderIngredientRequirements(ctx context.Context, orderID uuid.UUID) ([]database.OrderIngredientRequirementRow, error)
	AdjustIngredientStock(ctx context.Context, arg database.AdjustIngredientStockParams) (database.Ingredient, error)
}

// NewStore creates a Store from a DBTX (pool or tx). This allows the
// service to create store instances bound to its transactions.
type NewStore func(db database.DBTX) Store

// EventPublisher broadcasts order lifecycle events. Implementations
// must tolerate being called after the owning transaction committed;
// publish failures are logged, never surfaced.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// OrderEvent is the lifecycle event payload.
type OrderEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	OrderStatus string    `json:"order_status"`
	OrderType   string    `json:"order_type"`
	TotalAmount string    `json:"total_amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// --- Requests / results ---

// CreateOrderRequest is the validated input for creating an order.
// IDs are uuid.Nil when absent.
type CreateOrderRequest struct {
	TableID             uuid.UUID
	CustomerID          uuid.UUID
	OrderType           string
	SpecialInstructions string
	Items               []OrderItemRequest
}

// OrderItemRequest is a single line in an order or add-items batch.
type OrderItemRequest struct {
	MenuItemID   uuid.UUID
	Quantity     int32
	SpecialNotes string
}

// UpdateStatusRequest carries a status transition and its optional
// companions. This is the full set of mutable fields; arbitrary
// column updates are not representable.
type UpdateStatusRequest struct {
	Status             string
	EstimatedReadyTime *time.Time
	PaymentMethod      string
}

// ApplyDiscountRequest sets either an absolute amount or a percentage
// of the subtotal, never both.
type ApplyDiscountRequest struct {
	Amount     *decimal.Decimal
	Percentage *decimal.Decimal
}

// OrderResult is an order with its line items and fresh totals.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService owns the order lifecycle: creation, line items, stock
// deduction on confirm, status transitions with their compensations,
// and total recomputation. Every mutating workflow runs in a single
// transaction and locks the order row first.
type OrderService struct {
	pool     TxBeginner
	store    Store
	newStore NewStore
	pricing  Pricing
	events   EventPublisher
}

// NewOrderService creates a new OrderService. events may be nil.
func NewOrderService(pool TxBeginner, store Store, newStore NewStore, pricing Pricing, events EventPublisher) *OrderService {
	return &OrderService{pool: pool, store: store, newStore: newStore, pricing: pricing, events: events}
}

// --- Create ---

// CreateOrder reserves the table (dine-in), persists the order and any
// initial items, and recomputes totals, all atomically. Retries up to
// maxOrderNumberRetries times on order_number unique violations
// (concurrent transactions can observe the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	if !isValidOrderType(req.OrderType) {
		return nil, ErrInvalidOrderType
	}
	if req.OrderType == enum.OrderTypeDineIn && req.TableID == uuid.Nil {
		return nil, ErrTableRequired
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			s.publish(ctx, "order.created", result.Order)
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Reserve the table first: an atomic check-and-set so two orders
	// racing for the same table cannot both win.
	tableID := pgtype.UUID{}
	if req.TableID != uuid.Nil {
		if _, err := store.ReserveTable(ctx, req.TableID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				if _, getErr := store.GetTable(ctx, req.TableID); getErr != nil {
					if errors.Is(getErr, pgx.ErrNoRows) {
						return nil, ErrTableNotFound
					}
					return nil, fmt.Errorf("get table: %w", getErr)
				}
				return nil, ErrTableUnavailable
			}
			return nil, fmt.Errorf("reserve table: %w", err)
		}
		tableID = pgtype.UUID{Bytes: req.TableID, Valid: true}
	}

	nextNum, err := store.GetNextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("ORD-%s-%03d", time.Now().UTC().Format("20060102"), nextNum)

	customerID := pgtype.UUID{}
	if req.CustomerID != uuid.Nil {
		customerID = pgtype.UUID{Bytes: req.CustomerID, Valid: true}
	}
	instructions := pgtype.Text{}
	if req.SpecialInstructions != "" {
		instructions = pgtype.Text{String: req.SpecialInstructions, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:         orderNumber,
		OrderStatus:         enum.OrderStatusPending,
		OrderType:           req.OrderType,
		TableID:             tableID,
		CustomerID:          customerID,
		PaymentStatus:       enum.PaymentStatusUnpaid,
		SpecialInstructions: instructions,
	})
	if err != nil {
		if isForeignKeyViolation(err, "orders_customer_id_fkey") {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	var items []database.OrderItem
	if len(req.Items) > 0 {
		if items, err = s.insertItems(ctx, store, order.ID, req.Items); err != nil {
			return nil, err
		}
		if order, items, err = s.refreshTotals(ctx, store, order.ID, numericToDecimal(order.DiscountAmount)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, Items: items}, nil
}

// --- Line items ---

// AddItems appends line items to an open order. The whole batch is
// validated before any insert: one bad item rejects all of them.
func (s *OrderService) AddItems(ctx context.Context, orderID uuid.UUID, items []OrderItemRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if isTerminalStatus(order.OrderStatus) {
		return nil, ErrOrderClosed
	}
	if order.InventoryUpdated {
		return nil, ErrOrderLocked
	}

	if _, err := s.insertItems(ctx, store, order.ID, items); err != nil {
		return nil, err
	}
	order, lines, err := s.refreshTotals(ctx, store, order.ID, numericToDecimal(order.DiscountAmount))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, Items: lines}, nil
}

// insertItems validates the entire batch against the menu, then
// snapshots unit_price and unit_food_cost into new line items.
func (s *OrderService) insertItems(ctx context.Context, store Store, orderID uuid.UUID, items []OrderItemRequest) ([]database.OrderItem, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		ids[i] = it.MenuItemID
	}

	rows, err := store.ListMenuItemsForOrder(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	menu := make(map[uuid.UUID]database.MenuItemForOrderRow, len(rows))
	for _, m := range rows {
		menu[m.ID] = m
	}

	// Validate everything before the first insert.
	for i, it := range items {
		m, ok := menu[it.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
		}
		if !m.IsAvailable {
			return nil, fmt.Errorf("items[%d]: %q: %w", i, m.Name, ErrMenuItemUnavailable)
		}
	}

	inserted := make([]database.OrderItem, 0, len(items))
	for i, it := range items {
		m := menu[it.MenuItemID]
		unitPrice := numericToDecimal(m.Price)
		totalPrice, err := LineTotal(unitPrice, it.Quantity)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		unitFoodCost := numericToDecimal(m.UnitFoodCost)
		totalFoodCost := unitFoodCost.Mul(decimal.NewFromInt32(it.Quantity)).Round(2)

		notes := pgtype.Text{}
		if it.SpecialNotes != "" {
			notes = pgtype.Text{String: it.SpecialNotes, Valid: true}
		}

		line, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:       orderID,
			MenuItemID:    it.MenuItemID,
			Quantity:      it.Quantity,
			UnitPrice:     decimalToNumeric(unitPrice),
			TotalPrice:    decimalToNumeric(totalPrice),
			UnitFoodCost:  decimalToNumeric(unitFoodCost),
			TotalFoodCost: decimalToNumeric(totalFoodCost),
			SpecialNotes:  notes,
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		inserted = append(inserted, line)
	}
	return inserted, nil
}

// refreshTotals re-derives the order aggregates from its current line
// items and persists them.
func (s *OrderService) refreshTotals(ctx context.Context, store Store, orderID uuid.UUID, discount decimal.Decimal) (database.Order, []database.OrderItem, error) {
	lines, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("list order items: %w", err)
	}
	totals := s.pricing.Recompute(lines, discount)
	order, err := store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:             orderID,
		Subtotal:       decimalToNumeric(totals.Subtotal),
		TaxAmount:      decimalToNumeric(totals.TaxAmount),
		DiscountAmount: decimalToNumeric(totals.DiscountAmount),
		TotalAmount:    decimalToNumeric(totals.TotalAmount),
		FoodCost:       decimalToNumeric(totals.FoodCost),
	})
	if err != nil {
		return database.Order{}, nil, fmt.Errorf("update order totals: %w", err)
	}
	return order, lines, nil
}

// --- Availability / confirmation ---

// CheckAvailability reports, per ingredient the order's recipes need,
// required versus available stock. Pure read, no side effects.
func (s *OrderService) CheckAvailability(ctx context.Context, orderID uuid.UUID) ([]IngredientRequirement, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	rows, err := s.store.GetOrderIngredientRequirements(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get ingredient requirements: %w", err)
	}
	return buildRequirements(rows), nil
}

// ConfirmOrder deducts ingredient stock for the order and marks it
// confirmed. Deduction is all-or-nothing: any shortage aborts with an
// InsufficientStockError naming every short ingredient.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID uuid.UUID, estimatedReadyTime *time.Time) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order, err = s.confirmLocked(ctx, store, order, estimatedReadyTime)
	if err != nil {
		return nil, err
	}
	lines, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	s.publish(ctx, "order.status_changed", order)
	return &OrderResult{Order: order, Items: lines}, nil
}

// confirmLocked runs the deduction flow for an order whose row lock is
// already held, shared by ConfirmOrder and UpdateStatus(confirmed).
func (s *OrderService) confirmLocked(ctx context.Context, store Store, order database.Order, estimatedReadyTime *time.Time) (database.Order, error) {
	if isTerminalStatus(order.OrderStatus) {
		return database.Order{}, ErrOrderClosed
	}
	if order.InventoryUpdated {
		return database.Order{}, ErrAlreadyConfirmed
	}

	if err := deductOrderStock(ctx, store, order.ID); err != nil {
		return database.Order{}, err
	}

	ert := pgtype.Timestamptz{}
	if estimatedReadyTime != nil {
		ert = pgtype.Timestamptz{Time: *estimatedReadyTime, Valid: true}
	}
	updated, err := store.MarkInventoryDeducted(ctx, database.MarkInventoryDeductedParams{
		ID:                 order.ID,
		OrderStatus:        enum.OrderStatusConfirmed,
		EstimatedReadyTime: ert,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// inventory_updated flipped underneath us; the row lock
			// should make this unreachable.
			return database.Order{}, ErrAlreadyConfirmed
		}
		return database.Order{}, fmt.Errorf("mark inventory deducted: %w", err)
	}
	return updated, nil
}

// --- Status transitions ---

// UpdateStatus moves an order through the state machine and applies
// the transition's side effects: completed/cancelled release the
// table, cancellation restores previously deducted stock, a payment
// method marks the order paid, and a move into confirmed runs the
// full confirmation (deduction) flow.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, req UpdateStatusRequest) (*OrderResult, error) {
	// Reject bad inputs before any mutation.
	if !isValidStatus(req.Status) {
		return nil, ErrInvalidStatus
	}
	if req.PaymentMethod != "" && !isValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := ensureNotTerminal(order.OrderStatus); err != nil {
		return nil, err
	}

	wasDeducted := order.InventoryUpdated

	var updated database.Order
	switch {
	case req.Status == enum.OrderStatusConfirmed:
		// Entering confirmed through the generic endpoint still goes
		// through the deduction flow, so stock cannot be skipped and a
		// second confirmation fails the same way ConfirmOrder does.
		updated, err = s.confirmLocked(ctx, store, order, req.EstimatedReadyTime)
		if err != nil {
			return nil, err
		}
		if req.PaymentMethod != "" {
			updated, err = s.applyStatus(ctx, store, updated.ID, req)
			if err != nil {
				return nil, err
			}
		}
	default:
		updated, err = s.applyStatus(ctx, store, order.ID, req)
		if err != nil {
			return nil, err
		}
	}

	if isTerminalStatus(req.Status) {
		if req.Status == enum.OrderStatusCancelled && wasDeducted {
			if err := restoreOrderStock(ctx, store, order.ID); err != nil {
				return nil, err
			}
		}
		if order.TableID.Valid {
			if err := store.ReleaseTable(ctx, order.TableID.Bytes); err != nil {
				return nil, fmt.Errorf("release table: %w", err)
			}
		}
	}

	lines, err := store.ListOrderItemsByOrder(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	s.publish(ctx, "order.status_changed", updated)
	return &OrderResult{Order: updated, Items: lines}, nil
}

func (s *OrderService) applyStatus(ctx context.Context, store Store, orderID uuid.UUID, req UpdateStatusRequest) (database.Order, error) {
	params := database.UpdateOrderStatusParams{
		ID:          orderID,
		OrderStatus: req.Status,
	}
	if req.EstimatedReadyTime != nil {
		params.EstimatedReadyTime = pgtype.Timestamptz{Time: *req.EstimatedReadyTime, Valid: true}
	}
	if req.PaymentMethod != "" {
		params.PaymentMethod = pgtype.Text{String: req.PaymentMethod, Valid: true}
	}
	now := time.Now().UTC()
	switch req.Status {
	case enum.OrderStatusCompleted:
		params.CompletedAt = pgtype.Timestamptz{Time: now, Valid: true}
	case enum.OrderStatusCancelled:
		params.CancelledAt = pgtype.Timestamptz{Time: now, Valid: true}
	}
	updated, err := store.UpdateOrderStatus(ctx, params)
	if err != nil {
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// --- Discounts ---

// ApplyDiscount resolves and validates the discount against the
// current subtotal, then recomputes the order totals.
func (s *OrderService) ApplyDiscount(ctx context.Context, orderID uuid.UUID, req ApplyDiscountRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	switch order.OrderStatus {
	case enum.OrderStatusPending, enum.OrderStatusConfirmed, enum.OrderStatusPreparing:
	default:
		return nil, ErrDiscountNotAllowed
	}

	discount, err := ResolveDiscount(numericToDecimal(order.Subtotal), req.Amount, req.Percentage)
	if err != nil {
		return nil, err
	}
	order, lines, err := s.refreshTotals(ctx, store, order.ID, discount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, Items: lines}, nil
}

// --- Helpers ---

func (s *OrderService) publish(ctx context.Context, key string, order database.Order) {
	if s.events == nil {
		return
	}
	evt := OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OrderStatus: order.OrderStatus,
		OrderType:   order.OrderType,
		TotalAmount: numericToDecimal(order.TotalAmount).StringFixed(2),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, key, evt); err != nil {
		log.Printf("WARN: publish %s for %s: %v", key, order.OrderNumber, err)
	}
}

func isValidOrderType(s string) bool {
	switch s {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeaway, enum.OrderTypeDelivery:
		return true
	}
	return false
}

func isValidPaymentMethod(s string) bool {
	switch s {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodUPI:
		return true
	}
	return false
}

// isOrderNumberConflict checks for a unique constraint violation on
// order_number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key"
	}
	return false
}

func isForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" && pgErr.ConstraintName == constraint
	}
	return false
}
