package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tandoor-pos/api/internal/database"
	"github.com/tandoor-pos/api/internal/service"
)

// maxItemQuantity is the sanity cap on a single line item. Deeper
// business rules live in the service layer; this one is pure input
// hygiene so it stays at the boundary.
const maxItemQuantity = 50

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	AddItems(ctx context.Context, orderID uuid.UUID, items []service.OrderItemRequest) (*service.OrderResult, error)
	CheckAvailability(ctx context.Context, orderID uuid.UUID) ([]service.IngredientRequirement, error)
	ConfirmOrder(ctx context.Context, orderID uuid.UUID, estimatedReadyTime *time.Time) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, req service.UpdateStatusRequest) (*service.OrderResult, error)
	ApplyDiscount(ctx context.Context, orderID uuid.UUID, req service.ApplyDiscountRequest) (*service.OrderResult, error)
}

// OrderStore defines the database methods needed by the read-only
// order endpoints. Satisfied by *database.Queries.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	GetTodaysSummary(ctx context.Context) (database.TodaysSummaryRow, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/summary/today", h.TodaysSummary)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/items", h.AddItems)
	r.Get("/{id}/availability", h.CheckAvailability)
	r.Post("/{id}/confirm", h.Confirm)
	r.Put("/{id}/status", h.UpdateStatus)
	r.Put("/{id}/discount", h.ApplyDiscount)
}

// --- Request / Response types ---

type createOrderRequest struct {
	OrderType           string             `json:"order_type"`
	TableID             string             `json:"table_id"`
	CustomerID          string             `json:"customer_id"`
	SpecialInstructions string             `json:"special_instructions"`
	Items               []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	MenuItemID   string `json:"menu_item_id"`
	Quantity     int32  `json:"quantity"`
	SpecialNotes string `json:"special_notes"`
}

type addItemsRequest struct {
	Items []orderItemRequest `json:"items"`
}

type confirmOrderRequest struct {
	EstimatedReadyTime *time.Time `json:"estimated_ready_time"`
}

type updateStatusRequest struct {
	Status             string     `json:"status"`
	EstimatedReadyTime *time.Time `json:"estimated_ready_time"`
	PaymentMethod      string     `json:"payment_method"`
}

type applyDiscountRequest struct {
	Amount     *string `json:"amount"`
	Percentage *string `json:"percentage"`
}

type orderResponse struct {
	ID                  uuid.UUID           `json:"id"`
	OrderNumber         string              `json:"order_number"`
	OrderStatus         string              `json:"order_status"`
	OrderType           string              `json:"order_type"`
	TableID             *string             `json:"table_id"`
	CustomerID          *string             `json:"customer_id"`
	Subtotal            string              `json:"subtotal"`
	TaxAmount           string              `json:"tax_amount"`
	DiscountAmount      string              `json:"discount_amount"`
	TotalAmount         string              `json:"total_amount"`
	FoodCost            string              `json:"food_cost"`
	PaymentStatus       string              `json:"payment_status"`
	PaymentMethod       *string             `json:"payment_method"`
	InventoryUpdated    bool                `json:"inventory_updated"`
	SpecialInstructions *string             `json:"special_instructions"`
	EstimatedReadyTime  *time.Time          `json:"estimated_ready_time"`
	OrderDate           time.Time           `json:"order_date"`
	CompletedAt         *time.Time          `json:"completed_at"`
	CancelledAt         *time.Time          `json:"cancelled_at"`
	Items               []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID            uuid.UUID `json:"id"`
	MenuItemID    uuid.UUID `json:"menu_item_id"`
	Quantity      int32     `json:"quantity"`
	UnitPrice     string    `json:"unit_price"`
	TotalPrice    string    `json:"total_price"`
	UnitFoodCost  string    `json:"unit_food_cost"`
	TotalFoodCost string    `json:"total_food_cost"`
	SpecialNotes  *string   `json:"special_notes"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type availabilityResponse struct {
	OrderID     uuid.UUID                       `json:"order_id"`
	Sufficient  bool                            `json:"sufficient"`
	Ingredients []service.IngredientRequirement `json:"ingredients"`
}

type summaryResponse struct {
	TotalOrders     int64  `json:"total_orders"`
	PendingOrders   int64  `json:"pending_orders"`
	PreparingOrders int64  `json:"preparing_orders"`
	ReadyOrders     int64  `json:"ready_orders"`
	CompletedOrders int64  `json:"completed_orders"`
	TotalRevenue    string `json:"total_revenue"`
	AvgOrderValue   string `json:"avg_order_value"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OrderType == "" {
		writeError(w, http.StatusBadRequest, "order_type is required")
		return
	}

	svcReq := service.CreateOrderRequest{
		OrderType:           req.OrderType,
		SpecialInstructions: req.SpecialInstructions,
	}
	if req.TableID != "" {
		id, err := uuid.Parse(req.TableID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid table_id")
			return
		}
		svcReq.TableID = id
	}
	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid customer_id")
			return
		}
		svcReq.CustomerID = id
	}

	if len(req.Items) > 0 {
		items, ok := parseItems(w, req.Items)
		if !ok {
			return
		}
		svcReq.Items = items
	}

	result, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		respondServiceError(w, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(result))
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		params.OrderStatus = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("type"); s != "" {
		params.OrderType = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = toItemResponses(items)
	writeJSON(w, http.StatusOK, resp)
}

// AddItems handles POST /orders/{id}/items.
func (h *OrderHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	items, ok := parseItems(w, req.Items)
	if !ok {
		return
	}

	result, err := h.svc.AddItems(r.Context(), orderID, items)
	if err != nil {
		respondServiceError(w, "add items", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// CheckAvailability handles GET /orders/{id}/availability.
func (h *OrderHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	reqs, err := h.svc.CheckAvailability(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, "check availability", err)
		return
	}

	sufficient := true
	for _, req := range reqs {
		if !req.IsSufficient {
			sufficient = false
			break
		}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		OrderID:     orderID,
		Sufficient:  sufficient,
		Ingredients: reqs,
	})
}

// Confirm handles POST /orders/{id}/confirm.
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req confirmOrderRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.svc.ConfirmOrder(r.Context(), orderID, req.EstimatedReadyTime)
	if err != nil {
		respondServiceError(w, "confirm order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// UpdateStatus handles PUT /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	result, err := h.svc.UpdateStatus(r.Context(), orderID, service.UpdateStatusRequest{
		Status:             req.Status,
		EstimatedReadyTime: req.EstimatedReadyTime,
		PaymentMethod:      req.PaymentMethod,
	})
	if err != nil {
		respondServiceError(w, "update status", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// ApplyDiscount handles PUT /orders/{id}/discount.
func (h *OrderHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	svcReq := service.ApplyDiscountRequest{}
	if req.Amount != nil {
		d, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		svcReq.Amount = &d
	}
	if req.Percentage != nil {
		d, err := decimal.NewFromString(*req.Percentage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid percentage")
			return
		}
		svcReq.Percentage = &d
	}

	result, err := h.svc.ApplyDiscount(r.Context(), orderID, svcReq)
	if err != nil {
		respondServiceError(w, "apply discount", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// TodaysSummary handles GET /orders/summary/today.
func (h *OrderHandler) TodaysSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetTodaysSummary(r.Context())
	if err != nil {
		log.Printf("ERROR: todays summary: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalOrders:     s.TotalOrders,
		PendingOrders:   s.PendingOrders,
		PreparingOrders: s.PreparingOrders,
		ReadyOrders:     s.ReadyOrders,
		CompletedOrders: s.CompletedOrders,
		TotalRevenue:    numericToString(s.TotalRevenue),
		AvgOrderValue:   numericToString(s.AvgOrderValue),
	})
}

// --- Helpers ---

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return uuid.Nil, false
	}
	return id, true
}

// parseItems validates and converts line item requests. Writes the
// error response itself and returns ok=false on bad input.
func parseItems(w http.ResponseWriter, items []orderItemRequest) ([]service.OrderItemRequest, bool) {
	out := make([]service.OrderItemRequest, len(items))
	for i, it := range items {
		if it.MenuItemID == "" {
			writeError(w, http.StatusBadRequest, formatItemError(i, "menu_item_id is required"))
			return nil, false
		}
		id, err := uuid.Parse(it.MenuItemID)
		if err != nil {
			writeError(w, http.StatusBadRequest, formatItemError(i, "invalid menu_item_id"))
			return nil, false
		}
		if it.Quantity < 1 {
			writeError(w, http.StatusBadRequest, formatItemError(i, "quantity must be >= 1"))
			return nil, false
		}
		if it.Quantity > maxItemQuantity {
			writeError(w, http.StatusBadRequest, formatItemError(i, "quantity must be <= 50"))
			return nil, false
		}
		out[i] = service.OrderItemRequest{
			MenuItemID:   id,
			Quantity:     it.Quantity,
			SpecialNotes: it.SpecialNotes,
		}
	}
	return out, true
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// respondServiceError maps service errors onto HTTP statuses: absent
// resources to 404, state conflicts (including stock shortages, which
// carry their shortage list in the body) to 409, everything else the
// service rejects to 400. Unknown errors are logged and masked.
func respondServiceError(w http.ResponseWriter, op string, err error) {
	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "insufficient ingredient stock",
			"shortages": stockErr.Shortages,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrTableNotFound),
		errors.Is(err, service.ErrMenuItemNotFound),
		errors.Is(err, service.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTableUnavailable),
		errors.Is(err, service.ErrOrderClosed),
		errors.Is(err, service.ErrOrderLocked),
		errors.Is(err, service.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidOrderType),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrTableRequired),
		errors.Is(err, service.ErrMenuItemUnavailable),
		errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrDiscountNotAllowed):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func toOrderResponse(result *service.OrderResult) orderResponse {
	resp := dbOrderToResponse(result.Order)
	resp.Items = toItemResponses(result.Items)
	return resp
}

func toItemResponses(items []database.OrderItem) []orderItemResponse {
	out := make([]orderItemResponse, len(items))
	for i, it := range items {
		out[i] = orderItemResponse{
			ID:            it.ID,
			MenuItemID:    it.MenuItemID,
			Quantity:      it.Quantity,
			UnitPrice:     numericToString(it.UnitPrice),
			TotalPrice:    numericToString(it.TotalPrice),
			UnitFoodCost:  numericToString(it.UnitFoodCost),
			TotalFoodCost: numericToString(it.TotalFoodCost),
		}
		if it.SpecialNotes.Valid {
			out[i].SpecialNotes = &it.SpecialNotes.String
		}
	}
	return out
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		OrderStatus:      o.OrderStatus,
		OrderType:        o.OrderType,
		Subtotal:         numericToString(o.Subtotal),
		TaxAmount:        numericToString(o.TaxAmount),
		DiscountAmount:   numericToString(o.DiscountAmount),
		TotalAmount:      numericToString(o.TotalAmount),
		FoodCost:         numericToString(o.FoodCost),
		PaymentStatus:    o.PaymentStatus,
		InventoryUpdated: o.InventoryUpdated,
		OrderDate:        o.OrderDate,
	}
	if o.TableID.Valid {
		s := uuid.UUID(o.TableID.Bytes).String()
		resp.TableID = &s
	}
	if o.CustomerID.Valid {
		s := uuid.UUID(o.CustomerID.Bytes).String()
		resp.CustomerID = &s
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	if o.SpecialInstructions.Valid {
		resp.SpecialInstructions = &o.SpecialInstructions.String
	}
	if o.EstimatedReadyTime.Valid {
		resp.EstimatedReadyTime = &o.EstimatedReadyTime.Time
	}
	if o.CompletedAt.Valid {
		resp.CompletedAt = &o.CompletedAt.Time
	}
	if o.CancelledAt.Valid {
		resp.CancelledAt = &o.CancelledAt.Time
	}
	return resp
}
