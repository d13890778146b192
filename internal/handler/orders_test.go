package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tandoor-pos/api/internal/database"
	"github.com/tandoor-pos/api/internal/enum"
	"github.com/tandoor-pos/api/internal/handler"
	"github.com/tandoor-pos/api/internal/service"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn            func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	addItemsFn          func(ctx context.Context, orderID uuid.UUID, items []service.OrderItemRequest) (*service.OrderResult, error)
	checkAvailabilityFn func(ctx context.Context, orderID uuid.UUID) ([]service.IngredientRequirement, error)
	confirmOrderFn      func(ctx context.Context, orderID uuid.UUID, ert *time.Time) (*service.OrderResult, error)
	updateStatusFn      func(ctx context.Context, orderID uuid.UUID, req service.UpdateStatusRequest) (*service.OrderResult, error)
	applyDiscountFn     func(ctx context.Context, orderID uuid.UUID, req service.ApplyDiscountRequest) (*service.OrderResult, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
	return m.createFn(ctx, req)
}
func (m *mockOrderService) AddItems(ctx context.Context, orderID uuid.UUID, items []service.OrderItemRequest) (*service.OrderResult, error) {
	return m.addItemsFn(ctx, orderID, items)
}
func (m *mockOrderService) CheckAvailability(ctx context.Context, orderID uuid.UUID) ([]service.IngredientRequirement, error) {
	return m.checkAvailabilityFn(ctx, orderID)
}
func (m *mockOrderService) ConfirmOrder(ctx context.Context, orderID uuid.UUID, ert *time.Time) (*service.OrderResult, error) {
	return m.confirmOrderFn(ctx, orderID, ert)
}
func (m *mockOrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, req service.UpdateStatusRequest) (*service.OrderResult, error) {
	return m.updateStatusFn(ctx, orderID, req)
}
func (m *mockOrderService) ApplyDiscount(ctx context.Context, orderID uuid.UUID, req service.ApplyDiscountRequest) (*service.OrderResult, error) {
	return m.applyDiscountFn(ctx, orderID, req)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn              func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrdersFn            func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listOrderItemsByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	getTodaysSummaryFn      func(ctx context.Context) (database.TodaysSummaryRow, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

func (m *mockOrderStore) GetTodaysSummary(ctx context.Context) (database.TodaysSummaryRow, error) {
	if m.getTodaysSummaryFn != nil {
		return m.getTodaysSummaryFn(ctx)
	}
	return database.TodaysSummaryRow{}, nil
}

// --- Test helpers ---

func setupRouter(svc *mockOrderService, store *mockOrderStore) *chi.Mux {
	h := handler.NewOrderHandler(svc, store)
	r := chi.NewRouter()
	r.Route("/orders", h.RegisterRoutes)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func testOrder() database.Order {
	return database.Order{
		ID:             uuid.New(),
		OrderNumber:    "ORD-20260831-001",
		OrderStatus:    enum.OrderStatusPending,
		OrderType:      enum.OrderTypeTakeaway,
		Subtotal:       makeNumeric("500.00"),
		TaxAmount:      makeNumeric("50.00"),
		DiscountAmount: makeNumeric("0.00"),
		TotalAmount:    makeNumeric("550.00"),
		FoodCost:       makeNumeric("160.00"),
		PaymentStatus:  enum.PaymentStatusUnpaid,
		OrderDate:      time.Now(),
	}
}

// =====================
// Create
// =====================

func TestCreateOrderHandler_Success(t *testing.T) {
	order := testOrder()
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
			if req.OrderType != enum.OrderTypeTakeaway {
				t.Errorf("expected takeaway, got %s", req.OrderType)
			}
			return &service.OrderResult{Order: order}, nil
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/", map[string]interface{}{
		"order_type": "takeaway",
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.New().String(), "quantity": 2},
		},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["order_number"] != "ORD-20260831-001" {
		t.Errorf("unexpected order_number: %v", resp["order_number"])
	}
	if resp["total_amount"] != "550.00" {
		t.Errorf("unexpected total_amount: %v", resp["total_amount"])
	}
}

func TestCreateOrderHandler_MissingOrderType(t *testing.T) {
	router := setupRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/", map[string]interface{}{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateOrderHandler_QuantityOverCap(t *testing.T) {
	router := setupRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/", map[string]interface{}{
		"order_type": "takeaway",
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.New().String(), "quantity": 51},
		},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["error"] != "items[0]: quantity must be <= 50" {
		t.Errorf("unexpected error: %v", resp["error"])
	}
}

func TestCreateOrderHandler_TableUnavailable(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
			return nil, service.ErrTableUnavailable
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/", map[string]interface{}{
		"order_type": "dine_in",
		"table_id":   uuid.New().String(),
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCreateOrderHandler_TableNotFound(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error) {
			return nil, service.ErrTableNotFound
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/", map[string]interface{}{
		"order_type": "dine_in",
		"table_id":   uuid.New().String(),
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

// =====================
// Get / List / Summary
// =====================

func TestGetOrderHandler_NotFound(t *testing.T) {
	router := setupRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodGet, "/orders/"+uuid.New().String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetOrderHandler_Success(t *testing.T) {
	order := testOrder()
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			if id != order.ID {
				return database.Order{}, pgx.ErrNoRows
			}
			return order, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{{
				ID:         uuid.New(),
				OrderID:    orderID,
				MenuItemID: uuid.New(),
				Quantity:   2,
				UnitPrice:  makeNumeric("250.00"),
				TotalPrice: makeNumeric("500.00"),
			}}, nil
		},
	}
	router := setupRouter(&mockOrderService{}, store)

	rr := doRequest(t, router, http.MethodGet, "/orders/"+order.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("expected 1 item, got %v", resp["items"])
	}
}

func TestListOrdersHandler_PassesFilters(t *testing.T) {
	var captured database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			captured = arg
			return []database.Order{testOrder()}, nil
		},
	}
	router := setupRouter(&mockOrderService{}, store)

	rr := doRequest(t, router, http.MethodGet, "/orders/?status=pending&type=dine_in&limit=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !captured.OrderStatus.Valid || captured.OrderStatus.String != "pending" {
		t.Errorf("status filter not passed: %+v", captured.OrderStatus)
	}
	if !captured.OrderType.Valid || captured.OrderType.String != "dine_in" {
		t.Errorf("type filter not passed: %+v", captured.OrderType)
	}
	if captured.Limit != 5 {
		t.Errorf("expected limit 5, got %d", captured.Limit)
	}
}

func TestTodaysSummaryHandler(t *testing.T) {
	store := &mockOrderStore{
		getTodaysSummaryFn: func(ctx context.Context) (database.TodaysSummaryRow, error) {
			return database.TodaysSummaryRow{
				TotalOrders:     12,
				CompletedOrders: 8,
				TotalRevenue:    makeNumeric("4200.00"),
				AvgOrderValue:   makeNumeric("525.00"),
			}, nil
		},
	}
	router := setupRouter(&mockOrderService{}, store)

	rr := doRequest(t, router, http.MethodGet, "/orders/summary/today", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["total_orders"] != float64(12) {
		t.Errorf("unexpected total_orders: %v", resp["total_orders"])
	}
	if resp["total_revenue"] != "4200.00" {
		t.Errorf("unexpected total_revenue: %v", resp["total_revenue"])
	}
}

// =====================
// AddItems / Confirm
// =====================

func TestAddItemsHandler_EmptyItems(t *testing.T) {
	router := setupRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/"+uuid.New().String()+"/items", map[string]interface{}{
		"items": []map[string]interface{}{},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAddItemsHandler_LockedOrder(t *testing.T) {
	svc := &mockOrderService{
		addItemsFn: func(ctx context.Context, orderID uuid.UUID, items []service.OrderItemRequest) (*service.OrderResult, error) {
			return nil, service.ErrOrderLocked
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/"+uuid.New().String()+"/items", map[string]interface{}{
		"items": []map[string]interface{}{
			{"menu_item_id": uuid.New().String(), "quantity": 1},
		},
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestConfirmHandler_InsufficientStock(t *testing.T) {
	svc := &mockOrderService{
		confirmOrderFn: func(ctx context.Context, orderID uuid.UUID, ert *time.Time) (*service.OrderResult, error) {
			return nil, &service.InsufficientStockError{Shortages: []service.StockShortage{{
				IngredientID: uuid.New(),
				Name:         "chicken",
				Required:     decimal.RequireFromString("500"),
				Available:    decimal.RequireFromString("100"),
				Short:        decimal.RequireFromString("400"),
			}}}
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/"+uuid.New().String()+"/confirm", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	shortages, ok := resp["shortages"].([]interface{})
	if !ok || len(shortages) != 1 {
		t.Fatalf("expected shortage list, got %v", resp)
	}
	first := shortages[0].(map[string]interface{})
	if first["name"] != "chicken" {
		t.Errorf("unexpected shortage: %v", first)
	}
}

func TestConfirmHandler_Success(t *testing.T) {
	order := testOrder()
	order.OrderStatus = enum.OrderStatusConfirmed
	order.InventoryUpdated = true
	svc := &mockOrderService{
		confirmOrderFn: func(ctx context.Context, orderID uuid.UUID, ert *time.Time) (*service.OrderResult, error) {
			return &service.OrderResult{Order: order}, nil
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPost, "/orders/"+order.ID.String()+"/confirm", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["order_status"] != "confirmed" {
		t.Errorf("unexpected order_status: %v", resp["order_status"])
	}
	if resp["inventory_updated"] != true {
		t.Errorf("expected inventory_updated true, got %v", resp["inventory_updated"])
	}
}

// =====================
// Status / Discount
// =====================

func TestUpdateStatusHandler_MissingStatus(t *testing.T) {
	router := setupRouter(&mockOrderService{}, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPut, "/orders/"+uuid.New().String()+"/status", map[string]interface{}{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUpdateStatusHandler_ClosedOrder(t *testing.T) {
	svc := &mockOrderService{
		updateStatusFn: func(ctx context.Context, orderID uuid.UUID, req service.UpdateStatusRequest) (*service.OrderResult, error) {
			return nil, service.ErrOrderClosed
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPut, "/orders/"+uuid.New().String()+"/status", map[string]interface{}{
		"status": "preparing",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestApplyDiscountHandler_Success(t *testing.T) {
	order := testOrder()
	order.DiscountAmount = makeNumeric("50.00")
	order.TotalAmount = makeNumeric("500.00")
	svc := &mockOrderService{
		applyDiscountFn: func(ctx context.Context, orderID uuid.UUID, req service.ApplyDiscountRequest) (*service.OrderResult, error) {
			if req.Percentage == nil || !req.Percentage.Equal(decimal.RequireFromString("10")) {
				t.Errorf("expected percentage 10, got %v", req.Percentage)
			}
			return &service.OrderResult{Order: order}, nil
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPut, "/orders/"+order.ID.String()+"/discount", map[string]interface{}{
		"percentage": "10",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["discount_amount"] != "50.00" {
		t.Errorf("unexpected discount_amount: %v", resp["discount_amount"])
	}
}

func TestApplyDiscountHandler_InvalidDiscount(t *testing.T) {
	svc := &mockOrderService{
		applyDiscountFn: func(ctx context.Context, orderID uuid.UUID, req service.ApplyDiscountRequest) (*service.OrderResult, error) {
			return nil, service.ErrInvalidDiscount
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodPut, "/orders/"+uuid.New().String()+"/discount", map[string]interface{}{
		"percentage": "150",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

// =====================
// Availability
// =====================

func TestCheckAvailabilityHandler(t *testing.T) {
	orderID := uuid.New()
	svc := &mockOrderService{
		checkAvailabilityFn: func(ctx context.Context, id uuid.UUID) ([]service.IngredientRequirement, error) {
			return []service.IngredientRequirement{{
				IngredientID: uuid.New(),
				Name:         "chicken",
				Required:     decimal.RequireFromString("500"),
				Available:    decimal.RequireFromString("100"),
				IsSufficient: false,
			}}, nil
		},
	}
	router := setupRouter(svc, &mockOrderStore{})

	rr := doRequest(t, router, http.MethodGet, "/orders/"+orderID.String()+"/availability", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["sufficient"] != false {
		t.Errorf("expected sufficient=false, got %v", resp["sufficient"])
	}
}
