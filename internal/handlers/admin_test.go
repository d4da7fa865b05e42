package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/darzi-atelier/api/internal/domain"
	"github.com/darzi-atelier/api/internal/services"
)

type stubDashboardService struct {
	statsFn func(ctx context.Context, access services.AccessContext) (services.DashboardStats, error)
}

func (s *stubDashboardService) Stats(ctx context.Context, access services.AccessContext) (services.DashboardStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, access)
	}
	return services.DashboardStats{}, nil
}

var _ services.DashboardService = (*stubDashboardService)(nil)

func newAdminRouter(orders services.OrderService, payments services.PaymentService, dashboard services.DashboardService) chi.Router {
	r := chi.NewRouter()
	NewAdminHandlers(nil, orders, payments, dashboard).Routes(r)
	return r
}

func TestAdminHandlersListOrders(t *testing.T) {
	var gotAccess services.AccessContext
	orders := &stubOrderService{
		listAllFn: func(ctx context.Context, access services.AccessContext) ([]services.Order, error) {
			gotAccess = access
			return []services.Order{sampleOrder()}, nil
		},
	}
	router := newAdminRouter(orders, &stubPaymentService{}, &stubDashboardService{})

	req := authenticatedRequest(http.MethodGet, "/orders", "", adminIdentity("admin-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !gotAccess.IsAdmin() {
		t.Fatalf("expected admin access, got %+v", gotAccess)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one order, got %v", body["items"])
	}
}

func TestAdminHandlersUpdateOrderStatus(t *testing.T) {
	var gotCmd services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		updateStatusFn: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			gotCmd = cmd
			order := sampleOrder()
			order.Status = cmd.Status
			return order, nil
		},
	}
	router := newAdminRouter(orders, &stubPaymentService{}, &stubDashboardService{})

	req := authenticatedRequest(http.MethodPatch, "/orders/order-1/status", `{"status": "In_Stitching", "note": "fabric cut"}`, adminIdentity("admin-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.OrderID != "order-1" {
		t.Fatalf("unexpected order id %q", gotCmd.OrderID)
	}
	if gotCmd.Status != domain.OrderStatusInStitching {
		t.Fatalf("expected lowercased status, got %q", gotCmd.Status)
	}
	if gotCmd.Note != "fabric cut" {
		t.Fatalf("unexpected note %q", gotCmd.Note)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	order, ok := body["order"].(map[string]any)
	if !ok {
		t.Fatalf("expected order object, got %v", body)
	}
	if order["status"] != string(domain.OrderStatusInStitching) {
		t.Fatalf("unexpected status %v", order["status"])
	}
}

func TestAdminHandlersUpdateOrderStatusErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"invalid status": {services.ErrOrderInvalidInput, http.StatusBadRequest},
		"forbidden":      {services.ErrOrderForbidden, http.StatusForbidden},
		"not found":      {services.ErrOrderNotFound, http.StatusNotFound},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			orders := &stubOrderService{
				updateStatusFn: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newAdminRouter(orders, &stubPaymentService{}, &stubDashboardService{})

			req := authenticatedRequest(http.MethodPatch, "/orders/order-1/status", `{"status": "ready"}`, adminIdentity("admin-1"))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestAdminHandlersStats(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	dashboard := &stubDashboardService{
		statsFn: func(ctx context.Context, access services.AccessContext) (services.DashboardStats, error) {
			return services.DashboardStats{
				TotalOrders:     5,
				TotalCustomers:  2,
				TotalProducts:   3,
				TotalSales:      650000,
				PendingPayments: 2,
				InStitching:     1,
				OrdersByStatus: map[domain.OrderStatus]int64{
					domain.OrderStatusPending:     2,
					domain.OrderStatusInStitching: 1,
					domain.OrderStatusCompleted:   2,
				},
				RevenueTrend: []domain.RevenuePoint{
					{Date: "2024-05-14", Revenue: 650000},
				},
				PopularDesigns: []domain.PopularDesign{
					{ProductID: "prod-1", Count: 5, Product: &domain.ProductSummary{ID: "prod-1", Name: "Classic Sherwani", Price: 450000}},
				},
				RecentOrders: []domain.Order{func() domain.Order {
					order := sampleOrder()
					order.CreatedAt = now
					return order
				}()},
			}, nil
		},
	}
	router := newAdminRouter(&stubOrderService{}, &stubPaymentService{}, dashboard)

	req := authenticatedRequest(http.MethodGet, "/stats", "", adminIdentity("admin-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["total_sales"] != float64(650000) {
		t.Fatalf("unexpected total_sales %v", body["total_sales"])
	}
	byStatus, ok := body["orders_by_status"].(map[string]any)
	if !ok {
		t.Fatalf("expected orders_by_status map, got %v", body["orders_by_status"])
	}
	if byStatus["in_stitching"] != float64(1) {
		t.Fatalf("unexpected in_stitching bucket %v", byStatus["in_stitching"])
	}
	trend, ok := body["revenue_trend"].([]any)
	if !ok || len(trend) != 1 {
		t.Fatalf("expected one revenue point, got %v", body["revenue_trend"])
	}
	point := trend[0].(map[string]any)
	if point["date"] != "2024-05-14" || point["revenue"] != float64(650000) {
		t.Fatalf("unexpected revenue point %v", point)
	}
	designs, ok := body["popular_designs"].([]any)
	if !ok || len(designs) != 1 {
		t.Fatalf("expected one popular design, got %v", body["popular_designs"])
	}
	design := designs[0].(map[string]any)
	if design["product_id"] != "prod-1" || design["count"] != float64(5) {
		t.Fatalf("unexpected popular design %v", design)
	}
	product, ok := design["product"].(map[string]any)
	if !ok || product["price"] != float64(450000) {
		t.Fatalf("expected product price in popular design, got %v", design["product"])
	}
	recent, ok := body["recent_orders"].([]any)
	if !ok || len(recent) != 1 {
		t.Fatalf("expected one recent order, got %v", body["recent_orders"])
	}
}

func TestAdminHandlersStatsForbidden(t *testing.T) {
	dashboard := &stubDashboardService{
		statsFn: func(ctx context.Context, access services.AccessContext) (services.DashboardStats, error) {
			return services.DashboardStats{}, services.ErrDashboardForbidden
		},
	}
	router := newAdminRouter(&stubOrderService{}, &stubPaymentService{}, dashboard)

	req := authenticatedRequest(http.MethodGet, "/stats", "", customerIdentity("cust-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestAdminHandlersListPayments(t *testing.T) {
	payments := &stubPaymentService{
		listPaymentsFn: func(ctx context.Context, access services.AccessContext) (services.PaymentsReport, error) {
			return services.PaymentsReport{
				Payments: []services.PaymentRecord{
					{
						OrderID:          "order-1",
						OrderNumber:      "ORD-1715333400000-42",
						CustomerID:       "cust-1",
						Customer:         &domain.UserSummary{ID: "cust-1", Name: "Asha Rao"},
						Amount:           900000,
						Currency:         "INR",
						Method:           domain.PaymentMethodOnline,
						Status:           domain.PaymentStatusPaid,
						GatewayOrderID:   "rzp_order_9",
						GatewayPaymentID: "pay_123",
						CreatedAt:        time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC),
					},
				},
				TotalRevenue:    900000,
				PendingPayments: 120000,
			}, nil
		},
	}
	router := newAdminRouter(&stubOrderService{}, payments, &stubDashboardService{})

	req := authenticatedRequest(http.MethodGet, "/payments", "", adminIdentity("admin-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one payment record, got %v", body["items"])
	}
	record := items[0].(map[string]any)
	if record["gateway_payment_id"] != "pay_123" {
		t.Fatalf("unexpected gateway payment id %v", record["gateway_payment_id"])
	}
	if record["status"] != string(domain.PaymentStatusPaid) {
		t.Fatalf("unexpected status %v", record["status"])
	}
	customer, ok := record["customer"].(map[string]any)
	if !ok || customer["name"] != "Asha Rao" {
		t.Fatalf("unexpected customer %v", record["customer"])
	}
	if body["total_revenue"] != float64(900000) {
		t.Fatalf("unexpected total_revenue %v", body["total_revenue"])
	}
	if body["pending_payments"] != float64(120000) {
		t.Fatalf("unexpected pending_payments %v", body["pending_payments"])
	}
}
