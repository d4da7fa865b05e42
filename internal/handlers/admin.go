package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/darzi-atelier/api/internal/domain"
	"github.com/darzi-atelier/api/internal/platform/auth"
	"github.com/darzi-atelier/api/internal/platform/httpx"
	"github.com/darzi-atelier/api/internal/services"
)

const maxAdminBodySize = 16 * 1024

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// AdminHandlers exposes back-office order management and the dashboard.
type AdminHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	payments  services.PaymentService
	dashboard services.DashboardService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, dashboard services.DashboardService) *AdminHandlers {
	return &AdminHandlers{
		authn:     authn,
		orders:    orders,
		payments:  payments,
		dashboard: dashboard,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Patch("/orders/{orderID}/status", h.updateOrderStatus)
	r.Get("/stats", h.stats)
	r.Get("/payments", h.listPayments)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	orders, err := h.orders.ListAll(ctx, access)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Access:  access,
		OrderID: orderID,
		Status:  domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		Note:    strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.dashboard != nil)
	if !ok {
		return
	}

	stats, err := h.dashboard.Stats(ctx, access)
	if err != nil {
		writeDashboardError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildDashboardPayload(stats))
}

func (h *AdminHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.payments != nil)
	if !ok {
		return
	}

	report, err := h.payments.ListPayments(ctx, access)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	items := make([]paymentRecordPayload, 0, len(report.Payments))
	for _, record := range report.Payments {
		items = append(items, buildPaymentRecordPayload(record))
	}
	writeJSONResponse(w, http.StatusOK, paymentReportResponse{
		Items:           items,
		TotalRevenue:    report.TotalRevenue,
		PendingPayments: report.PendingPayments,
	})
}

func writeDashboardError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrDashboardForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access denied", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("dashboard_error", "failed to compute dashboard stats", http.StatusInternalServerError))
	}
}

type paymentReportResponse struct {
	Items           []paymentRecordPayload `json:"items"`
	TotalRevenue    int64                  `json:"total_revenue"`
	PendingPayments int64                  `json:"pending_payments"`
}

type paymentRecordPayload struct {
	OrderID          string           `json:"order_id"`
	OrderNumber      string           `json:"order_number"`
	CustomerID       string           `json:"customer_id"`
	Customer         *customerPayload `json:"customer,omitempty"`
	Amount           int64            `json:"amount"`
	Currency         string           `json:"currency"`
	Method           string           `json:"method"`
	Status           string           `json:"status"`
	GatewayOrderID   string           `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string           `json:"gateway_payment_id,omitempty"`
	CreatedAt        string           `json:"created_at"`
}

func buildPaymentRecordPayload(record services.PaymentRecord) paymentRecordPayload {
	payload := paymentRecordPayload{
		OrderID:          record.OrderID,
		OrderNumber:      record.OrderNumber,
		CustomerID:       record.CustomerID,
		Amount:           record.Amount,
		Currency:         strings.ToUpper(strings.TrimSpace(record.Currency)),
		Method:           string(record.Method),
		Status:           string(record.Status),
		GatewayOrderID:   record.GatewayOrderID,
		GatewayPaymentID: record.GatewayPaymentID,
		CreatedAt:        formatTime(record.CreatedAt),
	}
	if record.Customer != nil {
		payload.Customer = buildCustomerPayload(*record.Customer)
	}
	return payload
}

type dashboardPayload struct {
	TotalOrders     int64                  `json:"total_orders"`
	TotalCustomers  int64                  `json:"total_customers"`
	TotalProducts   int64                  `json:"total_products"`
	TotalSales      int64                  `json:"total_sales"`
	PendingPayments int64                  `json:"pending_payments"`
	InStitching     int64                  `json:"in_stitching"`
	OrdersByStatus  map[string]int64       `json:"orders_by_status"`
	RevenueTrend    []revenuePointPayload  `json:"revenue_trend"`
	PopularDesigns  []popularDesignPayload `json:"popular_designs"`
	RecentOrders    []orderPayload         `json:"recent_orders"`
}

type revenuePointPayload struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
}

type popularDesignPayload struct {
	ProductID string          `json:"product_id"`
	Count     int             `json:"count"`
	Product   *productPayload `json:"product,omitempty"`
}

func buildDashboardPayload(stats services.DashboardStats) dashboardPayload {
	payload := dashboardPayload{
		TotalOrders:     stats.TotalOrders,
		TotalCustomers:  stats.TotalCustomers,
		TotalProducts:   stats.TotalProducts,
		TotalSales:      stats.TotalSales,
		PendingPayments: stats.PendingPayments,
		InStitching:     stats.InStitching,
		OrdersByStatus:  make(map[string]int64, len(stats.OrdersByStatus)),
		RevenueTrend:    make([]revenuePointPayload, 0, len(stats.RevenueTrend)),
		PopularDesigns:  make([]popularDesignPayload, 0, len(stats.PopularDesigns)),
		RecentOrders:    make([]orderPayload, 0, len(stats.RecentOrders)),
	}

	for status, count := range stats.OrdersByStatus {
		payload.OrdersByStatus[string(status)] = count
	}
	for _, point := range stats.RevenueTrend {
		payload.RevenueTrend = append(payload.RevenueTrend, revenuePointPayload{
			Date:    point.Date,
			Revenue: point.Revenue,
		})
	}
	for _, design := range stats.PopularDesigns {
		entry := popularDesignPayload{
			ProductID: design.ProductID,
			Count:     design.Count,
		}
		if design.Product != nil {
			entry.Product = buildProductPayload(*design.Product)
		}
		payload.PopularDesigns = append(payload.PopularDesigns, entry)
	}
	for _, order := range stats.RecentOrders {
		payload.RecentOrders = append(payload.RecentOrders, buildOrderPayload(order))
	}

	return payload
}
