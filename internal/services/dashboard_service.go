package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	domain "github.com/darzi-atelier/api/internal/domain"
	"github.com/darzi-atelier/api/internal/repositories"
)

const (
	defaultRevenueTrendDays = 30
	popularDesignLimit      = 5
	recentOrderLimit        = 10
	revenueDateLayout       = "2006-01-02"
)

// ErrDashboardForbidden indicates the principal lacks the admin role.
var ErrDashboardForbidden = errors.New("dashboard: access denied")

// DashboardServiceDeps bundles collaborators required to construct the dashboard service.
type DashboardServiceDeps struct {
	Orders           repositories.OrderRepository
	Products         repositories.ProductRepository
	Users            repositories.UserRepository
	RevenueTrendDays int
	Clock            func() time.Time
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type dashboardService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	users     repositories.UserRepository
	trendDays int
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewDashboardService wires dependencies into a concrete DashboardService implementation.
func NewDashboardService(deps DashboardServiceDeps) (DashboardService, error) {
	if deps.Orders == nil {
		return nil, errors.New("dashboard service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("dashboard service: product repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("dashboard service: user repository is required")
	}

	trendDays := deps.RevenueTrendDays
	if trendDays <= 0 {
		trendDays = defaultRevenueTrendDays
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &dashboardService{
		orders:    deps.Orders,
		products:  deps.Products,
		users:     deps.Users,
		trendDays: trendDays,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *dashboardService) Stats(ctx context.Context, access AccessContext) (DashboardStats, error) {
	if !access.IsAdmin() {
		return DashboardStats{}, fmt.Errorf("%w: admin role required", ErrDashboardForbidden)
	}

	orders, err := s.orders.List(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("dashboard: listing orders: %w", err)
	}

	totalProducts, err := s.products.Count(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("dashboard: counting products: %w", err)
	}
	totalCustomers, err := s.users.Count(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("dashboard: counting customers: %w", err)
	}

	stats := DashboardStats{
		TotalOrders:    int64(len(orders)),
		TotalCustomers: totalCustomers,
		TotalProducts:  totalProducts,
		OrdersByStatus: make(map[domain.OrderStatus]int64, len(domain.OrderStatuses())),
	}
	for _, status := range domain.OrderStatuses() {
		stats.OrdersByStatus[status] = 0
	}

	now := s.clock()
	trendStart := now.AddDate(0, 0, -(s.trendDays - 1)).Truncate(24 * time.Hour)
	revenueByDay := make(map[string]int64)

	designCounts := make(map[string]int)

	for _, order := range orders {
		stats.OrdersByStatus[order.Status]++

		if order.Status == domain.OrderStatusInStitching {
			stats.InStitching++
		}
		if order.PaymentStatus == domain.PaymentStatusPending {
			stats.PendingPayments++
		}

		if order.Paid() {
			stats.TotalSales += order.TotalAmount
			if !order.CreatedAt.Before(trendStart) {
				day := order.CreatedAt.UTC().Format(revenueDateLayout)
				revenueByDay[day] += order.TotalAmount
			}
		}

		for _, item := range order.Items {
			qty := item.Quantity
			if qty <= 0 {
				qty = 1
			}
			designCounts[item.ProductID] += qty
		}
	}

	stats.RevenueTrend = buildRevenueTrend(revenueByDay)
	stats.PopularDesigns = s.buildPopularDesigns(ctx, designCounts)
	stats.RecentOrders = s.buildRecentOrders(ctx, orders)

	return stats, nil
}

// buildRevenueTrend returns only days with verified revenue, oldest first.
func buildRevenueTrend(revenueByDay map[string]int64) []domain.RevenuePoint {
	days := make([]string, 0, len(revenueByDay))
	for day := range revenueByDay {
		days = append(days, day)
	}
	sort.Strings(days)

	trend := make([]domain.RevenuePoint, 0, len(days))
	for _, day := range days {
		trend = append(trend, domain.RevenuePoint{Date: day, Revenue: revenueByDay[day]})
	}
	return trend
}

func (s *dashboardService) buildPopularDesigns(ctx context.Context, designCounts map[string]int) []domain.PopularDesign {
	designs := make([]domain.PopularDesign, 0, len(designCounts))
	for productID, count := range designCounts {
		designs = append(designs, domain.PopularDesign{ProductID: productID, Count: count})
	}

	sort.SliceStable(designs, func(i, j int) bool {
		if designs[i].Count != designs[j].Count {
			return designs[i].Count > designs[j].Count
		}
		return designs[i].ProductID < designs[j].ProductID
	})
	if len(designs) > popularDesignLimit {
		designs = designs[:popularDesignLimit]
	}

	productIDs := make([]string, 0, len(designs))
	for _, design := range designs {
		productIDs = append(productIDs, design.ProductID)
	}

	products, err := s.products.GetMulti(ctx, productIDs)
	if err != nil {
		s.logger(ctx, "dashboard.popular.products.failed", map[string]any{"error": err.Error()})
		return designs
	}

	for i := range designs {
		if product, ok := products[designs[i].ProductID]; ok {
			summary := product.Summary()
			designs[i].Product = &summary
		}
	}
	return designs
}

func (s *dashboardService) buildRecentOrders(ctx context.Context, fallback []domain.Order) []domain.Order {
	recent, err := s.orders.ListRecent(ctx, recentOrderLimit)
	if err != nil {
		s.logger(ctx, "dashboard.recent.orders.failed", map[string]any{"error": err.Error()})
		recent = make([]domain.Order, len(fallback))
		copy(recent, fallback)
		sort.SliceStable(recent, func(i, j int) bool {
			return recent[i].CreatedAt.After(recent[j].CreatedAt)
		})
		if len(recent) > recentOrderLimit {
			recent = recent[:recentOrderLimit]
		}
	}

	customerIDs := make([]string, 0, len(recent))
	for _, order := range recent {
		customerIDs = append(customerIDs, order.CustomerID)
	}

	users, err := s.users.GetMulti(ctx, customerIDs)
	if err != nil {
		s.logger(ctx, "dashboard.recent.users.failed", map[string]any{"error": err.Error()})
		return recent
	}

	for i := range recent {
		if user, ok := users[recent[i].CustomerID]; ok {
			userCopy := user
			recent[i].Customer = &userCopy
		}
	}
	return recent
}
