package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/darzi-atelier/api/internal/domain"
	"github.com/darzi-atelier/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = (*stubRepoError)(nil)

type stubOrderRepo struct {
	insertFn         func(ctx context.Context, order domain.Order) (domain.Order, error)
	findFn           func(ctx context.Context, orderID string) (domain.Order, error)
	listByCustomerFn func(ctx context.Context, customerID string) ([]domain.Order, error)
	listFn           func(ctx context.Context) ([]domain.Order, error)
	listRecentFn     func(ctx context.Context, limit int) ([]domain.Order, error)
	mutateFn         func(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)

	inserted []domain.Order
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	s.inserted = append(s.inserted, order)
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, &stubRepoError{notFound: true}
}

func (s *stubOrderRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	if s.listByCustomerFn != nil {
		return s.listByCustomerFn(ctx, customerID)
	}
	return nil, nil
}

func (s *stubOrderRepo) List(ctx context.Context) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubOrderRepo) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if s.listRecentFn != nil {
		return s.listRecentFn(ctx, limit)
	}
	return nil, nil
}

func (s *stubOrderRepo) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	if s.mutateFn != nil {
		return s.mutateFn(ctx, orderID, fn)
	}
	return domain.Order{}, &stubRepoError{notFound: true}
}

type stubProductRepo struct {
	products map[string]domain.Product
	countFn  func(ctx context.Context) (int64, error)
	multiErr error
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if product, ok := s.products[productID]; ok {
		return product, nil
	}
	return domain.Product{}, &stubRepoError{notFound: true}
}

func (s *stubProductRepo) GetMulti(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.multiErr != nil {
		return nil, s.multiErr
	}
	result := make(map[string]domain.Product)
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (s *stubProductRepo) Count(ctx context.Context) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx)
	}
	return int64(len(s.products)), nil
}

type stubUserRepo struct {
	users   map[string]domain.UserSummary
	countFn func(ctx context.Context) (int64, error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserSummary, error) {
	if user, ok := s.users[userID]; ok {
		return user, nil
	}
	return domain.UserSummary{}, &stubRepoError{notFound: true}
}

func (s *stubUserRepo) GetMulti(ctx context.Context, userIDs []string) (map[string]domain.UserSummary, error) {
	result := make(map[string]domain.UserSummary)
	for _, id := range userIDs {
		if user, ok := s.users[id]; ok {
			result[id] = user
		}
	}
	return result, nil
}

func (s *stubUserRepo) Count(ctx context.Context) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx)
	}
	return int64(len(s.users)), nil
}

type stubMeasurementRepo struct {
	profiles map[string]domain.MeasurementProfile
}

func (s *stubMeasurementRepo) FindByID(ctx context.Context, profileID string) (domain.MeasurementProfile, error) {
	if profile, ok := s.profiles[profileID]; ok {
		return profile, nil
	}
	return domain.MeasurementProfile{}, &stubRepoError{notFound: true}
}

func (s *stubMeasurementRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.MeasurementProfile, error) {
	var result []domain.MeasurementProfile
	for _, profile := range s.profiles {
		if profile.CustomerID == customerID {
			result = append(result, profile)
		}
	}
	return result, nil
}

var (
	_ repositories.OrderRepository       = (*stubOrderRepo)(nil)
	_ repositories.ProductRepository     = (*stubProductRepo)(nil)
	_ repositories.UserRepository        = (*stubUserRepo)(nil)
	_ repositories.MeasurementRepository = (*stubMeasurementRepo)(nil)
)

func customerAccess(userID string) AccessContext {
	return AccessContext{UserID: userID, Roles: []string{"customer"}}
}

func adminAccess(userID string) AccessContext {
	return AccessContext{UserID: userID, Roles: []string{"admin"}}
}

func testCatalog() *stubProductRepo {
	return &stubProductRepo{products: map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Sherwani", BasePrice: 450000},
		"prod-2": {ID: "prod-2", Name: "Kurta", BasePrice: 120000},
	}}
}

func newTestOrderService(t *testing.T, orders *stubOrderRepo, now time.Time) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:       orders,
		Products:     testCatalog(),
		Users:        &stubUserRepo{users: map[string]domain.UserSummary{"cust-1": {ID: "cust-1", Name: "Asha"}}},
		Measurements: &stubMeasurementRepo{profiles: map[string]domain.MeasurementProfile{"mp-1": {ID: "mp-1", CustomerID: "cust-1"}}},
		Clock:        func() time.Time { return now },
		IDGenerator:  func() string { return "order-1" },
		NumberSuffix: func() int { return 42 },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func validCreateCommand(method domain.PaymentMethod) CreateOrderCommand {
	return CreateOrderCommand{
		Access: customerAccess("cust-1"),
		Items: []CreateOrderItemInput{{
			ProductID:              "prod-1",
			Quantity:               2,
			Fabric:                 "linen",
			SelectedCustomizations: map[string]string{"collar": "mandarin"},
		}},
		TotalAmount:   900000,
		PaymentMethod: method,
		DeliveryAddress: domain.Address{
			Street:     "12 MG Road",
			City:       "Pune",
			PostalCode: "411001",
		},
	}
}

func TestOrderServiceCreateOnline(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	repo := &stubOrderRepo{}
	svc := newTestOrderService(t, repo, now)

	order, err := svc.Create(context.Background(), validCreateCommand(domain.PaymentMethodOnline))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	wantNumber := fmt.Sprintf("ORD-%d-42", now.UnixMilli())
	if order.OrderNumber != wantNumber {
		t.Fatalf("expected order number %s, got %s", wantNumber, order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected status pending, got %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected payment pending, got %s", order.PaymentStatus)
	}
	if len(order.StatusTimeline) != 1 {
		t.Fatalf("expected 1 timeline entry, got %d", len(order.StatusTimeline))
	}
	if order.StatusTimeline[0].Note != "Order placed by customer" {
		t.Fatalf("unexpected timeline note: %s", order.StatusTimeline[0].Note)
	}
	if order.Currency != "INR" {
		t.Fatalf("expected INR default currency, got %s", order.Currency)
	}
	if order.Items[0].Product == nil || order.Items[0].Product.Name != "Sherwani" {
		t.Fatalf("expected populated product summary, got %+v", order.Items[0].Product)
	}
	if order.Items[0].UnitPrice != 450000 {
		t.Fatalf("expected unit price from catalog, got %d", order.Items[0].UnitPrice)
	}
	if order.Items[0].TotalPrice != 900000 {
		t.Fatalf("expected line total defaulted to unit price times quantity, got %d", order.Items[0].TotalPrice)
	}
	if order.Items[0].SelectedCustomizations["collar"] != "mandarin" {
		t.Fatalf("expected customizations preserved, got %+v", order.Items[0].SelectedCustomizations)
	}
	if order.StatusTimeline[0].ChangedBy != "cust-1" {
		t.Fatalf("expected placement entry attributed to customer, got %q", order.StatusTimeline[0].ChangedBy)
	}
}

func TestOrderServiceCreateKeepsItemPricingAndImages(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	uploaded := now.Add(-time.Hour)
	svc := newTestOrderService(t, &stubOrderRepo{}, now)

	cmd := validCreateCommand(domain.PaymentMethodOnline)
	cmd.Items = []CreateOrderItemInput{{
		ProductID:  "prod-2",
		Quantity:   2,
		UnitPrice:  500,
		TotalPrice: 1000,
		ReferenceImages: []ReferenceImage{
			{URL: "https://img.example.com/collar.jpg", UploadedAt: uploaded},
			{URL: "https://img.example.com/cuff.jpg"},
		},
	}}
	cmd.TotalAmount = 1000

	order, err := svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	item := order.Items[0]
	if item.UnitPrice != 500 || item.TotalPrice != 1000 {
		t.Fatalf("expected client pricing stored as submitted, got unit=%d total=%d", item.UnitPrice, item.TotalPrice)
	}
	if len(item.ReferenceImages) != 2 {
		t.Fatalf("expected 2 reference images, got %d", len(item.ReferenceImages))
	}
	if item.ReferenceImages[0].URL != "https://img.example.com/collar.jpg" || !item.ReferenceImages[0].UploadedAt.Equal(uploaded) {
		t.Fatalf("unexpected first reference image: %+v", item.ReferenceImages[0])
	}
	if item.ReferenceImages[1].UploadedAt.IsZero() {
		t.Fatalf("expected missing upload timestamp defaulted to now")
	}
	if order.TotalAmount != 1000 {
		t.Fatalf("expected order total stored as submitted, got %d", order.TotalAmount)
	}
}

func TestOrderServiceCreateCODAutoConfirms(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	repo := &stubOrderRepo{}
	svc := newTestOrderService(t, repo, now)

	order, err := svc.Create(context.Background(), validCreateCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.Status != domain.OrderStatusMeasurementsConfirmed {
		t.Fatalf("expected measurements_confirmed, got %s", order.Status)
	}
	if len(order.StatusTimeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(order.StatusTimeline))
	}
	if order.StatusTimeline[1].Note != "Auto-confirmed for COD" {
		t.Fatalf("unexpected second timeline note: %s", order.StatusTimeline[1].Note)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("COD order should still owe payment, got %s", order.PaymentStatus)
	}
}

func TestOrderServiceCreateValidation(t *testing.T) {
	now := time.Now()
	svc := newTestOrderService(t, &stubOrderRepo{}, now)

	cases := map[string]func(cmd *CreateOrderCommand){
		"no items":        func(cmd *CreateOrderCommand) { cmd.Items = nil },
		"zero total":      func(cmd *CreateOrderCommand) { cmd.TotalAmount = 0 },
		"bad method":      func(cmd *CreateOrderCommand) { cmd.PaymentMethod = "wire" },
		"no customer":     func(cmd *CreateOrderCommand) { cmd.Access.UserID = "" },
		"no address city": func(cmd *CreateOrderCommand) { cmd.DeliveryAddress.City = "" },
		"unknown product": func(cmd *CreateOrderCommand) { cmd.Items[0].ProductID = "prod-x" },
		"zero quantity":   func(cmd *CreateOrderCommand) { cmd.Items[0].Quantity = 0 },
		"wrong profile":   func(cmd *CreateOrderCommand) { cmd.MeasurementProfileID = "mp-unknown" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := validCreateCommand(domain.PaymentMethodCOD)
			mutate(&cmd)
			_, err := svc.Create(context.Background(), cmd)
			if !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestOrderServiceCreateRetriesNumberCollision(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)
	attempts := 0
	repo := &stubOrderRepo{
		insertFn: func(ctx context.Context, order domain.Order) (domain.Order, error) {
			attempts++
			if attempts == 1 {
				return domain.Order{}, &stubRepoError{conflict: true}
			}
			return order, nil
		},
	}
	svc := newTestOrderService(t, repo, now)

	order, err := svc.Create(context.Background(), validCreateCommand(domain.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 insert attempts, got %d", attempts)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
}

func TestOrderServiceCreatePersistentCollisionFails(t *testing.T) {
	repo := &stubOrderRepo{
		insertFn: func(ctx context.Context, order domain.Order) (domain.Order, error) {
			return domain.Order{}, &stubRepoError{conflict: true}
		},
	}
	svc := newTestOrderService(t, repo, time.Now())

	_, err := svc.Create(context.Background(), validCreateCommand(domain.PaymentMethodCOD))
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if len(repo.inserted) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", len(repo.inserted))
	}
}

func TestOrderServiceGetByIDOwnership(t *testing.T) {
	stored := domain.Order{ID: "order-1", CustomerID: "cust-1", Items: []domain.OrderItem{{ProductID: "prod-1"}}}
	repo := &stubOrderRepo{
		findFn: func(ctx context.Context, orderID string) (domain.Order, error) {
			if orderID == "order-1" {
				return stored, nil
			}
			return domain.Order{}, &stubRepoError{notFound: true}
		},
	}
	svc := newTestOrderService(t, repo, time.Now())

	if _, err := svc.GetByID(context.Background(), customerAccess("cust-1"), "order-1"); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), adminAccess("staff-1"), "order-1"); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), customerAccess("cust-2"), "order-1"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden for stranger, got %v", err)
	}
	if _, err := svc.GetByID(context.Background(), customerAccess("cust-1"), "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceGetMine(t *testing.T) {
	repo := &stubOrderRepo{
		listByCustomerFn: func(ctx context.Context, customerID string) ([]domain.Order, error) {
			if customerID != "cust-1" {
				t.Fatalf("unexpected customer id %s", customerID)
			}
			return []domain.Order{
				{ID: "order-2", CustomerID: "cust-1"},
				{ID: "order-1", CustomerID: "cust-1"},
			}, nil
		},
	}
	svc := newTestOrderService(t, repo, time.Now())

	orders, err := svc.GetMine(context.Background(), customerAccess("cust-1"))
	if err != nil {
		t.Fatalf("GetMine: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != "order-2" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestOrderServiceListAllRequiresAdmin(t *testing.T) {
	repo := &stubOrderRepo{
		listFn: func(ctx context.Context) ([]domain.Order, error) {
			return []domain.Order{{ID: "order-1", CustomerID: "cust-1"}}, nil
		},
	}
	svc := newTestOrderService(t, repo, time.Now())

	if _, err := svc.ListAll(context.Background(), customerAccess("cust-1")); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
	orders, err := svc.ListAll(context.Background(), adminAccess("staff-1"))
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
}

func TestOrderServiceUpdateStatusAppendsTimeline(t *testing.T) {
	now := time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC)
	stored := domain.Order{
		ID:         "order-1",
		CustomerID: "cust-1",
		Status:     domain.OrderStatusMeasurementsConfirmed,
		StatusTimeline: []domain.TimelineEntry{
			{Status: domain.OrderStatusPending},
			{Status: domain.OrderStatusMeasurementsConfirmed},
		},
	}
	repo := &stubOrderRepo{
		mutateFn: func(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
			order := stored
			order.StatusTimeline = append([]domain.TimelineEntry(nil), stored.StatusTimeline...)
			if err := fn(&order); err != nil {
				return domain.Order{}, err
			}
			stored = order
			return order, nil
		},
	}
	svc := newTestOrderService(t, repo, now)

	updated, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		Access:  adminAccess("staff-1"),
		OrderID: "order-1",
		Status:  domain.OrderStatusInStitching,
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if updated.Status != domain.OrderStatusInStitching {
		t.Fatalf("expected in_stitching, got %s", updated.Status)
	}
	if len(updated.StatusTimeline) != 3 {
		t.Fatalf("expected 3 timeline entries, got %d", len(updated.StatusTimeline))
	}
	last := updated.StatusTimeline[2]
	if last.Note != "Status updated to in_stitching by Admin" {
		t.Fatalf("unexpected note: %s", last.Note)
	}
	if last.ChangedBy != "staff-1" {
		t.Fatalf("expected entry attributed to acting admin, got %q", last.ChangedBy)
	}
	if !last.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %s, got %s", now, last.Timestamp)
	}
}

func TestOrderServiceUpdateStatusAuthorisation(t *testing.T) {
	svc := newTestOrderService(t, &stubOrderRepo{}, time.Now())

	_, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		Access:  customerAccess("cust-1"),
		OrderID: "order-1",
		Status:  domain.OrderStatusReady,
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}

	_, err = svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		Access:  adminAccess("staff-1"),
		OrderID: "order-1",
		Status:  "teleported",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput for unknown status, got %v", err)
	}
}

func TestNewOrderServiceRequiresRepositories(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{Products: testCatalog()}); err == nil {
		t.Fatalf("expected error when order repository missing")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepo{}}); err == nil {
		t.Fatalf("expected error when product repository missing")
	}
}
