package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/darzi-atelier/api/internal/domain"
	"github.com/darzi-atelier/api/internal/repositories"
)

const (
	timelineNotePlaced        = "Order placed by customer"
	timelineNoteCODConfirmed  = "Auto-confirmed for COD"
	timelineNoteAdminTemplate = "Status updated to %s by Admin"

	orderNumberPrefix = "ORD"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the principal may not access the order.
	ErrOrderForbidden = errors.New("order: access denied")
	// ErrOrderConflict indicates a duplicate order number or concurrent update conflict.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Products     repositories.ProductRepository
	Users        repositories.UserRepository
	Measurements repositories.MeasurementRepository
	Currency     string
	Clock        func() time.Time
	IDGenerator  func() string
	NumberSuffix func() int
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	products     repositories.ProductRepository
	users        repositories.UserRepository
	measurements repositories.MeasurementRepository
	currency     string
	clock        func() time.Time
	newID        func() string
	numberSuffix func() int
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	suffix := deps.NumberSuffix
	if suffix == nil {
		suffix = func() int {
			return rand.Intn(1000)
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:       deps.Orders,
		products:     deps.Products,
		users:        deps.Users,
		measurements: deps.Measurements,
		currency:     currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		numberSuffix: suffix,
		logger:       logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.Access.UserID)
	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if cmd.TotalAmount <= 0 {
		return Order{}, fmt.Errorf("%w: total amount must be positive", ErrOrderInvalidInput)
	}
	if !cmd.PaymentMethod.Valid() {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if err := validateAddress(cmd.DeliveryAddress); err != nil {
		return Order{}, err
	}

	items, err := s.buildItems(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	if profileID := strings.TrimSpace(cmd.MeasurementProfileID); profileID != "" {
		if err := s.checkMeasurementProfile(ctx, profileID, customerID); err != nil {
			return Order{}, err
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	now := s.clock()
	order := domain.Order{
		ID:                   s.newID(),
		CustomerID:           customerID,
		Items:                items,
		TotalAmount:          cmd.TotalAmount,
		Currency:             currency,
		Status:               domain.OrderStatusPending,
		PaymentStatus:        domain.PaymentStatusPending,
		PaymentMethod:        cmd.PaymentMethod,
		DeliveryAddress:      cmd.DeliveryAddress,
		MeasurementProfileID: strings.TrimSpace(cmd.MeasurementProfileID),
		SpecialNotes:         strings.TrimSpace(cmd.SpecialNotes),
		ExpectedDeliveryDate: cmd.ExpectedDeliveryDate,
		StatusTimeline: []domain.TimelineEntry{{
			Status:    domain.OrderStatusPending,
			Note:      timelineNotePlaced,
			ChangedBy: customerID,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	// COD orders skip the payment gate and move straight to confirmed
	// measurements.
	if cmd.PaymentMethod == domain.PaymentMethodCOD {
		order.Status = domain.OrderStatusMeasurementsConfirmed
		order.StatusTimeline = append(order.StatusTimeline, domain.TimelineEntry{
			Status:    domain.OrderStatusMeasurementsConfirmed,
			Note:      timelineNoteCODConfirmed,
			ChangedBy: customerID,
			Timestamp: now,
		})
	}

	created, err := s.insertWithNumberRetry(ctx, order, now)
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.created", map[string]any{
		"order_id":       created.ID,
		"order_number":   created.OrderNumber,
		"customer_id":    created.CustomerID,
		"payment_method": string(created.PaymentMethod),
		"total_amount":   created.TotalAmount,
	})

	return s.populate(ctx, created), nil
}

func (s *orderService) GetMine(ctx context.Context, access AccessContext) ([]Order, error) {
	customerID := strings.TrimSpace(access.UserID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}

	orders, err := s.orders.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return s.populateAll(ctx, orders), nil
}

func (s *orderService) GetByID(ctx context.Context, access AccessContext, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !access.IsAdmin() && order.CustomerID != access.UserID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}

	return s.populate(ctx, order), nil
}

func (s *orderService) ListAll(ctx context.Context, access AccessContext) ([]Order, error) {
	if !access.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", ErrOrderForbidden)
	}

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return s.populateAll(ctx, orders), nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Access.IsAdmin() {
		return Order{}, fmt.Errorf("%w: admin role required", ErrOrderForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	note := strings.TrimSpace(cmd.Note)
	if note == "" {
		note = fmt.Sprintf(timelineNoteAdminTemplate, cmd.Status)
	}

	now := s.clock()
	updated, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
		order.Status = cmd.Status
		order.StatusTimeline = append(order.StatusTimeline, domain.TimelineEntry{
			Status:    cmd.Status,
			Note:      note,
			ChangedBy: cmd.Access.UserID,
			Timestamp: now,
		})
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"order_id":   updated.ID,
		"status":     string(cmd.Status),
		"changed_by": cmd.Access.UserID,
	})

	return s.populate(ctx, updated), nil
}

// insertWithNumberRetry generates an order number and inserts the order,
// regenerating the number once if a concurrent insert claimed the same one.
func (s *orderService) insertWithNumberRetry(ctx context.Context, order domain.Order, now time.Time) (domain.Order, error) {
	for attempt := 0; attempt < 2; attempt++ {
		order.OrderNumber = s.generateOrderNumber(now)

		created, err := s.orders.Insert(ctx, order)
		if err == nil {
			return created, nil
		}

		var repoErr repositories.RepositoryError
		if attempt == 0 && errors.As(err, &repoErr) && repoErr.IsConflict() {
			s.logger(ctx, "order.number.collision", map[string]any{
				"order_number": order.OrderNumber,
			})
			continue
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return domain.Order{}, fmt.Errorf("%w: order number collision persisted across retry", ErrOrderConflict)
}

func (s *orderService) generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", orderNumberPrefix, now.UnixMilli(), s.numberSuffix())
}

func (s *orderService) buildItems(ctx context.Context, inputs []CreateOrderItemInput) ([]domain.OrderItem, error) {
	productIDs := make([]string, 0, len(inputs))
	for i, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item %d is missing a product", ErrOrderInvalidInput, i)
		}
		if input.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
		if input.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: item %d unit price must not be negative", ErrOrderInvalidInput, i)
		}
		if input.TotalPrice < 0 {
			return nil, fmt.Errorf("%w: item %d total price must not be negative", ErrOrderInvalidInput, i)
		}
		productIDs = append(productIDs, productID)
	}

	known, err := s.products.GetMulti(ctx, productIDs)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	items := make([]domain.OrderItem, 0, len(inputs))
	for i, input := range inputs {
		productID := strings.TrimSpace(input.ProductID)
		product, ok := known[productID]
		if !ok {
			return nil, fmt.Errorf("%w: item %d references unknown product %s", ErrOrderInvalidInput, i, productID)
		}

		unitPrice := input.UnitPrice
		if unitPrice == 0 {
			unitPrice = product.BasePrice
		}
		totalPrice := input.TotalPrice
		if totalPrice == 0 {
			totalPrice = unitPrice * int64(input.Quantity)
		}

		images := make([]domain.ReferenceImage, 0, len(input.ReferenceImages))
		for _, image := range input.ReferenceImages {
			url := strings.TrimSpace(image.URL)
			if url == "" {
				continue
			}
			uploadedAt := image.UploadedAt
			if uploadedAt.IsZero() {
				uploadedAt = s.clock()
			}
			images = append(images, domain.ReferenceImage{URL: url, UploadedAt: uploadedAt})
		}
		if len(images) == 0 {
			images = nil
		}

		items = append(items, domain.OrderItem{
			ProductID:              productID,
			Quantity:               input.Quantity,
			Fabric:                 strings.TrimSpace(input.Fabric),
			SelectedCustomizations: input.SelectedCustomizations,
			ReferenceImages:        images,
			UnitPrice:              unitPrice,
			TotalPrice:             totalPrice,
		})
	}
	return items, nil
}

func (s *orderService) checkMeasurementProfile(ctx context.Context, profileID, customerID string) error {
	if s.measurements == nil {
		return fmt.Errorf("%w: measurement profiles are not supported", ErrOrderInvalidInput)
	}

	profile, err := s.measurements.FindByID(ctx, profileID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return fmt.Errorf("%w: measurement profile %s not found", ErrOrderInvalidInput, profileID)
		}
		return err
	}
	if profile.CustomerID != customerID {
		return fmt.Errorf("%w: measurement profile %s does not belong to customer", ErrOrderInvalidInput, profileID)
	}
	return nil
}

// populate attaches catalog and customer projections for presentation. Lookup
// failures degrade to the bare order rather than failing the read.
func (s *orderService) populate(ctx context.Context, order domain.Order) domain.Order {
	populated := s.populateAll(ctx, []domain.Order{order})
	return populated[0]
}

func (s *orderService) populateAll(ctx context.Context, orders []domain.Order) []domain.Order {
	if len(orders) == 0 {
		return orders
	}

	productIDs := make([]string, 0)
	customerIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		customerIDs = append(customerIDs, order.CustomerID)
		for _, item := range order.Items {
			productIDs = append(productIDs, item.ProductID)
		}
	}

	var productsByID map[string]domain.Product
	if s.products != nil {
		if loaded, err := s.products.GetMulti(ctx, productIDs); err == nil {
			productsByID = loaded
		} else {
			s.logger(ctx, "order.populate.products.failed", map[string]any{"error": err.Error()})
		}
	}

	var usersByID map[string]domain.UserSummary
	if s.users != nil {
		if loaded, err := s.users.GetMulti(ctx, customerIDs); err == nil {
			usersByID = loaded
		} else {
			s.logger(ctx, "order.populate.users.failed", map[string]any{"error": err.Error()})
		}
	}

	for oi := range orders {
		if user, ok := usersByID[orders[oi].CustomerID]; ok {
			userCopy := user
			orders[oi].Customer = &userCopy
		}
		for ii := range orders[oi].Items {
			if product, ok := productsByID[orders[oi].Items[ii].ProductID]; ok {
				summary := product.Summary()
				orders[oi].Items[ii].Product = &summary
			}
		}
	}
	return orders
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func validateAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.Street) == "" {
		return fmt.Errorf("%w: delivery address street is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: delivery address city is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return fmt.Errorf("%w: delivery address postal code is required", ErrOrderInvalidInput)
	}
	return nil
}
