package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/darzi-atelier/api/internal/domain"
	"github.com/darzi-atelier/api/internal/payments"
	"github.com/darzi-atelier/api/internal/repositories"
)

const timelineNotePaymentVerified = "Payment verified (online)"

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentForbidden indicates the principal may not act on the order.
	ErrPaymentForbidden = errors.New("payment: access denied")
	// ErrPaymentOrderNotFound indicates the referenced order does not exist.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentNotApplicable indicates the order cannot accept an online payment.
	ErrPaymentNotApplicable = errors.New("payment: not applicable")
	// ErrPaymentInvalidSignature indicates the gateway callback failed verification.
	ErrPaymentInvalidSignature = errors.New("payment: invalid signature")
	// ErrPaymentGatewayUnavailable indicates the gateway rejected or timed out.
	ErrPaymentGatewayUnavailable = errors.New("payment: gateway unavailable")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders  repositories.OrderRepository
	Users   repositories.UserRepository
	Gateway payments.Gateway
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders  repositories.OrderRepository
	users   repositories.UserRepository
	gateway payments.Gateway
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:  deps.Orders,
		users:   deps.Users,
		gateway: deps.Gateway,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *paymentService) CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutIntent, error) {
	order, err := s.loadOwnedOrder(ctx, cmd.Access, cmd.OrderID)
	if err != nil {
		return CheckoutIntent{}, err
	}

	if order.PaymentMethod != domain.PaymentMethodOnline {
		return CheckoutIntent{}, fmt.Errorf("%w: order %s is not an online payment order", ErrPaymentNotApplicable, order.ID)
	}
	if order.Paid() {
		return CheckoutIntent{}, fmt.Errorf("%w: order %s is already paid", ErrPaymentNotApplicable, order.ID)
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		Amount:   order.TotalAmount,
		Currency: order.Currency,
		Receipt:  order.OrderNumber,
		Notes: map[string]string{
			"orderId": order.ID,
		},
	})
	if err != nil {
		if errors.Is(err, payments.ErrGatewayUnavailable) {
			return CheckoutIntent{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
		}
		return CheckoutIntent{}, err
	}

	now := s.clock()
	if _, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		o.Payment.GatewayOrderID = intent.GatewayOrderID
		o.UpdatedAt = now
		return nil
	}); err != nil {
		return CheckoutIntent{}, s.mapRepositoryError(err)
	}

	checkout := CheckoutIntent{
		OrderID:        order.ID,
		GatewayOrderID: intent.GatewayOrderID,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		KeyID:          s.gateway.KeyID(),
		Description:    fmt.Sprintf("Order %s", order.OrderNumber),
	}
	if checkout.Amount == 0 {
		checkout.Amount = order.TotalAmount
	}
	if checkout.Currency == "" {
		checkout.Currency = order.Currency
	}

	if s.users != nil {
		if customer, err := s.users.FindByID(ctx, order.CustomerID); err == nil {
			checkout.CustomerName = customer.Name
			checkout.CustomerEmail = customer.Email
			checkout.CustomerContact = customer.Phone
		} else {
			s.logger(ctx, "payment.checkout.customer.lookup.failed", map[string]any{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	s.logger(ctx, "payment.checkout.created", map[string]any{
		"order_id":         order.ID,
		"gateway_order_id": intent.GatewayOrderID,
		"amount":           checkout.Amount,
	})

	return checkout, nil
}

func (s *paymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	if strings.TrimSpace(cmd.GatewayOrderID) == "" || strings.TrimSpace(cmd.GatewayPaymentID) == "" {
		return Order{}, fmt.Errorf("%w: gateway order and payment ids are required", ErrPaymentInvalidInput)
	}

	order, err := s.loadOwnedOrder(ctx, cmd.Access, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	// Replayed callbacks for an already recorded payment succeed without
	// touching the order again.
	if order.Paid() && order.Payment.GatewayPaymentID == cmd.GatewayPaymentID {
		return order, nil
	}
	if order.Paid() {
		return Order{}, fmt.Errorf("%w: order %s already has a different payment recorded", ErrPaymentNotApplicable, order.ID)
	}

	if order.Payment.GatewayOrderID != "" && order.Payment.GatewayOrderID != cmd.GatewayOrderID {
		return Order{}, fmt.Errorf("%w: gateway order mismatch for order %s", ErrPaymentInvalidInput, order.ID)
	}

	if !s.gateway.VerifySignature(cmd.GatewayOrderID, cmd.GatewayPaymentID, cmd.Signature) {
		s.logger(ctx, "payment.verify.signature.rejected", map[string]any{
			"order_id":         order.ID,
			"gateway_order_id": cmd.GatewayOrderID,
		})
		return Order{}, fmt.Errorf("%w: order %s", ErrPaymentInvalidSignature, order.ID)
	}

	now := s.clock()
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		if o.Paid() && o.Payment.GatewayPaymentID == cmd.GatewayPaymentID {
			return nil
		}

		o.PaymentStatus = domain.PaymentStatusPaid
		o.Payment.GatewayOrderID = cmd.GatewayOrderID
		o.Payment.GatewayPaymentID = cmd.GatewayPaymentID
		verifiedAt := now
		o.Payment.VerifiedAt = &verifiedAt

		// Pending orders advance once payment clears; later-stage orders keep
		// their status but still record the verification.
		if o.Status == domain.OrderStatusPending {
			o.Status = domain.OrderStatusMeasurementsConfirmed
		}
		o.StatusTimeline = append(o.StatusTimeline, domain.TimelineEntry{
			Status:    o.Status,
			Note:      timelineNotePaymentVerified,
			ChangedBy: cmd.Access.UserID,
			Timestamp: now,
		})
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "payment.verified", map[string]any{
		"order_id":           updated.ID,
		"gateway_payment_id": cmd.GatewayPaymentID,
		"amount":             updated.TotalAmount,
	})

	return updated, nil
}

func (s *paymentService) ListPayments(ctx context.Context, access AccessContext) (PaymentsReport, error) {
	if !access.IsAdmin() {
		return PaymentsReport{}, fmt.Errorf("%w: admin role required", ErrPaymentForbidden)
	}

	orders, err := s.orders.List(ctx)
	if err != nil {
		return PaymentsReport{}, s.mapRepositoryError(err)
	}

	customerIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		customerIDs = append(customerIDs, order.CustomerID)
	}

	var usersByID map[string]domain.UserSummary
	if s.users != nil {
		if loaded, err := s.users.GetMulti(ctx, customerIDs); err == nil {
			usersByID = loaded
		} else {
			s.logger(ctx, "payment.report.users.failed", map[string]any{"error": err.Error()})
		}
	}

	report := PaymentsReport{Payments: make([]PaymentRecord, 0, len(orders))}
	for _, order := range orders {
		record := PaymentRecord{
			OrderID:          order.ID,
			OrderNumber:      order.OrderNumber,
			CustomerID:       order.CustomerID,
			Amount:           order.TotalAmount,
			Currency:         order.Currency,
			Method:           order.PaymentMethod,
			Status:           order.PaymentStatus,
			GatewayOrderID:   order.Payment.GatewayOrderID,
			GatewayPaymentID: order.Payment.GatewayPaymentID,
			CreatedAt:        order.CreatedAt,
		}
		if user, ok := usersByID[order.CustomerID]; ok {
			userCopy := user
			record.Customer = &userCopy
		}

		switch order.PaymentStatus {
		case domain.PaymentStatusPaid:
			report.TotalRevenue += order.TotalAmount
		case domain.PaymentStatusPending:
			report.PendingPayments += order.TotalAmount
		}
		report.Payments = append(report.Payments, record)
	}

	sort.SliceStable(report.Payments, func(i, j int) bool {
		return report.Payments[i].CreatedAt.After(report.Payments[j].CreatedAt)
	})

	return report, nil
}

func (s *paymentService) loadOwnedOrder(ctx context.Context, access AccessContext, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if !access.IsAdmin() && order.CustomerID != access.UserID {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrPaymentForbidden, orderID)
	}
	return order, nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}
