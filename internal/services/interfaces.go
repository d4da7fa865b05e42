package services

import (
	"context"
	"time"

	domain "github.com/darzi-atelier/api/internal/domain"

	"github.com/darzi-atelier/api/internal/platform/auth"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	PaymentMethod      = domain.PaymentMethod
	TimelineEntry      = domain.TimelineEntry
	ReferenceImage     = domain.ReferenceImage
	Address            = domain.Address
	MeasurementSet     = domain.MeasurementSet
	MeasurementProfile = domain.MeasurementProfile
	Product            = domain.Product
	ProductSummary     = domain.ProductSummary
	UserSummary        = domain.UserSummary
	DashboardStats     = domain.DashboardStats
	PaymentRecord      = domain.PaymentRecord
	PaymentsReport     = domain.PaymentsReport
	SystemHealthReport = domain.SystemHealthReport
)

// AccessContext carries the authenticated principal into service calls so
// authorisation decisions are explicit rather than read from ambient state.
type AccessContext struct {
	UserID string
	Email  string
	Roles  []string
}

// IsAdmin reports whether the principal holds the admin role.
func (a AccessContext) IsAdmin() bool {
	for _, role := range a.Roles {
		if role == auth.RoleAdmin {
			return true
		}
	}
	return false
}

// AccessFromIdentity projects an authenticated identity into an AccessContext.
func AccessFromIdentity(identity *auth.Identity) AccessContext {
	if identity == nil {
		return AccessContext{}
	}
	roles := make([]string, len(identity.Roles))
	copy(roles, identity.Roles)
	return AccessContext{
		UserID: identity.UID,
		Email:  identity.Email,
		Roles:  roles,
	}
}

// CreateOrderItemInput is one garment line supplied at order creation.
type CreateOrderItemInput struct {
	ProductID              string
	Quantity               int
	Fabric                 string
	SelectedCustomizations map[string]string
	ReferenceImages        []ReferenceImage
	UnitPrice              int64
	TotalPrice             int64
}

// CreateOrderCommand captures the checkout payload for placing an order.
type CreateOrderCommand struct {
	Access               AccessContext
	Items                []CreateOrderItemInput
	TotalAmount          int64
	Currency             string
	PaymentMethod        PaymentMethod
	DeliveryAddress      Address
	MeasurementProfileID string
	SpecialNotes         string
	ExpectedDeliveryDate *time.Time
}

// UpdateOrderStatusCommand advances an order through the tailoring workflow.
type UpdateOrderStatusCommand struct {
	Access  AccessContext
	OrderID string
	Status  OrderStatus
	Note    string
}

// OrderService manages the order lifecycle from placement through fulfilment.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetMine(ctx context.Context, access AccessContext) ([]Order, error)
	GetByID(ctx context.Context, access AccessContext, orderID string) (Order, error)
	ListAll(ctx context.Context, access AccessContext) ([]Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// CheckoutIntent is the payload the client needs to open the gateway's
// checkout form. The key secret is never part of it.
type CheckoutIntent struct {
	OrderID         string
	GatewayOrderID  string
	Amount          int64
	Currency        string
	KeyID           string
	CustomerName    string
	CustomerEmail   string
	CustomerContact string
	Description     string
}

// CreateCheckoutCommand opens a gateway order for an online payment.
type CreateCheckoutCommand struct {
	Access  AccessContext
	OrderID string
}

// VerifyPaymentCommand carries the gateway callback fields for verification.
type VerifyPaymentCommand struct {
	Access           AccessContext
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// PaymentService bridges orders and the payment gateway.
type PaymentService interface {
	CreateCheckout(ctx context.Context, cmd CreateCheckoutCommand) (CheckoutIntent, error)
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	ListPayments(ctx context.Context, access AccessContext) (PaymentsReport, error)
}

// DashboardService computes the back-office snapshot on demand.
type DashboardService interface {
	Stats(ctx context.Context, access AccessContext) (DashboardStats, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
