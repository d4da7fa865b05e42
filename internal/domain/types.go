package domain

import (
	"time"
)

// OrderStatus describes where an order sits in the tailoring workflow.
type OrderStatus string

const (
	// OrderStatusPending is the initial state for online-payment orders awaiting confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusMeasurementsConfirmed means measurements were locked in and stitching can begin.
	OrderStatusMeasurementsConfirmed OrderStatus = "measurements_confirmed"
	// OrderStatusInStitching means the garment is being stitched.
	OrderStatusInStitching OrderStatus = "in_stitching"
	// OrderStatusReady means the garment is finished and awaiting dispatch.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusDispatched means the garment left the workshop.
	OrderStatusDispatched OrderStatus = "dispatched"
	// OrderStatusCompleted means the order was delivered and closed.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled means the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known workflow states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusMeasurementsConfirmed, OrderStatusInStitching,
		OrderStatusReady, OrderStatusDispatched, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderStatuses lists every workflow state in progression order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusMeasurementsConfirmed,
		OrderStatusInStitching,
		OrderStatusReady,
		OrderStatusDispatched,
		OrderStatusCompleted,
		OrderStatusCancelled,
	}
}

// PaymentStatus tracks settlement of the order total.
type PaymentStatus string

const (
	// PaymentStatusPending means no successful capture has been recorded yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid means a gateway capture was verified.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed means the last capture attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded means the captured amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod is how the customer chose to settle the order.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery.
	PaymentMethodCOD PaymentMethod = "COD"
	// PaymentMethodOnline is prepaid via the payment gateway.
	PaymentMethodOnline PaymentMethod = "Online"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// MeasurementSet holds garment measurements in centimetres, keyed by point
// name (chest, waist, sleeve and so on). Keys vary by garment type.
type MeasurementSet map[string]float64

// ReferenceImage is a customer-supplied inspiration photo attached to an
// order item.
type ReferenceImage struct {
	URL        string    `firestore:"url"`
	UploadedAt time.Time `firestore:"uploadedAt"`
}

// OrderItem is one garment line inside an order. ProductID references the
// catalog; the fabric and customization fields snapshot the customer's
// choices at order time.
type OrderItem struct {
	ProductID              string            `firestore:"productId"`
	Quantity               int               `firestore:"quantity"`
	Fabric                 string            `firestore:"selectedFabric,omitempty"`
	SelectedCustomizations map[string]string `firestore:"selectedCustomizations,omitempty"`
	ReferenceImages        []ReferenceImage  `firestore:"referenceImages,omitempty"`
	UnitPrice              int64             `firestore:"unitPrice"`
	TotalPrice             int64             `firestore:"totalPrice"`

	// Product carries catalog details when the item has been populated for
	// presentation. It is never persisted with the order document.
	Product *ProductSummary `firestore:"-"`
}

// TimelineEntry records one status change on an order. ChangedBy is the UID
// of the principal who caused the change, when known.
type TimelineEntry struct {
	Status    OrderStatus `firestore:"status"`
	Note      string      `firestore:"note,omitempty"`
	ChangedBy string      `firestore:"changedBy,omitempty"`
	Timestamp time.Time   `firestore:"timestamp"`
}

// Address is the delivery address snapshot captured at checkout.
type Address struct {
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

// PaymentDetails holds the gateway references attached to an order once an
// online payment intent exists. GatewayPaymentID doubles as the processed
// marker for verification idempotency.
type PaymentDetails struct {
	GatewayOrderID   string     `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string     `firestore:"gatewayPaymentId,omitempty"`
	VerifiedAt       *time.Time `firestore:"verifiedAt,omitempty"`
}

// Order is the aggregate for a customer tailoring order. Amounts are in the
// smallest currency unit (paise for INR).
type Order struct {
	ID                   string          `firestore:"-"`
	OrderNumber          string          `firestore:"orderNumber"`
	CustomerID           string          `firestore:"customerId"`
	Items                []OrderItem     `firestore:"orderItems"`
	TotalAmount          int64           `firestore:"totalAmount"`
	Currency             string          `firestore:"currency"`
	Status               OrderStatus     `firestore:"status"`
	PaymentStatus        PaymentStatus   `firestore:"paymentStatus"`
	PaymentMethod        PaymentMethod   `firestore:"paymentMethod"`
	Payment              PaymentDetails  `firestore:"payment"`
	DeliveryAddress      Address         `firestore:"deliveryAddress"`
	MeasurementProfileID string          `firestore:"measurementProfileId,omitempty"`
	SpecialNotes         string          `firestore:"specialNotes,omitempty"`
	ExpectedDeliveryDate *time.Time      `firestore:"expectedDeliveryDate,omitempty"`
	StatusTimeline       []TimelineEntry `firestore:"statusTimeline"`
	CreatedAt            time.Time       `firestore:"createdAt"`
	UpdatedAt            time.Time       `firestore:"updatedAt"`

	// Customer carries profile details when the order has been populated
	// for presentation. Never persisted.
	Customer *UserSummary `firestore:"-"`
}

// Paid reports whether the order total has been settled.
func (o Order) Paid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// CurrentStatus returns the latest timeline status, falling back to the
// top-level field when the timeline is empty.
func (o Order) CurrentStatus() OrderStatus {
	if len(o.StatusTimeline) == 0 {
		return o.Status
	}
	return o.StatusTimeline[len(o.StatusTimeline)-1].Status
}

// ProductSummary is the slice of catalog data embedded when populating order
// items for display.
type ProductSummary struct {
	ID       string `firestore:"-"`
	Name     string `firestore:"name"`
	Category string `firestore:"category"`
	Price    int64  `firestore:"basePrice"`
	ImageURL string `firestore:"imageUrl,omitempty"`
}

// Product is a catalog garment offered for custom tailoring. BasePrice is in
// the smallest currency unit.
type Product struct {
	ID          string    `firestore:"-"`
	Name        string    `firestore:"name"`
	Category    string    `firestore:"category"`
	Description string    `firestore:"description,omitempty"`
	BasePrice   int64     `firestore:"basePrice"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	Fabrics     []string  `firestore:"fabrics,omitempty"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// Summary projects the product to the embeddable view used on orders.
func (p Product) Summary() ProductSummary {
	return ProductSummary{ID: p.ID, Name: p.Name, Category: p.Category, Price: p.BasePrice, ImageURL: p.ImageURL}
}

// UserSummary is the customer projection embedded on populated orders and
// admin listings.
type UserSummary struct {
	ID    string `firestore:"-"`
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
	Role  string `firestore:"role,omitempty"`
}

// MeasurementProfile is a saved, named set of body measurements a customer
// can reuse across orders.
type MeasurementProfile struct {
	ID         string         `firestore:"-"`
	CustomerID string         `firestore:"customerId"`
	Label      string         `firestore:"label"`
	Garment    string         `firestore:"garment,omitempty"`
	Values     MeasurementSet `firestore:"values"`
	CreatedAt  time.Time      `firestore:"createdAt"`
	UpdatedAt  time.Time      `firestore:"updatedAt"`
}

// RevenuePoint is one day of verified revenue for the dashboard trend.
type RevenuePoint struct {
	Date    string `firestore:"-"`
	Revenue int64  `firestore:"-"`
}

// PopularDesign is one entry of the dashboard's most-ordered products.
type PopularDesign struct {
	ProductID string          `firestore:"-"`
	Count     int             `firestore:"-"`
	Product   *ProductSummary `firestore:"-"`
}

// DashboardStats is the aggregated back-office snapshot computed on demand.
type DashboardStats struct {
	TotalOrders     int64
	TotalCustomers  int64
	TotalProducts   int64
	TotalSales      int64
	OrdersByStatus  map[OrderStatus]int64
	RevenueTrend    []RevenuePoint
	PopularDesigns  []PopularDesign
	RecentOrders    []Order
	PendingPayments int64
	InStitching     int64
}

// PaymentRecord is one row of the admin payments report, derived from orders
// rather than stored separately.
type PaymentRecord struct {
	OrderID          string
	OrderNumber      string
	CustomerID       string
	Customer         *UserSummary
	Amount           int64
	Currency         string
	Method           PaymentMethod
	Status           PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	CreatedAt        time.Time
}

// PaymentsReport is the admin transaction view: the individual rows plus the
// settled and outstanding totals across all orders.
type PaymentsReport struct {
	Payments        []PaymentRecord
	TotalRevenue    int64
	PendingPayments int64
}
