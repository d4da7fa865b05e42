package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/darzi-atelier/api/internal/domain"
	"github.com/darzi-atelier/api/internal/platform/auth"
	"github.com/darzi-atelier/api/internal/platform/httpx"
	"github.com/darzi-atelier/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

type createOrderRequest struct {
	Items                []createOrderItemRequest `json:"items"`
	TotalAmount          int64                    `json:"total_amount"`
	Currency             string                   `json:"currency"`
	PaymentMethod        string                   `json:"payment_method"`
	DeliveryAddress      addressRequest           `json:"delivery_address"`
	MeasurementProfileID string                   `json:"measurement_profile_id"`
	SpecialNotes         string                   `json:"special_notes"`
	ExpectedDeliveryDate string                   `json:"expected_delivery_date"`
}

type createOrderItemRequest struct {
	ProductID              string                  `json:"product_id"`
	Quantity               int                     `json:"quantity"`
	Fabric                 string                  `json:"selected_fabric"`
	SelectedCustomizations map[string]string       `json:"selected_customizations"`
	ReferenceImages        []referenceImageRequest `json:"reference_images"`
	UnitPrice              int64                   `json:"unit_price"`
	TotalPrice             int64                   `json:"total_price"`
}

type referenceImageRequest struct {
	URL        string `json:"url"`
	UploadedAt string `json:"uploaded_at"`
}

type addressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderHandlers exposes order placement and retrieval endpoints for
// authenticated customers.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/mine", h.listMyOrders)
	r.Get("/{orderID}", h.getOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Access:               access,
		TotalAmount:          req.TotalAmount,
		Currency:             strings.TrimSpace(req.Currency),
		PaymentMethod:        parsePaymentMethod(req.PaymentMethod),
		DeliveryAddress:      buildAddress(req.DeliveryAddress),
		MeasurementProfileID: strings.TrimSpace(req.MeasurementProfileID),
		SpecialNotes:         strings.TrimSpace(req.SpecialNotes),
	}
	for _, item := range req.Items {
		input := services.CreateOrderItemInput{
			ProductID:              strings.TrimSpace(item.ProductID),
			Quantity:               item.Quantity,
			Fabric:                 item.Fabric,
			SelectedCustomizations: item.SelectedCustomizations,
			UnitPrice:              item.UnitPrice,
			TotalPrice:             item.TotalPrice,
		}
		for _, image := range item.ReferenceImages {
			ref := services.ReferenceImage{URL: strings.TrimSpace(image.URL)}
			if raw := strings.TrimSpace(image.UploadedAt); raw != "" {
				ts, err := parseTimeParam(raw)
				if err != nil {
					httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "reference image uploaded_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
					return
				}
				ref.UploadedAt = ts
			}
			input.ReferenceImages = append(input.ReferenceImages, ref)
		}
		cmd.Items = append(cmd.Items, input)
	}
	if raw := strings.TrimSpace(req.ExpectedDeliveryDate); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected_delivery_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.ExpectedDeliveryDate = &ts
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, ok := requireAccess(ctx, w, h.orders != nil)
	if !ok {
		return
	}

	orders, err := h.orders.GetMine(ctx, access)
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

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orders.GetByID(ctx, access, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// requireAccess extracts the authenticated principal and reports service
// availability failures uniformly across handlers.
func requireAccess(ctx context.Context, w http.ResponseWriter, serviceReady bool) (services.AccessContext, bool) {
	if !serviceReady {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "service unavailable", http.StatusServiceUnavailable))
		return services.AccessContext{}, false
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.AccessContext{}, false
	}
	return services.AccessFromIdentity(identity), true
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                   string                 `json:"id"`
	OrderNumber          string                 `json:"order_number"`
	CustomerID           string                 `json:"customer_id"`
	Customer             *customerPayload       `json:"customer,omitempty"`
	Items                []orderItemPayload     `json:"items"`
	TotalAmount          int64                  `json:"total_amount"`
	Currency             string                 `json:"currency"`
	Status               string                 `json:"status"`
	PaymentStatus        string                 `json:"payment_status"`
	PaymentMethod        string                 `json:"payment_method"`
	Payment              *paymentDetailsPayload `json:"payment,omitempty"`
	DeliveryAddress      addressPayload         `json:"delivery_address"`
	MeasurementProfileID string                 `json:"measurement_profile_id,omitempty"`
	SpecialNotes         string                 `json:"special_notes,omitempty"`
	ExpectedDeliveryDate string                 `json:"expected_delivery_date,omitempty"`
	StatusTimeline       []timelinePayload      `json:"status_timeline"`
	CreatedAt            string                 `json:"created_at"`
	UpdatedAt            string                 `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID              string                  `json:"product_id"`
	Product                *productPayload         `json:"product,omitempty"`
	Quantity               int                     `json:"quantity"`
	Fabric                 string                  `json:"selected_fabric,omitempty"`
	SelectedCustomizations map[string]string       `json:"selected_customizations,omitempty"`
	ReferenceImages        []referenceImagePayload `json:"reference_images,omitempty"`
	UnitPrice              int64                   `json:"unit_price"`
	TotalPrice             int64                   `json:"total_price"`
}

type referenceImagePayload struct {
	URL        string `json:"url"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

type productPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Price    int64  `json:"price"`
	ImageURL string `json:"image_url,omitempty"`
}

type customerPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type paymentDetailsPayload struct {
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	VerifiedAt       string `json:"verified_at,omitempty"`
}

type addressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

type timelinePayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	ChangedBy string `json:"changed_by,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                   strings.TrimSpace(order.ID),
		OrderNumber:          strings.TrimSpace(order.OrderNumber),
		CustomerID:           strings.TrimSpace(order.CustomerID),
		Items:                make([]orderItemPayload, 0, len(order.Items)),
		TotalAmount:          order.TotalAmount,
		Currency:             strings.ToUpper(strings.TrimSpace(order.Currency)),
		Status:               string(order.Status),
		PaymentStatus:        string(order.PaymentStatus),
		PaymentMethod:        string(order.PaymentMethod),
		DeliveryAddress:      buildAddressPayload(order.DeliveryAddress),
		MeasurementProfileID: strings.TrimSpace(order.MeasurementProfileID),
		SpecialNotes:         strings.TrimSpace(order.SpecialNotes),
		ExpectedDeliveryDate: formatTime(pointerTime(order.ExpectedDeliveryDate)),
		StatusTimeline:       make([]timelinePayload, 0, len(order.StatusTimeline)),
		CreatedAt:            formatTime(order.CreatedAt),
		UpdatedAt:            formatTime(order.UpdatedAt),
	}

	if order.Customer != nil {
		payload.Customer = buildCustomerPayload(*order.Customer)
	}

	if order.Payment.GatewayOrderID != "" || order.Payment.GatewayPaymentID != "" || order.Payment.VerifiedAt != nil {
		payload.Payment = &paymentDetailsPayload{
			GatewayOrderID:   order.Payment.GatewayOrderID,
			GatewayPaymentID: order.Payment.GatewayPaymentID,
			VerifiedAt:       formatTime(pointerTime(order.Payment.VerifiedAt)),
		}
	}

	for _, item := range order.Items {
		entry := orderItemPayload{
			ProductID:              strings.TrimSpace(item.ProductID),
			Quantity:               item.Quantity,
			Fabric:                 item.Fabric,
			SelectedCustomizations: item.SelectedCustomizations,
			UnitPrice:              item.UnitPrice,
			TotalPrice:             item.TotalPrice,
		}
		for _, image := range item.ReferenceImages {
			entry.ReferenceImages = append(entry.ReferenceImages, referenceImagePayload{
				URL:        image.URL,
				UploadedAt: formatTime(image.UploadedAt),
			})
		}
		if item.Product != nil {
			entry.Product = buildProductPayload(*item.Product)
		}
		payload.Items = append(payload.Items, entry)
	}

	for _, entry := range order.StatusTimeline {
		payload.StatusTimeline = append(payload.StatusTimeline, timelinePayload{
			Status:    string(entry.Status),
			Note:      entry.Note,
			ChangedBy: entry.ChangedBy,
			Timestamp: formatTime(entry.Timestamp),
		})
	}

	return payload
}

func buildCustomerPayload(user services.UserSummary) *customerPayload {
	return &customerPayload{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Phone: user.Phone,
	}
}

func buildProductPayload(product services.ProductSummary) *productPayload {
	return &productPayload{
		ID:       product.ID,
		Name:     product.Name,
		Category: product.Category,
		Price:    product.Price,
		ImageURL: product.ImageURL,
	}
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		Street:     strings.TrimSpace(addr.Street),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
}

func buildAddress(req addressRequest) domain.Address {
	return domain.Address{
		Street:     strings.TrimSpace(req.Street),
		City:       strings.TrimSpace(req.City),
		State:      strings.TrimSpace(req.State),
		PostalCode: strings.TrimSpace(req.PostalCode),
		Country:    strings.TrimSpace(req.Country),
	}
}

// parsePaymentMethod accepts any casing from clients and maps to the
// canonical method values. Unknown input passes through and fails service
// validation.
func parsePaymentMethod(raw string) domain.PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cod":
		return domain.PaymentMethodCOD
	case "online":
		return domain.PaymentMethodOnline
	default:
		return domain.PaymentMethod(strings.TrimSpace(raw))
	}
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.New("must be RFC3339 timestamp")
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "access denied", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
