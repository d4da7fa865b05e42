package repositories

import (
	"context"

	domain "github.com/darzi-atelier/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Users() UserRepository
	Measurements() MeasurementRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order aggregates. Insert atomically claims the
// order number alongside the document write; a duplicate number surfaces as a
// RepositoryError with IsConflict.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)

	// Mutate runs fn against the current document inside a transaction and
	// persists the mutated aggregate. fn returning an error aborts without
	// writing.
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
}

// ProductRepository reads the garment catalog used to enrich orders and the
// dashboard.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	GetMulti(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	Count(ctx context.Context) (int64, error)
}

// UserRepository reads customer profiles synced from Firebase Auth.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserSummary, error)
	GetMulti(ctx context.Context, userIDs []string) (map[string]domain.UserSummary, error)
	Count(ctx context.Context) (int64, error)
}

// MeasurementRepository persists saved measurement profiles.
type MeasurementRepository interface {
	FindByID(ctx context.Context, profileID string) (domain.MeasurementProfile, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.MeasurementProfile, error)
}

// HealthRepository aggregates dependency health probes for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
