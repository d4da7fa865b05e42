package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/iterator"

	pfirestore "github.com/darzi-atelier/api/internal/platform/firestore"
	"github.com/darzi-atelier/api/internal/repositories"
)

const firestoreProbeTimeout = 1500 * time.Millisecond

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract. Closing the registry releases the shared
// client.
type Registry struct {
	provider     *pfirestore.Provider
	orders       *OrderRepository
	products     *ProductRepository
	users        *UserRepository
	measurements *MeasurementRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: order repository: %w", err)
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: product repository: %w", err)
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: user repository: %w", err)
	}
	measurements, err := NewMeasurementRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: measurement repository: %w", err)
	}
	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: firestoreProbeTimeout,
			Check:   firestoreProbe(provider),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: health repository: %w", err)
	}

	return &Registry{
		provider:     provider,
		orders:       orders,
		products:     products,
		users:        users,
		measurements: measurements,
		health:       health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Users() repositories.UserRepository               { return r.users }
func (r *Registry) Measurements() repositories.MeasurementRepository { return r.measurements }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

func firestoreProbe(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collections(ctx)
		if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
			return err
		}
		return nil
	}
}
