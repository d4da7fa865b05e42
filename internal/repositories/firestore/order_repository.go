package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/darzi-atelier/api/internal/domain"
	pfirestore "github.com/darzi-atelier/api/internal/platform/firestore"
)

const (
	orderCollection       = "orders"
	orderNumberCollection = "orderNumbers"

	defaultRecentLimit = 10
)

type orderNumberClaim struct {
	OrderID   string    `firestore:"orderId"`
	ClaimedAt time.Time `firestore:"claimedAt"`
}

// OrderRepository persists order aggregates in Firestore. Order numbers are
// claimed in a ledger collection within the same transaction as the order
// write, so a duplicate number fails the whole insert with a conflict.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[domain.Order]
	numbers  *pfirestore.BaseRepository[orderNumberClaim]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[domain.Order](provider, orderCollection, nil, nil),
		numbers:  pfirestore.NewBaseRepository[orderNumberClaim](provider, orderNumberCollection, nil, nil),
	}, nil
}

// Insert writes the order and claims its order number atomically.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return domain.Order{}, errors.New("order number is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		numberRef, err := r.numbers.DocumentRef(ctx, order.OrderNumber)
		if err != nil {
			return err
		}

		// Create fails with AlreadyExists when the number was claimed by a
		// concurrent insert, which WrapError surfaces as a conflict.
		if err := tx.Create(numberRef, orderNumberClaim{OrderID: order.ID, ClaimedAt: order.CreatedAt}); err != nil {
			return err
		}
		return tx.Create(orderRef, order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// FindByID loads a single order by document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return hydrateOrder(doc), nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID).OrderBy("createdAt", firestore.Desc)
	})
}

// List returns every order, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
}

// ListRecent returns the most recently created orders up to limit.
func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return r.query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
}

// Mutate applies fn to the current order state inside a transaction and
// persists the result when fn succeeds.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("mutation function is required")
	}

	var mutated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var order domain.Order
		if err := snap.DataTo(&order); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}
		order.ID = snap.Ref.ID

		if err := fn(&order); err != nil {
			return err
		}

		mutated = order
		return tx.Set(ref, order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return mutated, nil
}

func (r *OrderRepository) query(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.orders.Query(ctx, build)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, hydrateOrder(doc))
	}
	return orders, nil
}

func hydrateOrder(doc pfirestore.Document[domain.Order]) domain.Order {
	order := doc.Data
	order.ID = doc.ID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = doc.UpdateTime
	}
	return order
}
