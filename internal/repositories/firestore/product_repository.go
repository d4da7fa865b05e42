package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"

	domain "github.com/darzi-atelier/api/internal/domain"
	pfirestore "github.com/darzi-atelier/api/internal/platform/firestore"
)

const productCollection = "products"

// ProductRepository reads the garment catalog from Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Product]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[domain.Product](provider, productCollection, nil, nil),
	}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Product{}, errors.New("product id is required")
	}

	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	product := doc.Data
	product.ID = doc.ID
	return product, nil
}

// GetMulti loads the given products keyed by ID. Missing IDs are simply
// absent from the result rather than an error.
func (r *ProductRepository) GetMulti(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(productCollection).Doc(id))
	}
	if len(refs) == 0 {
		return out, nil
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.getall", err)
	}

	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var product domain.Product
		if err := snap.DataTo(&product); err != nil {
			return nil, pfirestore.WrapError("products.decode", err)
		}
		product.ID = snap.Ref.ID
		out[product.ID] = product
	}
	return out, nil
}

// Count returns the number of catalog documents using a server-side aggregation.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	return countCollection(ctx, r.provider, productCollection, nil)
}

// countCollection counts documents server-side, optionally narrowed by filter.
func countCollection(ctx context.Context, provider *pfirestore.Provider, collection string, filter func(firestore.Query) firestore.Query) (int64, error) {
	if provider == nil {
		return 0, errors.New("firestore provider not initialised")
	}

	client, err := provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	// Aggregation queries avoid streaming every document just to count.
	query := client.Collection(collection).Query
	if filter != nil {
		query = filter(query)
	}
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError(collection+".count", err)
	}

	if raw, ok := results["total"]; ok {
		if value, ok := countValue(raw); ok {
			return value, nil
		}
	}

	// Fall back to streaming IDs if the aggregation result shape changes.
	iter := query.Select().Documents(ctx)
	defer iter.Stop()

	var total int64
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, pfirestore.WrapError(collection+".count", err)
		}
		total++
	}
	return total, nil
}

func countValue(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case *firestorepb.Value:
		return v.GetIntegerValue(), true
	default:
		return 0, false
	}
}
