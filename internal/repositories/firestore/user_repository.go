package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/darzi-atelier/api/internal/domain"
	pfirestore "github.com/darzi-atelier/api/internal/platform/firestore"
)

const userCollection = "users"

// UserRepository reads customer profiles synced from Firebase Auth into the
// users collection.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.UserSummary]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[domain.UserSummary](provider, userCollection, nil, nil),
	}, nil
}

// FindByID loads a customer profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserSummary, error) {
	if r == nil || r.base == nil {
		return domain.UserSummary{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserSummary{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserSummary{}, err
	}
	user := doc.Data
	user.ID = doc.ID
	return user, nil
}

// GetMulti loads the given customer profiles keyed by UID. Missing UIDs are
// absent from the result.
func (r *UserRepository) GetMulti(ctx context.Context, userIDs []string) (map[string]domain.UserSummary, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("user repository not initialised")
	}

	out := make(map[string]domain.UserSummary, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(userCollection).Doc(id))
	}
	if len(refs) == 0 {
		return out, nil
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("users.getall", err)
	}

	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var user domain.UserSummary
		if err := snap.DataTo(&user); err != nil {
			return nil, pfirestore.WrapError("users.decode", err)
		}
		user.ID = snap.Ref.ID
		out[user.ID] = user
	}
	return out, nil
}

// Count returns the number of customer profiles. Admin and staff accounts
// live in the same collection and are excluded.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	return countCollection(ctx, r.provider, userCollection, func(q firestore.Query) firestore.Query {
		return q.Where("role", "==", "customer")
	})
}
