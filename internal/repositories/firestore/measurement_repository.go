package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/darzi-atelier/api/internal/domain"
	pfirestore "github.com/darzi-atelier/api/internal/platform/firestore"
)

const measurementCollection = "measurements"

// MeasurementRepository persists saved measurement profiles.
type MeasurementRepository struct {
	base *pfirestore.BaseRepository[domain.MeasurementProfile]
}

// NewMeasurementRepository constructs a Firestore-backed measurement repository.
func NewMeasurementRepository(provider *pfirestore.Provider) (*MeasurementRepository, error) {
	if provider == nil {
		return nil, errors.New("measurement repository requires firestore provider")
	}
	return &MeasurementRepository{
		base: pfirestore.NewBaseRepository[domain.MeasurementProfile](provider, measurementCollection, nil, nil),
	}, nil
}

// FindByID loads a measurement profile by document ID.
func (r *MeasurementRepository) FindByID(ctx context.Context, profileID string) (domain.MeasurementProfile, error) {
	if r == nil || r.base == nil {
		return domain.MeasurementProfile{}, errors.New("measurement repository not initialised")
	}
	if strings.TrimSpace(profileID) == "" {
		return domain.MeasurementProfile{}, errors.New("measurement profile id is required")
	}

	doc, err := r.base.Get(ctx, profileID)
	if err != nil {
		return domain.MeasurementProfile{}, err
	}
	profile := doc.Data
	profile.ID = doc.ID
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile, nil
}

// ListByCustomer returns the customer's saved profiles, newest first.
func (r *MeasurementRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.MeasurementProfile, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("measurement repository not initialised")
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.MeasurementProfile, 0, len(docs))
	for _, doc := range docs {
		profile := doc.Data
		profile.ID = doc.ID
		profiles = append(profiles, profile)
	}
	return profiles, nil
}
