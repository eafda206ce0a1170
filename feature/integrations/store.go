package integrations

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when an integration does not exist.
var ErrNotFound = errors.New("integration not found")

// Store persists integrations in the inventory database.
type Store struct {
	db *gorm.DB
}

// NewStore creates an integration store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new integration.
func (s *Store) Create(ctx context.Context, in *Integration) error {
	if err := s.db.WithContext(ctx).Create(in).Error; err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}
	return nil
}

// GetByTenant returns all integrations configured for a tenant, ordered by id.
func (s *Store) GetByTenant(ctx context.Context, tenantID string) ([]Integration, error) {
	var out []Integration
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	return out, nil
}

// Get returns a single integration scoped to a tenant.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Integration, error) {
	var in Integration
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query integration: %w", err)
	}
	return &in, nil
}

// Tenants returns the distinct tenant ids holding at least one integration,
// in lexicographic order.
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	var tenants []string
	err := s.db.WithContext(ctx).
		Model(&Integration{}).
		Distinct("tenant_id").
		Order("tenant_id").
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}
