package integrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoIntegrationConfigured signals that a tenant holds no integration.
// The sync engine treats this as "skip tenant", not as a failure.
var ErrNoIntegrationConfigured = errors.New("no integration configured for tenant")

// Service is the integration registry.
type Service struct {
	store  *Store
	logger *zap.Logger
}

// NewService creates a new registry service.
func NewService(store *Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Register validates and persists a new integration, assigning its id.
func (s *Service) Register(ctx context.Context, in Integration) (*Integration, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in.ID = uuid.NewString()
	if err := s.store.Create(ctx, &in); err != nil {
		return nil, err
	}
	s.logger.Info("integration registered",
		zap.String("tenant_id", in.TenantID),
		zap.String("integration_id", in.ID),
		zap.String("provider", string(in.Provider)),
	)
	return &in, nil
}

// Resolve returns the integrations configured for a tenant.
// Returns ErrNoIntegrationConfigured when the tenant has none.
func (s *Service) Resolve(ctx context.Context, tenantID string) ([]Integration, error) {
	out, err := s.store.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoIntegrationConfigured, tenantID)
	}
	return out, nil
}

// List returns the integrations configured for a tenant, possibly empty.
func (s *Service) List(ctx context.Context, tenantID string) ([]Integration, error) {
	return s.store.GetByTenant(ctx, tenantID)
}

// Tenants returns every tenant with at least one integration.
func (s *Service) Tenants(ctx context.Context) ([]string, error) {
	return s.store.Tenants(ctx)
}
