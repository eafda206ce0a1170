package devices

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a device record does not exist.
var ErrNotFound = errors.New("device not found")

// Store reads and updates the local device inventory. It exposes no delete
// operation: local records outlive any remote state.
type Store struct {
	db *gorm.DB
}

// NewStore creates a device store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// List returns one page of a tenant's devices in stable device-id order.
// When integrationID is set, only devices associated with it are returned.
func (s *Store) List(
	ctx context.Context,
	tenantID, integrationID string,
	offset, limit int,
) ([]Device, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("device_id").
		Offset(offset).
		Limit(limit)
	if integrationID != "" {
		// integration ids are uuids serialized into a JSON array;
		// a substring match cannot collide across ids
		q = q.Where("integration_ids LIKE ?", "%"+integrationID+"%")
	}

	var out []Device
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return out, nil
}

// Get returns a single device record.
func (s *Store) Get(ctx context.Context, tenantID, deviceID string) (*Device, error) {
	var dev Device
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND device_id = ?", tenantID, deviceID).
		First(&dev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	return &dev, nil
}

// Create inserts a new device record.
func (s *Store) Create(ctx context.Context, dev *Device) error {
	if err := s.db.WithContext(ctx).Create(dev).Error; err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// UpsertIntegrationIDs replaces the integration bookkeeping of a device.
func (s *Store) UpsertIntegrationIDs(
	ctx context.Context,
	tenantID, deviceID string,
	integrationIDs []string,
) error {
	// struct-based update so the JSON serializer applies
	res := s.db.WithContext(ctx).
		Model(&Device{}).
		Where("tenant_id = ? AND device_id = ?", tenantID, deviceID).
		Select("integration_ids").
		Updates(Device{IntegrationIDs: integrationIDs})
	if res.Error != nil {
		return fmt.Errorf("failed to update device integrations: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
