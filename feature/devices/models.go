package devices

// Device is the local inventory record of a device, keyed by
// (tenant_id, device_id). Records are created by the upstream
// device-authentication acceptance workflow and are never deleted by the
// sync engine; pruning only removes devices at provider hubs.
type Device struct {
	TenantID string `gorm:"column:tenant_id;primaryKey" json:"-"`
	DeviceID string `gorm:"column:device_id;primaryKey" json:"id"`
	// IntegrationIDs is the ordered set of integrations the device is
	// associated with, one per active provider.
	IntegrationIDs []string `gorm:"column:integration_ids;serializer:json" json:"integration_ids"`
}

// TableName overrides the table name used by GORM.
func (Device) TableName() string {
	return "devices"
}

// HasIntegration reports whether the device is associated with the
// integration id.
func (d *Device) HasIntegration(integrationID string) bool {
	for _, id := range d.IntegrationIDs {
		if id == integrationID {
			return true
		}
	}
	return false
}
