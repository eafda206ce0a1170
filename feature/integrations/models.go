package integrations

import (
	"errors"
	"fmt"

	"github.com/mendersoftware/iot-manager/core/iothub"
)

// Provider identifies an external hub provider.
type Provider string

const (
	// ProviderIoTHub is the Azure-style IoT Hub provider.
	ProviderIoTHub Provider = "iot-hub"
)

// CredentialType identifies how an integration authenticates.
type CredentialType string

const (
	// CredentialTypeSAS authenticates with a shared-access-signature
	// connection string.
	CredentialTypeSAS CredentialType = "sas"
)

var (
	ErrUnknownProvider    = errors.New("unknown integration provider")
	ErrInvalidCredentials = errors.New("invalid integration credentials")
)

// Credentials holds the provider-specific connection secret.
type Credentials struct {
	Type CredentialType `json:"type"`
	// ConnectionString is the serialized provider connection string.
	// Never logged.
	ConnectionString string `json:"connection_string"`
}

// Integration is a configured connection to one hub provider for one tenant.
type Integration struct {
	ID          string      `gorm:"column:id;primaryKey" json:"id"`
	TenantID    string      `gorm:"column:tenant_id;index" json:"-"`
	Provider    Provider    `gorm:"column:provider" json:"provider"`
	Credentials Credentials `gorm:"column:credentials;serializer:json" json:"credentials"`
}

// TableName overrides the table name used by GORM.
func (Integration) TableName() string {
	return "integrations"
}

// Validate checks provider and credentials before registration.
func (in *Integration) Validate() error {
	switch in.Provider {
	case ProviderIoTHub:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, in.Provider)
	}
	if in.Credentials.Type != CredentialTypeSAS {
		return fmt.Errorf("%w: unsupported credential type %q",
			ErrInvalidCredentials, in.Credentials.Type)
	}
	if _, err := in.ConnectionString(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, err)
	}
	return nil
}

// ConnectionString parses the stored credentials.
func (in *Integration) ConnectionString() (*iothub.ConnectionString, error) {
	return iothub.ParseConnectionString(in.Credentials.ConnectionString)
}
