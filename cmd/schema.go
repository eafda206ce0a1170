package cmd

import (
	"github.com/mendersoftware/iot-manager/feature/devices"
	"github.com/mendersoftware/iot-manager/feature/integrations"
)

// requiredSchema lists the tables and columns the commands read and write.
// The devices table is owned by the upstream provisioning workflow; it is
// verified, never migrated.
func requiredSchema() map[string][]string {
	return map[string][]string{
		integrations.Integration{}.TableName(): {
			"id", "tenant_id", "provider", "credentials",
		},
		devices.Device{}.TableName(): {
			"tenant_id", "device_id", "integration_ids",
		},
	}
}
