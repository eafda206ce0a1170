package iothub

// TwinStatus is the provisioning status of a device twin at the hub.
type TwinStatus string

const (
	// StatusEnabled means the device may connect to the hub.
	StatusEnabled TwinStatus = "enabled"
	// StatusDisabled means the device is provisioned but blocked.
	StatusDisabled TwinStatus = "disabled"
)

// TwinProperties holds the desired and reported property documents.
type TwinProperties struct {
	Desired  map[string]interface{} `json:"desired,omitempty"`
	Reported map[string]interface{} `json:"reported,omitempty"`
}

// DeviceTwin is the hub's remote representation of a device.
type DeviceTwin struct {
	DeviceID   string                 `json:"deviceId,omitempty"`
	ETag       string                 `json:"etag,omitempty"`
	Status     TwinStatus             `json:"status,omitempty"`
	Properties TwinProperties         `json:"properties,omitempty"`
	Tags       map[string]interface{} `json:"tags,omitempty"`
}

// Device is the hub's identity-registry record of a device.
type Device struct {
	DeviceID string     `json:"deviceId,omitempty"`
	ETag     string     `json:"etag,omitempty"`
	Status   TwinStatus `json:"status,omitempty"`
}
