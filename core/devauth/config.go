package devauth

// Config holds configuration for the device-authentication service client.
type Config struct {
	// URL is the base URL of the device-authentication service.
	URL string `mapstructure:"url" default:"http://mender-device-auth:8080"`
	// TimeoutSeconds is the per-request timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}
