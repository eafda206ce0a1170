package config

import (
	"reflect"
	"strings"

	"github.com/mendersoftware/iot-manager/core/database"
	"github.com/mendersoftware/iot-manager/core/devauth"
	"github.com/mendersoftware/iot-manager/core/logger"
	"github.com/mendersoftware/iot-manager/core/server"
	"github.com/mendersoftware/iot-manager/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sync holds the default settings for batch reconciliation runs.
type Sync struct {
	// BatchSize is the default number of devices per reconciliation batch.
	BatchSize int `mapstructure:"batch_size" default:"20"`
}

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the management HTTP server.
	Server server.Config `mapstructure:"server"`
	// Database holds configuration for the device inventory database.
	Database database.Config `mapstructure:"database"`
	// Storage holds configuration for the sync-report archive.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// DevAuth holds configuration for the device-authentication service client.
	DevAuth devauth.Config `mapstructure:"devauth"`
	// Sync holds defaults for reconciliation runs.
	Sync Sync `mapstructure:"sync"`
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// Load .env file if it exists (ignored in production deployments).
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. DEVAUTH_URL -> devauth.url)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values
// in Viper based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
