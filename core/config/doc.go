// Package config provides configuration management for the IoT Manager.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file, with defaults declared as struct tags.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings,
// divided into subsections:
//   - Server: management HTTP server settings (port, JWT secret)
//   - Database: device inventory connection details
//   - Storage: S3/MinIO credentials for the sync-report archive
//   - Log: logging level and format
//   - DevAuth: device-authentication service endpoint
//   - Sync: reconciliation run defaults (batch size)
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.DevAuth.URL)
package config
