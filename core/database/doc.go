// Package database handles database connections for the device inventory.
//
// It provides a wrapper around GORM to configure MySQL connections based on
// the application's configuration. A sqlite driver is supported so that the
// feature stores can be exercised against an in-memory database in tests.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
package database
