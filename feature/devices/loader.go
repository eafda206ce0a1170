package devices

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	store   *Store
	handler *Handler
}

// NewFeature creates the devices feature.
func NewFeature(db *gorm.DB, logger *zap.Logger) *Feature {
	store := NewStore(db)
	return &Feature{store: store, handler: NewHandler(store, logger)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "devices"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Store exposes the inventory for the sync engine wiring.
func (f *Feature) Store() *Store {
	return f.store
}
