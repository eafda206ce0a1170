package devices

import (
	"errors"

	"github.com/mendersoftware/iot-manager/core/logger"
	"github.com/mendersoftware/iot-manager/core/middleware/identity"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for device records.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers the device routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/devices")
	group.Get("/:id", h.HandleGetDevice)
}

// HandleGetDevice returns the local inventory record for a single device.
func (h *Handler) HandleGetDevice(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	id := identity.FromContext(c)
	if id == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	dev, err := h.store.Get(c.Context(), id.Tenant, c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "device not found",
			})
		}
		l.Error("device lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}
	return c.JSON(dev)
}
