package integrations

import (
	"errors"

	"github.com/mendersoftware/iot-manager/core/logger"
	"github.com/mendersoftware/iot-manager/core/middleware/identity"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrations.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integration routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrations")
	group.Post("/", h.HandleRegister)
	group.Get("/", h.HandleList)
}

// HandleRegister registers a new provider integration for the caller's
// tenant and reports its location.
func (h *Handler) HandleRegister(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	id := identity.FromContext(c)
	if id == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var in Integration
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed request body",
		})
	}
	in.TenantID = id.Tenant

	created, err := h.service.Register(c.Context(), in)
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrInvalidCredentials) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		l.Error("integration registration failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	c.Set(fiber.HeaderLocation, c.Path()+"/"+created.ID)
	return c.SendStatus(fiber.StatusCreated)
}

// HandleList returns the integrations configured for the caller's tenant.
func (h *Handler) HandleList(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	id := identity.FromContext(c)
	if id == nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	out, err := h.service.List(c.Context(), id.Tenant)
	if err != nil {
		l.Error("integration listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}
	return c.JSON(out)
}
