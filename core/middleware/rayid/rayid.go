// Package rayid assigns a unique ray id to every request so that all log
// entries emitted while serving it can be correlated.
package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// Header carries the ray id back to the caller.
	Header = "X-Ray-Id"
	// LocalsKey is the fiber locals key the id is stored under.
	LocalsKey = "ray_id"
)

// New returns the ray id middleware. An incoming X-Ray-Id header is
// honored so that ids survive proxy hops.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(Header)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals(LocalsKey, rid)
		c.Set(Header, rid)
		return c.Next()
	}
}
