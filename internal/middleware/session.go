// Package middleware holds the Fiber middleware of the edge server.
package middleware

import (
	"frzterr/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ViewerSource returns the signed-in user id, or "" when signed out.
type ViewerSource func() string

// RequireViewer rejects requests while nobody is signed in and stores the
// viewer id in c.Locals("viewerID").
func RequireViewer(viewer ViewerSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := viewer()
		if id == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("sign in required"))
		}
		c.Locals("viewerID", id)
		return c.Next()
	}
}

// Viewer returns the id stored by RequireViewer.
func Viewer(c *fiber.Ctx) string {
	id, _ := c.Locals("viewerID").(string)
	return id
}
