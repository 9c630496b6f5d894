package server

import (
	"strings"

	"frzterr/internal/models"
	"frzterr/internal/viewstate"

	"github.com/gofiber/fiber/v2"
)

type saveCarouselRequest struct {
	viewstate.PositionKey
	viewstate.Position
}

// GetCarouselPosition handles GET /api/viewstate/carousel?entity_id=&screen=
func (s *Server) GetCarouselPosition(c *fiber.Ctx) error {
	key := viewstate.PositionKey{
		EntityID: strings.TrimSpace(c.Query("entity_id")),
		Screen:   strings.TrimSpace(c.Query("screen")),
	}
	if key.EntityID == "" || key.Screen == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("entity_id and screen are required"))
	}
	pos, ok := s.rt.Carousels.Get(key)
	if !ok {
		return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("carousel position", key.EntityID))
	}
	return c.JSON(pos)
}

// SaveCarouselPosition handles PUT /api/viewstate/carousel. While a screen
// refreshes saves are dropped and the response says so.
func (s *Server) SaveCarouselPosition(c *fiber.Ctx) error {
	var req saveCarouselRequest
	if !parseBody(c, &req) {
		return nil
	}
	if req.EntityID == "" || req.Screen == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("entity_id and screen are required"))
	}
	if req.Index < 0 || req.Offset < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("index and offset must not be negative"))
	}
	saved := s.rt.Carousels.Save(req.PositionKey, req.Position)
	return c.JSON(fiber.Map{"saved": saved})
}

// ClearCarouselPositions handles DELETE /api/viewstate/carousel?screen=.
// Without a screen every position is forgotten. Saving stays paused until
// EnableCarouselSaving.
func (s *Server) ClearCarouselPositions(c *fiber.Ctx) error {
	if screen := strings.TrimSpace(c.Query("screen")); screen != "" {
		s.rt.Carousels.ClearScreen(screen)
	} else {
		s.rt.Carousels.ClearAll()
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EnableCarouselSaving handles POST /api/viewstate/carousel/enable
func (s *Server) EnableCarouselSaving(c *fiber.Ctx) error {
	s.rt.Carousels.EnableSaving()
	return c.SendStatus(fiber.StatusNoContent)
}
