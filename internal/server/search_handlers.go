package server

import (
	"frzterr/internal/middleware"
	"frzterr/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SearchUsers handles GET /api/search?q=
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	users, err := s.rt.Search.Search(c.UserContext(), middleware.Viewer(c), c.Query("q"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// GetSearchHistory handles GET /api/search/history
func (s *Server) GetSearchHistory(c *fiber.Ctx) error {
	entries, err := s.rt.Search.History(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if entries == nil {
		entries = []models.RecentSearchEntry{}
	}
	return c.JSON(entries)
}

// AddSearchHistory handles POST /api/search/history. The body is the user
// picked from the results.
func (s *Server) AddSearchHistory(c *fiber.Ctx) error {
	var u models.User
	if !parseBody(c, &u) {
		return nil
	}
	if err := s.rt.Search.Select(c.UserContext(), u); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ClearSearchHistory handles DELETE /api/search/history
func (s *Server) ClearSearchHistory(c *fiber.Ctx) error {
	if err := s.rt.Search.ClearHistory(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveSearchHistory handles DELETE /api/search/history/:userId
func (s *Server) RemoveSearchHistory(c *fiber.Ctx) error {
	id, ok := param(c, "userId")
	if !ok {
		return nil
	}
	if err := s.rt.Search.RemoveHistory(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
