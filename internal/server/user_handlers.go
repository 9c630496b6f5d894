package server

import (
	"io"
	"strings"

	"frzterr/internal/middleware"
	"frzterr/internal/models"
	"frzterr/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetProfile handles GET /api/profile/:id
func (s *Server) GetProfile(c *fiber.Ctx) error {
	id, ok := param(c, "id")
	if !ok {
		return nil
	}
	view, err := s.rt.Profiles.Load(c.UserContext(), middleware.Viewer(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// UpdateProfile handles PUT /api/profile
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req service.ProfileUpdateInput
	if !parseBody(c, &req) {
		return nil
	}
	user, err := s.rt.Profiles.UpdateProfile(c.UserContext(), middleware.Viewer(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// UploadAvatar handles POST /api/profile/avatar. The image is either the
// "avatar" file of a multipart form or the raw request body.
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	data := c.Body()
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("avatar")
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("avatar file is required"))
		}
		f, err := fh.Open()
		if err != nil {
			return respondError(c, err)
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			return respondError(c, err)
		}
	}

	url, err := s.rt.Profiles.UploadAvatar(c.UserContext(), middleware.Viewer(c), data)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"avatar_url": url})
}

// ToggleFollow handles POST /api/users/:id/follow
func (s *Server) ToggleFollow(c *fiber.Ctx) error {
	id, ok := param(c, "id")
	if !ok {
		return nil
	}
	viewer := middleware.Viewer(c)
	if id == viewer {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("cannot follow yourself"))
	}
	state, err := s.rt.Profiles.ToggleFollow(c.UserContext(), viewer, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(state)
}
