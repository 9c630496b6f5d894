package server

import (
	"frzterr/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SignUp handles POST /api/auth/signup
func (s *Server) SignUp(c *fiber.Ctx) error {
	var req service.SignUpInput
	if !parseBody(c, &req) {
		return nil
	}
	res, err := s.rt.Auth.SignUp(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// SignIn handles POST /api/auth/login
func (s *Server) SignIn(c *fiber.Ctx) error {
	var req service.SignInInput
	if !parseBody(c, &req) {
		return nil
	}
	user, err := s.rt.Auth.SignIn(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// SignInWithGoogle handles POST /api/auth/google
func (s *Server) SignInWithGoogle(c *fiber.Ctx) error {
	var req struct {
		IDToken string `json:"id_token"`
	}
	if !parseBody(c, &req) {
		return nil
	}
	user, err := s.rt.Auth.SignInWithGoogle(c.UserContext(), req.IDToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// SignOut handles POST /api/auth/logout. It always succeeds locally.
func (s *Server) SignOut(c *fiber.Ctx) error {
	s.rt.Auth.SignOut(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSession handles GET /api/auth/session
func (s *Server) GetSession(c *fiber.Ctx) error {
	id := s.rt.Auth.ViewerID()
	if id == "" {
		return c.JSON(fiber.Map{"signed_in": false})
	}
	user, err := s.rt.Users.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"signed_in": true, "user": user})
}

// GetCachedProfile handles GET /api/auth/profile. It serves the first-paint
// profile without touching the backend.
func (s *Server) GetCachedProfile(c *fiber.Ctx) error {
	p, err := s.rt.Auth.CachedProfile(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// RequestPasswordReset handles POST /api/auth/password/reset-code
func (s *Server) RequestPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if !parseBody(c, &req) {
		return nil
	}
	sent, err := s.rt.Auth.RequestPasswordReset(c.UserContext(), req.Email)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"sent": sent})
}

// ResetPassword handles POST /api/auth/password/reset
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req service.ResetPasswordInput
	if !parseBody(c, &req) {
		return nil
	}
	ok, err := s.rt.Auth.ResetPassword(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"reset": ok})
}

// UpdateDisplayName handles PUT /api/auth/display-name
func (s *Server) UpdateDisplayName(c *fiber.Ctx) error {
	var req struct {
		FullName string `json:"full_name"`
	}
	if !parseBody(c, &req) {
		return nil
	}
	user, err := s.rt.Auth.UpdateDisplayName(c.UserContext(), req.FullName)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}
