package server

import (
	"errors"
	"strings"

	"frzterr/internal/feed"
	"frzterr/internal/middleware"
	"frzterr/internal/models"
	"frzterr/internal/service"

	"github.com/gofiber/fiber/v2"
)

// codeSuperseded marks a request that a newer one of the same kind overtook.
const codeSuperseded = "SUPERSEDED"

// respondError maps service errors to the HTTP status the UI expects.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSignedOut):
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("sign in required"))
	case errors.Is(err, service.ErrSuperseded):
		return c.Status(fiber.StatusConflict).JSON(models.ErrorResponse{
			Error: err.Error(),
			Code:  codeSuperseded,
		})
	default:
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
}

// parseBody decodes the JSON body into dest, answering 400 on failure.
// Callers should check: if !ok { return nil }
func parseBody(c *fiber.Ctx, dest any) bool {
	if err := c.BodyParser(dest); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
		return false
	}
	return true
}

// param returns a trimmed route parameter, answering 400 when it is blank.
func param(c *fiber.Ctx, name string) (string, bool) {
	v := strings.TrimSpace(c.Params(name))
	if v == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid "+name))
		return "", false
	}
	return v, true
}

// scopeFromQuery reads ?scope=all|author|reposts&user=<id>. Post actions use
// it to find the feed the post is shown in; the default is the home feed.
func scopeFromQuery(c *fiber.Ctx) (feed.Scope, error) {
	user := strings.TrimSpace(c.Query("user"))
	switch c.Query("scope", "all") {
	case "all", "":
		return feed.AllPosts(), nil
	case "author":
		if user == "" {
			user = middleware.Viewer(c)
		}
		return feed.ByAuthor(user), nil
	case "reposts":
		if user == "" {
			user = middleware.Viewer(c)
		}
		return feed.RepostedBy(user), nil
	default:
		return feed.Scope{}, models.NewValidationError("unknown scope " + c.Query("scope"))
	}
}

// feedFor returns the controller for the scope named in the query.
func (s *Server) feedFor(c *fiber.Ctx) (*service.FeedController, error) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		return nil, err
	}
	return s.rt.Feeds.Feed(scope), nil
}

// screenOf names the screen a scope is rendered on, for carousel positions.
func screenOf(scope feed.Scope) string {
	switch scope.Kind {
	case feed.KindAuthor, feed.KindReposts:
		return "profile:" + scope.UserID
	default:
		return "home"
	}
}
