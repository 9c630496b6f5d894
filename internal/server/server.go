// Package server contains the HTTP and WebSocket handlers the UI shell talks
// to. Every handler is a thin adapter over the runtime's controllers and
// services.
package server

import (
	"context"
	"time"

	"frzterr/internal/bootstrap"
	"frzterr/internal/config"
	"frzterr/internal/middleware"
	"frzterr/internal/models"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Rate limits on unauthenticated endpoints that reach the identity service.
const (
	signupLimit     = 5
	loginLimit      = 10
	resetCodeLimit  = 3
	authLimitWindow = 10 * time.Minute
)

// Server holds the runtime and serves it over HTTP.
type Server struct {
	config         *config.Config
	rt             *bootstrap.Runtime
	promMiddleware *fiberprometheus.FiberPrometheus
}

// NewServer creates a Server over rt.
func NewServer(rt *bootstrap.Runtime) *Server {
	return &Server{
		config:         rt.Config,
		rt:             rt,
		promMiddleware: middleware.InitMetrics("frzterr-edge"),
	}
}

// NewApp creates the Fiber app with the JSON codec and error handler the
// handlers expect.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "frzterr",
		BodyLimit:    25 * 1024 * 1024,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: errorHandler,
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	return models.RespondWithError(c, models.StatusFor(err), err)
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		MaxAge:       86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	var rdb redis.Cmdable
	if s.rt.Redis != nil {
		rdb = s.rt.Redis
	}

	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(rdb, "signup", signupLimit, authLimitWindow, middleware.ByViewerOrIP), s.SignUp)
	auth.Post("/login", middleware.RateLimit(rdb, "login", loginLimit, authLimitWindow, middleware.ByViewerOrIP), s.SignIn)
	auth.Post("/google", middleware.RateLimit(rdb, "login", loginLimit, authLimitWindow, middleware.ByViewerOrIP), s.SignInWithGoogle)
	auth.Post("/logout", s.SignOut)
	auth.Get("/session", s.GetSession)
	auth.Get("/profile", s.GetCachedProfile)
	auth.Post("/password/reset-code", middleware.RateLimit(rdb, "reset_code", resetCodeLimit, authLimitWindow, middleware.ByViewerOrIP), s.RequestPasswordReset)
	auth.Post("/password/reset", middleware.RateLimit(rdb, "reset", loginLimit, authLimitWindow, middleware.ByViewerOrIP), s.ResetPassword)

	protected := api.Group("", middleware.RequireViewer(s.rt.Auth.ViewerID))
	protected.Put("/auth/display-name", s.UpdateDisplayName)

	protected.Get("/feed", s.GetFeed)
	protected.Delete("/feed/notice", s.DismissFeedNotice)

	// specific /:id/:resource routes before generic /:id
	users := protected.Group("/users")
	users.Get("/:id/posts", s.GetUserPosts)
	users.Get("/:id/reposts", s.GetUserReposts)
	users.Post("/:id/follow", s.ToggleFollow)

	posts := protected.Group("/posts")
	posts.Post("/", s.CreatePost)
	posts.Post("/:id/like", s.LikePost)
	posts.Post("/:id/repost", s.RepostPost)
	posts.Post("/:id/hide", s.HidePost)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", s.CreateComment)
	posts.Delete("/:id/comments/notice", s.DismissCommentNotice)
	posts.Post("/:id/comments/:commentId/expand", s.ToggleReplies)
	posts.Post("/:id/comments/:commentId/like", s.LikeComment)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)
	posts.Patch("/:id", s.EditPost)
	posts.Delete("/:id", s.DeletePost)

	protected.Put("/profile", s.UpdateProfile)
	protected.Post("/profile/avatar", s.UploadAvatar)
	protected.Get("/profile/:id", s.GetProfile)

	search := protected.Group("/search")
	search.Get("/", s.SearchUsers)
	search.Get("/history", s.GetSearchHistory)
	search.Post("/history", s.AddSearchHistory)
	search.Delete("/history", s.ClearSearchHistory)
	search.Delete("/history/:userId", s.RemoveSearchHistory)

	carousel := protected.Group("/viewstate/carousel")
	carousel.Get("/", s.GetCarouselPosition)
	carousel.Put("/", s.SaveCarouselPosition)
	carousel.Delete("/", s.ClearCarouselPositions)
	carousel.Post("/enable", s.EnableCarouselSaving)

	ws := api.Group("/ws", middleware.RequireViewer(s.rt.Auth.ViewerID), s.upgradeOnly)
	ws.Get("/feed", s.FeedStream())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	status := fiber.StatusOK
	overall := "healthy"
	checks := fiber.Map{}
	for name, err := range s.rt.Ready(ctx) {
		if err != nil {
			checks[name] = "unhealthy"
			status = fiber.StatusServiceUnavailable
			overall = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  overall,
		"backend": s.config.Backend,
		"checks":  checks,
		"time":    time.Now(),
	})
}

// Shutdown releases the runtime.
func (s *Server) Shutdown(context.Context) error {
	return s.rt.Close()
}
