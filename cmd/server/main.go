// Command server runs the frzterr edge server the UI shell talks to.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frzterr/internal/bootstrap"
	"frzterr/internal/config"
	"frzterr/internal/middleware"
	"frzterr/internal/observability"
	"frzterr/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.SetupLogging(cfg.Env)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "frzterr",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := bootstrap.New(startCtx, cfg)
	if err != nil {
		cancel()
		log.Fatalf("Failed to start runtime: %v", err)
	}
	user, err := rt.Start(startCtx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to resolve session: %v", err)
	}
	if user != nil {
		middleware.Logger.Info("Session restored", slog.String("user_id", user.ID), slog.String("username", user.Username))
	} else {
		middleware.Logger.Info("No stored session; waiting for sign-in")
	}

	srv := server.NewServer(rt)
	app := server.NewApp()
	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("Server shutdown error", slog.String("error", err.Error()))
		}
		if err := srv.Shutdown(ctx); err != nil {
			middleware.Logger.Error("Runtime shutdown error", slog.String("error", err.Error()))
		}
		if err := shutdownTracing(ctx); err != nil {
			middleware.Logger.Error("Tracing shutdown error", slog.String("error", err.Error()))
		}
	}()

	middleware.Logger.Info("Server starting", slog.String("port", cfg.Port), slog.String("backend", cfg.Backend))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
