// Package bootstrap is the composition root. It connects the configured
// backend, builds the repositories, controllers and services over it, and
// tears everything down again in reverse order.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"frzterr/internal/cache"
	"frzterr/internal/config"
	"frzterr/internal/database"
	"frzterr/internal/feed"
	"frzterr/internal/gateway"
	"frzterr/internal/gateway/blob"
	"frzterr/internal/gateway/rest"
	"frzterr/internal/gateway/sqlstore"
	"frzterr/internal/localstore"
	"frzterr/internal/middleware"
	"frzterr/internal/models"
	"frzterr/internal/observability"
	"frzterr/internal/repository"
	"frzterr/internal/service"
	"frzterr/internal/viewstate"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Runtime holds every long-lived component of one device session.
type Runtime struct {
	Config  *config.Config
	Redis   *redis.Client
	DB      *gorm.DB
	Gateway *gateway.Client
	Local   *localstore.Store

	Users    repository.UserRepository
	Posts    repository.PostRepository
	Comments repository.CommentRepository
	Follows  repository.FollowRepository

	Aggregator *feed.Aggregator
	Feeds      *service.Feeds
	Auth       *service.AuthService
	Profiles   *service.ProfileService
	Search     *service.SearchService
	Carousels  *viewstate.Carousels

	closers []func() error
}

// New connects Redis and the backend selected by cfg.Backend and builds the
// runtime over them.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	observability.EnableGatewayLogging(cfg.RepoLogging)

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	local := localstore.New(rdb, cfg.DeviceID)

	var (
		client *gateway.Client
		db     *gorm.DB
	)
	switch cfg.Backend {
	case config.BackendREST:
		client, err = rest.NewClient(ctx, rest.Config{
			URL:           cfg.SupabaseURL,
			AnonKey:       cfg.SupabaseAnonKey,
			FunctionsURL:  cfg.FunctionsURL,
			Timeout:       cfg.GatewayTimeout,
			RPS:           cfg.GatewayRPS,
			Burst:         cfg.GatewayBurst,
			RefreshMargin: cfg.SessionRefreshMargin,
		}, local)
	case config.BackendSQL:
		client, db, err = newSQLClient(ctx, cfg, local)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}

	rt := Build(cfg, client, rdb, local)
	rt.DB = db
	rt.closers = append(rt.closers, rdb.Close, client.Close)
	middleware.Logger.Info("Runtime ready", slog.String("backend", cfg.Backend))
	return rt, nil
}

func newSQLClient(ctx context.Context, cfg *config.Config, local *localstore.Store) (*gateway.Client, *gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	fail := func(err error) (*gateway.Client, *gorm.DB, error) {
		_ = database.Close(db)
		return nil, nil, err
	}
	if err := database.ApplySchema(ctx, db); err != nil {
		return fail(err)
	}

	auth, err := sqlstore.NewAuth(db, cfg.JWTSecret, local)
	if err != nil {
		return fail(err)
	}
	if err := auth.Restore(ctx); err != nil {
		return fail(err)
	}

	var storage gateway.Storage = unconfiguredStorage{}
	if cfg.S3Endpoint != "" {
		s, err := blob.New(ctx, blob.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return fail(err)
		}
		storage = s
	} else {
		middleware.Logger.Warn("S3_ENDPOINT not set; uploads are disabled")
	}

	client := &gateway.Client{
		Auth:    auth,
		Data:    sqlstore.New(db),
		Storage: storage,
		Reset:   sqlstore.NewReset(auth, nil),
	}
	client.OnClose(func() error { return database.Close(db) })
	return client, db, nil
}

// Build wires repositories, controllers and services over an existing
// gateway client. rdb backs the author cache and may be nil; local is the
// device store.
func Build(cfg *config.Config, client *gateway.Client, rdb *redis.Client, local *localstore.Store) *Runtime {
	var authors *cache.Cache
	if rdb != nil {
		authors = cache.New(rdb)
	}

	rt := &Runtime{
		Config:    cfg,
		Redis:     rdb,
		Gateway:   client,
		Local:     local,
		Users:     repository.NewUserRepository(client.Data, client.Storage, authors),
		Posts:     repository.NewPostRepository(client.Data, client.Storage),
		Comments:  repository.NewCommentRepository(client.Data),
		Follows:   repository.NewFollowRepository(client.Data),
		Carousels: viewstate.NewCarousels(),
	}
	rt.Aggregator = feed.NewAggregator(rt.Posts, rt.Comments, rt.Users)
	rt.Feeds = service.NewFeeds(rt.Aggregator, rt.Posts, rt.Comments)
	rt.Auth = service.NewAuthService(client.Auth, client.Reset, rt.Users, local, service.AuthConfig{
		SessionRetryAttempts: cfg.SessionRetryAttempts,
		SessionRetryDelay:    cfg.SessionRetryDelay,
	})
	rt.Profiles = service.NewProfileService(rt.Users, rt.Follows, rt.Feeds, local)
	rt.Search = service.NewSearchService(rt.Users, local)

	rt.Auth.OnViewerChange(func(viewerID string) {
		rt.Feeds.Reset(viewerID)
		if viewerID == "" {
			rt.Carousels.ClearAll()
			rt.Carousels.EnableSaving()
		}
	})
	return rt
}

// Start resolves the stored session. A nil user means the viewer is signed
// out.
func (r *Runtime) Start(ctx context.Context) (*models.User, error) {
	user, err := r.Auth.ResolveSession(ctx)
	if errors.Is(err, service.ErrSignedOut) {
		r.Feeds.Reset("")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Ready pings the backing stores.
func (r *Runtime) Ready(ctx context.Context) map[string]error {
	checks := map[string]error{}
	if r.Redis != nil {
		checks["redis"] = r.Redis.Ping(ctx).Err()
	}
	if r.DB != nil {
		sqlDB, err := r.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		checks["database"] = err
	}
	return checks
}

// Close stops every controller and releases the backend, last opened first.
func (r *Runtime) Close() error {
	r.Feeds.Close()
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// unconfiguredStorage rejects uploads when no object store is configured.
type unconfiguredStorage struct{}

func (unconfiguredStorage) Upload(context.Context, string, string, []byte, string, bool) error {
	return models.NewTransportError("upload", errors.New("object storage is not configured"))
}

func (unconfiguredStorage) PublicURL(string, string) string { return "" }
