// Package rest implements the gateway against a hosted backend-as-a-service:
// a PostgREST data API, a GoTrue-style identity service, an object store and
// edge functions for the password-reset side channel.
package rest

import (
	"context"
	"errors"
	"strings"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/observability"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const backendName = "rest"

// Config holds the connection settings for the hosted backend.
type Config struct {
	URL           string
	AnonKey       string
	FunctionsURL  string
	Timeout       time.Duration
	RPS           float64
	Burst         int
	RefreshMargin time.Duration
	RefreshEvery  time.Duration
}

func (c Config) withDefaults() Config {
	c.URL = strings.TrimRight(c.URL, "/")
	if c.FunctionsURL == "" {
		c.FunctionsURL = c.URL + "/functions/v1"
	}
	c.FunctionsURL = strings.TrimRight(c.FunctionsURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = time.Minute
	}
	if c.RefreshEvery <= 0 {
		c.RefreshEvery = 15 * time.Second
	}
	return c
}

// transport is the shared HTTP plumbing of every rest capability.
type transport struct {
	http    *resty.Client
	baseURL string
	anonKey string
	log     *observability.GatewayLogger
}

func newTransport(cfg Config) *transport {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("apikey", cfg.AnonKey).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if cfg.RPS > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return limiter.Wait(r.Context())
		})
	}

	return &transport{
		http:    client,
		baseURL: cfg.URL,
		anonKey: cfg.AnonKey,
		log:     observability.NewGatewayLogger(backendName),
	}
}

// request returns a request authorized with token, or the anon key when the
// token is empty.
func (t *transport) request(ctx context.Context, token string) *resty.Request {
	if token == "" {
		token = t.anonKey
	}
	return t.http.R().
		SetContext(ctx).
		SetAuthToken(token)
}

// call runs fn inside a span with latency metrics and error logging.
func (t *transport) call(ctx context.Context, op, table string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartGatewaySpan(ctx, backendName, op, table)
	defer span.End()
	done := observability.TrackGatewayCall(backendName, op, table)

	err := fn(ctx)
	if err != nil {
		span.SetError(err)
		t.log.LogError(ctx, err, op, table)
		done(errorCode(err))
		return err
	}
	t.log.LogCall(ctx, op, table, nil)
	done("")
	return nil
}

// NewClient builds the full gateway client. The session is restored from
// store and refreshed in the background until the client is closed.
func NewClient(ctx context.Context, cfg Config, store gateway.SessionStore) (*gateway.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rest gateway: URL is required")
	}
	cfg = cfg.withDefaults()
	t := newTransport(cfg)

	auth := NewAuth(t, store, cfg.RefreshMargin)
	if err := auth.Restore(ctx); err != nil {
		return nil, err
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	go auth.AutoRefresh(refreshCtx, cfg.RefreshEvery)

	client := &gateway.Client{
		Auth:    auth,
		Data:    NewData(t, auth),
		Storage: NewStorage(t, auth),
		Reset:   NewFunctions(t, cfg.FunctionsURL),
	}
	client.OnClose(func() error {
		cancel()
		return nil
	})
	return client, nil
}
