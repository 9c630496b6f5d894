package rest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/observability"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// tokenResponse is the session payload returned by the token endpoints.
type tokenResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresIn    int64             `json:"expires_in"`
	ExpiresAt    int64             `json:"expires_at"`
	User         *gateway.AuthUser `json:"user"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string               `json:"email"`
	Password string               `json:"password"`
	Data     gateway.UserMetadata `json:"data"`
}

type idTokenGrant struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

type updateUserRequest struct {
	Data gateway.UserMetadata `json:"data"`
}

// Auth implements gateway.Auth over a GoTrue-style identity API. The session
// lives in memory and is mirrored to the SessionStore on every change.
type Auth struct {
	t      *transport
	store  gateway.SessionStore
	margin time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	session *gateway.Session
}

// NewAuth creates an identity client. store may be nil, in which case the
// session does not survive restarts.
func NewAuth(t *transport, store gateway.SessionStore, refreshMargin time.Duration) *Auth {
	return &Auth{
		t:      t,
		store:  store,
		margin: refreshMargin,
		now:    time.Now,
	}
}

// Restore loads a persisted session, if any.
func (a *Auth) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	s, err := a.store.LoadSession(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return nil
}

// AccessToken returns the current bearer token or "".
func (a *Auth) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// CurrentSession implements gateway.Auth.
func (a *Auth) CurrentSession() *gateway.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

func (a *Auth) setSession(ctx context.Context, s *gateway.Session) error {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	if s == nil {
		return a.store.ClearSession(ctx)
	}
	return a.store.SaveSession(ctx, s)
}

// SignUp implements gateway.Auth. A nil session with a nil error means the
// account awaits email confirmation.
func (a *Auth) SignUp(ctx context.Context, email, password string, meta gateway.UserMetadata) (*gateway.Session, error) {
	var out tokenResponse
	err := a.t.call(ctx, "signup", "auth", func(ctx context.Context) error {
		resp, err := a.t.request(ctx, "").
			SetHeader("Content-Type", "application/json").
			SetBody(signUpRequest{Email: email, Password: password, Data: meta}).
			Post("/auth/v1/signup")
		if err := checkResponse("sign up", resp, err); err != nil {
			return err
		}
		return decode(resp.Body(), &out)
	})
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, nil
	}
	return a.adopt(ctx, out)
}

// SignIn implements gateway.Auth.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	return a.grant(ctx, "password", passwordGrant{Email: email, Password: password})
}

// SignInWithIDToken implements gateway.Auth.
func (a *Auth) SignInWithIDToken(ctx context.Context, provider, idToken string) (*gateway.Session, error) {
	return a.grant(ctx, "id_token", idTokenGrant{Provider: provider, IDToken: idToken})
}

// Refresh implements gateway.Auth.
func (a *Auth) Refresh(ctx context.Context) (*gateway.Session, error) {
	cur := a.CurrentSession()
	if cur == nil || cur.RefreshToken == "" {
		return nil, gateway.ErrNoSession
	}
	return a.grant(ctx, "refresh_token", refreshGrant{RefreshToken: cur.RefreshToken})
}

func (a *Auth) grant(ctx context.Context, grantType string, body any) (*gateway.Session, error) {
	var out tokenResponse
	err := a.t.call(ctx, "token:"+grantType, "auth", func(ctx context.Context) error {
		resp, err := a.t.request(ctx, "").
			SetQueryParam("grant_type", grantType).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post("/auth/v1/token")
		if err := checkResponse("sign in", resp, err); err != nil {
			return err
		}
		return decode(resp.Body(), &out)
	})
	if err != nil {
		return nil, err
	}
	return a.adopt(ctx, out)
}

// adopt turns a token response into the current session.
func (a *Auth) adopt(ctx context.Context, out tokenResponse) (*gateway.Session, error) {
	s := &gateway.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    a.expiry(out),
	}
	if out.User != nil {
		s.User = *out.User
	} else if cur := a.CurrentSession(); cur != nil {
		s.User = cur.User
	}
	if err := a.setSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// expiry prefers the token's own exp claim over the advisory fields.
func (a *Auth) expiry(out tokenResponse) time.Time {
	if exp, ok := tokenExpiry(out.AccessToken); ok {
		return exp
	}
	if out.ExpiresAt > 0 {
		return time.Unix(out.ExpiresAt, 0)
	}
	if out.ExpiresIn > 0 {
		return a.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

// tokenExpiry reads exp from a JWT without verifying it; the server verifies.
func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// SignOut implements gateway.Auth. The local session is always cleared; a
// failed remote logout is only logged.
func (a *Auth) SignOut(ctx context.Context) error {
	if token := a.AccessToken(); token != "" {
		err := a.t.call(ctx, "logout", "auth", func(ctx context.Context) error {
			resp, err := a.t.request(ctx, token).Post("/auth/v1/logout")
			return checkResponse("sign out", resp, err)
		})
		if err != nil {
			observability.GlobalLogger.WarnContext(ctx, "remote sign-out failed", slog.String("error", err.Error()))
		}
	}
	return a.setSession(ctx, nil)
}

// CurrentUser implements gateway.Auth.
func (a *Auth) CurrentUser(ctx context.Context) (*gateway.AuthUser, error) {
	token := a.AccessToken()
	if token == "" {
		return nil, gateway.ErrNoSession
	}
	var u gateway.AuthUser
	err := a.t.call(ctx, "user", "auth", func(ctx context.Context) error {
		resp, err := a.t.request(ctx, token).Get("/auth/v1/user")
		if err := checkResponse("get user", resp, err); err != nil {
			return err
		}
		return decode(resp.Body(), &u)
	})
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	if a.session != nil {
		a.session.User = u
	}
	a.mu.Unlock()
	return &u, nil
}

// UpdateUserMetadata implements gateway.Auth.
func (a *Auth) UpdateUserMetadata(ctx context.Context, meta gateway.UserMetadata) (*gateway.AuthUser, error) {
	token := a.AccessToken()
	if token == "" {
		return nil, gateway.ErrNoSession
	}
	var u gateway.AuthUser
	err := a.t.call(ctx, "update_user", "auth", func(ctx context.Context) error {
		resp, err := a.t.request(ctx, token).
			SetHeader("Content-Type", "application/json").
			SetBody(updateUserRequest{Data: meta}).
			Put("/auth/v1/user")
		if err := checkResponse("update user", resp, err); err != nil {
			return err
		}
		return decode(resp.Body(), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AutoRefresh refreshes the session shortly before it expires until ctx is
// cancelled.
func (a *Auth) AutoRefresh(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshIfDue(ctx)
		}
	}
}

func (a *Auth) refreshIfDue(ctx context.Context) {
	s := a.CurrentSession()
	if s == nil || !s.ExpiresWithin(a.now(), a.margin) {
		return
	}
	if _, err := a.Refresh(ctx); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "session refresh failed", slog.String("error", err.Error()))
	}
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return models.NewTransportError("decode auth response", err)
	}
	return nil
}
