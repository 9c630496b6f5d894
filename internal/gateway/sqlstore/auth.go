package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	tokenIssuer    = "frzterr-dev"
	accessTTL      = time.Hour
	refreshTTL     = 30 * 24 * time.Hour
	refreshTokenTy = "refresh"
)

// identity is an account known to the development identity service.
type identity struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Provider     string `gorm:"not null;default:email"`
	FullName     *string
	AvatarURL    *string
	CreatedAt    time.Time
}

func (identity) TableName() string { return "auth_identities" }

func (i *identity) authUser() gateway.AuthUser {
	return gateway.AuthUser{
		ID:       i.ID,
		Email:    i.Email,
		Provider: i.Provider,
		Metadata: gateway.UserMetadata{FullName: i.FullName, AvatarURL: i.AvatarURL},
	}
}

// Auth implements gateway.Auth against the local database. Passwords are
// bcrypt hashed and sessions are HS256 tokens signed with secret.
type Auth struct {
	db     *gorm.DB
	secret []byte
	store  gateway.SessionStore
	now    func() time.Time

	mu      sync.RWMutex
	session *gateway.Session
}

// NewAuth creates the development identity service. store may be nil.
func NewAuth(db *gorm.DB, secret string, store gateway.SessionStore) (*Auth, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret not configured")
	}
	return &Auth{db: db, secret: []byte(secret), store: store, now: time.Now}, nil
}

// Restore loads a persisted session, dropping it when its token no longer
// verifies.
func (a *Auth) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	s, err := a.store.LoadSession(ctx)
	if err != nil || s == nil {
		return err
	}
	if _, err := a.verify(s.AccessToken, ""); err != nil {
		return a.store.ClearSession(ctx)
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return nil
}

// SignUp implements gateway.Auth. Accounts are confirmed immediately.
func (a *Auth) SignUp(ctx context.Context, email, password string, meta gateway.UserMetadata) (*gateway.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.NewValidationError("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	id := &identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     "email",
		FullName:     meta.FullName,
		AvatarURL:    meta.AvatarURL,
		CreatedAt:    a.now(),
	}
	if err := a.db.WithContext(ctx).Create(id).Error; err != nil {
		return nil, mapError("sign up", err)
	}
	return a.issue(ctx, id)
}

// SignIn implements gateway.Auth.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	id, err := a.find(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(password)); cmpErr != nil {
		return nil, models.NewUnauthorizedError("invalid credentials")
	}
	return a.issue(ctx, id)
}

// SignInWithIDToken implements gateway.Auth. Federated sign-in needs the
// hosted identity service.
func (a *Auth) SignInWithIDToken(context.Context, string, string) (*gateway.Session, error) {
	return nil, models.NewValidationError("federated sign-in is not available on the local backend")
}

// SignOut implements gateway.Auth.
func (a *Auth) SignOut(ctx context.Context) error {
	return a.setSession(ctx, nil)
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

// CurrentUser implements gateway.Auth.
func (a *Auth) CurrentUser(ctx context.Context) (*gateway.AuthUser, error) {
	s := a.CurrentSession()
	if s == nil {
		return nil, gateway.ErrNoSession
	}
	sub, err := a.verify(s.AccessToken, "")
	if err != nil {
		return nil, err
	}
	id, err := a.find(ctx, "id = ?", sub)
	if err != nil {
		return nil, err
	}
	u := id.authUser()
	return &u, nil
}

// UpdateUserMetadata implements gateway.Auth.
func (a *Auth) UpdateUserMetadata(ctx context.Context, meta gateway.UserMetadata) (*gateway.AuthUser, error) {
	s := a.CurrentSession()
	if s == nil {
		return nil, gateway.ErrNoSession
	}
	values := map[string]any{}
	if meta.FullName != nil {
		values["full_name"] = *meta.FullName
	}
	if meta.AvatarURL != nil {
		values["avatar_url"] = *meta.AvatarURL
	}
	if len(values) > 0 {
		err := a.db.WithContext(ctx).Model(&identity{}).Where("id = ?", s.User.ID).Updates(values).Error
		if err != nil {
			return nil, mapError("update user", err)
		}
	}
	id, err := a.find(ctx, "id = ?", s.User.ID)
	if err != nil {
		return nil, err
	}
	u := id.authUser()
	a.mu.Lock()
	if a.session != nil {
		a.session.User = u
	}
	a.mu.Unlock()
	return &u, nil
}

// Refresh implements gateway.Auth.
func (a *Auth) Refresh(ctx context.Context) (*gateway.Session, error) {
	s := a.CurrentSession()
	if s == nil || s.RefreshToken == "" {
		return nil, gateway.ErrNoSession
	}
	sub, err := a.verify(s.RefreshToken, refreshTokenTy)
	if err != nil {
		return nil, err
	}
	id, err := a.find(ctx, "id = ?", sub)
	if err != nil {
		return nil, err
	}
	return a.issue(ctx, id)
}

func (a *Auth) find(ctx context.Context, query string, arg any) (*identity, error) {
	var id identity
	err := a.db.WithContext(ctx).Where(query, arg).First(&id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewUnauthorizedError("invalid credentials")
	}
	if err != nil {
		return nil, mapError("find identity", err)
	}
	return &id, nil
}

func (a *Auth) issue(ctx context.Context, id *identity) (*gateway.Session, error) {
	now := a.now()
	access, err := a.sign(id, "", now, accessTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	refresh, err := a.sign(id, refreshTokenTy, now, refreshTTL)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s := &gateway.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(accessTTL).Truncate(time.Second),
		User:         id.authUser(),
	}
	if err := a.setSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *Auth) sign(id *identity, typ string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   id.ID,
		"email": id.Email,
		"iss":   tokenIssuer,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
		"jti":   fmt.Sprintf("%d-%s", now.Unix(), uuid.New().String()[:8]),
	}
	if typ != "" {
		claims["typ"] = typ
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// verify checks signature, expiry and token type and returns the subject.
func (a *Auth) verify(raw, typ string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", models.NewUnauthorizedError("invalid session token")
	}
	got, _ := claims["typ"].(string)
	if got != typ {
		return "", models.NewUnauthorizedError("invalid session token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", models.NewUnauthorizedError("invalid session token")
	}
	return sub, nil
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
