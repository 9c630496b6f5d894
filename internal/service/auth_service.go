package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"
	"frzterr/internal/observability"
	"frzterr/internal/repository"
	"frzterr/internal/validation"
)

// ErrSignedOut means there is no usable session. Callers redirect to the
// sign-in screen; it is never shown as an error.
var ErrSignedOut = errors.New("signed out")

const (
	maxUsernameAttempts = 3

	DefaultSessionRetryAttempts = 10
	DefaultSessionRetryDelay    = 500 * time.Millisecond
)

// ProfileCache is the first-paint profile cache. *localstore.Store
// implements it.
type ProfileCache interface {
	SaveProfile(ctx context.Context, p models.CachedProfile) error
	LoadProfile(ctx context.Context) (models.CachedProfile, error)
	ClearProfile(ctx context.Context) error
}

// SignUpInput is the email sign-up form. Username is optional; a blank one
// is generated from the email.
type SignUpInput struct {
	Email           string `json:"email" validate:"email_addr"`
	Password        string `json:"password" validate:"password"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=Password"`
	FullName        string `json:"full_name" validate:"display_name"`
	Username        string `json:"username" validate:"omitempty,username"`
}

// SignInInput is the email sign-in form.
type SignInInput struct {
	Email    string `json:"email" validate:"email_addr"`
	Password string `json:"password" validate:"required"`
}

// ResetPasswordInput completes a password reset with the emailed code.
type ResetPasswordInput struct {
	Email           string `json:"email" validate:"email_addr"`
	Code            string `json:"code" validate:"notblank"`
	NewPassword     string `json:"new_password" validate:"password"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=NewPassword"`
}

// SignUpResult is the outcome of SignUp. When the identity service requires
// email confirmation there is no session yet and User is nil; the users row
// is then created on first sign-in.
type SignUpResult struct {
	User                *models.User `json:"user,omitempty"`
	PendingConfirmation bool         `json:"pending_confirmation"`
}

// AuthConfig tunes session resolution at startup.
type AuthConfig struct {
	SessionRetryAttempts int
	SessionRetryDelay    time.Duration
}

// AuthService signs the viewer in and out and keeps the users row and the
// cached profile in step with the identity service.
type AuthService struct {
	auth    gateway.Auth
	reset   gateway.PasswordReset
	users   repository.UserRepository
	profile ProfileCache
	cfg     AuthConfig

	mu        sync.Mutex
	listeners []func(viewerID string)
}

func NewAuthService(auth gateway.Auth, reset gateway.PasswordReset, users repository.UserRepository, profile ProfileCache, cfg AuthConfig) *AuthService {
	if cfg.SessionRetryAttempts <= 0 {
		cfg.SessionRetryAttempts = DefaultSessionRetryAttempts
	}
	if cfg.SessionRetryDelay <= 0 {
		cfg.SessionRetryDelay = DefaultSessionRetryDelay
	}
	return &AuthService{auth: auth, reset: reset, users: users, profile: profile, cfg: cfg}
}

// OnViewerChange registers fn to run whenever the signed-in user changes.
// fn receives "" on sign-out.
func (s *AuthService) OnViewerChange(fn func(viewerID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *AuthService) notify(viewerID string) {
	s.mu.Lock()
	fns := append([]func(string){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(viewerID)
	}
}

// ViewerID returns the signed-in user id, or "".
func (s *AuthService) ViewerID() string {
	if sess := s.auth.CurrentSession(); sess != nil {
		return sess.User.ID
	}
	return ""
}

// CachedProfile returns the first-paint profile without touching the
// network.
func (s *AuthService) CachedProfile(ctx context.Context) (models.CachedProfile, error) {
	return s.profile.LoadProfile(ctx)
}

// ResolveSession decides at startup whether a usable session exists. A
// stored session whose user cannot be fetched is retried a bounded number
// of times before the viewer is treated as signed out.
func (s *AuthService) ResolveSession(ctx context.Context) (*models.User, error) {
	if s.auth.CurrentSession() == nil {
		return nil, ErrSignedOut
	}

	var (
		au  *gateway.AuthUser
		err error
	)
	for attempt := 1; attempt <= s.cfg.SessionRetryAttempts; attempt++ {
		au, err = s.auth.CurrentUser(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, gateway.ErrNoSession) || models.CodeOf(err) == models.CodeUnauthorized {
			return nil, ErrSignedOut
		}
		observability.GlobalLogger.WarnContext(ctx, "session user fetch failed",
			slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if attempt == s.cfg.SessionRetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.SessionRetryDelay):
		}
	}
	if err != nil {
		return nil, ErrSignedOut
	}

	user, err := s.ensureUser(ctx, au, "")
	if err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, user)
	s.notify(user.ID)
	return user, nil
}

// SignUp registers an email account and creates its users row.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*SignUpResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Username != "" {
		ok, err := s.users.IsUsernameAvailable(ctx, in.Username, "")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.NewConflictError("username is already taken", nil)
		}
	}

	name := in.FullName
	sess, err := s.auth.SignUp(ctx, in.Email, in.Password, gateway.UserMetadata{FullName: &name})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return &SignUpResult{PendingConfirmation: true}, nil
	}

	user, err := s.createUser(ctx, &sess.User, in.Username)
	if err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, user)
	s.notify(user.ID)
	return &SignUpResult{User: user}, nil
}

// SignIn signs in with email and password.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput) (*models.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	sess, err := s.auth.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	return s.afterSignIn(ctx, sess)
}

// SignInWithGoogle exchanges a Google ID token for a session.
func (s *AuthService) SignInWithGoogle(ctx context.Context, idToken string) (*models.User, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, models.NewValidationError("id token is required")
	}
	sess, err := s.auth.SignInWithIDToken(ctx, "google", idToken)
	if err != nil {
		return nil, err
	}
	return s.afterSignIn(ctx, sess)
}

func (s *AuthService) afterSignIn(ctx context.Context, sess *gateway.Session) (*models.User, error) {
	if sess == nil {
		return nil, models.NewUnauthorizedError("sign-in returned no session")
	}
	user, err := s.ensureUser(ctx, &sess.User, "")
	if err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, user)
	s.notify(user.ID)
	return user, nil
}

// ensureUser returns the users row of au, creating it when missing.
func (s *AuthService) ensureUser(ctx context.Context, au *gateway.AuthUser, username string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, au.ID)
	if err == nil && user.Username != "" {
		return user, nil
	}
	if err != nil && !models.IsNotFound(err) {
		return nil, err
	}
	return s.createUser(ctx, au, username)
}

// createUser writes the users row for au. A generated username that loses
// a race for the unique index is regenerated; a chosen one is not.
func (s *AuthService) createUser(ctx context.Context, au *gateway.AuthUser, chosen string) (*models.User, error) {
	provider := au.Provider
	if provider == "" {
		provider = "email"
	}
	var err error
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username := chosen
		if username == "" {
			username, err = s.users.GenerateUniqueUsername(ctx, emailPrefix(au.Email))
			if err != nil {
				return nil, err
			}
		}
		user := &models.User{
			ID:        au.ID,
			FullName:  au.Metadata.FullName,
			Email:     models.StringPtr(au.Email),
			AvatarURL: au.Metadata.AvatarURL,
			Provider:  &provider,
			Username:  username,
			CreatedAt: time.Now().UTC(),
		}
		err = s.users.CreateOrUpdate(ctx, user)
		if err == nil {
			return user, nil
		}
		if !models.IsConflict(err) || chosen != "" {
			return nil, err
		}
		observability.GlobalLogger.InfoContext(ctx, "generated username taken, retrying",
			slog.String("username", username), slog.Int("attempt", attempt+1))
	}
	return nil, err
}

func emailPrefix(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// SignOut ends the session and forgets the cached profile. Remote failures
// are logged; the local state is cleared regardless.
func (s *AuthService) SignOut(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "remote sign-out failed", slog.String("error", err.Error()))
	}
	if err := s.profile.ClearProfile(ctx); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "clearing cached profile failed", slog.String("error", err.Error()))
	}
	s.notify("")
}

// RequestPasswordReset asks the backend to email a reset code.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if err := validation.ValidateEmail(email); err != nil {
		return false, models.NewValidationError(err.Error())
	}
	return s.reset.SendResetCode(ctx, email)
}

// ResetPassword sets a new password using the emailed code.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (bool, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Code = strings.TrimSpace(in.Code)
	if err := validation.Struct(in); err != nil {
		return false, err
	}
	return s.reset.VerifyResetCode(ctx, in.Email, in.Code, in.NewPassword)
}

// UpdateDisplayName changes the viewer's name in the identity metadata and
// the users row.
func (s *AuthService) UpdateDisplayName(ctx context.Context, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateDisplayName(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	viewer := s.ViewerID()
	if viewer == "" {
		return nil, ErrSignedOut
	}
	if _, err := s.auth.UpdateUserMetadata(ctx, gateway.UserMetadata{FullName: &name}); err != nil {
		return nil, err
	}
	user, err := s.users.UpdateProfile(ctx, viewer, repository.ProfileUpdate{FullName: &name})
	if err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, user)
	return user, nil
}

// cacheProfile refreshes the first-paint cache. Failures only cost a slower
// next start, so they are logged.
func (s *AuthService) cacheProfile(ctx context.Context, u *models.User) {
	if err := s.profile.SaveProfile(ctx, cachedFrom(u)); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "caching profile failed", slog.String("error", err.Error()))
	}
}

func cachedFrom(u *models.User) models.CachedProfile {
	p := models.CachedProfile{
		Name:      u.DisplayName(),
		AvatarURL: models.Deref(u.AvatarURL),
		Username:  u.Username,
	}
	if p.AvatarURL != "" {
		p.AvatarPath = u.ID + "/avatar.jpg"
	}
	return p
}
