// Package gateway defines the contract between the client core and the
// external services it consumes: row-oriented data access, identity and
// session, blob storage, and the password-reset side channel.
//
// The gateway never retries; callers decide what a failure means.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Table names used by the repositories.
const (
	TableUsers        = "users"
	TablePosts        = "posts"
	TableLikes        = "likes"
	TableReposts      = "reposts"
	TableComments     = "comments"
	TableCommentLikes = "comment_likes"
	TableFollows      = "follows"
)

// Bucket names used by the repositories.
const (
	BucketAvatars    = "avatars"
	BucketPostImages = "post_images"
)

// Data is the row-oriented query service. dest for Select must be a pointer
// to a slice of structs carrying json tags matching the column names.
type Data interface {
	Select(ctx context.Context, table string, q Query, dest any) error
	Insert(ctx context.Context, table string, row any) error
	Upsert(ctx context.Context, table string, row any, onConflict ...string) error
	Update(ctx context.Context, table string, f Filter, values map[string]any) error
	Delete(ctx context.Context, table string, f Filter) error
	Count(ctx context.Context, table string, f Filter) (int, error)
}

// Storage is the blob store.
type Storage interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, overwrite bool) error
	PublicURL(bucket, path string) string
}

// Auth is the identity and session service.
type Auth interface {
	SignUp(ctx context.Context, email, password string, meta UserMetadata) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignInWithIDToken(ctx context.Context, provider, idToken string) (*Session, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context) (*AuthUser, error)
	CurrentSession() *Session
	UpdateUserMetadata(ctx context.Context, meta UserMetadata) (*AuthUser, error)
	Refresh(ctx context.Context) (*Session, error)
}

// PasswordReset is the one-time-code side channel. Both calls only report
// success or failure.
type PasswordReset interface {
	SendResetCode(ctx context.Context, email string) (bool, error)
	VerifyResetCode(ctx context.Context, email, code, newPassword string) (bool, error)
}

// SessionStore persists the session across process restarts.
type SessionStore interface {
	LoadSession(ctx context.Context) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	ClearSession(ctx context.Context) error
}

// ErrNoSession is returned by Auth calls that need a signed-in user.
var ErrNoSession = errors.New("no active session")

// Session is an authenticated session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         AuthUser  `json:"user"`
}

// ExpiresWithin reports whether the session expires within d of now.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}

// AuthUser is the identity record attached to a session.
type AuthUser struct {
	ID       string       `json:"id"`
	Email    string       `json:"email"`
	Provider string       `json:"provider"`
	Metadata UserMetadata `json:"user_metadata"`
}

// Client bundles the gateway capabilities built by the composition root.
type Client struct {
	Auth    Auth
	Data    Data
	Storage Storage
	Reset   PasswordReset

	closers []func() error
}

// OnClose registers fn to run when the client is closed.
func (c *Client) OnClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases everything registered with OnClose, last first.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
