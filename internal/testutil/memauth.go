package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/google/uuid"
)

// MemStorage is an in-memory gateway.Storage.
type MemStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	Err     error
}

// NewMemStorage creates an empty blob store.
func NewMemStorage() *MemStorage {
	return &MemStorage{objects: map[string][]byte{}}
}

// Upload implements gateway.Storage.
func (s *MemStorage) Upload(_ context.Context, bucket, path string, data []byte, _ string, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	key := bucket + "/" + path
	if _, ok := s.objects[key]; ok && !overwrite {
		return models.NewConflictError("object "+key+" already exists", nil)
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// PublicURL implements gateway.Storage.
func (s *MemStorage) PublicURL(bucket, path string) string {
	return "mem://" + bucket + "/" + path
}

// Object returns a stored object.
func (s *MemStorage) Object(bucket, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+path]
	return b, ok
}

// Keys lists the stored object keys.
func (s *MemStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

type account struct {
	password string
	user     gateway.AuthUser
}

// MemAuth is an in-memory gateway.Auth.
type MemAuth struct {
	mu       sync.Mutex
	accounts map[string]*account
	idTokens map[string]gateway.AuthUser
	session  *gateway.Session
	failures map[string][]error
	calls    map[string]int

	// PendingConfirmation makes SignUp return no session.
	PendingConfirmation bool
}

// NewMemAuth creates an identity service without accounts.
func NewMemAuth() *MemAuth {
	return &MemAuth{
		accounts: map[string]*account{},
		idTokens: map[string]gateway.AuthUser{},
		failures: map[string][]error{},
		calls:    map[string]int{},
	}
}

// AddAccount registers an email account and returns its identity.
func (a *MemAuth) AddAccount(email, password string, meta gateway.UserMetadata) gateway.AuthUser {
	a.mu.Lock()
	defer a.mu.Unlock()
	u := gateway.AuthUser{ID: uuid.NewString(), Email: email, Provider: "email", Metadata: meta}
	a.accounts[strings.ToLower(email)] = &account{password: password, user: u}
	return u
}

// AddIDToken registers an identity returned for a federated token.
func (a *MemAuth) AddIDToken(token string, u gateway.AuthUser) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idTokens[token] = u
}

// SetSession installs a session directly, as if restored from storage.
func (a *MemAuth) SetSession(s *gateway.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
}

// FailNext queues errs to be returned by the next calls of method.
func (a *MemAuth) FailNext(method string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[method] = append(a.failures[method], errs...)
}

// CallCount returns how often method was called.
func (a *MemAuth) CallCount(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[method]
}

func (a *MemAuth) enter(method string) error {
	a.calls[method]++
	if q := a.failures[method]; len(q) > 0 {
		a.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (a *MemAuth) open(u gateway.AuthUser) *gateway.Session {
	a.session = &gateway.Session{
		AccessToken:  "access-" + u.ID,
		RefreshToken: "refresh-" + u.ID,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         u,
	}
	s := *a.session
	return &s
}

// SignUp implements gateway.Auth.
func (a *MemAuth) SignUp(_ context.Context, email, password string, meta gateway.UserMetadata) (*gateway.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("SignUp"); err != nil {
		return nil, err
	}
	key := strings.ToLower(email)
	if _, ok := a.accounts[key]; ok {
		return nil, models.NewConflictError("user already registered", nil)
	}
	u := gateway.AuthUser{ID: uuid.NewString(), Email: email, Provider: "email", Metadata: meta}
	a.accounts[key] = &account{password: password, user: u}
	if a.PendingConfirmation {
		return nil, nil
	}
	return a.open(u), nil
}

// SignIn implements gateway.Auth.
func (a *MemAuth) SignIn(_ context.Context, email, password string) (*gateway.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("SignIn"); err != nil {
		return nil, err
	}
	acc, ok := a.accounts[strings.ToLower(email)]
	if !ok || acc.password != password {
		return nil, models.NewUnauthorizedError("invalid login credentials")
	}
	return a.open(acc.user), nil
}

// SignInWithIDToken implements gateway.Auth.
func (a *MemAuth) SignInWithIDToken(_ context.Context, provider, idToken string) (*gateway.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("SignInWithIDToken"); err != nil {
		return nil, err
	}
	u, ok := a.idTokens[idToken]
	if !ok {
		return nil, models.NewUnauthorizedError("invalid id token")
	}
	u.Provider = provider
	return a.open(u), nil
}

// SignOut implements gateway.Auth.
func (a *MemAuth) SignOut(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls["SignOut"]++
	a.session = nil
	return nil
}

// CurrentUser implements gateway.Auth.
func (a *MemAuth) CurrentUser(context.Context) (*gateway.AuthUser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CurrentUser"); err != nil {
		return nil, err
	}
	if a.session == nil {
		return nil, gateway.ErrNoSession
	}
	u := a.session.User
	return &u, nil
}

// CurrentSession implements gateway.Auth.
func (a *MemAuth) CurrentSession() *gateway.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// UpdateUserMetadata implements gateway.Auth.
func (a *MemAuth) UpdateUserMetadata(_ context.Context, meta gateway.UserMetadata) (*gateway.AuthUser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("UpdateUserMetadata"); err != nil {
		return nil, err
	}
	if a.session == nil {
		return nil, gateway.ErrNoSession
	}
	if meta.FullName != nil {
		a.session.User.Metadata.FullName = meta.FullName
	}
	if meta.AvatarURL != nil {
		a.session.User.Metadata.AvatarURL = meta.AvatarURL
	}
	u := a.session.User
	return &u, nil
}

// Refresh implements gateway.Auth.
func (a *MemAuth) Refresh(context.Context) (*gateway.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("Refresh"); err != nil {
		return nil, err
	}
	if a.session == nil {
		return nil, gateway.ErrNoSession
	}
	return a.open(a.session.User), nil
}

// MemReset is an in-memory gateway.PasswordReset. Codes maps an email to the
// code that VerifyResetCode accepts.
type MemReset struct {
	mu    sync.Mutex
	Codes map[string]string
	Sent  []string
	Err   error
}

// SendResetCode implements gateway.PasswordReset.
func (r *MemReset) SendResetCode(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	r.Sent = append(r.Sent, email)
	return true, nil
}

// VerifyResetCode implements gateway.PasswordReset.
func (r *MemReset) VerifyResetCode(_ context.Context, email, code, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	want, ok := r.Codes[email]
	return ok && want == code, nil
}

// MemGateway bundles the in-memory services.
type MemGateway struct {
	Data    *MemData
	Auth    *MemAuth
	Storage *MemStorage
	Reset   *MemReset
}

// NewMemGateway creates an empty in-memory gateway.
func NewMemGateway() *MemGateway {
	return &MemGateway{
		Data:    NewMemData(),
		Auth:    NewMemAuth(),
		Storage: NewMemStorage(),
		Reset:   &MemReset{Codes: map[string]string{}},
	}
}

// Client exposes the gateway through the production bundle type.
func (g *MemGateway) Client() *gateway.Client {
	return &gateway.Client{Auth: g.Auth, Data: g.Data, Storage: g.Storage, Reset: g.Reset}
}

// SignInAs installs a session for u without touching accounts.
func (g *MemGateway) SignInAs(u gateway.AuthUser) {
	g.Auth.mu.Lock()
	defer g.Auth.mu.Unlock()
	g.Auth.open(u)
}

// TinyPNG returns an in-memory PNG with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
