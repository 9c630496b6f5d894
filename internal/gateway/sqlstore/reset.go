package sqlstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"frzterr/internal/models"
	"frzterr/internal/observability"

	"golang.org/x/crypto/bcrypt"
)

const resetCodeTTL = 15 * time.Minute

// DeliverFunc hands a reset code to the account owner.
type DeliverFunc func(ctx context.Context, email, code string)

// logDelivery writes the code to the log. The local backend has no mailer.
func logDelivery(ctx context.Context, email, code string) {
	observability.GlobalLogger.InfoContext(ctx, "password reset code issued",
		slog.String("email", email), slog.String("code", code))
}

type resetCode struct {
	hash    []byte
	expires time.Time
}

// Reset implements gateway.PasswordReset for the local identity service.
// Codes live in memory and expire after 15 minutes.
type Reset struct {
	auth    *Auth
	deliver DeliverFunc

	mu    sync.Mutex
	codes map[string]resetCode
}

// NewReset creates the reset channel for a. A nil deliver logs the code.
func NewReset(a *Auth, deliver DeliverFunc) *Reset {
	if deliver == nil {
		deliver = logDelivery
	}
	return &Reset{auth: a, deliver: deliver, codes: make(map[string]resetCode)}
}

// SendResetCode implements gateway.PasswordReset. It reports false for an
// unknown email.
func (r *Reset) SendResetCode(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := r.auth.find(ctx, "email = ?", email); err != nil {
		if models.CodeOf(err) == models.CodeUnauthorized {
			return false, nil
		}
		return false, err
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return false, models.NewInternalError(err)
	}
	code := fmt.Sprintf("%06d", n.Int64())
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return false, models.NewInternalError(err)
	}

	r.mu.Lock()
	r.codes[email] = resetCode{hash: hash, expires: r.auth.now().Add(resetCodeTTL)}
	r.mu.Unlock()

	r.deliver(ctx, email, code)
	return true, nil
}

// VerifyResetCode implements gateway.PasswordReset. A wrong or expired code
// reports false; the code is single use.
func (r *Reset) VerifyResetCode(ctx context.Context, email, code, newPassword string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	rc, ok := r.codes[email]
	if ok && r.auth.now().After(rc.expires) {
		delete(r.codes, email)
		ok = false
	}
	r.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(rc.hash, []byte(strings.TrimSpace(code))) != nil {
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, models.NewInternalError(err)
	}
	res := r.auth.db.WithContext(ctx).Model(&identity{}).Where("email = ?", email).Update("password_hash", string(hash))
	if res.Error != nil {
		return false, mapError("reset password", res.Error)
	}

	r.mu.Lock()
	delete(r.codes, email)
	r.mu.Unlock()
	return res.RowsAffected > 0, nil
}
