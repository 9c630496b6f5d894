package rest

import (
	"context"
)

type sendOTPRequest struct {
	Email string `json:"email"`
}

type verifyResetRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// Functions implements gateway.PasswordReset over two edge functions. Both
// are authorized with the anon key and report success by status only.
type Functions struct {
	t   *transport
	url string
}

// NewFunctions creates the password-reset client rooted at url.
func NewFunctions(t *transport, url string) *Functions {
	return &Functions{t: t, url: url}
}

// SendResetCode implements gateway.PasswordReset.
func (f *Functions) SendResetCode(ctx context.Context, email string) (bool, error) {
	return f.post(ctx, "send-otp", sendOTPRequest{Email: email})
}

// VerifyResetCode implements gateway.PasswordReset.
func (f *Functions) VerifyResetCode(ctx context.Context, email, code, newPassword string) (bool, error) {
	return f.post(ctx, "verify-reset", verifyResetRequest{Email: email, OTP: code, NewPassword: newPassword})
}

// post returns (false, nil) for a non-2xx answer and an error only when the
// service could not be reached.
func (f *Functions) post(ctx context.Context, name string, body any) (bool, error) {
	ok := false
	err := f.t.call(ctx, "function", name, func(ctx context.Context) error {
		resp, err := f.t.request(ctx, "").
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(f.url + "/" + name)
		if err != nil {
			return checkResponse(name, resp, err)
		}
		ok = resp.IsSuccess()
		return nil
	})
	return ok, err
}
