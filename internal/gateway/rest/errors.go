package rest

import (
	"fmt"
	"net/http"
	"strings"

	"frzterr/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const uniqueViolation = "23505"

// apiError is the error body PostgREST, GoTrue and the storage API return.
// Each service names the fields a little differently.
type apiError struct {
	Code             json.RawMessage `json:"code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          string          `json:"details"`
	StatusCode       string          `json:"statusCode"`
}

func (e apiError) code() string {
	return strings.Trim(string(e.Code), `"`)
}

func (e apiError) text() string {
	for _, s := range []string{e.Message, e.Msg, e.ErrorDescription, e.Error, e.Details} {
		if s != "" {
			return s
		}
	}
	return ""
}

// checkResponse converts a transport failure or a non-2xx response into an
// AppError. op names the operation for the error message.
func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return models.NewTransportError(op, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	var body apiError
	_ = json.Unmarshal(resp.Body(), &body)
	cause := fmt.Errorf("status %d: %s", resp.StatusCode(), body.text())

	switch {
	case resp.StatusCode() == http.StatusConflict,
		body.code() == uniqueViolation,
		body.StatusCode == "409",
		strings.Contains(strings.ToLower(body.text()), "duplicate"),
		strings.Contains(strings.ToLower(body.text()), "already registered"):
		return models.NewConflictError(op+": already exists", cause)
	case resp.StatusCode() == http.StatusUnauthorized,
		resp.StatusCode() == http.StatusForbidden:
		return &models.AppError{Code: models.CodeUnauthorized, Message: op + " not authorized", Err: cause}
	default:
		return models.NewTransportError(op, cause)
	}
}

func errorCode(err error) string {
	return models.CodeOf(err)
}
