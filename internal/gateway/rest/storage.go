package rest

import (
	"context"
	"strconv"
	"strings"
)

// Storage implements gateway.Storage over the hosted object API.
type Storage struct {
	t      *transport
	tokens tokenSource
}

// NewStorage creates a storage client.
func NewStorage(t *transport, tokens tokenSource) *Storage {
	return &Storage{t: t, tokens: tokens}
}

func objectPath(bucket, path string) string {
	return bucket + "/" + strings.TrimLeft(path, "/")
}

// Upload implements gateway.Storage.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, overwrite bool) error {
	token := ""
	if s.tokens != nil {
		token = s.tokens.AccessToken()
	}
	return s.t.call(ctx, "upload", bucket, func(ctx context.Context) error {
		resp, err := s.t.request(ctx, token).
			SetHeader("Content-Type", contentType).
			SetHeader("x-upsert", strconv.FormatBool(overwrite)).
			SetBody(data).
			Post("/storage/v1/object/" + objectPath(bucket, path))
		return checkResponse("upload "+bucket, resp, err)
	})
}

// PublicURL implements gateway.Storage.
func (s *Storage) PublicURL(bucket, path string) string {
	return s.t.baseURL + "/storage/v1/object/public/" + objectPath(bucket, path)
}
