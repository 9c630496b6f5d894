// Package blob implements gateway.Storage on an S3-compatible object store.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"frzterr/internal/models"
	"frzterr/internal/observability"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const backendName = "blob"

// Config holds the object store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicURL is the externally reachable base for object URLs. When empty
	// it is derived from Endpoint.
	PublicURL string
}

// objectAPI is the subset of *minio.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Storage implements gateway.Storage.
type Storage struct {
	client    objectAPI
	publicURL string
	log       *observability.GatewayLogger
}

// New connects to the object store and checks that it answers.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to minio server: %w", err)
	}
	return newStorage(client, publicBase(cfg)), nil
}

func newStorage(client objectAPI, publicURL string) *Storage {
	return &Storage{
		client:    client,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       observability.NewGatewayLogger(backendName),
	}
}

func publicBase(cfg Config) string {
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	protocol := "http"
	if cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s", protocol, cfg.Endpoint)
}

// Upload implements gateway.Storage. Without overwrite an existing object is
// a ConflictError.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, overwrite bool) error {
	done := observability.TrackGatewayCall(backendName, "upload", bucket)
	err := s.upload(ctx, bucket, strings.TrimLeft(path, "/"), data, contentType, overwrite)
	if err != nil {
		s.log.LogError(ctx, err, "upload", bucket)
		done(models.CodeOf(err))
		return err
	}
	s.log.LogCall(ctx, "upload", bucket, map[string]interface{}{"path": path, "bytes": len(data)})
	done("")
	return nil
}

func (s *Storage) upload(ctx context.Context, bucket, path string, data []byte, contentType string, overwrite bool) error {
	if !overwrite {
		_, err := s.client.StatObject(ctx, bucket, path, minio.StatObjectOptions{})
		switch {
		case err == nil:
			return models.NewConflictError(fmt.Sprintf("object %s/%s already exists", bucket, path), nil)
		case minio.ToErrorResponse(err).Code != "NoSuchKey":
			return models.NewTransportError("stat "+bucket, err)
		}
	}
	_, err := s.client.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return models.NewTransportError("upload "+bucket, err)
	}
	return nil
}

// PublicURL implements gateway.Storage.
func (s *Storage) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, bucket, strings.TrimLeft(path, "/"))
}
