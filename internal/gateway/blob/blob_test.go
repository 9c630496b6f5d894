package blob

import (
	"context"
	"errors"
	"io"
	"testing"

	"frzterr/internal/models"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockObjects struct {
	mock.Mock
}

func (m *mockObjects) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, _ := io.ReadAll(reader)
	args := m.Called(bucket, object, string(body), size, opts.ContentType)
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, args.Error(0)
}

func (m *mockObjects) StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(bucket, object)
	return minio.ObjectInfo{Key: object}, args.Error(0)
}

func noSuchKey() error {
	return minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
}

func TestUpload_Overwrite(t *testing.T) {
	t.Parallel()
	m := &mockObjects{}
	m.On("PutObject", "avatars", "u1/avatar.jpg", "jpeg", int64(4), "image/jpeg").Return(nil)
	s := newStorage(m, "http://cdn.local/")

	err := s.Upload(context.Background(), "avatars", "/u1/avatar.jpg", []byte("jpeg"), "image/jpeg", true)
	require.NoError(t, err)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "StatObject", mock.Anything, mock.Anything)
}

func TestUpload_NoOverwrite(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		statErr  error
		putErr   error
		wantCode string
		wantPut  bool
	}{
		{name: "new object", statErr: noSuchKey(), wantPut: true},
		{name: "existing object", statErr: nil, wantCode: models.CodeConflict},
		{name: "stat failure", statErr: errors.New("dial tcp: refused"), wantCode: models.CodeTransport},
		{name: "put failure", statErr: noSuchKey(), putErr: errors.New("reset"), wantCode: models.CodeTransport, wantPut: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &mockObjects{}
			m.On("StatObject", "post_images", "u1_1_0.jpg").Return(tt.statErr)
			if tt.wantPut {
				m.On("PutObject", "post_images", "u1_1_0.jpg", "img", int64(3), "image/jpeg").Return(tt.putErr)
			}
			s := newStorage(m, "http://cdn.local")

			err := s.Upload(context.Background(), "post_images", "u1_1_0.jpg", []byte("img"), "image/jpeg", false)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantCode, models.CodeOf(err))
			}
			m.AssertExpectations(t)
			if !tt.wantPut {
				m.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	t.Parallel()
	s := newStorage(&mockObjects{}, "http://cdn.local/")
	assert.Equal(t, "http://cdn.local/avatars/u1/avatar.jpg", s.PublicURL("avatars", "u1/avatar.jpg"))

	assert.Equal(t, "https://s3.example.com", publicBase(Config{Endpoint: "s3.example.com", UseSSL: true}))
	assert.Equal(t, "http://minio:9000", publicBase(Config{Endpoint: "minio:9000"}))
	assert.Equal(t, "https://files.example.com", publicBase(Config{Endpoint: "minio:9000", PublicURL: "https://files.example.com"}))
}
