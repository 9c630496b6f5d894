package repository

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"frzterr/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJPEG_Downscales(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"wide", 1000, 50, 500, 500, 25},
		{"tall", 40, 800, 200, 10, 200},
		{"small stays", 30, 20, 512, 30, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := toJPEG(testutil.TinyPNG(t, tt.w, tt.h), tt.max)
			require.NoError(t, err)
			img, err := jpeg.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, image.Pt(tt.wantW, tt.wantH), img.Bounds().Size())
		})
	}
}
