package yoloprep

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodePNG returns a PNG encoded test image of the given size.
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCopyImage_ExactCopy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "dst.jpg")
	content := []byte("not even an image, copied byte for byte")
	writeFile(t, src, content)

	require.NoError(t, copyImage(src, dst, ImageOptions{}))
	copied, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, copied)
}

func TestCopyImage_Resize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		width, height int
		opts          ImageOptions
		wantW, wantH  int
	}{
		{"landscape longer", 128, 72, ImageOptions{ResizeLonger: 64}, 64, 36},
		{"landscape shorter", 128, 72, ImageOptions{ResizeShorter: 36}, 64, 36},
		{"portrait longer", 72, 128, ImageOptions{ResizeLonger: 64}, 36, 64},
		{"upsample", 32, 18, ImageOptions{ResizeLonger: 64, UpsamplingFilter: "lanczos"}, 64, 36},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			src := filepath.Join(dir, "src.png")
			dst := filepath.Join(dir, "dst.png")
			writeFile(t, src, encodePNG(t, tt.width, tt.height))

			tt.opts.JPEGQuality = 90
			require.NoError(t, copyImage(src, dst, tt.opts))

			cfg, format, err := decodeImageConfig(dst)
			require.NoError(t, err)
			assert.Equal(t, "png", format)
			assert.Equal(t, tt.wantW, cfg.Width)
			assert.Equal(t, tt.wantH, cfg.Height)
		})
	}
}

func TestCopyImage_ResizeUndecodable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeFile(t, src, []byte("garbage"))

	err := copyImage(src, filepath.Join(dir, "dst.jpg"), ImageOptions{ResizeLonger: 10, JPEGQuality: 90})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")
}

func TestImageOptions_Validate(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ImageOptions{}.Validate())
	assert.NoError(t, ImageOptions{ResizeLonger: 640, JPEGQuality: 90}.Validate())
	assert.Error(t, ImageOptions{ResizeLonger: -1}.Validate())
	assert.Error(t, ImageOptions{ResizeLonger: 640, JPEGQuality: 0}.Validate())
	assert.Error(t, ImageOptions{ResizeLonger: 640, JPEGQuality: 101}.Validate())
	assert.Error(t, ImageOptions{DownsamplingFilter: "bicubic"}.Validate())
}
