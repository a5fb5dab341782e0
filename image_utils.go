package yoloprep

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ImageOptions controls how located images are written to the output directory. The zero value
// copies images byte for byte.
//
// YOLO labels are normalised, so resizing an image does not invalidate its label file.
type ImageOptions struct {
	ResizeLonger       int    // Target length of the longer side; zero keeps the aspect ratio.
	ResizeShorter      int    // Target length of the shorter side; zero keeps the aspect ratio.
	DownsamplingFilter string // One of nearest, box, linear, gaussian, lanczos.
	UpsamplingFilter   string // One of nearest, box, linear, gaussian, lanczos.
	JPEGQuality        int    // JPEG quality [1, 100] for re-encoded JPEGs.
}

// resizes reports whether images are re-encoded instead of copied.
func (o ImageOptions) resizes() bool {
	return o.ResizeLonger > 0 || o.ResizeShorter > 0
}

// filters returns the resampling filters selected by name. Empty names select box for
// downsampling and linear for upsampling.
func (o ImageOptions) filters() (down, up imaging.ResampleFilter, err error) {
	down, up = imaging.Box, imaging.Linear
	selections := []struct {
		name   string
		filter *imaging.ResampleFilter
	}{
		{o.DownsamplingFilter, &down},
		{o.UpsamplingFilter, &up},
	}
	for _, v := range selections {
		switch v.name {
		case "":
		case "nearest":
			*v.filter = imaging.NearestNeighbor
		case "box":
			*v.filter = imaging.Box
		case "linear":
			*v.filter = imaging.Linear
		case "gaussian":
			*v.filter = imaging.Gaussian
		case "lanczos":
			*v.filter = imaging.Lanczos
		default:
			return down, up, fmt.Errorf("unknown resampling filter %q", v.name)
		}
	}
	return down, up, nil
}

// Validate checks the resize parameters.
func (o ImageOptions) Validate() error {
	if o.ResizeLonger < 0 || o.ResizeShorter < 0 {
		return fmt.Errorf("resize lengths must not be negative")
	}
	if o.resizes() && (o.JPEGQuality < 1 || o.JPEGQuality > 100) {
		return fmt.Errorf("invalid JPEG quality %d, must be in [1, 100]", o.JPEGQuality)
	}
	_, _, err := o.filters()
	return err
}

// copyImage writes the image at src to dst, either as an exact copy or resized as per opts.
func copyImage(src, dst string, opts ImageOptions) error {
	if !opts.resizes() {
		return copyFile(src, dst)
	}

	down, up, err := opts.filters()
	if err != nil {
		return err
	}
	img, _, err := loadImage(src)
	if err != nil {
		return fmt.Errorf("failed to decode %q: %w", src, err)
	}
	resized := resizeImage(img, opts.ResizeLonger, opts.ResizeShorter, down, up)
	return saveImage(dst, resized, opts.JPEGQuality)
}

// resizeImage resamples the image to match the longer and shorter sides (one may be 0).
func resizeImage(img image.Image, longerSide, shorterSide int,
	downsamplingFilter, upsamplingFilter imaging.ResampleFilter) image.Image {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	filter := upsamplingFilter
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = downsamplingFilter
	}

	if isLandscape {
		return imaging.Resize(img, longerSide, shorterSide, filter)
	}
	return imaging.Resize(img, shorterSide, longerSide, filter)
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path and returns the results of image.Decode.
func loadImage(path string) (img image.Image, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	return image.Decode(f)
}

// saveImage saves the image to path, encoding it as PNG or JPG, depending on the file extension of
// path.
func saveImage(path string, img image.Image, jpegQuality int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	}
	return err
}
