package yoloprep

// YOLO specific functionality.

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// YOLOLabel is a single annotation within a YOLO label file. Coordinates are normalised by the
// image width and height.
type YOLOLabel struct {
	Class   int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// YOLOAnnotatedFile defines the YOLO annotation structure for a single image.
type YOLOAnnotatedFile struct {
	Labels []YOLOLabel
	Name   string // The image file name.
}

// Geometry is the pixel size used as normalisation denominator.
type Geometry struct {
	Width  float64
	Height float64
}

// Geometry returns the configured image geometry.
func (c *Config) Geometry() Geometry {
	return Geometry{Width: c.ImageWidth, Height: c.ImageHeight}
}

// NormalizeBox converts b into a YOLO label using the class ids in classes. It fails if the
// category has no class id or the box has no coordinates.
func NormalizeBox(b Box, classes map[string]int, g Geometry) (YOLOLabel, error) {
	class, ok := classes[b.Category]
	if !ok {
		return YOLOLabel{}, fmt.Errorf("unknown category %q", b.Category)
	}
	if b.Box2D == nil {
		return YOLOLabel{}, fmt.Errorf("category %q has no box2d", b.Category)
	}

	c := b.Box2D
	return YOLOLabel{
		Class:   class,
		CenterX: (c.X2 + c.X1) / (2 * g.Width),
		CenterY: (c.Y2 + c.Y1) / (2 * g.Height),
		Width:   (c.X2 - c.X1) / g.Width,
		Height:  (c.Y2 - c.Y1) / g.Height,
	}, nil
}

// ToYOLO converts all boxes of entry, in order. The first box that cannot be converted fails the
// whole entry.
func ToYOLO(entry LabelEntry, classes map[string]int, g Geometry) (YOLOAnnotatedFile, error) {
	file := YOLOAnnotatedFile{
		Labels: make([]YOLOLabel, len(entry.Labels)),
		Name:   entry.Name,
	}
	for i, b := range entry.Labels {
		l, err := NormalizeBox(b, classes, g)
		if err != nil {
			return YOLOAnnotatedFile{}, fmt.Errorf("label %d of %q: %w", i, entry.Name, err)
		}
		file.Labels[i] = l
	}
	return file, nil
}

// FormatYOLOLine formats l as "<class> <cx> <cy> <w> <h>", using the shortest decimal
// representation that round-trips each value.
func FormatYOLOLine(l YOLOLabel) string {
	f := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.Itoa(l.Class) + " " + f(l.CenterX) + " " + f(l.CenterY) + " " + f(l.Width) +
		" " + f(l.Height)
}

// yoloLabelPath is the path of the label file for the image name in labelDir.
func yoloLabelPath(labelDir, name string) string {
	return filepath.Join(labelDir, fileStem(name)+".txt")
}

// WriteYOLO writes the labels of file to labelDir, one newline terminated line per label, and
// returns the path written. A file without labels produces an empty label file.
func WriteYOLO(labelDir string, file YOLOAnnotatedFile) (path string, err error) {
	path = yoloLabelPath(labelDir, file.Name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer closeWithErrCheck(f, &err)

	w := bufio.NewWriter(f)
	for _, l := range file.Labels {
		if _, err = w.WriteString(FormatYOLOLine(l) + "\n"); err != nil {
			return "", err
		}
	}
	if err = w.Flush(); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", path, err)
	}

	return path, nil
}
