package yoloprep

// TFRecord object detection export of the emitted labels.

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts the YOLO labels of a single image in imagesDir to the TF object detection
// features. Class ids are shifted by one, as id 0 is reserved for the background in TF.
func toTFFeatures(imagesDir string, file YOLOAnnotatedFile, classes []string) (TFFeatureMap,
	error) {

	path := filepath.Join(imagesDir, file.Name)
	img, format, err := decodeImageConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %w", err)
	}
	imgData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %w", err)
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = file.Name
	f["image/source_id"] = file.Name
	f["image/encoded"] = imgData
	f["image/format"] = format

	numLabels := len(file.Labels)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classTexts := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, l := range file.Labels {
		xmins[i] = float32(l.CenterX - l.Width/2)
		ymins[i] = float32(l.CenterY - l.Height/2)
		xmaxs[i] = float32(l.CenterX + l.Width/2)
		ymaxs[i] = float32(l.CenterY + l.Height/2)
		if l.Class < 0 || l.Class >= len(classes) {
			return nil, fmt.Errorf("class id %d out of range", l.Class)
		}
		classTexts[i] = classes[l.Class]
		classIDs[i] = int64(l.Class + 1)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classTexts
	f["image/object/class/label"] = classIDs

	return f, nil
}

// writeTFRecord writes one tensorflow.Example per file to recordPath, reading the images from
// imagesDir. Files whose image cannot be read are logged and skipped.
func (c *Converter) writeTFRecord(recordPath, imagesDir string, files []YOLOAnnotatedFile) (
	err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	out, err := os.Create(recordPath)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", recordPath, err)
	}
	defer closeWithErrCheck(out, &err)
	w := bufio.NewWriter(out)

	for _, file := range files {
		features, err := toTFFeatures(imagesDir, file, c.Config.Classes)
		if err != nil {
			log.Printf("Failed to convert %q, skipping: %v", file.Name, err)
			continue
		}
		if err := writeTFRecordExample(w, example.New(features)); err != nil {
			return fmt.Errorf("failed to write example for %q: %w", file.Name, err)
		}
	}

	return w.Flush()
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// WriteLabelMap writes the class vocabulary as a TF object detection label map in prototxt
// format, with ids starting at 1.
func WriteLabelMap(path string, classes []string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for i, name := range classes {
		if _, err := fmt.Fprintf(w, "item {\n  id: %d\n  name: %q\n}\n", i+1, name); err != nil {
			return fmt.Errorf("failed to write the label map %q: %w", path, err)
		}
	}
	return w.Flush()
}
