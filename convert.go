package yoloprep

// Conversion of one dataset split from a label manifest into YOLO images/ and labels/ directories.

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Output subdirectories of a split.
const (
	ImagesDirName = "images"
	LabelsDirName = "labels"
)

// Split names the input and output locations of one dataset partition.
type Split struct {
	Name         string // E.g. "train" or "val".
	ManifestPath string // The JSON label manifest.
	ImageDir     string // The root searched recursively for images.
	OutDir       string // Receives images/, labels/ and the transient intermediate records.
}

// BDDSplit returns the split locations for the BDD100K release layout below rawDir, writing to
// outDir/<name>.
func BDDSplit(rawDir, outDir, name string) Split {
	return Split{
		Name: name,
		ManifestPath: filepath.Join(rawDir, "bdd100k_labels_release", "bdd100k", "labels",
			"bdd100k_labels_images_"+name+".json"),
		ImageDir: filepath.Join(rawDir, "bdd100k", "images", "100k", name),
		OutDir:   filepath.Join(outDir, name),
	}
}

func (s Split) name() string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(s.OutDir)
}

// Report summarises the conversion of one split.
type Report struct {
	RunID     string
	Split     string
	OutDir    string
	Entries   int      // Manifest entries considered.
	Copied    int      // Images copied, each with an intermediate record.
	Shadowed  int      // Entries dropped because an earlier entry has the same image stem.
	DupImages int      // Image files ignored because an earlier file has the same name.
	Missing   []string // Image names not found, sorted.
	Removed   int      // Boxes removed by the category filter.
	Emitted   int      // Label files written.
	Boxes     int      // Label lines written.
	Failures  int      // Per-item errors that were logged and skipped.
	Leftovers []string // Intermediate records still present after the run.
	Duration  time.Duration
}

// Converter converts dataset splits. A Converter holds no per-run state and may convert several
// splits concurrently.
type Converter struct {
	Config  *Config
	Images  ImageOptions
	Workers int // Goroutines per stage; zero selects a default based on the CPU count.

	// TFRecordDir, when set, receives <split>.tfrecord with the emitted labels and images.
	TFRecordDir string
}

// NewConverter returns a Converter for cfg that copies images unchanged.
func NewConverter(cfg *Config) *Converter {
	return &Converter{Config: cfg}
}

// Convert runs the pipeline for split: locate and copy images, filter categories, then emit YOLO
// label files. Only failures that invalidate the whole split are returned as errors; per-item
// failures are logged and counted in the report.
func (c *Converter) Convert(split Split) (*Report, error) {
	start := time.Now()
	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Images.Validate(); err != nil {
		return nil, fmt.Errorf("invalid image options: %w", err)
	}

	report := &Report{RunID: uuid.New().String(), Split: split.name(), OutDir: split.OutDir}
	log.Printf("Converting split %q (run %s)", report.Split, report.RunID)

	// Setup.
	imagesDir := filepath.Join(split.OutDir, ImagesDirName)
	labelsDir := filepath.Join(split.OutDir, LabelsDirName)
	for _, dir := range []string{imagesDir, labelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create output directory: %w", err)
		}
	}

	entries, err := LoadManifest(split.ManifestPath)
	if err != nil {
		return nil, err
	}
	report.Entries = len(entries)
	log.Printf("Loaded %d label entries from %s", len(entries), split.ManifestPath)

	index, err := IndexImages(split.ImageDir)
	if err != nil {
		return nil, err
	}
	report.DupImages = index.Duplicates()

	// Locate and copy.
	var failures atomic.Int64
	missing := NewMissingLog()
	located, shadowed := locateEntries(entries, index, missing)
	report.Shadowed = shadowed
	report.Copied = c.copyLocated(located, split.OutDir, imagesDir, &failures)

	report.Missing = missing.Names()
	for _, name := range report.Missing {
		log.Printf("Missing: %s", filepath.Join(index.Root(), name))
	}
	log.Printf("Copied %d images, %d of %d missing", report.Copied, len(report.Missing),
		report.Entries)

	// Filter.
	files, err := intermediateFiles(split.OutDir)
	if err != nil {
		return nil, err
	}
	report.Removed = c.filter(files, &failures)
	log.Printf("Filtered out %d labels in %d files", report.Removed, len(files))

	// Normalise and emit.
	files, err = intermediateFiles(split.OutDir)
	if err != nil {
		return nil, err
	}
	emitted, boxes := c.emit(files, labelsDir, &failures)
	report.Emitted = len(emitted)
	report.Boxes = boxes

	if c.TFRecordDir != "" {
		recordPath := filepath.Join(c.TFRecordDir, report.Split+".tfrecord")
		if err := c.writeTFRecord(recordPath, imagesDir, emitted); err != nil {
			return nil, err
		}
		log.Printf("Wrote %d examples to %s", len(emitted), recordPath)
	}

	// Anything left over failed to parse or convert.
	leftovers, err := intermediateFiles(split.OutDir)
	if err != nil {
		return nil, err
	}
	for _, path := range leftovers {
		log.Printf("Intermediate record was not converted: %s", path)
	}
	report.Leftovers = leftovers
	report.Failures = int(failures.Load())
	report.Duration = time.Since(start)

	log.Printf("Processed dataset at %s: %d label files, %d labels, %d failures", split.OutDir,
		report.Emitted, report.Boxes, report.Failures)
	return report, nil
}

// locatedEntry is a manifest entry together with the path of its image.
type locatedEntry struct {
	entry LabelEntry
	src   string
}

// locateEntries looks up the image of each entry. Entries without an image are added to missing.
// Entries sharing an image stem would share the same intermediate record and label file, so only
// the first located entry per stem is kept; later ones are logged and counted as shadowed.
func locateEntries(entries []LabelEntry, index *ImageIndex, missing *MissingLog) (
	[]locatedEntry, int) {

	located := make([]locatedEntry, 0, len(entries))
	stems := make(map[string]string, len(entries))
	shadowed := 0
	for _, e := range entries {
		src, found := index.Locate(e.Name)
		if !found {
			missing.Add(e.Name)
			continue
		}
		stem := fileStem(e.Name)
		if first, seen := stems[stem]; seen {
			log.Printf("Manifest entry %q shares its stem with %q, skipping", e.Name, first)
			shadowed++
			continue
		}
		stems[stem] = e.Name
		located = append(located, locatedEntry{entry: e, src: src})
	}
	return located, shadowed
}

// copyLocated copies the image of each located entry into imagesDir and writes its intermediate
// record into outDir. Returns the number of entries copied.
func (c *Converter) copyLocated(located []locatedEntry, outDir, imagesDir string,
	failures *atomic.Int64) int {

	var copied atomic.Int64
	forEach(c.Workers, located, func(l locatedEntry) {
		dst := filepath.Join(imagesDir, l.entry.Name)
		if err := copyImage(l.src, dst, c.Images); err != nil {
			log.Printf("Error copying %q, skipping: %v", l.src, err)
			failures.Add(1)
			return
		}
		if _, err := WriteIntermediate(outDir, l.entry); err != nil {
			log.Printf("Error writing intermediate record for %q, skipping: %v", l.entry.Name, err)
			failures.Add(1)
			return
		}
		copied.Add(1)
	})
	return int(copied.Load())
}

// filter applies the category allow-list to every intermediate record in files. Returns the
// number of boxes removed.
func (c *Converter) filter(files []string, failures *atomic.Int64) int {
	allow := c.Config.AllowSet()

	var removed atomic.Int64
	forEach(c.Workers, files, func(path string) {
		n, err := filterIntermediate(path, allow)
		if err != nil {
			log.Printf("Error while filtering, skipping %q: %v", path, err)
			failures.Add(1)
			return
		}
		removed.Add(int64(n))
	})
	return int(removed.Load())
}

// emit converts every intermediate record in files to a YOLO label file in labelsDir and deletes
// the record. Records that cannot be read or converted are left in place.
//
// Returns the files written, sorted by image name, and the total number of labels.
func (c *Converter) emit(files []string, labelsDir string, failures *atomic.Int64) (
	[]YOLOAnnotatedFile, int) {

	classes := c.Config.ClassIndex()
	geometry := c.Config.Geometry()

	var mu sync.Mutex
	var emitted []YOLOAnnotatedFile
	var boxes int

	forEach(c.Workers, files, func(path string) {
		entry, err := ReadIntermediate(path)
		if err != nil {
			log.Printf("Error while reading, skipping %q: %v", path, err)
			failures.Add(1)
			return
		}
		yoloFile, err := ToYOLO(entry, classes, geometry)
		if err != nil {
			log.Printf("Error while converting, skipping %q: %v", path, err)
			failures.Add(1)
			return
		}

		// The record is consumed whether or not the label file could be written.
		_, writeErr := WriteYOLO(labelsDir, yoloFile)
		if writeErr != nil {
			log.Printf("Error writing YOLO labels for %q: %v", path, writeErr)
			failures.Add(1)
		}
		if err := os.Remove(path); err != nil {
			log.Printf("Error removing intermediate record %q: %v", path, err)
			failures.Add(1)
		}
		if writeErr != nil {
			return
		}

		mu.Lock()
		emitted = append(emitted, yoloFile)
		boxes += len(yoloFile.Labels)
		mu.Unlock()
	})

	sort.Slice(emitted, func(i, j int) bool { return emitted[i].Name < emitted[j].Name })
	return emitted, boxes
}

// ConvertAll converts each split, concurrently if parallel is true. Splits share no state, so a
// fatal error in one split does not stop the others. The reports of successful splits are
// returned in the order of splits, with nil for failed ones, along with the joined errors.
func (c *Converter) ConvertAll(splits []Split, parallel bool) ([]*Report, error) {
	reports := make([]*Report, len(splits))
	errs := make([]error, len(splits))

	run := func(i int) {
		report, err := c.Convert(splits[i])
		if err != nil {
			errs[i] = fmt.Errorf("split %q: %w", splits[i].name(), err)
			return
		}
		reports[i] = report
	}

	if parallel {
		var wg sync.WaitGroup
		wg.Add(len(splits))
		for i := range splits {
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range splits {
			run(i)
		}
	}

	return reports, errors.Join(errs...)
}
