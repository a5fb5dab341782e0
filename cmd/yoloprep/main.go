// Converts the BDD100K detection labels (one JSON manifest per split) into YOLO images/ and
// labels/ directories.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sensorable/yoloprep"
)

// Environment variables providing flag defaults. They may be set in a .env file.
const (
	envRawDir = "YOLOPREP_RAW_DIR"
	envOutDir = "YOLOPREP_OUT_DIR"
)

var (
	rawDirPath   string   // The root of the raw dataset release.
	outDirPath   string   // The output root, one subdirectory per split.
	splitNames   []string // The splits to convert below rawDirPath.
	labelsPath   string   // A single manifest to convert instead of named splits.
	imageDirPath string   // The image root for labelsPath.
	configPath   string   // An optional JSON dataset config.

	numWorkers     int  // Goroutines per pipeline stage.
	parallelSplits bool // Convert splits concurrently.
	writeTFRecord  bool // Also write <out>/<split>.tfrecord and <out>/label_map.pbtxt.

	imageOpts yoloprep.ImageOptions
	config    *yoloprep.Config
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  dataset splits:\t-raw <dir> -out <dir> [-splits val,train]")
		_, _ = fmt.Fprintln(os.Stderr, "  single manifest:\t-labels <file> -images <dir> -out <dir>")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// A missing .env file is not an error.
	if err := godotenv.Load(); err == nil {
		log.Print("Loaded environment from .env")
	}

	// Path arguments.
	flag.StringVar(&rawDirPath, "raw", os.Getenv(envRawDir),
		"The `path` to the raw dataset release (env "+envRawDir+")")
	flag.StringVar(&outDirPath, "out", os.Getenv(envOutDir),
		"The output `path`; each split is written to a subdirectory (env "+envOutDir+")")
	splits := flag.String("splits", "val,train",
		"The comma-separated dataset splits (`name[,...]`) to convert below -raw")
	flag.StringVar(&labelsPath, "labels", labelsPath,
		"The `path` to a single label manifest to convert into -out (overrides -raw)")
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The image root `path` searched for the images of -labels")
	flag.StringVar(&configPath, "config", configPath,
		"The `path` to a JSON dataset config (classes, allow, image_width, image_height)")

	// Execution arguments.
	flag.IntVar(&numWorkers, "workers", 0,
		"The number of goroutines per pipeline stage (zero selects twice the CPU count)")
	flag.BoolVar(&parallelSplits, "parallel-splits", parallelSplits,
		"Convert the dataset splits concurrently")
	flag.BoolVar(&writeTFRecord, "tfrecord", writeTFRecord,
		"Also write a TFRecord file per split and a label map next to the split outputs")

	// Image processing arguments.
	flag.IntVar(&imageOpts.ResizeLonger, "resize-longer", 0,
		"The target `length` for the longer side of copied images (zero keeps aspect ratio)")
	flag.IntVar(&imageOpts.ResizeShorter, "resize-shorter", 0,
		"The target `length` for the shorter side of copied images (zero keeps aspect ratio)")
	flag.StringVar(&imageOpts.DownsamplingFilter, "downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageOpts.UpsamplingFilter, "upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.IntVar(&imageOpts.JPEGQuality, "jpeg-quality", 90,
		"The quality to use when re-encoding resized JPEGs [1, 100]")

	// Parse and validate flags.
	flag.Parse()

	if outDirPath == "" {
		printUsageAndExit("Missing output path argument")
	}
	if labelsPath != "" {
		if imageDirPath == "" {
			printUsageAndExit("Missing image input path argument for -labels")
		}
	} else if rawDirPath == "" {
		printUsageAndExit("Missing raw dataset path argument")
	}

	for _, s := range strings.Split(*splits, ",") {
		if s = strings.TrimSpace(s); s != "" {
			splitNames = append(splitNames, s)
		}
	}
	if labelsPath == "" && len(splitNames) == 0 {
		printUsageAndExit("No dataset splits given")
	}

	if numWorkers < 0 {
		printUsageAndExit("Invalid value for -workers: ", numWorkers)
	}
	if err := imageOpts.Validate(); err != nil {
		printUsageAndExit("Invalid image processing arguments: ", err)
	}

	// Load the dataset config.
	config = yoloprep.DefaultConfig()
	if configPath != "" {
		var err error
		if config, err = yoloprep.LoadConfig(configPath); err != nil {
			printUsageAndExit("Failed to load the config: ", err)
		}
	}

	outDirPath = filepath.Clean(outDirPath)
	if rawDirPath != "" {
		rawDirPath = filepath.Clean(rawDirPath)
		if rawDirPath == outDirPath {
			printUsageAndExit("The raw input and output paths cannot be identical")
		}
	}
}

func main() {
	var splits []yoloprep.Split
	if labelsPath != "" {
		splits = []yoloprep.Split{{
			ManifestPath: filepath.Clean(labelsPath),
			ImageDir:     filepath.Clean(imageDirPath),
			OutDir:       outDirPath,
		}}
	} else {
		for _, name := range splitNames {
			splits = append(splits, yoloprep.BDDSplit(rawDirPath, outDirPath, name))
		}
	}

	converter := yoloprep.NewConverter(config)
	converter.Workers = numWorkers
	converter.Images = imageOpts

	if writeTFRecord {
		// Keep the single manifest output directory limited to images/ and labels/.
		tfRecordDir := outDirPath
		if labelsPath != "" {
			tfRecordDir = filepath.Dir(outDirPath)
		}
		if err := os.MkdirAll(tfRecordDir, 0755); err != nil {
			log.Fatal("Failed to create the output directory: ", err)
		}
		labelMapPath := filepath.Join(tfRecordDir, "label_map.pbtxt")
		if err := yoloprep.WriteLabelMap(labelMapPath, config.Classes); err != nil {
			log.Fatal("Failed to write the label map: ", err)
		}
		converter.TFRecordDir = tfRecordDir
	}

	reports, err := converter.ConvertAll(splits, parallelSplits)
	for _, r := range reports {
		if r == nil {
			continue
		}
		log.Printf("Split %q: %d/%d images, %d missing, %d shadowed entries, %d duplicate image "+
			"names, %d label files, %d labels, %d failures, %s", r.Split, r.Copied, r.Entries,
			len(r.Missing), r.Shadowed, r.DupImages, r.Emitted, r.Boxes, r.Failures,
			r.Duration.Round(time.Millisecond))
	}
	if err != nil {
		log.Fatal("Conversion failed: ", err)
	}
}
