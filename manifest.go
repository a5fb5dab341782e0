package yoloprep

// The label manifest and the per-image intermediate records derived from it.

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Box2D is an axis-aligned bounding box in absolute pixel coordinates, with x2>=x1 and y2>=y1.
type Box2D struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Box is a single labelled object of a manifest entry. Fields other than category and box2d are
// kept verbatim so they survive the intermediate round trip.
type Box struct {
	Category string
	Box2D    *Box2D // Nil for labels without a box, e.g. lanes or drivable areas.

	extra map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Box) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*b = Box{}
	// A category that is not a string is kept as an unknown field, leaving the box uncategorised.
	if raw, ok := fields["category"]; ok {
		if err := json.Unmarshal(raw, &b.Category); err == nil {
			delete(fields, "category")
		}
	}
	// Likewise an undecodable box2d stays as an unknown field and the box has no coordinates.
	if raw, ok := fields["box2d"]; ok && string(raw) != "null" {
		var box Box2D
		if err := json.Unmarshal(raw, &box); err == nil {
			b.Box2D = &box
			delete(fields, "box2d")
		}
	}
	b.extra = fields

	return nil
}

// MarshalJSON implements json.Marshaler.
func (b Box) MarshalJSON() ([]byte, error) {
	fields := copyFields(b.extra, 2)
	if b.Category != "" {
		if err := setField(fields, "category", b.Category); err != nil {
			return nil, err
		}
	}
	if b.Box2D != nil {
		if err := setField(fields, "box2d", b.Box2D); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

// LabelEntry is one record of the manifest: an image file name and its labels. Fields other than
// name and labels are kept verbatim.
type LabelEntry struct {
	Name   string
	Labels []Box

	extra map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *LabelEntry) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = LabelEntry{}
	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &e.Name); err != nil {
			return fmt.Errorf("invalid name: %w", err)
		}
		delete(fields, "name")
	}
	if raw, ok := fields["labels"]; ok {
		if err := json.Unmarshal(raw, &e.Labels); err != nil {
			return fmt.Errorf("invalid labels of %q: %w", e.Name, err)
		}
		delete(fields, "labels")
	}
	e.extra = fields

	return nil
}

// MarshalJSON implements json.Marshaler.
func (e LabelEntry) MarshalJSON() ([]byte, error) {
	fields := copyFields(e.extra, 2)
	if err := setField(fields, "name", e.Name); err != nil {
		return nil, err
	}
	labels := e.Labels
	if labels == nil {
		labels = []Box{} // Must not be nil as that becomes JSON null.
	}
	if err := setField(fields, "labels", labels); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func copyFields(src map[string]json.RawMessage, extraCap int) map[string]json.RawMessage {
	dst := make(map[string]json.RawMessage, len(src)+extraCap)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func setField(fields map[string]json.RawMessage, key string, v interface{}) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", key, err)
	}
	fields[key] = enc
	return nil
}

// ManifestError reports a manifest that cannot be read or is not a JSON array. It is fatal for
// the split being converted.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("cannot load manifest %q: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// LoadManifest reads and parses the JSON array of label entries at path.
//
// Elements that are valid JSON but cannot be decoded as an entry, or that have no name, are
// logged and skipped.
func LoadManifest(path string) ([]LabelEntry, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(enc, &elements); err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}
	if elements == nil {
		return nil, &ManifestError{Path: path, Err: fmt.Errorf("top-level value is not an array")}
	}

	entries := make([]LabelEntry, 0, len(elements))
	for i, raw := range elements {
		var entry LabelEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Printf("Error while parsing manifest entry %d, skipping: %v", i, err)
			continue
		}
		if entry.Name == "" {
			log.Printf("Manifest entry %d has no name, skipping", i)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// intermediatePath is the path of the intermediate record for the image name in outDir.
func intermediatePath(outDir, name string) string {
	return filepath.Join(outDir, fileStem(name)+".json")
}

// WriteIntermediate writes entry as a standalone JSON record into outDir, named after the stem of
// the image, and returns its path.
func WriteIntermediate(outDir string, entry LabelEntry) (string, error) {
	enc, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	path := intermediatePath(outDir, entry.Name)
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return "", fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return path, nil
}

// ReadIntermediate reads and parses the intermediate record at path.
func ReadIntermediate(path string) (LabelEntry, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return LabelEntry{}, err
	}

	var entry LabelEntry
	if err := json.Unmarshal(enc, &entry); err != nil {
		return LabelEntry{}, fmt.Errorf("failed to parse intermediate record %q: %w", path, err)
	}
	return entry, nil
}

// rewriteIntermediate overwrites the record at path with entry, indented for human inspection.
func rewriteIntermediate(path string, entry LabelEntry) error {
	enc, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return nil
}

// intermediateFiles returns the intermediate records currently in outDir, sorted by name.
func intermediateFiles(outDir string) ([]string, error) {
	return filesByExtInDir(outDir, ".json")
}
