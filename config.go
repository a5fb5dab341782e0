package yoloprep

// Dataset configuration: class vocabulary, category allow-list and image geometry.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Default dataset values (BDD100K, 1280x720 frames).
var (
	DefaultClasses     = []string{"car", "person", "rider", "bus", "truck", "bike"}
	DefaultImageWidth  = 1280.0
	DefaultImageHeight = 720.0
)

const maxConfigFileSize = 1 << 20 // 1MB

// Config holds the dataset specific parameters of a conversion.
type Config struct {
	// Classes is the class vocabulary. The index of a category is its YOLO class id.
	Classes []string `json:"classes"`
	// Allow is the list of categories kept by the filter stage. Defaults to Classes when empty.
	Allow []string `json:"allow,omitempty"`
	// ImageWidth and ImageHeight are the normalisation denominators for every box.
	ImageWidth  float64 `json:"image_width"`
	ImageHeight float64 `json:"image_height"`
}

// DefaultConfig returns the configuration for the BDD100K detection categories.
func DefaultConfig() *Config {
	return &Config{
		Classes:     append([]string(nil), DefaultClasses...),
		ImageWidth:  DefaultImageWidth,
		ImageHeight: DefaultImageHeight,
	}
}

// LoadConfig loads a Config from a JSON file. Fields omitted from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(),
			maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the vocabulary is usable and that every allowed category has a class id,
// so that no box surviving the filter can fail the class lookup.
func (c *Config) Validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("classes must not be empty")
	}
	seen := make(map[string]bool, len(c.Classes))
	for _, name := range c.Classes {
		if name == "" {
			return fmt.Errorf("classes must not contain empty names")
		}
		if seen[name] {
			return fmt.Errorf("duplicate class %q", name)
		}
		seen[name] = true
	}

	for _, name := range c.Allow {
		if !seen[name] {
			return fmt.Errorf("allowed category %q has no class id", name)
		}
	}

	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("image geometry must be positive, got %gx%g", c.ImageWidth, c.ImageHeight)
	}

	return nil
}

// ClassIndex maps each class name to its id.
func (c *Config) ClassIndex() map[string]int {
	index := make(map[string]int, len(c.Classes))
	for i, name := range c.Classes {
		index[name] = i
	}
	return index
}

// AllowSet returns the set of categories kept by the filter stage.
func (c *Config) AllowSet() map[string]bool {
	allow := c.Allow
	if len(allow) == 0 {
		allow = c.Classes
	}
	set := make(map[string]bool, len(allow))
	for _, name := range allow {
		set[name] = true
	}
	return set
}
