package yoloprep

// Locating images by file name anywhere below an image root.

import (
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
)

// ImageIndex maps image base names to their path below an image root.
type ImageIndex struct {
	root       string
	paths      map[string]string
	duplicates int
}

// IndexImages walks root recursively and indexes every regular file by its base name.
//
// The walk is in lexical order, so when several files share a base name the lexically first
// path wins. Duplicates are counted and logged.
func IndexImages(root string) (*ImageIndex, error) {
	idx := &ImageIndex{root: root, paths: make(map[string]string)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Printf("Failed to access %q, skipping: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		if first, found := idx.paths[name]; found {
			idx.duplicates++
			log.Printf("Duplicate image name %q, keeping %q over %q", name, first, path)
			return nil
		}
		idx.paths[name] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot index images in %q: %w", root, err)
	}

	log.Printf("Indexed %d images in %s (%d duplicate names)", len(idx.paths), root,
		idx.duplicates)
	return idx, nil
}

// Locate returns the path of the image with the given file name. It returns false if no such file
// exists below the root.
func (idx *ImageIndex) Locate(name string) (string, bool) {
	path, ok := idx.paths[name]
	return path, ok
}

// Len is the number of distinct image names in the index.
func (idx *ImageIndex) Len() int {
	return len(idx.paths)
}

// Duplicates is the number of files that were shadowed by an earlier file with the same name.
func (idx *ImageIndex) Duplicates() int {
	return idx.duplicates
}

// Root is the directory the index was built from.
func (idx *ImageIndex) Root() string {
	return idx.root
}
