package yoloprep

// Category allow-list filtering.

// FilterEntry returns a copy of entry with only the boxes whose category is in allow, in their
// original order. Boxes without a category are dropped. Applying it twice gives the same result
// as applying it once.
func FilterEntry(entry LabelEntry, allow map[string]bool) LabelEntry {
	kept := make([]Box, 0, len(entry.Labels))
	for _, b := range entry.Labels {
		if b.Category != "" && allow[b.Category] {
			kept = append(kept, b)
		}
	}

	filtered := entry
	filtered.Labels = kept
	return filtered
}

// filterIntermediate applies FilterEntry to the intermediate record at path in place. It returns
// the number of boxes removed.
//
// A record that cannot be read or parsed is left untouched.
func filterIntermediate(path string, allow map[string]bool) (int, error) {
	entry, err := ReadIntermediate(path)
	if err != nil {
		return 0, err
	}

	filtered := FilterEntry(entry, allow)
	if err := rewriteIntermediate(path, filtered); err != nil {
		return 0, err
	}

	return len(entry.Labels) - len(filtered.Labels), nil
}
