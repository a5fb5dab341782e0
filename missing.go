package yoloprep

import (
	"sort"
	"sync"
)

// MissingLog collects the names of manifest images that were not found. It is safe for concurrent
// use; each name is recorded once.
type MissingLog struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewMissingLog returns an empty MissingLog.
func NewMissingLog() *MissingLog {
	return &MissingLog{names: make(map[string]struct{})}
}

// Add records name as missing.
func (m *MissingLog) Add(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[name] = struct{}{}
}

// Len is the number of distinct missing names.
func (m *MissingLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.names)
}

// Names returns the missing names in sorted order.
func (m *MissingLog) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.names))
	for name := range m.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
