// Package assets resolves resource URIs for nodes. Resources registered in
// memory use the asset: scheme; file: (or a bare path) reads from disk.
package assets

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("asset not found")

// Manager maps asset names to their contents and resolves resource URIs.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	assets map[string][]byte
}

func NewManager() *Manager {
	return &Manager{assets: map[string][]byte{}}
}

// Set registers data under name, replacing any previous registration.
func (m *Manager) Set(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[name] = data
}

// Get returns the asset registered under name.
func (m *Manager) Get(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.assets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, nil
}

// Names returns the registered asset names in unspecified order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.assets))
	for name := range m.assets {
		names = append(names, name)
	}
	return names
}

// Load resolves uri and returns the resource contents. Supported forms are
// "asset:name" for registered assets and "file:path" or a bare path for
// files on disk.
func (m *Manager) Load(uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "asset:"):
		return m.Get(strings.TrimPrefix(uri, "asset:"))
	case strings.HasPrefix(uri, "file:"):
		return os.ReadFile(strings.TrimPrefix(uri, "file:"))
	default:
		return os.ReadFile(uri)
	}
}
