// Package localstore is the durable local key/value cache: the Go analogue
// of the browser's localStorage, holding small string values (the remembered
// personal-list codes, the legacy active code) across sessions.
package localstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store is the durable cache collaborator. Get returns "" for an absent key;
// none of the methods fail; a store without a usable backing host degrades
// to no-ops.
type Store interface {
	Get(key string) string
	Set(key, value string)
	Remove(key string)
}

// Memory is an in-process Store for tests.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// Dir stores each key as a file under a directory. A Dir whose directory
// cannot be created behaves as an always-empty store; reads return "" and
// writes warn and drop.
type Dir struct {
	path string
	ok   bool
}

// DefaultDir opens the per-user store under the OS config directory.
func DefaultDir() *Dir {
	base, err := os.UserConfigDir()
	if err != nil {
		log.Warn().Err(err).Msg("no user config dir, local cache disabled")
		return &Dir{}
	}
	return NewDir(filepath.Join(base, "grocery-list-tracker"))
}

// NewDir opens a file-backed store rooted at path, creating it if needed.
func NewDir(path string) *Dir {
	if err := os.MkdirAll(path, 0o755); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("local cache unavailable")
		return &Dir{}
	}
	return &Dir{path: path, ok: true}
}

// file maps a key to a filename. Keys are caller-controlled constants, but
// path separators are flattened so a hostile key cannot escape the dir.
func (d *Dir) file(key string) string {
	key = strings.NewReplacer("/", "_", "\\", "_").Replace(key)
	return filepath.Join(d.path, key)
}

func (d *Dir) Get(key string) string {
	if !d.ok {
		return ""
	}
	data, err := os.ReadFile(d.file(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("key", key).Msg("local cache read failed")
		}
		return ""
	}
	return string(data)
}

func (d *Dir) Set(key, value string) {
	if !d.ok {
		return
	}
	if err := os.WriteFile(d.file(key), []byte(value), 0o644); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("local cache write failed")
	}
}

func (d *Dir) Remove(key string) {
	if !d.ok {
		return
	}
	if err := os.Remove(d.file(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("key", key).Msg("local cache remove failed")
	}
}
