// Package plycache stores pruned PLY outputs on disk so that repeating a
// deterministic prune of the same input skips decoding and scoring.
//
// Entries are plain files named <name>.ply inside the cache directory and
// expire by modification time.
package plycache

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/banshee-data/splatprune/internal/monitoring"
	"github.com/banshee-data/splatprune/internal/timeutil"
)

// DefaultMaxAge is how long an entry stays valid.
const DefaultMaxAge = 24 * time.Hour

const ext = ".ply"

// Manager owns one cache directory.
type Manager struct {
	fs     fsutil.FileSystem
	clock  timeutil.Clock
	dir    string
	maxAge time.Duration
}

// Stats summarises the .ply files held by a cache directory.
type Stats struct {
	FileCount  int
	TotalBytes int64
}

// TotalMB returns the total size in decimal megabytes.
func (s Stats) TotalMB() float64 {
	return float64(s.TotalBytes) / 1e6
}

// New creates the cache directory if needed and returns a Manager with the
// default max age.
func New(fsys fsutil.FileSystem, clock timeutil.Clock, dir string) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("plycache: empty cache directory")
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("plycache: create %s: %w", dir, err)
	}
	return &Manager{fs: fsys, clock: clock, dir: dir, maxAge: DefaultMaxAge}, nil
}

// SetMaxAge changes the expiry window. Non-positive values are ignored.
func (m *Manager) SetMaxAge(d time.Duration) {
	if d > 0 {
		m.maxAge = d
	}
}

// MaxAge returns the expiry window.
func (m *Manager) MaxAge() time.Duration { return m.maxAge }

// Dir returns the cache directory.
func (m *Manager) Dir() string { return m.dir }

// Key derives a cache entry name from the input bytes and the parameters
// that influence the output. Parts are length-prefixed so that ("ab","c")
// and ("a","bc") hash differently.
func Key(input []byte, parts ...string) string {
	d := xxhash.New()
	_, _ = d.Write(input)
	for _, p := range parts {
		fmt.Fprintf(d, "|%d:%s", len(p), p)
	}
	var sum [8]byte
	return hex.EncodeToString(d.Sum(sum[:0]))
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+ext)
}

func (m *Manager) expired(info fs.FileInfo) bool {
	return m.clock.Since(info.ModTime()) >= m.maxAge
}

// IsCached reports whether name exists and is younger than the max age.
func (m *Manager) IsCached(name string) bool {
	info, err := m.fs.Stat(m.path(name))
	if err != nil || info.IsDir() {
		return false
	}
	return !m.expired(info)
}

// Load returns the cached bytes for name, or false when the entry is
// missing, expired or unreadable.
func (m *Manager) Load(name string) ([]byte, bool) {
	if !m.IsCached(name) {
		return nil, false
	}
	data, err := m.fs.ReadFile(m.path(name))
	if err != nil {
		monitoring.Debugf("plycache: read %s: %v", name, err)
		return nil, false
	}
	return data, true
}

// Save stores data under name, replacing any previous entry.
func (m *Manager) Save(name string, data []byte) error {
	if strings.ContainsAny(name, `/\`) || name == "" || name == "." || name == ".." {
		return fmt.Errorf("plycache: invalid entry name %q", name)
	}
	_, err := fsutil.WriteAtomic(m.fs, m.path(name), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("plycache: save %s: %w", name, err)
	}
	monitoring.Debugf("plycache: cached %s (%.2f MB)", name, float64(len(data))/1e6)
	return nil
}

// CleanupExpired removes expired .ply entries and returns how many were removed.
// Other files in the directory are left alone.
func (m *Manager) CleanupExpired() (int, error) {
	infos, err := m.fs.ListFiles(m.dir)
	if err != nil {
		return 0, fmt.Errorf("plycache: list %s: %w", m.dir, err)
	}

	removed := 0
	for _, info := range infos {
		if filepath.Ext(info.Name()) != ext || !m.expired(info) {
			continue
		}
		if err := m.fs.Remove(filepath.Join(m.dir, info.Name())); err != nil {
			return removed, fmt.Errorf("plycache: remove %s: %w", info.Name(), err)
		}
		removed++
		monitoring.Debugf("plycache: removed expired entry %s", info.Name())
	}
	return removed, nil
}

// Stats counts the .ply entries, expired or not.
func (m *Manager) Stats() (Stats, error) {
	infos, err := m.fs.ListFiles(m.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("plycache: list %s: %w", m.dir, err)
	}
	var s Stats
	for _, info := range infos {
		if filepath.Ext(info.Name()) != ext {
			continue
		}
		s.FileCount++
		s.TotalBytes += info.Size()
	}
	return s, nil
}
