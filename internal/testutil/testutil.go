// Package testutil provides shared test utilities and fixtures.
//
// Fixtures are synthetic splat scenes encoded as PLY files, either in memory
// or on a MemoryFileSystem, so tests across packages share one source of
// realistic input.
package testutil

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/banshee-data/splatprune/internal/ply"
	"github.com/banshee-data/splatprune/internal/synth"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// EncodeScene renders a scene as a complete PLY file.
func EncodeScene(t testing.TB, s *synth.Scene) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := ply.Encode(&buf, s.Points, s.Auxiliary, s.AuxData); err != nil {
		t.Fatalf("encode scene: %v", err)
	}
	return buf.Bytes()
}

// WriteScene generates n points with seed and stores the encoded file at
// path on fsys, creating the parent directory.
func WriteScene(t testing.TB, fsys fsutil.FileSystem, path string, n int, seed uint64, opts synth.Options) *synth.Scene {
	t.Helper()
	s := synth.Generate(n, seed, opts)
	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := fsys.WriteFile(path, EncodeScene(t, s), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return s
}

// TempScene writes a generated scene into a fresh temporary directory on
// the real filesystem and returns its path.
func TempScene(t testing.TB, n int, seed uint64, opts synth.Options) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.ply")
	WriteScene(t, fsutil.OSFileSystem{}, path, n, seed, opts)
	return path
}

// IsSubsequence reports whether kept appears in original in the same
// relative order.
func IsSubsequence(original, kept ply.PointTable) bool {
	j := 0
	for i := 0; i < len(original) && j < len(kept); i++ {
		if original[i] == kept[j] {
			j++
		}
	}
	return j == len(kept)
}
