package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	for _, dir := range []string{safeDir, unsafeDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(unsafeDir, "scene.ply"), []byte("ply\n"), 0644); err != nil {
		t.Fatalf("Failed to create unsafe file: %v", err)
	}
	symlinkPath := filepath.Join(safeDir, "evil-symlink")
	if err := os.Symlink(unsafeDir, symlinkPath); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		safeDir   string
		wantError bool
	}{
		{"file in directory", filepath.Join(safeDir, "out.ply"), safeDir, false},
		{"nested new file", filepath.Join(safeDir, "a", "b", "out.ply"), safeDir, false},
		{"dot dot escape", filepath.Join(safeDir, "..", "out.ply"), safeDir, true},
		{"relative escape", "../../../etc/passwd", safeDir, true},
		{"sibling directory", filepath.Join(unsafeDir, "scene.ply"), safeDir, true},
		{"existing file through symlink", filepath.Join(symlinkPath, "scene.ply"), safeDir, true},
		{"new file through symlink", filepath.Join(symlinkPath, "new.ply"), safeDir, true},
		{"directory itself", safeDir, safeDir, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.safeDir, err, tt.wantError)
			}
		})
	}
}

func TestValidatePathWithinDirectory_MissingSafeDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	if err := ValidatePathWithinDirectory(filepath.Join(missing, "x.ply"), missing); err == nil {
		t.Error("expected an error when the safe directory does not exist")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"scene.ply", "scene.ply"},
		{"my scene (v2).ply", "my_scene_v2_.ply"},
		{"a  b", "a_b"},
		{"a__b", "a_b"},
		{"../../etc/passwd", "etc_passwd"},
		{"__hidden__", "hidden"},
		{"", "unknown"},
		{"///", "unknown"},
		{"場面.ply", "ply"},
		{"Room-01.PLY", "Room-01.PLY"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename_Length(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("x", 500))
	if len(got) != 128 {
		t.Errorf("len = %d, want 128", len(got))
	}
}

func TestBatchOutputPath(t *testing.T) {
	outDir := t.TempDir()

	tests := []struct {
		input string
		want  string
	}{
		{"/data/garden.ply", "pruned_garden.ply"},
		{"relative/room 2.ply", "pruned_room_2.ply"},
		{"/data/bicycle", "pruned_bicycle.ply"},
		{"/data/TRUCK.PLY", "pruned_TRUCK.PLY"},
		{"/data/..", "pruned_unknown.ply"},
	}
	for _, tt := range tests {
		got, err := BatchOutputPath(outDir, tt.input)
		if err != nil {
			t.Errorf("BatchOutputPath(%q) error: %v", tt.input, err)
			continue
		}
		if want := filepath.Join(outDir, tt.want); got != want {
			t.Errorf("BatchOutputPath(%q) = %q, want %q", tt.input, got, want)
		}
	}
}
