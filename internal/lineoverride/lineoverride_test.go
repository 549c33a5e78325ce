package lineoverride

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lineoverride.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

// TestLoadParsesOverrides tests that overrides are keyed by race id.
func TestLoadParsesOverrides(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeFile(t, "overrides:\n  - race_id: \"r1\"\n    line_formation: \"1・23・4\"\n  - race_id: \"r2\"\n    line_formation: \"12345\"\n")
	got := Load(path, discardLogger())
	if got["r1"] != "1・23・4" {
		t.Fatalf("got %q", got["r1"])
	}
	if got["r2"] != "12345" {
		t.Fatalf("got %q", got["r2"])
	}
	if len(got) != 2 {
		t.Fatalf("got %d overrides, want 2", len(got))
	}
}

// TestLoadMissingFileReturnsEmptyMap tests that a nonexistent file
// degrades to no overrides rather than an error.
func TestLoadMissingFileReturnsEmptyMap(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	got := Load("/nonexistent/lineoverride.yaml", discardLogger())
	if len(got) != 0 {
		t.Fatalf("got %d overrides, want 0", len(got))
	}
}

// TestLoadInvalidYAMLReturnsEmptyMap tests that malformed YAML degrades
// to no overrides rather than panicking or erroring the caller.
func TestLoadInvalidYAMLReturnsEmptyMap(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeFile(t, "overrides: [this is not valid: yaml: at all\n")
	got := Load(path, discardLogger())
	if len(got) != 0 {
		t.Fatalf("got %d overrides, want 0", len(got))
	}
}

// TestLoadSkipsIncompleteEntries tests that an entry missing a race id
// or formation is dropped rather than producing a bogus map entry.
func TestLoadSkipsIncompleteEntries(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := writeFile(t, "overrides:\n  - race_id: \"\"\n    line_formation: \"12345\"\n  - race_id: \"r3\"\n    line_formation: \"\"\n")
	got := Load(path, discardLogger())
	if len(got) != 0 {
		t.Fatalf("got %d overrides, want 0", len(got))
	}
}
