package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("<x/>"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEnumerateFindsOnlyXMLDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "communeA", "xml", "a1.xml"))
	writeFile(t, filepath.Join(root, "communeA", "xml", "nested", "a2.XML"))
	writeFile(t, filepath.Join(root, "communeB", "xml", "b1.xml"))
	// Noise that must be ignored.
	writeFile(t, filepath.Join(root, "communeA", "xml", "notes.txt"))
	writeFile(t, filepath.Join(root, "communeA", "pdf", "scan.xml"))
	writeFile(t, filepath.Join(root, "stray.xml"))

	s := &XMLDirScanner{}
	files, err := s.Enumerate(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("found %d files, want 3: %v", len(files), files)
	}
	sep := string(filepath.Separator)
	for _, f := range files {
		if !strings.Contains(f, sep+"xml"+sep) {
			t.Errorf("file outside an xml dir: %s", f)
		}
	}
}

func TestEnumerateEmptyRoot(t *testing.T) {
	t.Parallel()

	s := &XMLDirScanner{ListWorkers: 2}
	files, err := s.Enumerate(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %v", files)
	}
}

func TestEnumerateMissingRoot(t *testing.T) {
	t.Parallel()

	s := &XMLDirScanner{}
	if _, err := s.Enumerate(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing root")
	}
}
