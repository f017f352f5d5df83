package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestManagerSaveAndExists(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(filepath.Join(tempDir, "out"))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	target := manager.Path("originals", "Album", "Chapter 1", "0001.jpg")
	if manager.Exists(target) {
		t.Error("Expected Exists to return false for missing file")
	}

	testData := []byte("test page data")
	n, err := manager.Save(target, bytes.NewReader(testData))
	if err != nil {
		t.Fatalf("Failed to save page: %v", err)
	}
	if n != int64(len(testData)) {
		t.Errorf("Expected %d bytes written, got %d", len(testData), n)
	}

	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if !bytes.Equal(content, testData) {
		t.Error("File content does not match expected data")
	}
	if !manager.Exists(target) {
		t.Error("Expected Exists to return true after save")
	}

	// a fresh manager sees files written by an earlier run
	again, err := NewManager(manager.Root())
	if err != nil {
		t.Fatalf("Failed to create second manager: %v", err)
	}
	if !again.Exists(target) {
		t.Error("Expected second manager to find existing file")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection dropped") }

func TestManagerSaveFailureLeavesNoFile(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	target := manager.Path("chapter", "0001.jpg")
	if _, err := manager.Save(target, failingReader{}); err == nil {
		t.Fatal("Expected save to fail")
	}
	if manager.Exists(target) {
		t.Error("Failed save must not leave the target behind")
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("Failed to read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no leftovers, found %d entries", len(entries))
	}
}

func TestListPages(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	for _, name := range []string{"0010.jpg", "0002.png", "0001.jpg", ".partial-123", ".DS_Store"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	pages, err := manager.ListPages(dir)
	if err != nil {
		t.Fatalf("ListPages failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "0001.jpg"),
		filepath.Join(dir, "0002.png"),
		filepath.Join(dir, "0010.jpg"),
	}
	if !reflect.DeepEqual(pages, want) {
		t.Errorf("ListPages = %v, want %v", pages, want)
	}

	dirs, err := manager.Subdirs(dir)
	if err != nil {
		t.Fatalf("Subdirs failed: %v", err)
	}
	if !reflect.DeepEqual(dirs, []string{"nested"}) {
		t.Errorf("Subdirs = %v", dirs)
	}
}

func TestRemoveAllForgetsFiles(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	chapter := manager.Path("Album", "Chapter 1")
	page := filepath.Join(chapter, "0001.jpg")
	if err := manager.WriteFile(page, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := manager.RemoveAll(chapter); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if manager.Exists(page) {
		t.Error("Expected removed page to be gone")
	}
	if manager.IsDir(chapter) {
		t.Error("Expected chapter dir to be gone")
	}
}

func TestLayout(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if got, want := manager.PagesDir("Album", "Chapter 2"), filepath.Join(manager.Root(), "originals", "Album", "Chapter 2"); got != want {
		t.Errorf("PagesDir = %q, want %q", got, want)
	}
	if got, want := manager.ArchivePath("Album", "Chapter 2"), filepath.Join(manager.Root(), "cbz", "Album", "Chapter 2.cbz"); got != want {
		t.Errorf("ArchivePath = %q, want %q", got, want)
	}
}

func TestPageName(t *testing.T) {
	tests := []struct {
		index int
		url   string
		want  string
	}{
		{1, "https://cdn.example/a/b.webp", "0001.webp"},
		{12, "https://cdn.example/a/B.PNG?x=1", "0012.png"},
		{3, "https://cdn.example/a/noext", "0003.jpg"},
		{4, "/img/page.php?id=4", "0004.jpg"},
		{10000, "x.gif", "10000.gif"},
	}
	for _, tt := range tests {
		if got := PageName(tt.index, tt.url); got != tt.want {
			t.Errorf("PageName(%d, %q) = %q, want %q", tt.index, tt.url, got, tt.want)
		}
	}
}
