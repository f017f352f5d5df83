package storage

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const tempPattern = ".partial-*"

// Top-level directories under the root.
const (
	OriginalsDir = "originals"
	ArchivesDir  = "cbz"
	ArchiveExt   = ".cbz"
)

// DefaultPageExt is used when a page URL carries no usable extension.
const DefaultPageExt = ".jpg"

var pageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".avif": true, ".bmp": true,
}

// Manager handles page and archive files under one root directory.
type Manager struct {
	root    string
	present map[string]bool
	mu      sync.RWMutex
}

// NewManager creates root if needed.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{root: root, present: make(map[string]bool)}, nil
}

// Root returns the directory every path is resolved against.
func (m *Manager) Root() string { return m.root }

// Path joins elems under the root.
func (m *Manager) Path(elems ...string) string {
	return filepath.Join(append([]string{m.root}, elems...)...)
}

// PagesDir is the raw page directory of one chapter.
func (m *Manager) PagesDir(album, chapter string) string {
	return m.Path(OriginalsDir, album, chapter)
}

// ArchivePath is the archive file of one chapter.
func (m *Manager) ArchivePath(album, chapter string) string {
	return m.Path(ArchivesDir, album, chapter+ArchiveExt)
}

// Exists reports whether a complete file is present at p.
func (m *Manager) Exists(p string) bool {
	m.mu.RLock()
	known := m.present[p]
	m.mu.RUnlock()
	if known {
		return true
	}

	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return false
	}
	m.mu.Lock()
	m.present[p] = true
	m.mu.Unlock()
	return true
}

// Save writes r to p atomically: the data goes to a temporary file in the
// same directory which is renamed into place once complete.
func (m *Manager) Save(p string, r io.Reader) (int64, error) {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to write data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.present[p] = true
	m.mu.Unlock()
	return n, nil
}

// WriteFile is Save for in-memory data.
func (m *Manager) WriteFile(p string, data []byte) error {
	_, err := m.Save(p, bytes.NewReader(data))
	return err
}

// ListPages returns the complete files directly inside dir, sorted by name.
// Temporary and hidden files are skipped.
func (m *Manager) ListPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var pages []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		pages = append(pages, filepath.Join(dir, e.Name()))
	}
	sort.Strings(pages)
	return pages, nil
}

// RemoveAll deletes dir and everything below it.
func (m *Manager) RemoveAll(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	m.mu.Lock()
	for p := range m.present {
		if strings.HasPrefix(p, prefix) {
			delete(m.present, p)
		}
	}
	m.mu.Unlock()
	return nil
}

// Subdirs lists the directory names directly inside dir, sorted.
func (m *Manager) Subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// IsDir reports whether p is an existing directory.
func (m *Manager) IsDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// PageName is the file name of the 1-based page index: zero padded so that
// name order is reading order, with the extension taken from the URL path.
func PageName(index int, rawURL string) string {
	return fmt.Sprintf("%04d%s", index, PageExt(rawURL))
}

// PageExt returns the lower-cased image extension of rawURL or DefaultPageExt.
func PageExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if pageExts[ext] {
		return ext
	}
	return DefaultPageExt
}
