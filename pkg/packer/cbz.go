// Package packer builds CBZ archives and runs the packaging stage that turns
// a directory of downloaded pages into an archive plus a Packed Record.
package packer

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"favsync/pkg/metadata"
)

// ComicInfoName is the metadata entry inside every archive.
const ComicInfoName = "ComicInfo.xml"

// PageFile is one page on disk, in archive order.
type PageFile struct {
	Path string
	Size int64
}

// Packer turns ordered pages plus metadata into archive bytes.
type Packer interface {
	Pack(pages []PageFile, info metadata.ComicInfo) ([]byte, error)
}

// CBZ writes a zip archive holding the pages under their file names followed
// by ComicInfo.xml. Images are stored uncompressed.
type CBZ struct {
	// Modified stamps every entry; zero means the time of packing.
	Modified time.Time
}

func (c CBZ) Pack(pages []PageFile, info metadata.ComicInfo) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to pack")
	}
	modified := c.Modified
	if modified.IsZero() {
		modified = time.Now()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range pages {
		if err := addFile(zw, p.Path, modified); err != nil {
			_ = zw.Close()
			return nil, err
		}
	}

	xmlData, err := info.Marshal()
	if err != nil {
		_ = zw.Close()
		return nil, err
	}
	w, err := zw.CreateHeader(&zip.FileHeader{Name: ComicInfoName, Method: zip.Deflate, Modified: modified})
	if err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("add %s: %w", ComicInfoName, err)
	}
	if _, err := w.Write(xmlData); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("write %s: %w", ComicInfoName, err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addFile(zw *zip.Writer, path string, modified time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     filepath.Base(path),
		Method:   zip.Store,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", filepath.Base(path), err)
	}
	return nil
}
