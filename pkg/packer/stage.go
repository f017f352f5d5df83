package packer

import (
	"context"
	"fmt"
	"os"

	"favsync/pkg/logger"
	"favsync/pkg/metadata"
	"favsync/pkg/storage"
)

// Marker records that a sub-unit has been packaged.
type Marker interface {
	MarkPacked(ctx context.Context, itemID, subID string) error
}

// Job describes one directory to package.
type Job struct {
	ItemID string
	// SubUnitID is empty for archives rebuilt from disk; no record is written then.
	SubUnitID string
	Dir       string
	Target    string
	Info      metadata.ComicInfo
}

// Stage packages downloaded sub-units.
type Stage struct {
	packer      Packer
	store       Marker
	files       *storage.Manager
	deleteAfter bool
	log         logger.Logger
}

func NewStage(p Packer, store Marker, files *storage.Manager, deleteAfter bool, log logger.Logger) *Stage {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Stage{packer: p, store: store, files: files, deleteAfter: deleteAfter, log: log.WithField("component", "packer")}
}

// Package archives every page in job.Dir, in file name order, to job.Target,
// then records the sub-unit as packed. On any failure nothing is recorded and
// the pages are left in place.
func (s *Stage) Package(ctx context.Context, job Job) error {
	paths, err := s.files.ListPages(job.Dir)
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no pages in %s", job.Dir)
	}

	pages := make([]PageFile, 0, len(paths))
	sizes := make([]int64, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("stat page: %w", err)
		}
		pages = append(pages, PageFile{Path: p, Size: info.Size()})
		sizes = append(sizes, info.Size())
	}

	comic := job.Info
	comic.SetPages(sizes)

	data, err := s.packer.Pack(pages, comic)
	if err != nil {
		return fmt.Errorf("pack %s: %w", job.Target, err)
	}
	if err := s.files.WriteFile(job.Target, data); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	if job.SubUnitID != "" {
		if err := s.store.MarkPacked(ctx, job.ItemID, job.SubUnitID); err != nil {
			return fmt.Errorf("record packed sub-unit: %w", err)
		}
	}

	s.log.InfoWithFields("archive written", map[string]interface{}{
		"item":    job.ItemID,
		"chapter": job.SubUnitID,
		"target":  job.Target,
		"pages":   len(pages),
		"bytes":   len(data),
	})

	if s.deleteAfter {
		if err := s.files.RemoveAll(job.Dir); err != nil {
			s.log.WithError(err).Warn("failed to delete packed pages")
		}
	}
	return nil
}
