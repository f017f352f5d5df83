// Package repack rebuilds chapter archives from page directories already on
// disk, using the album metadata currently held in the local state.
package repack

import (
	"context"
	"fmt"
	"path/filepath"

	"favsync/pkg/logger"
	"favsync/pkg/metadata"
	"favsync/pkg/mirror"
	"favsync/pkg/models"
	"favsync/pkg/packer"
	"favsync/pkg/sanitize"
	"favsync/pkg/storage"
)

// legacyMaxLen is the title budget older layouts were written with.
const legacyMaxLen = 200

// ItemSource lists stored albums.
type ItemSource interface {
	Items(ctx context.Context) ([]models.Item, error)
}

type Options struct {
	StripBracketed bool
	ChapterFormat  string
	ItemURLFormat  string
}

// Result tallies a repack run.
type Result struct {
	Items    int
	Archives int
	Missing  []string
	Failed   []string
}

type Repacker struct {
	items ItemSource
	stage mirror.Packager
	files *storage.Manager
	opts  Options
	log   logger.Logger
}

func New(items ItemSource, stage mirror.Packager, files *storage.Manager, opts Options, log logger.Logger) *Repacker {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Repacker{items: items, stage: stage, files: files, opts: opts, log: log.WithField("component", "repack")}
}

// Candidates returns the directory names an album may have been stored
// under, most likely first and without duplicates.
func Candidates(title string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range []int{sanitize.DefaultMaxLen, legacyMaxLen} {
		for _, strip := range []bool{true, false} {
			name := sanitize.Clean(title, strip, n)
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// Run repacks every stored album found under the originals directory.
// Archives are overwritten; no packed records are written since page
// directories carry no chapter id.
func (r *Repacker) Run(ctx context.Context) (Result, error) {
	var res Result

	items, err := r.items.Items(ctx)
	if err != nil {
		return res, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		r.log.Warn("no stored items, nothing to repack")
		return res, nil
	}
	if !r.files.IsDir(r.files.Path(storage.OriginalsDir)) {
		return res, fmt.Errorf("no page directory at %s", r.files.Path(storage.OriginalsDir))
	}

	r.log.InfoWithFields("repacking stored items", map[string]interface{}{"items": len(items)})

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		album, ok := r.locate(item)
		if !ok {
			res.Missing = append(res.Missing, item.ID)
			continue
		}
		res.Items++
		n, failed := r.repackItem(ctx, item, album)
		res.Archives += n
		res.Failed = append(res.Failed, failed...)
	}
	return res, nil
}

func (r *Repacker) locate(item models.Item) (string, bool) {
	for _, name := range Candidates(item.Title) {
		if r.files.IsDir(r.files.Path(storage.OriginalsDir, name)) {
			return name, true
		}
	}
	return "", false
}

func (r *Repacker) repackItem(ctx context.Context, item models.Item, album string) (int, []string) {
	log := r.log.WithFields(map[string]interface{}{"item": item.ID, "album": album})

	chapters, err := r.files.Subdirs(r.files.Path(storage.OriginalsDir, album))
	if err != nil {
		log.WithError(err).Error("failed to list chapter directories")
		return 0, []string{album}
	}

	series := sanitize.Clean(item.Title, r.opts.StripBracketed, mirror.SeriesMaxLen)
	packed := 0
	var failed []string
	for _, chapter := range chapters {
		ordinal, ok := mirror.ParseOrdinal(r.opts.ChapterFormat, chapter)
		if !ok {
			ordinal = 1
		}
		info := metadata.FromItem(item, chapter+" - "+series, ordinal, r.opts.ItemURLFormat)
		info.Series = series

		err := r.stage.Package(ctx, packer.Job{
			ItemID: item.ID,
			Dir:    r.files.PagesDir(album, chapter),
			Target: r.files.ArchivePath(album, chapter),
			Info:   info,
		})
		if err != nil {
			log.WithError(err).WarnWithFields("repack failed", map[string]interface{}{"chapter": chapter})
			failed = append(failed, filepath.Join(album, chapter))
			continue
		}
		packed++
	}
	return packed, failed
}
