// Package mirror drives the download of albums: metadata, chapters and pages,
// handing each fully downloaded chapter to the packaging stage and recording
// completion so a later run resumes where this one stopped.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"favsync/internal/downloader"
	apierrors "favsync/pkg/errors"
	"favsync/pkg/logger"
	"favsync/pkg/metadata"
	"favsync/pkg/models"
	"favsync/pkg/packer"
	"favsync/pkg/retry"
	"favsync/pkg/sanitize"
	"favsync/pkg/storage"
)

// Client is the remote side of a mirror run.
type Client interface {
	GetItem(ctx context.Context, id string) (*models.Item, error)
	SubUnits(ctx context.Context, item models.Item) ([]models.SubUnit, error)
	Pages(ctx context.Context, sub models.SubUnit) ([]models.Page, error)
	FetchPage(ctx context.Context, page models.Page) ([]byte, error)
}

// Store is the state the driver reads and writes.
type Store interface {
	IsItemComplete(ctx context.Context, id string) (bool, error)
	MarkItemComplete(ctx context.Context, id string) error
	UpsertItem(ctx context.Context, item models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)
	IsPacked(ctx context.Context, itemID, subID string) (bool, error)
}

// Packager turns a downloaded chapter into an archive and records it.
type Packager interface {
	Package(ctx context.Context, job packer.Job) error
}

// Outcome is the per-item result of Process.
type Outcome int

const (
	// Completed means every chapter is packaged and the item is marked complete.
	Completed Outcome = iota
	// Skipped means the item was already complete; nothing was fetched.
	Skipped
	// Incomplete means at least one chapter failed and will be retried next run.
	Incomplete
	// Failed means the item could not be started (metadata or chapter list).
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Incomplete:
		return "incomplete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options tunes a Driver.
type Options struct {
	Retries         int
	RetryDelay      time.Duration
	ConcurrentPages int
	ChapterFormat   string
	// StripBracketed removes bracketed annotations from album and chapter titles.
	StripBracketed bool
	// ItemURLFormat, when set, fills the archive web link with the item id.
	ItemURLFormat string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Retries:         3,
		RetryDelay:      500 * time.Millisecond,
		ConcurrentPages: 1,
		ChapterFormat:   DefaultChapterFormat,
	}
}

// Summary tallies a Run.
type Summary struct {
	Completed  []string
	Skipped    []string
	Incomplete []string
	Failed     []string
	Pages      int
	Bytes      int64
	Duration   time.Duration
}

// Total is the number of items processed.
func (s Summary) Total() int {
	return len(s.Completed) + len(s.Skipped) + len(s.Incomplete) + len(s.Failed)
}

// PlanEntry is one row of the pre-run listing.
type PlanEntry struct {
	ID       string
	Title    string
	Known    bool
	Complete bool
}

// Driver processes items one after another.
type Driver struct {
	client   Client
	store    Store
	stage    Packager
	files    *storage.Manager
	opts     Options
	log      logger.Logger
	observer Observer

	pages int
	bytes int64
}

func NewDriver(client Client, store Store, stage Packager, files *storage.Manager, opts Options, log logger.Logger) *Driver {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.ConcurrentPages < 1 {
		opts.ConcurrentPages = 1
	}
	if opts.ChapterFormat == "" {
		opts.ChapterFormat = DefaultChapterFormat
	}
	return &Driver{
		client:   client,
		store:    store,
		stage:    stage,
		files:    files,
		opts:     opts,
		log:      log.WithField("component", "mirror"),
		observer: nopObserver{},
	}
}

// SetObserver registers progress callbacks.
func (d *Driver) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	d.observer = o
}

// Run processes ids in order and tallies the outcomes. A canceled context
// stops the run between items.
func (d *Driver) Run(ctx context.Context, ids []string) Summary {
	start := time.Now()
	var sum Summary
	d.pages, d.bytes = 0, 0

	for _, id := range ids {
		if ctx.Err() != nil {
			d.log.Warn("run interrupted, remaining items are left for the next run")
			break
		}
		switch d.Process(ctx, id) {
		case Completed:
			sum.Completed = append(sum.Completed, id)
		case Skipped:
			sum.Skipped = append(sum.Skipped, id)
		case Incomplete:
			sum.Incomplete = append(sum.Incomplete, id)
		case Failed:
			sum.Failed = append(sum.Failed, id)
		}
	}

	sum.Pages = d.pages
	sum.Bytes = d.bytes
	sum.Duration = time.Since(start)
	return sum
}

// Process mirrors one item. It never returns an error: every failure is
// logged and reflected in the outcome, and durable state only records work
// that finished.
func (d *Driver) Process(ctx context.Context, id string) Outcome {
	log := d.log.WithField("item", id)

	done, err := d.store.IsItemComplete(ctx, id)
	if err != nil {
		log.WithError(err).Error("failed to read item status")
		return d.finish(id, Failed)
	}
	if done {
		log.Info("item already complete, skipping")
		return d.finish(id, Skipped)
	}

	item, err := d.client.GetItem(ctx, id)
	if err != nil {
		log.WithError(err).Error("failed to fetch item metadata")
		return d.finish(id, Failed)
	}
	item.ID = id
	if err := d.store.UpsertItem(ctx, *item); err != nil {
		log.WithError(err).Error("failed to store item metadata")
		return d.finish(id, Failed)
	}

	subs, err := d.client.SubUnits(ctx, *item)
	if err != nil {
		log.WithError(err).Error("failed to list chapters")
		return d.finish(id, Failed)
	}

	album := sanitize.Clean(item.Title, d.opts.StripBracketed, sanitize.DefaultMaxLen)
	d.observer.ItemStarted(id, album, len(subs))
	log.InfoWithFields("processing item", map[string]interface{}{
		"title":    album,
		"chapters": len(subs),
	})

	names := ChapterNames(d.opts.ChapterFormat, subs)
	failed := 0
	for i, sub := range subs {
		if err := d.processSubUnit(ctx, *item, album, sub, names[i], i+1); err != nil {
			failed++
			log.WithError(err).WarnWithFields("chapter not finished", map[string]interface{}{
				"chapter": sub.ID,
			})
		}
	}

	if failed > 0 || len(subs) == 0 {
		if len(subs) == 0 {
			log.Warn("item has no chapters, not marking complete")
		}
		return d.finish(id, Incomplete)
	}
	if err := d.store.MarkItemComplete(ctx, id); err != nil {
		log.WithError(err).Error("failed to mark item complete")
		return d.finish(id, Incomplete)
	}
	log.Info("item complete")
	return d.finish(id, Completed)
}

func (d *Driver) finish(id string, o Outcome) Outcome {
	d.observer.ItemDone(id, o)
	return o
}

// errNoPages marks a chapter whose page list came back empty.
var errNoPages = errors.New("chapter has no pages")

func (d *Driver) processSubUnit(ctx context.Context, item models.Item, album string, sub models.SubUnit, name string, position int) error {
	ordinal := sub.Ordinal(position)

	packed, err := d.store.IsPacked(ctx, item.ID, sub.ID)
	if err != nil {
		return fmt.Errorf("read packed status: %w", err)
	}
	if packed {
		d.log.DebugWithFields("chapter already packed", map[string]interface{}{
			"item":    item.ID,
			"chapter": name,
		})
		return nil
	}

	pages, err := d.client.Pages(ctx, sub)
	if err != nil {
		d.observer.SubUnitDone(item.ID, name, err)
		return fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		d.observer.SubUnitDone(item.ID, name, errNoPages)
		return errNoPages
	}

	dir := d.files.PagesDir(album, name)
	jobs := make([]downloader.PageJob, len(pages))
	for i, p := range pages {
		jobs[i] = downloader.PageJob{
			Index:  i + 1,
			Page:   p,
			Target: filepath.Join(dir, storage.PageName(i+1, p.URL)),
		}
	}

	d.observer.SubUnitStarted(item.ID, name, len(jobs))
	results := downloader.Run(ctx, d.opts.ConcurrentPages, d.client, d.files, d.pageRetry(), d.log, jobs,
		func(r downloader.PageResult) {
			d.observer.PageDone(r.Size, r.Skipped, r.Error)
		})

	var pageErrs []error
	for _, r := range results {
		if r.Error != nil {
			pageErrs = append(pageErrs, fmt.Errorf("page %d: %w", r.Job.Index, r.Error))
			continue
		}
		if !r.Skipped {
			d.pages++
			d.bytes += r.Size
		}
	}
	if len(pageErrs) > 0 {
		err := fmt.Errorf("%d of %d pages failed: %w", len(pageErrs), len(jobs), errors.Join(pageErrs...))
		d.observer.SubUnitDone(item.ID, name, err)
		return err
	}

	info := metadata.FromItem(item, DisplayTitle(name, sub.Title, ordinal, d.opts.StripBracketed), ordinal, d.opts.ItemURLFormat)
	info.Series = sanitize.Clean(item.Title, d.opts.StripBracketed, SeriesMaxLen)

	err = d.stage.Package(ctx, packer.Job{
		ItemID:    item.ID,
		SubUnitID: sub.ID,
		Dir:       dir,
		Target:    d.files.ArchivePath(album, name),
		Info:      info,
	})
	d.observer.SubUnitDone(item.ID, name, err)
	if err != nil {
		return fmt.Errorf("package: %w", err)
	}
	return nil
}

// pageRetry retries transient failures with a fixed delay. A rejected
// session is retried as well: the client has already tried to log in again.
func (d *Driver) pageRetry() *retry.Config {
	cfg := retry.Constant(d.opts.Retries, d.opts.RetryDelay, d.log)
	cfg.RetryIf = func(err error) bool {
		return retry.DefaultRetryIf(err) || apierrors.IsUnauthorized(err)
	}
	return cfg
}

// Preview lists ids with their titles and status before a run. Unknown ids
// are looked up and cached; lookup failures fall back to the raw id.
func (d *Driver) Preview(ctx context.Context, ids []string) []PlanEntry {
	plan := make([]PlanEntry, 0, len(ids))
	for _, id := range ids {
		entry := PlanEntry{ID: id, Title: id}

		cached, err := d.store.GetItem(ctx, id)
		if err != nil {
			d.log.WithError(err).WarnWithFields("failed to read cached item", map[string]interface{}{"item": id})
		}
		if cached != nil {
			entry.Known = true
			entry.Complete = cached.Complete
			entry.Title = cached.Title
		} else if item, err := d.client.GetItem(ctx, id); err == nil {
			item.ID = id
			entry.Title = item.Title
			if err := d.store.UpsertItem(ctx, *item); err != nil {
				d.log.WithError(err).WarnWithFields("failed to cache item", map[string]interface{}{"item": id})
			}
		} else {
			d.log.WithError(err).DebugWithFields("item lookup failed", map[string]interface{}{"item": id})
		}

		entry.Title = sanitize.Clean(entry.Title, d.opts.StripBracketed, sanitize.DefaultMaxLen)
		plan = append(plan, entry)
	}
	return plan
}
