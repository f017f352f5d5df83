// Package updates looks for new albums by authors already in the local state.
//
// Only the first result of each author search is inspected: when it is an
// album we have never stored, the author is reported with that id. A new
// album that is not the newest search result goes unnoticed.
package updates

import (
	"context"
	"fmt"

	"favsync/pkg/logger"
	"favsync/pkg/models"
)

// Searcher queries the remote catalogue.
type Searcher interface {
	Search(ctx context.Context, query string, page int) (models.ListPage, error)
}

// Known is the local view of stored albums.
type Known interface {
	Authors(ctx context.Context) ([]string, error)
	GetItem(ctx context.Context, id string) (*models.Item, error)
}

// Result is the check outcome for one author.
type Result struct {
	Author   string
	UnseenID string
	Title    string
	Err      error
}

// HasUpdate reports whether an unseen album was found.
func (r Result) HasUpdate() bool { return r.Err == nil && r.UnseenID != "" }

// Report collects one Result per author, in author order.
type Report struct {
	Results []Result
}

// Updates returns the results with an unseen album.
func (r Report) Updates() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.HasUpdate() {
			out = append(out, res)
		}
	}
	return out
}

// Errors returns the results whose search failed.
func (r Report) Errors() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

type Reporter struct {
	search Searcher
	known  Known
	log    logger.Logger
}

func NewReporter(s Searcher, k Known, log logger.Logger) *Reporter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Reporter{search: s, known: k, log: log.WithField("component", "updates")}
}

// Check scans every known author. Only a failure to read the author list is
// returned as an error; per-author failures are kept in the report.
func (r *Reporter) Check(ctx context.Context) (Report, error) {
	authors, err := r.known.Authors(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list authors: %w", err)
	}
	if len(authors) == 0 {
		r.log.Info("no authors stored yet")
		return Report{}, nil
	}

	r.log.InfoWithFields("checking authors for updates", map[string]interface{}{"authors": len(authors)})

	report := Report{Results: make([]Result, 0, len(authors))}
	for _, author := range authors {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := r.checkAuthor(ctx, author)
		if res.Err != nil {
			r.log.WithError(res.Err).WarnWithFields("author check failed", map[string]interface{}{"author": author})
		} else if res.UnseenID != "" {
			r.log.InfoWithFields("update found", map[string]interface{}{
				"author": author,
				"item":   res.UnseenID,
			})
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (r *Reporter) checkAuthor(ctx context.Context, author string) Result {
	res := Result{Author: author}

	page, err := r.search.Search(ctx, author, 1)
	if err != nil {
		res.Err = fmt.Errorf("search: %w", err)
		return res
	}
	if len(page.Entries) == 0 {
		return res
	}

	first := page.Entries[0]
	item, err := r.known.GetItem(ctx, first.ID)
	if err != nil {
		res.Err = fmt.Errorf("lookup %s: %w", first.ID, err)
		return res
	}
	if item == nil {
		res.UnseenID = first.ID
		res.Title = first.Title
	}
	return res
}
