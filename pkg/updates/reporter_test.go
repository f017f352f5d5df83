package updates

import (
	"context"
	"errors"
	"testing"

	"favsync/pkg/logger"
	"favsync/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearch struct {
	results map[string][]models.ListEntry
	fail    map[string]error
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string, page int) (models.ListPage, error) {
	f.queries = append(f.queries, query)
	if err := f.fail[query]; err != nil {
		return models.ListPage{}, err
	}
	return models.ListPage{Entries: f.results[query]}, nil
}

type fakeKnown struct {
	authors []string
	items   map[string]bool
	err     error
}

func (f *fakeKnown) Authors(ctx context.Context) ([]string, error) { return f.authors, f.err }

func (f *fakeKnown) GetItem(ctx context.Context, id string) (*models.Item, error) {
	if f.items[id] {
		return &models.Item{ID: id}, nil
	}
	return nil, nil
}

func TestCheckReportsUnseenFirstResult(t *testing.T) {
	search := &fakeSearch{
		results: map[string][]models.ListEntry{
			"alice": {{ID: "30", Title: "New One"}, {ID: "10"}},
			"bob":   {{ID: "20"}, {ID: "99"}},
		},
		fail: map[string]error{"carol": errors.New("timeout")},
	}
	known := &fakeKnown{
		authors: []string{"alice", "bob", "carol", "dave"},
		items:   map[string]bool{"10": true, "20": true},
	}

	report, err := NewReporter(search, known, logger.NewNopLogger()).Check(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	updates := report.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, "alice", updates[0].Author)
	assert.Equal(t, "30", updates[0].UnseenID)
	assert.Equal(t, "New One", updates[0].Title)

	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "carol", errs[0].Author)

	assert.False(t, report.Results[1].HasUpdate(), "known first result masks later new ones")
	assert.False(t, report.Results[3].HasUpdate(), "no results means up to date")
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, search.queries)
}

func TestCheckWithoutAuthors(t *testing.T) {
	search := &fakeSearch{}
	report, err := NewReporter(search, &fakeKnown{}, nil).Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Empty(t, search.queries)
}

func TestCheckAuthorListFailure(t *testing.T) {
	_, err := NewReporter(&fakeSearch{}, &fakeKnown{err: errors.New("locked")}, logger.NewNopLogger()).Check(context.Background())
	assert.Error(t, err)
}

func TestCheckStopsOnCancel(t *testing.T) {
	search := &fakeSearch{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReporter(search, &fakeKnown{authors: []string{"a"}}, logger.NewNopLogger()).Check(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, search.queries)
}
