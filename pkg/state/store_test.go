package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"favsync/pkg/logger"
	"favsync/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.sqlite"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestUpsertPreservesCompletion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	item := models.Item{ID: "42", Title: "First", Authors: []string{"alice"}, Tags: []string{"a", "b"}}
	require.NoError(t, s.UpsertItem(ctx, item))
	require.NoError(t, s.MarkItemComplete(ctx, "42"))

	item.Title = "Renamed"
	require.NoError(t, s.UpsertItem(ctx, item))

	got, err := s.GetItem(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	assert.True(t, got.Complete)

	done, err := s.IsItemComplete(ctx, "42")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestGetItemAbsent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	got, err := s.GetItem(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	done, err := s.IsItemComplete(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, done)

	assert.Error(t, s.MarkItemComplete(ctx, "nope"))
}

func TestAuthors(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertItem(ctx, models.Item{ID: "1", Authors: []string{"bob", "alice"}}))
	require.NoError(t, s.UpsertItem(ctx, models.Item{ID: "2", Authors: []string{"alice", "unknown"}}))
	require.NoError(t, s.UpsertItem(ctx, models.Item{ID: "3"}))
	require.NoError(t, s.Set(ctx, "unrelated", "x"))

	authors, err := s.Authors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, authors)

	items, err := s.Items(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestAuthorsIgnoreCase(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.UpsertItem(ctx, models.Item{ID: "1", Authors: []string{"Foo"}}))
	require.NoError(t, s.UpsertItem(ctx, models.Item{ID: "2", Authors: []string{"foo", "bar"}}))
	require.NoError(t, s.UpsertItem(ctx, models.Item{ID: "3", Authors: []string{"FOO"}}))

	authors, err := s.Authors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo", "bar"}, authors)
}

func TestPackedRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	packed, err := s.IsPacked(ctx, "1", "10")
	require.NoError(t, err)
	assert.False(t, packed)

	require.NoError(t, s.MarkPacked(ctx, "1", "10"))
	require.NoError(t, s.MarkPacked(ctx, "1", "10"))

	packed, err = s.IsPacked(ctx, "1", "10")
	require.NoError(t, err)
	assert.True(t, packed)

	packed, err = s.IsPacked(ctx, "1", "11")
	require.NoError(t, err)
	assert.False(t, packed)
}

func TestFavoritesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	snap, err := s.Favorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.LatestID)
	assert.Empty(t, snap.IDs)

	want := Snapshot{LatestID: "100", IDs: []string{"100", "99", "98"}}
	require.NoError(t, s.SetFavorites(ctx, want))

	snap, err = s.Favorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, snap)
}

func TestFavoritesCanceledWriteLeavesPair(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SetFavorites(context.Background(), Snapshot{LatestID: "5", IDs: []string{"5"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.SetFavorites(ctx, Snapshot{LatestID: "6", IDs: []string{"6", "5"}}))

	snap, err := s.Favorites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Snapshot{LatestID: "5", IDs: []string{"5"}}, snap)
}

func TestFavoritesUnreadableList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Set(ctx, keyFavLatestID, "7"))
	require.NoError(t, s.Set(ctx, keyFavList, "{not json"))

	snap, err := s.Favorites(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", snap.LatestID)
	assert.Empty(t, snap.IDs)
}

func TestStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.sqlite")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpsertItem(ctx, models.Item{ID: "1", Title: "kept"}))
	require.NoError(t, s.MarkPacked(ctx, "1", "2"))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Quarantined())
	item, err := s.GetItem(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "kept", item.Title)

	packed, err := s.IsPacked(ctx, "1", "2")
	require.NoError(t, err)
	assert.True(t, packed)
}

func TestOpenQuarantinesCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.sqlite")
	garbage := []byte("this is definitely not a sqlite database, just some bytes")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	log := logger.NewTestLogger()
	s, err := Open(path, log)
	require.NoError(t, err)

	assert.True(t, s.Quarantined())
	assert.True(t, log.HasMessage("store quarantined"))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, garbage, backup)

	// fresh store is usable
	require.NoError(t, s.Set(ctx, "k", "v"))
	items, err := s.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, s.Close())

	// a second corruption replaces the previous backup instead of stacking
	second := []byte("another round of garbage, different from the first one")
	require.NoError(t, os.WriteFile(path, second, 0o644))
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Quarantined())

	backup, err = os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, second, backup)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var backups int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".bak" {
			backups++
		}
	}
	assert.Equal(t, 1, backups)
	_, err = os.Stat(path + ".bak.bak")
	assert.True(t, os.IsNotExist(err))
}

func TestOpenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sqlite")

	first, err := Open(path, nil)
	require.NoError(t, err)

	_, err = Open(path, nil)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())

	again, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
