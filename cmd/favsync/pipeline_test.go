package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"favsync/pkg/config"
	"favsync/pkg/favorites"
	"favsync/pkg/logger"
	"favsync/pkg/mirror"
	"favsync/pkg/packer"
	"favsync/pkg/remote"
	"favsync/pkg/state"
	"favsync/pkg/storage"
	"favsync/pkg/updates"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAlbum struct {
	id       string
	title    string
	author   string
	chapters [][]string // image names per chapter
}

// mockRemote simulates the remote API with request counting and injectable
// failures.
type mockRemote struct {
	mu       sync.Mutex
	albums   map[string]mockAlbum
	favs     []string
	search   map[string][]string
	requests map[string]int
	failures map[string]int // path -> status code
}

func newMockRemote(t *testing.T, albums ...mockAlbum) (*mockRemote, *httptest.Server) {
	m := &mockRemote{
		albums:   make(map[string]mockAlbum),
		search:   make(map[string][]string),
		requests: make(map[string]int),
		failures: make(map[string]int),
	}
	for _, a := range albums {
		m.albums[a.id] = a
	}
	srv := httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(srv.Close)
	return m, srv
}

func (m *mockRemote) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for path, c := range m.requests {
		if strings.HasPrefix(path, prefix) {
			n += c
		}
	}
	return n
}

func (m *mockRemote) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
}

func (m *mockRemote) fail(path string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failures, path)
		return
	}
	m.failures[path] = status
}

func (m *mockRemote) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/api/")
	m.requests[path]++
	if status, ok := m.failures[path]; ok {
		http.Error(w, "injected failure", status)
		return
	}

	write := func(v interface{}) { _ = json.NewEncoder(w).Encode(v) }
	listing := func(ids []string) {
		items := make([]map[string]string, 0, len(ids))
		for _, id := range ids {
			items = append(items, map[string]string{"id": id, "title": m.albums[id].title})
		}
		write(map[string]interface{}{"items": items, "has_next": false})
	}

	parts := strings.Split(path, "/")
	switch {
	case path == "login":
		write(map[string]string{"token": "session"})
	case path == "favorites":
		if r.URL.Query().Get("page") != "1" {
			listing(nil)
			return
		}
		listing(m.favs)
	case path == "search":
		listing(m.search[r.URL.Query().Get("q")])
	case parts[0] == "albums" && len(parts) == 2:
		a, ok := m.albums[parts[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		write(map[string]interface{}{"id": a.id, "title": a.title, "authors": []string{a.author}, "tags": []string{"tag"}})
	case parts[0] == "albums" && len(parts) == 3:
		a := m.albums[parts[1]]
		subs := make([]map[string]interface{}, 0, len(a.chapters))
		for i := range a.chapters {
			subs = append(subs, map[string]interface{}{"id": fmt.Sprintf("%s-%d", a.id, i+1), "title": "", "sort": i + 1})
		}
		write(subs)
	case parts[0] == "chapters" && len(parts) == 3:
		var albumID string
		var index int
		fmt.Sscanf(strings.Replace(parts[1], "-", " ", 1), "%s %d", &albumID, &index)
		a := m.albums[albumID]
		pages := make([]map[string]string, 0)
		if index >= 1 && index <= len(a.chapters) {
			for _, name := range a.chapters[index-1] {
				pages = append(pages, map[string]string{"url": "img/" + name})
			}
		}
		write(pages)
	case parts[0] == "img":
		_, _ = w.Write([]byte("image " + parts[1]))
	default:
		http.NotFound(w, r)
	}
}

type pipeline struct {
	store  *state.Store
	files  *storage.Manager
	client *remote.Client
}

func openPipeline(t *testing.T, baseURL, root string) *pipeline {
	t.Helper()
	log := logger.NewNopLogger()

	store, err := state.Open(filepath.Join(root, "state.sqlite"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	files, err := storage.NewManager(root)
	require.NoError(t, err)

	client, err := remote.New(remote.Options{BaseURL: baseURL + "/api"}, log)
	require.NoError(t, err)
	require.NoError(t, client.Authenticate(context.Background(), "me", "pw"))

	return &pipeline{store: store, files: files, client: client}
}

func (p *pipeline) mirror(ctx context.Context) mirror.Summary {
	log := logger.NewNopLogger()
	ids := collectIDs(nil, favorites.NewDetector(p.client, p.store, log).Resolve(ctx))
	stage := packer.NewStage(packer.CBZ{}, p.store, p.files, false, log)
	opts := mirror.DefaultOptions()
	opts.RetryDelay = 0
	opts.Retries = 2
	return mirror.NewDriver(p.client, p.store, stage, p.files, opts, log).Run(ctx, ids)
}

func TestMirrorFavoritesEndToEnd(t *testing.T) {
	m, srv := newMockRemote(t,
		mockAlbum{id: "1", title: "First Album", author: "alice", chapters: [][]string{{"a.jpg", "b.jpg"}}},
		mockAlbum{id: "2", title: "Second Album", author: "bob", chapters: [][]string{{"c.jpg"}, {"d.png", "e.png"}}},
	)
	m.favs = []string{"2", "1"}
	root := t.TempDir()
	ctx := context.Background()

	p := openPipeline(t, srv.URL, root)
	sum := p.mirror(ctx)
	assert.Equal(t, []string{"2", "1"}, sum.Completed)
	assert.Equal(t, 5, sum.Pages)

	for _, archive := range []string{
		p.files.ArchivePath("First Album", "Chapter 1"),
		p.files.ArchivePath("Second Album", "Chapter 1"),
		p.files.ArchivePath("Second Album", "Chapter 2"),
	} {
		assert.True(t, p.files.Exists(archive), archive)
	}

	// An unchanged favorites list costs one listing request and nothing else.
	m.reset()
	sum = p.mirror(ctx)
	assert.Equal(t, []string{"2", "1"}, sum.Skipped)
	assert.Equal(t, 1, m.count("favorites"))
	assert.Zero(t, m.count("albums"))
	assert.Zero(t, m.count("img"))
}

func TestMirrorResumesAfterPageFailure(t *testing.T) {
	m, srv := newMockRemote(t,
		mockAlbum{id: "5", title: "Fragile", author: "carol", chapters: [][]string{{"p1.jpg", "p2.jpg", "p3.jpg"}}},
	)
	m.favs = []string{"5"}
	m.fail("img/p2.jpg", http.StatusServiceUnavailable)
	ctx := context.Background()

	p := openPipeline(t, srv.URL, t.TempDir())
	sum := p.mirror(ctx)
	assert.Equal(t, []string{"5"}, sum.Incomplete)
	assert.False(t, p.files.Exists(p.files.ArchivePath("Fragile", "Chapter 1")))
	assert.Equal(t, 2, m.count("img/p2.jpg"), "retried once")

	m.fail("img/p2.jpg", 0)
	m.reset()
	sum = p.mirror(ctx)
	assert.Equal(t, []string{"5"}, sum.Completed)
	assert.Equal(t, 1, m.count("img/p2.jpg"))
	assert.Zero(t, m.count("img/p1.jpg"), "pages on disk are not fetched again")
	assert.True(t, p.files.Exists(p.files.ArchivePath("Fragile", "Chapter 1")))
}

func TestCheckUpdateAfterMirror(t *testing.T) {
	m, srv := newMockRemote(t,
		mockAlbum{id: "1", title: "Known", author: "alice", chapters: [][]string{{"a.jpg"}}},
		mockAlbum{id: "2", title: "Old", author: "bob", chapters: [][]string{{"b.jpg"}}},
		mockAlbum{id: "9", title: "Brand New", author: "alice"},
	)
	m.favs = []string{"2", "1"}
	m.search["alice"] = []string{"9", "1"}
	m.search["bob"] = []string{"2"}
	ctx := context.Background()

	p := openPipeline(t, srv.URL, t.TempDir())
	p.mirror(ctx)

	report, err := updates.NewReporter(p.client, p.store, logger.NewNopLogger()).Check(ctx)
	require.NoError(t, err)
	found := report.Updates()
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Author)
	assert.Equal(t, "9", found[0].UnseenID)
	assert.Empty(t, report.Errors())
}

func TestCollectIDs(t *testing.T) {
	assert.Equal(t, []string{"3", "1", "2"}, collectIDs([]string{"3", "1", "3", ""}, []string{"1", "2"}))
	assert.Empty(t, collectIDs(nil, nil))
}

func TestMaskSecrets(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.Remote.Password = "correct horse"
	masked := maskSecrets(cfg)
	assert.Equal(t, "co...se", masked.Remote.Password)
	assert.Equal(t, "correct horse", cfg.Remote.Password)

	cfg.Remote.Password = "short"
	assert.Equal(t, "***", maskSecrets(cfg).Remote.Password)
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 album", plural(1, "album"))
	assert.Equal(t, "3 albums", plural(3, "album"))
}
