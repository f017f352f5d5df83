package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"favsync/pkg/logger"
	"favsync/pkg/models"

	"github.com/gofrs/flock"
	"golang.org/x/text/cases"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

const (
	keyFavLatestID = "fav_latest_id"
	keyFavList     = "fav_list"
)

// ErrLocked is returned by Open when another process holds the store.
var ErrLocked = errors.New("state store is locked by another process")

// errCorrupt marks failures that mean the file is not a usable database.
var errCorrupt = errors.New("database file is corrupt")

// Snapshot is the cached favorites listing: the newest id seen at the time
// of the last full walk and the ids that walk produced.
type Snapshot struct {
	LatestID string
	IDs      []string
}

// Store manages mirror state backed by SQLite.
type Store struct {
	db          *sql.DB
	path        string
	lock        *flock.Flock
	log         logger.Logger
	mu          sync.Mutex
	quarantined bool
}

// Open connects to the state database at path, creating it if needed. A file
// that is not a readable database is moved to path+".bak" and replaced by a
// fresh store.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	s := &Store{path: path, lock: lock, log: log.WithField("component", "state")}

	db, err := openDB(path)
	if errors.Is(err, errCorrupt) {
		s.log.WithError(err).WarnWithFields("store quarantined", map[string]interface{}{
			"path":   path,
			"backup": path + ".bak",
		})
		if qerr := quarantine(path); qerr != nil {
			_ = lock.Unlock()
			return nil, fmt.Errorf("quarantine corrupt store: %w", qerr)
		}
		s.quarantined = true
		db, err = openDB(path)
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s.db = db
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection: every statement sees every committed write in order
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, classify(fmt.Errorf("apply pragma %q: %w", pragma, execErr))
		}
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, classify(fmt.Errorf("integrity check: %w", err))
	}
	if check != "ok" {
		_ = db.Close()
		return nil, fmt.Errorf("%w: quick_check reported %q", errCorrupt, check)
	}

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, classify(err)
	}
	return db, nil
}

func applySchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// classify tags sqlite "not a database" and "malformed" failures as errCorrupt.
func classify(err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
			return fmt.Errorf("%w: %w", errCorrupt, err)
		}
	}
	return err
}

// quarantine moves a corrupt database aside, replacing any earlier backup.
func quarantine(path string) error {
	for _, sidecar := range []string{path + "-wal", path + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", sidecar, err)
		}
	}
	backup := path + ".bak"
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove old backup: %w", err)
	}
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("rename to backup: %w", err)
	}
	return nil
}

// Close closes the database and releases the process lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

// Quarantined reports whether Open replaced a corrupt database file.
func (s *Store) Quarantined() bool { return s.quarantined }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, upsertKV, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

const upsertKV = `INSERT INTO kv (key, value) VALUES (?, ?)
    ON CONFLICT(key) DO UPDATE SET value = excluded.value`

// UpsertItem records item metadata. The completion flag is preserved.
func (s *Store) UpsertItem(ctx context.Context, item models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := item.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, title, author, tags, description, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            author = excluded.author,
            tags = excluded.tags,
            description = excluded.description,
            updated_at = excluded.updated_at`,
		item.ID,
		item.Title,
		item.AuthorList(),
		strings.Join(item.Tags, ","),
		item.Description,
		updated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.ID, err)
	}
	return nil
}

const itemColumns = `id, title, author, tags, description, updated_at, completed`

// GetItem fetches a stored item; it returns nil, nil when absent.
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// Items returns every stored item ordered by id.
func (s *Store) Items(ctx context.Context) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (*models.Item, error) {
	var (
		item      models.Item
		authors   string
		tags      string
		updated   string
		completed int
	)
	if err := sc.Scan(&item.ID, &item.Title, &authors, &tags, &item.Description, &updated, &completed); err != nil {
		return nil, err
	}
	item.Authors = splitAuthors(authors)
	item.Tags = splitList(tags)
	item.Complete = completed != 0
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		item.UpdatedAt = ts
	}
	return &item, nil
}

// IsItemComplete reports whether every sub-unit of id has been packaged.
func (s *Store) IsItemComplete(ctx context.Context, id string) (bool, error) {
	var completed int
	err := s.db.QueryRowContext(ctx, `SELECT completed FROM items WHERE id = ?`, id).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("item status %s: %w", id, err)
	}
	return completed != 0, nil
}

// MarkItemComplete flags id as fully mirrored.
func (s *Store) MarkItemComplete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET completed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark item %s complete: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark item %s complete: item not stored", id)
	}
	return nil
}

// Authors returns the sorted set of authors across all stored items.
// Spellings that differ only in case count once; the spelling of the
// earliest stored item wins.
func (s *Store) Authors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT author FROM items WHERE author <> '' ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	fold := cases.Fold()
	seen := make(map[string]bool)
	authors := []string{}
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		for _, a := range splitAuthors(column) {
			key := fold.String(a)
			if seen[key] {
				continue
			}
			seen[key] = true
			authors = append(authors, a)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Strings(authors)
	return authors, nil
}

// IsPacked reports whether a Packed Record exists for the sub-unit.
func (s *Store) IsPacked(ctx context.Context, itemID, subID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM packed WHERE item_id = ? AND sub_unit_id = ?`, itemID, subID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("packed status %s/%s: %w", itemID, subID, err)
	}
	return true, nil
}

// MarkPacked writes the Packed Record for a sub-unit. Repeated calls keep the
// first timestamp.
func (s *Store) MarkPacked(ctx context.Context, itemID, subID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO packed (item_id, sub_unit_id, packed_at) VALUES (?, ?, ?)
         ON CONFLICT(item_id, sub_unit_id) DO NOTHING`,
		itemID, subID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("mark packed %s/%s: %w", itemID, subID, err)
	}
	return nil
}

// Favorites returns the cached favorites snapshot. An unreadable cached list
// is reported as empty.
func (s *Store) Favorites(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	latest, _, err := s.Get(ctx, keyFavLatestID)
	if err != nil {
		return snap, err
	}
	snap.LatestID = latest

	raw, ok, err := s.Get(ctx, keyFavList)
	if err != nil {
		return snap, err
	}
	if ok {
		if jerr := json.Unmarshal([]byte(raw), &snap.IDs); jerr != nil {
			s.log.WithError(jerr).Warn("cached favorites list is unreadable, treating as empty")
			snap.IDs = nil
		}
	}
	return snap, nil
}

// SetFavorites replaces the favorites snapshot in a single transaction.
func (s *Store) SetFavorites(ctx context.Context, snap Snapshot) error {
	ids := snap.IDs
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin favorites tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertKV, keyFavLatestID, snap.LatestID); err != nil {
		return fmt.Errorf("store favorites latest id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertKV, keyFavList, string(encoded)); err != nil {
		return fmt.Errorf("store favorites list: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit favorites: %w", err)
	}
	return nil
}

func splitAuthors(column string) []string {
	var out []string
	for _, a := range splitList(column) {
		if !models.IsPlaceholderAuthor(a) {
			out = append(out, a)
		}
	}
	return out
}

func splitList(column string) []string {
	var out []string
	for _, part := range strings.Split(column, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
