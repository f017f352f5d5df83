package models

import (
	"strconv"
	"strings"
	"time"
)

// Item is one remote album: the unit of completion.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
	Complete    bool      `json:"complete"`
}

// AuthorList is the comma-joined author column as persisted.
func (i Item) AuthorList() string {
	return strings.Join(i.Authors, ",")
}

// SubUnit is one chapter of an Item.
type SubUnit struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// Sort is the remote ordering index; it may be empty or non-numeric.
	Sort string `json:"sort"`
}

// Ordinal returns the numeric sort index, falling back to the 1-based
// position when Sort is not a positive integer.
func (s SubUnit) Ordinal(position int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s.Sort)); err == nil && n > 0 {
		return n
	}
	return position
}

// Page is one image of a SubUnit.
type Page struct {
	URL string `json:"url"`
}

// ListEntry is one row of a favorites or search listing.
type ListEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListPage is one page of a listing.
type ListPage struct {
	Entries []ListEntry `json:"items"`
	HasNext bool        `json:"has_next"`
}

// IDs returns the entry ids in listing order.
func (p ListPage) IDs() []string {
	ids := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}

var placeholderAuthors = map[string]bool{
	"unknown":        true,
	"none":           true,
	"未知":             true,
	"default_author": true,
}

// IsPlaceholderAuthor reports whether name is a stand-in the remote uses when
// no author is known.
func IsPlaceholderAuthor(name string) bool {
	return placeholderAuthors[strings.ToLower(strings.TrimSpace(name))]
}
