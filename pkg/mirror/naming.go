package mirror

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"favsync/pkg/models"
	"favsync/pkg/sanitize"
)

// DefaultChapterFormat names chapter directories and archives.
const DefaultChapterFormat = "Chapter %d"

// SeriesMaxLen keeps the ComicInfo series close to the full album title.
const SeriesMaxLen = 999

// generated chapter titles carry no information beyond the ordinal
var generatedTitle = regexp.MustCompile(`(?i)^(chapter|photo)_?`)

// ChapterName is the directory and archive base name of a chapter.
func ChapterName(format string, ordinal int) string {
	if format == "" || !strings.Contains(format, "%d") {
		format = DefaultChapterFormat
	}
	return sanitize.Filename(fmt.Sprintf(format, ordinal))
}

// ChapterNames names every chapter of an item in listed order. A name that
// is already taken, e.g. a chapter without a sort index whose position equals
// another chapter's index, gets the chapter id appended so no two chapters
// share a directory or an archive.
func ChapterNames(format string, subs []models.SubUnit) []string {
	names := make([]string, len(subs))
	used := make(map[string]bool, len(subs))
	for i, sub := range subs {
		name := ChapterName(format, sub.Ordinal(i+1))
		if used[name] {
			name = sanitize.Filename(fmt.Sprintf("%s (%s)", name, sub.ID))
			for n := 2; used[name]; n++ {
				name = sanitize.Filename(fmt.Sprintf("%s (%s-%d)", ChapterName(format, sub.Ordinal(i+1)), sub.ID, n))
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// DisplayTitle is the archive title: the chapter name, followed by the
// chapter's own title when that title is meaningful and the chapter is not
// the first one.
func DisplayTitle(name, title string, ordinal int, stripBracketed bool) string {
	title = strings.TrimSpace(title)
	if title == "" || generatedTitle.MatchString(title) || ordinal <= 1 {
		return name
	}
	return name + " - " + sanitize.Clean(title, stripBracketed, sanitize.DefaultMaxLen)
}

// ParseOrdinal extracts the ordinal from a chapter name built with format.
// Names that do not start with the format's prefix fall back to their first
// run of digits.
func ParseOrdinal(format, name string) (int, bool) {
	if format == "" || !strings.Contains(format, "%d") {
		format = DefaultChapterFormat
	}
	prefix := strings.SplitN(format, "%d", 2)[0]
	if rest, ok := strings.CutPrefix(name, prefix); ok {
		if n, ok := leadingNumber(rest); ok {
			return n, true
		}
	}
	if loc := digitRun.FindStringIndex(name); loc != nil {
		return leadingNumber(name[loc[0]:])
	}
	return 0, false
}

var digitRun = regexp.MustCompile(`[0-9]+`)

func leadingNumber(s string) (int, bool) {
	m := digitRun.FindStringIndex(s)
	if m == nil || m[0] != 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:m[1]])
	return n, err == nil
}
