package remote

import (
	"bytes"
	"encoding/json"
	"strings"

	"favsync/pkg/models"

	"golang.org/x/text/cases"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexList accepts a JSON array of strings or one comma-separated string.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = nil
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = strings.Split(s, ",")
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*f = list
	return nil
}

// NormalizeAuthors trims names, drops placeholders and removes duplicates
// that differ only in case. The first spelling wins.
func NormalizeAuthors(names []string) []string {
	fold := cases.Fold()
	seen := make(map[string]bool, len(names))
	var out []string
	for _, name := range names {
		// the author column is comma separated once stored
		name = strings.Join(strings.Fields(strings.ReplaceAll(name, ",", " ")), " ")
		if name == "" || models.IsPlaceholderAuthor(name) {
			continue
		}
		key := fold.String(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(strings.ReplaceAll(tag, ",", " ")), " ")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
