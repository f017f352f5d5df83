// Package sanitize turns remote titles into names that are safe to use as a
// single path component on every common filesystem.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxLen is the character budget used when callers pass maxLen <= 0.
	DefaultMaxLen = 180
	// MaxBytes bounds the UTF-8 length of every result.
	MaxBytes = 230
	// Fallback replaces names that sanitize to nothing.
	Fallback = "untitled"
)

var (
	// innermost pairs only, so nesting collapses from the inside out
	bracketPair  = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]|\{[^{}]*\}|【[^【】]*】|（[^（）]*）|〈[^〈〉]*〉|《[^《》]*》`)
	strayBracket = regexp.MustCompile(`[\[\](){}<>【】（）〈〉《》]`)
	illegal      = regexp.MustCompile(`[\x00-\x1f<>:"/\\|?*\x{2000}-\x{206F}\x{3000}]`)
)

var reserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Clean sanitizes title for use as a directory or file name. When
// stripBracketed is set, bracketed annotations such as "[Group]" or "(C99)"
// are removed first. The result is never empty and never longer than
// MaxBytes bytes.
func Clean(title string, stripBracketed bool, maxLen int) string {
	s := norm.NFC.String(title)
	if stripBracketed {
		s = StripBracketed(s)
	}
	return finish(s, maxLen)
}

// Filename sanitizes name without removing bracketed text.
func Filename(name string) string {
	return finish(norm.NFC.String(name), DefaultMaxLen)
}

// StripBracketed removes every bracketed span, innermost first, and then any
// unmatched bracket characters.
func StripBracketed(s string) string {
	for {
		next := bracketPair.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	return strayBracket.ReplaceAllString(s, "")
}

func finish(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}

	s = collapseSpace(s)
	s = illegal.ReplaceAllString(s, "")
	s = collapseSpace(s)
	s = trimTail(s)
	if s == "" {
		return Fallback
	}

	s = truncateRunes(s, maxLen)
	s = truncateBytes(s, MaxBytes)
	s = trimTail(s)
	if s == "" {
		return Fallback
	}

	if reserved[strings.ToUpper(s)] {
		s = "_" + s
	}
	return s
}

// collapseSpace folds every run of Unicode whitespace into one ASCII space
// and trims both ends.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimTail(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, ". "))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// truncateBytes cuts s to at most n bytes without splitting a code point.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
