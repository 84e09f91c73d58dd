package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxFileNameLen caps the stored name; the object key adds a timestamp prefix.
const maxFileNameLen = 200

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName turns an uploaded document name into something safe to
// embed in an object key. Traversal is rejected, separators become "_",
// control characters are dropped and whitespace runs collapse to one space.
// Overlong names are cut from the stem so the extension survives.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
			}
			space = true
		case unicode.IsControl(r) || r == utf8.RuneError:
		default:
			b.WriteRune(r)
			space = false
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" || s == "." {
		return "", ErrInvalidFileName
	}
	if len(s) > maxFileNameLen {
		ext := path.Ext(s)
		if len(ext) > maxFileNameLen/4 {
			ext = ""
		}
		s = truncateRunes(strings.TrimSuffix(s, ext), maxFileNameLen-len(ext)) + ext
	}
	return s, nil
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}

// LikePattern wraps a search term for ILIKE ... ESCAPE '\' so that "%", "_"
// and "\" in user input match literally, the same way ContainsFold does.
func LikePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}

// ContainsFold reports whether needle occurs in s, ignoring case. An empty
// needle matches everything.
func ContainsFold(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
}
