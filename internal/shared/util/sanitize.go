package util

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidFileName is returned for names that are empty or only dots after cleaning.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName makes name safe to embed as a single object key segment.
// Path separators and control characters become underscores.
func SanitizeFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case unicode.IsControl(r):
			return '_'
		default:
			return r
		}
	}, s)
	if strings.Trim(s, ".") == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}
