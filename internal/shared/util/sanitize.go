package util

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxFileNameLen caps the sanitized upload name in bytes.
const maxFileNameLen = 128

var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName flattens path separators, drops control characters and
// shortens overly long names while keeping the extension, so the result can
// be echoed back to clients and used in log fields.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case unicode.IsControl(r) || r == utf8.RuneError:
			continue
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" || strings.Trim(s, "_.") == "" {
		return "", ErrInvalidFileName
	}
	if len(s) <= maxFileNameLen {
		return s, nil
	}
	ext := filepath.Ext(s)
	if len(ext) > 16 {
		ext = ""
	}
	stem := s[:len(s)-len(ext)]
	keep := maxFileNameLen - len(ext)
	for keep > 0 && !utf8.RuneStart(stem[keep]) {
		keep--
	}
	return stem[:keep] + ext, nil
}
