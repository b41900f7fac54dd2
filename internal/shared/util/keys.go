package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"strings"
	"unicode"
)

const maxFileNameRunes = 120

var ErrInvalidFileName = errors.New("invalid file name")

// UserPrefix is the object key prefix for a user's uploads. Raw user ids never
// appear in keys.
func UserPrefix(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// SafeFileName turns a client supplied name into one key segment. Separators
// and control characters become '_' and long names are shortened, keeping the
// extension. Traversal patterns and empty names are rejected.
func SafeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if strings.Trim(cleaned, "_") == "" {
		return "", ErrInvalidFileName
	}

	runes := []rune(cleaned)
	if len(runes) <= maxFileNameRunes {
		return cleaned, nil
	}
	ext := []rune(path.Ext(cleaned))
	if len(ext) >= maxFileNameRunes {
		ext = nil
	}
	return string(runes[:maxFileNameRunes-len(ext)]) + string(ext), nil
}
