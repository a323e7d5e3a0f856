// Package security guards the file names the sync tool builds from
// recording names and config values.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath, once cleaned, names dir
// itself or something beneath it. The check is lexical so it also holds for
// in-memory file systems; relative paths are compared as given.
func ValidatePathWithinDirectory(filePath, dir string) error {
	cleanPath := filepath.Clean(filePath)
	cleanDir := filepath.Clean(dir)

	if filepath.IsAbs(cleanPath) != filepath.IsAbs(cleanDir) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		absDir, err := filepath.Abs(cleanDir)
		if err != nil {
			return fmt.Errorf("failed to resolve directory path: %w", err)
		}
		cleanPath, cleanDir = absPath, absDir
	}

	rel, err := filepath.Rel(cleanDir, cleanPath)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, dir)
	}
	return nil
}

// SanitizeFilename replaces every character of s that is not an ASCII
// letter, digit, dot, underscore or dash with an underscore, collapsing runs.
// Leading and trailing dots and underscores are trimmed; an empty result
// becomes "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
