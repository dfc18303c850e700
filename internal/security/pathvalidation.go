// Package security holds the file name and path checks applied before the
// journal writes backups to disk.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory returns an error if filePath, after cleaning and
// symlink resolution, lies outside dir. filePath need not exist yet; its
// nearest existing parent is resolved instead.
func ValidatePathWithinDirectory(filePath, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory path: %w", err)
	}

	canonicalPath := resolveExisting(absPath)
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, dir)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p.
func resolveExisting(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for check := p; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rest, _ := filepath.Rel(parent, p)
			return filepath.Join(resolved, rest)
		}
		check = parent
	}
}

// SanitizeFilename maps an arbitrary identifier, such as a session ID or an
// object label, to a safe file name component. Runs of characters outside
// [A-Za-z0-9._-] become one underscore and the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
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
