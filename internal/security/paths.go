// Package security validates file paths and names supplied on the command
// line or over HTTP.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonicalPath resolves symlinks in the longest existing prefix of path,
// so a new file under a symlinked directory resolves to its real location.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	existing := abs
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			rest, _ := filepath.Rel(existing, abs)
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		existing = parent
	}
}

// WithinDirectory returns an error unless path resolves to a location
// inside dir, following symlinks on both.
func WithinDirectory(path, dir string) error {
	p, err := canonicalPath(path)
	if err != nil {
		return err
	}
	d, err := canonicalPath(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// ValidateOutputPath checks a file the process is about to write: it must
// carry extension ext (when non-empty) and sit inside one of allowedDirs.
// With no allowedDirs the temp directory and working directory are allowed.
func ValidateOutputPath(path, ext string, allowedDirs ...string) error {
	if ext != "" && !strings.EqualFold(filepath.Ext(path), ext) {
		return fmt.Errorf("output file must have %s extension, got %q", ext, filepath.Ext(path))
	}
	if len(allowedDirs) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		allowedDirs = []string{os.TempDir(), cwd}
	}
	for _, dir := range allowedDirs {
		if WithinDirectory(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("output path must be within one of %v", allowedDirs)
}

// SanitizeFilename maps s to a name made of ASCII letters, digits, dot,
// underscore and dash, collapsing other runs to a single underscore and
// capping the length at 128. Empty results become "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
