package build

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/codeskyblue/dockerignore"
)

// Patterns file read from the root of the application tree.
const ignoreFilename = ".dockerignore"

// Decides which files of the application tree are copied into the image.
type filter struct {
	patterns []string // Cleaned .dockerignore patterns, "!" exclusions included.
	negated  bool     // Some pattern re-includes files below ignored directories.
	always   []string // Absolute paths that are never copied.
}

// Creates a filter from the tree's .dockerignore, if any.
//
// The always paths are excluded regardless of the patterns.
func newFilter(root string, always ...string) (*filter, error) {
	patterns, err := readIgnoreFile(filepath.Join(root, ignoreFilename))
	if err != nil {
		return nil, err
	}

	f := &filter{patterns: patterns}
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			f.negated = true
		}
	}
	for _, p := range always {
		if abs, err := filepath.Abs(p); err == nil {
			f.always = append(f.always, abs)
		}
	}
	return f, nil
}

// Reports whether the entry at rel (relative to the tree root) is left out.
func (f *filter) excludes(rel, abs string) (bool, error) {
	for _, a := range f.always {
		if abs == a || strings.HasPrefix(abs, a+string(filepath.Separator)) {
			return true, nil
		}
	}

	if len(f.patterns) == 0 {
		return false, nil
	}

	matched, err := ignore.Matches(rel, f.patterns)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCopy, ignoreFilename, err)
	}
	return matched, nil
}

// Reports whether an excluded directory can be skipped as a whole.
func (f *filter) prunable() bool {
	return !f.negated
}

// Reads a .dockerignore file. A missing file yields no patterns.
func readIgnoreFile(p string) ([]string, error) {
	fh, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	defer fh.Close()

	return parseIgnore(fh)
}

// Parses .dockerignore content the way Docker build contexts do.
//
// Blank lines and lines starting with '#' are skipped. Patterns are cleaned
// and made relative to the tree root; a leading '!' is kept.
func parseIgnore(r io.Reader) ([]string, error) {
	var patterns []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		negate := strings.HasPrefix(line, "!")
		pattern := strings.TrimSpace(strings.TrimPrefix(line, "!"))
		if pattern == "" {
			continue
		}

		pattern = filepath.Clean(pattern)
		pattern = strings.TrimPrefix(pattern, string(filepath.Separator))
		if pattern == "" || pattern == "." {
			continue
		}

		if negate {
			pattern = "!" + pattern
		}
		patterns = append(patterns, pattern)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	return patterns, nil
}
