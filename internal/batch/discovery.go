// Package batch expands command line inputs into the capture files to resolve.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// Options controls how directories are expanded.
type Options struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
}

// IsCaptureFile reports whether path is a label image or a PDF label sheet.
func IsCaptureFile(path string) bool {
	return utils.IsSupportedImage(path) || strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Discover returns the capture files named by args in argument order.
// Files given explicitly are kept even when their extension is unknown so a
// wrong file fails loudly; directories contribute only capture files, in
// lexical order. Patterns match the base name.
func Discover(args []string, opts Options) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			found, err := discoverInDirectory(arg, opts)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				add(f)
			}
		} else if !matchesAnyPattern(arg, opts.ExcludePatterns) {
			add(arg)
		}
	}

	return files, nil
}

// discoverInDirectory walks dir, descending only with Recursive set.
func discoverInDirectory(dir string, opts Options) ([]string, error) {
	var files []string

	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if IsCaptureFile(path) && shouldIncludeFile(path, opts.IncludePatterns, opts.ExcludePatterns) {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return files, nil
}

// shouldIncludeFile determines if a file should be included based on include/exclude patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern checks if a file path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
