// Package discovery implements the Discovery stage: walking a directory
// for candidate files and registering them as Materials.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ScannedFile is a single file the scanner successfully resolved to a
// path relative to its base directory.
type ScannedFile struct {
	RelativePath string
}

// ScanFailure records an entry the scanner could not process.
type ScanFailure struct {
	Path    string
	Message string
}

// ScanResults is the outcome of a single directory scan.
type ScanResults struct {
	Found  []ScannedFile
	Failed []ScanFailure
}

// DirectoryScanner walks a base directory for candidate files. It prunes
// hidden subtrees (entries whose name starts with '.') and entries
// matching an exclude pattern, emitting base-dir-relative paths.
// Grounded on original_source's discovery/scanner.rs. Unlike the
// original's WalkDir(follow_links(true)), this scanner does not follow
// symlinks — Go's filepath.WalkDir has no native symlink-following
// option and no library in the example pack provides one.
type DirectoryScanner struct {
	baseDir         string
	ignoreHidden    bool
	excludePatterns []string
}

// NewDirectoryScanner validates that baseDir exists and is a directory.
func NewDirectoryScanner(baseDir string) (*DirectoryScanner, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, NewDirectoryNotFoundError(baseDir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discovery: %s exists but is not a directory", baseDir)
	}
	return &DirectoryScanner{baseDir: baseDir, ignoreHidden: true}, nil
}

// IgnoreHidden toggles hidden-file/directory pruning. Defaults to true.
func (s *DirectoryScanner) IgnoreHidden(ignore bool) *DirectoryScanner {
	s.ignoreHidden = ignore
	return s
}

// Exclude appends substring patterns; any entry whose path contains one
// of these patterns is skipped (directories are pruned entirely).
func (s *DirectoryScanner) Exclude(patterns ...string) *DirectoryScanner {
	s.excludePatterns = append(s.excludePatterns, patterns...)
	return s
}

func (s *DirectoryScanner) shouldExclude(path string) bool {
	for _, p := range s.excludePatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Scan walks the base directory. Per-entry failures (inaccessible files,
// path resolution failures) are isolated into Failed and never abort the
// walk.
func (s *DirectoryScanner) Scan() (ScanResults, error) {
	var results ScanResults

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, walkErr error) error {
		if path == s.baseDir {
			return nil
		}

		if walkErr != nil {
			results.Failed = append(results.Failed, ScanFailure{
				Path:    path,
				Message: fmt.Sprintf("failed to access file: %s", walkErr),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if s.shouldExclude(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if s.ignoreHidden && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			results.Failed = append(results.Failed, ScanFailure{
				Path:    path,
				Message: "failed to generate relative path",
			})
			return nil
		}
		results.Found = append(results.Found, ScannedFile{RelativePath: rel})
		return nil
	})

	return results, err
}
