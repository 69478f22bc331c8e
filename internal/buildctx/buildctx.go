// Package buildctx inspects a build context directory the way the daemon will
// see it: honouring .dockerignore and producing stable content digests.
package buildctx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// IgnoreFile is read from the context root.
const IgnoreFile = ".dockerignore"

// alwaysExcluded never reaches the daemon.
var alwaysExcluded = []string{".git"}

// ReadIgnorePatterns returns the exclude patterns for dir, including the
// built-in ones. A missing .dockerignore is not an error.
func ReadIgnorePatterns(dir string) ([]string, error) {
	patterns := append([]string(nil), alwaysExcluded...)

	f, err := os.Open(filepath.Join(dir, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return patterns, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", IgnoreFile, err)
	}
	defer f.Close()

	extra, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", IgnoreFile, err)
	}
	return append(patterns, extra...), nil
}

// DigestFile hashes a single file's content.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// DigestTree hashes every non-excluded regular file under dir: relative path,
// permission bits and content, in lexical order.
func DigestTree(dir string, excludes []string) (string, error) {
	pm, err := patternmatcher.New(excludes)
	if err != nil {
		return "", fmt.Errorf("invalid exclude patterns: %w", err)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		skip, err := pm.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if skip {
			if d.IsDir() && !pm.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk build context: %w", err)
	}
	sort.Strings(files)

	h := xxhash.New()
	for _, rel := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%o\x00", rel, info.Mode().Perm())
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}
