// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StudyExtension is the extension of study definition files.
const StudyExtension = ".hcl"

// FindFilesByExtension recursively searches the given root path for all files ending
// with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// ResolveStudyFiles expands every path into the study files it names: a
// file is taken as is when it has the study extension, a directory is
// searched recursively. The result is sorted and free of duplicates.
func ResolveStudyFiles(paths ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("study path not found: %s", path)
		}
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) != StudyExtension {
				return nil, fmt.Errorf("specified file is not an %s file: %s", StudyExtension, path)
			}
			add(filepath.Clean(path))
			continue
		}
		files, err := FindFilesByExtension(path, StudyExtension)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(filepath.Clean(f))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", StudyExtension, strings.Join(paths, ", "))
	}
	sort.Strings(out)
	return out, nil
}

// Dirs lists the distinct parent directories of files, sorted.
func Dirs(files []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range files {
		d := filepath.Dir(f)
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
