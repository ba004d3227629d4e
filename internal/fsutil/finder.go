// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindFilesByExtension recursively searches the given root path for all files
// ending with the specified extension. It returns a slice of their full paths.
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

// NewestFileByExtension returns the path of the most recently modified file
// directly inside dir that ends with the specified extension. It does not
// recurse. An error is returned when no matching file exists.
func NewestFileByExtension(dir string, extension string) (string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var (
		newest     string
		newestTime int64 = -1
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), extension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", err
		}
		if mod := info.ModTime().UnixNano(); mod > newestTime {
			newestTime = mod
			newest = filepath.Join(dir, e.Name())
		}
	}

	if newest == "" {
		return "", fmt.Errorf("no %q file found in %s", extension, dir)
	}
	return newest, nil
}
