package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// EnsureDirs creates every directory in dirs
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if err := EnsureDir(d); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// Stem returns the base name of a path without its extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputFilename joins outputDir with the input's stem and a new extension.
// An empty format keeps the input file name.
func OutputFilename(inputFile, outputDir, format string) string {
	if format == "" {
		return filepath.Join(outputDir, filepath.Base(inputFile))
	}
	return filepath.Join(outputDir, Stem(inputFile)+"."+format)
}

// ListFiles lists the regular files directly inside dir whose extension
// matches one of exts (case-insensitive, without the dot), sorted by name.
// With no exts every regular file is listed.
func ListFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(exts) > 0 && !slices.Contains(exts, GetFileExtension(e.Name())) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	// os.ReadDir already sorts by filename
	return files, nil
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}
