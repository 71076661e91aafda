package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// GetFileExtension returns the lowercase file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "bmp", "webp":
		return true
	}
	return false
}

// BaseName returns the last path element of a file path or URL without
// its extension
func BaseName(source string) string {
	name := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Host != "" {
		name = path.Base(u.Path)
		if name == "/" || name == "." {
			return u.Host
		}
	} else {
		name = filepath.Base(source)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// OutputFilename builds a slugged output file name for source inside
// outputDir. Parts are joined with dashes, empty parts are skipped.
func OutputFilename(source, outputDir, format string, parts ...string) string {
	name := slug.Make(BaseName(source))
	if name == "" {
		name = "image"
	}
	for _, p := range parts {
		if s := slug.Make(p); s != "" {
			name += "-" + s
		}
	}
	if format == "" {
		format = "png"
	}
	return filepath.Join(outputDir, name+"."+strings.ToLower(format))
}

// ListImageFiles recursively lists all image files in a directory
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}
