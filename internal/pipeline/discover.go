package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Image extensions the feature extractor reads (lowercase, with leading dot).
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// largeImageSet is the image count above which exhaustive matching becomes
// slow enough to warn about.
const largeImageSet = 500

// DiscoverImages walks imagesDir recursively, like the feature extractor
// does, and returns image paths sorted for deterministic output.
func DiscoverImages(imagesDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(imagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
