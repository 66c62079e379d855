package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/backmassage/sfmrunner/internal/config"
)

// Layout is the set of paths derived from the dataset root and output
// format. It has no lifecycle of its own.
type Layout struct {
	Root           string
	ImagesDir      string // Required input, never created here.
	DatabaseFile   string // Created by feature extraction.
	SparseDir      string // Created by the runner.
	ModelInputDir  string // sparse/0, created by the mapper.
	ModelOutputDir string // sparse/0_text or sparse/0_bin_converted.
	Format         config.OutputFormat
}

// NewLayout resolves root to an absolute path and derives every other path
// from it.
func NewLayout(root string, format config.OutputFormat) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve dataset root %q: %w", root, err)
	}
	sparse := filepath.Join(abs, "sparse")
	return Layout{
		Root:           abs,
		ImagesDir:      filepath.Join(abs, "images"),
		DatabaseFile:   filepath.Join(abs, "database.db"),
		SparseDir:      sparse,
		ModelInputDir:  filepath.Join(sparse, "0"),
		ModelOutputDir: filepath.Join(sparse, format.ModelDirName()),
		Format:         format,
	}, nil
}

// ModelFiles returns the full paths of the files the converter writes.
func (l Layout) ModelFiles() []string {
	names := l.Format.ModelFiles()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(l.ModelOutputDir, n)
	}
	return paths
}
