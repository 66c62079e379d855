// Package check provides system diagnostics (the check subcommand) and the
// pre-pipeline dependency validation (CheckDeps) for the reconstruction tool
// and the dataset directory.
package check

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/sfmrunner/internal/config"
	"github.com/backmassage/sfmrunner/internal/pipeline"
)

// Sentinel errors returned by CheckDeps.
var (
	ErrToolNotFound  = errors.New("reconstruction tool not found")
	ErrToolNotUsable = errors.New("reconstruction tool found but failed to run")
)

// helpTimeout bounds the "<tool> help" probe so a broken install cannot
// hang the check.
const helpTimeout = 10 * time.Second

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// RunCheck reports the tool's availability and version and the state of the
// dataset. It returns false if anything the pipeline needs is missing.
func RunCheck(ctx context.Context, cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")

	ok := checkTool(ctx, cfg.ToolExecutable, log)
	if !checkDataset(cfg, log) {
		ok = false
	}
	return ok
}

// CheckDeps is the pre-pipeline validation: the configured executable must
// resolve on PATH (or as a path).
func CheckDeps(cfg *config.Config) error {
	if _, err := exec.LookPath(cfg.ToolExecutable); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrToolNotFound, cfg.ToolExecutable, err)
	}
	return nil
}

// checkTool verifies the tool resolves and logs the first line of its help
// banner, which carries the version.
func checkTool(ctx context.Context, tool string, log Logger) bool {
	path, err := exec.LookPath(tool)
	if err != nil {
		log.Error("%s not found", tool)
		return false
	}
	log.Success("Tool: %s", path)

	version, err := toolVersion(ctx, path)
	if err != nil {
		log.Warn("%v", err)
		return true
	}
	log.Success("Version: %s", version)
	return true
}

// toolVersion runs "<tool> help" and returns the first non-empty line.
func toolVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, helpTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "help").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s help: %v", ErrToolNotUsable, filepath.Base(path), err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%w: %s help printed nothing", ErrToolNotUsable, filepath.Base(path))
}

// checkDataset reports the dataset root, the images directory and how many
// images it holds, and whether earlier runs left a model behind.
func checkDataset(cfg *config.Config, log Logger) bool {
	layout, err := pipeline.NewLayout(cfg.DatasetRoot, cfg.OutputFormat)
	if err != nil {
		log.Error("%v", err)
		return false
	}
	log.Info("Dataset: %s", layout.Root)

	fi, err := os.Stat(layout.ImagesDir)
	if err != nil || !fi.IsDir() {
		log.Error("No 'images' folder at %s", layout.ImagesDir)
		return false
	}

	images, err := pipeline.DiscoverImages(layout.ImagesDir)
	if err != nil {
		log.Warn("Cannot list images: %v", err)
	} else if len(images) == 0 {
		log.Warn("images/ contains no image files")
	} else {
		log.Success("Images: %d", len(images))
	}

	if _, err := os.Stat(layout.DatabaseFile); err == nil {
		log.Info("Existing database: %s (features will be appended)", layout.DatabaseFile)
	}
	if _, err := os.Stat(layout.ModelInputDir); err == nil {
		log.Info("Existing model: %s", layout.ModelInputDir)
	}
	return true
}
