// Package config holds runtime configuration: defaults, an optional YAML
// overlay, CLI flag overrides, and validation. With no flags and no config
// file the runner processes ./images with the stock mapper tuning and writes
// a text model.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// --- Enum types for validated string fields ---

// OutputFormat selects the model format written by the conversion step.
type OutputFormat string

const (
	FormatText   OutputFormat = "TEXT"   // cameras.txt, images.txt, points3D.txt (default).
	FormatBinary OutputFormat = "BINARY" // cameras.bin, images.bin, points3D.bin.
)

// ParseOutputFormat accepts the canonical names plus the converter's own
// spellings ("txt", "bin"), case-insensitively.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "txt":
		return FormatText, nil
	case "binary", "bin":
		return FormatBinary, nil
	default:
		return "", fmt.Errorf("invalid output format %q (use 'text' or 'binary')", s)
	}
}

// ConverterType is the value passed to model_converter --output_type.
func (f OutputFormat) ConverterType() string {
	if f == FormatBinary {
		return "BIN"
	}
	return "TXT"
}

// ModelDirName is the directory under sparse/ that receives the converted model.
func (f OutputFormat) ModelDirName() string {
	if f == FormatBinary {
		return "0_bin_converted"
	}
	return "0_text"
}

// ModelFiles lists the files the converter produces for this format.
func (f OutputFormat) ModelFiles() []string {
	ext := ".txt"
	if f == FormatBinary {
		ext = ".bin"
	}
	return []string{"cameras" + ext, "images" + ext, "points3D" + ext}
}

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// MapperOptions are the initialization thresholds passed to the mapper.
// The defaults are relaxed so initialization succeeds on weak datasets.
type MapperOptions struct {
	InitMinNumInliers    int     // Default: 10.
	InitMaxError         float64 // Default: 8.0 px.
	InitMaxForwardMotion float64 // Default: 0.95.
	InitMinTriAngle      float64 // Default: 4.0 degrees.
}

// Config holds all runtime settings. It is assembled once by [Load] and
// then handed to the pipeline by value; nothing mutates it afterwards.
type Config struct {
	// Dataset and tool.
	DatasetRoot    string       // Default: "./". Must contain images/.
	OutputFormat   OutputFormat // Default: TEXT.
	ToolExecutable string       // Default: "colmap".
	Mapper         MapperOptions

	// Behavior flags.
	DryRun        bool // Log invocations without launching anything.
	TeeToolOutput bool // Default: true. Stream the tool's stdout/stderr to the terminal.

	// Display and logging.
	Verbose    bool
	ColorMode  ColorMode // Default: "auto".
	LogFile    string    // Optional JSON log file path.
	ConfigFile string    // Optional YAML file that was loaded, for reporting.
}

// DefaultConfig returns the baked-in configuration.
func DefaultConfig() Config {
	return Config{
		DatasetRoot:    "./",
		OutputFormat:   FormatText,
		ToolExecutable: "colmap",
		Mapper: MapperOptions{
			InitMinNumInliers:    10,
			InitMaxError:         8.0,
			InitMaxForwardMotion: 0.95,
			InitMinTriAngle:      4.0,
		},
		TeeToolOutput: true,
		ColorMode:     ColorAuto,
	}
}

// Validate checks enum fields and numeric ranges. It does not touch the
// filesystem; directory checks belong to the pipeline.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatasetRoot) == "" {
		return errors.New("dataset root must not be empty")
	}
	if strings.TrimSpace(c.ToolExecutable) == "" {
		return errors.New("tool executable must not be empty")
	}

	switch c.OutputFormat {
	case FormatText, FormatBinary:
		// valid
	default:
		return fmt.Errorf("invalid output format %q (use 'text' or 'binary')", c.OutputFormat)
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", c.ColorMode)
	}

	return c.Mapper.validate()
}

func (m MapperOptions) validate() error {
	if m.InitMinNumInliers <= 0 {
		return fmt.Errorf("mapper init_min_num_inliers must be positive (got %d)", m.InitMinNumInliers)
	}
	if m.InitMaxError <= 0 {
		return fmt.Errorf("mapper init_max_error must be positive (got %g)", m.InitMaxError)
	}
	if m.InitMaxForwardMotion <= 0 || m.InitMaxForwardMotion > 1 {
		return fmt.Errorf("mapper init_max_forward_motion must be in (0, 1] (got %g)", m.InitMaxForwardMotion)
	}
	if m.InitMinTriAngle <= 0 {
		return fmt.Errorf("mapper init_min_tri_angle must be positive (got %g)", m.InitMinTriAngle)
	}
	return nil
}
