package config

// This file binds CLI flags. Flags are registered on the cobra command's
// pflag set with DefaultConfig values for help text, but only flags the user
// actually set are applied, so a config file loaded in between keeps its
// values unless a flag overrides them.

import (
	"strings"

	"github.com/spf13/pflag"
)

// Flags holds parsed flag values until [Flags.Apply] copies the changed
// ones into a Config.
type Flags struct {
	fs *pflag.FlagSet

	configFile string
	dataset    string
	format     string
	tool       string
	logFile    string
	color      string
	noColor    bool
	verbose    bool
	dryRun     bool
	quietTool  bool
}

// RegisterFlags defines the pipeline flags on fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	def := DefaultConfig()
	f := &Flags{fs: fs}

	fs.StringVar(&f.configFile, "config", "", "YAML config file applied on top of defaults")
	fs.StringVarP(&f.dataset, "dataset", "d", def.DatasetRoot, "Dataset root (must contain images/)")
	fs.StringVarP(&f.format, "format", "f", strings.ToLower(string(def.OutputFormat)), "Converted model format: text | binary")
	fs.StringVar(&f.tool, "tool", def.ToolExecutable, "Reconstruction tool executable")
	fs.BoolVarP(&f.dryRun, "dry-run", "n", false, "Log each invocation without running it")
	fs.BoolVar(&f.quietTool, "quiet-tool", false, "Do not stream the tool's own output")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose output")
	fs.StringVar(&f.color, "color", string(def.ColorMode), "Colored logs: auto | always | never")
	fs.BoolVar(&f.noColor, "no-color", false, "Same as --color never")
	fs.StringVarP(&f.logFile, "log", "l", "", "Append JSON logs to file")
	return f
}

// ConfigFile returns the --config value.
func (f *Flags) ConfigFile() string { return f.configFile }

// Apply copies every flag the user set into cfg.
func (f *Flags) Apply(cfg *Config) error {
	if f.fs.Changed("dataset") {
		cfg.DatasetRoot = f.dataset
	}
	if f.fs.Changed("format") {
		format, err := ParseOutputFormat(f.format)
		if err != nil {
			return err
		}
		cfg.OutputFormat = format
	}
	if f.fs.Changed("tool") {
		cfg.ToolExecutable = f.tool
	}
	if f.fs.Changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
	if f.fs.Changed("quiet-tool") {
		cfg.TeeToolOutput = !f.quietTool
	}
	if f.fs.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if f.fs.Changed("color") {
		cfg.ColorMode = ColorMode(strings.ToLower(f.color))
	}
	if f.noColor {
		cfg.ColorMode = ColorNever
	}
	if f.fs.Changed("log") {
		cfg.LogFile = f.logFile
	}
	return nil
}

// Load assembles the final configuration: defaults, then the --config file
// if given, then explicit flags. The result is validated.
func Load(f *Flags) (Config, error) {
	cfg := DefaultConfig()
	if path := f.ConfigFile(); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := f.Apply(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
