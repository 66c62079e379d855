package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape. Pointer fields distinguish "absent"
// from zero values so only keys present in the file override defaults.
type fileConfig struct {
	Dataset *string `yaml:"dataset"`
	Format  *string `yaml:"format"`
	Tool    *string `yaml:"tool"`
	DryRun  *bool   `yaml:"dry_run"`
	TeeTool *bool   `yaml:"tee_tool_output"`
	Verbose *bool   `yaml:"verbose"`
	Color   *string `yaml:"color"`
	LogFile *string `yaml:"log"`
	Mapper  struct {
		InitMinNumInliers    *int     `yaml:"init_min_num_inliers"`
		InitMaxError         *float64 `yaml:"init_max_error"`
		InitMaxForwardMotion *float64 `yaml:"init_max_forward_motion"`
		InitMinTriAngle      *float64 `yaml:"init_min_tri_angle"`
	} `yaml:"mapper"`
}

// LoadFile reads the YAML file at path and applies every key it sets on top
// of cfg. Unknown keys are rejected so typos do not pass silently.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := fc.apply(cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.Dataset != nil {
		cfg.DatasetRoot = *fc.Dataset
	}
	if fc.Format != nil {
		f, err := ParseOutputFormat(*fc.Format)
		if err != nil {
			return err
		}
		cfg.OutputFormat = f
	}
	if fc.Tool != nil {
		cfg.ToolExecutable = *fc.Tool
	}
	if fc.DryRun != nil {
		cfg.DryRun = *fc.DryRun
	}
	if fc.TeeTool != nil {
		cfg.TeeToolOutput = *fc.TeeTool
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.Color != nil {
		cfg.ColorMode = ColorMode(*fc.Color)
	}
	if fc.LogFile != nil {
		cfg.LogFile = *fc.LogFile
	}

	m := &fc.Mapper
	if m.InitMinNumInliers != nil {
		cfg.Mapper.InitMinNumInliers = *m.InitMinNumInliers
	}
	if m.InitMaxError != nil {
		cfg.Mapper.InitMaxError = *m.InitMaxError
	}
	if m.InitMaxForwardMotion != nil {
		cfg.Mapper.InitMaxForwardMotion = *m.InitMaxForwardMotion
	}
	if m.InitMinTriAngle != nil {
		cfg.Mapper.InitMinTriAngle = *m.InitMinTriAngle
	}
	return nil
}
