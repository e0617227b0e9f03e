// Package config defines the run configuration for tarvault: where to back
// up to, which paths to select, how to compress, and what to retain. The
// configuration file lives in the destination directory and command-line
// flags override individual values for a single run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tarvault/tarvault/pkg/flagparse"
	"github.com/tarvault/tarvault/pkg/patharchive"
	"github.com/tarvault/tarvault/pkg/plog"
	"github.com/tarvault/tarvault/pkg/retention"
)

// ConfigFileName is the name of the optional configuration file looked up
// in the destination directory.
const ConfigFileName = "tarvault.yaml"

// AgeAuto is the sentinel value for the newer-than bound meaning "newer
// than the most recent existing archive in the destination".
const AgeAuto = "auto"

// ValidationError marks a configuration problem. The run aborts before any
// filesystem mutation when validation fails.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// SelectionConfig holds the optional size and age predicates. At most one
// size bound and at most one age bound may be set.
type SelectionConfig struct {
	// SmallerThanMB selects files strictly smaller than this many megabytes.
	SmallerThanMB float64 `yaml:"smallerThanMB"`
	// LargerThanMB selects files strictly larger than this many megabytes.
	LargerThanMB float64 `yaml:"largerThanMB"`
	// NewerThan selects files modified after the given instant. Accepts an
	// absolute "YYYY-MM-DD HH:MM" timestamp, a fractional day count, or
	// "auto" to mean "since the most recent existing archive".
	NewerThan string `yaml:"newerThan"`
	// OlderThan selects files modified before the given instant. Always
	// requires an explicit timestamp or day count.
	OlderThan string `yaml:"olderThan"`
}

// ArchiveConfig holds the archive output settings.
type ArchiveConfig struct {
	Format       string `yaml:"format"`
	Level        string `yaml:"level"`
	BufferSizeKB int    `yaml:"bufferSizeKB"`
}

// Config is the full configuration of one run.
type Config struct {
	Destination string   `yaml:"destination"`
	Include     []string `yaml:"include"`
	Exclude     []string `yaml:"exclude"`

	Selection SelectionConfig  `yaml:"selection"`
	Retention retention.Policy `yaml:"retention"`
	Archive   ArchiveConfig    `yaml:"archive"`

	LogLevel      string `yaml:"logLevel"`
	Schedule      string `yaml:"schedule"`
	DeleteWorkers int    `yaml:"deleteWorkers"`
	Metrics       bool   `yaml:"metrics"`

	// DryRun is a per-invocation switch, never persisted.
	DryRun bool `yaml:"-"`
}

// NewDefault returns the built-in defaults. Destination and include paths
// are intentionally empty to force user configuration.
func NewDefault() Config {
	return Config{
		LogLevel: "info",
		Archive: ArchiveConfig{
			Format:       "tar.gz",
			Level:        "default",
			BufferSizeKB: patharchive.DefaultBufferSizeKB,
		},
		DeleteWorkers: 4,
		Metrics:       true,
	}
}

// Load reads the configuration file from the destination directory,
// falling back to defaults when no file exists.
func Load(destination string) (Config, error) {
	absDest, err := filepath.Abs(destination)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for destination %s: %w", destination, err)
	}

	configPath := filepath.Join(absDest, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil // No config file is a normal case.
		}
		return Config{}, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}

	plog.Info("Loading configuration", "path", configPath)
	// Start with default values, then overwrite with the file's content so
	// loading stays resilient to missing fields.
	cfg := NewDefault()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// MergeWithFlags overlays the values of explicitly set command-line flags
// onto a base configuration.
func MergeWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "dest":
			merged.Destination = value.(string)
		case "include":
			merged.Include = value.([]string)
		case "exclude":
			merged.Exclude = value.([]string)
		case "smaller-than":
			merged.Selection.SmallerThanMB = value.(float64)
		case "larger-than":
			merged.Selection.LargerThanMB = value.(float64)
		case "newer-than":
			merged.Selection.NewerThan = value.(string)
		case "older-than":
			merged.Selection.OlderThan = value.(string)
		case "keep":
			merged.Retention = value.(retention.Policy)
		case "format":
			merged.Archive.Format = value.(string)
		case "level":
			merged.Archive.Level = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "schedule":
			merged.Schedule = value.(string)
		case "delete-workers":
			merged.DeleteWorkers = value.(int)
		case "metrics":
			merged.Metrics = value.(bool)
		case "dry-run":
			merged.DryRun = value.(bool)
		}
	}
	return merged
}

// Validate checks the full configuration and returns a ValidationError for
// the first problem found. It must be called before any filesystem
// mutation.
func (c Config) Validate() error {
	if c.Destination == "" {
		return &ValidationError{Reason: "destination directory is required"}
	}
	if len(c.Include) == 0 {
		return &ValidationError{Reason: "at least one include path is required"}
	}

	if c.Selection.SmallerThanMB < 0 || c.Selection.LargerThanMB < 0 {
		return &ValidationError{Reason: "size bounds must be positive"}
	}
	if c.Selection.SmallerThanMB > 0 && c.Selection.LargerThanMB > 0 {
		return &ValidationError{Reason: "smallerThanMB and largerThanMB are mutually exclusive"}
	}

	if c.Selection.NewerThan != "" && c.Selection.OlderThan != "" {
		return &ValidationError{Reason: "newerThan and olderThan are mutually exclusive"}
	}
	if c.Selection.OlderThan == AgeAuto {
		return &ValidationError{Reason: "olderThan requires an explicit date or day count"}
	}
	now := time.Now()
	if c.Selection.NewerThan != "" && c.Selection.NewerThan != AgeAuto {
		if _, err := flagparse.ParseAgeSpec(c.Selection.NewerThan, now); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("newerThan: %v", err)}
		}
	}
	if c.Selection.OlderThan != "" {
		if _, err := flagparse.ParseAgeSpec(c.Selection.OlderThan, now); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("olderThan: %v", err)}
		}
	}

	if err := c.Retention.Validate(); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if _, err := patharchive.ParseFormat(c.Archive.Format); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if _, err := patharchive.ParseLevel(c.Archive.Level); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if c.DeleteWorkers < 0 {
		return &ValidationError{Reason: "deleteWorkers must not be negative"}
	}
	return nil
}

// LogSummary logs the effective settings of a run at debug level.
func (c Config) LogSummary() {
	plog.Debug("Effective configuration",
		"destination", c.Destination,
		"include", c.Include,
		"exclude", c.Exclude,
		"format", c.Archive.Format,
		"retentionEnabled", c.Retention.Enabled(),
		"dryRun", c.DryRun,
	)
}
