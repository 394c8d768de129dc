package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/splatprune/internal/plycache"
	"github.com/banshee-data/splatprune/internal/prune"
)

// DefaultConfigPath is the path to the canonical prune defaults file.
const DefaultConfigPath = "config/prune.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

var decoders = map[string]func([]byte, any) error{
	".json": json.Unmarshal,
	".yaml": yaml.Unmarshal,
	".yml":  yaml.Unmarshal,
}

// PruneConfig is the run configuration, read from JSON or YAML. A nil field
// means the default applies, so partial files are safe.
type PruneConfig struct {
	// Selection
	KeepRatio *float64 `json:"keep_ratio,omitempty" yaml:"keep_ratio,omitempty"`
	Method    *string  `json:"method,omitempty" yaml:"method,omitempty"`
	Seed      *uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Importance weights
	OpacityWeight *float64 `json:"opacity_weight,omitempty" yaml:"opacity_weight,omitempty"`
	ScaleWeight   *float64 `json:"scale_weight,omitempty" yaml:"scale_weight,omitempty"`
	ColorWeight   *float64 `json:"color_weight,omitempty" yaml:"color_weight,omitempty"`
	VolumePower   *float64 `json:"volume_power,omitempty" yaml:"volume_power,omitempty"`

	StrictAuxiliary *bool `json:"strict_auxiliary,omitempty" yaml:"strict_auxiliary,omitempty"`

	// Output cache
	CacheDir    *string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	CacheMaxAge *string `json:"cache_max_age,omitempty" yaml:"cache_max_age,omitempty"` // duration string like "24h"

	HistoryDB *string `json:"history_db,omitempty" yaml:"history_db,omitempty"`
	ReportDir *string `json:"report_dir,omitempty" yaml:"report_dir,omitempty"`
	Workers   *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// EmptyPruneConfig returns a PruneConfig with all fields unset.
func EmptyPruneConfig() *PruneConfig {
	return &PruneConfig{}
}

// LoadPruneConfig loads a PruneConfig from a .json, .yaml or .yml file no
// larger than 1MB.
func LoadPruneConfig(path string) (*PruneConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	unmarshal, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPruneConfig()
	if err := unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upward from the
// current directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *PruneConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadPruneConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable. Every rejection is
// a *prune.InvalidArgumentError.
func (c *PruneConfig) Validate() error {
	if c.KeepRatio != nil {
		if err := prune.ValidateKeepRatio(*c.KeepRatio); err != nil {
			return err
		}
	}
	if c.Method != nil {
		if _, err := prune.ParseMethod(*c.Method); err != nil {
			return err
		}
	}

	for _, w := range []struct {
		name string
		v    *float64
	}{
		{"opacity_weight", c.OpacityWeight},
		{"scale_weight", c.ScaleWeight},
		{"color_weight", c.ColorWeight},
		{"volume_power", c.VolumePower},
	} {
		if w.v != nil && (*w.v < 0 || math.IsNaN(*w.v) || math.IsInf(*w.v, 0)) {
			return &prune.InvalidArgumentError{Name: w.name, Value: *w.v, Reason: "must be a non-negative finite number"}
		}
	}

	if c.CacheMaxAge != nil && *c.CacheMaxAge != "" {
		d, err := time.ParseDuration(*c.CacheMaxAge)
		if err != nil {
			return &prune.InvalidArgumentError{Name: "cache_max_age", Value: *c.CacheMaxAge, Reason: err.Error()}
		}
		if d <= 0 {
			return &prune.InvalidArgumentError{Name: "cache_max_age", Value: d, Reason: "must be positive"}
		}
	}

	if c.Workers != nil && *c.Workers < 1 {
		return &prune.InvalidArgumentError{Name: "workers", Value: *c.Workers, Reason: "must be at least 1"}
	}
	return nil
}

// GetKeepRatio returns the keep_ratio value or the default.
func (c *PruneConfig) GetKeepRatio() float64 {
	if c.KeepRatio == nil {
		return 0.5
	}
	return *c.KeepRatio
}

// GetMethod returns the method or the default. An unparseable name falls
// back to importance; Validate reports it.
func (c *PruneConfig) GetMethod() prune.Method {
	if c.Method == nil {
		return prune.MethodImportance
	}
	m, err := prune.ParseMethod(*c.Method)
	if err != nil {
		return prune.MethodImportance
	}
	return m
}

// GetSeed returns the seed, 0 meaning unseeded.
func (c *PruneConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetScoreParams returns the importance weights, filling unset ones from
// prune.DefaultScoreParams.
func (c *PruneConfig) GetScoreParams() prune.ScoreParams {
	p := prune.DefaultScoreParams()
	if c.OpacityWeight != nil {
		p.OpacityWeight = *c.OpacityWeight
	}
	if c.ScaleWeight != nil {
		p.ScaleWeight = *c.ScaleWeight
	}
	if c.ColorWeight != nil {
		p.ColorWeight = *c.ColorWeight
	}
	if c.VolumePower != nil {
		p.VolumePower = *c.VolumePower
	}
	return p
}

// GetStrictAuxiliary returns the strict_auxiliary value or the default.
func (c *PruneConfig) GetStrictAuxiliary() bool {
	if c.StrictAuxiliary == nil {
		return false
	}
	return *c.StrictAuxiliary
}

// GetCacheDir returns the cache directory; empty disables caching.
func (c *PruneConfig) GetCacheDir() string {
	if c.CacheDir == nil {
		return ""
	}
	return *c.CacheDir
}

// GetCacheMaxAge parses and returns CacheMaxAge as a time.Duration.
func (c *PruneConfig) GetCacheMaxAge() time.Duration {
	if c.CacheMaxAge == nil || *c.CacheMaxAge == "" {
		return plycache.DefaultMaxAge
	}
	d, err := time.ParseDuration(*c.CacheMaxAge)
	if err != nil || d <= 0 {
		return plycache.DefaultMaxAge
	}
	return d
}

// GetHistoryDB returns the run history database path; empty disables it.
func (c *PruneConfig) GetHistoryDB() string {
	if c.HistoryDB == nil {
		return ""
	}
	return *c.HistoryDB
}

// GetReportDir returns the score report directory; empty disables reports.
func (c *PruneConfig) GetReportDir() string {
	if c.ReportDir == nil {
		return ""
	}
	return *c.ReportDir
}

// GetWorkers returns the batch concurrency or the default.
func (c *PruneConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers < 1 {
		return 1
	}
	return *c.Workers
}

// Options builds the prune options this configuration describes.
func (c *PruneConfig) Options() prune.Options {
	return prune.Options{
		KeepRatio:       c.GetKeepRatio(),
		Method:          c.GetMethod(),
		Params:          c.GetScoreParams(),
		Seed:            c.GetSeed(),
		StrictAuxiliary: c.GetStrictAuxiliary(),
	}
}
