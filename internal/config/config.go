// Package config loads and validates the grid search configuration: a JSON
// document with three groups mirroring the experiment structure — the grid
// itself, constant model parameters, and script-level settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GridConfig lists the hyperparameter values searched all-by-all.
type GridConfig struct {
	Ranks   []int       `json:"ranks"`
	Lambdas [][]float64 `json:"lambdas"` // one sparsity weight per tensor mode
}

// ParamsConfig holds model parameters constant across the grid.
type ParamsConfig struct {
	NonnegModes []int   `json:"nonneg_modes"`
	Tol         float64 `json:"tol"`
	MaxIter     int     `json:"n_iter_max"`
	NumInits    int     `json:"n_initializations"`
}

// ScriptConfig holds run-level settings: data location, resampling and
// parallelism.
type ScriptConfig struct {
	Input      string   `json:"input"`
	OutDir     string   `json:"outdir"`
	Bootstraps int      `json:"n_bootstraps"`
	Replicates []string `json:"replicates"`
	MaxWorkers int      `json:"max_workers"`
	Seed       int64    `json:"seed"`
}

// Config is the root grid search configuration.
type Config struct {
	Grid   GridConfig   `json:"grid"`
	Params ParamsConfig `json:"params"`
	Script ScriptConfig `json:"script"`
}

// Load reads a Config from a JSON file. The path must carry a .json
// extension and stay under a safety size cap; the parsed document is
// validated before being returned.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration describes a runnable grid search.
func (c *Config) Validate() error {
	if len(c.Grid.Ranks) == 0 {
		return fmt.Errorf("grid.ranks must not be empty")
	}
	for _, r := range c.Grid.Ranks {
		if r <= 0 {
			return fmt.Errorf("grid.ranks entries must be positive, got %d", r)
		}
	}
	if len(c.Grid.Lambdas) == 0 {
		return fmt.Errorf("grid.lambdas must not be empty")
	}
	nModes := len(c.Grid.Lambdas[0])
	if nModes == 0 {
		return fmt.Errorf("grid.lambdas vectors must not be empty")
	}
	for i, ls := range c.Grid.Lambdas {
		if len(ls) != nModes {
			return fmt.Errorf("grid.lambdas[%d] has %d weights, expected %d", i, len(ls), nModes)
		}
		for _, l := range ls {
			if l < 0 {
				return fmt.Errorf("grid.lambdas[%d] contains negative weight %g", i, l)
			}
		}
	}
	for _, m := range c.Params.NonnegModes {
		if m < 0 || m >= nModes {
			return fmt.Errorf("params.nonneg_modes entry %d out of range for %d modes", m, nModes)
		}
	}
	if c.Params.Tol <= 0 {
		return fmt.Errorf("params.tol must be positive, got %g", c.Params.Tol)
	}
	if c.Params.MaxIter <= 0 {
		return fmt.Errorf("params.n_iter_max must be positive, got %d", c.Params.MaxIter)
	}
	if c.Params.NumInits <= 0 {
		return fmt.Errorf("params.n_initializations must be positive, got %d", c.Params.NumInits)
	}
	if c.Script.Input == "" {
		return fmt.Errorf("script.input must be set")
	}
	if c.Script.OutDir == "" {
		return fmt.Errorf("script.outdir must be set")
	}
	if c.Script.Bootstraps <= 0 {
		return fmt.Errorf("script.n_bootstraps must be positive, got %d", c.Script.Bootstraps)
	}
	if len(c.Script.Replicates) < 2 {
		return fmt.Errorf("script.replicates needs at least 2 labels, got %d", len(c.Script.Replicates))
	}
	seen := make(map[string]bool, len(c.Script.Replicates))
	for _, rep := range c.Script.Replicates {
		if rep == "" {
			return fmt.Errorf("script.replicates contains an empty label")
		}
		if seen[rep] {
			return fmt.Errorf("script.replicates contains duplicate label %q", rep)
		}
		seen[rep] = true
	}
	if c.Script.MaxWorkers <= 0 {
		return fmt.Errorf("script.max_workers must be positive, got %d", c.Script.MaxWorkers)
	}
	return nil
}
