package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Grid: GridConfig{
			Ranks:   []int{2, 3},
			Lambdas: [][]float64{{0, 0, 0}, {0.1, 0, 0}},
		},
		Params: ParamsConfig{
			NonnegModes: []int{0, 1},
			Tol:         1e-6,
			MaxIter:     500,
			NumInits:    5,
		},
		Script: ScriptConfig{
			Input:      "data.json",
			OutDir:     "out",
			Bootstraps: 3,
			Replicates: []string{"A", "B"},
			MaxWorkers: 4,
			Seed:       12345,
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no ranks", func(c *Config) { c.Grid.Ranks = nil }},
		{"zero rank", func(c *Config) { c.Grid.Ranks = []int{0} }},
		{"no lambdas", func(c *Config) { c.Grid.Lambdas = nil }},
		{"ragged lambdas", func(c *Config) { c.Grid.Lambdas = [][]float64{{0, 0}, {0}} }},
		{"negative lambda", func(c *Config) { c.Grid.Lambdas[1][0] = -1 }},
		{"nonneg mode range", func(c *Config) { c.Params.NonnegModes = []int{3} }},
		{"zero tol", func(c *Config) { c.Params.Tol = 0 }},
		{"zero iters", func(c *Config) { c.Params.MaxIter = 0 }},
		{"zero inits", func(c *Config) { c.Params.NumInits = 0 }},
		{"no input", func(c *Config) { c.Script.Input = "" }},
		{"no outdir", func(c *Config) { c.Script.OutDir = "" }},
		{"zero bootstraps", func(c *Config) { c.Script.Bootstraps = 0 }},
		{"one replicate", func(c *Config) { c.Script.Replicates = []string{"A"} }},
		{"empty replicate", func(c *Config) { c.Script.Replicates = []string{"A", ""} }},
		{"duplicate replicate", func(c *Config) { c.Script.Replicates = []string{"A", "A"} }},
		{"zero workers", func(c *Config) { c.Script.MaxWorkers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{
		"grid": {
			"ranks": [2, 3],
			"lambdas": [[0, 0, 0], [0.1, 0, 0]]
		},
		"params": {
			"nonneg_modes": [0, 1],
			"tol": 1e-6,
			"n_iter_max": 500,
			"n_initializations": 5
		},
		"script": {
			"input": "data.json",
			"outdir": "out",
			"n_bootstraps": 3,
			"replicates": ["A", "B"],
			"max_workers": 4,
			"seed": 12345
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, cfg.Grid.Ranks)
	assert.Equal(t, 500, cfg.Params.MaxIter)
	assert.Equal(t, int64(12345), cfg.Script.Seed)
	assert.Equal(t, []string{"A", "B"}, cfg.Script.Replicates)
}

func TestLoadRejections(t *testing.T) {
	dir := t.TempDir()

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "absent.json"))
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid content", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"grid":{"ranks":[]}}`), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
