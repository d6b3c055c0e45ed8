package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/config"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "product-tagger", cfg.Service.Name)
	assert.Equal(t, 2, cfg.Training.MinimumClassSupport)
	assert.Equal(t, " > ", cfg.Training.LevelSeparator)
	assert.Equal(t, 3, cfg.Training.Depth)
	assert.Equal(t, "model_artifacts", cfg.Artifacts.Location)
	assert.Equal(t, config.BackendFilesystem, cfg.Artifacts.Backend)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, config.RulesEmbedded, cfg.Rules.Source)
	assert.False(t, cfg.NeedsDatabase())

	opts := cfg.CascadeOptions()
	assert.Equal(t, 2, opts.MinSupport)
	assert.True(t, opts.Stage.BalancedPriors)
	assert.InDelta(t, 1.0, opts.Stage.Smoothing, 1e-9)
	assert.Len(t, cfg.Graphs(), 2)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
training:
  minimum_class_support: 3
  balanced_priors: false
  depth: 2
artifacts:
  backend: database
rules:
  source: file
  path: rules.yml
`)
	t.Setenv("TAGGER_ARTIFACT_STORE", "/srv/models")
	t.Setenv("TAGGER_MIN_CLASS_SUPPORT", "4")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.Training.MinimumClassSupport)
	assert.Equal(t, "/srv/models", cfg.Artifacts.Location)
	assert.Equal(t, 2, cfg.Hierarchy().Depth)
	assert.False(t, cfg.CascadeOptions().Stage.BalancedPriors)
	assert.True(t, cfg.NeedsDatabase())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"bad backend", func(c *config.Config) { c.Artifacts.Backend = "s3" }, "artifacts.backend"},
		{"bad driver", func(c *config.Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"rules file without path", func(c *config.Config) { c.Rules.Source = config.RulesFile }, "rules.path"},
		{"zero support", func(c *config.Config) { c.Training.MinimumClassSupport = -1 }, "training.minimum_class_support"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"negative smoothing", func(c *config.Config) { c.Training.Smoothing = -1 }, "training.smoothing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSinkConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	sink := cfg.SinkConfig()
	assert.Equal(t, "tagged_products", sink.Index)
	assert.Equal(t, 500, sink.BulkSize)
}
