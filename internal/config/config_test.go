package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.InDelta(t, 0.2, cfg.Split.Ratio, 1e-9)
	assert.Zero(t, cfg.Split.DropRatio)
	assert.False(t, cfg.Split.Seeded)
	assert.Equal(t, int64(64<<20), cfg.Archive.MaxRecordSize)
	assert.Equal(t, 1000, cfg.Export.BatchSize)
	assert.Equal(t, "train_offsets.csv", cfg.Output.TrainOffsets)
	assert.Equal(t, "val_images.csv", cfg.Output.ValTable)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bsonsplit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
archive:
  train: /data/train.bson
output:
  dir: /data/utils
  val_table: val_images.csv.zst
split:
  ratio: 0.1
  seed: 42
`), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/data/train.bson", cfg.Archive.Train)
	assert.InDelta(t, 0.1, cfg.Split.Ratio, 1e-9)
	assert.True(t, cfg.Split.Seeded)
	assert.Equal(t, uint64(42), cfg.Split.Seed)
	assert.Equal(t, filepath.Join("/data/utils", "val_images.csv.zst"), cfg.Path(cfg.Output.ValTable))
	assert.Equal(t, "/abs/x.csv", cfg.Path("/abs/x.csv"))
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("BSONSPLIT_SPLIT_DROP_RATIO", "0.5")
	t.Setenv("BSONSPLIT_SPLIT_SEED", "7")
	t.Setenv("BSONSPLIT_WORKERS", "3")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.Split.DropRatio, 1e-9)
	assert.True(t, cfg.Split.Seeded)
	assert.Equal(t, uint64(7), cfg.Split.Seed)
	assert.Equal(t, 3, cfg.Workers)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"split ratio zero", func(c *Config) { c.Split.Ratio = 0 }},
		{"split ratio one", func(c *Config) { c.Split.Ratio = 1 }},
		{"drop ratio one", func(c *Config) { c.Split.DropRatio = 1 }},
		{"negative drop ratio", func(c *Config) { c.Split.DropRatio = -0.1 }},
		{"zero batch size", func(c *Config) { c.Export.BatchSize = 0 }},
		{"negative limit", func(c *Config) { c.Export.Limit = -1 }},
		{"zero record size", func(c *Config) { c.Archive.MaxRecordSize = 0 }},
		{"record size past int32", func(c *Config) { c.Archive.MaxRecordSize = 1 << 31 }},
		{"negative cache size", func(c *Config) { c.Archive.CacheMaxBytes = -1 }},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load(New(), "")
			require.NoError(t, err)
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
