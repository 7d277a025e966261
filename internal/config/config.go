// Package config loads bsonsplit settings from defaults, an optional config
// file, BSONSPLIT_ environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BSONSPLIT_SPLIT_RATIO.
const EnvPrefix = "BSONSPLIT"

// ErrInvalid is returned when a setting is out of range.
var ErrInvalid = errors.New("config: invalid setting")

// Config holds every bsonsplit setting.
type Config struct {
	Log         LogConfig     `mapstructure:"log"`
	MetricsFile string        `mapstructure:"metrics_file"`
	Workers     int           `mapstructure:"workers"`
	Archive     ArchiveConfig `mapstructure:"archive"`
	Catalog     string        `mapstructure:"catalog"`
	Output      OutputConfig  `mapstructure:"output"`
	Split       SplitConfig   `mapstructure:"split"`
	Export      ExportConfig  `mapstructure:"export"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

// ArchiveConfig locates the input archives.
type ArchiveConfig struct {
	Train         string `mapstructure:"train"`
	Test          string `mapstructure:"test"`
	MaxRecordSize int64  `mapstructure:"max_record_size"`

	// CacheDir caches records of remote archives on disk when set.
	CacheDir      string `mapstructure:"cache_dir"`
	CacheMaxBytes int64  `mapstructure:"cache_max_bytes"`
}

// OutputConfig names the generated tables. Relative names resolve against Dir.
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	TrainOffsets string `mapstructure:"train_offsets"`
	TestOffsets  string `mapstructure:"test_offsets"`
	Categories   string `mapstructure:"categories"`
	TrainTable   string `mapstructure:"train_table"`
	ValTable     string `mapstructure:"val_table"`
	TestTable    string `mapstructure:"test_table"`
}

// SplitConfig configures the stratified split.
type SplitConfig struct {
	Ratio     float64 `mapstructure:"ratio"`
	DropRatio float64 `mapstructure:"drop_ratio"`
	Seed      uint64  `mapstructure:"seed"`

	// Seeded reports whether a seed was configured.
	Seeded bool `mapstructure:"-"`
}

// ExportConfig configures the export commands.
type ExportConfig struct {
	BatchSize int  `mapstructure:"batch_size"`
	Limit     int  `mapstructure:"limit"`
	Overwrite bool `mapstructure:"overwrite"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics_file", "")
	v.SetDefault("workers", 0)

	v.SetDefault("archive.train", "train.bson")
	v.SetDefault("archive.test", "")
	v.SetDefault("archive.max_record_size", 64<<20)
	v.SetDefault("archive.cache_dir", "")
	v.SetDefault("archive.cache_max_bytes", 0)
	v.SetDefault("catalog", "category_names.csv")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.train_offsets", "train_offsets.csv")
	v.SetDefault("output.test_offsets", "test_offsets.csv")
	v.SetDefault("output.categories", "categories.csv")
	v.SetDefault("output.train_table", "train_images.csv")
	v.SetDefault("output.val_table", "val_images.csv")
	v.SetDefault("output.test_table", "test_images.csv")

	v.SetDefault("split.ratio", 0.2)
	v.SetDefault("split.drop_ratio", 0.0)

	v.SetDefault("export.batch_size", 1000)
	v.SetDefault("export.limit", 0)
	v.SetDefault("export.overwrite", false)
}

// New returns a viper instance with defaults and environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	_ = v.BindEnv("split.seed") //nolint:errcheck // BindEnv fails only without a key
	return v
}

// Load reads configFile into v, if given, and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Split.Seeded = v.IsSet("split.seed")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if !(c.Split.Ratio > 0 && c.Split.Ratio < 1) {
		errs = append(errs, fmt.Errorf("%w: split.ratio %v not in (0, 1)", ErrInvalid, c.Split.Ratio))
	}
	if !(c.Split.DropRatio >= 0 && c.Split.DropRatio < 1) {
		errs = append(errs, fmt.Errorf("%w: split.drop_ratio %v not in [0, 1)", ErrInvalid, c.Split.DropRatio))
	}
	if c.Archive.MaxRecordSize <= 0 || c.Archive.MaxRecordSize > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("%w: archive.max_record_size %d not in (0, %d]", ErrInvalid, c.Archive.MaxRecordSize, math.MaxInt32))
	}
	if c.Archive.CacheMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: archive.cache_max_bytes must not be negative", ErrInvalid))
	}
	if c.Export.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: export.batch_size must be positive", ErrInvalid))
	}
	if c.Export.Limit < 0 {
		errs = append(errs, fmt.Errorf("%w: export.limit must not be negative", ErrInvalid))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level))
	}
	return errors.Join(errs...)
}

// Path resolves an output table name against the output directory.
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Dir, name)
}
