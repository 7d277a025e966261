package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/bsonsplit"
	"github.com/meigma/bsonsplit/internal/config"
	"github.com/meigma/bsonsplit/internal/diag"
)

// configKey annotates a flag with the config key it overrides.
const configKey = "bsonsplit_config_key"

// app holds the state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *diag.Metrics
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "bsonsplit",
		Short:         "Index product archives and build stratified image tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.cfg.MetricsFile == "" {
				return nil
			}
			return a.metrics.WriteTextfile(a.cfg.MetricsFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on success")
	flags.Int("workers", 0, "concurrent workers; 0 uses every CPU, negative runs serially")
	flags.String("output-dir", ".", "directory for relative output table names")
	bindFlag(flags, "log-level", "log.level")
	bindFlag(flags, "log-format", "log.format")
	bindFlag(flags, "metrics-file", "metrics_file")
	bindFlag(flags, "workers", "workers")
	bindFlag(flags, "output-dir", "output.dir")

	root.AddCommand(
		newIndexCommand(a),
		newCategoriesCommand(a),
		newSplitCommand(a),
		newTestsetCommand(a),
		newExportCommand(a),
		newPrepareCommand(a),
	)
	return root
}

// bindFlag marks flag name as an override of config key.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, configKey, []string{key}) //nolint:errcheck // flag is defined by the caller
}

// init binds the running command's flags, loads the configuration and
// builds the logger and metrics.
func (a *app) init(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKey]; len(keys) > 0 && bindErr == nil {
			bindErr = a.v.BindPFlag(keys[0], f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = diag.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.metrics, err = diag.NewMetrics()
	if err != nil {
		return err
	}
	a.logger.Debug("configuration loaded", "file", a.v.ConfigFileUsed())
	return nil
}

// pipeline builds a Pipeline from the loaded configuration.
func (a *app) pipeline() (*bsonsplit.Pipeline, error) {
	opts := []bsonsplit.Option{
		bsonsplit.WithLogger(a.logger),
		bsonsplit.WithObserver(a.metrics),
		bsonsplit.WithWorkers(a.cfg.Workers),
		bsonsplit.WithSplitRatio(a.cfg.Split.Ratio),
		bsonsplit.WithDropRatio(a.cfg.Split.DropRatio),
		bsonsplit.WithMaxRecordSize(uint32(a.cfg.Archive.MaxRecordSize)), //nolint:gosec // validated by config
	}
	if a.cfg.Split.Seeded {
		opts = append(opts, bsonsplit.WithSeed(a.cfg.Split.Seed))
	}
	return bsonsplit.New(opts...)
}
