package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/meigma/bsonsplit/core"
	"github.com/meigma/bsonsplit/core/cache"
	"github.com/meigma/bsonsplit/core/export"
	"github.com/meigma/bsonsplit/core/table"
)

// exportSource names the archive, its offset index and the table to export.
type exportSource struct {
	archive string
	offsets string
	table   string
	test    bool
	verify  bool
}

func (s *exportSource) flags(f *pflag.FlagSet) {
	f.StringVar(&s.archive, "archive", "", "archive holding the images (path or http(s) URL)")
	f.StringVar(&s.offsets, "offsets", "", "offset index of the archive")
	f.StringVar(&s.table, "table", "", "item table naming the images to export")
	f.BoolVar(&s.test, "test", false, "the table is an unlabeled test table")
	f.BoolVar(&s.verify, "verify", false, "check the archive digest recorded in a binary offset index")
	f.Int("limit", 0, "export only the first N rows; 0 exports all")
	bindFlag(f, "limit", "export.limit")
	f.String("cache-dir", "", "cache records of an http(s) archive in this directory")
	bindFlag(f, "cache-dir", "archive.cache_dir")
	f.Int64("cache-max-bytes", 0, "bound the record cache size; 0 is unbounded")
	bindFlag(f, "cache-max-bytes", "archive.cache_max_bytes")
}

// rows loads the table as export rows.
func (s *exportSource) rows(a *app) ([]export.Row, error) {
	path := a.cfg.Path(s.table)
	if s.test {
		rows, err := table.LoadTest(path)
		if err != nil {
			return nil, err
		}
		return export.FromTest(rows), nil
	}
	rows, err := table.LoadItems(path)
	if err != nil {
		return nil, err
	}
	return export.FromItems(rows), nil
}

// run opens the archive and exports the table to sink.
func (s *exportSource) run(cmd *cobra.Command, a *app, sink export.Sink, sinkName string) (export.Stats, error) {
	p, err := a.pipeline()
	if err != nil {
		return export.Stats{}, err
	}
	rows, err := s.rows(a)
	if err != nil {
		return export.Stats{}, err
	}
	opts := []core.Option{core.WithVerifyDigest(s.verify), core.WithLogger(a.logger)}
	if dir := a.cfg.Archive.CacheDir; dir != "" {
		c, err := cache.New(dir, cache.WithMaxBytes(a.cfg.Archive.CacheMaxBytes))
		if err != nil {
			return export.Stats{}, err
		}
		opts = append(opts, core.WithCache(c))
	}
	archive, err := core.Open(cmd.Context(), s.archive, a.cfg.Path(s.offsets), opts...)
	if err != nil {
		return export.Stats{}, err
	}
	defer archive.Close()
	return p.Export(cmd.Context(), archive, rows, sink, sinkName, export.WithLimit(a.cfg.Export.Limit))
}

func newExportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the images named by an item table",
	}
	cmd.AddCommand(newExportImagesCommand(a), newExportKVCommand(a))
	return cmd
}

func newExportImagesCommand(a *app) *cobra.Command {
	var (
		src      exportSource
		outDir   string
		manifest bool
	)
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Write one image file per table row",
		Long: `Write every image named by the table to <product_id>-<img_idx>-<label>.jpg
in the output directory, and list "<file> <label>" lines in labels.txt.
Existing files are kept unless --overwrite is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := export.NewFileSink(outDir,
				export.WithOverwrite(a.cfg.Export.Overwrite),
				export.WithManifest(manifest))
			if err != nil {
				return err
			}
			stats, err := src.run(cmd, a, sink, "images")
			err = errors.Join(err, sink.Close())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d images (%d bytes), skipped %d -> %s\n",
				stats.Written, stats.Bytes, stats.Skipped, outDir)
			return nil
		},
	}
	f := cmd.Flags()
	src.flags(f)
	f.StringVar(&outDir, "out-dir", "", "directory for the image files")
	f.BoolVar(&manifest, "manifest", true, "write labels.txt")
	f.Bool("overwrite", false, "replace existing image files")
	bindFlag(f, "overwrite", "export.overwrite")
	for _, name := range []string{"archive", "offsets", "table", "out-dir"} {
		_ = cmd.MarkFlagRequired(name) //nolint:errcheck // flags are defined above
	}
	return cmd
}

func newExportKVCommand(a *app) *cobra.Command {
	var (
		src exportSource
		db  string
	)
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Store table rows in a batched SQLite key/value table",
		Long: `Store every image named by the table in the samples table of a SQLite
database, keyed by the zero-padded row number. Rows are committed in batches
of --batch-size.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := export.OpenKVSink(db,
				export.WithBatchSize(a.cfg.Export.BatchSize),
				export.WithKVLogger(a.logger))
			if err != nil {
				return err
			}
			stats, err := src.run(cmd, a, sink, "kv")
			err = errors.Join(err, sink.Close())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d samples (%d bytes) in %d batches -> %s\n",
				stats.Written, stats.Bytes, sink.Commits(), db)
			return nil
		},
	}
	f := cmd.Flags()
	src.flags(f)
	f.StringVar(&db, "db", "", "SQLite database to write")
	f.Int("batch-size", 1000, "rows per committed batch")
	bindFlag(f, "batch-size", "export.batch_size")
	for _, name := range []string{"archive", "offsets", "table", "db"} {
		_ = cmd.MarkFlagRequired(name) //nolint:errcheck // flags are defined above
	}
	return cmd
}
