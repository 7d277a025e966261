package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/bsonsplit"
)

func newPrepareCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Run index, categories, split and testset in one pass",
		Long: `Index the training archive, derive the category index, split the
training products and, when a test archive is configured, index it and write
the test table. Output names come from the output section of the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			pc := bsonsplit.PrepareConfig{
				TrainArchive: cfg.Archive.Train,
				Catalog:      cfg.Catalog,
				TrainOffsets: cfg.Path(cfg.Output.TrainOffsets),
				Categories:   cfg.Path(cfg.Output.Categories),
				TrainTable:   cfg.Path(cfg.Output.TrainTable),
				ValTable:     cfg.Path(cfg.Output.ValTable),
			}
			if cfg.Archive.Test != "" {
				pc.TestArchive = cfg.Archive.Test
				pc.TestOffsets = cfg.Path(cfg.Output.TestOffsets)
				pc.TestTable = cfg.Path(cfg.Output.TestTable)
			}
			res, err := p.Prepare(cmd.Context(), pc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "train: %d products, %d categories\n", res.TrainIndex.Len(), res.Categories.Len())
			fmt.Fprintf(out, "split: train %d rows, val %d rows, seed %d\n", len(res.Split.Train), len(res.Split.Val), res.Split.Seed)
			if res.TestIndex != nil {
				fmt.Fprintf(out, "test: %d products, %d rows\n", res.TestIndex.Len(), len(res.TestRows))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("train-archive", "train.bson", "labeled training archive")
	f.String("test-archive", "", "unlabeled test archive")
	f.String("catalog", "category_names.csv", "category catalog")
	f.Uint32("max-record-size", 64<<20, "reject records longer than this many bytes")
	bindFlag(f, "train-archive", "archive.train")
	bindFlag(f, "test-archive", "archive.test")
	bindFlag(f, "catalog", "catalog")
	bindFlag(f, "max-record-size", "archive.max_record_size")
	addSplitFlags(f)
	return cmd
}
